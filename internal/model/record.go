// Package model defines data structures used throughout the application.
package model

import (
	"encoding/json"
	"errors"
	"time"
)

// Validation errors for RecordInput.
var (
	ErrMissingImage  = errors.New("image is required")
	ErrMissingName   = errors.New("name is required")
	ErrMissingPrice  = errors.New("price is required")
	ErrMissingRating = errors.New("rating is required")
)

// Record is a single clothing item in the collection.
type Record struct {
	ID     int64   `json:"id"`
	Image  string  `json:"image"`
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Rating float64 `json:"rating"`
}

// Fields returns the client-controlled part of the record.
func (r Record) Fields() Fields {
	return Fields{
		Image:  r.Image,
		Name:   r.Name,
		Price:  r.Price,
		Rating: r.Rating,
	}
}

// Fields holds every record attribute except the store-assigned id.
type Fields struct {
	Image  string
	Name   string
	Price  float64
	Rating float64
}

// WithID builds a Record from the fields and the given id.
func (f Fields) WithID(id int64) Record {
	return Record{
		ID:     id,
		Image:  f.Image,
		Name:   f.Name,
		Price:  f.Price,
		Rating: f.Rating,
	}
}

// RecordInput is the request body accepted by create and replace.
// Pointers distinguish an absent field from its zero value.
type RecordInput struct {
	Image  *string  `json:"image"`
	Name   *string  `json:"name"`
	Price  *float64 `json:"price"`
	Rating *float64 `json:"rating"`
}

// Validate checks that every field is present. Values are not inspected.
func (in *RecordInput) Validate() error {
	switch {
	case in.Image == nil:
		return ErrMissingImage
	case in.Name == nil:
		return ErrMissingName
	case in.Price == nil:
		return ErrMissingPrice
	case in.Rating == nil:
		return ErrMissingRating
	}

	return nil
}

// Fields converts a validated input. Call Validate first.
func (in *RecordInput) Fields() Fields {
	return Fields{
		Image:  *in.Image,
		Name:   *in.Name,
		Price:  *in.Price,
		Rating: *in.Rating,
	}
}

// Document is the on-disk shape of the collection. LastID remembers the
// highest id ever assigned so ids of removed records are not handed out again.
//
// Extra holds top-level keys the service does not interpret and ItemExtra
// holds the uninterpreted keys of each record by id. Both are written back
// unchanged so other tools sharing the file keep their data.
type Document struct {
	Items     []Record        `json:"items"`
	LastID    int64           `json:"lastId,omitempty"`
	Extra     Extra           `json:"-"`
	ItemExtra map[int64]Extra `json:"-"`
}

// Extra maps JSON keys to their raw, undecoded values.
type Extra map[string]json.RawMessage

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Change event types.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// ChangeEvent describes a committed mutation of the collection.
type ChangeEvent struct {
	Type      string    `json:"type"`
	ID        int64     `json:"id"`
	Record    *Record   `json:"record,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChangeEvent creates a change event stamped with the current time.
func NewChangeEvent(eventType string, id int64, record *Record) ChangeEvent {
	return ChangeEvent{
		Type:      eventType,
		ID:        id,
		Record:    record,
		Timestamp: time.Now().UTC(),
	}
}
