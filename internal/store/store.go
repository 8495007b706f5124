// Package store provides the file-backed record store and its building blocks.
package store

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/clothes-api/internal/model"
)

// Store errors.
var (
	ErrNotFound         = errors.New("record not found")
	ErrInvalidID        = errors.New("invalid record ID")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrCorruptDocument  = errors.New("corrupt document")
	ErrIDExhausted      = errors.New("record ID space exhausted")
)

// Store defines the record operations exposed to the HTTP layer.
type Store interface {
	// List returns all records in stored order.
	List(ctx context.Context) ([]model.Record, error)

	// Get retrieves a record by its ID.
	Get(ctx context.Context, id int64) (*model.Record, error)

	// Create appends a new record and returns it with its assigned ID.
	Create(ctx context.Context, fields model.Fields) (*model.Record, error)

	// Update replaces the record with the given ID in place.
	Update(ctx context.Context, id int64, fields model.Fields) (*model.Record, error)

	// Delete removes the record with the given ID.
	Delete(ctx context.Context, id int64) error

	// Ping reports whether the backing document can be loaded.
	Ping(ctx context.Context) error
}

// Backend reads and writes the whole document.
type Backend interface {
	// Load returns the current document. It fails with ErrStoreUnavailable
	// when the document cannot be read and ErrCorruptDocument when it does
	// not have the expected shape.
	Load(ctx context.Context) (model.Document, error)

	// Save replaces the stored document. Readers observe either the previous
	// or the new document, never a partial one.
	Save(ctx context.Context, doc model.Document) error
}

// Notifier receives an event after every committed mutation.
// Publish is called while the writer lock is held and must not block.
type Notifier interface {
	Publish(event model.ChangeEvent)
}
