package store

import (
	"maps"
	"math"

	"github.com/vyrodovalexey/clothes-api/internal/model"
)

// The functions below operate on a freshly loaded document and never modify
// the input's backing array; mutations return a new Document to persist.

// List returns the records in stored order.
func List(doc model.Document) []model.Record {
	return doc.Items
}

// FindIndex returns the position of the first record with the given id.
func FindIndex(doc model.Document, id int64) (int, bool) {
	for i, rec := range doc.Items {
		if rec.ID == id {
			return i, true
		}
	}

	return -1, false
}

// NextID returns max(existing ids, 0) + 1, never going below the document's
// high-water mark. The result is not positive once math.MaxInt64 is used.
func NextID(doc model.Document) int64 {
	return max(maxID(doc), doc.LastID) + 1
}

func maxID(doc model.Document) int64 {
	var m int64
	for _, rec := range doc.Items {
		m = max(m, rec.ID)
	}

	return m
}

// Insert appends a record with the next id. It fails with ErrIDExhausted
// when the highest id in use is math.MaxInt64.
func Insert(doc model.Document, fields model.Fields) (model.Document, model.Record, error) {
	if max(maxID(doc), doc.LastID) == math.MaxInt64 {
		return doc, model.Record{}, ErrIDExhausted
	}

	created := fields.WithID(NextID(doc))

	items := make([]model.Record, len(doc.Items), len(doc.Items)+1)
	copy(items, doc.Items)
	items = append(items, created)

	return model.Document{
		Items:     items,
		LastID:    doc.LastID,
		Extra:     doc.Extra,
		ItemExtra: doc.ItemExtra,
	}, created, nil
}

// Replace overwrites the record with the given id at the same position,
// keeping its id. Uninterpreted keys of the old record are dropped.
func Replace(doc model.Document, id int64, fields model.Fields) (model.Document, model.Record, error) {
	idx, ok := FindIndex(doc, id)
	if !ok {
		return doc, model.Record{}, ErrNotFound
	}

	replaced := fields.WithID(id)

	items := make([]model.Record, len(doc.Items))
	copy(items, doc.Items)
	items[idx] = replaced

	return model.Document{
		Items:     items,
		LastID:    doc.LastID,
		Extra:     doc.Extra,
		ItemExtra: withoutExtra(doc.ItemExtra, id),
	}, replaced, nil
}

// Remove deletes exactly the record with the given id. Later records shift
// position but keep their ids.
func Remove(doc model.Document, id int64) (model.Document, error) {
	idx, ok := FindIndex(doc, id)
	if !ok {
		return doc, ErrNotFound
	}

	items := make([]model.Record, 0, len(doc.Items)-1)
	items = append(items, doc.Items[:idx]...)
	items = append(items, doc.Items[idx+1:]...)

	return model.Document{
		Items:     items,
		LastID:    max(doc.LastID, maxID(doc)),
		Extra:     doc.Extra,
		ItemExtra: withoutExtra(doc.ItemExtra, id),
	}, nil
}

// withoutExtra returns a copy of extras lacking id, or extras itself when
// id has no entry.
func withoutExtra(extras map[int64]model.Extra, id int64) map[int64]model.Extra {
	if _, ok := extras[id]; !ok {
		return extras
	}

	out := maps.Clone(extras)
	delete(out, id)
	if len(out) == 0 {
		return nil
	}

	return out
}
