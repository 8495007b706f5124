package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/vyrodovalexey/clothes-api/internal/model"
)

// MemoryDocument implements Backend with the serialized document held in
// memory. Every Load decodes a fresh copy, so callers never share state.
type MemoryDocument struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemoryDocument creates a MemoryDocument seeded with the given records.
func NewMemoryDocument(items ...model.Record) *MemoryDocument {
	data, err := encodeDocument(model.Document{Items: items})
	if err != nil {
		// Records hold only strings and finite numbers from callers' literals.
		panic(fmt.Sprintf("seed memory document: %v", err))
	}

	return &MemoryDocument{data: data}
}

// Load decodes the current document.
func (m *MemoryDocument) Load(ctx context.Context) (model.Document, error) {
	select {
	case <-ctx.Done():
		return model.Document{}, fmt.Errorf("load document: %w", ctx.Err())
	default:
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return decodeDocument(m.data)
}

// Save replaces the held document.
func (m *MemoryDocument) Save(_ context.Context, doc model.Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("save document: %w: %w", ErrStoreUnavailable, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = data

	return nil
}

// Bytes returns a copy of the serialized document.
func (m *MemoryDocument) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]byte, len(m.data))
	copy(out, m.data)

	return out
}
