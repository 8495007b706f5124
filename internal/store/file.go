package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/vyrodovalexey/clothes-api/internal/model"
)

// DefaultFileMode is the permission used for the document file.
const DefaultFileMode fs.FileMode = 0o644

// FileDocument persists the document as a single JSON file.
type FileDocument struct {
	path string
	perm fs.FileMode
}

// NewFileDocument creates a FileDocument for the given path.
func NewFileDocument(path string) *FileDocument {
	return &FileDocument{
		path: path,
		perm: DefaultFileMode,
	}
}

// Path returns the location of the backing file.
func (d *FileDocument) Path() string {
	return d.path
}

// Load reads and parses the backing file.
func (d *FileDocument) Load(ctx context.Context) (model.Document, error) {
	select {
	case <-ctx.Done():
		return model.Document{}, fmt.Errorf("load document: %w", ctx.Err())
	default:
	}

	data, err := os.ReadFile(d.path)
	if err != nil {
		return model.Document{}, fmt.Errorf("read %s: %w: %w", d.path, ErrStoreUnavailable, err)
	}

	doc, err := decodeDocument(data)
	if err != nil {
		return model.Document{}, fmt.Errorf("parse %s: %w", d.path, err)
	}

	return doc, nil
}

// Save writes the document to a temporary file in the same directory and
// renames it over the backing file. Once started it runs to completion.
func (d *FileDocument) Save(_ context.Context, doc model.Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("save %s: %w: %w", d.path, ErrStoreUnavailable, err)
	}

	if err := renameio.WriteFile(d.path, data, d.perm); err != nil {
		return fmt.Errorf("write %s: %w: %w", d.path, ErrStoreUnavailable, err)
	}

	return nil
}

// Init writes an empty document when the backing file does not exist yet.
// An existing file is left untouched.
func (d *FileDocument) Init(ctx context.Context) (created bool, err error) {
	_, err = os.Stat(d.path)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, fs.ErrNotExist):
		return false, fmt.Errorf("stat %s: %w: %w", d.path, ErrStoreUnavailable, err)
	}

	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return false, fmt.Errorf("create directory for %s: %w: %w", d.path, ErrStoreUnavailable, err)
	}

	if err := d.Save(ctx, model.Document{}); err != nil {
		return false, err
	}

	return true, nil
}
