package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/clothes-api/internal/model"
)

// RecordStore implements Store on top of a Backend. Every operation loads the
// document fresh; create, update and delete hold a process-wide lock across
// load, mutate and save so no two read-modify-write cycles interleave. Reads
// take no lock and rely on the backend never exposing a partial document.
type RecordStore struct {
	backend  Backend
	mu       sync.Mutex
	notifier Notifier
	logger   *zap.Logger
}

// Option configures a RecordStore.
type Option func(*RecordStore)

// WithNotifier sets the receiver of change events.
func WithNotifier(n Notifier) Option {
	return func(s *RecordStore) {
		s.notifier = n
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *RecordStore) {
		s.logger = logger
	}
}

// NewRecordStore creates a new RecordStore instance.
func NewRecordStore(backend Backend, opts ...Option) *RecordStore {
	s := &RecordStore{
		backend: backend,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// List returns all records in stored order.
func (s *RecordStore) List(ctx context.Context) (items []model.Record, err error) {
	defer func(start time.Time) { observe(opList, start, err) }(time.Now())

	if err := checkContext(ctx, "list records"); err != nil {
		return nil, err
	}

	doc, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	return List(doc), nil
}

// Get retrieves a record by its ID.
func (s *RecordStore) Get(ctx context.Context, id int64) (rec *model.Record, err error) {
	defer func(start time.Time) { observe(opGet, start, err) }(time.Now())

	if err := checkContext(ctx, "get record"); err != nil {
		return nil, err
	}

	if id < 1 {
		return nil, ErrInvalidID
	}

	doc, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	idx, ok := FindIndex(doc, id)
	if !ok {
		return nil, ErrNotFound
	}

	found := doc.Items[idx]

	return &found, nil
}

// Create appends a new record with the next free ID.
func (s *RecordStore) Create(ctx context.Context, fields model.Fields) (rec *model.Record, err error) {
	defer func(start time.Time) { observe(opCreate, start, err) }(time.Now())

	if err := checkContext(ctx, "create record"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}

	next, created, err := Insert(doc, fields)
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}

	if err := s.backend.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}

	s.publish(model.NewChangeEvent(model.ChangeCreated, created.ID, &created))

	return &created, nil
}

// Update replaces the record with the given ID, keeping its position.
func (s *RecordStore) Update(ctx context.Context, id int64, fields model.Fields) (rec *model.Record, err error) {
	defer func(start time.Time) { observe(opUpdate, start, err) }(time.Now())

	if err := checkContext(ctx, "update record"); err != nil {
		return nil, err
	}

	if id < 1 {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}

	next, replaced, err := Replace(doc, id, fields)
	if err != nil {
		return nil, err
	}

	if err := s.backend.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}

	s.publish(model.NewChangeEvent(model.ChangeUpdated, replaced.ID, &replaced))

	return &replaced, nil
}

// Delete removes the record with the given ID.
func (s *RecordStore) Delete(ctx context.Context, id int64) (err error) {
	defer func(start time.Time) { observe(opDelete, start, err) }(time.Now())

	if err := checkContext(ctx, "delete record"); err != nil {
		return err
	}

	if id < 1 {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	next, err := Remove(doc, id)
	if err != nil {
		return err
	}

	if err := s.backend.Save(ctx, next); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	s.publish(model.NewChangeEvent(model.ChangeDeleted, id, nil))

	return nil
}

// Ping loads the document and discards it.
func (s *RecordStore) Ping(ctx context.Context) (err error) {
	defer func(start time.Time) { observe(opPing, start, err) }(time.Now())

	if _, err := s.load(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}

	return nil
}

func (s *RecordStore) load(ctx context.Context) (model.Document, error) {
	doc, err := s.backend.Load(ctx)
	if err != nil {
		return model.Document{}, err
	}

	storeRecords.Set(float64(len(doc.Items)))

	return doc, nil
}

func (s *RecordStore) publish(event model.ChangeEvent) {
	s.logger.Debug("record changed",
		zap.String("type", event.Type),
		zap.Int64("id", event.ID),
	)

	if s.notifier != nil {
		s.notifier.Publish(event)
	}
}

func checkContext(ctx context.Context, operation string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", operation, ctx.Err())
	default:
		return nil
	}
}
