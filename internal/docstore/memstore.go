package docstore

import (
	"context"
	"sync"
	"time"
)

// MemStore is a thread-safe in-memory Store.  It backs tests and the
// zero-dependency development mode; nothing survives a restart.
type MemStore struct {
	mu sync.RWMutex
	// Structure: [collection][id]document
	data     map[string]map[string]Document
	notifier *LocalNotifier
	newID    func() string
	now      func() time.Time
}

// NewMemStore initializes an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		data:     make(map[string]map[string]Document),
		notifier: NewLocalNotifier(),
		newID:    MonotonicIDGenerator(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the timestamp source.  Tests use it to get distinct,
// predictable timestamps.
func (m *MemStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *MemStore) Get(_ context.Context, collection, id string) (Document, error) {
	if !validName(collection, id) {
		return Document{}, ErrInvalidCollection
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.data[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (m *MemStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := m.newID()
	if !validName(collection, id) {
		return "", ErrInvalidCollection
	}
	m.mu.Lock()
	now := m.now()
	m.put(collection, Document{ID: id, Data: copyData(data), CreatedAt: now, UpdatedAt: now})
	m.mu.Unlock()
	_ = m.notifier.Notify(ctx, collection)
	return id, nil
}

func (m *MemStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	return m.Batch(ctx, []Op{UpdateOp(collection, id, partial)})
}

func (m *MemStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	return m.Batch(ctx, []Op{SetOp(collection, id, data, merge)})
}

func (m *MemStore) Delete(ctx context.Context, collection, id string) error {
	return m.Batch(ctx, []Op{DeleteOp(collection, id)})
}

// Batch validates every operation before applying any of them, which makes
// the batch all-or-nothing under the store lock.
func (m *MemStore) Batch(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	m.mu.Lock()
	for i, op := range ops {
		if !validName(op.Collection, op.ID) {
			m.mu.Unlock()
			return ErrInvalidCollection
		}
		if op.Kind == OpUpdate {
			if _, ok := m.data[op.Collection][op.ID]; !ok && !setEarlier(ops[:i], op) {
				m.mu.Unlock()
				return ErrNotFound
			}
		}
	}
	now := m.now()
	for _, op := range ops {
		existing, exists := m.data[op.Collection][op.ID]
		switch op.Kind {
		case OpDelete:
			delete(m.data[op.Collection], op.ID)
		case OpSet, OpUpdate:
			doc := Document{ID: op.ID, Data: copyData(op.Data), CreatedAt: now, UpdatedAt: now}
			if exists {
				doc.CreatedAt = existing.CreatedAt
				if op.Kind == OpUpdate || op.Merge {
					doc.Data = mergeData(existing.Data, op.Data)
				}
			}
			m.put(op.Collection, doc)
		}
	}
	m.mu.Unlock()

	seen := make(map[string]bool, len(ops))
	for _, op := range ops {
		if !seen[op.Collection] {
			seen[op.Collection] = true
			_ = m.notifier.Notify(ctx, op.Collection)
		}
	}
	return nil
}

// setEarlier reports whether one of the preceding ops of the same batch sets
// the document an update targets.
func setEarlier(preceding []Op, target Op) bool {
	for _, op := range preceding {
		if op.Kind == OpSet && op.Collection == target.Collection && op.ID == target.ID {
			return true
		}
	}
	return false
}

func (m *MemStore) List(_ context.Context, collection string, order Order) ([]Document, error) {
	if collection == "" {
		return nil, ErrInvalidCollection
	}
	m.mu.RLock()
	out := make([]Document, 0, len(m.data[collection]))
	for _, doc := range m.data[collection] {
		out = append(out, cloneDoc(doc))
	}
	m.mu.RUnlock()
	sortDocuments(out, order)
	return out, nil
}

func (m *MemStore) Subscribe(ctx context.Context, collection string, order Order) (*Subscription, error) {
	if collection == "" {
		return nil, ErrInvalidCollection
	}
	changes, stop, _ := m.notifier.Listen(ctx, collection)
	return NewSubscription(ctx, func(ctx context.Context, emit func(Event) bool) {
		defer stop()
		for {
			docs, err := m.List(ctx, collection, order)
			if !emit(Event{Snapshot: docs, Err: err}) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-changes:
			}
		}
	}), nil
}

// SubscribeDocument reads only collection/id on each change signal.
func (m *MemStore) SubscribeDocument(ctx context.Context, collection, id string) (*Subscription, error) {
	if !validName(collection, id) {
		return nil, ErrInvalidCollection
	}
	changes, stop, _ := m.notifier.Listen(ctx, collection)
	return NewSubscription(ctx, func(ctx context.Context, emit func(Event) bool) {
		defer stop()
		for {
			if !emit(documentEvent(m.Get(ctx, collection, id))) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-changes:
			}
		}
	}), nil
}

// put must be called while holding m.mu.
func (m *MemStore) put(collection string, doc Document) {
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]Document)
	}
	m.data[collection][doc.ID] = doc
}

func cloneDoc(d Document) Document {
	d.Data = copyData(d.Data)
	return d
}
