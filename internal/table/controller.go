package table

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/estock/internal/docstore"
	"github.com/iliyamo/estock/internal/model"
)

// State is the lifecycle state of a Controller.
type State int

const (
	StateUninitialized State = iota
	StateSubscribed          // subscription open, no snapshot yet
	StateUpdated             // at least one snapshot received
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateSubscribed:
		return "subscribed"
	case StateUpdated:
		return "updated"
	case StateTornDown:
		return "torn_down"
	}
	return "uninitialized"
}

var (
	// ErrAlreadyInitialized is returned by a second Initialize.
	ErrAlreadyInitialized = errors.New("controller already initialized")
	// ErrTornDown is returned by Initialize after Close.
	ErrTornDown = errors.New("controller torn down")
)

// Controller mirrors one collection.  Every snapshot replaces the whole
// dataset; a failed notification is logged and the last good dataset stays.
type Controller struct {
	coll  model.Collection
	store docstore.Store
	order docstore.Order
	log   *zap.Logger

	mu       sync.RWMutex
	state    State
	records  []model.Record
	version  uint64
	lastErr  error
	syncedAt time.Time
	sub      *docstore.Subscription
	watchers map[chan uint64]struct{}
	loopDone chan struct{}
}

// New returns an uninitialized controller for coll.
func New(coll model.Collection, store docstore.Store, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		coll:     coll,
		store:    store,
		order:    docstore.DefaultOrder,
		log:      log.With(zap.String("collection", coll.Name)),
		watchers: make(map[chan uint64]struct{}),
	}
}

// Collection returns the configuration the controller was built with.
func (c *Controller) Collection() model.Collection { return c.coll }

// Initialize opens the live subscription ordered by createdAt descending.
// ctx bounds the subscription's lifetime as well as Close does.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateTornDown:
		return ErrTornDown
	case StateSubscribed, StateUpdated:
		return ErrAlreadyInitialized
	}
	sub, err := c.store.Subscribe(ctx, c.coll.Name, c.order)
	if err != nil {
		return err
	}
	c.sub = sub
	c.state = StateSubscribed
	c.loopDone = make(chan struct{})
	go c.loop(sub)
	return nil
}

func (c *Controller) loop(sub *docstore.Subscription) {
	defer close(c.loopDone)
	for ev := range sub.Events() {
		if ev.Err != nil {
			c.log.Error("snapshot error, keeping last good data", zap.Error(ev.Err))
			c.mu.Lock()
			c.lastErr = ev.Err
			c.mu.Unlock()
			continue
		}
		c.apply(ev.Snapshot)
	}
}

func (c *Controller) apply(docs []docstore.Document) {
	records := make([]model.Record, len(docs))
	for i, d := range docs {
		records[i] = model.NewRecord(d.ID, d.Data, d.CreatedAt, d.UpdatedAt)
	}
	c.mu.Lock()
	if c.state == StateTornDown {
		c.mu.Unlock()
		return
	}
	c.records = records
	c.version++
	c.lastErr = nil
	c.syncedAt = time.Now().UTC()
	c.state = StateUpdated
	v := c.version
	for ch := range c.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
	c.mu.Unlock()
	c.log.Debug("snapshot applied", zap.Int("records", len(records)), zap.Uint64("version", v))
}

// Close tears the subscription down and waits for the event loop to exit.
// It is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state == StateTornDown {
		c.mu.Unlock()
		return
	}
	sub, done := c.sub, c.loopDone
	c.state = StateTornDown
	for ch := range c.watchers {
		close(ch)
	}
	c.watchers = map[chan uint64]struct{}{}
	c.mu.Unlock()
	if sub != nil {
		sub.Close()
		<-done
	}
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Version counts applied snapshots.
func (c *Controller) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// LastError is the error of the most recent notification, nil after a
// successful one.
func (c *Controller) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Records returns the current dataset in store order.
func (c *Controller) Records() []model.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Record(nil), c.records...)
}

// Record looks up one record of the current dataset.
func (c *Controller) Record(id string) (model.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.records {
		if r.ID == id {
			return r, true
		}
	}
	return model.Record{}, false
}

// View derives the view of q over the current dataset.
func (c *Controller) View(q Query) View {
	return Derive(c.Records(), c.coll.Fields, c.coll.Total, q)
}

// ExportSet returns the rows an export serializes: the whole dataset in store
// order, or with ExportFiltered the rows matching q in view order.  Neither
// is paginated.
func (c *Controller) ExportSet(q Query) []Row {
	search, order := q.Search, q.Sort
	if c.coll.ExportScope != model.ExportFiltered {
		search, order = "", Sort{}
	}
	rows := Filter(c.Records(), c.coll.Fields, c.coll.Total, search)
	SortRows(rows, c.coll.Fields, order)
	return rows
}

// Changes returns a channel receiving the version of every new snapshot and
// a function to stop watching.  The channel is closed when the controller
// is torn down.
func (c *Controller) Changes() (<-chan uint64, func()) {
	ch := make(chan uint64, 1)
	c.mu.Lock()
	if c.state == StateTornDown {
		close(ch)
		c.mu.Unlock()
		return ch, func() {}
	}
	c.watchers[ch] = struct{}{}
	c.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, ch)
			c.mu.Unlock()
		})
	}
}

// Status summarizes the controller for health reporting.
type Status struct {
	Collection string    `json:"collection"`
	State      string    `json:"state"`
	Version    uint64    `json:"version"`
	Records    int       `json:"records"`
	SyncedAt   time.Time `json:"syncedAt"`
	LastError  string    `json:"lastError,omitempty"`
}

func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Status{
		Collection: c.coll.Name,
		State:      c.state.String(),
		Version:    c.version,
		Records:    len(c.records),
		SyncedAt:   c.syncedAt,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}
