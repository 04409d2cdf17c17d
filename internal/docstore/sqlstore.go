package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SQLStore keeps documents in the `documents` table of a MySQL or SQLite
// database.  Bodies are stored as JSON text and timestamps as Unix
// milliseconds so the same statements run on both drivers.  After every
// committed write the collection is signalled through the Notifier.
type SQLStore struct {
	db       *sql.DB
	notifier Notifier
	log      *zap.Logger
	newID    func() string
	now      func() time.Time
}

// NewSQLStore wires a store over db.  A nil notifier means subscriptions
// only see writes made through this process.
func NewSQLStore(db *sql.DB, notifier Notifier, log *zap.Logger) *SQLStore {
	if notifier == nil {
		notifier = NewLocalNotifier()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLStore{
		db:       db,
		notifier: notifier,
		log:      log,
		newID:    MonotonicIDGenerator(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if !validName(collection, id) {
		return Document{}, ErrInvalidCollection
	}
	return s.get(ctx, s.db, collection, id)
}

func (s *SQLStore) get(ctx context.Context, q queryer, collection, id string) (Document, error) {
	const stmt = "SELECT id, data, created_at, updated_at FROM documents WHERE collection = ? AND id = ?"
	var (
		doc              Document
		raw              string
		created, updated int64
	)
	if err := q.QueryRowContext(ctx, stmt, collection, id).Scan(&doc.ID, &raw, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, errors.Wrapf(err, "get %s/%s", collection, id)
	}
	data, err := decodeBody(raw)
	if err != nil {
		return Document{}, errors.Wrapf(err, "decode %s/%s", collection, id)
	}
	doc.Data = data
	doc.CreatedAt = time.UnixMilli(created).UTC()
	doc.UpdatedAt = time.UnixMilli(updated).UTC()
	return doc, nil
}

func (s *SQLStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := s.newID()
	if !validName(collection, id) {
		return "", ErrInvalidCollection
	}
	body, err := encodeBody(data)
	if err != nil {
		return "", err
	}
	now := s.now().UnixMilli()
	const stmt = "INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)"
	if _, err := s.db.ExecContext(ctx, stmt, collection, id, body, now, now); err != nil {
		return "", errors.Wrapf(err, "create in %s", collection)
	}
	s.notify(ctx, collection)
	return id, nil
}

func (s *SQLStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	return s.Batch(ctx, []Op{UpdateOp(collection, id, partial)})
}

func (s *SQLStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	return s.Batch(ctx, []Op{SetOp(collection, id, data, merge)})
}

func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	return s.Batch(ctx, []Op{DeleteOp(collection, id)})
}

// Batch applies ops inside one transaction.  Any failing operation rolls the
// whole batch back.
func (s *SQLStore) Batch(ctx context.Context, ops []Op) (err error) {
	if len(ops) == 0 {
		return nil
	}
	for _, op := range ops {
		if !validName(op.Collection, op.ID) {
			return ErrInvalidCollection
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin batch")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	now := s.now().UnixMilli()
	for _, op := range ops {
		if err = s.apply(ctx, tx, op, now); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit batch")
	}
	seen := make(map[string]bool, len(ops))
	for _, op := range ops {
		if !seen[op.Collection] {
			seen[op.Collection] = true
			s.notify(ctx, op.Collection)
		}
	}
	return nil
}

func (s *SQLStore) apply(ctx context.Context, tx *sql.Tx, op Op, now int64) error {
	switch op.Kind {
	case OpDelete:
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE collection = ? AND id = ?", op.Collection, op.ID); err != nil {
			return errors.Wrapf(err, "delete %s/%s", op.Collection, op.ID)
		}
		return nil
	case OpUpdate, OpSet:
	default:
		return errors.Errorf("unknown batch op %d", op.Kind)
	}

	existing, err := s.get(ctx, tx, op.Collection, op.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		if op.Kind == OpUpdate {
			return errors.Wrapf(ErrNotFound, "update %s/%s", op.Collection, op.ID)
		}
		body, err := encodeBody(op.Data)
		if err != nil {
			return err
		}
		const ins = "INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)"
		if _, err := tx.ExecContext(ctx, ins, op.Collection, op.ID, body, now, now); err != nil {
			return errors.Wrapf(err, "insert %s/%s", op.Collection, op.ID)
		}
		return nil
	case err != nil:
		return err
	}

	data := op.Data
	if op.Kind == OpUpdate || op.Merge {
		data = mergeData(existing.Data, op.Data)
	}
	body, err := encodeBody(data)
	if err != nil {
		return err
	}
	const upd = "UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?"
	if _, err := tx.ExecContext(ctx, upd, body, now, op.Collection, op.ID); err != nil {
		return errors.Wrapf(err, "update %s/%s", op.Collection, op.ID)
	}
	return nil
}

// List returns every document of the collection in the requested order.
func (s *SQLStore) List(ctx context.Context, collection string, order Order) ([]Document, error) {
	if collection == "" {
		return nil, ErrInvalidCollection
	}
	stmt := "SELECT id, data, created_at, updated_at FROM documents WHERE collection = ? ORDER BY " + orderClause(order)
	rows, err := s.db.QueryContext(ctx, stmt, collection)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", collection)
	}
	defer rows.Close()

	out := make([]Document, 0)
	for rows.Next() {
		var (
			doc              Document
			raw              string
			created, updated int64
		)
		if err := rows.Scan(&doc.ID, &raw, &created, &updated); err != nil {
			return nil, errors.Wrapf(err, "scan %s", collection)
		}
		if doc.Data, err = decodeBody(raw); err != nil {
			return nil, errors.Wrapf(err, "decode %s/%s", collection, doc.ID)
		}
		doc.CreatedAt = time.UnixMilli(created).UTC()
		doc.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "list %s", collection)
	}
	if !systemOrder(order) {
		sortDocuments(out, order)
	}
	return out, nil
}

// Subscribe delivers the current result set immediately and again after
// every change signal.  Read failures are delivered as error events and the
// subscription keeps listening.
func (s *SQLStore) Subscribe(ctx context.Context, collection string, order Order) (*Subscription, error) {
	if collection == "" {
		return nil, ErrInvalidCollection
	}
	changes, stop, err := s.notifier.Listen(ctx, collection)
	if err != nil {
		return nil, err
	}
	return NewSubscription(ctx, func(ctx context.Context, emit func(Event) bool) {
		defer stop()
		for {
			docs, err := s.List(ctx, collection, order)
			if ctx.Err() != nil {
				return
			}
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

// SubscribeDocument re-reads only collection/id on every change signal.
func (s *SQLStore) SubscribeDocument(ctx context.Context, collection, id string) (*Subscription, error) {
	if !validName(collection, id) {
		return nil, ErrInvalidCollection
	}
	changes, stop, err := s.notifier.Listen(ctx, collection)
	if err != nil {
		return nil, err
	}
	return NewSubscription(ctx, func(ctx context.Context, emit func(Event) bool) {
		defer stop()
		for {
			doc, err := s.Get(ctx, collection, id)
			if ctx.Err() != nil {
				return
			}
			if !emit(documentEvent(doc, err)) {
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

func (s *SQLStore) notify(ctx context.Context, collection string) {
	if err := s.notifier.Notify(ctx, collection); err != nil {
		s.log.Warn("change notification failed", zap.String("collection", collection), zap.Error(err))
	}
}

func orderClause(order Order) string {
	dir := " ASC"
	if order.Desc {
		dir = " DESC"
	}
	switch order.Field {
	case OrderUpdatedAt:
		return "updated_at" + dir + ", id" + dir
	case OrderID:
		return "id" + dir
	default:
		return "created_at" + dir + ", id" + dir
	}
}

func encodeBody(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", errors.Wrap(err, "encode document")
	}
	return string(b), nil
}

func decodeBody(raw string) (map[string]any, error) {
	out := map[string]any{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
