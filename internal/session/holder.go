package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/estock/internal/docstore"
	"github.com/iliyamo/estock/internal/model"
)

// Holder owns the current Session of one long-lived consumer (a stream, a
// controller).  Replace swaps the whole value and wakes every watcher;
// nobody mutates a Session in place.
type Holder struct {
	mu       sync.Mutex
	cur      Session
	watchers map[chan Session]struct{}
}

func NewHolder(initial Session) *Holder {
	return &Holder{cur: initial, watchers: make(map[chan Session]struct{})}
}

// Current returns the session in effect.
func (h *Holder) Current() Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur
}

// Replace installs s.  Watchers that have not consumed the previous value
// only ever see the latest one.
func (h *Holder) Replace(s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cur = s
	for ch := range h.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// Watch returns a channel receiving every replacement and a function that
// stops watching.
func (h *Holder) Watch() (<-chan Session, func()) {
	ch := make(chan Session, 1)
	h.mu.Lock()
	h.watchers[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.watchers, ch)
			h.mu.Unlock()
		})
	}
}

// Follow keeps h in step with the users/{uid} profile until ctx ends: every
// role or disabled change replaces the session.  Read errors are logged and
// leave the current session in place.
func Follow(ctx context.Context, store docstore.Store, h *Holder, log *zap.Logger) error {
	sub, err := store.SubscribeDocument(ctx, model.CollectionUsers, h.Current().UID)
	if err != nil {
		return err
	}
	go func() {
		defer sub.Close()
		for ev := range sub.Events() {
			if ev.Err != nil {
				log.Warn("profile subscription error", zap.Error(ev.Err))
				continue
			}
			cur := h.Current()
			next := cur
			next.Role, next.Disabled = model.RoleViewer, false
			if len(ev.Snapshot) == 1 {
				d := ev.Snapshot[0]
				p := model.ProfileFromData(d.ID, d.Data, d.CreatedAt, d.UpdatedAt)
				next.Role, next.Disabled = p.Role, p.Disabled
				if p.DisplayName != "" {
					next.DisplayName = p.DisplayName
				}
			}
			if next.Role != cur.Role || next.Disabled != cur.Disabled || next.DisplayName != cur.DisplayName {
				next.ResolvedAt = time.Now().UTC()
				h.Replace(next)
			}
		}
	}()
	return nil
}
