package docstore

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Notifier carries "collection changed" signals from writers to
// subscriptions.  Signals carry no payload: a listener re-reads the
// collection, so coalescing several signals into one is always safe.
type Notifier interface {
	Notify(ctx context.Context, collection string) error
	// Listen returns a channel that receives a value after each change and
	// a stop function that releases the listener.
	Listen(ctx context.Context, collection string) (<-chan struct{}, func(), error)
}

// signal performs a non-blocking send; a pending signal already means
// "re-read".
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// LocalNotifier fans signals out to listeners of the same process.  It is
// used when no Redis server is configured and by the in-memory store.
type LocalNotifier struct {
	mu        sync.Mutex
	listeners map[string]map[chan struct{}]struct{}
}

// NewLocalNotifier returns an empty in-process notifier.
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{listeners: make(map[string]map[chan struct{}]struct{})}
}

func (n *LocalNotifier) Notify(_ context.Context, collection string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.listeners[collection] {
		signal(ch)
	}
	return nil
}

func (n *LocalNotifier) Listen(_ context.Context, collection string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	if n.listeners[collection] == nil {
		n.listeners[collection] = make(map[chan struct{}]struct{})
	}
	n.listeners[collection][ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners[collection], ch)
			if len(n.listeners[collection]) == 0 {
				delete(n.listeners, collection)
			}
			n.mu.Unlock()
		})
	}
	return ch, stop, nil
}

// RedisNotifier publishes change signals on Redis pub/sub so that every
// application instance sharing the database refreshes its subscriptions.
type RedisNotifier struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisNotifier returns a notifier publishing on channels
// "<prefix>:<collection>".
func NewRedisNotifier(rdb *redis.Client, prefix string) *RedisNotifier {
	if prefix == "" {
		prefix = "docstore"
	}
	return &RedisNotifier{rdb: rdb, prefix: prefix}
}

func (n *RedisNotifier) channel(collection string) string { return n.prefix + ":" + collection }

func (n *RedisNotifier) Notify(ctx context.Context, collection string) error {
	if err := n.rdb.Publish(ctx, n.channel(collection), "changed").Err(); err != nil {
		return errors.Wrapf(err, "publish change for %s", collection)
	}
	return nil
}

func (n *RedisNotifier) Listen(ctx context.Context, collection string) (<-chan struct{}, func(), error) {
	ps := n.rdb.Subscribe(ctx, n.channel(collection))
	// Receive blocks until the subscription is confirmed so no change
	// published after Listen returns can be missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, errors.Wrapf(err, "subscribe to %s", collection)
	}
	out := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range ps.Channel() {
			signal(out)
		}
	}()
	var once sync.Once
	stop := func() {
		once.Do(func() {
			_ = ps.Close()
			<-done
		})
	}
	return out, stop, nil
}
