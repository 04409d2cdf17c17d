package docstore

import (
	"context"
	"sync"
)

// Event is one notification of a subscription: either the full ordered
// result set of the collection or the error that prevented reading it.
// An error event does not end the subscription.
type Event struct {
	Snapshot []Document
	Err      error
}

// Subscription is a cancellable stream of snapshot events.  The events
// channel is closed once the subscription has fully stopped.
type Subscription struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Producer feeds a subscription until ctx is cancelled.  emit returns false
// once the subscription is closing; the producer should return promptly.
type Producer func(ctx context.Context, emit func(Event) bool)

// NewSubscription starts produce on its own goroutine.  Store
// implementations and test doubles use it to build subscriptions with the
// same teardown behaviour.
func NewSubscription(ctx context.Context, produce Producer) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		events: make(chan Event),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer close(s.events)
		produce(ctx, func(ev Event) bool {
			select {
			case s.events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return s
}

// Events returns the notification stream.
func (s *Subscription) Events() <-chan Event { return s.events }

// Close stops the subscription and waits for its goroutine to exit.  It is
// safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		for range s.events {
		}
		<-s.done
	})
}

// Done is closed after the subscription has stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }
