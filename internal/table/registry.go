package table

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/estock/internal/docstore"
	"github.com/iliyamo/estock/internal/model"
)

// Registry holds one live controller per catalog collection.
type Registry struct {
	controllers map[string]*Controller
	order       []string
	log         *zap.Logger
}

// NewRegistry builds (but does not start) a controller per collection.
func NewRegistry(catalog []model.Collection, store docstore.Store, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{controllers: make(map[string]*Controller, len(catalog)), log: log}
	for _, c := range catalog {
		r.controllers[c.Name] = New(c, store, log)
		r.order = append(r.order, c.Name)
	}
	return r
}

// Start initializes every controller concurrently.  If any fails, the ones
// already started are closed.  Cancelling ctx aborts the start only; the
// subscriptions live until Close.
func (r *Registry) Start(ctx context.Context) error {
	life := context.WithoutCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range r.order {
		c := r.controllers[name]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := c.Initialize(life); err != nil {
				return fmt.Errorf("start %s: %w", c.coll.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.Close()
		return err
	}
	r.log.Info("table controllers started", zap.Strings("collections", r.order))
	return nil
}

// Close tears every controller down.
func (r *Registry) Close() {
	for _, c := range r.controllers {
		c.Close()
	}
}

// Get returns the controller of collection name.
func (r *Registry) Get(name string) (*Controller, bool) {
	c, ok := r.controllers[name]
	return c, ok
}

// Collections lists the catalog in configuration order.
func (r *Registry) Collections() []model.Collection {
	out := make([]model.Collection, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.controllers[name].coll)
	}
	return out
}

// Statuses reports every controller, sorted by collection name.
func (r *Registry) Statuses() []Status {
	out := make([]Status, 0, len(r.controllers))
	for _, c := range r.controllers {
		out = append(out, c.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Collection < out[j].Collection })
	return out
}
