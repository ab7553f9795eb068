// Package query exposes read models to callers. Views are read-only and may
// lag behind the latest committed event; results converge once the owning
// projection catches up.
package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// View produces a snapshot of one read model. Implementations must not
// mutate the model; that right belongs to the projection runner alone.
type View interface {
	Snapshot(ctx context.Context, params map[string]string) (any, error)
}

type ViewFunction func(ctx context.Context, params map[string]string) (any, error)

func (f ViewFunction) Snapshot(ctx context.Context, params map[string]string) (any, error) {
	return f(ctx, params)
}

type ViewNotFoundError struct {
	View string
}

func (e *ViewNotFoundError) Error() string {
	return fmt.Sprintf("unknown view: %s", e.View)
}

func IsViewNotFound(err error) bool {
	var notFound *ViewNotFoundError
	return errors.As(err, &notFound)
}

func NewRegistry() *Registry {
	return &Registry{views: map[string]View{}}
}

type Registry struct {
	mu    sync.RWMutex
	views map[string]View
}

func (r *Registry) Register(name string, view View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views[name] = view
}

func (r *Registry) Query(ctx context.Context, name string, params map[string]string) (any, error) {
	r.mu.RLock()
	view := r.views[name]
	r.mu.RUnlock()

	if view == nil {
		return nil, &ViewNotFoundError{View: name}
	}

	return view.Snapshot(ctx, params)
}
