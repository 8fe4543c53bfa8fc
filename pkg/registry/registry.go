package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// ComponentFunc is an in-process component implementation.
// It blocks until the work is done and must return once ctx is cancelled.
type ComponentFunc func(ctx context.Context, req ports.ComponentRequest) error

type entry struct {
	info   ports.ComponentInfo
	runner ports.ComponentRunner
}

// Registry is the component library of a workspace. It routes component
// executions by name and lists what it offers.
type Registry struct {
	mu         sync.RWMutex
	name       string
	components map[string]entry
	stoppers   []ports.NodeStopper
}

// NewRegistry creates a new empty library with the given name.
func NewRegistry(name string) *Registry {
	return &Registry{
		name:       name,
		components: make(map[string]entry),
	}
}

// Name returns the library name.
func (r *Registry) Name() string {
	return r.name
}

// Register adds an in-process component.
// If a component with the same name exists, it is overwritten.
func (r *Registry) Register(info ports.ComponentInfo, fn ComponentFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[info.Name] = entry{info: info, runner: funcRunner(fn)}
}

// Mount routes the components described by catalog to runner. Runners that
// can forcibly stop nodes are also consulted by StopNode.
func (r *Registry) Mount(runner ports.ComponentRunner, catalog ports.ComponentCatalog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, info := range catalog.Components() {
		r.components[info.Name] = entry{info: info, runner: runner}
	}
	if s, ok := runner.(ports.NodeStopper); ok && !slices.Contains(r.stoppers, s) {
		r.stoppers = append(r.stoppers, s)
	}
}

// Lookup returns the description of a component.
func (r *Registry) Lookup(name string) (ports.ComponentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.components[name]
	return e.info, ok
}

// Components lists every registered component sorted by name.
func (r *Registry) Components() []ports.ComponentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ports.ComponentInfo, 0, len(r.components))
	for _, e := range r.components {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RunComponent executes the named component.
// Returns domain.ErrComponentNotFound if it is not registered.
func (r *Registry) RunComponent(ctx context.Context, req ports.ComponentRequest) error {
	r.mu.RLock()
	e, ok := r.components[req.Component]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrComponentNotFound, req.Component)
	}
	return e.runner.RunComponent(ctx, req)
}

// StopNode asks every mounted runner able to do so to stop the node.
func (r *Registry) StopNode(ctx context.Context, workspace, nodeID string) error {
	r.mu.RLock()
	stoppers := slices.Clone(r.stoppers)
	r.mu.RUnlock()

	var errs []error
	for _, s := range stoppers {
		if err := s.StopNode(ctx, workspace, nodeID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type funcRunner ComponentFunc

func (f funcRunner) RunComponent(ctx context.Context, req ports.ComponentRequest) error {
	return f(ctx, req)
}
