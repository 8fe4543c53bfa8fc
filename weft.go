package weft

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/observability"
	"github.com/aretw0/weft/pkg/persistence/middleware"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/aretw0/weft/pkg/workspace"
)

// ErrStopped is returned by Execute when the run was stopped or its context
// cancelled before every node finished.
var ErrStopped = runtime.ErrStopped

// Runtime is the high-level entry point for the Weft library.
// It wires a store, a component library and the observability hooks into a
// workspace Hub.
type Runtime struct {
	hub     *workspace.Hub
	store   ports.FlowStore
	library workspace.Library
	logger  *slog.Logger
	metrics *observability.Metrics
	gather  prometheus.Gatherer
	chained domain.LifecycleHooks

	middlewares []middleware.Middleware
	hooks       []domain.LifecycleHooks
	locker      ports.DistributedLocker
	lockTTL     time.Duration
	registry    *prometheus.Registry
	closers     []io.Closer
}

// Option defines a functional option for configuring the Runtime.
type Option func(*Runtime)

// WithStore sets where workspace documents are persisted (default: memory).
func WithStore(store ports.FlowStore) Option {
	return func(r *Runtime) {
		r.store = store
	}
}

// WithStoreMiddleware wraps the store. The first middleware is the outermost.
func WithStoreMiddleware(mws ...middleware.Middleware) Option {
	return func(r *Runtime) {
		r.middlewares = append(r.middlewares, mws...)
	}
}

// WithLibrary sets the component library (default: the core components).
func WithLibrary(lib workspace.Library) Option {
	return func(r *Runtime) {
		r.library = lib
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks on every run.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runtime) {
		r.hooks = append(r.hooks, hooks)
	}
}

// WithLocker serializes store writes across processes.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(r *Runtime) {
		r.locker = locker
		r.lockTTL = ttl
	}
}

// WithMetrics registers the prometheus collectors on reg.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(r *Runtime) {
		r.registry = reg
	}
}

// WithCloser releases c when the Runtime is closed.
func WithCloser(c io.Closer) Option {
	return func(r *Runtime) {
		if c != nil {
			r.closers = append(r.closers, c)
		}
	}
}

// New initializes a Runtime.
func New(opts ...Option) (*Runtime, error) {
	r := &Runtime{}
	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if r.store == nil {
		r.store = memory.NewStore()
	}
	if r.library == nil {
		r.library = registry.NewCore()
	}

	hooks := append([]domain.LifecycleHooks{observability.LoggingHooks(r.logger)}, r.hooks...)
	if r.registry != nil {
		m, err := observability.NewMetrics(r.registry)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		r.metrics = m
		r.gather = r.registry
		hooks = append(hooks, m.Hooks())
	}

	r.chained = domain.ChainHooks(hooks...)
	version := strings.TrimSpace(Version)
	r.store = middleware.Chain(r.store, r.middlewares...)
	hubOpts := []workspace.HubOption{
		workspace.WithHubLogger(r.logger),
		workspace.WithWorkspaceOptions(
			workspace.WithLibrary(r.library),
			workspace.WithLogger(r.logger),
			workspace.WithLifecycleHooks(r.chained),
			workspace.WithVersion(version),
		),
	}
	if named, ok := r.library.(interface{ Name() string }); ok {
		hubOpts = append(hubOpts, workspace.WithDefaultLibrary(named.Name()))
	}
	if r.locker != nil {
		hubOpts = append(hubOpts, workspace.WithLocker(r.locker))
		if r.lockTTL > 0 {
			hubOpts = append(hubOpts, workspace.WithLockTTL(r.lockTTL))
		}
	}
	r.hub = workspace.NewHub(r.store, hubOpts...)
	return r, nil
}

// Hub returns the workspace hub.
func (r *Runtime) Hub() *workspace.Hub { return r.hub }

// Library returns the component library.
func (r *Runtime) Library() workspace.Library { return r.library }

// Logger returns the logger the Runtime was built with.
func (r *Runtime) Logger() *slog.Logger { return r.logger }

// MetricsHandler serves the registered collectors, or returns nil when
// metrics are disabled.
func (r *Runtime) MetricsHandler() http.Handler {
	if r.gather == nil {
		return nil
	}
	return observability.Handler(r.gather)
}

// Report is the outcome of Execute.
type Report struct {
	Graph string
	// States holds the final state of every node of the executed scope.
	States   map[string]domain.NodeState
	Duration time.Duration
}

// Unfinished returns, sorted, the ids of the nodes that did not finish.
func (rep *Report) Unfinished() []string {
	var ids []string
	for id, s := range rep.States {
		if s != domain.NodeFinished {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Execute runs graph of doc in a workspace that is never persisted and
// blocks until the run ends. An empty graph runs the whole flow. hooks are
// called after the ones the Runtime was built with.
func (r *Runtime) Execute(ctx context.Context, doc domain.FlowDocument, graph string, hooks ...domain.LifecycleHooks) (*Report, error) {
	flow, err := domain.FlowFromDocument(doc)
	if err != nil {
		return nil, err
	}
	if graph == "" {
		graph = flow.ID()
	}

	ws := workspace.New(flow,
		workspace.WithLibrary(r.library),
		workspace.WithLogger(r.logger),
		workspace.WithLifecycleHooks(domain.ChainHooks(append([]domain.LifecycleHooks{r.chained}, hooks...)...)),
		workspace.WithVersion(strings.TrimSpace(Version)),
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ws.Close(closeCtx)
	}()

	g, ok := flow.Graph(graph)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownGraph, graph)
	}

	start := time.Now()
	runErr := ws.Execute(ctx, graph)
	rep := &Report{
		Graph:    graph,
		States:   make(map[string]domain.NodeState),
		Duration: time.Since(start),
	}
	for _, n := range flow.ScopeNodes(g) {
		rep.States[n.ID()] = n.State()
	}
	return rep, runErr
}

// Close saves and closes every live workspace, then releases the store.
func (r *Runtime) Close(ctx context.Context) error {
	errs := []error{r.hub.Shutdown(ctx)}
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i].Close())
	}
	return errors.Join(errs...)
}
