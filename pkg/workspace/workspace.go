package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/protocol"
)

// ErrClosed is returned when a closed workspace is asked to do work.
var ErrClosed = errors.New("workspace closed")

// Library is a component catalog able to execute its components.
type Library interface {
	ports.ComponentRunner
	ports.ComponentCatalog
}

// Workspace is one live, shared graph.
type Workspace struct {
	id   string
	flow *domain.Flow

	library Library
	logger  *slog.Logger
	hooks   domain.LifecycleHooks
	version string

	manager *protocol.Manager

	clientsMu sync.RWMutex
	clients   []ports.Client

	enginesMu sync.Mutex
	engines   map[string]*activeRun
	runs      sync.WaitGroup

	inbox     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

type activeRun struct {
	engine *runtime.Engine
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLibrary sets the component library used to run nodes.
func WithLibrary(lib Library) Option {
	return func(w *Workspace) {
		w.library = lib
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workspace) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithLifecycleHooks sets the hooks passed to every run.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(w *Workspace) {
		w.hooks = hooks
	}
}

// WithVersion sets the version reported to clients.
func WithVersion(v string) Option {
	return func(w *Workspace) {
		w.version = v
	}
}

// New starts a workspace around flow. The workspace id is the flow id.
func New(flow *domain.Flow, opts ...Option) *Workspace {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Workspace{
		id:      flow.ID(),
		flow:    flow,
		logger:  logging.NewNop(),
		version: "dev",
		engines: make(map[string]*activeRun),
		inbox:   make(chan func()),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("workspace", w.id)
	w.manager = protocol.NewManager(w, protocol.WithLogger(w.logger), protocol.WithVersion(w.version))
	go w.loop()
	return w
}

func (w *Workspace) loop() {
	defer close(w.done)
	for {
		select {
		case job := <-w.inbox:
			job()
		case <-w.quit:
			return
		}
	}
}

// Do runs fn on the workspace goroutine and waits for it.
func (w *Workspace) Do(ctx context.Context, fn func(context.Context) error) error {
	result := make(chan error, 1)
	job := func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.ErrorContext(ctx, "workspace job panicked", "panic", r)
				result <- fmt.Errorf("workspace job panicked: %v", r)
			}
		}()
		result <- fn(ctx)
	}

	select {
	case w.inbox <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.quit:
		return ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle applies one inbound protocol message from client.
func (w *Workspace) Handle(ctx context.Context, client ports.Client, raw []byte) error {
	return w.Do(ctx, func(ctx context.Context) error {
		w.manager.Handle(ctx, client, raw)
		return nil
	})
}

// Manager returns the protocol manager of the workspace.
func (w *Workspace) Manager() *protocol.Manager { return w.manager }

func (w *Workspace) UUID() string       { return w.id }
func (w *Workspace) Name() string       { return w.flow.Name() }
func (w *Workspace) Library() string    { return w.flow.Library() }
func (w *Workspace) Flow() *domain.Flow { return w.flow }

// Components lists the library components.
func (w *Workspace) Components() []ports.ComponentInfo {
	if w.library == nil {
		return nil
	}
	return w.library.Components()
}

// Document snapshots the flow on the workspace goroutine.
func (w *Workspace) Document(ctx context.Context) (domain.FlowDocument, error) {
	var doc domain.FlowDocument
	err := w.Do(ctx, func(context.Context) error {
		doc = w.flow.Document()
		return nil
	})
	return doc, err
}

// Connect registers a client. Connecting the same id twice replaces it.
func (w *Workspace) Connect(c ports.Client) {
	w.clientsMu.Lock()
	defer w.clientsMu.Unlock()
	w.clients = slices.DeleteFunc(w.clients, func(o ports.Client) bool { return o.ID() == c.ID() })
	w.clients = append(w.clients, c)
	w.logger.Debug("client connected", "client", c.ID(), "clients", len(w.clients))
}

// Disconnect forgets the client with the given id.
func (w *Workspace) Disconnect(id string) {
	w.clientsMu.Lock()
	defer w.clientsMu.Unlock()
	w.clients = slices.DeleteFunc(w.clients, func(o ports.Client) bool { return o.ID() == id })
	w.logger.Debug("client disconnected", "client", id, "clients", len(w.clients))
}

// Clients returns the connected clients in connection order.
func (w *Workspace) Clients() []ports.Client {
	w.clientsMu.RLock()
	defer w.clientsMu.RUnlock()
	return slices.Clone(w.clients)
}

// Run starts a run of graph in the background. network/stopped is broadcast
// when it ends.
func (w *Workspace) Run(_ context.Context, graph string) error {
	run, err := w.prepare(graph)
	if err != nil {
		return err
	}
	w.runs.Add(1)
	go func() {
		defer w.runs.Done()
		w.execute(graph, run)
	}()
	return nil
}

// Execute runs graph and blocks until the run ends. Cancelling ctx stops it.
func (w *Workspace) Execute(ctx context.Context, graph string) error {
	run, err := w.prepare(graph)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, run.cancel)
	defer stop()
	return w.execute(graph, run)
}

func (w *Workspace) prepare(graph string) (*activeRun, error) {
	g, ok := w.flow.Graph(graph)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownGraph, graph)
	}

	w.enginesMu.Lock()
	defer w.enginesMu.Unlock()
	if w.ctx.Err() != nil {
		return nil, ErrClosed
	}
	if _, busy := w.engines[graph]; busy || g.Status().IsRunning() {
		return nil, domain.ErrAlreadyRunning
	}

	var runner ports.ComponentRunner
	if w.library != nil {
		runner = w.library
	}
	engine := runtime.NewEngine(g, w.flow.ScopeNodes(g), runner,
		runtime.WithLogger(w.logger),
		runtime.WithWorkspace(w.id),
		runtime.WithLifecycleHooks(w.hooks),
		runtime.WithNodeStopper(w.StopNode),
		runtime.WithNodeUpdates(func(n *domain.Node) {
			w.manager.SendNodeUpdate(w.ctx, n)
		}),
	)
	ctx, cancel := context.WithCancel(w.ctx)
	run := &activeRun{engine: engine, ctx: ctx, cancel: cancel}
	w.engines[graph] = run
	return run, nil
}

func (w *Workspace) execute(graph string, run *activeRun) error {
	defer func() {
		run.cancel()
		w.enginesMu.Lock()
		if w.engines[graph] == run {
			delete(w.engines, graph)
		}
		w.enginesMu.Unlock()
		w.manager.RunEnded(w.ctx, graph)
	}()

	err := run.engine.Run(run.ctx)
	switch {
	case err == nil:
		w.logger.Info("run completed", "graph", graph)
	case errors.Is(err, runtime.ErrStopped):
		w.logger.Info("run stopped", "graph", graph)
	default:
		w.logger.Warn("run failed to start", "graph", graph, "error", err)
	}
	return err
}

// Stop stops the active run of graph. Stopping an idle graph is a no-op.
func (w *Workspace) Stop(graph string) error {
	if _, ok := w.flow.Graph(graph); !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownGraph, graph)
	}
	w.enginesMu.Lock()
	run, ok := w.engines[graph]
	w.enginesMu.Unlock()
	if !ok {
		return nil
	}
	run.cancel()
	run.engine.Stop()
	return nil
}

// IsRunning reports whether graph is currently running.
func (w *Workspace) IsRunning(graph string) (bool, error) {
	g, ok := w.flow.Graph(graph)
	if !ok {
		return false, fmt.Errorf("%w: %s", domain.ErrUnknownGraph, graph)
	}
	return g.Status().IsRunning(), nil
}

// StopNode forcibly stops a node: its unit is interrupted in every active
// run and the library is asked to kill whatever executes it.
func (w *Workspace) StopNode(n *domain.Node) {
	w.enginesMu.Lock()
	runs := make([]*activeRun, 0, len(w.engines))
	for _, r := range w.engines {
		runs = append(runs, r)
	}
	w.enginesMu.Unlock()

	for _, r := range runs {
		r.engine.Interrupt(n)
	}

	stopper, ok := w.library.(ports.NodeStopper)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stopper.StopNode(ctx, w.id, n.ID()); err != nil {
		w.logger.Warn("failed to stop node", "node", n.ID(), "error", err)
	}
}

// Close stops every run and the workspace goroutine. It waits for background
// runs to end or ctx to be done.
func (w *Workspace) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		w.enginesMu.Lock()
		runs := make([]*activeRun, 0, len(w.engines))
		for _, r := range w.engines {
			runs = append(runs, r)
		}
		w.cancel()
		w.enginesMu.Unlock()

		for _, r := range runs {
			r.engine.Stop()
		}
		close(w.quit)
	})

	finished := make(chan struct{})
	go func() {
		w.runs.Wait()
		<-w.done
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
