package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Hub opens, persists and closes workspaces.
// Per-workspace locks are reference counted so unused ones are collected.
type Hub struct {
	store ports.FlowStore

	mu    sync.Mutex            // guards locks
	locks map[string]*lockEntry // active locks

	liveMu sync.RWMutex
	live   map[string]*Workspace

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
	library string
	wsOpts  []Option
}

// HubOption configures the Hub.
type HubOption func(*Hub)

// WithLocker enables distributed locking of store writes.
func WithLocker(locker ports.DistributedLocker) HubOption {
	return func(h *Hub) {
		h.locker = locker
	}
}

// WithLockTTL sets the TTL of distributed locks.
func WithLockTTL(ttl time.Duration) HubOption {
	return func(h *Hub) {
		h.lockTTL = ttl
	}
}

// WithHubLogger configures a logger for the Hub.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithDefaultLibrary names the component library of new workspaces.
func WithDefaultLibrary(name string) HubOption {
	return func(h *Hub) {
		h.library = name
	}
}

// WithWorkspaceOptions sets the options applied to every opened workspace.
func WithWorkspaceOptions(opts ...Option) HubOption {
	return func(h *Hub) {
		h.wsOpts = append(h.wsOpts, opts...)
	}
}

// NewHub creates a Hub persisting to store.
func NewHub(store ports.FlowStore, opts ...HubOption) *Hub {
	h := &Hub{
		store:   store,
		locks:   make(map[string]*lockEntry),
		live:    make(map[string]*Workspace),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(),
		library: "core",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(id) after unlocking.
func (h *Hub) acquire(id string) *lockEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, exists := h.locks[id]
	if !exists {
		entry = &lockEntry{}
		h.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (h *Hub) release(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, exists := h.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(h.locks, id)
	}
}

// WithLock executes fn while holding the lock for the workspace.
func (h *Hub) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := h.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		h.release(id)
	}()

	if h.locker != nil {
		unlock, err := h.locker.Lock(ctx, id, h.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				h.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"workspace", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Open returns the live workspace with the given id, rebuilding it from the
// store or creating it when needed. An empty id creates a new workspace.
func (h *Hub) Open(ctx context.Context, id, name string) (*Workspace, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if ws, ok := h.Get(id); ok {
		return ws, nil
	}

	var ws *Workspace
	err := h.WithLock(ctx, id, func(ctx context.Context) error {
		if live, ok := h.Get(id); ok {
			ws = live
			return nil
		}

		doc, err := h.store.Load(ctx, id)
		var flow *domain.Flow
		switch {
		case err == nil:
			flow, err = domain.FlowFromDocument(doc)
			if err != nil {
				return fmt.Errorf("failed to rebuild workspace %s: %w", id, err)
			}
		case errors.Is(err, domain.ErrWorkspaceNotFound):
			if name == "" {
				name = id
			}
			flow = domain.NewFlow(id, name, h.library)
			if err := h.store.Save(ctx, id, flow.Document()); err != nil {
				return fmt.Errorf("failed to initialize workspace: %w", err)
			}
		default:
			return fmt.Errorf("failed to check workspace existence: %w", err)
		}

		ws = New(flow, h.wsOpts...)
		h.liveMu.Lock()
		h.live[id] = ws
		h.liveMu.Unlock()
		h.logger.Info("workspace opened", "workspace", id, "nodes", len(flow.Nodes()))
		return nil
	})
	return ws, err
}

// Get returns a live workspace.
func (h *Hub) Get(id string) (*Workspace, bool) {
	h.liveMu.RLock()
	defer h.liveMu.RUnlock()
	ws, ok := h.live[id]
	return ws, ok
}

// Save persists the current graph of a live workspace.
func (h *Hub) Save(ctx context.Context, id string) error {
	ws, ok := h.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrWorkspaceNotFound, id)
	}
	doc, err := ws.Document(ctx)
	if err != nil {
		return err
	}
	return h.WithLock(ctx, id, func(ctx context.Context) error {
		return h.store.Save(ctx, id, doc)
	})
}

// Load returns the stored document of a workspace.
func (h *Hub) Load(ctx context.Context, id string) (domain.FlowDocument, error) {
	var doc domain.FlowDocument
	err := h.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		doc, err = h.store.Load(ctx, id)
		return err
	})
	return doc, err
}

// Delete closes the workspace if live and removes it from the store.
func (h *Hub) Delete(ctx context.Context, id string) error {
	if err := h.closeLive(ctx, id); err != nil {
		return err
	}
	return h.WithLock(ctx, id, func(ctx context.Context) error {
		return h.store.Delete(ctx, id)
	})
}

// List returns the ids of stored and live workspaces.
func (h *Hub) List(ctx context.Context) ([]string, error) {
	stored, err := h.store.List(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(stored))
	ids := make([]string, 0, len(stored))
	for _, id := range stored {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	h.liveMu.RLock()
	for id := range h.live {
		if _, dup := seen[id]; !dup {
			ids = append(ids, id)
		}
	}
	h.liveMu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

// Close saves and closes a live workspace.
func (h *Hub) Close(ctx context.Context, id string) error {
	if err := h.Save(ctx, id); err != nil {
		return err
	}
	return h.closeLive(ctx, id)
}

// Shutdown saves and closes every live workspace.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.liveMu.RLock()
	ids := make([]string, 0, len(h.live))
	for id := range h.live {
		ids = append(ids, id)
	}
	h.liveMu.RUnlock()

	var errs []error
	for _, id := range ids {
		if err := h.Close(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Store returns the underlying flow store.
func (h *Hub) Store() ports.FlowStore {
	return h.store
}

func (h *Hub) closeLive(ctx context.Context, id string) error {
	h.liveMu.Lock()
	ws, ok := h.live[id]
	delete(h.live, id)
	h.liveMu.Unlock()
	if !ok {
		return nil
	}
	return ws.Close(ctx)
}
