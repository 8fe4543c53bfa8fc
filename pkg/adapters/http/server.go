// Package http exposes workspaces over HTTP: protocol messages are posted as
// JSON envelopes and broadcasts are streamed back with Server-Sent Events.
package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/internal/presentation/graph"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/protocol"
	"github.com/aretw0/weft/pkg/workspace"
)

// maxMessageSize bounds the body of a posted protocol message.
const maxMessageSize = 1 << 20

// Server serves the workspaces of a Hub.
type Server struct {
	hub        *workspace.Hub
	logger     *slog.Logger
	version    string
	metrics    http.Handler
	bufferSize int
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithStreamBuffer sets how many messages an SSE subscriber may lag behind
// before messages are dropped.
func WithStreamBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// NewHandler creates the HTTP handler for hub.
func NewHandler(hub *workspace.Hub, opts ...Option) http.Handler {
	s := &Server{
		hub:        hub,
		logger:     logging.NewNop(),
		version:    "dev",
		bufferSize: 64,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.getHealth)
	r.Get("/info", s.getInfo)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Route("/workspaces", func(r chi.Router) {
		r.Get("/", s.listWorkspaces)
		r.Route("/{id}", func(r chi.Router) {
			r.Post("/", s.openWorkspace)
			r.Get("/graph", s.getGraph)
			r.Get("/document", s.getDocument)
			r.Post("/messages", s.postMessage)
			r.Get("/events", s.subscribeEvents)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "weft-http",
		"version": strings.TrimSpace(s.version),
	})
}

func (s *Server) listWorkspaces(w http.ResponseWriter, r *http.Request) {
	ids, err := s.hub.List(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		s.logger.Error("list workspaces failed", "err", err)
		return
	}
	s.writeJSON(w, http.StatusOK, ids)
}

// WorkspaceInfo describes an opened workspace.
type WorkspaceInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Library string `json:"library"`
	Clients int    `json:"clients"`
}

type openRequest struct {
	Name string `json:"name"`
}

func (s *Server) openWorkspace(w http.ResponseWriter, r *http.Request) {
	var body openRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxMessageSize)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	ws, err := s.hub.Open(r.Context(), chi.URLParam(r, "id"), body.Name)
	if err != nil {
		s.fail(w, "open", err)
		return
	}
	s.writeJSON(w, http.StatusOK, WorkspaceInfo{
		ID:      ws.UUID(),
		Name:    ws.Name(),
		Library: ws.Library(),
		Clients: len(ws.Clients()),
	})
}

// existing returns the live workspace, opening it from the store if needed.
// Unknown ids are not created.
func (s *Server) existing(r *http.Request) (*workspace.Workspace, error) {
	id := chi.URLParam(r, "id")
	if ws, ok := s.hub.Get(id); ok {
		return ws, nil
	}
	if _, err := s.hub.Load(r.Context(), id); err != nil {
		return nil, err
	}
	return s.hub.Open(r.Context(), id, "")
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrWorkspaceNotFound):
		http.Error(w, "Workspace not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidDocument):
		http.Error(w, fmt.Sprintf("%s error: %v", op, err), http.StatusUnprocessableEntity)
	default:
		http.Error(w, fmt.Sprintf("%s error: %v", op, err), http.StatusInternalServerError)
		s.logger.Error("request failed", "op", op, "err", err)
	}
}

func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	ws, err := s.existing(r)
	if err != nil {
		s.fail(w, "graph", err)
		return
	}
	doc, err := ws.Document(r.Context())
	if err != nil {
		s.fail(w, "graph", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, graph.GenerateMermaid(doc, graph.OverlayFromFlow(ws.Flow())))
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	ws, err := s.existing(r)
	if err != nil {
		s.fail(w, "document", err)
		return
	}
	doc, err := ws.Document(r.Context())
	if err != nil {
		s.fail(w, "document", err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

// postMessage applies one envelope and answers with the replies addressed to
// the sender. Broadcasts go to the SSE subscribers only.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize+1))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(raw) > maxMessageSize {
		http.Error(w, "Message too large", http.StatusRequestEntityTooLarge)
		return
	}
	if _, err := protocol.Decode(raw); err != nil {
		http.Error(w, "Invalid envelope", http.StatusBadRequest)
		s.logger.Warn("invalid envelope", "err", err)
		return
	}

	ws, err := s.hub.Open(r.Context(), chi.URLParam(r, "id"), "")
	if err != nil {
		s.fail(w, "message", err)
		return
	}

	replies := newCollector()
	if err := ws.Handle(r.Context(), replies, raw); err != nil {
		s.fail(w, "message", err)
		return
	}
	s.writeJSON(w, http.StatusOK, replies.messages())
}
