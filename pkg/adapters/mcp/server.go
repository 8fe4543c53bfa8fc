// Package mcp exposes Weft workspaces to Model Context Protocol clients.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/internal/presentation/graph"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/protocol"
	"github.com/aretw0/weft/pkg/workspace"
)

// ResourcePrefix is the URI prefix of workspace document resources.
const ResourcePrefix = "weft://workspaces/"

// Server wraps a workspace Hub and exposes it as an MCP Server.
type Server struct {
	hub       *workspace.Hub
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(hub *workspace.Hub, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		hub:    hub,
		logger: logger,
		mcpServer: server.NewMCPServer("weft-mcp", strings.TrimSpace(version),
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://" + addr
	if strings.HasPrefix(addr, ":") {
		baseURL = "http://localhost" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_workspaces",
		mcp.WithDescription("List the identifiers of stored and open workspaces."),
	), s.handleListWorkspaces)

	s.mcpServer.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Apply one protocol envelope to a workspace and return the replies addressed to the caller. The workspace is created when missing."),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace identifier")),
		mcp.WithString("protocol", mcp.Required(), mcp.Description("Protocol name (runtime, graph, component, network, trace)")),
		mcp.WithString("command", mcp.Required(), mcp.Description("Command name")),
		mcp.WithString("payload", mcp.Description("JSON payload of the command (optional)")),
	), s.handleSendMessage)

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Describe the graph of an existing workspace."),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace identifier")),
		mcp.WithString("format", mcp.Description("mermaid (default) or json"), mcp.Enum("mermaid", "json")),
	), s.handleGetGraph)

	s.mcpServer.AddTool(mcp.NewTool("run_graph",
		mcp.WithDescription("Start a run of the workspace flow or of one of its groups."),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace identifier")),
		mcp.WithString("graph", mcp.Required(), mcp.Description("Flow id or group name")),
	), s.handleRunGraph)

	s.mcpServer.AddTool(mcp.NewTool("stop_graph",
		mcp.WithDescription("Stop the active run of a graph. Stopping an idle graph does nothing."),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace identifier")),
		mcp.WithString("graph", mcp.Required(), mcp.Description("Flow id or group name")),
	), s.handleStopGraph)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(ResourcePrefix+"{id}", "Workspace document",
		mcp.WithTemplateDescription("The saved shape of a workspace graph"),
		mcp.WithTemplateMIMEType("application/json"),
	), s.readWorkspace)
}

// existing returns the live workspace, opening it from the store if needed.
func (s *Server) existing(ctx context.Context, id string) (*workspace.Workspace, error) {
	if ws, ok := s.hub.Get(id); ok {
		return ws, nil
	}
	if _, err := s.hub.Load(ctx, id); err != nil {
		return nil, err
	}
	return s.hub.Open(ctx, id, "")
}

func toolError(op string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func (s *Server) handleListWorkspaces(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := s.hub.List(ctx)
	if err != nil {
		return toolError("list", err), nil
	}
	return jsonResult(ids)
}

func (s *Server) handleSendMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("workspace", "")
	if id == "" {
		return mcp.NewToolResultError("'workspace' is required"), nil
	}
	msg := protocol.Message{
		Protocol: req.GetString("protocol", ""),
		Command:  req.GetString("command", ""),
	}
	if msg.Protocol == "" || msg.Command == "" {
		return mcp.NewToolResultError("'protocol' and 'command' are required"), nil
	}
	if payload := strings.TrimSpace(req.GetString("payload", "")); payload != "" {
		if !json.Valid([]byte(payload)) {
			return mcp.NewToolResultError("'payload' is not valid JSON"), nil
		}
		msg.Payload = json.RawMessage(payload)
	}
	raw, err := msg.Encode()
	if err != nil {
		return toolError("encode", err), nil
	}

	ws, err := s.hub.Open(ctx, id, "")
	if err != nil {
		return toolError("open", err), nil
	}
	replies := newCollector()
	if err := ws.Handle(ctx, replies, raw); err != nil {
		return toolError("message", err), nil
	}
	return jsonResult(replies.messages())
}

func (s *Server) handleGetGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, err := s.existing(ctx, req.GetString("workspace", ""))
	if err != nil {
		return toolError("graph", err), nil
	}
	doc, err := ws.Document(ctx)
	if err != nil {
		return toolError("graph", err), nil
	}
	switch format := req.GetString("format", "mermaid"); format {
	case "json":
		return jsonResult(doc)
	case "mermaid", "":
		return mcp.NewToolResultText(graph.GenerateMermaid(doc, graph.OverlayFromFlow(ws.Flow()))), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown format %q", format)), nil
	}
}

func (s *Server) handleRunGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, err := s.existing(ctx, req.GetString("workspace", ""))
	if err != nil {
		return toolError("run", err), nil
	}
	g := req.GetString("graph", "")
	if err := ws.Run(ctx, g); err != nil {
		return toolError("run", err), nil
	}
	s.logger.Info("MCP: run started", "workspace", ws.UUID(), "graph", g)
	return jsonResult(protocol.StatusPayload{Graph: g, Running: true, Started: true})
}

func (s *Server) handleStopGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, err := s.existing(ctx, req.GetString("workspace", ""))
	if err != nil {
		return toolError("stop", err), nil
	}
	g := req.GetString("graph", "")
	if err := ws.Stop(g); err != nil {
		return toolError("stop", err), nil
	}
	return jsonResult(protocol.StatusPayload{Graph: g})
}

func (s *Server) readWorkspace(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id, ok := strings.CutPrefix(req.Params.URI, ResourcePrefix)
	if !ok || id == "" {
		return nil, fmt.Errorf("unsupported resource %q", req.Params.URI)
	}
	ws, err := s.existing(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrWorkspaceNotFound) {
			return nil, fmt.Errorf("workspace %s: %w", id, err)
		}
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}
	doc, err := ws.Document(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(raw),
		},
	}, nil
}

// collector gathers the direct replies produced while one message is handled.
type collector struct {
	id   string
	mu   sync.Mutex
	msgs []protocol.Message
}

func newCollector() *collector {
	return &collector{id: "mcp-" + uuid.NewString(), msgs: []protocol.Message{}}
}

func (c *collector) ID() string { return c.id }

func (c *collector) Send(_ context.Context, raw []byte) error {
	msg, err := protocol.Decode(raw)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *collector) messages() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Message{}, c.msgs...)
}
