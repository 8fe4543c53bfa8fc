package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/aretw0/weft/pkg/protocol"
)

// streamClient is a workspace client backed by an SSE connection.
// Send never blocks: when the subscriber lags behind, messages are dropped.
type streamClient struct {
	id     string
	ch     chan []byte
	logger *slog.Logger
}

func (c *streamClient) ID() string { return c.id }

func (c *streamClient) Send(_ context.Context, raw []byte) error {
	select {
	case c.ch <- raw:
		return nil
	default:
		c.logger.Warn("SSE: client buffer full, dropping message", "client", c.id)
		return fmt.Errorf("client %s is lagging", c.id)
	}
}

// collector gathers the direct replies produced while one message is handled.
type collector struct {
	id   string
	mu   sync.Mutex
	msgs []protocol.Message
}

func newCollector() *collector {
	return &collector{id: "http-" + uuid.NewString(), msgs: []protocol.Message{}}
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

// subscribeEvents streams every broadcast of the workspace as an SSE data line.
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ws, err := s.existing(r)
	if err != nil {
		s.fail(w, "events", err)
		return
	}

	client := &streamClient{
		id:     "sse-" + uuid.NewString(),
		ch:     make(chan []byte, s.bufferSize),
		logger: s.logger,
	}
	ws.Connect(client)
	defer ws.Disconnect(client.id)
	s.logger.Info("SSE: subscribed", "workspace", ws.UUID(), "client", client.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: %s\n\n", client.id)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: client disconnected", "client", client.id)
			return
		case msg := <-client.ch:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
