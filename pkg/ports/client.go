package ports

import "context"

// Client is a peer connected to a workspace.
type Client interface {
	ID() string
	// Send delivers one encoded protocol message. It must not block on a slow peer.
	Send(ctx context.Context, msg []byte) error
}
