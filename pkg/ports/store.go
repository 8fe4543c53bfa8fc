package ports

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
)

// FlowStore persists workspace graphs as documents.
// In-flight execution state is never part of a stored document.
type FlowStore interface {
	// Save persists the document under the given workspace ID.
	Save(ctx context.Context, id string, doc domain.FlowDocument) error

	// Load retrieves the document for a workspace ID.
	// Returns domain.ErrWorkspaceNotFound if it does not exist.
	Load(ctx context.Context, id string) (domain.FlowDocument, error)

	// Delete removes the document. Deleting a missing workspace is not an error.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of every stored workspace.
	List(ctx context.Context) ([]string, error)
}
