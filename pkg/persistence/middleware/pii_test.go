package middleware_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"password", "ssn"})
	require.NoError(t, err)
	store := mw(underlying)
	ctx := context.Background()

	f := domain.NewFlow("ws", "pii", "core")
	require.True(t, f.AddNode("a", "core/Pass", domain.Metadata{
		"username":      "jdoe",
		"user_password": "secret123",
		"details": map[string]any{
			"address":    "123 St",
			"ssn_number": "999-99-9999",
		},
	}, "ws", true))
	require.True(t, f.AddNode("b", "core/Pass", nil, "ws", true))
	require.True(t, f.AddEdge(domain.PortRef{Node: "a", Port: "out"}, domain.PortRef{Node: "b", Port: "in"},
		domain.Metadata{"db_password": "hunter2"}, "ws"))
	doc := f.Document()

	require.NoError(t, store.Save(ctx, "ws", doc))
	assert.Equal(t, "secret123", doc.Nodes[0].Metadata["user_password"], "caller document must not change")

	stored, err := underlying.Load(ctx, "ws")
	require.NoError(t, err)
	md := stored.Nodes[0].Metadata
	assert.Equal(t, "jdoe", md["username"])
	assert.Equal(t, middleware.Mask, md["user_password"])
	details := md["details"].(map[string]any)
	assert.Equal(t, "123 St", details["address"])
	assert.Equal(t, middleware.Mask, details["ssn_number"])
	assert.Equal(t, middleware.Mask, stored.Edges[0].Metadata["db_password"])
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain_OrderOutermostFirst(t *testing.T) {
	underlying := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{"token"})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)

	store := middleware.Chain(underlying, pii, enc)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "ws", secretFlow()))

	loaded, err := store.Load(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, loaded.Nodes[0].Metadata["token"])
}
