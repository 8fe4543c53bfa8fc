package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/persistence/middleware"
	"github.com/aretw0/weft/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, middleware.KeySize)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func sealed(t *testing.T, next ports.FlowStore, cfg middleware.EncryptionConfig) ports.FlowStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw(next)
}

func secretFlow() domain.FlowDocument {
	f := domain.NewFlow("ws", "secret", "core")
	f.AddNode("a", "core/Pass", domain.Metadata{"token": "my-secret-sauce"}, "ws", true)
	return f.Document()
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunFlowStoreContract(t, sealed(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	store := sealed(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "ws", secretFlow()))

	raw, err := underlying.Load(ctx, "ws")
	require.NoError(t, err)
	assert.Empty(t, raw.Nodes, "nodes must not be stored in clear")
	assert.NotEmpty(t, raw.Sealed)
	assert.Equal(t, "secret", raw.Name)

	loaded, err := store.Load(ctx, "ws")
	require.NoError(t, err)
	require.Len(t, loaded.Nodes, 1)
	assert.Equal(t, "my-secret-sauce", loaded.Nodes[0].Metadata["token"])
	assert.Empty(t, loaded.Sealed)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	oldStore := sealed(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	require.NoError(t, oldStore.Save(ctx, "ws", secretFlow()))

	newStore := sealed(t, underlying, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	loaded, err := newStore.Load(ctx, "ws")
	require.NoError(t, err, "fallback key should decrypt")
	require.NoError(t, newStore.Save(ctx, "ws", loaded))

	_, err = oldStore.Load(ctx, "ws")
	assert.Error(t, err, "old key alone must not decrypt a document sealed with the new key")
}

func TestEncryptionMiddleware_RejectsPlainDocument(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, underlying.Save(ctx, "ws", secretFlow()))

	store := sealed(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	_, err := store.Load(ctx, "ws")
	assert.ErrorIs(t, err, middleware.ErrNotSealed)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.Error(t, err)

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	assert.Error(t, err)
}
