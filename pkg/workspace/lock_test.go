package workspace

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/weft/pkg/adapters/memory"
)

func TestHub_LockLifecycle(t *testing.T) {
	h := NewHub(memory.NewStore())
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("ws-%d", i)
		_, _ = h.Load(ctx, id)
		_ = h.Delete(ctx, id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Empty(t, h.locks, "lock entries must be released once unused")
}

func TestHub_WithLockSerializesPerID(t *testing.T) {
	h := NewHub(memory.NewStore())
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.WithLock(ctx, "shared", func(context.Context) error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}
