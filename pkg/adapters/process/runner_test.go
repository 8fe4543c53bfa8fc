package process_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/adapters/process"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestRunner_RunComponent(t *testing.T) {
	skipWindows(t)
	out := filepath.Join(t.TempDir(), "out.txt")

	runner := process.NewRunner()
	runner.Register("write_env", "sh", "-c", `echo "$WEFT_NODE:$WEFT_META_MSG:$EXTRA" > "$TARGET"`)
	runner.Register("fail", "sh", "-c", "echo broken >&2; exit 3")
	runner.Register("sleep", "sh", "-c", "exec sleep 5")

	t.Run("Executes Registered Component", func(t *testing.T) {
		err := runner.RunComponent(context.Background(), ports.ComponentRequest{
			NodeID:    "n1",
			Component: "write_env",
			Metadata: domain.Metadata{
				"msg": "SecretMessage",
				domain.KeyComponentOverrides: map[string]any{
					"env": map[string]any{"EXTRA": "x", "TARGET": out},
				},
			},
		})
		require.NoError(t, err)
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "n1:SecretMessage:x\n", string(data))
	})

	t.Run("Fails For Unregistered Component", func(t *testing.T) {
		err := runner.RunComponent(context.Background(), ports.ComponentRequest{Component: "hacker_script"})
		assert.ErrorIs(t, err, domain.ErrComponentNotFound)
	})

	t.Run("Reports Exit Failure With Stderr", func(t *testing.T) {
		err := runner.RunComponent(context.Background(), ports.ComponentRequest{Component: "fail"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken")
	})

	t.Run("Honours Cancellation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		start := time.Now()
		err := runner.RunComponent(ctx, ports.ComponentRequest{Component: "sleep"})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 4*time.Second)
	})

	t.Run("Honours Node Timeout", func(t *testing.T) {
		err := runner.RunComponent(context.Background(), ports.ComponentRequest{
			Component: "sleep",
			Metadata:  domain.Metadata{domain.KeyComponentOverrides: map[string]any{"timeout": "50ms"}},
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestRunner_StopNode(t *testing.T) {
	skipWindows(t)
	runner := process.NewRunner()
	runner.Register("sleep", "sh", "-c", "exec sleep 5")

	done := make(chan error, 1)
	go func() {
		done <- runner.RunComponent(context.Background(), ports.ComponentRequest{
			Workspace: "ws", NodeID: "n1", Component: "sleep",
		})
	}()

	// Wait for the process to be tracked, then kill it.
	require.Eventually(t, func() bool {
		_ = runner.StopNode(context.Background(), "ws", "n1")
		select {
		case err := <-done:
			assert.Error(t, err)
			return true
		default:
			return false
		}
	}, 3*time.Second, 20*time.Millisecond)

	assert.NoError(t, runner.StopNode(context.Background(), "ws", "unknown"))
}

func TestLoadComponents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "components.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
components:
  - name: sh/Echo
    command: echo
    args: [hello]
    description: Prints hello
    inports: [in]
    outports: [out]
  - name: incomplete
`), 0o644))

	components, err := process.LoadComponents(path)
	require.NoError(t, err)
	require.Len(t, components, 1)
	assert.Equal(t, "echo", components["sh/Echo"].Command)

	runner := process.NewRunner(process.WithComponents(components))
	infos := runner.Components()
	require.Len(t, infos, 1)
	assert.Equal(t, []string{"in"}, infos[0].InPorts)

	missing, err := process.LoadComponents(filepath.Join(dir, "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}
