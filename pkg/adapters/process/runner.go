package process

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// Runner executes components as local processes.
// Only components registered up front can run (allow-listing); node metadata
// reaches the process as environment variables, never as arguments.
type Runner struct {
	mu        sync.Mutex
	registry  map[string]ComponentConfig
	active    map[string]*exec.Cmd
	baseDir   string
	waitDelay time.Duration
	logger    *slog.Logger
}

// Overrides are per-node settings read from node metadata under
// domain.KeyComponentOverrides.
type Overrides struct {
	Env     map[string]string `mapstructure:"env"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithComponents populates the allow-list from a loaded config.
func WithComponents(components map[string]ComponentConfig) RunnerOption {
	return func(r *Runner) {
		for _, c := range components {
			r.registry[c.Name] = c
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithWaitDelay bounds how long a cancelled process may take to exit before
// it is killed.
func WithWaitDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.waitDelay = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a new process runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry:  make(map[string]ComponentConfig),
		active:    make(map[string]*exec.Cmd),
		waitDelay: 2 * time.Second,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name, command string, args ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry[name] = ComponentConfig{Name: name, Command: command, Args: args}
}

// Components implements ports.ComponentCatalog.
func (r *Runner) Components() []ports.ComponentInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ports.ComponentInfo, 0, len(r.registry))
	for _, c := range r.registry {
		out = append(out, ports.ComponentInfo{
			Name:        c.Name,
			Description: c.Description,
			InPorts:     c.InPorts,
			OutPorts:    c.OutPorts,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RunComponent implements ports.ComponentRunner.
func (r *Runner) RunComponent(ctx context.Context, req ports.ComponentRequest) error {
	r.mu.Lock()
	cfg, ok := r.registry[req.Component]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s (process component not registered)", domain.ErrComponentNotFound, req.Component)
	}

	var ov Overrides
	if raw, ok := req.Metadata[domain.KeyComponentOverrides]; ok && raw != nil {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
			WeaklyTypedInput: true,
			Result:           &ov,
		})
		if err != nil {
			return err
		}
		if err := dec.Decode(raw); err != nil {
			return fmt.Errorf("node %s: invalid process overrides: %w", req.NodeID, err)
		}
	}
	if ov.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ov.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = r.baseDir
	cmd.WaitDelay = r.waitDelay
	cmd.Env = append(cmd.Environ(), buildEnv(req, cfg.Environment, ov.Env)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	key := activeKey(req.Workspace, req.NodeID)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", req.Component, err)
	}
	r.mu.Lock()
	r.active[key] = cmd
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		if r.active[key] == cmd {
			delete(r.active, key)
		}
		r.mu.Unlock()
	}()

	err := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("execution failed: %w. Stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	r.logger.DebugContext(ctx, "process component finished",
		"node", req.NodeID, "component", req.Component, "stdout", strings.TrimSpace(stdout.String()))
	return nil
}

// StopNode implements ports.NodeStopper by killing the node's process.
func (r *Runner) StopNode(_ context.Context, workspace, nodeID string) error {
	r.mu.Lock()
	cmd, ok := r.active[activeKey(workspace, nodeID)]
	r.mu.Unlock()
	if !ok || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !strings.Contains(err.Error(), "process already finished") {
		return fmt.Errorf("kill node %s: %w", nodeID, err)
	}
	return nil
}

func activeKey(workspace, nodeID string) string {
	return workspace + "/" + nodeID
}

// buildEnv exposes the request as WEFT_* variables. Metadata values become
// WEFT_META_<KEY>: primitives verbatim, anything else JSON encoded.
func buildEnv(req ports.ComponentRequest, base, overrides map[string]string) []string {
	env := []string{
		"WEFT_WORKSPACE=" + req.Workspace,
		"WEFT_GRAPH=" + req.Graph,
		"WEFT_NODE=" + req.NodeID,
		"WEFT_COMPONENT=" + req.Component,
	}
	for k, v := range base {
		env = append(env, k+"="+v)
	}
	for k, v := range req.Metadata {
		if k == domain.KeyComponentOverrides {
			continue
		}
		var val string
		switch v.(type) {
		case string, int, int64, float64, bool:
			val = fmt.Sprintf("%v", v)
		case nil:
			val = ""
		default:
			if b, err := json.Marshal(v); err == nil {
				val = string(b)
			} else {
				val = fmt.Sprintf("%v", v)
			}
		}
		env = append(env, fmt.Sprintf("WEFT_META_%s=%s", strings.ToUpper(k), val))
	}
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}
