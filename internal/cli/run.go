package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/compiler"
	"github.com/aretw0/weft/internal/validator"
	"github.com/aretw0/weft/pkg/domain"
)

// RunOptions contains all the configuration for the Run command.
type RunOptions struct {
	File    string
	Graph   string
	Timeout time.Duration
	JSON    bool
	Quiet   bool
}

// runSummary is the --json output of a run.
type runSummary struct {
	Graph      string            `json:"graph"`
	States     map[string]string `json:"states"`
	Unfinished []string          `json:"unfinished"`
	DurationMS int64             `json:"duration_ms"`
	Stopped    bool              `json:"stopped"`
}

// Run validates and executes a flow file, reporting node progress to out.
// An interrupted run is not an error; nodes that fail or never run are.
func Run(ctx context.Context, rt *weft.Runtime, opts RunOptions, out io.Writer) error {
	doc, err := compiler.NewParser().ParseFile(opts.File)
	if err != nil {
		return err
	}
	if err := validator.ValidateDocument(doc, rt.Library()); err != nil {
		return err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var hooks []domain.LifecycleHooks
	if !opts.Quiet && !opts.JSON {
		hooks = append(hooks, progressHooks(out))
	}

	rep, err := rt.Execute(ctx, doc, opts.Graph, hooks...)
	stopped := errors.Is(err, weft.ErrStopped)
	if err != nil && !stopped {
		return err
	}
	unfinished := rep.Unfinished()

	if opts.JSON {
		summary := runSummary{
			Graph:      rep.Graph,
			States:     make(map[string]string, len(rep.States)),
			Unfinished: unfinished,
			DurationMS: rep.Duration.Milliseconds(),
			Stopped:    stopped,
		}
		for id, s := range rep.States {
			summary.States[id] = s.String()
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	}

	switch {
	case stopped && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("run of %q timed out after %s", rep.Graph, opts.Timeout)
	case stopped:
		if !opts.JSON && !opts.Quiet {
			printSystemMessage(out, "Interrupted %q after %s.", rep.Graph, rep.Duration.Round(time.Millisecond))
		}
		return nil
	case len(unfinished) > 0:
		return fmt.Errorf("%d nodes did not finish: %s", len(unfinished), strings.Join(unfinished, ", "))
	}
	if !opts.JSON && !opts.Quiet {
		printSystemMessage(out, "Finished %q in %s.", rep.Graph, rep.Duration.Round(time.Millisecond))
	}
	return nil
}

func progressHooks(out io.Writer) domain.LifecycleHooks {
	var mu sync.Mutex
	return domain.LifecycleHooks{
		OnNodeStart: func(_ context.Context, e *domain.NodeEvent) {
			mu.Lock()
			defer mu.Unlock()
			printSystemMessage(out, "%s (%s) started", e.NodeID, e.Component)
		},
		OnNodeFinish: func(_ context.Context, e *domain.NodeEvent) {
			mu.Lock()
			defer mu.Unlock()
			if e.Err != nil {
				printSystemMessage(out, "%s %s after %s: %v", e.NodeID, e.State, e.Duration.Round(time.Millisecond), e.Err)
				return
			}
			printSystemMessage(out, "%s %s in %s", e.NodeID, e.State, e.Duration.Round(time.Millisecond))
		},
		OnRunStall: func(_ context.Context, e *domain.RunEvent) {
			mu.Lock()
			defer mu.Unlock()
			printSystemMessage(out, "run of %q is waiting on nodes that cannot become ready", e.Graph)
		},
	}
}
