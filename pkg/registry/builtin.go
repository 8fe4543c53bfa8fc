package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// CoreLibrary is the name of the library holding the built-in components.
const CoreLibrary = "core"

// Settings are the per-node options read from the node metadata under
// domain.KeyComponentOverrides.
type Settings struct {
	Delay   time.Duration `mapstructure:"delay"`
	Message string        `mapstructure:"message"`
}

// DecodeSettings reads Settings from node metadata. Durations may be given
// as strings ("250ms") or as nanoseconds.
func DecodeSettings(metadata domain.Metadata) (Settings, error) {
	var s Settings
	raw, ok := metadata[domain.KeyComponentOverrides]
	if !ok || raw == nil {
		return s, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &s,
	})
	if err != nil {
		return s, err
	}
	if err := dec.Decode(raw); err != nil {
		return s, fmt.Errorf("invalid component settings: %w", err)
	}
	return s, nil
}

// NewCore returns a registry with the built-in components:
//
//   - core/Pass completes immediately.
//   - core/Delay waits for the configured delay.
//   - core/Fail returns an error carrying the configured message.
func NewCore() *Registry {
	r := NewRegistry(CoreLibrary)
	r.Register(ports.ComponentInfo{
		Name:        "core/Pass",
		Description: "Completes immediately",
		InPorts:     []string{"in"},
		OutPorts:    []string{"out"},
	}, func(ctx context.Context, _ ports.ComponentRequest) error {
		return ctx.Err()
	})
	r.Register(ports.ComponentInfo{
		Name:        "core/Delay",
		Description: "Waits for component.delay before completing",
		InPorts:     []string{"in"},
		OutPorts:    []string{"out"},
	}, func(ctx context.Context, req ports.ComponentRequest) error {
		s, err := DecodeSettings(req.Metadata)
		if err != nil {
			return err
		}
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	r.Register(ports.ComponentInfo{
		Name:        "core/Fail",
		Description: "Fails with component.message",
		InPorts:     []string{"in"},
		OutPorts:    []string{"error"},
	}, func(_ context.Context, req ports.ComponentRequest) error {
		s, err := DecodeSettings(req.Metadata)
		if err != nil {
			return err
		}
		if s.Message == "" {
			s.Message = "node " + req.NodeID + " failed"
		}
		return errors.New(s.Message)
	})
	return r
}
