// Package logging builds the slog loggers used by the commands.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Format selects the slog handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat accepts "", "text" and "json". Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown log format %q", s)
}

type settings struct {
	out    io.Writer
	format Format
}

// Option tweaks New.
type Option func(*settings)

// WithWriter sends the records to w instead of stderr.
func WithWriter(w io.Writer) Option {
	return func(s *settings) { s.out = w }
}

// WithFormat picks the text or JSON handler.
func WithFormat(f Format) Option {
	return func(s *settings) { s.format = f }
}

// New returns a logger writing to stderr at level, so stdout stays free for
// command output and the MCP stdio transport. The "error" key is shortened
// to "err" in both formats.
func New(level slog.Level, opts ...Option) *slog.Logger {
	s := settings{out: os.Stderr, format: FormatText}
	for _, opt := range opts {
		opt(&s)
	}

	ho := &slog.HandlerOptions{Level: level, ReplaceAttr: shortenErrorKey}
	if s.format == FormatJSON {
		return slog.New(slog.NewJSONHandler(s.out, ho))
	}
	return slog.New(slog.NewTextHandler(s.out, ho))
}

func shortenErrorKey(_ []string, a slog.Attr) slog.Attr {
	if a.Key == "error" {
		a.Key = "err"
	}
	return a
}

// NewNop returns a logger that drops every record.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
