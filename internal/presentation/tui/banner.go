package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the Weft banner to w, coloured when w is a terminal
// that supports it.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text  string
		color string
	}{
		{` __      __       __ _   `, "#34d399"},
		{` \ \ /\ / /__ _ _/ _| |_ `, "#2dd4bf"},
		{`  \ V  V / -_) '_|  _|  _|`, "#22d3ee"},
		{`   \_/\_/\___|_| |_|  \__|`, "#38bdf8"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("   flow runtime "+version).Faint())
	fmt.Fprintln(w)
}
