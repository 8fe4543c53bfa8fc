// Command gen-flow writes a synthetic layered flow, for load testing the
// runtime and the stores.
//
//	gen-flow -layers 10 -width 50 -delay 20ms -o big.yaml
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/weft/pkg/dsl"
)

func main() {
	layers := flag.Int("layers", 5, "Number of layers")
	width := flag.Int("width", 10, "Nodes per layer")
	fanIn := flag.Int("fan-in", 2, "Predecessors of each node in the previous layer")
	delay := flag.Duration("delay", 10*time.Millisecond, "Upper bound of each node's delay")
	seed := flag.Uint64("seed", 1, "Random seed")
	out := flag.String("o", "", "Output file, .yaml or .json (default: stdout as YAML)")
	flag.Parse()

	if *layers < 1 || *width < 1 || *fanIn < 1 {
		fmt.Fprintln(os.Stderr, "layers, width and fan-in must be positive")
		os.Exit(2)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed))
	b := dsl.New("generated").Describe(fmt.Sprintf("%d layers of %d nodes", *layers, *width))
	id := func(l, i int) string { return fmt.Sprintf("l%02d_n%03d", l, i) }

	for l := 0; l < *layers; l++ {
		var members []string
		for i := 0; i < *width; i++ {
			n := b.Add(id(l, i), "core/Delay")
			if *delay > 0 {
				n.Delay(time.Duration(rng.Int64N(int64(*delay))))
			}
			members = append(members, id(l, i))
			if l == 0 {
				continue
			}
			for _, p := range rng.Perm(*width)[:min(*fanIn, *width)] {
				b.Add(id(l-1, p), "core/Delay").To(id(l, i))
			}
		}
		b.Group(fmt.Sprintf("layer-%02d", l), members...)
	}

	doc, err := b.Build()
	check(err)

	var data []byte
	if strings.EqualFold(filepath.Ext(*out), ".json") {
		data, err = json.MarshalIndent(doc, "", "  ")
		check(err)
	} else {
		data, err = toYAML(doc)
		check(err)
	}

	if *out == "" {
		_, err = os.Stdout.Write(data)
		check(err)
		return
	}
	check(os.WriteFile(*out, data, 0o644))
	fmt.Fprintf(os.Stderr, "Generated %d nodes in %s\n", len(doc.Nodes), *out)
}

// toYAML goes through JSON so the document's json tags name the keys.
func toYAML(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}

func check(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
