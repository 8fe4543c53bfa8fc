package weft_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/dsl"
)

// ExampleRuntime_Execute runs a diamond: b and c start together once a
// finished, d waits for both.
func ExampleRuntime_Execute() {
	b := dsl.New("diamond")
	b.Add("a", "core/Pass").To("b").To("c")
	b.Add("b", "core/Pass").To("d")
	b.Add("c", "core/Pass").To("d")
	b.Add("d", "core/Pass")
	doc, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}

	rt, err := weft.New()
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Close(context.Background())

	rep, err := rt.Execute(context.Background(), doc, "")
	if err != nil {
		log.Fatal(err)
	}
	for _, id := range []string{"a", "b", "c", "d"} {
		fmt.Println(id, rep.States[id])
	}
	fmt.Println("unfinished:", len(rep.Unfinished()))
	// Output:
	// a finished
	// b finished
	// c finished
	// d finished
	// unfinished: 0
}

// ExampleRuntime_Execute_failure shows a failed node cutting off its
// downstream branch only.
func ExampleRuntime_Execute_failure() {
	b := dsl.New("branches")
	b.Add("start", "core/Pass").To("broken").To("fine")
	b.Add("broken", "core/Fail").Setting("message", "boom").To("after")
	b.Add("fine", "core/Pass")
	b.Add("after", "core/Pass")
	doc, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}

	rt, err := weft.New()
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Close(context.Background())

	rep, err := rt.Execute(context.Background(), doc, "")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(rep.Unfinished())
	// Output:
	// [after broken]
}
