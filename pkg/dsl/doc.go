/*
Package dsl provides a Go DSL for programmatically constructing Weft flows.

It is an alternative to hand-written flow files for tests, examples and
generated graphs.

Example usage:

	b := dsl.New("etl").Name("Nightly ETL")
	b.Add("extract", "core/Pass").To("transform")
	b.Add("transform", "core/Delay").Delay(time.Second).To("load")
	b.Add("load", "core/Pass")
	b.Group("tail", "transform", "load")

	doc, err := b.Build()
*/
package dsl
