/*
Package weft is a collaborative flow-based-programming runtime.

A flow is a graph of nodes, each running a component, joined by edges between
ports. Flows live in workspaces that several clients edit at once through the
FBP network protocol; every accepted edit is broadcast to the connected
clients and persisted to a store.

# Concept

A run walks the graph in dependency order. A node starts once every
predecessor finished, independent branches run concurrently, and a node that
fails stops its downstream branch without stopping its siblings. Runs can be
scoped to a nested graph or a named group.

Weft follows a hexagonal layout: the domain and the engine know nothing about
storage, transport or the components themselves. Adapters provide those:
memory, file, Redis, SQLite and Badger stores; HTTP with Server-Sent Events
and MCP transports; in-process and external-process components.

# Usage

Build a flow with the DSL, or parse one from YAML or JSON, and execute it:

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/weft"
		"github.com/aretw0/weft/pkg/dsl"
	)

	func main() {
		b := dsl.New("etl")
		b.Add("extract", "core/Pass").To("load")
		b.Add("load", "core/Pass")
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
	}

To host shared workspaces, hand Runtime.Hub to the HTTP or MCP adapter, or
run the weft serve command.
*/
package weft
