/*
Package domain contains the graph model shared by every other Weft package.

It defines the entities a workspace is made of and the editing rules that keep
them consistent while several clients change the graph at the same time. The
package is free of I/O and transport concerns.

# Key Entities

  - Flow: the whole graph of one workspace. Owns nodes, edges and groups and
    exposes the protocol-shaped editing operations (AddNode, AddEdge, ...).
  - Node: a unit of scheduling. Carries its component name, metadata, port to
    edge adjacency and the transient execution state used by the scheduler.
  - Edge: a directed connection from one node port to another node port.
  - Group: a named subset of nodes that can be run on its own.
  - Status: the idle/running flag of a runnable scope (Flow or Group).
  - FlowDocument: the JSON shape a Flow is saved and restored from.

Editing operations never return errors. Invalid requests (unknown graph,
duplicate or missing entity) are reported with a false result so the protocol
layer can answer the client with an error envelope.
*/
package domain
