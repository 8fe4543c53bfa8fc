/*
Package ports defines the driven ports (interfaces) of the Weft runtime.

These interfaces decouple workspaces and the execution engine from storage,
component execution and transport implementations.

# Key Interfaces

  - FlowStore: persists and loads workspace documents.
  - DistributedLocker: coordinates workspace writes across replicas.
  - ComponentRunner: executes the opaque component behind a node.
  - NodeStopper: optional runner capability to forcibly stop a node.
  - Client: a connected peer that receives protocol messages.
*/
package ports
