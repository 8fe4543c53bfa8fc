/*
Package protocol implements the workspace side of the FBP network protocol.

Every inbound message is an envelope {protocol, command, payload}. The Manager
decodes it and routes it by protocol name to one of five handlers:

  - graph: live edits of the Flow (nodes, edges, groups).
  - network: starting, stopping and querying runs.
  - runtime: runtime description.
  - component: the component library listing.
  - trace: an in-memory buffer of node updates.

Replies go to the requesting client (Send) or to every client connected to
the workspace (SendToAll). Failures are answered with an envelope whose
command is "error" and whose payload is {message}.

The Manager does not serialize calls itself; the owning workspace invokes
Handle from its single writer goroutine.
*/
package protocol
