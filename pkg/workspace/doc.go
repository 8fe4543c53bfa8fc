/*
Package workspace hosts live workspaces.

A Workspace owns one Flow, the clients connected to it, the active run of
each scope and the protocol Manager answering those clients. Every inbound
protocol message is applied on the workspace's own goroutine (Do), so edits
from concurrent clients never interleave.

A Hub opens workspaces by id, rebuilding them from a ports.FlowStore when they
were saved earlier, and serializes store access per workspace with reference
counted locks and an optional ports.DistributedLocker.
*/
package workspace
