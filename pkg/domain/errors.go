package domain

import "errors"

// ErrWorkspaceNotFound is returned when a workspace ID cannot be found in the store.
var ErrWorkspaceNotFound = errors.New("workspace not found")

// ErrUnknownGraph is returned when a graph identifier matches neither the Flow nor a Group.
var ErrUnknownGraph = errors.New("unknown graph")

// ErrComponentNotFound is returned when a node references a component missing from the library.
var ErrComponentNotFound = errors.New("component not found")

// ErrAlreadyRunning is returned when a run is requested for a scope that is already executing.
var ErrAlreadyRunning = errors.New("graph is already running")

// ErrInvalidDocument is returned when a FlowDocument cannot be turned back into a Flow.
var ErrInvalidDocument = errors.New("invalid flow document")
