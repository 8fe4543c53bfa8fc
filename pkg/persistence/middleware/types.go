// Package middleware wraps a FlowStore with behavior applied on every save
// and load: at-rest encryption and masking of sensitive metadata.
package middleware

import "github.com/aretw0/weft/pkg/ports"

// Middleware allows wrapping a FlowStore to add behavior.
type Middleware func(ports.FlowStore) ports.FlowStore

// Chain applies middlewares so that the first one is the outermost.
func Chain(store ports.FlowStore, mws ...Middleware) ports.FlowStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
