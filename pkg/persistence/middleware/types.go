// Package middleware decorates a ports.ExecutionStore with secret masking and
// at-rest encryption of record payloads.
package middleware

import "github.com/aretw0/relay/pkg/ports"

// Middleware wraps an ExecutionStore to add behavior.
type Middleware func(ports.ExecutionStore) ports.ExecutionStore

// Chain applies mws to store. The first middleware is the outermost.
func Chain(store ports.ExecutionStore, mws ...Middleware) ports.ExecutionStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
