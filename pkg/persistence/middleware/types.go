package middleware

import "github.com/aretw0/onestep/pkg/ports"

// Middleware allows wrapping a CheckpointStore to add behavior.
type Middleware func(ports.CheckpointStore) ports.CheckpointStore

// Chain wraps store with each middleware in order. The first middleware is the outermost,
// so Chain(s, a, b) saves through a, then b, then s.
func Chain(store ports.CheckpointStore, mws ...Middleware) ports.CheckpointStore {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		store = mws[i](store)
	}
	return store
}
