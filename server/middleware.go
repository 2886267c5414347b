package server

// Middleware wraps a ServerAdapter with additional behavior (logging,
// auth, tracing) around its route registration and lifecycle.
type Middleware func(ServerAdapter) ServerAdapter

// ApplyMiddleware wraps adapter with each middleware in order, so the
// first middleware given is outermost (its RegisterHandler/Serve/Shutdown
// runs first). Applying no middleware returns adapter unchanged.
func ApplyMiddleware(adapter ServerAdapter, middlewares ...Middleware) ServerAdapter {
	wrapped := adapter
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}
