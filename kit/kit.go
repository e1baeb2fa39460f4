// CLAUDE:SUMMARY Transport-agnostic Endpoint type and middleware chaining shared by HTTP and MCP handlers.
// Package kit holds the transport-agnostic request plumbing: the Endpoint
// type shared by HTTP and MCP adapters and the context keys carrying the
// caller identity.
package kit

import "context"

// Endpoint is a transport-agnostic unit of business logic.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(next Endpoint) Endpoint

// Chain composes middlewares; the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
