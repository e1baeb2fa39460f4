// CLAUDE:SUMMARY Handler type and middleware composition for outbound service calls (reasoning service).
// Package connectivity wraps outbound service calls as byte-in/byte-out
// Handlers and layers timeout, retry, circuit breaking and panic recovery
// on top of them as HandlerMiddleware.
package connectivity

import "context"

// Handler is one call to a remote service: a request payload in, a response
// payload out.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// HandlerMiddleware wraps a Handler without changing its signature.
type HandlerMiddleware func(next Handler) Handler

// Chain composes middlewares left-to-right: the first middleware is the
// outermost wrapper.
//
//	h := Chain(Recovery(log), Timeout(2*time.Minute), WithRetry(2, time.Second, log))(base)
func Chain(mws ...HandlerMiddleware) HandlerMiddleware {
	return func(next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
