// Package diag provides a resilient HTTP client for the remote veterinary
// diagnostic model service. A middleware chain layers retry with exponential
// backoff, circuit breaking, local rate limiting, and structured
// observability around a core HTTP handler, so callers see a single Handle
// call with production failure handling built in.
package diag

import (
	"context"
)

// Handler processes diagnostic requests through the middleware pipeline.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware transforms a Handler into an enhanced Handler.
// Applied in reverse order with the last middleware closest to the core
// handler.
type Middleware func(Handler) Handler

// Chain builds a middleware pipeline around a core handler. Middleware
// executes in the order provided with the first middleware outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
