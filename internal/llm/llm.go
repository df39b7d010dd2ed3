// Package llm is the text-generation collaborator: one blocking request that
// takes ordered system messages plus a user message and returns free text.
package llm

import (
	"context"
)

// Request is one round-trip to the collaborator.
type Request struct {
	// Model selects the backend model; empty uses the client default.
	Model  string
	System []string
	User   string
}

// Completer performs one blocking completion.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Middleware wraps a Completer.
type Middleware func(Completer) Completer

// Chain applies middlewares so the first one listed is the outermost.
func Chain(c Completer, mws ...Middleware) Completer {
	for i := len(mws) - 1; i >= 0; i-- {
		c = mws[i](c)
	}
	return c
}
