package auth

import "context"

type callerKey struct{}

// WithCaller stores the resolved caller in the request context.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller resolved by the middleware, or nil when the
// request did not pass through it.
func CallerFrom(ctx context.Context) *Caller {
	c, _ := ctx.Value(callerKey{}).(*Caller)
	return c
}
