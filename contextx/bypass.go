package contextx

import "context"

// Bypass is a request-scoped cache directive, typically derived from a
// client header such as "Cache-Control: no-cache".
type Bypass struct {
	// Read makes every cache lookup of the request a miss.
	Read bool
	// Write keeps the request from storing anything.
	Write bool
}

// WithBypass returns a derived context that carries b.
func WithBypass(ctx context.Context, b Bypass) context.Context {
	return context.WithValue(ctx, bypassKey, b)
}

// BypassFromContext extracts the directive stored in ctx. It returns the
// zero Bypass when none is present.
func BypassFromContext(ctx context.Context) Bypass {
	b, _ := ctx.Value(bypassKey).(Bypass)
	return b
}
