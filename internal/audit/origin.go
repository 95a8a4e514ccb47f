package audit

import "context"

// Origin describes where an audited request came from
type Origin struct {
	IP        string
	RequestID string
}

type originKey struct{}

// WithOrigin returns a copy of ctx carrying o
func WithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, originKey{}, o)
}

// OriginFromContext returns the Origin stored in ctx, or the zero value
func OriginFromContext(ctx context.Context) Origin {
	o, _ := ctx.Value(originKey{}).(Origin)
	return o
}
