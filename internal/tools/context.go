package tools

import "context"

type callIDKey struct{}

// WithCallID attaches callID to ctx so that builtin tool handlers, which
// receive no call-specific parameter in their Handler signature, can
// recover which call they are serving.
func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, callIDKey{}, callID)
}

// CallIDFromContext returns the call id attached by WithCallID, or "" if
// none was attached.
func CallIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}
