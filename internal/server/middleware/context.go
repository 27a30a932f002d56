package middleware

import "context"

type principalSinkKey struct{}

func withPrincipalSink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, principalSinkKey{}, sink)
}
