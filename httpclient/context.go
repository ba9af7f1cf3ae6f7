/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import "context"

type ctxKey int

const (
	ctxKeyIdempotentHint ctxKey = iota
)

// NewContextWithIdempotentHint returns a derived context that carries an "idempotent request" hint.
// When set to true, the request is retried on server errors even if its method is not idempotent (e.g. POST).
func NewContextWithIdempotentHint(ctx context.Context, isIdempotent bool) context.Context {
	return context.WithValue(ctx, ctxKeyIdempotentHint, isIdempotent)
}

// GetIdempotentHintFromContext extracts the "idempotent request" hint from context.
// Returns false when the key is not present.
func GetIdempotentHintFromContext(ctx context.Context) bool {
	b, _ := ctx.Value(ctxKeyIdempotentHint).(bool)
	return b
}
