package cache

import (
	"context"

	"github.com/IvanBrykalov/memorycache/token"
)

// linker is an entry under construction that accepts expiration settings
// from entries created or read inside its scope. It is not generic so that
// entries of different caches (and value types) can nest.
type linker interface {
	inherit(tokens []token.ChangeToken, absExp int64)
}

type scopeKey struct{}

func withScope(ctx context.Context, l linker) context.Context {
	return context.WithValue(ctx, scopeKey{}, l)
}

// scopeFrom returns the innermost entry under construction in ctx, if any.
func scopeFrom(ctx context.Context) linker {
	if ctx == nil {
		return nil
	}
	l, _ := ctx.Value(scopeKey{}).(linker)
	return l
}
