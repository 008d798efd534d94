package auth

import "context"

type identityContextKey struct{}

// ContextWithIdentity attaches the authenticated caller to the context.
func ContextWithIdentity(ctx context.Context, ic IdentityContext) context.Context {
	return context.WithValue(ctx, identityContextKey{}, ic)
}

// IdentityFromContext extracts the authenticated caller from the context.
func IdentityFromContext(ctx context.Context) (IdentityContext, bool) {
	if ctx == nil {
		return IdentityContext{}, false
	}
	ic, ok := ctx.Value(identityContextKey{}).(IdentityContext)
	if !ok || ic.IsZero() {
		return IdentityContext{}, false
	}
	return ic, true
}
