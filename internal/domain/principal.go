package domain

import (
	"context"
	"strings"
)

// Role is a privilege carried by an authenticated caller.
type Role string

const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleOracle Role = "oracle"
	// RoleSystem marks internal automation such as price-derived resolution
	// and trade fill ingestion.
	RoleSystem Role = "system"
)

// Principal is the explicit authorization context of a caller. Identities
// of admins and oracles are lower-cased hex addresses.
type Principal struct {
	ID    string
	Roles []Role
}

// Anonymous is the principal of an unauthenticated request.
var Anonymous = Principal{}

// HasRole reports whether p carries role r.
func (p Principal) HasRole(r Role) bool {
	for _, have := range p.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// IsAnonymous reports whether p has no identity.
func (p Principal) IsAnonymous() bool {
	return p.ID == ""
}

// NormalizeID lower-cases and trims an identity so that hex addresses
// compare equal regardless of checksum casing.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// IdentityDirectory answers whether an identity is a registered admin or
// oracle.
type IdentityDirectory interface {
	IsAdmin(ctx context.Context, id string) bool
	IsOracle(ctx context.Context, id string) bool
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the principal from ctx, or Anonymous.
func PrincipalFrom(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok {
		return p
	}
	return Anonymous
}
