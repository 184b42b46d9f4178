package auth

import (
	"context"
	"slices"
	"strings"
)

// Registry roles carried in the Firebase "role" custom claim.
const (
	RoleRegistrant = "registrant"
	RoleHospital   = "hospital"
	RoleChurch     = "church"
	RoleMosque     = "mosque"
	RoleRegistrar  = "registrar"
	RoleManager    = "manager"
	RoleAdmin      = "admin"
)

// AllRoles lists every role known to the registry.
var AllRoles = []string{RoleRegistrant, RoleHospital, RoleChurch, RoleMosque, RoleRegistrar, RoleManager, RoleAdmin}

// OfficeRoles are the roles allowed to issue certificates and inspect issuance history.
var OfficeRoles = []string{RoleRegistrar, RoleManager, RoleAdmin}

// Identity is the authenticated caller extracted from a verified ID token.
type Identity struct {
	UID   string
	Email string
	Name  string
	Roles []string
}

// HasRole reports whether the identity holds role, ignoring case.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	return role != "" && slices.Contains(i.Roles, role)
}

// HasAnyRole reports whether the identity holds at least one of roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	return slices.ContainsFunc(roles, i.HasRole)
}

type identityKey struct{}

// WithIdentity stores identity on ctx.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity placed on ctx by the authenticator.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
