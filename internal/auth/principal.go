// Package auth turns bearer tokens into a Principal and guards routes with
// capability checks.
package auth

import (
	"context"

	"github.com/joao-fontenele/marketplace/internal/domain"
)

// Principal is the authenticated caller. Role is only set for admins.
type Principal struct {
	Kind domain.AccountKind
	ID   string
	Role domain.AdminRole
}

func UserPrincipal(id string) Principal {
	return Principal{Kind: domain.AccountUser, ID: id}
}

func AdminPrincipal(id string, role domain.AdminRole) Principal {
	return Principal{Kind: domain.AccountAdmin, ID: id, Role: role}
}

func (p Principal) IsAdmin() bool {
	return p.Kind == domain.AccountAdmin && p.Role.Valid()
}

func (p Principal) Account() domain.AccountRef {
	return domain.AccountRef{Kind: p.Kind, ID: p.ID}
}

func (p Principal) CanManageOrders() bool  { return p.IsAdmin() }
func (p Principal) CanManageCatalog() bool { return p.IsAdmin() }
func (p Principal) CanManageUsers() bool   { return p.IsAdmin() }

func (p Principal) CanManageAdmins() bool {
	return p.Kind == domain.AccountAdmin && p.Role == domain.RoleSuperAdmin
}

// CanActFor reports whether the caller may operate on userID's resources.
func (p Principal) CanActFor(userID string) bool {
	if p.IsAdmin() {
		return true
	}
	return p.Kind == domain.AccountUser && p.ID != "" && p.ID == userID
}

// Capability is a predicate over the caller, usually a Principal method
// expression such as Principal.CanManageOrders.
type Capability func(Principal) bool

// AnyAccount admits every authenticated caller.
func AnyAccount(Principal) bool { return true }

// UserOnly admits end users and rejects admins.
func UserOnly(p Principal) bool { return p.Kind == domain.AccountUser }

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
