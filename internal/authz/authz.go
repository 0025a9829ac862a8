// Package authz decides whether a user may move an item and whether the move
// takes effect immediately or waits for approval.
package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/erazemk/prenos/internal/model"
)

// Verdict is the outcome of an authorization check. Direct is only
// meaningful when Allowed is true.
type Verdict struct {
	Allowed bool
	Direct  bool
	Reason  string
}

// StandingChecker reports whether a user owns, manages, or signs for an
// inventory.
type StandingChecker interface {
	HasStanding(ctx context.Context, userID, inventoryID int64) (bool, error)
}

// Resolver applies the transfer rule: privileged roles move items directly,
// users with standing on the source inventory open a pending request, and
// everyone else is denied.
type Resolver struct {
	privileged model.RoleSet
}

// NewResolver returns a Resolver treating the given roles as privileged.
func NewResolver(privileged model.RoleSet) *Resolver {
	return &Resolver{privileged: privileged}
}

// Default uses model.PrivilegedRoles.
var Default = NewResolver(model.PrivilegedRoles)

// Privileged reports whether role bypasses inventory standing.
func (r *Resolver) Privileged(role model.GlobalRole) bool {
	return r.privileged.Contains(role)
}

// Resolve is a pure function of its inputs.
func (r *Resolver) Resolve(role model.GlobalRole, hasStanding bool) Verdict {
	switch {
	case r.Privileged(role):
		return Verdict{Allowed: true, Direct: true}
	case hasStanding:
		return Verdict{Allowed: true}
	default:
		return Verdict{Reason: r.denyReason()}
	}
}

// ResolveFor looks up standing on the source inventory and resolves.
// Privileged roles never touch the index.
func (r *Resolver) ResolveFor(ctx context.Context, index StandingChecker, userID int64, role model.GlobalRole, sourceInventoryID int64) (Verdict, error) {
	if r.Privileged(role) {
		return r.Resolve(role, false), nil
	}
	ok, err := index.HasStanding(ctx, userID, sourceInventoryID)
	if err != nil {
		return Verdict{}, fmt.Errorf("checking standing: %w", err)
	}
	return r.Resolve(role, ok), nil
}

func (r *Resolver) denyReason() string {
	names := make([]string, 0, 4)
	for _, role := range r.privileged.Roles() {
		names = append(names, string(role))
	}
	if len(names) == 0 {
		return "only the owner, a manager or a signatory of the source inventory may transfer this item"
	}
	return fmt.Sprintf("only %s users or the owner, a manager or a signatory of the source inventory may transfer this item",
		strings.Join(names, ", "))
}
