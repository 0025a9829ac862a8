package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/erazemk/prenos/internal/model"
)

// Actor is the authenticated user acting on a transfer.
type Actor struct {
	UserID int64
	Role   model.GlobalRole
}

// ResolutionPolicy decides who may settle a pending transfer.
type ResolutionPolicy interface {
	Name() PolicyName
	// Describe names who may resolve under this policy.
	Describe() string
	// CanResolve reports whether a may approve or reject t.
	CanResolve(ctx context.Context, a Actor, t *model.Transfer) (bool, error)
	// CanCancel reports whether a may withdraw t.
	CanCancel(ctx context.Context, a Actor, t *model.Transfer) (bool, error)
}

// PolicyName selects a built-in ResolutionPolicy.
type PolicyName string

// Built-in policies.
const (
	PolicyDestination PolicyName = "destination"
	PolicySource      PolicyName = "source"
	PolicyEither      PolicyName = "either"
)

// NewPolicy returns the named policy.
func NewPolicy(name string, r *Resolver, index StandingChecker) (ResolutionPolicy, error) {
	switch PolicyName(strings.ToLower(strings.TrimSpace(name))) {
	case PolicyDestination:
		return DestinationCustodian(r, index), nil
	case PolicySource:
		return SourceConfirms(r, index), nil
	case PolicyEither:
		return EitherSide(r, index), nil
	default:
		return nil, fmt.Errorf("unknown approval policy %q", name)
	}
}

// DestinationCustodian lets whoever holds standing on the receiving inventory
// accept or refuse the item.
func DestinationCustodian(r *Resolver, index StandingChecker) ResolutionPolicy {
	return &custodyPolicy{name: PolicyDestination, resolver: r, index: index, destination: true}
}

// SourceConfirms lets the releasing inventory's custodians confirm the move.
func SourceConfirms(r *Resolver, index StandingChecker) ResolutionPolicy {
	return &custodyPolicy{name: PolicySource, resolver: r, index: index, source: true}
}

// EitherSide accepts standing on either inventory.
func EitherSide(r *Resolver, index StandingChecker) ResolutionPolicy {
	return &custodyPolicy{name: PolicyEither, resolver: r, index: index, source: true, destination: true}
}

type custodyPolicy struct {
	name        PolicyName
	resolver    *Resolver
	index       StandingChecker
	source      bool
	destination bool
}

func (p *custodyPolicy) Name() PolicyName { return p.name }

func (p *custodyPolicy) Describe() string {
	side := "source or destination"
	switch {
	case p.destination && !p.source:
		side = "destination"
	case p.source && !p.destination:
		side = "source"
	}
	return fmt.Sprintf("only privileged users or the owner, a manager or a signatory of the %s inventory may resolve this transfer", side)
}

func (p *custodyPolicy) CanResolve(ctx context.Context, a Actor, t *model.Transfer) (bool, error) {
	if p.resolver.Privileged(a.Role) {
		return true, nil
	}
	if p.destination {
		ok, err := p.index.HasStanding(ctx, a.UserID, t.DestinationInventoryID)
		if err != nil || ok {
			return ok, err
		}
	}
	if p.source {
		return p.index.HasStanding(ctx, a.UserID, t.SourceInventoryID)
	}
	return false, nil
}

// CanCancel is the same for every policy: the requester, privileged roles,
// and anyone with standing on the source inventory.
func (p *custodyPolicy) CanCancel(ctx context.Context, a Actor, t *model.Transfer) (bool, error) {
	if a.UserID == t.RequestedBy || p.resolver.Privileged(a.Role) {
		return true, nil
	}
	return p.index.HasStanding(ctx, a.UserID, t.SourceInventoryID)
}
