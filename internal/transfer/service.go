// Package transfer implements the item transfer workflow: requesting a move
// between inventories and settling pending requests.
package transfer

import (
	"context"
	"database/sql"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/erazemk/prenos/internal/authz"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

// ItemLocator reports and changes where an item is held. Both methods take
// the handle to run on so relocation can join a transaction.
type ItemLocator interface {
	CurrentInventoryID(ctx context.Context, db store.DBTX, itemID int64) (int64, error)
	Relocate(ctx context.Context, db store.DBTX, itemID, from, to int64) error
}

// MembershipIndex reports standing on an inventory.
type MembershipIndex interface {
	HasStanding(ctx context.Context, userID, inventoryID int64) (bool, error)
}

// ResolvedHook is called after a transfer reaches a terminal state and the
// change is committed.
type ResolvedHook func(ctx context.Context, t model.Transfer)

// Service runs the transfer state machine on top of the store.
type Service struct {
	db         *sql.DB
	items      ItemLocator
	index      MembershipIndex
	resolver   *authz.Resolver
	onResolved ResolvedHook
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithResolver replaces authz.Default.
func WithResolver(r *authz.Resolver) Option {
	return func(s *Service) { s.resolver = r }
}

// WithResolvedHook registers the terminal-state callback.
func WithResolvedHook(h ResolvedHook) Option {
	return func(s *Service) { s.onResolved = h }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
func NewService(db *sql.DB, items ItemLocator, index MembershipIndex, opts ...Option) *Service {
	s := &Service{
		db:       db,
		items:    items,
		index:    index,
		resolver: authz.Default,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestInput describes a transfer request.
type RequestInput struct {
	UserID                 int64
	Role                   model.GlobalRole
	ItemID                 int64
	DestinationInventoryID int64
	Details                string
}

// Request opens a transfer of an item into the destination inventory. Users
// with a privileged role get an APPROVED transfer and the item moves at once;
// users with standing on the source inventory get a PENDING transfer.
func (s *Service) Request(ctx context.Context, in RequestInput) (*model.Transfer, error) {
	if in.UserID <= 0 {
		return nil, invalidf("user id must be positive")
	}
	if in.ItemID <= 0 {
		return nil, invalidf("item id must be positive")
	}
	if in.DestinationInventoryID <= 0 {
		return nil, invalidf("destination inventory id must be positive")
	}
	if utf8.RuneCountInString(in.Details) > model.MaxDetailsLength {
		return nil, invalidf("details exceed %d characters", model.MaxDetailsLength)
	}

	source, err := s.items.CurrentInventoryID(ctx, s.db, in.ItemID)
	if errors.Is(err, store.ErrItemNotFound) {
		return nil, notFoundf("item %d", in.ItemID)
	}
	if err != nil {
		return nil, unavailable("locating item", err)
	}

	if source == in.DestinationInventoryID {
		return nil, invalidf("item %d is already in inventory %d", in.ItemID, source)
	}

	verdict, err := s.resolver.ResolveFor(ctx, s.index, in.UserID, in.Role, source)
	if err != nil {
		return nil, unavailable("resolving authorization", err)
	}
	if !verdict.Allowed {
		return nil, &PermissionError{Reason: verdict.Reason}
	}

	// Only authorized callers learn whether the destination exists.
	ok, err := store.InventoryExists(ctx, s.db, in.DestinationInventoryID)
	if err != nil {
		return nil, unavailable("checking destination", err)
	}
	if !ok {
		return nil, notFoundf("inventory %d", in.DestinationInventoryID)
	}

	now := s.now().UTC()
	t := &model.Transfer{
		ItemID:                 in.ItemID,
		SourceInventoryID:      source,
		DestinationInventoryID: in.DestinationInventoryID,
		RequestedBy:            in.UserID,
		RequestedAt:            now,
		Details:                in.Details,
	}

	var created *model.Transfer
	err = store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		// The item may have moved since it was located.
		current, err := s.items.CurrentInventoryID(ctx, tx, in.ItemID)
		if errors.Is(err, store.ErrItemNotFound) {
			return notFoundf("item %d", in.ItemID)
		}
		if err != nil {
			return unavailable("locating item", err)
		}
		if current != source {
			return conflictf("item %d moved while the request was prepared", in.ItemID)
		}

		if err := store.InsertTransfer(ctx, tx, t); err != nil {
			if errors.Is(err, store.ErrPendingExists) {
				return conflictf("pending transfer already exists for item %d", in.ItemID)
			}
			return err
		}

		if verdict.Direct {
			if err := s.complete(ctx, tx, t, in.UserID, "", now); err != nil {
				return err
			}
		}

		created, err = store.GetTransfer(ctx, tx, t.ID)
		return err
	})
	if err != nil {
		return nil, classify("requesting transfer", err)
	}

	if created.Status.IsTerminal() {
		s.resolved(ctx, *created)
	}
	return created, nil
}

// Approve completes a pending transfer and moves the item into the
// destination inventory in the same transaction.
func (s *Service) Approve(ctx context.Context, transferID, actingUserID int64, notes string) (*model.Transfer, error) {
	return s.settle(ctx, transferID, actingUserID, model.TransferApproved, notes)
}

// Reject refuses a pending transfer. The item stays where it is.
func (s *Service) Reject(ctx context.Context, transferID, actingUserID int64, notes string) (*model.Transfer, error) {
	return s.settle(ctx, transferID, actingUserID, model.TransferRejected, notes)
}

// Cancel withdraws a pending transfer. Cancelling an already cancelled
// transfer returns it unchanged.
func (s *Service) Cancel(ctx context.Context, transferID, actingUserID int64) (*model.Transfer, error) {
	return s.settle(ctx, transferID, actingUserID, model.TransferCancelled, "")
}

func (s *Service) settle(ctx context.Context, transferID, actingUserID int64, to model.TransferStatus, notes string) (*model.Transfer, error) {
	if transferID <= 0 {
		return nil, invalidf("transfer id must be positive")
	}
	if actingUserID <= 0 {
		return nil, invalidf("user id must be positive")
	}
	if utf8.RuneCountInString(notes) > model.MaxNotesLength {
		return nil, invalidf("notes exceed %d characters", model.MaxNotesLength)
	}

	now := s.now().UTC()
	var (
		settled *model.Transfer
		changed bool
	)
	err := store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := store.GetTransfer(ctx, tx, transferID)
		if err != nil {
			return err
		}
		if t == nil {
			return notFoundf("transfer %d", transferID)
		}

		if t.Status != model.TransferPending {
			if to == model.TransferCancelled && t.Status == model.TransferCancelled {
				settled = t
				return nil
			}
			return conflictf("transfer %d is %s", transferID, t.Status)
		}

		if to == model.TransferApproved {
			err = s.complete(ctx, tx, t, actingUserID, notes, now)
		} else {
			err = store.ResolveTransfer(ctx, tx, t.ID, to, actingUserID, notes, now)
			if errors.Is(err, store.ErrNotPending) {
				err = conflictf("transfer %d is no longer pending", transferID)
			}
		}
		if err != nil {
			return err
		}

		changed = true
		settled, err = store.GetTransfer(ctx, tx, transferID)
		return err
	})
	if err != nil {
		return nil, classify("settling transfer", err)
	}

	if changed {
		s.resolved(ctx, *settled)
	}
	return settled, nil
}

// complete marks t APPROVED and relocates its item. Must run inside a
// transaction so both writes commit together.
func (s *Service) complete(ctx context.Context, tx *sql.Tx, t *model.Transfer, by int64, notes string, at time.Time) error {
	err := store.ResolveTransfer(ctx, tx, t.ID, model.TransferApproved, by, notes, at)
	if errors.Is(err, store.ErrNotPending) {
		return conflictf("transfer %d is no longer pending", t.ID)
	}
	if err != nil {
		return err
	}

	err = s.items.Relocate(ctx, tx, t.ItemID, t.SourceInventoryID, t.DestinationInventoryID)
	switch {
	case errors.Is(err, store.ErrItemMoved):
		return conflictf("item %d is no longer in inventory %d", t.ItemID, t.SourceInventoryID)
	case errors.Is(err, store.ErrItemNotFound):
		return notFoundf("item %d", t.ItemID)
	case err != nil:
		return unavailable("relocating item", err)
	}
	return nil
}

func (s *Service) resolved(ctx context.Context, t model.Transfer) {
	if s.onResolved != nil {
		s.onResolved(ctx, t)
	}
}
