package transfer

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/erazemk/prenos/internal/authz"
	"github.com/erazemk/prenos/internal/db"
	"github.com/erazemk/prenos/internal/membership"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

type env struct {
	db       *sql.DB
	svc      *Service
	owner    *model.User
	receiver *model.User
	stranger *model.User
	source   *model.Inventory
	dest     *model.Inventory
	item     *model.Item
	resolved []model.Transfer
	mu       sync.Mutex
}

func newEnv(t *testing.T) *env {
	t.Helper()
	database := db.NewTestDB(t)
	ctx := context.Background()

	e := &env{db: database}
	var err error
	if e.owner, err = store.CreateUser(ctx, database, "owner", "hash", model.RoleUser); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if e.receiver, err = store.CreateUser(ctx, database, "receiver", "hash", model.RoleUser); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if e.stranger, err = store.CreateUser(ctx, database, "stranger", "hash", model.RoleUser); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if e.source, err = store.CreateInventory(ctx, database, "Source", e.owner.ID); err != nil {
		t.Fatalf("CreateInventory: %v", err)
	}
	if e.dest, err = store.CreateInventory(ctx, database, "Destination", e.receiver.ID); err != nil {
		t.Fatalf("CreateInventory: %v", err)
	}
	if e.item, err = store.CreateItem(ctx, database, "Microscope", e.source.ID); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	e.svc = NewService(database, store.ItemLocator{}, membership.New(database),
		WithResolvedHook(func(_ context.Context, tr model.Transfer) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.resolved = append(e.resolved, tr)
		}),
	)
	return e
}

func (e *env) location(t *testing.T) int64 {
	t.Helper()
	id, err := store.ItemLocator{}.CurrentInventoryID(context.Background(), e.db, e.item.ID)
	if err != nil {
		t.Fatalf("CurrentInventoryID: %v", err)
	}
	return id
}

func (e *env) request(t *testing.T, user *model.User) *model.Transfer {
	t.Helper()
	tr, err := e.svc.Request(context.Background(), RequestInput{
		UserID:                 user.ID,
		Role:                   user.Role,
		ItemID:                 e.item.ID,
		DestinationInventoryID: e.dest.ID,
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	return tr
}

func TestRequestPrivilegedIsDirect(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	clerk, _ := store.CreateUser(ctx, e.db, "clerk", "hash", model.RoleWarehouse)
	tr, err := e.svc.Request(ctx, RequestInput{
		UserID:                 clerk.ID,
		Role:                   model.RoleWarehouse,
		ItemID:                 e.item.ID,
		DestinationInventoryID: e.dest.ID,
		Details:                "moving to storage",
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	if tr.Status != model.TransferApproved {
		t.Errorf("expected APPROVED, got %s", tr.Status)
	}
	if tr.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
	if tr.SourceInventoryID != e.source.ID {
		t.Errorf("expected source %d, got %d", e.source.ID, tr.SourceInventoryID)
	}
	if got := e.location(t); got != e.dest.ID {
		t.Errorf("expected item in %d, got %d", e.dest.ID, got)
	}
	if len(e.resolved) != 1 || e.resolved[0].ID != tr.ID {
		t.Errorf("expected resolved hook for direct transfer, got %v", e.resolved)
	}
}

func TestRequestWithStandingIsPending(t *testing.T) {
	e := newEnv(t)

	tr := e.request(t, e.owner)

	if tr.Status != model.TransferPending {
		t.Errorf("expected PENDING, got %s", tr.Status)
	}
	if tr.CompletedAt != nil {
		t.Error("expected no completed_at on pending transfer")
	}
	if got := e.location(t); got != e.source.ID {
		t.Errorf("expected item to stay in %d, got %d", e.source.ID, got)
	}
	if len(e.resolved) != 0 {
		t.Errorf("expected no resolved hook, got %d", len(e.resolved))
	}
}

func TestApprove(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pending := e.request(t, e.owner)

	tr, err := e.svc.Approve(ctx, pending.ID, e.receiver.ID, "received in good order")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if tr.Status != model.TransferApproved {
		t.Errorf("expected APPROVED, got %s", tr.Status)
	}
	if tr.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
	if tr.ApprovalNotes != "received in good order" {
		t.Errorf("unexpected notes %q", tr.ApprovalNotes)
	}
	if tr.ResolvedBy == nil || *tr.ResolvedBy != e.receiver.ID {
		t.Errorf("expected resolved_by %d, got %v", e.receiver.ID, tr.ResolvedBy)
	}
	if got := e.location(t); got != e.dest.ID {
		t.Errorf("expected item in %d, got %d", e.dest.ID, got)
	}
	if len(e.resolved) != 1 {
		t.Errorf("expected one resolved event, got %d", len(e.resolved))
	}
}

func TestSecondRequestConflicts(t *testing.T) {
	e := newEnv(t)
	e.request(t, e.owner)

	_, err := e.svc.Request(context.Background(), RequestInput{
		UserID:                 e.owner.ID,
		Role:                   e.owner.Role,
		ItemID:                 e.item.ID,
		DestinationInventoryID: e.dest.ID,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "pending transfer already exists") {
		t.Errorf("unexpected message %q", err)
	}
}

func TestCancelThenRequestAgain(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pending := e.request(t, e.owner)

	tr, err := e.svc.Cancel(ctx, pending.ID, e.owner.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if tr.Status != model.TransferCancelled {
		t.Errorf("expected CANCELLED, got %s", tr.Status)
	}
	if tr.CompletedAt != nil {
		t.Error("expected no completed_at on cancelled transfer")
	}
	if got := e.location(t); got != e.source.ID {
		t.Errorf("expected item to stay in %d, got %d", e.source.ID, got)
	}

	again := e.request(t, e.owner)
	if again.Status != model.TransferPending {
		t.Errorf("expected new PENDING transfer, got %s", again.Status)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pending := e.request(t, e.owner)

	first, err := e.svc.Cancel(ctx, pending.ID, e.owner.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	second, err := e.svc.Cancel(ctx, pending.ID, e.owner.ID)
	if err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	if second.Status != model.TransferCancelled || !second.ResolvedAt.Equal(*first.ResolvedAt) {
		t.Errorf("expected unchanged cancelled transfer, got %+v", second)
	}
	if len(e.resolved) != 1 {
		t.Errorf("expected one resolved event, got %d", len(e.resolved))
	}
}

func TestCancelResolvedConflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pending := e.request(t, e.owner)

	if _, err := e.svc.Reject(ctx, pending.ID, e.receiver.ID, "no room"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := e.svc.Cancel(ctx, pending.ID, e.owner.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict cancelling a rejected transfer, got %v", err)
	}
}

func TestReject(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pending := e.request(t, e.owner)

	tr, err := e.svc.Reject(ctx, pending.ID, e.receiver.ID, "no room")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if tr.Status != model.TransferRejected {
		t.Errorf("expected REJECTED, got %s", tr.Status)
	}
	if tr.ApprovalNotes != "no room" {
		t.Errorf("expected notes to be recorded, got %q", tr.ApprovalNotes)
	}
	if got := e.location(t); got != e.source.ID {
		t.Errorf("expected item to stay in %d, got %d", e.source.ID, got)
	}
}

func TestApproveNonPendingNeverMovesItem(t *testing.T) {
	for _, terminal := range []model.TransferStatus{model.TransferApproved, model.TransferRejected, model.TransferCancelled} {
		t.Run(string(terminal), func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			pending := e.request(t, e.owner)

			var err error
			switch terminal {
			case model.TransferApproved:
				_, err = e.svc.Approve(ctx, pending.ID, e.receiver.ID, "")
			case model.TransferRejected:
				_, err = e.svc.Reject(ctx, pending.ID, e.receiver.ID, "")
			case model.TransferCancelled:
				_, err = e.svc.Cancel(ctx, pending.ID, e.owner.ID)
			}
			if err != nil {
				t.Fatalf("resolving: %v", err)
			}
			before := e.location(t)

			if _, err := e.svc.Approve(ctx, pending.ID, e.receiver.ID, ""); !errors.Is(err, ErrConflict) {
				t.Errorf("expected ErrConflict, got %v", err)
			}
			if _, err := e.svc.Reject(ctx, pending.ID, e.receiver.ID, ""); !errors.Is(err, ErrConflict) {
				t.Errorf("expected ErrConflict on reject, got %v", err)
			}
			if got := e.location(t); got != before {
				t.Errorf("item moved from %d to %d", before, got)
			}
		})
	}
}

func TestRequestWithoutStandingDenied(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Request(context.Background(), RequestInput{
		UserID:                 e.stranger.ID,
		Role:                   model.RoleUser,
		ItemID:                 e.item.ID,
		DestinationInventoryID: e.dest.ID,
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	var perr *PermissionError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PermissionError, got %T", err)
	}
	for _, want := range []string{"SUPERADMIN", "ADMIN_INSTITUTION", "ADMIN_REGIONAL", "WAREHOUSE"} {
		if !strings.Contains(perr.Reason, want) {
			t.Errorf("reason %q does not name %s", perr.Reason, want)
		}
	}
}

func TestRequestValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RequestInput
		want error
	}{
		{"zero item", RequestInput{UserID: e.owner.ID, DestinationInventoryID: e.dest.ID}, ErrInvalidArgument},
		{"negative destination", RequestInput{UserID: e.owner.ID, ItemID: e.item.ID, DestinationInventoryID: -1}, ErrInvalidArgument},
		{"same inventory", RequestInput{UserID: e.owner.ID, ItemID: e.item.ID, DestinationInventoryID: e.source.ID}, ErrInvalidArgument},
		{"details too long", RequestInput{UserID: e.owner.ID, ItemID: e.item.ID, DestinationInventoryID: e.dest.ID, Details: strings.Repeat("č", model.MaxDetailsLength+1)}, ErrInvalidArgument},
		{"unknown item", RequestInput{UserID: e.owner.ID, ItemID: 9999, DestinationInventoryID: e.dest.ID}, ErrNotFound},
		{"unknown destination", RequestInput{UserID: e.owner.ID, ItemID: e.item.ID, DestinationInventoryID: 9999}, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Role = model.RoleUser
			if _, err := e.svc.Request(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	// Exactly at the limit is fine.
	tr, err := e.svc.Request(ctx, RequestInput{
		UserID:                 e.owner.ID,
		Role:                   model.RoleUser,
		ItemID:                 e.item.ID,
		DestinationInventoryID: e.dest.ID,
		Details:                strings.Repeat("č", model.MaxDetailsLength),
	})
	if err != nil {
		t.Fatalf("Request at limit: %v", err)
	}
	if tr.Status != model.TransferPending {
		t.Errorf("expected PENDING, got %s", tr.Status)
	}
}

func TestResolveUnknownTransfer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.svc.Approve(ctx, 9999, e.owner.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Approve: expected ErrNotFound, got %v", err)
	}
	if _, err := e.svc.Reject(ctx, 9999, e.owner.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Reject: expected ErrNotFound, got %v", err)
	}
	if _, err := e.svc.Cancel(ctx, 9999, e.owner.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel: expected ErrNotFound, got %v", err)
	}
	if _, err := e.svc.Approve(ctx, 0, e.owner.ID, ""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Approve(0): expected ErrInvalidArgument, got %v", err)
	}
	if _, err := e.svc.Approve(ctx, 1, e.owner.ID, strings.Repeat("x", model.MaxNotesLength+1)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("long notes: expected ErrInvalidArgument, got %v", err)
	}
}

func TestApproveAfterItemMovedConflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pending := e.request(t, e.owner)

	// Someone moved the item out of band.
	third, _ := store.CreateInventory(ctx, e.db, "Third", e.stranger.ID)
	if err := (store.ItemLocator{}).Relocate(ctx, e.db, e.item.ID, e.source.ID, third.ID); err != nil {
		t.Fatalf("Relocate: %v", err)
	}

	if _, err := e.svc.Approve(ctx, pending.ID, e.receiver.ID, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// The status write rolled back with the failed relocation.
	tr, _ := e.svc.Get(ctx, pending.ID)
	if tr.Status != model.TransferPending {
		t.Errorf("expected transfer to stay PENDING, got %s", tr.Status)
	}
	if got := e.location(t); got != third.ID {
		t.Errorf("expected item in %d, got %d", third.ID, got)
	}
}

type failingLocator struct{}

func (failingLocator) CurrentInventoryID(context.Context, store.DBTX, int64) (int64, error) {
	return 0, errors.New("connection refused")
}

func (failingLocator) Relocate(context.Context, store.DBTX, int64, int64, int64) error {
	return errors.New("connection refused")
}

func TestRequestLocatorUnavailable(t *testing.T) {
	e := newEnv(t)
	svc := NewService(e.db, failingLocator{}, membership.New(e.db))

	_, err := svc.Request(context.Background(), RequestInput{
		UserID:                 e.owner.ID,
		Role:                   model.RoleUser,
		ItemID:                 e.item.ID,
		DestinationInventoryID: e.dest.ID,
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

// brokenRelocator finds items but cannot move them.
type brokenRelocator struct {
	store.ItemLocator
}

func (brokenRelocator) Relocate(context.Context, store.DBTX, int64, int64, int64) error {
	return errors.New("item service unreachable")
}

func TestApproveRelocationUnavailable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pending := e.request(t, e.owner)

	svc := NewService(e.db, brokenRelocator{}, membership.New(e.db))
	_, err := svc.Approve(ctx, pending.ID, e.receiver.ID, "")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	tr, err := e.svc.Get(ctx, pending.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tr.Status != model.TransferPending {
		t.Errorf("expected PENDING after failed approve, got %s", tr.Status)
	}
	if got := e.location(t); got != e.source.ID {
		t.Errorf("expected item to stay in %d, got %d", e.source.ID, got)
	}
}

func TestDirectRequestRelocationUnavailable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	svc := NewService(e.db, brokenRelocator{}, membership.New(e.db))
	_, err := svc.Request(ctx, RequestInput{
		UserID:                 e.owner.ID,
		Role:                   model.RoleSuperAdmin,
		ItemID:                 e.item.ID,
		DestinationInventoryID: e.dest.ID,
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	history, err := e.svc.ListByItem(ctx, e.item.ID)
	if err != nil {
		t.Fatalf("ListByItem: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected the failed request to roll back, got %d transfers", len(history))
	}
}

// vanishingLocator finds the item once, then loses it.
type vanishingLocator struct {
	store.ItemLocator
	mu    sync.Mutex
	calls int
}

func (l *vanishingLocator) CurrentInventoryID(ctx context.Context, q store.DBTX, itemID int64) (int64, error) {
	l.mu.Lock()
	l.calls++
	first := l.calls == 1
	l.mu.Unlock()
	if !first {
		return 0, store.ErrItemNotFound
	}
	return l.ItemLocator.CurrentInventoryID(ctx, q, itemID)
}

func TestRequestItemRemovedBeforeInsert(t *testing.T) {
	e := newEnv(t)

	svc := NewService(e.db, &vanishingLocator{}, membership.New(e.db))
	_, err := svc.Request(context.Background(), RequestInput{
		UserID:                 e.owner.ID,
		Role:                   model.RoleUser,
		ItemID:                 e.item.ID,
		DestinationInventoryID: e.dest.ID,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRequestDeniedBeforeDestinationLookup(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Request(context.Background(), RequestInput{
		UserID:                 e.stranger.ID,
		Role:                   model.RoleUser,
		ItemID:                 e.item.ID,
		DestinationInventoryID: 9999,
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied for unknown destination, got %v", err)
	}
}

func TestClockStampsTransitions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	requested := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	approved := requested.Add(90 * time.Minute)
	now := requested
	svc := NewService(e.db, store.ItemLocator{}, membership.New(e.db),
		WithClock(func() time.Time { return now }),
	)

	pending, err := svc.Request(ctx, RequestInput{
		UserID:                 e.owner.ID,
		Role:                   model.RoleUser,
		ItemID:                 e.item.ID,
		DestinationInventoryID: e.dest.ID,
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !pending.RequestedAt.Equal(requested) {
		t.Errorf("expected requested_at %v, got %v", requested, pending.RequestedAt)
	}

	now = approved
	tr, err := svc.Approve(ctx, pending.ID, e.receiver.ID, "")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if tr.CompletedAt == nil || !tr.CompletedAt.Equal(approved) {
		t.Errorf("expected completed_at %v, got %v", approved, tr.CompletedAt)
	}
	if tr.ResolvedAt == nil || !tr.ResolvedAt.Equal(approved) {
		t.Errorf("expected resolved_at %v, got %v", approved, tr.ResolvedAt)
	}
	if tr.ResolvedBy == nil || *tr.ResolvedBy != e.receiver.ID {
		t.Errorf("expected resolved_by %d, got %v", e.receiver.ID, tr.ResolvedBy)
	}
}

func TestResolverDecidesDirectOrPending(t *testing.T) {
	ctx := context.Background()

	t.Run("user treated as privileged", func(t *testing.T) {
		e := newEnv(t)
		svc := NewService(e.db, store.ItemLocator{}, membership.New(e.db),
			WithResolver(authz.NewResolver(model.NewRoleSet(model.RoleUser))),
		)
		tr, err := svc.Request(ctx, RequestInput{
			UserID:                 e.stranger.ID,
			Role:                   model.RoleUser,
			ItemID:                 e.item.ID,
			DestinationInventoryID: e.dest.ID,
		})
		if err != nil {
			t.Fatalf("Request: %v", err)
		}
		if tr.Status != model.TransferApproved {
			t.Errorf("expected APPROVED, got %s", tr.Status)
		}
		if got := e.location(t); got != e.dest.ID {
			t.Errorf("expected item in %d, got %d", e.dest.ID, got)
		}
	})

	t.Run("no privileged roles", func(t *testing.T) {
		e := newEnv(t)
		svc := NewService(e.db, store.ItemLocator{}, membership.New(e.db),
			WithResolver(authz.NewResolver(model.NewRoleSet())),
		)

		_, err := svc.Request(ctx, RequestInput{
			UserID:                 e.stranger.ID,
			Role:                   model.RoleSuperAdmin,
			ItemID:                 e.item.ID,
			DestinationInventoryID: e.dest.ID,
		})
		if !errors.Is(err, ErrPermissionDenied) {
			t.Fatalf("expected ErrPermissionDenied, got %v", err)
		}

		tr, err := svc.Request(ctx, RequestInput{
			UserID:                 e.owner.ID,
			Role:                   model.RoleSuperAdmin,
			ItemID:                 e.item.ID,
			DestinationInventoryID: e.dest.ID,
		})
		if err != nil {
			t.Fatalf("Request: %v", err)
		}
		if tr.Status != model.TransferPending {
			t.Errorf("expected PENDING, got %s", tr.Status)
		}
	})
}
