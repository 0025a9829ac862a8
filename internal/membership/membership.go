// Package membership answers who holds standing on an inventory.
package membership

import (
	"context"
	"errors"
	"slices"

	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

// ErrInventoryNotFound is returned for unknown inventories.
var ErrInventoryNotFound = errors.New("inventory not found")

// Members groups the users with standing on one inventory.
type Members struct {
	InventoryID int64   `json:"inventory_id"`
	Owner       int64   `json:"owner"`
	Managers    []int64 `json:"managers"`
	Signatories []int64 `json:"signatories"`
}

// Has reports whether userID holds any role in m.
func (m Members) Has(userID int64) bool {
	return m.Owner == userID ||
		slices.Contains(m.Managers, userID) ||
		slices.Contains(m.Signatories, userID)
}

// Index reads memberships straight from the database. Nothing is cached,
// so a grant is visible to the next lookup.
type Index struct {
	DB store.DBTX
}

// New returns an Index backed by db.
func New(db store.DBTX) *Index {
	return &Index{DB: db}
}

// MembersOf returns the owner, managers and signatories of an inventory.
func (x *Index) MembersOf(ctx context.Context, inventoryID int64) (Members, error) {
	rows, err := store.ListMembers(ctx, x.DB, inventoryID)
	if errors.Is(err, store.ErrInventoryNotFound) {
		return Members{}, ErrInventoryNotFound
	}
	if err != nil {
		return Members{}, err
	}

	m := Members{InventoryID: inventoryID, Managers: []int64{}, Signatories: []int64{}}
	for _, r := range rows {
		switch r.Role {
		case model.MemberOwner:
			m.Owner = r.UserID
		case model.MemberManager:
			m.Managers = append(m.Managers, r.UserID)
		case model.MemberSignatory:
			m.Signatories = append(m.Signatories, r.UserID)
		}
	}
	return m, nil
}

// HasStanding reports whether userID owns, manages, or signs for an
// inventory. Unknown inventories yield false.
func (x *Index) HasStanding(ctx context.Context, userID, inventoryID int64) (bool, error) {
	return store.HasStanding(ctx, x.DB, userID, inventoryID)
}
