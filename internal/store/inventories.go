package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/prenos/internal/model"
)

// CreateInventory creates an inventory owned by ownerID.
func CreateInventory(ctx context.Context, db DBTX, name string, ownerID int64) (*model.Inventory, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO inventories (name, owner_id) VALUES (?, ?)`,
		name, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating inventory: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting inventory id: %w", err)
	}

	return GetInventory(ctx, db, id)
}

// GetInventory returns an inventory by ID, or nil if it does not exist.
func GetInventory(ctx context.Context, db DBTX, id int64) (*model.Inventory, error) {
	inv := &model.Inventory{}
	err := db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, created_at FROM inventories WHERE id = ?`, id,
	).Scan(&inv.ID, &inv.Name, &inv.OwnerID, &inv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting inventory: %w", err)
	}
	return inv, nil
}

// InventoryExists reports whether an inventory with the given ID exists.
func InventoryExists(ctx context.Context, db DBTX, id int64) (bool, error) {
	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM inventories WHERE id = ?)`, id,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking inventory: %w", err)
	}
	return exists, nil
}

// AddMember grants userID a manager or signatory role on an inventory.
// Ownership is fixed when the inventory is created.
func AddMember(ctx context.Context, db DBTX, inventoryID, userID int64, role model.MembershipRole) error {
	if role != model.MemberManager && role != model.MemberSignatory {
		return fmt.Errorf("adding member: role %q cannot be granted", role)
	}
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO inventory_members (inventory_id, user_id, role) VALUES (?, ?, ?)`,
		inventoryID, userID, role,
	)
	if err != nil {
		return fmt.Errorf("adding member: %w", err)
	}
	return nil
}

// RemoveMember revokes a manager or signatory role.
func RemoveMember(ctx context.Context, db DBTX, inventoryID, userID int64, role model.MembershipRole) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM inventory_members WHERE inventory_id = ? AND user_id = ? AND role = ?`,
		inventoryID, userID, role,
	)
	if err != nil {
		return fmt.Errorf("removing member: %w", err)
	}
	return nil
}

// ListMembers returns every membership on an inventory, owner first.
// Unknown inventories report ErrInventoryNotFound.
func ListMembers(ctx context.Context, db DBTX, inventoryID int64) ([]model.Membership, error) {
	var ownerID int64
	err := db.QueryRowContext(ctx,
		`SELECT owner_id FROM inventories WHERE id = ?`, inventoryID,
	).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInventoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting inventory owner: %w", err)
	}

	members := []model.Membership{{InventoryID: inventoryID, UserID: ownerID, Role: model.MemberOwner}}

	rows, err := db.QueryContext(ctx,
		`SELECT user_id, role FROM inventory_members
		 WHERE inventory_id = ? ORDER BY role, user_id`, inventoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m := model.Membership{InventoryID: inventoryID}
		if err := rows.Scan(&m.UserID, &m.Role); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// HasStanding reports whether userID owns, manages, or signs for an inventory.
func HasStanding(ctx context.Context, db DBTX, userID, inventoryID int64) (bool, error) {
	var ok bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM inventories WHERE id = ? AND owner_id = ?)
		     OR EXISTS (SELECT 1 FROM inventory_members WHERE inventory_id = ? AND user_id = ?)`,
		inventoryID, userID, inventoryID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("checking standing: %w", err)
	}
	return ok, nil
}
