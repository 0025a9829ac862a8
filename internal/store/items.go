package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/prenos/internal/model"
)

// CreateItem registers an item located in the given inventory.
func CreateItem(ctx context.Context, db DBTX, name string, inventoryID int64) (*model.Item, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO items (name, current_inventory_id) VALUES (?, ?)`,
		name, inventoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID, or nil if it does not exist.
func GetItem(ctx context.Context, db DBTX, id int64) (*model.Item, error) {
	item := &model.Item{}
	err := db.QueryRowContext(ctx,
		`SELECT id, name, current_inventory_id, created_at, updated_at
		 FROM items WHERE id = ?`, id,
	).Scan(&item.ID, &item.Name, &item.CurrentInventoryID, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ItemLocator answers where an item currently is and moves it.
type ItemLocator struct{}

// CurrentInventoryID returns the inventory that currently holds itemID.
func (ItemLocator) CurrentInventoryID(ctx context.Context, db DBTX, itemID int64) (int64, error) {
	var inventoryID int64
	err := db.QueryRowContext(ctx,
		`SELECT current_inventory_id FROM items WHERE id = ?`, itemID,
	).Scan(&inventoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrItemNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("locating item: %w", err)
	}
	return inventoryID, nil
}

// Relocate moves itemID from one inventory to another. The update only
// applies while the item is still in from; otherwise ErrItemMoved is returned.
func (ItemLocator) Relocate(ctx context.Context, db DBTX, itemID, from, to int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE items SET current_inventory_id = ?, updated_at = ?
		 WHERE id = ? AND current_inventory_id = ?`,
		to, time.Now().UTC(), itemID, from,
	)
	if err != nil {
		return fmt.Errorf("relocating item: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("relocating item: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM items WHERE id = ?)`, itemID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("checking item: %w", err)
	}
	if !exists {
		return ErrItemNotFound
	}
	return ErrItemMoved
}
