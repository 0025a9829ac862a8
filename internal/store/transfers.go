package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/prenos/internal/model"
)

const transferColumns = `id, item_id, source_inventory_id, destination_inventory_id,
	requested_by, requested_at, status, details, approval_notes,
	completed_at, resolved_by, resolved_at`

// InsertTransfer stores t as a new PENDING transfer and sets t.ID.
// A second pending transfer for the same item reports ErrPendingExists.
func InsertTransfer(ctx context.Context, db DBTX, t *model.Transfer) error {
	result, err := db.ExecContext(ctx,
		`INSERT INTO transfers (item_id, source_inventory_id, destination_inventory_id,
		                        requested_by, requested_at, status, details)
		 VALUES (?, ?, ?, ?, ?, 'PENDING', ?)`,
		t.ItemID, t.SourceInventoryID, t.DestinationInventoryID,
		t.RequestedBy, t.RequestedAt.UTC(), nullString(t.Details),
	)
	if isUniqueViolation(err) {
		return ErrPendingExists
	}
	if err != nil {
		return fmt.Errorf("inserting transfer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting transfer id: %w", err)
	}
	t.ID = id
	t.Status = model.TransferPending
	return nil
}

// ResolveTransfer moves a PENDING transfer into the terminal status to.
// The update only applies while the row is still PENDING; otherwise
// ErrNotPending is returned. Notes, when non-empty, replace the stored
// approval notes. The completion timestamp is written only for APPROVED.
func ResolveTransfer(ctx context.Context, db DBTX, id int64, to model.TransferStatus, by int64, notes string, at time.Time) error {
	if !to.IsTerminal() {
		return fmt.Errorf("resolving transfer: %q is not a terminal status", to)
	}

	at = at.UTC()
	var completedAt sql.NullTime
	if to == model.TransferApproved {
		completedAt = sql.NullTime{Time: at, Valid: true}
	}

	result, err := db.ExecContext(ctx,
		`UPDATE transfers
		 SET status = ?, approval_notes = COALESCE(?, approval_notes),
		     completed_at = ?, resolved_by = ?, resolved_at = ?
		 WHERE id = ? AND status = 'PENDING'`,
		to, nullString(notes), completedAt, by, at, id,
	)
	if err != nil {
		return fmt.Errorf("resolving transfer: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolving transfer: %w", err)
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

// GetTransfer returns a transfer by ID, or nil if it does not exist.
func GetTransfer(ctx context.Context, db DBTX, id int64) (*model.Transfer, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = ?`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("getting transfer: %w", err)
	}
	defer rows.Close()

	transfers, err := scanTransfers(rows)
	if err != nil {
		return nil, fmt.Errorf("getting transfer: %w", err)
	}
	if len(transfers) == 0 {
		return nil, nil
	}
	return &transfers[0], nil
}

// ListPendingByInventory returns PENDING transfers touching an inventory,
// newest first. Direction selects incoming, outgoing, or both.
func ListPendingByInventory(ctx context.Context, db DBTX, inventoryID int64, direction model.TransferDirection) ([]model.Transfer, error) {
	where, args, err := inventoryFilter(inventoryID, direction)
	if err != nil {
		return nil, err
	}
	return queryTransfers(ctx, db, where+` AND status = 'PENDING'`, args...)
}

// ListTransfersByInventory returns every transfer touching an inventory,
// newest first.
func ListTransfersByInventory(ctx context.Context, db DBTX, inventoryID int64, direction model.TransferDirection) ([]model.Transfer, error) {
	where, args, err := inventoryFilter(inventoryID, direction)
	if err != nil {
		return nil, err
	}
	return queryTransfers(ctx, db, where, args...)
}

// ListTransfersByItem returns the transfer history of an item, newest first.
func ListTransfersByItem(ctx context.Context, db DBTX, itemID int64) ([]model.Transfer, error) {
	return queryTransfers(ctx, db, `item_id = ?`, itemID)
}

func inventoryFilter(inventoryID int64, direction model.TransferDirection) (string, []any, error) {
	switch direction {
	case model.DirectionIncoming:
		return `destination_inventory_id = ?`, []any{inventoryID}, nil
	case model.DirectionOutgoing:
		return `source_inventory_id = ?`, []any{inventoryID}, nil
	case model.DirectionAny:
		return `(source_inventory_id = ? OR destination_inventory_id = ?)`, []any{inventoryID, inventoryID}, nil
	default:
		return "", nil, fmt.Errorf("unknown transfer direction %q", direction)
	}
}

func queryTransfers(ctx context.Context, db DBTX, where string, args ...any) ([]model.Transfer, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers
		 WHERE `+where+`
		 ORDER BY requested_at DESC, id DESC`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	defer rows.Close()

	return scanTransfers(rows)
}

func scanTransfers(rows *sql.Rows) ([]model.Transfer, error) {
	transfers := []model.Transfer{}
	for rows.Next() {
		var t model.Transfer
		var details, notes sql.NullString
		var completedAt, resolvedAt sql.NullTime
		var resolvedBy sql.NullInt64
		if err := rows.Scan(&t.ID, &t.ItemID, &t.SourceInventoryID, &t.DestinationInventoryID,
			&t.RequestedBy, &t.RequestedAt, &t.Status, &details, &notes,
			&completedAt, &resolvedBy, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		t.Details = details.String
		t.ApprovalNotes = notes.String
		if completedAt.Valid {
			t.CompletedAt = &completedAt.Time
		}
		if resolvedBy.Valid {
			t.ResolvedBy = &resolvedBy.Int64
		}
		if resolvedAt.Valid {
			t.ResolvedAt = &resolvedAt.Time
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
