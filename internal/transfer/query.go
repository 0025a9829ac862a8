package transfer

import (
	"context"

	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

// Get returns a single transfer.
func (s *Service) Get(ctx context.Context, transferID int64) (*model.Transfer, error) {
	if transferID <= 0 {
		return nil, invalidf("transfer id must be positive")
	}
	t, err := store.GetTransfer(ctx, s.db, transferID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, notFoundf("transfer %d", transferID)
	}
	return t, nil
}

// ListPendingByInventory returns the transfers awaiting a decision that
// enter or leave an inventory.
func (s *Service) ListPendingByInventory(ctx context.Context, inventoryID int64, direction model.TransferDirection) ([]model.Transfer, error) {
	if err := s.checkInventory(ctx, inventoryID, direction); err != nil {
		return nil, err
	}
	return store.ListPendingByInventory(ctx, s.db, inventoryID, direction)
}

// ListByInventory returns the full transfer history of an inventory.
func (s *Service) ListByInventory(ctx context.Context, inventoryID int64, direction model.TransferDirection) ([]model.Transfer, error) {
	if err := s.checkInventory(ctx, inventoryID, direction); err != nil {
		return nil, err
	}
	return store.ListTransfersByInventory(ctx, s.db, inventoryID, direction)
}

// ListByItem returns the transfer history of an item.
func (s *Service) ListByItem(ctx context.Context, itemID int64) ([]model.Transfer, error) {
	if itemID <= 0 {
		return nil, invalidf("item id must be positive")
	}
	item, err := store.GetItem(ctx, s.db, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, notFoundf("item %d", itemID)
	}
	return store.ListTransfersByItem(ctx, s.db, itemID)
}

func (s *Service) checkInventory(ctx context.Context, inventoryID int64, direction model.TransferDirection) error {
	if inventoryID <= 0 {
		return invalidf("inventory id must be positive")
	}
	switch direction {
	case model.DirectionAny, model.DirectionIncoming, model.DirectionOutgoing:
	default:
		return invalidf("unknown direction %q", direction)
	}
	ok, err := store.InventoryExists(ctx, s.db, inventoryID)
	if err != nil {
		return err
	}
	if !ok {
		return notFoundf("inventory %d", inventoryID)
	}
	return nil
}
