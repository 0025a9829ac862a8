package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/erazemk/prenos/internal/db"
	"github.com/erazemk/prenos/internal/model"
)

type fixture struct {
	db     *sql.DB
	owner  *model.User
	other  *model.User
	source *model.Inventory
	dest   *model.Inventory
	item   *model.Item
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner, err := CreateUser(ctx, database, "owner", "hash", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	other, err := CreateUser(ctx, database, "other", "hash", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	source, err := CreateInventory(ctx, database, "Source", owner.ID)
	if err != nil {
		t.Fatalf("CreateInventory: %v", err)
	}
	dest, err := CreateInventory(ctx, database, "Destination", other.ID)
	if err != nil {
		t.Fatalf("CreateInventory: %v", err)
	}
	item, err := CreateItem(ctx, database, "Projector", source.ID)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	return &fixture{db: database, owner: owner, other: other, source: source, dest: dest, item: item}
}

func (f *fixture) pending(t *testing.T, requestedAt time.Time) *model.Transfer {
	t.Helper()
	tr := &model.Transfer{
		ItemID:                 f.item.ID,
		SourceInventoryID:      f.source.ID,
		DestinationInventoryID: f.dest.ID,
		RequestedBy:            f.owner.ID,
		RequestedAt:            requestedAt,
	}
	if err := InsertTransfer(context.Background(), f.db, tr); err != nil {
		t.Fatalf("InsertTransfer: %v", err)
	}
	return tr
}
