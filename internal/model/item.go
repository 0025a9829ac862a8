package model

import "time"

// Item is a single tracked asset. The transfer workflow only ever reads and
// writes CurrentInventoryID.
type Item struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	CurrentInventoryID int64     `json:"current_inventory_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
