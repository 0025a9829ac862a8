package model

import "time"

// Length limits for free-text transfer fields, in runes.
const (
	MaxDetailsLength = 500
	MaxNotesLength   = 1000
)

// TransferStatus is the lifecycle state of a transfer.
type TransferStatus string

// Transfer statuses. PENDING is the only non-terminal state.
const (
	TransferPending   TransferStatus = "PENDING"
	TransferApproved  TransferStatus = "APPROVED"
	TransferRejected  TransferStatus = "REJECTED"
	TransferCancelled TransferStatus = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s TransferStatus) Valid() bool {
	switch s {
	case TransferPending, TransferApproved, TransferRejected, TransferCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether s can no longer change.
func (s TransferStatus) IsTerminal() bool {
	return s.Valid() && s != TransferPending
}

// Transfer records a request to move one item between two inventories.
type Transfer struct {
	ID                     int64          `json:"id"`
	ItemID                 int64          `json:"item_id"`
	SourceInventoryID      int64          `json:"source_inventory_id"`
	DestinationInventoryID int64          `json:"destination_inventory_id"`
	RequestedBy            int64          `json:"requested_by"`
	RequestedAt            time.Time      `json:"requested_at"`
	Status                 TransferStatus `json:"status"`
	Details                string         `json:"details,omitempty"`
	ApprovalNotes          string         `json:"approval_notes,omitempty"`
	CompletedAt            *time.Time     `json:"completed_at,omitempty"`
	ResolvedBy             *int64         `json:"resolved_by,omitempty"`
	ResolvedAt             *time.Time     `json:"resolved_at,omitempty"`
}

// TransferDirection narrows inventory listings to one side of a transfer.
type TransferDirection string

// Transfer directions relative to an inventory. The zero value matches both.
const (
	DirectionAny      TransferDirection = ""
	DirectionIncoming TransferDirection = "incoming"
	DirectionOutgoing TransferDirection = "outgoing"
)
