package model

import (
	"fmt"
	"strings"
	"time"
)

// Inventory is a custody unit that holds items.
type Inventory struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MembershipRole is a user's standing on a single inventory.
type MembershipRole string

// Membership roles.
const (
	MemberOwner     MembershipRole = "OWNER"
	MemberManager   MembershipRole = "MANAGER"
	MemberSignatory MembershipRole = "SIGNATORY"
)

// ParseMembershipRole converts s to a MembershipRole, ignoring case.
func ParseMembershipRole(s string) (MembershipRole, error) {
	switch r := MembershipRole(strings.ToUpper(strings.TrimSpace(s))); r {
	case MemberOwner, MemberManager, MemberSignatory:
		return r, nil
	default:
		return "", fmt.Errorf("unknown membership role %q", s)
	}
}

// Membership links a user to an inventory.
type Membership struct {
	InventoryID int64          `json:"inventory_id"`
	UserID      int64          `json:"user_id"`
	Role        MembershipRole `json:"role"`
}
