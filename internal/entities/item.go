package entities

import (
	"encoding/json"
	"fmt"
	"time"
)

// ItemType distinguishes roles from permissions in the authorization graph
type ItemType int

const (
	// TypeRole is an item that can be assigned to users and can contain
	// other roles or permissions
	TypeRole ItemType = 1

	// TypePermission is an item representing an actionable grant.
	// Permissions may have child permissions but never child roles.
	TypePermission ItemType = 2
)

// String returns a string representation of the item type
func (t ItemType) String() string {
	switch t {
	case TypeRole:
		return "role"
	case TypePermission:
		return "permission"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Valid checks if the item type is one of the known values
func (t ItemType) Valid() bool {
	return t == TypeRole || t == TypePermission
}

// Item represents a node in the authorization graph: a role or a permission.
// Name is the primary key and is unique across both types combined.
type Item struct {
	Name        string          `json:"name"`
	Type        ItemType        `json:"type"`
	Description string          `json:"description,omitempty"`
	RuleName    string          `json:"rule_name,omitempty"` // optional reference to a Rule
	Data        json.RawMessage `json:"data,omitempty"`      // opaque payload associated with the item
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewRole creates a transient, unpersisted role item.
// It becomes durable only after Manager.AddItem.
func NewRole(name string) *Item {
	return &Item{Name: name, Type: TypeRole}
}

// NewPermission creates a transient, unpersisted permission item
func NewPermission(name string) *Item {
	return &Item{Name: name, Type: TypePermission}
}

// IsRole reports whether the item is a role
func (i *Item) IsRole() bool {
	return i.Type == TypeRole
}

// IsPermission reports whether the item is a permission
func (i *Item) IsPermission() bool {
	return i.Type == TypePermission
}

// Validate checks if the item is valid
func (i *Item) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("item name is required")
	}
	if !i.Type.Valid() {
		return fmt.Errorf("invalid item type: %d", int(i.Type))
	}
	return nil
}
