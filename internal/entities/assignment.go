package entities

import (
	"fmt"
	"time"
)

// Assignment represents a direct grant of a role to a user.
// UserID is opaque to the engine and always compared as a string.
// At most one assignment exists per (UserID, RoleName) pair.
type Assignment struct {
	UserID    string    `json:"user_id"`
	RoleName  string    `json:"role_name"`
	CreatedAt time.Time `json:"created_at"`
}

// String returns a string representation of the assignment
// Format: user_id@role_name
func (a *Assignment) String() string {
	return fmt.Sprintf("%s@%s", a.UserID, a.RoleName)
}

// Validate checks if the assignment is valid
func (a *Assignment) Validate() error {
	if a.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	if a.RoleName == "" {
		return fmt.Errorf("role name is required")
	}
	return nil
}
