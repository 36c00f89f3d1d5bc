package models

import "time"

// User roles.
const (
	RoleAdmin     = "admin"
	RoleLawyer    = "lawyer"
	RoleAssistant = "assistant"
)

// User represents a team member. The api_key doubles as the Basic Auth password.
type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	APIKey    string    `json:"-"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user has unrestricted visibility.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }
