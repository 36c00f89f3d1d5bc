package models

import "time"

// Client represents a person or company the firm works for.
type Client struct {
	ID                int       `json:"id"`
	Name              string    `json:"name"`
	Kind              string    `json:"kind"` // person, company
	Email             *string   `json:"email"`
	Phone             *string   `json:"phone"`
	ResponsibleUserID *int      `json:"responsible_user_id"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	// Computed fields
	ResponsibleName *string `json:"responsible_name,omitempty"`
}

// ClientInput is used for creating/updating clients.
type ClientInput struct {
	Name              string  `json:"name"`
	Kind              string  `json:"kind"`
	Email             *string `json:"email"`
	Phone             *string `json:"phone"`
	ResponsibleUserID *int    `json:"responsible_user_id"`
}

func (c *ClientInput) Validate() string {
	if c.Name == "" {
		return "name is required"
	}
	switch c.Kind {
	case "":
		c.Kind = "person"
	case "person", "company":
	default:
		return "kind must be one of: person, company"
	}
	return ""
}
