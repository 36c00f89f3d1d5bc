package models

import "time"

// Matter represents a legal case handled for a client.
type Matter struct {
	ID        int       `json:"id"`
	ClientID  int       `json:"client_id"`
	Number    string    `json:"number"`
	Subject   string    `json:"subject"`
	Status    string    `json:"status"` // open, suspended, closed, archived
	LawyerID  *int      `json:"lawyer_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// Computed fields
	ClientName *string `json:"client_name,omitempty"`
	LawyerName *string `json:"lawyer_name,omitempty"`
}

// MatterInput is used for creating/updating matters.
type MatterInput struct {
	ClientID int    `json:"client_id"`
	Number   string `json:"number"`
	Subject  string `json:"subject"`
	Status   string `json:"status"`
	LawyerID *int   `json:"lawyer_id"`
}

func (m *MatterInput) Validate() string {
	if m.ClientID <= 0 {
		return "client_id is required"
	}
	if m.Number == "" {
		return "number is required"
	}
	switch m.Status {
	case "":
		m.Status = "open"
	case "open", "suspended", "closed", "archived":
	default:
		return "status must be one of: open, suspended, closed, archived"
	}
	return ""
}
