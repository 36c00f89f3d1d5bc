package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeEntry is a record of billable work measured in minutes. billed_at is
// null until the entry is consumed by exactly one sent invoice; once set it is
// immutable (re-billing requires a new entry).
type TimeEntry struct {
	ID                int                 `json:"id"`
	ClientID          int                 `json:"client_id"`
	MatterID          *int                `json:"matter_id"`
	ResponsibleUserID *int                `json:"responsible_user_id"`
	BillingRuleID     *int                `json:"billing_rule_id"`
	EntryDate         string              `json:"entry_date"`
	Description       string              `json:"description"`
	Minutes           int                 `json:"minutes"`
	HourlyRate        decimal.NullDecimal `json:"hourly_rate"` // overrides the rule's rate
	BilledAt          *time.Time          `json:"billed_at"`
	Active            bool                `json:"active"`
	CreatedBy         *int                `json:"created_by"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	// Computed fields
	ClientName      *string `json:"client_name,omitempty"`
	ResponsibleName *string `json:"responsible_name,omitempty"`
}

// Hours returns the entry duration in hours rounded to 2 decimal places.
func (t TimeEntry) Hours() decimal.Decimal {
	return decimal.NewFromInt(int64(t.Minutes)).Div(decimal.NewFromInt(60)).Round(2)
}

// TimeEntryInput is used for creating/updating time entries.
type TimeEntryInput struct {
	ClientID          int                 `json:"client_id"`
	MatterID          *int                `json:"matter_id"`
	ResponsibleUserID *int                `json:"responsible_user_id"`
	BillingRuleID     *int                `json:"billing_rule_id"`
	EntryDate         string              `json:"entry_date"`
	Description       string              `json:"description"`
	Minutes           int                 `json:"minutes"`
	HourlyRate        decimal.NullDecimal `json:"hourly_rate"`
}

func (t *TimeEntryInput) Validate() string {
	if t.ClientID <= 0 {
		return "client_id is required"
	}
	if t.EntryDate == "" {
		return "entry_date is required"
	}
	if _, err := time.Parse("2006-01-02", t.EntryDate); err != nil {
		return "entry_date must be in YYYY-MM-DD format"
	}
	if t.Description == "" {
		return "description is required"
	}
	if t.Minutes <= 0 {
		return "minutes must be positive"
	}
	if t.HourlyRate.Valid && t.HourlyRate.Decimal.IsNegative() {
		return "hourly_rate must be non-negative"
	}
	return ""
}
