package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger entry types and statuses (the billing-relevant slice of the ledger).
const (
	EntryReceivable = "receivable"
	EntryExpense    = "expense"

	EntryPending   = "pending"
	EntryPaid      = "paid"
	EntryOverdue   = "overdue"
	EntryCancelled = "cancelled"
)

// LedgerEntry is a financial entry tied to a client. Reimbursable expense
// entries follow the same consume-once billed_at contract as time entries;
// receivable entries are created and updated only by the invoice lifecycle.
type LedgerEntry struct {
	ID           int             `json:"id"`
	ClientID     int             `json:"client_id"`
	MatterID     *int            `json:"matter_id"`
	EntryType    string          `json:"entry_type"` // receivable, expense
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	DueDate      *string         `json:"due_date"`
	PaidAt       *string         `json:"paid_at"`
	Status       string          `json:"status"` // pending, paid, overdue, cancelled
	Reimbursable bool            `json:"reimbursable"`
	BilledAt     *time.Time      `json:"billed_at"`
	CreatedBy    *int            `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	// Computed fields
	ClientName *string `json:"client_name,omitempty"`
}

// ExpenseInput is used for recording expenses in the ledger.
type ExpenseInput struct {
	ClientID     int             `json:"client_id"`
	MatterID     *int            `json:"matter_id"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	DueDate      *string         `json:"due_date"`
	PaidAt       *string         `json:"paid_at"`
	Status       string          `json:"status"`
	Reimbursable bool            `json:"reimbursable"`
}

func (e *ExpenseInput) Validate() string {
	if e.ClientID <= 0 {
		return "client_id is required"
	}
	if e.Description == "" {
		return "description is required"
	}
	if !e.Amount.IsPositive() {
		return "amount must be positive"
	}
	switch e.Status {
	case "":
		e.Status = EntryPending
	case EntryPending, EntryPaid, EntryOverdue, EntryCancelled:
	default:
		return "status must be one of: pending, paid, overdue, cancelled"
	}
	if e.PaidAt != nil {
		if _, err := time.Parse("2006-01-02", *e.PaidAt); err != nil {
			return "paid_at must be in YYYY-MM-DD format"
		}
	}
	if e.Status == EntryPaid && e.PaidAt == nil {
		return "paid_at is required for paid entries"
	}
	e.Amount = e.Amount.Round(2)
	return ""
}
