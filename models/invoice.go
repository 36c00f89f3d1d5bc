package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice statuses.
const (
	InvoiceDraft     = "draft"
	InvoiceSent      = "sent"
	InvoicePaid      = "paid"
	InvoiceOverdue   = "overdue"
	InvoiceCancelled = "cancelled"
)

// Online payment statuses.
const (
	OnlineNone      = "none"
	OnlineAwaiting  = "awaiting"
	OnlinePaid      = "paid"
	OnlineExpired   = "expired"
	OnlineCancelled = "cancelled"
)

// Invoice aggregates time, expense, and fixed-fee items for a client/matter
// over a period. total is always the sum of the item line totals; it is
// recomputed from the persisted items, never incremented.
type Invoice struct {
	ID                int             `json:"id"`
	Number            string          `json:"number"`
	ClientID          int             `json:"client_id"`
	MatterID          *int            `json:"matter_id"`
	BillingRuleID     *int            `json:"billing_rule_id"`
	PeriodStart       *string         `json:"period_start"`
	PeriodEnd         *string         `json:"period_end"`
	IssueDate         string          `json:"issue_date"`
	DueDate           string          `json:"due_date"`
	Status            string          `json:"status"`
	SubtotalTime      decimal.Decimal `json:"subtotal_time"`
	SubtotalExpenses  decimal.Decimal `json:"subtotal_expenses"`
	SubtotalOther     decimal.Decimal `json:"subtotal_other"`
	Total             decimal.Decimal `json:"total"`
	Gateway           string          `json:"gateway"`
	OnlineStatus      string          `json:"online_status"`
	OnlineExternalID  *string         `json:"online_external_id"`
	OnlineURL         *string         `json:"online_url"`
	OnlinePaidAt      *time.Time      `json:"online_paid_at"`
	ReceivableEntryID *int            `json:"receivable_entry_id"`
	Notes             string          `json:"notes"`
	CreatedBy         *int            `json:"created_by"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	// Computed fields
	ClientName *string       `json:"client_name,omitempty"`
	Items      []InvoiceItem `json:"items"`
}

// Invoice item kinds.
const (
	ItemTime       = "time"
	ItemExpense    = "expense"
	ItemService    = "service"
	ItemAdjustment = "adjustment"
)

// InvoiceItem is a single invoice line. line_total = round(quantity x unit_price, 2).
type InvoiceItem struct {
	ID          int             `json:"id"`
	InvoiceID   int             `json:"invoice_id"`
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	TimeEntryID *int            `json:"time_entry_id"`
	ExpenseID   *int            `json:"expense_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

// InvoiceItemInput is used for appending manual items to a draft invoice.
type InvoiceItemInput struct {
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (i *InvoiceItemInput) Validate() string {
	switch i.Kind {
	case ItemTime, ItemExpense, ItemService, ItemAdjustment:
	default:
		return "kind must be one of: time, expense, service, adjustment"
	}
	if i.Description == "" {
		return "description is required"
	}
	if i.Quantity.IsZero() {
		i.Quantity = decimal.NewFromInt(1)
	}
	if !i.Quantity.IsPositive() {
		return "quantity must be positive"
	}
	if i.UnitPrice.IsNegative() {
		return "unit_price must be non-negative"
	}
	i.Quantity = i.Quantity.Round(2)
	i.UnitPrice = i.UnitPrice.Round(2)
	return ""
}
