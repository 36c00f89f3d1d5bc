package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Billing rule kinds.
const (
	RuleHourly     = "hourly"
	RuleSuccessFee = "success_fee"
	RulePackage    = "package"
	RuleRecurring  = "recurring"
)

// BillingRule is a pricing policy attached to a client or matter. Exactly one
// kind-specific amount field is required for its kind.
type BillingRule struct {
	ID                int                 `json:"id"`
	ClientID          int                 `json:"client_id"`
	MatterID          *int                `json:"matter_id"`
	Title             string              `json:"title"`
	Kind              string              `json:"kind"`
	HourlyRate        decimal.NullDecimal `json:"hourly_rate"`
	SuccessFeePercent decimal.NullDecimal `json:"success_fee_percent"`
	PackageAmount     decimal.NullDecimal `json:"package_amount"`
	RecurringAmount   decimal.NullDecimal `json:"recurring_amount"`
	RecurringDueDay   *int                `json:"recurring_due_day"`
	Notes             string              `json:"notes"`
	Active            bool                `json:"active"`
	CreatedBy         *int                `json:"created_by"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	// Computed fields
	ClientName *string `json:"client_name,omitempty"`
}

// BillingRuleInput is used for creating/updating billing rules.
type BillingRuleInput struct {
	ClientID          int                 `json:"client_id"`
	MatterID          *int                `json:"matter_id"`
	Title             string              `json:"title"`
	Kind              string              `json:"kind"`
	HourlyRate        decimal.NullDecimal `json:"hourly_rate"`
	SuccessFeePercent decimal.NullDecimal `json:"success_fee_percent"`
	PackageAmount     decimal.NullDecimal `json:"package_amount"`
	RecurringAmount   decimal.NullDecimal `json:"recurring_amount"`
	RecurringDueDay   *int                `json:"recurring_due_day"`
	Notes             string              `json:"notes"`
}

func (b *BillingRuleInput) Validate() string {
	if b.ClientID <= 0 {
		return "client_id is required"
	}
	if b.Title == "" {
		return "title is required"
	}
	switch b.Kind {
	case RuleHourly:
		if !b.HourlyRate.Valid || !b.HourlyRate.Decimal.IsPositive() {
			return "hourly rules require hourly_rate > 0"
		}
	case RuleSuccessFee:
		if !b.SuccessFeePercent.Valid {
			return "success_fee rules require success_fee_percent"
		}
		pct := b.SuccessFeePercent.Decimal
		if !pct.IsPositive() || pct.GreaterThan(decimal.NewFromInt(100)) {
			return "success_fee_percent must be greater than 0 and at most 100"
		}
	case RulePackage:
		if !b.PackageAmount.Valid || !b.PackageAmount.Decimal.IsPositive() {
			return "package rules require package_amount > 0"
		}
	case RuleRecurring:
		if !b.RecurringAmount.Valid || !b.RecurringAmount.Decimal.IsPositive() {
			return "recurring rules require recurring_amount > 0"
		}
		if b.RecurringDueDay != nil && (*b.RecurringDueDay < 1 || *b.RecurringDueDay > 28) {
			return "recurring_due_day must be between 1 and 28"
		}
	default:
		return "kind must be one of: hourly, success_fee, package, recurring"
	}
	return ""
}
