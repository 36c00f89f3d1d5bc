package billing

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rmaia/advoc/models"
)

// numberingAttempts bounds the retry loop around the invoice number unique index.
const numberingAttempts = 3

// Adjustment is an optional free-form line added verbatim to a generated invoice.
type Adjustment struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// GenerateInput describes one invoice generation request.
type GenerateInput struct {
	ClientID        int                 `json:"client_id"`
	MatterID        *int                `json:"matter_id"`
	BillingRuleID   *int                `json:"billing_rule_id"`
	PeriodStart     string              `json:"period_start"`
	PeriodEnd       string              `json:"period_end"`
	DueDate         string              `json:"due_date"`
	IncludeExpenses bool                `json:"include_reimbursable_expenses"`
	SuccessFeeBase  decimal.NullDecimal `json:"success_fee_base"`
	Adjustment      *Adjustment         `json:"manual_adjustment"`
	Notes           string              `json:"notes"`
}

func (in *GenerateInput) validate() error {
	if in.ClientID <= 0 {
		return validationf("client_id is required")
	}
	for name, val := range map[string]string{
		"period_start": in.PeriodStart,
		"period_end":   in.PeriodEnd,
		"due_date":     in.DueDate,
	} {
		if val == "" {
			return validationf("%s is required", name)
		}
		if _, err := time.Parse("2006-01-02", val); err != nil {
			return validationf("%s must be in YYYY-MM-DD format", name)
		}
	}
	if in.PeriodEnd < in.PeriodStart {
		return validationf("period_end must not precede period_start")
	}
	if in.SuccessFeeBase.Valid && in.SuccessFeeBase.Decimal.IsNegative() {
		return validationf("success_fee_base must be non-negative")
	}
	if in.Adjustment != nil && in.Adjustment.Description == "" {
		return validationf("manual_adjustment requires a description")
	}
	return nil
}

// billingRule is the slice of a rule the generator needs.
type billingRule struct {
	ID                int
	Kind              string
	Title             string
	HourlyRate        decimal.NullDecimal
	SuccessFeePercent decimal.NullDecimal
	PackageAmount     decimal.NullDecimal
	RecurringAmount   decimal.NullDecimal
}

// Generate assembles a draft invoice from unconsumed time entries and
// reimbursable expenses for the period. No source entry is marked billed here;
// consumption happens only when the draft is sent, so drafts stay discardable.
func Generate(db *sql.DB, auth Authorizer, actor models.User, in GenerateInput) (*models.Invoice, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var clientActive bool
	err := db.QueryRow("SELECT active FROM clients WHERE id = ?", in.ClientID).Scan(&clientActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("client %d: %w", in.ClientID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if in.MatterID != nil {
		var matterClient int
		err := db.QueryRow("SELECT client_id FROM matters WHERE id = ?", *in.MatterID).Scan(&matterClient)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("matter %d: %w", *in.MatterID, ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		if matterClient != in.ClientID {
			return nil, validationf("matter %d does not belong to client %d", *in.MatterID, in.ClientID)
		}
	}

	ok, err := auth.CanActOn(actor, in.ClientID, in.MatterID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %d may not bill client %d: %w", actor.ID, in.ClientID, ErrForbidden)
	}

	var rule *billingRule
	if in.BillingRuleID != nil {
		rule, err = loadRule(db, *in.BillingRuleID)
		if err != nil {
			return nil, err
		}
	}

	var invoiceID int
	for attempt := 1; ; attempt++ {
		invoiceID, err = generateOnce(db, actor, in, rule, time.Now())
		if err == nil {
			break
		}
		if isNumberConflict(err) && attempt < numberingAttempts {
			continue
		}
		if isNumberConflict(err) {
			return nil, fmt.Errorf("after %d attempts: %w", numberingAttempts, ErrNumberingConflict)
		}
		return nil, err
	}

	return GetInvoice(db, invoiceID)
}

func loadRule(q querier, id int) (*billingRule, error) {
	var r billingRule
	err := q.QueryRow(`SELECT id, kind, title, hourly_rate, success_fee_percent, package_amount, recurring_amount
		FROM billing_rules WHERE id = ?`, id).
		Scan(&r.ID, &r.Kind, &r.Title, &r.HourlyRate, &r.SuccessFeePercent, &r.PackageAmount, &r.RecurringAmount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("billing rule %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// generateOnce runs one attempt of the numbering+insert transaction.
func generateOnce(db *sql.DB, actor models.User, in GenerateInput, rule *billingRule, now time.Time) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	number, err := nextNumber(tx, now)
	if err != nil {
		return 0, err
	}

	var invoiceID int
	err = tx.QueryRow(`INSERT INTO invoices (number, client_id, matter_id, billing_rule_id,
		period_start, period_end, issue_date, due_date, status, notes, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'draft', ?, ?) RETURNING id`,
		number, in.ClientID, in.MatterID, in.BillingRuleID,
		in.PeriodStart, in.PeriodEnd, now.Format("2006-01-02"), in.DueDate, in.Notes, actor.ID).Scan(&invoiceID)
	if err != nil {
		return 0, err
	}

	if err := addTimeItems(tx, invoiceID, actor, in, rule); err != nil {
		return 0, err
	}
	if in.IncludeExpenses {
		if err := addExpenseItems(tx, invoiceID, in); err != nil {
			return 0, err
		}
	}
	if rule != nil {
		if err := addServiceItem(tx, invoiceID, in, rule); err != nil {
			return 0, err
		}
	}
	if adj := in.Adjustment; adj != nil && adj.Amount.IsPositive() {
		amount := adj.Amount.Round(2)
		if err := insertItem(tx, invoiceID, models.ItemAdjustment, adj.Description,
			decimal.NewFromInt(1), amount, amount, nil, nil); err != nil {
			return 0, err
		}
	}

	// Totals come from the rows that actually made it in, not from the
	// in-memory intermediates.
	if err := recomputeTotals(tx, invoiceID); err != nil {
		return 0, err
	}
	return invoiceID, tx.Commit()
}

// addTimeItems emits one time line per unconsumed entry in the period. The
// hourly rate resolves entry override, then the entry's own rule, then the
// invoice-level rule, then zero.
func addTimeItems(tx *sql.Tx, invoiceID int, actor models.User, in GenerateInput, rule *billingRule) error {
	query := `SELECT te.id, te.entry_date, te.description, te.minutes, te.hourly_rate, br.hourly_rate
		FROM time_entries te
		LEFT JOIN billing_rules br ON te.billing_rule_id = br.id
		WHERE te.active = 1 AND te.billed_at IS NULL AND te.client_id = ?
		AND te.entry_date >= ? AND te.entry_date <= ?`
	args := []any{in.ClientID, in.PeriodStart, in.PeriodEnd}
	if in.MatterID != nil {
		query += " AND te.matter_id = ?"
		args = append(args, *in.MatterID)
	}
	if !actor.IsAdmin() {
		query += " AND (te.responsible_user_id = ? OR te.created_by = ?)"
		args = append(args, actor.ID, actor.ID)
	}
	query += " ORDER BY te.entry_date, te.id"

	rows, err := tx.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	type timeLine struct {
		entryID   int
		desc      string
		quantity  decimal.Decimal
		rate      decimal.Decimal
		lineTotal decimal.Decimal
	}
	var lines []timeLine
	for rows.Next() {
		var (
			id           int
			date, desc   string
			minutes      int
			override     decimal.NullDecimal
			entryRuleFee decimal.NullDecimal
		)
		if err := rows.Scan(&id, &date, &desc, &minutes, &override, &entryRuleFee); err != nil {
			return err
		}

		rate := decimal.Zero
		switch {
		case override.Valid:
			rate = override.Decimal
		case entryRuleFee.Valid:
			rate = entryRuleFee.Decimal
		case rule != nil && rule.HourlyRate.Valid:
			rate = rule.HourlyRate.Decimal
		}

		quantity := decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60)).Round(2)
		lines = append(lines, timeLine{
			entryID:   id,
			desc:      fmt.Sprintf("%s - %s", date, desc),
			quantity:  quantity,
			rate:      rate.Round(2),
			lineTotal: quantity.Mul(rate).Round(2),
		})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, l := range lines {
		entryID := l.entryID
		if err := insertItem(tx, invoiceID, models.ItemTime, l.desc, l.quantity, l.rate, l.lineTotal, &entryID, nil); err != nil {
			return err
		}
	}
	return nil
}

// addExpenseItems emits one expense line per unconsumed paid reimbursable
// expense whose payment date falls in the period.
func addExpenseItems(tx *sql.Tx, invoiceID int, in GenerateInput) error {
	query := `SELECT id, description, amount, paid_at FROM ledger_entries
		WHERE entry_type = 'expense' AND reimbursable = 1 AND status = 'paid'
		AND billed_at IS NULL AND client_id = ?
		AND paid_at >= ? AND paid_at <= ?`
	args := []any{in.ClientID, in.PeriodStart, in.PeriodEnd}
	if in.MatterID != nil {
		query += " AND matter_id = ?"
		args = append(args, *in.MatterID)
	}
	query += " ORDER BY paid_at, id"

	rows, err := tx.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	type expenseLine struct {
		expenseID int
		desc      string
		amount    decimal.Decimal
	}
	var lines []expenseLine
	for rows.Next() {
		var (
			id     int
			desc   string
			amount decimal.Decimal
			paidAt string
		)
		if err := rows.Scan(&id, &desc, &amount, &paidAt); err != nil {
			return err
		}
		lines = append(lines, expenseLine{
			expenseID: id,
			desc:      fmt.Sprintf("%s - %s", paidAt, desc),
			amount:    amount.Round(2),
		})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, l := range lines {
		expenseID := l.expenseID
		if err := insertItem(tx, invoiceID, models.ItemExpense, l.desc,
			decimal.NewFromInt(1), l.amount, l.amount, nil, &expenseID); err != nil {
			return err
		}
	}
	return nil
}

// addServiceItem emits the fixed-fee line for package/recurring rules, or the
// success-fee line when a positive base was supplied.
func addServiceItem(tx *sql.Tx, invoiceID int, in GenerateInput, rule *billingRule) error {
	one := decimal.NewFromInt(1)
	switch rule.Kind {
	case models.RulePackage:
		if rule.PackageAmount.Valid {
			amount := rule.PackageAmount.Decimal.Round(2)
			return insertItem(tx, invoiceID, models.ItemService,
				fmt.Sprintf("Package fee - %s", rule.Title), one, amount, amount, nil, nil)
		}
	case models.RuleRecurring:
		if rule.RecurringAmount.Valid {
			amount := rule.RecurringAmount.Decimal.Round(2)
			return insertItem(tx, invoiceID, models.ItemService,
				fmt.Sprintf("Recurring fee - %s", rule.Title), one, amount, amount, nil, nil)
		}
	case models.RuleSuccessFee:
		if in.SuccessFeeBase.Valid && in.SuccessFeeBase.Decimal.IsPositive() && rule.SuccessFeePercent.Valid {
			pct := rule.SuccessFeePercent.Decimal
			amount := in.SuccessFeeBase.Decimal.Mul(pct).Div(decimal.NewFromInt(100)).Round(2)
			return insertItem(tx, invoiceID, models.ItemService,
				fmt.Sprintf("Success fee (%s%%) - %s", pct.String(), rule.Title), one, amount, amount, nil, nil)
		}
	}
	return nil
}

func insertItem(q querier, invoiceID int, kind, description string,
	quantity, unitPrice, lineTotal decimal.Decimal, timeEntryID, expenseID *int) error {
	_, err := q.Exec(`INSERT INTO invoice_items (invoice_id, kind, description, quantity, unit_price, line_total,
		time_entry_id, expense_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		invoiceID, kind, description, quantity, unitPrice, lineTotal, timeEntryID, expenseID)
	return err
}
