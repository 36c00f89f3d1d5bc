package billing

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rmaia/advoc/models"
)

// Gateways known to the online payment metadata. Actual gateway calls live
// outside this subsystem.
var gateways = map[string]bool{
	"manual":      true,
	"asaas":       true,
	"mercadopago": true,
	"stripe":      true,
}

// invoiceRow is the slice of an invoice the lifecycle transitions work on.
type invoiceRow struct {
	ID                int
	Number            string
	ClientID          int
	MatterID          *int
	DueDate           string
	Status            string
	Total             decimal.Decimal
	OnlineStatus      string
	ReceivableEntryID *int
	CreatedBy         *int
}

func loadInvoiceRow(q querier, id int) (*invoiceRow, error) {
	var inv invoiceRow
	err := q.QueryRow(`SELECT id, number, client_id, matter_id, due_date, status, total,
		online_status, receivable_entry_id, created_by FROM invoices WHERE id = ?`, id).
		Scan(&inv.ID, &inv.Number, &inv.ClientID, &inv.MatterID, &inv.DueDate, &inv.Status,
			&inv.Total, &inv.OnlineStatus, &inv.ReceivableEntryID, &inv.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func authorize(auth Authorizer, actor models.User, inv *invoiceRow) error {
	ok, err := auth.CanActOn(actor, inv.ClientID, inv.MatterID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %d may not act on invoice %s: %w", actor.ID, inv.Number, ErrForbidden)
	}
	return nil
}

// Send transitions a draft to sent. In one transaction it creates or updates
// the receivable ledger entry, stamps billed_at on every source time entry and
// expense referenced by the items, and flips the status. The billed_at stamp
// happens through a guarded update so an entry consumed by a competing invoice
// since the draft was generated fails the whole transition with
// ErrStaleConsumption instead of being double-billed or silently skipped.
func Send(db *sql.DB, auth Authorizer, actor models.User, invoiceID int) (*models.Invoice, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	inv, err := loadInvoiceRow(tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := authorize(auth, actor, inv); err != nil {
		return nil, err
	}
	if inv.Status != models.InvoiceDraft {
		return nil, fmt.Errorf("cannot send a %s invoice: %w", inv.Status, ErrInvalidTransition)
	}

	entryIDs, expenseIDs, err := consumableRefs(tx, invoiceID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format("2006-01-02 15:04:05")
	for _, id := range entryIDs {
		res, err := tx.Exec(`UPDATE time_entries SET billed_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND billed_at IS NULL`, now, id)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("time entry %d: %w", id, ErrStaleConsumption)
		}
	}
	for _, id := range expenseIDs {
		res, err := tx.Exec(`UPDATE ledger_entries SET billed_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND billed_at IS NULL`, now, id)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("expense %d: %w", id, ErrStaleConsumption)
		}
	}

	receivableID, err := upsertReceivable(tx, inv)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(`UPDATE invoices SET status = 'sent', receivable_entry_id = ?,
		updated_at = CURRENT_TIMESTAMP WHERE id = ?`, receivableID, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return GetInvoice(db, invoiceID)
}

// consumableRefs collects the time entry and expense ids referenced by an
// invoice's line items.
func consumableRefs(q querier, invoiceID int) (entryIDs, expenseIDs []int, err error) {
	rows, err := q.Query(`SELECT time_entry_id, expense_id FROM invoice_items
		WHERE invoice_id = ? AND (time_entry_id IS NOT NULL OR expense_id IS NOT NULL)`, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var entryID, expenseID *int
		if err := rows.Scan(&entryID, &expenseID); err != nil {
			return nil, nil, err
		}
		if entryID != nil {
			entryIDs = append(entryIDs, *entryID)
		}
		if expenseID != nil {
			expenseIDs = append(expenseIDs, *expenseID)
		}
	}
	return entryIDs, expenseIDs, rows.Err()
}

// MarkPaid settles a sent (or overdue) invoice and propagates the payment to
// the receivable entry. paidOn defaults to today.
func MarkPaid(db *sql.DB, auth Authorizer, actor models.User, invoiceID int, paidOn string) (*models.Invoice, error) {
	if paidOn == "" {
		paidOn = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", paidOn); err != nil {
		return nil, validationf("paid_on must be in YYYY-MM-DD format")
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	inv, err := loadInvoiceRow(tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := authorize(auth, actor, inv); err != nil {
		return nil, err
	}
	if inv.Status != models.InvoiceSent && inv.Status != models.InvoiceOverdue {
		return nil, fmt.Errorf("cannot mark a %s invoice as paid: %w", inv.Status, ErrInvalidTransition)
	}

	if inv.OnlineStatus == models.OnlineAwaiting {
		_, err = tx.Exec(`UPDATE invoices SET status = 'paid', online_status = 'paid',
			online_paid_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, invoiceID)
	} else {
		_, err = tx.Exec(`UPDATE invoices SET status = 'paid', updated_at = CURRENT_TIMESTAMP WHERE id = ?`, invoiceID)
	}
	if err != nil {
		return nil, err
	}

	if inv.ReceivableEntryID != nil {
		if err := setReceivableStatus(tx, *inv.ReceivableEntryID, models.EntryPaid, &paidOn); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return GetInvoice(db, invoiceID)
}

// Cancel voids a draft, sent, or overdue invoice. Paid invoices cannot be
// cancelled. A linked receivable entry is cancelled too unless already paid.
func Cancel(db *sql.DB, auth Authorizer, actor models.User, invoiceID int) (*models.Invoice, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	inv, err := loadInvoiceRow(tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := authorize(auth, actor, inv); err != nil {
		return nil, err
	}
	switch inv.Status {
	case models.InvoiceDraft, models.InvoiceSent, models.InvoiceOverdue:
	case models.InvoicePaid:
		return nil, fmt.Errorf("cannot cancel a paid invoice: %w", ErrInvalidTransition)
	default:
		return nil, fmt.Errorf("invoice already cancelled: %w", ErrInvalidTransition)
	}

	if inv.OnlineStatus != models.OnlineNone {
		_, err = tx.Exec(`UPDATE invoices SET status = 'cancelled', online_status = 'cancelled',
			updated_at = CURRENT_TIMESTAMP WHERE id = ?`, invoiceID)
	} else {
		_, err = tx.Exec(`UPDATE invoices SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP WHERE id = ?`, invoiceID)
	}
	if err != nil {
		return nil, err
	}

	if inv.ReceivableEntryID != nil {
		_, err = tx.Exec(`UPDATE ledger_entries SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status != 'paid'`, *inv.ReceivableEntryID)
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return GetInvoice(db, invoiceID)
}

// RequestOnlinePayment records gateway metadata for an invoice. Missing
// external id and URL are filled in so manual links work out of the box; no
// gateway protocol call happens here.
func RequestOnlinePayment(db *sql.DB, auth Authorizer, actor models.User, invoiceID int, gateway, externalID, url string) (*models.Invoice, error) {
	if gateway == "" {
		gateway = "manual"
	}
	if !gateways[gateway] {
		return nil, validationf("gateway must be one of: manual, asaas, mercadopago, stripe")
	}

	inv, err := loadInvoiceRow(db, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := authorize(auth, actor, inv); err != nil {
		return nil, err
	}
	if inv.Status == models.InvoicePaid || inv.Status == models.InvoiceCancelled {
		return nil, fmt.Errorf("cannot request payment for a %s invoice: %w", inv.Status, ErrInvalidTransition)
	}

	if externalID == "" {
		externalID = uuid.NewString()
	}
	if url == "" {
		url = "https://payments.example.com/invoice/" + externalID
	}

	_, err = db.Exec(`UPDATE invoices SET gateway = ?, online_external_id = ?, online_url = ?,
		online_status = 'awaiting', updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		gateway, externalID, url, invoiceID)
	if err != nil {
		return nil, err
	}
	return GetInvoice(db, invoiceID)
}

// AppendItem adds a manual line to a draft invoice and recomputes the totals.
func AppendItem(db *sql.DB, auth Authorizer, actor models.User, invoiceID int, in models.InvoiceItemInput) (*models.Invoice, error) {
	if msg := in.Validate(); msg != "" {
		return nil, &ValidationError{Msg: msg}
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	inv, err := loadInvoiceRow(tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := authorize(auth, actor, inv); err != nil {
		return nil, err
	}
	if inv.Status != models.InvoiceDraft {
		return nil, fmt.Errorf("items can only be added to draft invoices: %w", ErrInvalidTransition)
	}

	lineTotal := in.Quantity.Mul(in.UnitPrice).Round(2)
	if err := insertItem(tx, invoiceID, in.Kind, in.Description, in.Quantity, in.UnitPrice, lineTotal, nil, nil); err != nil {
		return nil, err
	}
	if err := recomputeTotals(tx, invoiceID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return GetInvoice(db, invoiceID)
}

// RemoveItem deletes a line from a draft invoice and recomputes the totals.
func RemoveItem(db *sql.DB, auth Authorizer, actor models.User, invoiceID, itemID int) (*models.Invoice, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	inv, err := loadInvoiceRow(tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := authorize(auth, actor, inv); err != nil {
		return nil, err
	}
	if inv.Status != models.InvoiceDraft {
		return nil, fmt.Errorf("items can only be removed from draft invoices: %w", ErrInvalidTransition)
	}

	res, err := tx.Exec("DELETE FROM invoice_items WHERE id = ? AND invoice_id = ?", itemID, invoiceID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("invoice item %d: %w", itemID, ErrNotFound)
	}
	if err := recomputeTotals(tx, invoiceID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return GetInvoice(db, invoiceID)
}
