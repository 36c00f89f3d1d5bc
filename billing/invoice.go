package billing

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rmaia/advoc/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}

const invoiceSelectQuery = `SELECT i.id, i.number, i.client_id, i.matter_id, i.billing_rule_id,
	i.period_start, i.period_end, i.issue_date, i.due_date, i.status,
	i.subtotal_time, i.subtotal_expenses, i.subtotal_other, i.total,
	i.gateway, i.online_status, i.online_external_id, i.online_url, i.online_paid_at,
	i.receivable_entry_id, i.notes, i.created_by, i.created_at, i.updated_at,
	c.name
	FROM invoices i
	LEFT JOIN clients c ON i.client_id = c.id`

func scanInvoice(scanner interface{ Scan(...any) error }) (models.Invoice, error) {
	var inv models.Invoice
	err := scanner.Scan(&inv.ID, &inv.Number, &inv.ClientID, &inv.MatterID, &inv.BillingRuleID,
		&inv.PeriodStart, &inv.PeriodEnd, &inv.IssueDate, &inv.DueDate, &inv.Status,
		&inv.SubtotalTime, &inv.SubtotalExpenses, &inv.SubtotalOther, &inv.Total,
		&inv.Gateway, &inv.OnlineStatus, &inv.OnlineExternalID, &inv.OnlineURL, &inv.OnlinePaidAt,
		&inv.ReceivableEntryID, &inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt,
		&inv.ClientName)
	return inv, err
}

// GetInvoice loads an invoice with its line items.
func GetInvoice(q querier, id int) (*models.Invoice, error) {
	inv, err := scanInvoice(q.QueryRow(invoiceSelectQuery+" WHERE i.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	items, err := loadItems(q, id)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	return &inv, nil
}

func loadItems(q querier, invoiceID int) ([]models.InvoiceItem, error) {
	rows, err := q.Query(`SELECT id, invoice_id, kind, description, quantity, unit_price, line_total,
		time_entry_id, expense_id, created_at
		FROM invoice_items WHERE invoice_id = ? ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.InvoiceItem{}
	for rows.Next() {
		var it models.InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Kind, &it.Description, &it.Quantity,
			&it.UnitPrice, &it.LineTotal, &it.TimeEntryID, &it.ExpenseID, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// recomputeTotals rebuilds the invoice subtotals and total from the persisted
// line items. Summation happens on the decimal values, never on floats, so the
// total invariant survives any item mutation.
func recomputeTotals(q querier, invoiceID int) error {
	items, err := loadItems(q, invoiceID)
	if err != nil {
		return err
	}

	var timeSub, expenseSub, otherSub decimal.Decimal
	for _, it := range items {
		switch it.Kind {
		case models.ItemTime:
			timeSub = timeSub.Add(it.LineTotal)
		case models.ItemExpense:
			expenseSub = expenseSub.Add(it.LineTotal)
		default:
			otherSub = otherSub.Add(it.LineTotal)
		}
	}
	total := timeSub.Add(expenseSub).Add(otherSub)

	_, err = q.Exec(`UPDATE invoices SET subtotal_time = ?, subtotal_expenses = ?, subtotal_other = ?,
		total = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		timeSub.Round(2), expenseSub.Round(2), otherSub.Round(2), total.Round(2), invoiceID)
	return err
}
