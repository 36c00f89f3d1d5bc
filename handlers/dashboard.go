package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"
)

type dashboardData struct {
	TotalClients  int `json:"total_clients"`
	TotalMatters  int `json:"total_matters"`
	TotalInvoices int `json:"total_invoices"`

	DraftInvoices     int `json:"draft_invoices"`
	SentInvoices      int `json:"sent_invoices"`
	PaidInvoices      int `json:"paid_invoices"`
	OverdueInvoices   int `json:"overdue_invoices"`
	CancelledInvoices int `json:"cancelled_invoices"`

	UnbilledMinutes int             `json:"unbilled_minutes"`
	UnbilledTime    decimal.Decimal `json:"unbilled_time_value"`
	UnbilledExpense decimal.Decimal `json:"unbilled_expense_value"`
	Outstanding     decimal.Decimal `json:"outstanding_receivables"`

	RecentInvoices []map[string]any `json:"recent_invoices"`
}

// GetDashboard retrieves billing summary statistics
// @Summary      Get dashboard
// @Description  Totals for clients, matters, invoices per status, unbilled work, and outstanding receivables.
// @Tags         dashboard
// @Produce      json
// @Success      200  {object}  Response{data=dashboardData}
// @Router       /dashboard [get]
// @Security     BasicAuth
func GetDashboard(w http.ResponseWriter, r *http.Request) {
	var d dashboardData

	DB.QueryRow("SELECT COUNT(*) FROM clients WHERE active = 1").Scan(&d.TotalClients)
	DB.QueryRow("SELECT COUNT(*) FROM matters WHERE active = 1").Scan(&d.TotalMatters)
	DB.QueryRow("SELECT COUNT(*) FROM invoices").Scan(&d.TotalInvoices)

	DB.QueryRow("SELECT COUNT(*) FROM invoices WHERE status = 'draft'").Scan(&d.DraftInvoices)
	DB.QueryRow("SELECT COUNT(*) FROM invoices WHERE status = 'sent'").Scan(&d.SentInvoices)
	DB.QueryRow("SELECT COUNT(*) FROM invoices WHERE status = 'paid'").Scan(&d.PaidInvoices)
	DB.QueryRow("SELECT COUNT(*) FROM invoices WHERE status = 'overdue'").Scan(&d.OverdueInvoices)
	DB.QueryRow("SELECT COUNT(*) FROM invoices WHERE status = 'cancelled'").Scan(&d.CancelledInvoices)

	DB.QueryRow(`SELECT COALESCE(SUM(minutes), 0) FROM time_entries
		WHERE active = 1 AND billed_at IS NULL`).Scan(&d.UnbilledMinutes)

	// Money figures are summed as decimals in Go, same as invoice totals.
	d.UnbilledTime = sumDecimals(`SELECT COALESCE(te.hourly_rate, br.hourly_rate, 0) * (te.minutes / 60.0)
		FROM time_entries te
		LEFT JOIN billing_rules br ON te.billing_rule_id = br.id
		WHERE te.active = 1 AND te.billed_at IS NULL`)
	d.UnbilledExpense = sumDecimals(`SELECT amount FROM ledger_entries
		WHERE entry_type = 'expense' AND reimbursable = 1 AND status = 'paid' AND billed_at IS NULL`)
	d.Outstanding = sumDecimals(`SELECT total FROM invoices WHERE status IN ('sent', 'overdue')`)

	// Recent 5 invoices
	rows, err := DB.Query(`SELECT i.id, i.number, i.status, i.total, i.issue_date, c.name
		FROM invoices i LEFT JOIN clients c ON i.client_id = c.id
		ORDER BY i.created_at DESC LIMIT 5`)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var id int
			var number, status, issueDate string
			var client *string
			var total decimal.Decimal
			rows.Scan(&id, &number, &status, &total, &issueDate, &client)
			d.RecentInvoices = append(d.RecentInvoices, map[string]any{
				"id":          id,
				"number":      number,
				"status":      status,
				"total":       total,
				"issue_date":  issueDate,
				"client_name": client,
			})
		}
	}
	if d.RecentInvoices == nil {
		d.RecentInvoices = []map[string]any{}
	}

	writeJSON(w, http.StatusOK, d)
}

func sumDecimals(query string, args ...any) decimal.Decimal {
	sum := decimal.Zero
	rows, err := DB.Query(query, args...)
	if err != nil {
		return sum
	}
	defer rows.Close()
	for rows.Next() {
		var v decimal.Decimal
		if err := rows.Scan(&v); err != nil {
			continue
		}
		sum = sum.Add(v)
	}
	return sum.Round(2)
}
