package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rmaia/advoc/billing"
	"github.com/rmaia/advoc/models"
)

const invoiceListQuery = `SELECT i.id, i.number, i.client_id, i.matter_id, i.billing_rule_id,
	i.period_start, i.period_end, i.issue_date, i.due_date, i.status,
	i.subtotal_time, i.subtotal_expenses, i.subtotal_other, i.total,
	i.gateway, i.online_status, i.online_external_id, i.online_url, i.online_paid_at,
	i.receivable_entry_id, i.notes, i.created_by, i.created_at, i.updated_at,
	c.name
	FROM invoices i
	LEFT JOIN clients c ON i.client_id = c.id`

func scanInvoiceRow(scanner interface{ Scan(...any) error }) (models.Invoice, error) {
	var inv models.Invoice
	err := scanner.Scan(&inv.ID, &inv.Number, &inv.ClientID, &inv.MatterID, &inv.BillingRuleID,
		&inv.PeriodStart, &inv.PeriodEnd, &inv.IssueDate, &inv.DueDate, &inv.Status,
		&inv.SubtotalTime, &inv.SubtotalExpenses, &inv.SubtotalOther, &inv.Total,
		&inv.Gateway, &inv.OnlineStatus, &inv.OnlineExternalID, &inv.OnlineURL, &inv.OnlinePaidAt,
		&inv.ReceivableEntryID, &inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt,
		&inv.ClientName)
	return inv, err
}

// ListInvoices lists invoices, newest first
// @Summary      List invoices
// @Tags         invoices
// @Produce      json
// @Param        status     query  string  false  "Filter by status (draft, sent, paid, overdue, cancelled)"
// @Param        client_id  query  int     false  "Filter by client"
// @Param        from       query  string  false  "Issued on or after this date (YYYY-MM-DD)"
// @Param        to         query  string  false  "Issued on or before this date (YYYY-MM-DD)"
// @Success      200  {object}  Response{data=[]models.Invoice}
// @Router       /invoices [get]
// @Security     BasicAuth
func ListInvoices(w http.ResponseWriter, r *http.Request) {
	query := invoiceListQuery
	var conditions []string
	var args []any

	if !actor(r).IsAdmin() {
		conditions = append(conditions, "(i.created_by = ? OR c.responsible_user_id = ?)")
		args = append(args, actor(r).ID, actor(r).ID)
	}
	if status := r.URL.Query().Get("status"); status != "" {
		conditions = append(conditions, "i.status = ?")
		args = append(args, status)
	}
	if cid := r.URL.Query().Get("client_id"); cid != "" {
		conditions = append(conditions, "i.client_id = ?")
		args = append(args, cid)
	}
	if from := r.URL.Query().Get("from"); from != "" {
		conditions = append(conditions, "i.issue_date >= ?")
		args = append(args, from)
	}
	if to := r.URL.Query().Get("to"); to != "" {
		conditions = append(conditions, "i.issue_date <= ?")
		args = append(args, to)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY i.issue_date DESC, i.number DESC"

	rows, err := DB.Query(query, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		inv, err := scanInvoiceRow(rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		invoices = append(invoices, inv)
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	writeJSON(w, http.StatusOK, invoices)
}

// GetInvoice returns one invoice with its line items
// @Summary      Get invoice
// @Tags         invoices
// @Produce      json
// @Param        id   path      int  true  "Invoice ID"
// @Success      200  {object}  Response{data=models.Invoice}
// @Failure      404  {object}  Response{error=string}
// @Router       /invoices/{id} [get]
// @Security     BasicAuth
func GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	inv, err := billing.GetInvoice(DB, id)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	if !requireCanAct(w, r, inv.ClientID, inv.MatterID) {
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// GenerateInvoice assembles a draft invoice for a billing period
// @Summary      Generate invoice
// @Description  Assemble a draft invoice from unbilled time entries and, optionally, paid reimbursable expenses for the period. Source entries are not consumed until the draft is sent.
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        request  body      billing.GenerateInput  true  "Generation parameters"
// @Success      201      {object}  Response{data=models.Invoice}
// @Failure      400      {object}  Response{error=string}
// @Failure      403      {object}  Response{error=string}
// @Router       /invoices/generate [post]
// @Security     BasicAuth
func GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	var input billing.GenerateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	inv, err := billing.Generate(DB, Auth, actor(r), input)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// SendInvoice transitions a draft invoice to sent
// @Summary      Send invoice
// @Description  Marks every source time entry and expense as billed, creates or updates the receivable ledger entry, and flips the status to sent.
// @Tags         invoices
// @Produce      json
// @Param        id   path      int  true  "Invoice ID"
// @Success      200  {object}  Response{data=models.Invoice}
// @Failure      409  {object}  Response{error=string}
// @Router       /invoices/{id}/send [post]
// @Security     BasicAuth
func SendInvoice(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	inv, err := billing.Send(DB, Auth, actor(r), id)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type markPaidRequest struct {
	PaidOn string `json:"paid_on"`
}

// MarkInvoicePaid settles a sent or overdue invoice
// @Summary      Mark invoice paid
// @Description  Settles the invoice and propagates the payment date to the linked receivable entry. paid_on defaults to today.
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id       path      int              true   "Invoice ID"
// @Param        payment  body      markPaidRequest  false  "Payment date"
// @Success      200      {object}  Response{data=models.Invoice}
// @Failure      409      {object}  Response{error=string}
// @Router       /invoices/{id}/pay [post]
// @Security     BasicAuth
func MarkInvoicePaid(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var req markPaidRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	inv, err := billing.MarkPaid(DB, Auth, actor(r), id, req.PaidOn)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// CancelInvoice voids an invoice that has not been paid
// @Summary      Cancel invoice
// @Description  Voids a draft, sent, or overdue invoice. The linked receivable entry is cancelled too unless it was already paid.
// @Tags         invoices
// @Produce      json
// @Param        id   path      int  true  "Invoice ID"
// @Success      200  {object}  Response{data=models.Invoice}
// @Failure      409  {object}  Response{error=string}
// @Router       /invoices/{id}/cancel [post]
// @Security     BasicAuth
func CancelInvoice(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	inv, err := billing.Cancel(DB, Auth, actor(r), id)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type paymentLinkRequest struct {
	Gateway    string `json:"gateway"`
	ExternalID string `json:"external_id"`
	URL        string `json:"url"`
}

// RequestPaymentLink records online payment metadata for an invoice
// @Summary      Request payment link
// @Description  Records the gateway, external id, and payment URL and sets the online status to awaiting. The gateway defaults to manual.
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id       path      int                 true   "Invoice ID"
// @Param        request  body      paymentLinkRequest  false  "Gateway metadata"
// @Success      200      {object}  Response{data=models.Invoice}
// @Failure      400      {object}  Response{error=string}
// @Router       /invoices/{id}/payment-link [post]
// @Security     BasicAuth
func RequestPaymentLink(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var req paymentLinkRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	inv, err := billing.RequestOnlinePayment(DB, Auth, actor(r), id, req.Gateway, req.ExternalID, req.URL)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// AppendInvoiceItem adds a manual line to a draft invoice
// @Summary      Append invoice item
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id    path      int                      true  "Invoice ID"
// @Param        item  body      models.InvoiceItemInput  true  "Line item"
// @Success      200   {object}  Response{data=models.Invoice}
// @Failure      400   {object}  Response{error=string}
// @Failure      409   {object}  Response{error=string}
// @Router       /invoices/{id}/items [post]
// @Security     BasicAuth
func AppendInvoiceItem(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var input models.InvoiceItemInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	inv, err := billing.AppendItem(DB, Auth, actor(r), id, input)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// RemoveInvoiceItem deletes a line from a draft invoice
// @Summary      Remove invoice item
// @Tags         invoices
// @Produce      json
// @Param        id      path      int  true  "Invoice ID"
// @Param        itemID  path      int  true  "Item ID"
// @Success      200     {object}  Response{data=models.Invoice}
// @Failure      404     {object}  Response{error=string}
// @Failure      409     {object}  Response{error=string}
// @Router       /invoices/{id}/items/{itemID} [delete]
// @Security     BasicAuth
func RemoveInvoiceItem(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	itemID, _ := strconv.Atoi(chi.URLParam(r, "itemID"))
	inv, err := billing.RemoveItem(DB, Auth, actor(r), id, itemID)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
