package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rmaia/advoc/models"
)

const expenseSelectQuery = `SELECT le.id, le.client_id, le.matter_id, le.entry_type, le.description,
	le.amount, le.due_date, le.paid_at, le.status, le.reimbursable, le.billed_at,
	le.created_by, le.created_at, le.updated_at, c.name
	FROM ledger_entries le
	LEFT JOIN clients c ON le.client_id = c.id`

func scanLedgerEntry(scanner interface{ Scan(...any) error }) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := scanner.Scan(&e.ID, &e.ClientID, &e.MatterID, &e.EntryType, &e.Description,
		&e.Amount, &e.DueDate, &e.PaidAt, &e.Status, &e.Reimbursable, &e.BilledAt,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt, &e.ClientName)
	return e, err
}

func getLedgerEntryByID(id int) (models.LedgerEntry, error) {
	return scanLedgerEntry(DB.QueryRow(expenseSelectQuery+" WHERE le.id = ?", id))
}

func listExpenses(w http.ResponseWriter, r *http.Request, unbilledOnly bool) {
	query := expenseSelectQuery
	conditions := []string{"le.entry_type = 'expense'"}
	var args []any

	if unbilledOnly {
		conditions = append(conditions, "le.reimbursable = 1", "le.status = 'paid'", "le.billed_at IS NULL")
	}
	if !actor(r).IsAdmin() {
		conditions = append(conditions, "(le.created_by = ? OR c.responsible_user_id = ?)")
		args = append(args, actor(r).ID, actor(r).ID)
	}
	if cid := r.URL.Query().Get("client_id"); cid != "" {
		conditions = append(conditions, "le.client_id = ?")
		args = append(args, cid)
	}
	if mid := r.URL.Query().Get("matter_id"); mid != "" {
		conditions = append(conditions, "le.matter_id = ?")
		args = append(args, mid)
	}
	if from := r.URL.Query().Get("from"); from != "" {
		conditions = append(conditions, "le.paid_at >= ?")
		args = append(args, from)
	}
	if to := r.URL.Query().Get("to"); to != "" {
		conditions = append(conditions, "le.paid_at <= ?")
		args = append(args, to)
	}

	query += " WHERE " + strings.Join(conditions, " AND ") + " ORDER BY le.created_at DESC"

	rows, err := DB.Query(query, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		entries = append(entries, e)
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ListExpenses lists expense ledger entries
// @Summary      List expenses
// @Tags         expenses
// @Produce      json
// @Param        client_id  query  int     false  "Filter by client"
// @Param        matter_id  query  int     false  "Filter by matter"
// @Param        from       query  string  false  "Paid on or after this date (YYYY-MM-DD)"
// @Param        to         query  string  false  "Paid on or before this date (YYYY-MM-DD)"
// @Success      200  {object}  Response{data=[]models.LedgerEntry}
// @Router       /expenses [get]
// @Security     BasicAuth
func ListExpenses(w http.ResponseWriter, r *http.Request) {
	listExpenses(w, r, false)
}

// ListUnbilledExpenses lists paid reimbursable expenses not yet consumed by an invoice
// @Summary      List unbilled reimbursable expenses
// @Tags         expenses
// @Produce      json
// @Param        client_id  query  int     false  "Filter by client"
// @Param        matter_id  query  int     false  "Filter by matter"
// @Param        from       query  string  false  "Paid on or after this date (YYYY-MM-DD)"
// @Param        to         query  string  false  "Paid on or before this date (YYYY-MM-DD)"
// @Success      200  {object}  Response{data=[]models.LedgerEntry}
// @Router       /expenses/unbilled [get]
// @Security     BasicAuth
func ListUnbilledExpenses(w http.ResponseWriter, r *http.Request) {
	listExpenses(w, r, true)
}

// CreateExpense records an expense in the ledger
// @Summary      Create expense
// @Description  Record an expense. Mark it reimbursable and paid to make it billable to the client.
// @Tags         expenses
// @Accept       json
// @Produce      json
// @Param        expense  body      models.ExpenseInput  true  "Expense contents"
// @Success      201      {object}  Response{data=models.LedgerEntry}
// @Failure      400      {object}  Response{error=string}
// @Router       /expenses [post]
// @Security     BasicAuth
func CreateExpense(w http.ResponseWriter, r *http.Request) {
	var input models.ExpenseInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := input.Validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if !requireCanAct(w, r, input.ClientID, input.MatterID) {
		return
	}

	var id int
	err := DB.QueryRow(`INSERT INTO ledger_entries (client_id, matter_id, entry_type, description,
		amount, due_date, paid_at, status, reimbursable, created_by)
		VALUES (?, ?, 'expense', ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		input.ClientID, input.MatterID, input.Description, input.Amount,
		input.DueDate, input.PaidAt, input.Status, input.Reimbursable, actor(r).ID).Scan(&id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	e, err := getLedgerEntryByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to re-fetch created expense: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// UpdateExpense updates an expense that has not been billed yet
// @Summary      Update expense
// @Description  Update an expense. Entries already consumed by an invoice are immutable.
// @Tags         expenses
// @Accept       json
// @Produce      json
// @Param        id       path      int                  true  "Expense ID"
// @Param        expense  body      models.ExpenseInput  true  "Updated expense contents"
// @Success      200      {object}  Response{data=models.LedgerEntry}
// @Failure      404      {object}  Response{error=string}
// @Failure      409      {object}  Response{error=string}
// @Router       /expenses/{id} [put]
// @Security     BasicAuth
func UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var input models.ExpenseInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := input.Validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	existing, err := getLedgerEntryByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "expense not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if existing.EntryType != models.EntryExpense {
		writeError(w, http.StatusNotFound, "expense not found")
		return
	}
	if existing.BilledAt != nil {
		writeError(w, http.StatusConflict, "expense has been billed and is immutable")
		return
	}
	if !requireCanAct(w, r, input.ClientID, input.MatterID) {
		return
	}

	res, err := DB.Exec(`UPDATE ledger_entries SET client_id = ?, matter_id = ?, description = ?,
		amount = ?, due_date = ?, paid_at = ?, status = ?, reimbursable = ?,
		updated_at = CURRENT_TIMESTAMP WHERE id = ? AND billed_at IS NULL`,
		input.ClientID, input.MatterID, input.Description, input.Amount,
		input.DueDate, input.PaidAt, input.Status, input.Reimbursable, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusConflict, "expense has been billed and is immutable")
		return
	}

	e, err := getLedgerEntryByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to re-fetch updated expense: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, e)
}
