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

const billingRuleSelectQuery = `SELECT br.id, br.client_id, br.matter_id, br.title, br.kind,
	br.hourly_rate, br.success_fee_percent, br.package_amount, br.recurring_amount, br.recurring_due_day,
	br.notes, br.active, br.created_by, br.created_at, br.updated_at, c.name
	FROM billing_rules br
	LEFT JOIN clients c ON br.client_id = c.id`

func scanBillingRule(scanner interface{ Scan(...any) error }) (models.BillingRule, error) {
	var b models.BillingRule
	err := scanner.Scan(&b.ID, &b.ClientID, &b.MatterID, &b.Title, &b.Kind,
		&b.HourlyRate, &b.SuccessFeePercent, &b.PackageAmount, &b.RecurringAmount, &b.RecurringDueDay,
		&b.Notes, &b.Active, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt, &b.ClientName)
	return b, err
}

func getBillingRuleByID(id int) (models.BillingRule, error) {
	return scanBillingRule(DB.QueryRow(billingRuleSelectQuery+" WHERE br.id = ?", id))
}

// ListBillingRules lists billing rules
// @Summary      List billing rules
// @Tags         billing-rules
// @Produce      json
// @Param        client_id  query  int     false  "Filter by client"
// @Param        kind       query  string  false  "Filter by kind"
// @Success      200  {object}  Response{data=[]models.BillingRule}
// @Router       /billing-rules [get]
// @Security     BasicAuth
func ListBillingRules(w http.ResponseWriter, r *http.Request) {
	query := billingRuleSelectQuery
	conditions := []string{"br.active = 1"}
	var args []any

	if !actor(r).IsAdmin() {
		conditions = append(conditions, "c.responsible_user_id = ?")
		args = append(args, actor(r).ID)
	}
	if cid := r.URL.Query().Get("client_id"); cid != "" {
		conditions = append(conditions, "br.client_id = ?")
		args = append(args, cid)
	}
	if kind := r.URL.Query().Get("kind"); kind != "" {
		conditions = append(conditions, "br.kind = ?")
		args = append(args, kind)
	}

	query += " WHERE " + strings.Join(conditions, " AND ") + " ORDER BY br.updated_at DESC"

	rows, err := DB.Query(query, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	var rules []models.BillingRule
	for rows.Next() {
		b, err := scanBillingRule(rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		rules = append(rules, b)
	}
	if rules == nil {
		rules = []models.BillingRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

// GetBillingRule retrieves a single billing rule by ID
// @Summary      Get billing rule
// @Tags         billing-rules
// @Produce      json
// @Param        id   path      int  true  "Billing rule ID"
// @Success      200  {object}  Response{data=models.BillingRule}
// @Failure      404  {object}  Response{error=string}
// @Router       /billing-rules/{id} [get]
// @Security     BasicAuth
func GetBillingRule(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	b, err := getBillingRuleByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "billing rule not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if !requireCanAct(w, r, b.ClientID, b.MatterID) {
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// CreateBillingRule creates a new billing rule
// @Summary      Create billing rule
// @Description  Create a pricing policy. The amount field matching the kind is required: hourly_rate, success_fee_percent, package_amount, or recurring_amount.
// @Tags         billing-rules
// @Accept       json
// @Produce      json
// @Param        rule  body      models.BillingRuleInput  true  "Billing rule contents"
// @Success      201   {object}  Response{data=models.BillingRule}
// @Failure      400   {object}  Response{error=string}
// @Router       /billing-rules [post]
// @Security     BasicAuth
func CreateBillingRule(w http.ResponseWriter, r *http.Request) {
	var input models.BillingRuleInput
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
	err := DB.QueryRow(`INSERT INTO billing_rules (client_id, matter_id, title, kind, hourly_rate,
		success_fee_percent, package_amount, recurring_amount, recurring_due_day, notes, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		input.ClientID, input.MatterID, input.Title, input.Kind, input.HourlyRate,
		input.SuccessFeePercent, input.PackageAmount, input.RecurringAmount, input.RecurringDueDay,
		input.Notes, actor(r).ID).Scan(&id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	b, err := getBillingRuleByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to re-fetch created billing rule: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// UpdateBillingRule updates an existing billing rule
// @Summary      Update billing rule
// @Tags         billing-rules
// @Accept       json
// @Produce      json
// @Param        id    path      int                      true  "Billing rule ID"
// @Param        rule  body      models.BillingRuleInput  true  "Updated billing rule contents"
// @Success      200   {object}  Response{data=models.BillingRule}
// @Failure      404   {object}  Response{error=string}
// @Router       /billing-rules/{id} [put]
// @Security     BasicAuth
func UpdateBillingRule(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var input models.BillingRuleInput
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

	res, err := DB.Exec(`UPDATE billing_rules SET client_id = ?, matter_id = ?, title = ?, kind = ?,
		hourly_rate = ?, success_fee_percent = ?, package_amount = ?, recurring_amount = ?,
		recurring_due_day = ?, notes = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		input.ClientID, input.MatterID, input.Title, input.Kind, input.HourlyRate,
		input.SuccessFeePercent, input.PackageAmount, input.RecurringAmount, input.RecurringDueDay,
		input.Notes, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusNotFound, "billing rule not found")
		return
	}

	b, err := getBillingRuleByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to re-fetch updated billing rule: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// DeleteBillingRule soft-deactivates a billing rule
// @Summary      Delete billing rule
// @Description  Deactivate a billing rule. Time entries and invoices referencing it are kept.
// @Tags         billing-rules
// @Produce      json
// @Param        id   path      int  true  "Billing rule ID"
// @Success      200  {object}  Response{data=map[string]string}
// @Failure      404  {object}  Response{error=string}
// @Router       /billing-rules/{id} [delete]
// @Security     BasicAuth
func DeleteBillingRule(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	b, err := getBillingRuleByID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "billing rule not found")
		return
	}
	if !requireCanAct(w, r, b.ClientID, b.MatterID) {
		return
	}
	if _, err := DB.Exec("UPDATE billing_rules SET active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?", id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
