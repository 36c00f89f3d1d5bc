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

const timeEntrySelectQuery = `SELECT te.id, te.client_id, te.matter_id, te.responsible_user_id,
	te.billing_rule_id, te.entry_date, te.description, te.minutes, te.hourly_rate, te.billed_at,
	te.active, te.created_by, te.created_at, te.updated_at, c.name, u.full_name
	FROM time_entries te
	LEFT JOIN clients c ON te.client_id = c.id
	LEFT JOIN users u ON te.responsible_user_id = u.id`

func scanTimeEntry(scanner interface{ Scan(...any) error }) (models.TimeEntry, error) {
	var t models.TimeEntry
	err := scanner.Scan(&t.ID, &t.ClientID, &t.MatterID, &t.ResponsibleUserID,
		&t.BillingRuleID, &t.EntryDate, &t.Description, &t.Minutes, &t.HourlyRate, &t.BilledAt,
		&t.Active, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &t.ClientName, &t.ResponsibleName)
	return t, err
}

func getTimeEntryByID(id int) (models.TimeEntry, error) {
	return scanTimeEntry(DB.QueryRow(timeEntrySelectQuery+" WHERE te.id = ?", id))
}

func listTimeEntries(w http.ResponseWriter, r *http.Request, unbilledOnly bool) {
	query := timeEntrySelectQuery
	conditions := []string{"te.active = 1"}
	var args []any

	if unbilledOnly {
		conditions = append(conditions, "te.billed_at IS NULL")
	}
	if !actor(r).IsAdmin() {
		conditions = append(conditions, "(te.responsible_user_id = ? OR te.created_by = ?)")
		args = append(args, actor(r).ID, actor(r).ID)
	}
	if cid := r.URL.Query().Get("client_id"); cid != "" {
		conditions = append(conditions, "te.client_id = ?")
		args = append(args, cid)
	}
	if mid := r.URL.Query().Get("matter_id"); mid != "" {
		conditions = append(conditions, "te.matter_id = ?")
		args = append(args, mid)
	}
	if from := r.URL.Query().Get("from"); from != "" {
		conditions = append(conditions, "te.entry_date >= ?")
		args = append(args, from)
	}
	if to := r.URL.Query().Get("to"); to != "" {
		conditions = append(conditions, "te.entry_date <= ?")
		args = append(args, to)
	}

	query += " WHERE " + strings.Join(conditions, " AND ") + " ORDER BY te.entry_date DESC, te.id DESC"

	rows, err := DB.Query(query, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	var entries []models.TimeEntry
	for rows.Next() {
		t, err := scanTimeEntry(rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		entries = append(entries, t)
	}
	if entries == nil {
		entries = []models.TimeEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ListTimeEntries lists time entries
// @Summary      List time entries
// @Tags         time-entries
// @Produce      json
// @Param        client_id  query  int     false  "Filter by client"
// @Param        matter_id  query  int     false  "Filter by matter"
// @Param        from       query  string  false  "Entries on or after this date (YYYY-MM-DD)"
// @Param        to         query  string  false  "Entries on or before this date (YYYY-MM-DD)"
// @Success      200  {object}  Response{data=[]models.TimeEntry}
// @Router       /time-entries [get]
// @Security     BasicAuth
func ListTimeEntries(w http.ResponseWriter, r *http.Request) {
	listTimeEntries(w, r, false)
}

// ListUnbilledTimeEntries lists time entries not yet consumed by an invoice
// @Summary      List unbilled time entries
// @Tags         time-entries
// @Produce      json
// @Param        client_id  query  int     false  "Filter by client"
// @Param        matter_id  query  int     false  "Filter by matter"
// @Param        from       query  string  false  "Entries on or after this date (YYYY-MM-DD)"
// @Param        to         query  string  false  "Entries on or before this date (YYYY-MM-DD)"
// @Success      200  {object}  Response{data=[]models.TimeEntry}
// @Router       /time-entries/unbilled [get]
// @Security     BasicAuth
func ListUnbilledTimeEntries(w http.ResponseWriter, r *http.Request) {
	listTimeEntries(w, r, true)
}

// CreateTimeEntry records billable work
// @Summary      Create time entry
// @Tags         time-entries
// @Accept       json
// @Produce      json
// @Param        entry  body      models.TimeEntryInput  true  "Time entry contents"
// @Success      201    {object}  Response{data=models.TimeEntry}
// @Failure      400    {object}  Response{error=string}
// @Router       /time-entries [post]
// @Security     BasicAuth
func CreateTimeEntry(w http.ResponseWriter, r *http.Request) {
	var input models.TimeEntryInput
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
	if input.ResponsibleUserID == nil {
		id := actor(r).ID
		input.ResponsibleUserID = &id
	}

	var id int
	err := DB.QueryRow(`INSERT INTO time_entries (client_id, matter_id, responsible_user_id, billing_rule_id,
		entry_date, description, minutes, hourly_rate, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		input.ClientID, input.MatterID, input.ResponsibleUserID, input.BillingRuleID,
		input.EntryDate, input.Description, input.Minutes, input.HourlyRate, actor(r).ID).Scan(&id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	t, err := getTimeEntryByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to re-fetch created time entry: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// UpdateTimeEntry updates a time entry that has not been billed yet
// @Summary      Update time entry
// @Description  Update a time entry. Entries already consumed by an invoice are immutable.
// @Tags         time-entries
// @Accept       json
// @Produce      json
// @Param        id     path      int                    true  "Time entry ID"
// @Param        entry  body      models.TimeEntryInput  true  "Updated time entry contents"
// @Success      200    {object}  Response{data=models.TimeEntry}
// @Failure      404    {object}  Response{error=string}
// @Failure      409    {object}  Response{error=string}
// @Router       /time-entries/{id} [put]
// @Security     BasicAuth
func UpdateTimeEntry(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var input models.TimeEntryInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := input.Validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	existing, err := getTimeEntryByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "time entry not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if existing.BilledAt != nil {
		writeError(w, http.StatusConflict, "time entry has been billed and is immutable")
		return
	}
	if !requireCanAct(w, r, input.ClientID, input.MatterID) {
		return
	}

	// Guard against a concurrent send consuming the entry between the check
	// and the write.
	res, err := DB.Exec(`UPDATE time_entries SET client_id = ?, matter_id = ?, responsible_user_id = ?,
		billing_rule_id = ?, entry_date = ?, description = ?, minutes = ?, hourly_rate = ?,
		updated_at = CURRENT_TIMESTAMP WHERE id = ? AND billed_at IS NULL`,
		input.ClientID, input.MatterID, input.ResponsibleUserID, input.BillingRuleID,
		input.EntryDate, input.Description, input.Minutes, input.HourlyRate, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusConflict, "time entry has been billed and is immutable")
		return
	}

	t, err := getTimeEntryByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to re-fetch updated time entry: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteTimeEntry soft-deactivates an unbilled time entry
// @Summary      Delete time entry
// @Description  Deactivate a time entry. Billed entries cannot be removed.
// @Tags         time-entries
// @Produce      json
// @Param        id   path      int  true  "Time entry ID"
// @Success      200  {object}  Response{data=map[string]string}
// @Failure      404  {object}  Response{error=string}
// @Failure      409  {object}  Response{error=string}
// @Router       /time-entries/{id} [delete]
// @Security     BasicAuth
func DeleteTimeEntry(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	existing, err := getTimeEntryByID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "time entry not found")
		return
	}
	if existing.BilledAt != nil {
		writeError(w, http.StatusConflict, "time entry has been billed and cannot be removed")
		return
	}
	if !requireCanAct(w, r, existing.ClientID, existing.MatterID) {
		return
	}
	if _, err := DB.Exec("UPDATE time_entries SET active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND billed_at IS NULL", id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
