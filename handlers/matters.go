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

const matterSelectQuery = `SELECT m.id, m.client_id, m.number, m.subject, m.status, m.lawyer_id,
	m.active, m.created_at, m.updated_at, c.name, u.full_name
	FROM matters m
	LEFT JOIN clients c ON m.client_id = c.id
	LEFT JOIN users u ON m.lawyer_id = u.id`

func scanMatter(scanner interface{ Scan(...any) error }) (models.Matter, error) {
	var m models.Matter
	err := scanner.Scan(&m.ID, &m.ClientID, &m.Number, &m.Subject, &m.Status, &m.LawyerID,
		&m.Active, &m.CreatedAt, &m.UpdatedAt, &m.ClientName, &m.LawyerName)
	return m, err
}

func getMatterByID(id int) (models.Matter, error) {
	return scanMatter(DB.QueryRow(matterSelectQuery+" WHERE m.id = ?", id))
}

// ListMatters lists matters
// @Summary      List matters
// @Description  Get all active matters; non-admin users only see matters they handle or whose client they are responsible for.
// @Tags         matters
// @Produce      json
// @Param        client_id  query  int     false  "Filter by client"
// @Param        status     query  string  false  "Filter by status"
// @Param        search     query  string  false  "Search by number or subject"
// @Success      200  {object}  Response{data=[]models.Matter}
// @Router       /matters [get]
// @Security     BasicAuth
func ListMatters(w http.ResponseWriter, r *http.Request) {
	query := matterSelectQuery
	conditions := []string{"m.active = 1"}
	var args []any

	if !actor(r).IsAdmin() {
		conditions = append(conditions, "(m.lawyer_id = ? OR c.responsible_user_id = ?)")
		args = append(args, actor(r).ID, actor(r).ID)
	}
	if cid := r.URL.Query().Get("client_id"); cid != "" {
		conditions = append(conditions, "m.client_id = ?")
		args = append(args, cid)
	}
	if s := r.URL.Query().Get("status"); s != "" {
		conditions = append(conditions, "m.status = ?")
		args = append(args, s)
	}
	if search := r.URL.Query().Get("search"); search != "" {
		conditions = append(conditions, "(m.number LIKE ? OR m.subject LIKE ?)")
		s := "%" + search + "%"
		args = append(args, s, s)
	}

	query += " WHERE " + strings.Join(conditions, " AND ") + " ORDER BY m.created_at DESC"

	rows, err := DB.Query(query, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	var matters []models.Matter
	for rows.Next() {
		m, err := scanMatter(rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		matters = append(matters, m)
	}
	if matters == nil {
		matters = []models.Matter{}
	}
	writeJSON(w, http.StatusOK, matters)
}

// GetMatter retrieves a single matter by ID
// @Summary      Get matter
// @Tags         matters
// @Produce      json
// @Param        id   path      int  true  "Matter ID"
// @Success      200  {object}  Response{data=models.Matter}
// @Failure      404  {object}  Response{error=string}
// @Router       /matters/{id} [get]
// @Security     BasicAuth
func GetMatter(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	m, err := getMatterByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "matter not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if !requireCanAct(w, r, m.ClientID, &m.ID) {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// CreateMatter creates a new matter
// @Summary      Create matter
// @Tags         matters
// @Accept       json
// @Produce      json
// @Param        matter  body      models.MatterInput  true  "Matter contents"
// @Success      201     {object}  Response{data=models.Matter}
// @Failure      400     {object}  Response{error=string}
// @Router       /matters [post]
// @Security     BasicAuth
func CreateMatter(w http.ResponseWriter, r *http.Request) {
	var input models.MatterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := input.Validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if !requireCanAct(w, r, input.ClientID, nil) {
		return
	}
	if input.LawyerID == nil && !actor(r).IsAdmin() {
		id := actor(r).ID
		input.LawyerID = &id
	}

	var id int
	err := DB.QueryRow("INSERT INTO matters (client_id, number, subject, status, lawyer_id) VALUES (?, ?, ?, ?, ?) RETURNING id",
		input.ClientID, input.Number, input.Subject, input.Status, input.LawyerID).Scan(&id)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			writeError(w, http.StatusBadRequest, "a matter with this number already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	m, err := getMatterByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to re-fetch created matter: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// UpdateMatter updates an existing matter
// @Summary      Update matter
// @Tags         matters
// @Accept       json
// @Produce      json
// @Param        id      path      int                 true  "Matter ID"
// @Param        matter  body      models.MatterInput  true  "Updated matter contents"
// @Success      200     {object}  Response{data=models.Matter}
// @Failure      404     {object}  Response{error=string}
// @Router       /matters/{id} [put]
// @Security     BasicAuth
func UpdateMatter(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var input models.MatterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := input.Validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if !requireCanAct(w, r, input.ClientID, &id) {
		return
	}

	res, err := DB.Exec("UPDATE matters SET client_id = ?, number = ?, subject = ?, status = ?, lawyer_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		input.ClientID, input.Number, input.Subject, input.Status, input.LawyerID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusNotFound, "matter not found")
		return
	}

	m, err := getMatterByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to re-fetch updated matter: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DeleteMatter soft-deactivates a matter
// @Summary      Delete matter
// @Tags         matters
// @Produce      json
// @Param        id   path      int  true  "Matter ID"
// @Success      200  {object}  Response{data=map[string]string}
// @Failure      404  {object}  Response{error=string}
// @Router       /matters/{id} [delete]
// @Security     BasicAuth
func DeleteMatter(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	m, err := getMatterByID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "matter not found")
		return
	}
	if !requireCanAct(w, r, m.ClientID, &m.ID) {
		return
	}
	if _, err := DB.Exec("UPDATE matters SET active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?", id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
