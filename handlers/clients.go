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

const clientSelectQuery = `SELECT cl.id, cl.name, cl.kind, cl.email, cl.phone, cl.responsible_user_id,
	cl.active, cl.created_at, cl.updated_at, u.full_name
	FROM clients cl
	LEFT JOIN users u ON cl.responsible_user_id = u.id`

func scanClient(scanner interface{ Scan(...any) error }) (models.Client, error) {
	var c models.Client
	err := scanner.Scan(&c.ID, &c.Name, &c.Kind, &c.Email, &c.Phone, &c.ResponsibleUserID,
		&c.Active, &c.CreatedAt, &c.UpdatedAt, &c.ResponsibleName)
	return c, err
}

func getClientByID(id int) (models.Client, error) {
	return scanClient(DB.QueryRow(clientSelectQuery+" WHERE cl.id = ?", id))
}

// ListClients lists clients
// @Summary      List clients
// @Description  Get all active clients; non-admin users only see clients they are responsible for.
// @Tags         clients
// @Produce      json
// @Param        search  query  string  false  "Search by name or email"
// @Success      200  {object}  Response{data=[]models.Client}
// @Router       /clients [get]
// @Security     BasicAuth
func ListClients(w http.ResponseWriter, r *http.Request) {
	query := clientSelectQuery
	conditions := []string{"cl.active = 1"}
	var args []any

	if !actor(r).IsAdmin() {
		conditions = append(conditions, "cl.responsible_user_id = ?")
		args = append(args, actor(r).ID)
	}
	if search := r.URL.Query().Get("search"); search != "" {
		conditions = append(conditions, "(cl.name LIKE ? OR cl.email LIKE ?)")
		s := "%" + search + "%"
		args = append(args, s, s)
	}

	query += " WHERE " + strings.Join(conditions, " AND ") + " ORDER BY cl.name"

	rows, err := DB.Query(query, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	var clients []models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		clients = append(clients, c)
	}
	if clients == nil {
		clients = []models.Client{}
	}
	writeJSON(w, http.StatusOK, clients)
}

// GetClient retrieves a single client by ID
// @Summary      Get client
// @Tags         clients
// @Produce      json
// @Param        id   path      int  true  "Client ID"
// @Success      200  {object}  Response{data=models.Client}
// @Failure      404  {object}  Response{error=string}
// @Router       /clients/{id} [get]
// @Security     BasicAuth
func GetClient(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	c, err := getClientByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "client not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if !requireCanAct(w, r, c.ID, nil) {
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CreateClient creates a new client
// @Summary      Create client
// @Tags         clients
// @Accept       json
// @Produce      json
// @Param        client  body      models.ClientInput  true  "Client contents"
// @Success      201     {object}  Response{data=models.Client}
// @Failure      400     {object}  Response{error=string}
// @Router       /clients [post]
// @Security     BasicAuth
func CreateClient(w http.ResponseWriter, r *http.Request) {
	var input models.ClientInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := input.Validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if input.ResponsibleUserID == nil && !actor(r).IsAdmin() {
		id := actor(r).ID
		input.ResponsibleUserID = &id
	}

	var id int
	err := DB.QueryRow("INSERT INTO clients (name, kind, email, phone, responsible_user_id) VALUES (?, ?, ?, ?, ?) RETURNING id",
		input.Name, input.Kind, input.Email, input.Phone, input.ResponsibleUserID).Scan(&id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	c, err := getClientByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to re-fetch created client: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// UpdateClient updates an existing client
// @Summary      Update client
// @Tags         clients
// @Accept       json
// @Produce      json
// @Param        id      path      int                 true  "Client ID"
// @Param        client  body      models.ClientInput  true  "Updated client contents"
// @Success      200     {object}  Response{data=models.Client}
// @Failure      404     {object}  Response{error=string}
// @Router       /clients/{id} [put]
// @Security     BasicAuth
func UpdateClient(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var input models.ClientInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := input.Validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if !requireCanAct(w, r, id, nil) {
		return
	}

	res, err := DB.Exec("UPDATE clients SET name = ?, kind = ?, email = ?, phone = ?, responsible_user_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		input.Name, input.Kind, input.Email, input.Phone, input.ResponsibleUserID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}

	c, err := getClientByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to re-fetch updated client: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteClient soft-deactivates a client
// @Summary      Delete client
// @Description  Deactivate a client. Historic invoices and entries are kept.
// @Tags         clients
// @Produce      json
// @Param        id   path      int  true  "Client ID"
// @Success      200  {object}  Response{data=map[string]string}
// @Failure      404  {object}  Response{error=string}
// @Router       /clients/{id} [delete]
// @Security     BasicAuth
func DeleteClient(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	if !requireCanAct(w, r, id, nil) {
		return
	}
	res, err := DB.Exec("UPDATE clients SET active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?", id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
