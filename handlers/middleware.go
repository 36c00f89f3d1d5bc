package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rmaia/advoc/billing"
	"github.com/rmaia/advoc/models"
)

// Response is the standard JSON envelope for all API responses.
type Response struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// DB is the shared database connection used by all handlers.
var DB *sql.DB

// Auth is the capability check used before generation and state transitions.
var Auth billing.Authorizer

type contextKey string

const actorKey contextKey = "actor"

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Data: data})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Error: msg})
}

// writeBillingError maps the billing error taxonomy onto HTTP statuses.
func writeBillingError(w http.ResponseWriter, err error) {
	var verr *billing.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Msg)
	case errors.Is(err, billing.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, billing.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, billing.ErrInvalidTransition), errors.Is(err, billing.ErrStaleConsumption):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("billing operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// BasicAuth authenticates requests against the users table (username + api key)
// and stores the resolved actor in the request context. Every operation takes
// the actor explicitly from here; there is no ambient current-user state.
func BasicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, key, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="advoc"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var u models.User
		err := DB.QueryRow(`SELECT id, username, api_key, full_name, role, active, created_at, updated_at
			FROM users WHERE username = ? AND active = 1`, username).
			Scan(&u.ID, &u.Username, &u.APIKey, &u.FullName, &u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt)
		if err != nil || u.APIKey != key {
			w.Header().Set("WWW-Authenticate", `Basic realm="advoc"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, u)))
	})
}

// actor returns the authenticated user stored by BasicAuth.
func actor(r *http.Request) models.User {
	u, _ := r.Context().Value(actorKey).(models.User)
	return u
}

// requireCanAct checks the actor's capability over a client/matter and writes
// the 403 itself when denied.
func requireCanAct(w http.ResponseWriter, r *http.Request, clientID int, matterID *int) bool {
	ok, err := Auth.CanActOn(actor(r), clientID, matterID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	if !ok {
		writeError(w, http.StatusForbidden, "you may not act on this client or matter")
		return false
	}
	return true
}
