package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rmaia/advoc/billing"
	"github.com/rmaia/advoc/db"
	"github.com/rmaia/advoc/models"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// setupServer wires the handlers against a migrated throwaway database and
// returns a running test server plus the seeded admin credentials.
func setupServer(t *testing.T) *httptest.Server {
	t.Helper()

	database, err := db.OpenAt(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database))

	_, err = database.Exec(`INSERT INTO users (username, api_key, full_name, role)
		VALUES ('admin', 'secret', 'Admin', 'admin')`)
	require.NoError(t, err)
	_, err = database.Exec(`INSERT INTO clients (name) VALUES ('Acme Corp')`)
	require.NoError(t, err)
	_, err = database.Exec(`INSERT INTO billing_rules (client_id, title, kind, hourly_rate)
		VALUES (1, 'Standard hourly', 'hourly', 300.00)`)
	require.NoError(t, err)
	_, err = database.Exec(`INSERT INTO time_entries (client_id, entry_date, description, minutes)
		VALUES (1, '2026-08-10', 'Hearing prep', 120)`)
	require.NoError(t, err)
	_, err = database.Exec(`INSERT INTO ledger_entries (client_id, entry_type, description, amount, paid_at, status, reimbursable)
		VALUES (1, 'expense', 'Court fee', 150.00, '2026-08-12', 'paid', 1)`)
	require.NoError(t, err)

	DB = database
	Auth = billing.AllowAll{}

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BasicAuth)
		r.Get("/invoices", ListInvoices)
		r.Get("/invoices/{id}", GetInvoice)
		r.Post("/invoices/generate", GenerateInvoice)
		r.Post("/invoices/{id}/send", SendInvoice)
		r.Post("/invoices/{id}/pay", MarkInvoicePaid)
		r.Post("/invoices/{id}/cancel", CancelInvoice)
		r.Get("/dashboard", GetDashboard)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, srv *httptest.Server, method, path string, body any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "secret")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestInvoiceFlowOverHTTP(t *testing.T) {
	srv := setupServer(t)

	status, env := doRequest(t, srv, http.MethodPost, "/api/v1/invoices/generate", map[string]any{
		"client_id":                     1,
		"billing_rule_id":               1,
		"period_start":                  "2026-08-01",
		"period_end":                    "2026-08-31",
		"due_date":                      "2026-09-15",
		"include_reimbursable_expenses": true,
	})
	require.Equal(t, http.StatusCreated, status, "generate failed: %s", env.Error)

	var inv models.Invoice
	require.NoError(t, json.Unmarshal(env.Data, &inv))
	require.Equal(t, models.InvoiceDraft, inv.Status)
	require.Len(t, inv.Items, 2)
	require.True(t, inv.Total.Equal(decimal.RequireFromString("750.00")), "total %s", inv.Total)

	status, env = doRequest(t, srv, http.MethodPost, "/api/v1/invoices/1/send", nil)
	require.Equal(t, http.StatusOK, status, "send failed: %s", env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &inv))
	require.Equal(t, models.InvoiceSent, inv.Status)
	require.NotNil(t, inv.ReceivableEntryID)

	// Second send conflicts.
	status, env = doRequest(t, srv, http.MethodPost, "/api/v1/invoices/1/send", nil)
	require.Equal(t, http.StatusConflict, status)
	require.NotEmpty(t, env.Error)

	status, env = doRequest(t, srv, http.MethodPost, "/api/v1/invoices/1/pay", map[string]any{"paid_on": "2026-09-10"})
	require.Equal(t, http.StatusOK, status, "pay failed: %s", env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &inv))
	require.Equal(t, models.InvoicePaid, inv.Status)

	// Paid invoices cannot be cancelled.
	status, _ = doRequest(t, srv, http.MethodPost, "/api/v1/invoices/1/cancel", nil)
	require.Equal(t, http.StatusConflict, status)

	status, env = doRequest(t, srv, http.MethodGet, "/api/v1/invoices?status=paid", nil)
	require.Equal(t, http.StatusOK, status)
	var list []models.Invoice
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
}

func TestGenerateInvoiceValidationOverHTTP(t *testing.T) {
	srv := setupServer(t)

	status, env := doRequest(t, srv, http.MethodPost, "/api/v1/invoices/generate", map[string]any{
		"client_id": 1,
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.NotEmpty(t, env.Error)

	status, _ = doRequest(t, srv, http.MethodPost, "/api/v1/invoices/generate", map[string]any{
		"client_id":    999,
		"period_start": "2026-08-01",
		"period_end":   "2026-08-31",
		"due_date":     "2026-09-15",
	})
	require.Equal(t, http.StatusNotFound, status)
}

func TestInvoiceEndpointsRequireAuth(t *testing.T) {
	srv := setupServer(t)

	resp, err := srv.Client().Get(srv.URL + "/api/v1/invoices")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/invoices", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "wrong")
	resp2, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestGetInvoiceNotFound(t *testing.T) {
	srv := setupServer(t)

	status, env := doRequest(t, srv, http.MethodGet, "/api/v1/invoices/42", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.NotEmpty(t, env.Error)
}

func TestDashboardOverHTTP(t *testing.T) {
	srv := setupServer(t)

	status, env := doRequest(t, srv, http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, status)

	var d struct {
		TotalClients    int             `json:"total_clients"`
		UnbilledMinutes int             `json:"unbilled_minutes"`
		UnbilledTime    decimal.Decimal `json:"unbilled_time_value"`
		UnbilledExpense decimal.Decimal `json:"unbilled_expense_value"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &d))
	require.Equal(t, 1, d.TotalClients)
	require.Equal(t, 120, d.UnbilledMinutes)
	require.True(t, d.UnbilledExpense.Equal(decimal.RequireFromString("150.00")), "unbilled expenses %s", d.UnbilledExpense)
}
