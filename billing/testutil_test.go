package billing

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rmaia/advoc/db"
	"github.com/rmaia/advoc/models"
)

// newTestDB opens a migrated throwaway database. A single connection keeps
// concurrent writers queued at the pool instead of tripping sqlite's deadlock
// detection, which is what the busy timeout does for short-lived CLI usage.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.OpenAt(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.Migrate(database))
	return database
}

func seedUser(t *testing.T, database *sql.DB, username, role string) models.User {
	t.Helper()
	var u models.User
	u.Username = username
	u.Role = role
	u.Active = true
	err := database.QueryRow(`INSERT INTO users (username, api_key, full_name, role)
		VALUES (?, ?, ?, ?) RETURNING id`, username, username+"-key", username, role).Scan(&u.ID)
	require.NoError(t, err)
	return u
}

func seedClient(t *testing.T, database *sql.DB, name string, responsible *int) int {
	t.Helper()
	var id int
	err := database.QueryRow(`INSERT INTO clients (name, responsible_user_id)
		VALUES (?, ?) RETURNING id`, name, responsible).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedMatter(t *testing.T, database *sql.DB, clientID int, number string, lawyer *int) int {
	t.Helper()
	var id int
	err := database.QueryRow(`INSERT INTO matters (client_id, number, subject, lawyer_id)
		VALUES (?, ?, ?, ?) RETURNING id`, clientID, number, "subject for "+number, lawyer).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedHourlyRule(t *testing.T, database *sql.DB, clientID int, rate string) int {
	t.Helper()
	var id int
	err := database.QueryRow(`INSERT INTO billing_rules (client_id, title, kind, hourly_rate)
		VALUES (?, 'Hourly', 'hourly', ?) RETURNING id`, clientID, rate).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedRule(t *testing.T, database *sql.DB, clientID int, kind, column, amount string) int {
	t.Helper()
	var id int
	err := database.QueryRow(`INSERT INTO billing_rules (client_id, title, kind, `+column+`)
		VALUES (?, ?, ?, ?) RETURNING id`, clientID, kind+" rule", kind, amount).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedTimeEntry(t *testing.T, database *sql.DB, clientID int, matterID *int, ruleID *int, date string, minutes int, rate *string) int {
	t.Helper()
	var id int
	err := database.QueryRow(`INSERT INTO time_entries (client_id, matter_id, billing_rule_id, entry_date, description, minutes, hourly_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		clientID, matterID, ruleID, date, "work on "+date, minutes, rate).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedExpense(t *testing.T, database *sql.DB, clientID int, matterID *int, amount, paidAt string) int {
	t.Helper()
	var id int
	err := database.QueryRow(`INSERT INTO ledger_entries (client_id, matter_id, entry_type, description, amount, paid_at, status, reimbursable)
		VALUES (?, ?, 'expense', 'court fee', ?, ?, 'paid', 1) RETURNING id`,
		clientID, matterID, amount, paidAt).Scan(&id)
	require.NoError(t, err)
	return id
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// requireDecimalEqual compares decimals by value, not representation.
func requireDecimalEqual(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(dec(t, want)), "want %s, got %s", want, got)
}
