package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAtAndMigrate(t *testing.T) {
	database, err := OpenAt(filepath.Join(t.TempDir(), "nested", "dir", "test.db"))
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, Migrate(database))
	// Running again on a migrated database is a no-op.
	require.NoError(t, Migrate(database))

	var n int
	require.NoError(t, database.QueryRow("SELECT COUNT(*) FROM invoices").Scan(&n))
	require.Zero(t, n)

	var fk int
	require.NoError(t, database.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	require.Equal(t, 1, fk)
}
