package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
)

func TestNewConnection_CreatesSchema(t *testing.T) {
	db, err := NewConnectionWithLogger(DriverSQLite, ":memory:", DefaultPoolConfig(), logging.NewDiscardLogger())
	require.NoError(t, err)
	defer db.Close()

	tc := NewTableCreator()
	require.NoError(t, tc.CreateSchema(db.DB))
	require.NoError(t, tc.CreateSchema(db.DB), "schema creation is idempotent")

	var name string
	require.NoError(t, db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='gate_sessions'`).Scan(&name))
	assert.Equal(t, "gate_sessions", name)
}

func TestTursoDSN(t *testing.T) {
	dsn, err := TursoDSN("libsql://gate-db.turso.io", "tok en")
	require.NoError(t, err)
	assert.Equal(t, "libsql://gate-db.turso.io?authToken=tok+en", dsn)

	_, err = TursoDSN("", "x")
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	dsn, err := SQLiteDSN(":memory:")
	require.NoError(t, err)
	assert.Equal(t, ":memory:", dsn)

	dsn, err = SQLiteDSN(t.TempDir() + "/nested/gate.db")
	require.NoError(t, err)
	assert.Contains(t, dsn, "_busy_timeout=5000")
}
