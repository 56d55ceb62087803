package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func TestMigrations_OrderedAndCurrent(t *testing.T) {
	var prev *semver.Version
	for _, m := range AllMigrations {
		v, err := semver.NewVersion(m.Version)
		require.NoError(t, err)
		if prev != nil {
			assert.True(t, prev.LessThan(v), "%s must follow %s", v, prev)
		}
		prev = v
		assert.NotEmpty(t, m.Up)
		assert.NotEmpty(t, m.Down)
	}
	assert.Equal(t, CurrentSchemaVersion, AllMigrations[len(AllMigrations)-1].Version)
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	v, err := currentVersion(ctx, store.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())

	require.NoError(t, ApplyMigrations(ctx, store.db))

	var rows int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&rows))
	assert.Equal(t, len(AllMigrations), rows)
}

func TestRollbackMigration(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	require.NoError(t, RollbackMigration(ctx, store.db))
	v, err := currentVersion(ctx, store.db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.String())
	assert.False(t, tableExists(t, store.db, "ingest_runs"))
	assert.True(t, tableExists(t, store.db, "chunks"))

	// Reapplying restores the latest schema
	require.NoError(t, ApplyMigrations(ctx, store.db))
	assert.True(t, tableExists(t, store.db, "ingest_runs"))

	require.NoError(t, RollbackMigration(ctx, store.db))
	require.NoError(t, RollbackMigration(ctx, store.db))
	assert.False(t, tableExists(t, store.db, "schema_version"))

	err = RollbackMigration(ctx, store.db)
	assert.Error(t, err)
}
