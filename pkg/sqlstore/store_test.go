package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "runs.db"), config.Default().Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		location string
		dialect  Dialect
		dsn      string
		wantErr  bool
	}{
		{"postgres://u:p@localhost/runs?sslmode=disable", Postgres, "postgres://u:p@localhost/runs?sslmode=disable", false},
		{"postgresql://localhost/runs", Postgres, "postgresql://localhost/runs", false},
		{"sqlite://:memory:", SQLite, ":memory:", false},
		{"sqlite:///tmp/runs.db", SQLite, "/tmp/runs.db", false},
		{"sqlite://", SQLite, "", true},
		{"results.txt", Postgres, "", true},
		{"-", Postgres, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			dialect, dsn, err := parseLocation(tt.location)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
				assert.False(t, IsLocation(tt.location))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, dialect)
			assert.Equal(t, tt.dsn, dsn)
			assert.True(t, IsLocation(tt.location))
		})
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: Postgres}
	lite := &Store{dialect: SQLite}
	q := "INSERT INTO t (a, b, c) VALUES (?, ?, ?)"
	assert.Equal(t, "INSERT INTO t (a, b, c) VALUES ($1, $2, $3)", pg.Rebind(q))
	assert.Equal(t, q, lite.Rebind(q))
}

func TestSQLiteMigrateAndTx(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	assert.Equal(t, SQLite, s.Dialect())

	stmt := `CREATE TABLE IF NOT EXISTS items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`
	require.NoError(t, s.Migrate(ctx, stmt))
	require.NoError(t, s.Migrate(ctx, stmt))

	require.NoError(t, s.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.Rebind(`INSERT INTO items (id, name) VALUES (?, ?)`), 1, "one")
		return err
	}))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO items (id, name) VALUES (2, 'two')`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count))
	assert.Equal(t, 1, count)
}
