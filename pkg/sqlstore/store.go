// Package sqlstore opens the SQL databases that receive search reports.
// Locations select the driver: postgres:// and postgresql:// URLs use
// lib/pq, sqlite://path uses the pure-Go SQLite driver.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/glebarez/sqlite"
	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/resilience"
)

type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

func (d Dialect) driver() string {
	return d.String()
}

// IsLocation reports whether location names a database this package opens.
func IsLocation(location string) bool {
	_, _, err := parseLocation(location)
	return err == nil
}

func parseLocation(location string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		return Postgres, location, nil
	case strings.HasPrefix(location, "sqlite://"):
		path := strings.TrimPrefix(location, "sqlite://")
		if path == "" {
			return SQLite, "", fmt.Errorf("%w: sqlite location without a path", apperrors.ErrInvalidInput)
		}
		return SQLite, path, nil
	}
	return Postgres, "", fmt.Errorf("%w: %q is not a database location", apperrors.ErrInvalidInput, location)
}

type Store struct {
	DB      *sql.DB
	dialect Dialect
}

// Open connects to location and verifies the connection, retrying the
// ping cfg.ConnectAttempts times.
func Open(ctx context.Context, location string, cfg config.DatabaseConfig) (*Store, error) {
	dialect, dsn, err := parseLocation(location)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dialect.driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", dialect, err)
	}
	if dialect == SQLite {
		// One writer at a time; in-memory databases exist per connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	err = resilience.Retry(ctx, "sql-connect", resilience.Backoff{Attempts: cfg.ConnectAttempts, Jitter: 0.1}, func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging %s: %w", dialect, err)
	}
	return &Store{DB: db, dialect: dialect}, nil
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Rebind rewrites '?' placeholders into the dialect's form.
func (s *Store) Rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Migrate runs each statement in order. Statements must be idempotent.
func (s *Store) Migrate(ctx context.Context, statements ...string) error {
	for _, stmt := range statements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

func (s *Store) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}
