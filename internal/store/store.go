package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" driver
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/astroulette/backend/internal/dbx"
	"github.com/astroulette/backend/internal/store/migrations"
)

// Store owns the connection pool. Its embedded Repos are bound to the pool;
// InTx hands out Repos bound to a transaction.
type Store struct {
	Repos
	db      *sql.DB
	dialect goose.Dialect
	log     logrus.FieldLogger
}

// Open connects to databaseURL. postgres:// and postgresql:// URLs use pgx,
// anything else is treated as a SQLite path (optionally prefixed sqlite://).
func Open(ctx context.Context, databaseURL string, log logrus.FieldLogger) (*Store, error) {
	driver, dsn, dialect := parseURL(databaseURL)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == goose.DialectSQLite3 {
		// One writer at a time; an in-memory database only exists on its own connection.
		db.SetMaxOpenConns(1)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{Repos: NewRepos(db), db: db, dialect: dialect, log: log}, nil
}

func parseURL(databaseURL string) (driver, dsn string, dialect goose.Dialect) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return "pgx", databaseURL, goose.DialectPostgres
	}
	dsn = strings.TrimPrefix(databaseURL, "sqlite://")
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return "sqlite3", dsn + sep + "_foreign_keys=on&_busy_timeout=5000", goose.DialectSQLite3
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate applies the embedded migrations for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	dir := "sqlite"
	if s.dialect == goose.DialectPostgres {
		dir = "postgres"
	}
	fsys, err := fs.Sub(migrations.FS, dir)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	provider, err := goose.NewProvider(s.dialect, s.db, fsys)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	for _, r := range results {
		s.log.WithField("migration", r.Source.Path).Info("applied migration")
	}
	return nil
}

// InTx runs fn with Repos bound to a single transaction. Errors returned by
// fn come back unchanged; failures to begin or commit are translated.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error {
	var fnErr error
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		fnErr = fn(ctx, NewRepos(tx))
		return fnErr
	})
	if err != nil && fnErr == nil {
		return translate("transaction", "", nil, err)
	}
	return err
}
