package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"salonbook/internal/domain"
	"salonbook/internal/metrics"
	"salonbook/internal/retry"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// store holds the queries shared by DB and Tx.
type store struct {
	q        querier
	services *serviceCache
}

// DB is the SQLite-backed repository. Write transactions take the database
// lock on BEGIN, so check-then-insert sequences inside WithTx are serialized.
type DB struct {
	*sql.DB
	store

	path   string
	logger *zerolog.Logger
	retry  retry.Policy
}

// Tx is a store bound to an open transaction.
type Tx struct {
	store
	tx *sql.Tx
}

type Option func(*options)

type options struct {
	busyTimeout time.Duration
	retry       retry.Policy
}

// WithBusyTimeout sets how long SQLite waits on a locked database before failing.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithRetryPolicy controls how transactions are retried on busy/locked errors.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) { o.retry = p }
}

func NewDB(path string, logger *zerolog.Logger, opts ...Option) (*DB, error) {
	o := options{
		busyTimeout: 5 * time.Second,
		retry: retry.Policy{
			MaxRetries:    3,
			InitialDelay:  50 * time.Millisecond,
			MaxDelay:      time.Second,
			BackoffFactor: 2,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	inMemory := path == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(path, o.busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// every new connection would get its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(sqlDB, logger); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	db := &DB{
		DB:     sqlDB,
		store:  store{q: sqlDB, services: newServiceCache()},
		path:   path,
		logger: logger,
		retry:  o.retry,
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

func dsn(path string, busyTimeout time.Duration) string {
	params := []string{
		"_txlock=immediate",
		fmt.Sprintf("_busy_timeout=%d", busyTimeout.Milliseconds()),
		"_foreign_keys=on",
	}
	if path != ":memory:" {
		params = append(params, "_journal_mode=WAL")
	}
	return path + "?" + strings.Join(params, "&")
}

func migrate(db *sql.DB, logger *zerolog.Logger) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// gooseLogger routes migration output through zerolog.
type gooseLogger struct {
	logger *zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug().Str("component", "migrations").Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal().Str("component", "migrations").Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Path returns the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

// WithTx runs fn inside one write transaction. Any error from fn rolls the
// transaction back and is returned unchanged. Busy or locked databases cause
// the whole transaction to be retried according to the retry policy.
func (db *DB) WithTx(ctx context.Context, fn func(domain.ReservationStore) error) error {
	attempt := 0
	return db.retry.Do(ctx, IsTransient, func() error {
		attempt++
		if attempt > 1 {
			metrics.IncDBRetry()
			db.logger.Warn().Int("attempt", attempt).Msg("retrying transaction after transient database error")
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		if err := fn(&Tx{store: store{q: tx, services: db.services}, tx: tx}); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// IsTransient reports whether err is a busy or locked database error worth retrying.
func IsTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}
