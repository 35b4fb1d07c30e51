package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/EO-DataHub/eodhp-directory-services/internal/directory"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// DirectoryDB is the PostgreSQL implementation of directory.Store.
type DirectoryDB struct {
	DB  *sql.DB
	Log *zerolog.Logger
}

// NewDirectoryDB opens and pings the database behind connStr.
func NewDirectoryDB(connStr string, log *zerolog.Logger) (*DirectoryDB, error) {
	if connStr == "" {
		log.Error().Msg("database source is not set")
		return nil, fmt.Errorf("database source is not set")
	}

	// Open the database connection
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open database connection")
		return nil, err
	}

	// Check we are actually connected
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Database connection failed during ping")
		db.Close()
		return nil, err
	}

	return &DirectoryDB{
		DB:  db,
		Log: log,
	}, nil
}

func (d *DirectoryDB) Close() error {
	if err := d.DB.Close(); err != nil {
		return err
	}
	d.Log.Info().Msg("database connection closed")
	return nil
}

// Begin starts a transaction for a single directory operation.
func (d *DirectoryDB) Begin(ctx context.Context) (directory.Tx, error) {
	if d.DB == nil {
		return nil, fmt.Errorf("database connection is not established")
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		d.Log.Error().Err(err).Msg("error starting transaction")
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	return &dirTx{tx: tx}, nil
}

type dirTx struct {
	tx *sql.Tx
}

func (t *dirTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func (t *dirTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("error rolling back transaction: %w", err)
	}
	return nil
}

// LockIDs takes a transaction scoped advisory lock on the identifier space
// of the domain. Concurrent allocations in the same domain queue behind it.
func (t *dirTx) LockIDs(ctx context.Context, kind directory.IDKind, domain string) error {
	_, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(kind)+":"+domain)
	if err != nil {
		return translate(err, "error locking %s allocation for domain %s", kind, domain)
	}
	return nil
}

func (t *dirTx) execQuery(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return res, nil
}

// translate maps constraint violations onto directory error kinds and wraps
// everything else with context.
func translate(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return directory.NewError(directory.KindConflict, "%s: %s", msg, pqErr.Message)
		case "foreign_key_violation":
			return directory.NewError(directory.KindInUse, "%s: %s", msg, pqErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
