package database

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/digkill/nexora/internal/config"
)

// Dialect captures the handful of statements that differ between MySQL and Postgres.
// Queries are written with '?' placeholders and rebound per dialect.
type Dialect struct {
	Name        string
	Placeholder sq.PlaceholderFormat
	Returning   bool

	ensureCreditsRow   string
	upsertSubscription string
}

var (
	MySQL = Dialect{
		Name:               "mysql",
		Placeholder:        sq.Question,
		ensureCreditsRow:   `INSERT IGNORE INTO credits (user_id, balance) VALUES (?, 0)`,
		upsertSubscription: `INSERT INTO subscriptions (user_id, plan_name, status) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE plan_name = VALUES(plan_name), status = VALUES(status)`,
	}
	Postgres = Dialect{
		Name:               "postgres",
		Placeholder:        sq.Dollar,
		Returning:          true,
		ensureCreditsRow:   `INSERT INTO credits (user_id, balance) VALUES (?, 0) ON CONFLICT (user_id) DO NOTHING`,
		upsertSubscription: `INSERT INTO subscriptions (user_id, plan_name, status) VALUES (?, ?, ?) ON CONFLICT (user_id) DO UPDATE SET plan_name = EXCLUDED.plan_name, status = EXCLUDED.status, updated_at = NOW()`,
	}
)

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case config.DriverMySQL:
		return MySQL, nil
	case config.DriverPostgres:
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Rebind rewrites '?' placeholders into the dialect's format.
func (d Dialect) Rebind(query string) string {
	if d.Placeholder == nil {
		return query
	}
	out, err := d.Placeholder.ReplacePlaceholders(query)
	if err != nil {
		return query
	}
	return out
}

// Builder returns a squirrel statement builder bound to the dialect's placeholders.
func (d Dialect) Builder() sq.StatementBuilderType {
	format := d.Placeholder
	if format == nil {
		format = sq.Question
	}
	return sq.StatementBuilder.PlaceholderFormat(format)
}

func (d Dialect) EnsureCreditsRow() string {
	return d.Rebind(d.ensureCreditsRow)
}

func (d Dialect) UpsertSubscription() string {
	return d.Rebind(d.upsertSubscription)
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InsertReturningID runs an INSERT and returns the generated id, using RETURNING on Postgres
// and LastInsertId on MySQL.
func (d Dialect) InsertReturningID(ctx context.Context, q Execer, query string, args ...any) (int64, error) {
	if d.Returning {
		var id int64
		if err := q.QueryRowContext(ctx, d.Rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := q.ExecContext(ctx, d.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// WithTx runs fn inside a transaction, committing on success.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
