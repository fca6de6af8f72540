package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/digkill/nexora/internal/config"
)

//go:embed migrations
var migrations embed.FS

// Connect opens the configured SQL store with sensible pooling defaults.
func Connect(cfg config.Config) (*sql.DB, Dialect, error) {
	dialect, err := DialectFor(cfg.DBDriver)
	if err != nil {
		return nil, Dialect{}, err
	}

	dsn := cfg.DatabaseDSN
	if cfg.DBDriver == config.DriverMySQL {
		if dsn, err = mysqlDSN(dsn); err != nil {
			return nil, Dialect{}, err
		}
	}

	db, err := sql.Open(cfg.DBDriver, dsn)
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("open %s: %w", dialect.Name, err)
	}

	db.SetConnMaxLifetime(time.Minute * 5)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, Dialect{}, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}

	return db, dialect, nil
}

// mysqlDSN forces parseTime so timestamp columns scan into time.Time.
func mysqlDSN(raw string) (string, error) {
	parsed, err := mysql.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	parsed.ParseTime = true
	if parsed.Loc == nil {
		parsed.Loc = time.UTC
	}
	return parsed.FormatDSN(), nil
}

// Migrate applies the embedded migrations for the dialect.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	goose.SetBaseFS(sub)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect.Name); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, dialect.Name); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// MigrationStatus logs the applied state of every embedded migration through goose.
func MigrationStatus(ctx context.Context, db *sql.DB, dialect Dialect) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	goose.SetBaseFS(sub)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect.Name); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.StatusContext(ctx, db, dialect.Name); err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	return nil
}
