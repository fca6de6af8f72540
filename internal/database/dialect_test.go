package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	const q = `UPDATE credits SET balance = balance - ? WHERE user_id = ? AND balance >= ?`
	assert.Equal(t, q, MySQL.Rebind(q))
	assert.Equal(t, `UPDATE credits SET balance = balance - $1 WHERE user_id = $2 AND balance >= $3`, Postgres.Rebind(q))
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("pgx")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name)

	d, err = DialectFor("mysql")
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Name)

	_, err = DialectFor("sqlite")
	assert.Error(t, err)
}

func TestBuilderUsesDialectPlaceholders(t *testing.T) {
	query, args, err := Postgres.Builder().
		Select("id").From("generation_history").
		Where("user_id = ?", "u1").
		Limit(10).
		ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM generation_history WHERE user_id = $1 LIMIT 10", query)
	assert.Equal(t, []any{"u1"}, args)
}

func TestMysqlDSNForcesParseTime(t *testing.T) {
	dsn, err := mysqlDSN("user:pass@tcp(localhost:3306)/nexora")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")
}

func TestInsertReturningIDMySQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO promo_codes`).WithArgs("SPRING", 100).
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := MySQL.InsertReturningID(context.Background(), db, `INSERT INTO promo_codes (code, credits) VALUES (?, ?)`, "SPRING", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertReturningIDPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO promo_codes \(code, credits\) VALUES \(\$1, \$2\) RETURNING id`).
		WithArgs("SPRING", 100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

	id, err := Postgres.InsertReturningID(context.Background(), db, `INSERT INTO promo_codes (code, credits) VALUES (?, ?)`, "SPRING", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = WithTx(context.Background(), db, func(_ *sql.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
