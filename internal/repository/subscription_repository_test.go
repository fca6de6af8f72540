package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/nexora/internal/database"
	"github.com/digkill/nexora/internal/models"
)

func TestSubscriptionFind(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubscriptionRepository(db, database.Postgres)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM subscriptions WHERE user_id = $1`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "plan_name", "status", "updated_at"}).
			AddRow("u1", "Pro", "past_due", time.Now()))

	sub, err := repo.Find(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "Pro", sub.PlanName)
	assert.Equal(t, models.StatusPastDue, sub.Status)
}

func TestSubscriptionFindMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubscriptionRepository(db, database.MySQL)

	mock.ExpectQuery(`FROM subscriptions`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	sub, err := repo.Find(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestSubscriptionUpsertMySQL(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubscriptionRepository(db, database.MySQL)

	mock.ExpectExec(`ON DUPLICATE KEY UPDATE`).
		WithArgs("u1", "Growth", "active").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), "u1", models.PlanGrowth, models.StatusActive))
	assert.NoError(t, mock.ExpectationsWereMet())
}
