package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digkill/nexora/internal/database"
	"github.com/digkill/nexora/internal/models"
)

type GenerationRepository struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewGenerationRepository(db *sql.DB, dialect database.Dialect) *GenerationRepository {
	return &GenerationRepository{db: db, dialect: dialect}
}

func (r *GenerationRepository) Insert(ctx context.Context, rec models.GenerationRecord) error {
	const query = `
INSERT INTO generation_history (id, user_id, kind, model_id, prompt, output_url, cost)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), rec.ID, rec.UserID, string(rec.Kind), rec.ModelID, rec.Prompt, rec.OutputURL, rec.Cost); err != nil {
		return fmt.Errorf("insert generation history: %w", err)
	}
	return nil
}

type HistoryFilter struct {
	Kind   models.GenerationKind
	Limit  uint64
	Offset uint64
}

// List returns the user's generations, newest first.
func (r *GenerationRepository) List(ctx context.Context, userID string, filter HistoryFilter) ([]models.GenerationRecord, error) {
	if filter.Limit == 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	builder := r.dialect.Builder().
		Select("id", "user_id", "kind", "model_id", "prompt", "output_url", "cost", "created_at").
		From("generation_history").
		Where("user_id = ?", userID).
		OrderBy("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset)
	if filter.Kind != "" {
		builder = builder.Where("kind = ?", string(filter.Kind))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list generation history: %w", err)
	}
	defer rows.Close()

	records := make([]models.GenerationRecord, 0, filter.Limit)
	for rows.Next() {
		var rec models.GenerationRecord
		var kind string
		if err := rows.Scan(&rec.ID, &rec.UserID, &kind, &rec.ModelID, &rec.Prompt, &rec.OutputURL, &rec.Cost, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation history: %w", err)
		}
		rec.Kind = models.GenerationKind(kind)
		records = append(records, rec)
	}
	return records, rows.Err()
}
