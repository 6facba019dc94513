package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"mockmate-backend/internal/models"
)

type UsageRepo struct {
	pool *pgxpool.Pool
}

func NewUsageRepo(pool *pgxpool.Pool) *UsageRepo {
	return &UsageRepo{pool: pool}
}

func (r *UsageRepo) SaveUsageRecord(ctx context.Context, u *models.UsageRecord) error {
	query := `INSERT INTO usage_records
		(id, session_id, provider, model, operation, input_tokens, output_tokens, total_tokens, cost_usd, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		u.ID, u.SessionID, u.Provider, u.Model, u.Operation,
		u.InputTokens, u.OutputTokens, u.TotalTokens, u.CostUSD, u.CreatedAt,
	)
	return err
}

func (r *UsageRepo) ListUsageRecords(ctx context.Context, sessionID uuid.UUID) ([]models.UsageRecord, error) {
	query := `SELECT id, session_id, provider, model, operation, input_tokens, output_tokens, total_tokens, cost_usd, created_at
		FROM usage_records WHERE session_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.UsageRecord{}
	for rows.Next() {
		var u models.UsageRecord
		if err := rows.Scan(&u.ID, &u.SessionID, &u.Provider, &u.Model, &u.Operation,
			&u.InputTokens, &u.OutputTokens, &u.TotalTokens, &u.CostUSD, &u.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, u)
	}
	return records, rows.Err()
}
