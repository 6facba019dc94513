package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"mockmate-backend/internal/models"
)

type MediaRepo struct {
	pool *pgxpool.Pool
}

func NewMediaRepo(pool *pgxpool.Pool) *MediaRepo {
	return &MediaRepo{pool: pool}
}

func (r *MediaRepo) SaveMediaReference(ctx context.Context, m *models.MediaReference) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	query := `INSERT INTO media_references (id, session_id, mode, path, mime_type, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.SessionID, m.Mode, m.Path, m.MimeType, m.SizeBytes, m.CreatedAt,
	)
	return err
}

func (r *MediaRepo) ListMediaReferences(ctx context.Context, sessionID uuid.UUID) ([]models.MediaReference, error) {
	query := `SELECT id, session_id, mode, path, mime_type, size_bytes, created_at
		FROM media_references WHERE session_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := []models.MediaReference{}
	for rows.Next() {
		var m models.MediaReference
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Mode, &m.Path, &m.MimeType, &m.SizeBytes, &m.CreatedAt); err != nil {
			return nil, err
		}
		refs = append(refs, m)
	}
	return refs, rows.Err()
}
