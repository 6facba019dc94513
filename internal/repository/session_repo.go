package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mockmate-backend/internal/models"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

// SaveSession is an upsert keyed by session id. The config is immutable
// after creation but written on every save for simplicity; only status,
// ended_at, and metadata actually change.
func (r *SessionRepo) SaveSession(ctx context.Context, s *models.Session) error {
	configJSON, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal session config: %w", err)
	}
	if len(s.MetadataJSON) == 0 {
		s.MetadataJSON = json.RawMessage("{}")
	}

	query := `
		INSERT INTO sessions (id, user_id, status, config_json, metadata_json, created_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
			metadata_json = EXCLUDED.metadata_json,
			ended_at = EXCLUDED.ended_at
	`
	_, err = r.pool.Exec(ctx, query,
		s.ID, s.UserID, s.Status, configJSON, s.MetadataJSON, s.CreatedAt, s.EndedAt,
	)
	return err
}

// GetSession returns nil, nil when the session does not exist.
func (r *SessionRepo) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s := &models.Session{}
	var configJSON []byte

	query := `SELECT id, user_id, status, config_json, metadata_json, created_at, ended_at
		FROM sessions WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.Status, &configJSON, &s.MetadataJSON, &s.CreatedAt, &s.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(configJSON, &s.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session config: %w", err)
	}
	return s, nil
}

// ListSessions returns newest first. Empty userID lists across all users.
func (r *SessionRepo) ListSessions(ctx context.Context, userID string, limit, offset int) ([]*models.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `SELECT id, user_id, status, config_json, metadata_json, created_at, ended_at
		FROM sessions
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s := &models.Session{}
		var configJSON []byte
		if err := rows.Scan(&s.ID, &s.UserID, &s.Status, &configJSON, &s.MetadataJSON, &s.CreatedAt, &s.EndedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(configJSON, &s.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session config: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
