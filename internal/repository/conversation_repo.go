package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"mockmate-backend/internal/models"
)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

// AppendMessage is append-only; messages are never updated or deleted.
func (r *ConversationRepo) AppendMessage(ctx context.Context, m *models.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if len(m.MetadataJSON) == 0 {
		m.MetadataJSON = json.RawMessage("{}")
	}

	query := `INSERT INTO messages (id, session_id, role, content, metadata_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.SessionID, m.Role, m.Content, m.MetadataJSON, m.CreatedAt,
	)
	return err
}

// History returns the full transcript ordered by timestamp. Empty slice
// when the session has no messages.
func (r *ConversationRepo) History(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	query := `SELECT id, session_id, role, content, metadata_json, created_at
		FROM messages WHERE session_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.MetadataJSON, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
