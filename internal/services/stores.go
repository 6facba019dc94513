package services

import (
	"context"

	"github.com/google/uuid"

	"mockmate-backend/internal/models"
)

// Persistence contracts consumed by the core. Save operations are upserts
// keyed by session id (append-only for conversation and usage); get
// operations return nil / an empty slice on absence, never an error.

type SessionStore interface {
	SaveSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListSessions(ctx context.Context, userID string, limit, offset int) ([]*models.Session, error)
}

type ConversationStore interface {
	AppendMessage(ctx context.Context, m *models.Message) error
	History(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error)
}

type EvaluationStore interface {
	SaveEvaluation(ctx context.Context, r *models.EvaluationReport) error
	GetEvaluation(ctx context.Context, sessionID uuid.UUID) (*models.EvaluationReport, error)
}

type UsageStore interface {
	SaveUsageRecord(ctx context.Context, u *models.UsageRecord) error
}

type MediaStore interface {
	ListMediaReferences(ctx context.Context, sessionID uuid.UUID) ([]models.MediaReference, error)
}

// CommunicationDirector manages the per-session input/output channels.
// Enable and disable are idempotent.
type CommunicationDirector interface {
	EnableMode(ctx context.Context, sessionID uuid.UUID, mode models.CommunicationMode) error
	DisableMode(ctx context.Context, sessionID uuid.UUID, mode models.CommunicationMode) error
	EnabledModes(ctx context.Context, sessionID uuid.UUID) ([]models.CommunicationMode, error)
}

// ActiveSessionTracker resolves "the session currently in front of the
// user" without the caller re-passing an id. Scoped per user.
type ActiveSessionTracker interface {
	MarkActive(ctx context.Context, userID string, sessionID uuid.UUID) error
	ClearActive(ctx context.Context, userID string) error
	ActiveSessionID(ctx context.Context, userID string) (uuid.UUID, bool, error)
}

// ModelCaller is the single logical operation the core needs from a
// language-model provider: ordered role-tagged messages in, text plus a
// cost-annotated usage record out.
type ModelCaller interface {
	Call(ctx context.Context, sessionID uuid.UUID, msgs []models.Message, operation string) (string, *models.UsageRecord, error)
	CallWithImage(ctx context.Context, sessionID uuid.UUID, msgs []models.Message, image []byte, mimeType, operation string) (string, *models.UsageRecord, error)
}
