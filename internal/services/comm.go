package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mockmate-backend/internal/models"
)

// CommunicationService tracks which input/output channels are live for each
// session, plus the per-user active-session marker. Backed by Redis sets
// and keys, so enable/disable are idempotent and the marker survives
// process restarts.
type CommunicationService struct {
	redis *redis.Client
}

func NewCommunicationService(redisClient *redis.Client) *CommunicationService {
	return &CommunicationService{redis: redisClient}
}

func modesKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session_modes:%s", sessionID)
}

func activeKey(userID string) string {
	return fmt.Sprintf("active_session:%s", userID)
}

func (s *CommunicationService) EnableMode(ctx context.Context, sessionID uuid.UUID, mode models.CommunicationMode) error {
	return s.redis.SAdd(ctx, modesKey(sessionID), string(mode)).Err()
}

func (s *CommunicationService) DisableMode(ctx context.Context, sessionID uuid.UUID, mode models.CommunicationMode) error {
	return s.redis.SRem(ctx, modesKey(sessionID), string(mode)).Err()
}

func (s *CommunicationService) EnabledModes(ctx context.Context, sessionID uuid.UUID) ([]models.CommunicationMode, error) {
	members, err := s.redis.SMembers(ctx, modesKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	modes := make([]models.CommunicationMode, 0, len(members))
	for _, m := range members {
		modes = append(modes, models.CommunicationMode(m))
	}
	return modes, nil
}

func (s *CommunicationService) MarkActive(ctx context.Context, userID string, sessionID uuid.UUID) error {
	return s.redis.Set(ctx, activeKey(userID), sessionID.String(), 0).Err()
}

func (s *CommunicationService) ClearActive(ctx context.Context, userID string) error {
	return s.redis.Del(ctx, activeKey(userID)).Err()
}

func (s *CommunicationService) ActiveSessionID(ctx context.Context, userID string) (uuid.UUID, bool, error) {
	val, err := s.redis.Get(ctx, activeKey(userID)).Result()
	if err == redis.Nil {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("invalid active session id for user %s: %w", userID, err)
	}
	return id, true, nil
}
