package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mockmate-backend/internal/models"
)

type evaluationReader interface {
	GetEvaluation(ctx context.Context, sessionID uuid.UUID) (*models.EvaluationReport, error)
}

type usageReader interface {
	ListUsageRecords(ctx context.Context, sessionID uuid.UUID) ([]models.UsageRecord, error)
}

type jobCreator interface {
	Create(ctx context.Context, j *models.Job) error
}

type sessionReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

type EvaluationHandler struct {
	evaluations evaluationReader
	usage       usageReader
	jobs        jobCreator
	sessions    sessionReader
	redis       *redis.Client
}

func NewEvaluationHandler(evaluations evaluationReader, usage usageReader, jobs jobCreator, sessions sessionReader, redisClient *redis.Client) *EvaluationHandler {
	return &EvaluationHandler{
		evaluations: evaluations,
		usage:       usage,
		jobs:        jobs,
		sessions:    sessions,
		redis:       redisClient,
	}
}

func (h *EvaluationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	report, err := h.evaluations.GetEvaluation(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if report == nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "No evaluation report for session", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"report": report})
}

func (h *EvaluationHandler) Usage(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	records, err := h.usage.ListUsageRecords(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	var totalCost float64
	var totalTokens int
	for _, rec := range records {
		totalCost += rec.CostUSD
		totalTokens += rec.TotalTokens
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records":        records,
		"total_tokens":   totalTokens,
		"total_cost_usd": totalCost,
	})
}

// Regenerate queues a background job that rebuilds the evaluation report.
// The worker pool picks it up from Redis and supersedes the stored report.
func (h *EvaluationHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	session, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if session.Status != models.SessionCompleted {
		writeJSON(w, http.StatusConflict, errorResp("INVALID_STATE", "Session must be completed before evaluation", r))
		return
	}

	job := &models.Job{
		UserID:    session.UserID,
		Type:      models.JobTypeEvaluation,
		SessionID: session.ID,
	}
	if err := h.jobs.Create(r.Context(), job); err != nil {
		handleServiceError(w, r, err)
		return
	}

	jobBytes, _ := json.Marshal(job)
	if err := h.redis.LPush(r.Context(), models.EvaluationQueue, string(jobBytes)).Err(); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	})
}
