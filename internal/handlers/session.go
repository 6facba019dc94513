package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mockmate-backend/internal/models"
)

// sessionLifecycle is the coordinator surface this handler consumes.
type sessionLifecycle interface {
	Create(ctx context.Context, cfg models.SessionConfig, metadata json.RawMessage) (*models.Session, error)
	Start(ctx context.Context, id uuid.UUID) (*models.Message, error)
	Pause(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Resume(ctx context.Context, id uuid.UUID) (*models.Session, error)
	End(ctx context.Context, id uuid.UUID) (*models.EvaluationReport, error)
	SubmitResponse(ctx context.Context, id uuid.UUID, candidateText string, whiteboard []byte, mimeType string) (*models.Message, error)
	Clarify(ctx context.Context, id uuid.UUID, ambiguousText string) (*models.Message, error)
	NoteDifficulty(ctx context.Context, id uuid.UUID, ind models.PerformanceIndicators) (*models.Message, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	List(ctx context.Context, userID string, limit, offset int) ([]*models.Session, error)
	ActiveSession(ctx context.Context, userID string) (*models.Session, error)
}

type SessionHandler struct {
	coordinator sessionLifecycle
	redis       *redis.Client
}

func NewSessionHandler(coordinator sessionLifecycle, redisClient *redis.Client) *SessionHandler {
	return &SessionHandler{coordinator: coordinator, redis: redisClient}
}

var validModes = map[models.CommunicationMode]bool{
	models.ModeText:        true,
	models.ModeAudio:       true,
	models.ModeVideo:       true,
	models.ModeWhiteboard:  true,
	models.ModeScreenShare: true,
}

type createSessionRequest struct {
	Modes           []models.CommunicationMode `json:"modes"`
	Provider        string                     `json:"provider"`
	Model           string                     `json:"model"`
	Resume          *models.ResumeProfile      `json:"resume,omitempty"`
	DurationMinutes int                        `json:"duration_minutes"`
	Metadata        json.RawMessage            `json:"metadata,omitempty"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if len(req.Modes) == 0 {
		req.Modes = []models.CommunicationMode{models.ModeText}
	}
	for _, mode := range req.Modes {
		if !validModes[mode] {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", fmt.Sprintf("unknown communication mode %q", mode), r))
			return
		}
	}

	cfg := models.SessionConfig{
		Modes:           req.Modes,
		Provider:        req.Provider,
		Model:           req.Model,
		Resume:          req.Resume,
		DurationMinutes: req.DurationMinutes,
	}

	session, err := h.coordinator.Create(r.Context(), cfg, req.Metadata)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"session": session})
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	opening, err := h.coordinator.Start(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.publishTurn(r.Context(), id, opening)
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": opening})
}

func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.statusTransition(w, r, h.coordinator.Pause)
}

func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.statusTransition(w, r, h.coordinator.Resume)
}

func (h *SessionHandler) statusTransition(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID) (*models.Session, error)) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	session, err := op(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.publish(r.Context(), session.UserID, models.WSMessage{
		Type:    "session_status",
		Payload: models.SessionStatusEvent{SessionID: session.ID, Status: session.Status},
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	report, err := h.coordinator.End(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if session, getErr := h.coordinator.Get(r.Context(), id); getErr == nil {
		h.publish(r.Context(), session.UserID, models.WSMessage{
			Type: "evaluation_ready",
			Payload: models.EvaluationReadyEvent{
				SessionID:    id,
				ReportID:     report.ID,
				OverallScore: report.OverallScore,
			},
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"report": report})
}

type respondRequest struct {
	Text            string `json:"text"`
	WhiteboardImage string `json:"whiteboard_image,omitempty"` // base64
	MimeType        string `json:"mime_type,omitempty"`
}

func (h *SessionHandler) Respond(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "text is required", r))
		return
	}

	var whiteboard []byte
	if req.WhiteboardImage != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.WhiteboardImage)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "whiteboard_image must be base64", r))
			return
		}
		whiteboard = decoded
	}

	reply, err := h.coordinator.SubmitResponse(r.Context(), id, req.Text, whiteboard, req.MimeType)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.publishTurn(r.Context(), id, reply)
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": reply})
}

func (h *SessionHandler) Clarify(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "text is required", r))
		return
	}

	reply, err := h.coordinator.Clarify(r.Context(), id, req.Text)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.publishTurn(r.Context(), id, reply)
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": reply})
}

func (h *SessionHandler) NoteDifficulty(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req models.PerformanceIndicators
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	note, err := h.coordinator.NoteDifficulty(r.Context(), id, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"message": note})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	session, err := h.coordinator.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	sessions, err := h.coordinator.List(r.Context(), userID, limit, offset)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (h *SessionHandler) Active(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "user_id is required", r))
		return
	}

	session, err := h.coordinator.ActiveSession(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

func (h *SessionHandler) publishTurn(ctx context.Context, sessionID uuid.UUID, msg *models.Message) {
	session, err := h.coordinator.Get(ctx, sessionID)
	if err != nil {
		return
	}
	h.publish(ctx, session.UserID, models.WSMessage{
		Type:    "interview_turn",
		Payload: models.TurnEvent{SessionID: sessionID, Role: string(msg.Role), Content: msg.Content},
	})
}

// publish sends a live update via Redis pub/sub to the user's websocket.
func (h *SessionHandler) publish(ctx context.Context, userID string, msg models.WSMessage) {
	if h.redis == nil {
		return
	}
	data, _ := json.Marshal(msg)
	h.redis.Publish(ctx, "user_updates:"+userID, string(data))
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return uuid.Nil, false
	}
	return id, true
}
