package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"mockmate-backend/internal/models"
)

// Evaluator produces and persists the evaluation report for an ended
// session.
type Evaluator interface {
	GenerateEvaluation(ctx context.Context, sessionID uuid.UUID) (*models.EvaluationReport, error)
}

// SessionCoordinator owns the session lifecycle state machine and is the
// single entry point for create/start/pause/resume/end. Collaborator
// failures are logged at the point of origin and re-raised as a single
// PlatformError shape; illegal transitions and missing sessions surface as
// their own (non-retryable) error types.
type SessionCoordinator struct {
	sessions      SessionStore
	conversations ConversationStore
	agent         *InterviewAgent
	evaluator     Evaluator
	comms         CommunicationDirector
	active        ActiveSessionTracker
}

func NewSessionCoordinator(
	sessions SessionStore,
	conversations ConversationStore,
	agent *InterviewAgent,
	evaluator Evaluator,
	comms CommunicationDirector,
	active ActiveSessionTracker,
) *SessionCoordinator {
	return &SessionCoordinator{
		sessions:      sessions,
		conversations: conversations,
		agent:         agent,
		evaluator:     evaluator,
		comms:         comms,
		active:        active,
	}
}

// Create generates a new session in status ACTIVE and persists it. The
// owning user id comes from the résumé profile when one is present,
// otherwise a pseudo-user id is synthesized from the session id.
func (c *SessionCoordinator) Create(ctx context.Context, cfg models.SessionConfig, metadata json.RawMessage) (*models.Session, error) {
	id := uuid.New()
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}

	session := &models.Session{
		ID:           id,
		UserID:       deriveUserID(cfg.Resume, id),
		Status:       models.SessionActive,
		Config:       cfg,
		MetadataJSON: metadata,
		CreatedAt:    time.Now().UTC(),
	}

	if err := c.sessions.SaveSession(ctx, session); err != nil {
		return nil, c.fail("persistence", "create", id, err)
	}
	return session, nil
}

// Start activates the collaborators for a freshly created session: agent
// memory, communication modes, the opening question, and the active-session
// marker. It does not itself transition state and requires status ACTIVE.
func (c *SessionCoordinator) Start(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	session, err := c.load(ctx, "start", id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, &StateTransitionError{Current: session.Status, Requested: models.SessionActive}
	}

	c.agent.Initialize(id, session.Config.Resume)

	for _, mode := range session.Config.Modes {
		if err := c.comms.EnableMode(ctx, id, mode); err != nil {
			return nil, c.fail("communication", "start", id, err)
		}
	}

	opening, _, err := c.agent.StartInterview(ctx)
	if err != nil {
		return nil, c.fail("interview_agent", "start", id, err)
	}

	if err := c.conversations.AppendMessage(ctx, opening); err != nil {
		return nil, c.fail("persistence", "start", id, err)
	}

	if err := c.active.MarkActive(ctx, session.UserID, id); err != nil {
		return nil, c.fail("active_tracker", "start", id, err)
	}

	return opening, nil
}

// Pause is a status-only ACTIVE -> PAUSED transition.
func (c *SessionCoordinator) Pause(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return c.transition(ctx, "pause", id, models.SessionActive, models.SessionPaused)
}

// Resume is a status-only PAUSED -> ACTIVE transition; it also re-marks the
// session as the user's active one.
func (c *SessionCoordinator) Resume(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session, err := c.transition(ctx, "resume", id, models.SessionPaused, models.SessionActive)
	if err != nil {
		return nil, err
	}
	if err := c.active.MarkActive(ctx, session.UserID, id); err != nil {
		return nil, c.fail("active_tracker", "resume", id, err)
	}
	return session, nil
}

func (c *SessionCoordinator) transition(ctx context.Context, op string, id uuid.UUID, from, to models.SessionStatus) (*models.Session, error) {
	session, err := c.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if session.Status != from {
		return nil, &StateTransitionError{Current: session.Status, Requested: to}
	}

	session.Status = to
	if err := c.sessions.SaveSession(ctx, session); err != nil {
		return nil, c.fail("persistence", op, id, err)
	}
	return session, nil
}

// End completes the session and crosses into the evaluation pipeline: it
// marks the session COMPLETED, disables the communication modes, clears the
// active marker, and returns the synthesized report. The status write is
// not rolled back if evaluation fails; a report can be regenerated later.
func (c *SessionCoordinator) End(ctx context.Context, id uuid.UUID) (*models.EvaluationReport, error) {
	session, err := c.load(ctx, "end", id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, &StateTransitionError{Current: session.Status, Requested: models.SessionCompleted}
	}

	now := time.Now().UTC()
	session.Status = models.SessionCompleted
	session.EndedAt = &now
	if err := c.sessions.SaveSession(ctx, session); err != nil {
		return nil, c.fail("persistence", "end", id, err)
	}

	modes, err := c.comms.EnabledModes(ctx, id)
	if err != nil {
		return nil, c.fail("communication", "end", id, err)
	}
	for _, mode := range modes {
		if err := c.comms.DisableMode(ctx, id, mode); err != nil {
			return nil, c.fail("communication", "end", id, err)
		}
	}

	if err := c.active.ClearActive(ctx, session.UserID); err != nil {
		return nil, c.fail("active_tracker", "end", id, err)
	}

	report, err := c.evaluator.GenerateEvaluation(ctx, id)
	if err != nil {
		return nil, c.fail("evaluation", "end", id, err)
	}
	return report, nil
}

// SubmitResponse records a candidate turn and returns the interviewer's
// follow-up. Requires status ACTIVE.
func (c *SessionCoordinator) SubmitResponse(ctx context.Context, id uuid.UUID, candidateText string, whiteboard []byte, mimeType string) (*models.Message, error) {
	session, err := c.load(ctx, "submit_response", id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, &StateTransitionError{Current: session.Status, Requested: models.SessionActive}
	}

	if err := c.bindAgent(ctx, session); err != nil {
		return nil, err
	}

	candidate, reply, _, err := c.agent.ProcessResponse(ctx, candidateText, whiteboard, mimeType)
	if err != nil {
		return nil, c.fail("interview_agent", "submit_response", id, err)
	}

	if err := c.conversations.AppendMessage(ctx, candidate); err != nil {
		return nil, c.fail("persistence", "submit_response", id, err)
	}
	if err := c.conversations.AppendMessage(ctx, reply); err != nil {
		return nil, c.fail("persistence", "submit_response", id, err)
	}

	return reply, nil
}

// Clarify asks the model to point out what is unclear in an ambiguous
// candidate statement. The clarification request is persisted as an
// interviewer turn.
func (c *SessionCoordinator) Clarify(ctx context.Context, id uuid.UUID, ambiguousText string) (*models.Message, error) {
	session, err := c.load(ctx, "clarify", id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, &StateTransitionError{Current: session.Status, Requested: models.SessionActive}
	}

	if err := c.bindAgent(ctx, session); err != nil {
		return nil, err
	}

	reply, _, err := c.agent.AskClarifyingQuestion(ctx, ambiguousText)
	if err != nil {
		return nil, c.fail("interview_agent", "clarify", id, err)
	}

	if err := c.conversations.AppendMessage(ctx, reply); err != nil {
		return nil, c.fail("persistence", "clarify", id, err)
	}
	return reply, nil
}

// NoteDifficulty records qualitative performance signals as a system turn
// that biases the interviewer's subsequent questions.
func (c *SessionCoordinator) NoteDifficulty(ctx context.Context, id uuid.UUID, ind models.PerformanceIndicators) (*models.Message, error) {
	session, err := c.load(ctx, "note_difficulty", id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, &StateTransitionError{Current: session.Status, Requested: models.SessionActive}
	}

	if err := c.bindAgent(ctx, session); err != nil {
		return nil, err
	}

	note := c.agent.AdaptDifficulty(ind)
	if err := c.conversations.AppendMessage(ctx, note); err != nil {
		return nil, c.fail("persistence", "note_difficulty", id, err)
	}
	return note, nil
}

// AnalyzeWhiteboard reviews a whiteboard snapshot for an active session.
func (c *SessionCoordinator) AnalyzeWhiteboard(ctx context.Context, id uuid.UUID, image []byte, mimeType string) (*models.WhiteboardAnalysis, error) {
	session, err := c.load(ctx, "analyze_whiteboard", id)
	if err != nil {
		return nil, err
	}

	if err := c.bindAgent(ctx, session); err != nil {
		return nil, err
	}

	analysis, _, err := c.agent.AnalyzeWhiteboard(ctx, image, mimeType)
	if err != nil {
		return nil, c.fail("interview_agent", "analyze_whiteboard", id, err)
	}
	return analysis, nil
}

// Get returns the session or NotFoundError.
func (c *SessionCoordinator) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return c.load(ctx, "get", id)
}

// List is a read-only pass-through to persistence. Empty userID lists all.
func (c *SessionCoordinator) List(ctx context.Context, userID string, limit, offset int) ([]*models.Session, error) {
	sessions, err := c.sessions.ListSessions(ctx, userID, limit, offset)
	if err != nil {
		return nil, c.fail("persistence", "list", uuid.Nil, err)
	}
	return sessions, nil
}

// ActiveSession resolves the session currently in front of the user.
func (c *SessionCoordinator) ActiveSession(ctx context.Context, userID string) (*models.Session, error) {
	id, ok, err := c.active.ActiveSessionID(ctx, userID)
	if err != nil {
		return nil, c.fail("active_tracker", "active_session", uuid.Nil, err)
	}
	if !ok {
		return nil, &NotFoundError{Message: fmt.Sprintf("no active session for user %s", userID)}
	}
	return c.load(ctx, "active_session", id)
}

// bindAgent rehydrates the agent from the persisted transcript when it was
// last bound to a different session.
func (c *SessionCoordinator) bindAgent(ctx context.Context, session *models.Session) error {
	if c.agent.SessionID() == session.ID {
		return nil
	}
	history, err := c.conversations.History(ctx, session.ID)
	if err != nil {
		return c.fail("persistence", "rehydrate_agent", session.ID, err)
	}
	c.agent.Rehydrate(session.ID, session.Config.Resume, history)
	return nil
}

func (c *SessionCoordinator) load(ctx context.Context, op string, id uuid.UUID) (*models.Session, error) {
	session, err := c.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, c.fail("persistence", op, id, err)
	}
	if session == nil {
		return nil, &NotFoundError{Message: fmt.Sprintf("session %s not found", id)}
	}
	return session, nil
}

func (c *SessionCoordinator) fail(component, op string, id uuid.UUID, err error) error {
	log.Printf("%s failure during %s (session %s): %v", component, op, id, err)
	return &PlatformError{Component: component, Operation: op, SessionID: id.String(), Err: err}
}

func deriveUserID(resume *models.ResumeProfile, sessionID uuid.UUID) string {
	if resume != nil {
		if resume.CandidateID != "" {
			return resume.CandidateID
		}
		if resume.Email != "" {
			return resume.Email
		}
	}
	return "guest-" + sessionID.String()[:8]
}
