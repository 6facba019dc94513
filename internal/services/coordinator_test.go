package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"mockmate-backend/internal/models"
)

// fakeComms implements CommunicationDirector and ActiveSessionTracker over
// plain maps.
type fakeComms struct {
	modes  map[uuid.UUID]map[models.CommunicationMode]bool
	active map[string]uuid.UUID
}

func newFakeComms() *fakeComms {
	return &fakeComms{
		modes:  make(map[uuid.UUID]map[models.CommunicationMode]bool),
		active: make(map[string]uuid.UUID),
	}
}

func (f *fakeComms) EnableMode(ctx context.Context, sessionID uuid.UUID, mode models.CommunicationMode) error {
	if f.modes[sessionID] == nil {
		f.modes[sessionID] = make(map[models.CommunicationMode]bool)
	}
	f.modes[sessionID][mode] = true
	return nil
}

func (f *fakeComms) DisableMode(ctx context.Context, sessionID uuid.UUID, mode models.CommunicationMode) error {
	delete(f.modes[sessionID], mode)
	return nil
}

func (f *fakeComms) EnabledModes(ctx context.Context, sessionID uuid.UUID) ([]models.CommunicationMode, error) {
	var out []models.CommunicationMode
	for mode := range f.modes[sessionID] {
		out = append(out, mode)
	}
	return out, nil
}

func (f *fakeComms) MarkActive(ctx context.Context, userID string, sessionID uuid.UUID) error {
	f.active[userID] = sessionID
	return nil
}

func (f *fakeComms) ClearActive(ctx context.Context, userID string) error {
	delete(f.active, userID)
	return nil
}

func (f *fakeComms) ActiveSessionID(ctx context.Context, userID string) (uuid.UUID, bool, error) {
	id, ok := f.active[userID]
	return id, ok, nil
}

type fakeEvaluator struct {
	err   error
	calls int
}

func (f *fakeEvaluator) GenerateEvaluation(ctx context.Context, sessionID uuid.UUID) (*models.EvaluationReport, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.EvaluationReport{ID: uuid.New(), SessionID: sessionID, OverallScore: 70.0}, nil
}

type coordinatorFixture struct {
	coordinator   *SessionCoordinator
	sessions      *memSessionStore
	conversations *memConversationStore
	model         *fakeModelCaller
	comms         *fakeComms
	evaluator     *fakeEvaluator
}

func newCoordinatorFixture() *coordinatorFixture {
	model := &fakeModelCaller{responses: map[string]string{
		"generate_problem":        "Design a feed ranking service.",
		"process_response":        "What happens when a shard goes down?",
		"ask_clarifying_question": "Which part of the write path did you mean?",
	}}
	sessions := newMemSessionStore()
	conversations := newMemConversationStore()
	comms := newFakeComms()
	evaluator := &fakeEvaluator{}
	agent := NewInterviewAgent(model, 20)

	return &coordinatorFixture{
		coordinator:   NewSessionCoordinator(sessions, conversations, agent, evaluator, comms, comms),
		sessions:      sessions,
		conversations: conversations,
		model:         model,
		comms:         comms,
		evaluator:     evaluator,
	}
}

func (fx *coordinatorFixture) createStarted(t *testing.T, cfg models.SessionConfig) *models.Session {
	t.Helper()
	session, err := fx.coordinator.Create(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := fx.coordinator.Start(context.Background(), session.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return session
}

// ─── Lifecycle Tests ───

func TestCreate_GuestUserDerivation(t *testing.T) {
	fx := newCoordinatorFixture()

	session, err := fx.coordinator.Create(context.Background(), models.SessionConfig{
		Modes: []models.CommunicationMode{models.ModeText},
	}, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if session.Status != models.SessionActive {
		t.Errorf("Expected new session to be active, got %s", session.Status)
	}
	if !strings.HasPrefix(session.UserID, "guest-") {
		t.Errorf("Expected synthesized guest id, got %q", session.UserID)
	}
	if session.UserID != "guest-"+session.ID.String()[:8] {
		t.Errorf("Guest id must derive from the session id, got %q", session.UserID)
	}
}

func TestCreate_ResumeUserDerivation(t *testing.T) {
	fx := newCoordinatorFixture()

	tests := []struct {
		name   string
		resume *models.ResumeProfile
		want   string
	}{
		{"candidate id wins", &models.ResumeProfile{CandidateID: "cand-77", Email: "a@b.com"}, "cand-77"},
		{"email fallback", &models.ResumeProfile{Email: "a@b.com"}, "a@b.com"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			session, err := fx.coordinator.Create(context.Background(), models.SessionConfig{Resume: tc.resume}, nil)
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if session.UserID != tc.want {
				t.Errorf("Expected user id %q, got %q", tc.want, session.UserID)
			}
		})
	}
}

func TestStart_WiresCollaborators(t *testing.T) {
	fx := newCoordinatorFixture()

	session, _ := fx.coordinator.Create(context.Background(), models.SessionConfig{
		Modes: []models.CommunicationMode{models.ModeText, models.ModeWhiteboard},
	}, nil)

	opening, err := fx.coordinator.Start(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// No resume means the fixed default problem, no model call.
	if !strings.Contains(opening.Content, "URL shortening") {
		t.Errorf("Expected default problem, got %q", opening.Content)
	}
	if len(fx.model.calls) != 0 {
		t.Errorf("Default opening must not call the model: %v", fx.model.calls)
	}

	history, _ := fx.conversations.History(context.Background(), session.ID)
	if len(history) != 1 || history[0].Role != models.RoleInterviewer {
		t.Errorf("Opening problem must be persisted, got %+v", history)
	}

	if !fx.comms.modes[session.ID][models.ModeText] || !fx.comms.modes[session.ID][models.ModeWhiteboard] {
		t.Error("Configured modes must be enabled on start")
	}
	if fx.comms.active[session.UserID] != session.ID {
		t.Error("Session must be marked active for its user")
	}
}

func TestStart_ResumeTailoredOpening(t *testing.T) {
	fx := newCoordinatorFixture()

	session, _ := fx.coordinator.Create(context.Background(), models.SessionConfig{
		Resume: &models.ResumeProfile{CandidateID: "cand-1", YearsExperience: 7},
	}, nil)

	opening, err := fx.coordinator.Start(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if opening.Content != "Design a feed ranking service." {
		t.Errorf("Expected tailored problem, got %q", opening.Content)
	}
	if len(fx.model.calls) != 1 || fx.model.calls[0] != "generate_problem" {
		t.Errorf("Expected one generate_problem call, got %v", fx.model.calls)
	}
}

func TestStart_OnCompletedSession(t *testing.T) {
	fx := newCoordinatorFixture()
	session := fx.createStarted(t, models.SessionConfig{
		Modes: []models.CommunicationMode{models.ModeText},
	})

	if _, err := fx.coordinator.End(context.Background(), session.ID); err != nil {
		t.Fatalf("End failed: %v", err)
	}

	_, err := fx.coordinator.Start(context.Background(), session.ID)

	var stateErr *StateTransitionError
	if !errors.As(err, &stateErr) {
		t.Fatalf("Expected StateTransitionError, got %v", err)
	}
	if stateErr.Current != models.SessionCompleted {
		t.Errorf("Unexpected transition error: %v", stateErr)
	}

	// The gate fires before any collaborator: no model call, no re-enabled
	// modes, no re-marked active session, no new opening turn.
	if len(fx.model.calls) != 0 {
		t.Errorf("Start on a completed session must not call the model: %v", fx.model.calls)
	}
	if len(fx.comms.modes[session.ID]) != 0 {
		t.Error("Start on a completed session must not re-enable modes")
	}
	if _, ok := fx.comms.active[session.UserID]; ok {
		t.Error("Start on a completed session must not re-mark it active")
	}
	history, _ := fx.conversations.History(context.Background(), session.ID)
	if len(history) != 1 {
		t.Errorf("Expected the single original opening turn, got %d", len(history))
	}
}

func TestStart_DuplicateModeEnabledOnce(t *testing.T) {
	fx := newCoordinatorFixture()

	session, err := fx.coordinator.Create(context.Background(), models.SessionConfig{
		Modes: []models.CommunicationMode{models.ModeAudio, models.ModeAudio},
	}, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := fx.coordinator.Start(context.Background(), session.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	enabled, err := fx.comms.EnabledModes(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("EnabledModes failed: %v", err)
	}
	if len(enabled) != 1 || enabled[0] != models.ModeAudio {
		t.Errorf("Enabling a mode twice must yield exactly one entry, got %v", enabled)
	}
}

func TestPauseResume_Transitions(t *testing.T) {
	fx := newCoordinatorFixture()
	session := fx.createStarted(t, models.SessionConfig{})

	paused, err := fx.coordinator.Pause(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if paused.Status != models.SessionPaused {
		t.Errorf("Expected paused, got %s", paused.Status)
	}

	// Pausing again is illegal.
	if _, err := fx.coordinator.Pause(context.Background(), session.ID); err == nil {
		t.Error("Pausing a paused session must fail")
	}

	resumed, err := fx.coordinator.Resume(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if resumed.Status != models.SessionActive {
		t.Errorf("Expected active, got %s", resumed.Status)
	}
	if fx.comms.active[session.UserID] != session.ID {
		t.Error("Resume must re-mark the session active")
	}

	// Resuming an active session is illegal.
	if _, err := fx.coordinator.Resume(context.Background(), session.ID); err == nil {
		t.Error("Resuming an active session must fail")
	}
}

func TestIllegalTransition_LeavesStateUntouched(t *testing.T) {
	fx := newCoordinatorFixture()
	session := fx.createStarted(t, models.SessionConfig{})

	if _, err := fx.coordinator.End(context.Background(), session.ID); err != nil {
		t.Fatalf("End failed: %v", err)
	}

	_, err := fx.coordinator.Pause(context.Background(), session.ID)

	var stateErr *StateTransitionError
	if !errors.As(err, &stateErr) {
		t.Fatalf("Expected StateTransitionError, got %v", err)
	}
	if stateErr.Current != models.SessionCompleted || stateErr.Requested != models.SessionPaused {
		t.Errorf("Unexpected transition error: %v", stateErr)
	}

	stored, _ := fx.sessions.GetSession(context.Background(), session.ID)
	if stored.Status != models.SessionCompleted {
		t.Errorf("Stored status must be untouched, got %s", stored.Status)
	}
}

func TestEnd_CompletesAndEvaluates(t *testing.T) {
	fx := newCoordinatorFixture()
	session := fx.createStarted(t, models.SessionConfig{
		Modes: []models.CommunicationMode{models.ModeText, models.ModeAudio},
	})

	report, err := fx.coordinator.End(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if report == nil || report.SessionID != session.ID {
		t.Error("End must return the session's report")
	}

	stored, _ := fx.sessions.GetSession(context.Background(), session.ID)
	if stored.Status != models.SessionCompleted {
		t.Errorf("Expected completed, got %s", stored.Status)
	}
	if stored.EndedAt == nil {
		t.Error("EndedAt must be set")
	}

	if len(fx.comms.modes[session.ID]) != 0 {
		t.Error("All modes must be disabled on end")
	}
	if _, ok := fx.comms.active[session.UserID]; ok {
		t.Error("Active marker must be cleared on end")
	}
	if fx.evaluator.calls != 1 {
		t.Errorf("Expected one evaluation, got %d", fx.evaluator.calls)
	}

	// Ending twice is illegal.
	if _, err := fx.coordinator.End(context.Background(), session.ID); err == nil {
		t.Error("Ending a completed session must fail")
	}
}

func TestEnd_FromPausedIsIllegal(t *testing.T) {
	fx := newCoordinatorFixture()
	session := fx.createStarted(t, models.SessionConfig{})

	if _, err := fx.coordinator.Pause(context.Background(), session.ID); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	_, err := fx.coordinator.End(context.Background(), session.ID)

	var stateErr *StateTransitionError
	if !errors.As(err, &stateErr) {
		t.Fatalf("Expected StateTransitionError, got %v", err)
	}
	if fx.evaluator.calls != 0 {
		t.Error("No evaluation may run for a paused session")
	}
}

func TestEnd_EvaluationFailureKeepsCompletion(t *testing.T) {
	fx := newCoordinatorFixture()
	fx.evaluator.err = &ProviderError{Provider: "gemini", Attempts: 3, Err: errors.New("down")}
	session := fx.createStarted(t, models.SessionConfig{})

	_, err := fx.coordinator.End(context.Background(), session.ID)

	var platErr *PlatformError
	if !errors.As(err, &platErr) {
		t.Fatalf("Expected PlatformError, got %v", err)
	}
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Error("PlatformError must preserve the provider cause")
	}

	// The status write is not rolled back; regeneration remains possible.
	stored, _ := fx.sessions.GetSession(context.Background(), session.ID)
	if stored.Status != models.SessionCompleted {
		t.Errorf("Session must stay completed, got %s", stored.Status)
	}
}

// ─── Turn Tests ───

func TestSubmitResponse_PersistsBothTurns(t *testing.T) {
	fx := newCoordinatorFixture()
	session := fx.createStarted(t, models.SessionConfig{})

	reply, err := fx.coordinator.SubmitResponse(context.Background(), session.ID, "I'd shard by user id.", nil, "")
	if err != nil {
		t.Fatalf("SubmitResponse failed: %v", err)
	}
	if reply.Content != "What happens when a shard goes down?" {
		t.Errorf("Unexpected reply: %q", reply.Content)
	}

	history, _ := fx.conversations.History(context.Background(), session.ID)
	if len(history) != 3 {
		t.Fatalf("Expected opening + candidate + reply, got %d", len(history))
	}
	if history[1].Role != models.RoleCandidate || history[1].Content != "I'd shard by user id." {
		t.Errorf("Candidate turn not persisted: %+v", history[1])
	}
	if history[2].Role != models.RoleInterviewer {
		t.Errorf("Interviewer turn not persisted: %+v", history[2])
	}
}

func TestSubmitResponse_RequiresActive(t *testing.T) {
	fx := newCoordinatorFixture()
	session := fx.createStarted(t, models.SessionConfig{})
	fx.coordinator.Pause(context.Background(), session.ID)

	_, err := fx.coordinator.SubmitResponse(context.Background(), session.ID, "still here", nil, "")

	var stateErr *StateTransitionError
	if !errors.As(err, &stateErr) {
		t.Fatalf("Expected StateTransitionError, got %v", err)
	}

	history, _ := fx.conversations.History(context.Background(), session.ID)
	if len(history) != 1 {
		t.Error("No turns may be persisted for a paused session")
	}
}

func TestSubmitResponse_RehydratesAcrossSessions(t *testing.T) {
	fx := newCoordinatorFixture()
	first := fx.createStarted(t, models.SessionConfig{})
	if _, err := fx.coordinator.SubmitResponse(context.Background(), first.ID, "first answer", nil, ""); err != nil {
		t.Fatalf("First submit failed: %v", err)
	}

	second := fx.createStarted(t, models.SessionConfig{})
	if _, err := fx.coordinator.SubmitResponse(context.Background(), second.ID, "second answer", nil, ""); err != nil {
		t.Fatalf("Second submit failed: %v", err)
	}

	// Back to the first session: the agent must replay its transcript,
	// not the second one's.
	if _, err := fx.coordinator.SubmitResponse(context.Background(), first.ID, "back again", nil, ""); err != nil {
		t.Fatalf("Return submit failed: %v", err)
	}

	replayed := fx.model.lastMsgs
	for _, m := range replayed {
		if m.Content == "second answer" {
			t.Error("Replay leaked another session's transcript")
		}
	}

	firstHistory, _ := fx.conversations.History(context.Background(), first.ID)
	if len(firstHistory) != 5 {
		t.Errorf("Expected 5 turns in first session, got %d", len(firstHistory))
	}
}

func TestClarify_PersistsInterviewerTurnOnly(t *testing.T) {
	fx := newCoordinatorFixture()
	session := fx.createStarted(t, models.SessionConfig{})

	reply, err := fx.coordinator.Clarify(context.Background(), session.ID, "it just works somehow")
	if err != nil {
		t.Fatalf("Clarify failed: %v", err)
	}
	if reply.Role != models.RoleInterviewer {
		t.Errorf("Expected interviewer turn, got %s", reply.Role)
	}

	history, _ := fx.conversations.History(context.Background(), session.ID)
	if len(history) != 2 {
		t.Fatalf("Expected opening + clarification, got %d", len(history))
	}
	if history[1].Content != "Which part of the write path did you mean?" {
		t.Errorf("Unexpected clarification: %q", history[1].Content)
	}
}

func TestNoteDifficulty_PersistsSystemTurn(t *testing.T) {
	fx := newCoordinatorFixture()
	session := fx.createStarted(t, models.SessionConfig{})

	note, err := fx.coordinator.NoteDifficulty(context.Background(), session.ID, models.PerformanceIndicators{
		ResponseQuality: "weak", TechnicalDepth: "shallow", Accuracy: "mixed",
	})
	if err != nil {
		t.Fatalf("NoteDifficulty failed: %v", err)
	}
	if note.Role != models.RoleSystem {
		t.Errorf("Expected system turn, got %s", note.Role)
	}

	history, _ := fx.conversations.History(context.Background(), session.ID)
	if len(history) != 2 || history[1].Role != models.RoleSystem {
		t.Errorf("Calibration note not persisted: %+v", history)
	}
}

// ─── Lookup Tests ───

func TestActiveSession(t *testing.T) {
	fx := newCoordinatorFixture()
	session := fx.createStarted(t, models.SessionConfig{})

	found, err := fx.coordinator.ActiveSession(context.Background(), session.UserID)
	if err != nil {
		t.Fatalf("ActiveSession failed: %v", err)
	}
	if found.ID != session.ID {
		t.Error("ActiveSession must resolve the marked session")
	}

	fx.coordinator.End(context.Background(), session.ID)

	_, err = fx.coordinator.ActiveSession(context.Background(), session.UserID)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected NotFoundError after end, got %v", err)
	}
}

func TestGet_UnknownSession(t *testing.T) {
	fx := newCoordinatorFixture()

	_, err := fx.coordinator.Get(context.Background(), uuid.New())

	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
}
