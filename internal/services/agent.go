package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mockmate-backend/internal/models"
)

// InterviewAgent drives the conversation for one session at a time. It owns
// the in-process transcript replayed to the model on every turn; the window
// keeps replay bounded (opening problem plus the most recent turns).
type InterviewAgent struct {
	model     ModelCaller
	window    int
	sessionID uuid.UUID
	memory    []models.Message
	resume    *models.ResumeProfile
}

const defaultMemoryWindow = 20

// The fallback opening problem used when no résumé is available. Costs no
// tokens.
const defaultProblem = "Let's start with a classic: design a URL shortening service like bit.ly. " +
	"Walk me through the API you would expose, how you generate and store short codes, " +
	"and how the system behaves at 100 million redirects per day. Start wherever you like."

func NewInterviewAgent(model ModelCaller, memoryWindow int) *InterviewAgent {
	if memoryWindow <= 0 {
		memoryWindow = defaultMemoryWindow
	}
	return &InterviewAgent{model: model, window: memoryWindow}
}

// Initialize binds the agent to a session, clearing any previous memory.
func (a *InterviewAgent) Initialize(sessionID uuid.UUID, resume *models.ResumeProfile) {
	a.sessionID = sessionID
	a.resume = resume
	a.memory = nil
}

// Rehydrate rebinds the agent to a session whose transcript already exists,
// e.g. after a pause/resume or a process restart.
func (a *InterviewAgent) Rehydrate(sessionID uuid.UUID, resume *models.ResumeProfile, history []models.Message) {
	a.sessionID = sessionID
	a.resume = resume
	a.memory = append([]models.Message(nil), history...)
}

func (a *InterviewAgent) SessionID() uuid.UUID { return a.sessionID }

// StartInterview produces the opening problem statement. Résumé-tailored
// when a profile is present, otherwise the fixed default at zero cost.
func (a *InterviewAgent) StartInterview(ctx context.Context) (*models.Message, *models.UsageRecord, error) {
	if a.resume == nil {
		return a.append(models.RoleInterviewer, defaultProblem), nil, nil
	}

	prompt := buildProblemPrompt(a.resume)
	content, usage, err := a.model.Call(ctx, a.sessionID,
		[]models.Message{{Role: models.RoleSystem, Content: prompt}},
		"generate_problem")
	if err != nil {
		return nil, nil, err
	}

	return a.append(models.RoleInterviewer, strings.TrimSpace(content)), usage, nil
}

const followUpInstruction = "Based on the interview so far, ask exactly ONE probing follow-up question. " +
	"Focus on an aspect of scalability, reliability, consistency, or trade-offs the candidate " +
	"has not yet justified. Do not answer for them. Return only the question."

// ProcessResponse records the candidate's turn, replays the windowed memory
// with the follow-up instruction, and records the interviewer's reply.
// Returns both turns so the caller can persist them in order.
func (a *InterviewAgent) ProcessResponse(ctx context.Context, candidateText string, whiteboard []byte, mimeType string) (*models.Message, *models.Message, *models.UsageRecord, error) {
	candidate := a.append(models.RoleCandidate, candidateText)

	msgs := append(a.replay(), models.Message{Role: models.RoleSystem, Content: followUpInstruction})

	var (
		content string
		usage   *models.UsageRecord
		err     error
	)
	if len(whiteboard) > 0 {
		content, usage, err = a.model.CallWithImage(ctx, a.sessionID, msgs, whiteboard, mimeType, "process_response")
	} else {
		content, usage, err = a.model.Call(ctx, a.sessionID, msgs, "process_response")
	}
	if err != nil {
		return nil, nil, nil, err
	}

	reply := a.append(models.RoleInterviewer, strings.TrimSpace(content))
	return candidate, reply, usage, nil
}

// AskClarifyingQuestion is a single-shot call: the ambiguous statement is
// not added to memory, but the interviewer's clarification request is.
func (a *InterviewAgent) AskClarifyingQuestion(ctx context.Context, ambiguousText string) (*models.Message, *models.UsageRecord, error) {
	msgs := []models.Message{
		{Role: models.RoleSystem, Content: "The candidate said something ambiguous. Point out what is unclear and ask them to elaborate. Be brief and specific."},
		{Role: models.RoleCandidate, Content: ambiguousText},
	}

	content, usage, err := a.model.Call(ctx, a.sessionID, msgs, "ask_clarifying_question")
	if err != nil {
		return nil, nil, err
	}

	return a.append(models.RoleInterviewer, strings.TrimSpace(content)), usage, nil
}

// AdaptDifficulty appends a system-role calibration note. No model call:
// the note only biases future turns because memory is replayed.
func (a *InterviewAgent) AdaptDifficulty(ind models.PerformanceIndicators) *models.Message {
	note := fmt.Sprintf(
		"Interviewer calibration: response quality is %s, technical depth is %s, accuracy is %s. Adjust the difficulty of subsequent questions accordingly.",
		ind.ResponseQuality, ind.TechnicalDepth, ind.Accuracy,
	)
	return a.append(models.RoleSystem, note)
}

// AnalyzeWhiteboard reviews a whiteboard snapshot with a multimodal model
// call, degrading to a generic analysis when the output cannot be decoded.
func (a *InterviewAgent) AnalyzeWhiteboard(ctx context.Context, image []byte, mimeType string) (*models.WhiteboardAnalysis, *models.UsageRecord, error) {
	prompt := "You are reviewing a system-design whiteboard diagram drawn during a technical interview. " +
		"Return ONLY a JSON object: {\"components\": [\"...\"], \"relationships\": [\"...\"], " +
		"\"missing_elements\": [\"...\"], \"patterns\": [\"...\"]}. " +
		"Components are the boxes, relationships the labeled arrows, missing_elements the pieces a production " +
		"system would need that the diagram lacks, patterns any recognizable architecture patterns."

	content, usage, err := a.model.CallWithImage(ctx, a.sessionID,
		[]models.Message{{Role: models.RoleSystem, Content: prompt}},
		image, mimeType, "analyze_whiteboard")
	if err != nil {
		return nil, nil, err
	}

	var analysis models.WhiteboardAnalysis
	if !decodeModelJSON(content, &analysis) {
		analysis = models.WhiteboardAnalysis{
			Components:      []string{"Diagram content could not be itemized"},
			Relationships:   []string{},
			MissingElements: []string{"Automated review unavailable for this snapshot"},
			Patterns:        []string{},
		}
	}
	return &analysis, usage, nil
}

// Memory returns the current transcript (for inspection/persistence).
func (a *InterviewAgent) Memory() []models.Message {
	return append([]models.Message(nil), a.memory...)
}

func (a *InterviewAgent) append(role models.MessageRole, content string) *models.Message {
	msg := models.Message{
		ID:        uuid.New(),
		SessionID: a.sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	a.memory = append(a.memory, msg)
	return &msg
}

// replay returns the messages resent to the model: the opening problem
// statement always survives, plus the most recent window-1 turns.
func (a *InterviewAgent) replay() []models.Message {
	if len(a.memory) <= a.window {
		return append([]models.Message(nil), a.memory...)
	}
	out := make([]models.Message, 0, a.window)
	out = append(out, a.memory[0])
	out = append(out, a.memory[len(a.memory)-(a.window-1):]...)
	return out
}

func buildProblemPrompt(r *models.ResumeProfile) string {
	var b strings.Builder

	b.WriteString("You are a senior engineer conducting a system-design mock interview. ")
	b.WriteString("Generate ONE opening design problem tailored to this candidate. ")
	b.WriteString("State the problem conversationally in 3-5 sentences and end by inviting them to begin. Do not include hints or a solution.\n\n")

	b.WriteString("Candidate profile:\n")
	if r.ExperienceLevel != "" {
		b.WriteString(fmt.Sprintf("- Experience level: %s\n", r.ExperienceLevel))
	}
	b.WriteString(fmt.Sprintf("- Years of experience: %d\n", r.YearsExperience))
	if len(r.DomainTags) > 0 {
		b.WriteString(fmt.Sprintf("- Domains: %s\n", strings.Join(r.DomainTags, ", ")))
	}
	if r.MostRecentRole != "" {
		b.WriteString(fmt.Sprintf("- Most recent role: %s\n", r.MostRecentRole))
	}

	b.WriteString("\nDifficulty: ")
	b.WriteString(difficultyGuidance(r.YearsExperience))
	b.WriteString("\n")

	return b.String()
}

func difficultyGuidance(years int) string {
	switch {
	case years <= 2:
		return "Keep it to basic components: a single service, one datastore, a cache. Focus on correctness of the core flow."
	case years <= 5:
		return "Pose a distributed-systems problem that forces trade-off discussion: partitioning, replication, cache invalidation."
	case years <= 10:
		return "Pose a multi-service problem with consistency concerns across service boundaries: sagas, idempotency, exactly-once illusions."
	default:
		return "Pose an org-scale problem: multi-region architecture, migration strategy, platform boundaries, and team/system co-design."
	}
}
