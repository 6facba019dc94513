package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"mockmate-backend/internal/models"
)

// The fixed competency areas scored for every session, in canonical order.
// The order also breaks ties when priority areas are derived.
var competencyNames = []string{
	"Problem Decomposition",
	"Scalability",
	"Reliability & Fault Tolerance",
	"Data Modeling",
	"Trade-off Analysis",
	"Communication Clarity",
	"System Design Patterns",
}

// EvaluationSynthesizer turns a recorded transcript into a structured
// report: competency scores, categorized feedback, and an improvement plan,
// each stage one model call. Malformed model output degrades to defaults;
// only infrastructure failures abort the pipeline.
type EvaluationSynthesizer struct {
	model         ModelCaller
	sessions      SessionStore
	conversations ConversationStore
	media         MediaStore
	evaluations   EvaluationStore
}

func NewEvaluationSynthesizer(
	model ModelCaller,
	sessions SessionStore,
	conversations ConversationStore,
	media MediaStore,
	evaluations EvaluationStore,
) *EvaluationSynthesizer {
	return &EvaluationSynthesizer{
		model:         model,
		sessions:      sessions,
		conversations: conversations,
		media:         media,
		evaluations:   evaluations,
	}
}

// GenerateEvaluation runs the full pipeline and persists the report,
// superseding any prior report for the session.
func (s *EvaluationSynthesizer) GenerateEvaluation(ctx context.Context, sessionID uuid.UUID) (*models.EvaluationReport, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, &PersistenceError{Op: "get_session", Err: err}
	}
	if session == nil {
		return nil, &NotFoundError{Message: fmt.Sprintf("session %s not found", sessionID)}
	}

	history, err := s.conversations.History(ctx, sessionID)
	if err != nil {
		return nil, &PersistenceError{Op: "get_conversation_history", Err: err}
	}

	refs, err := s.media.ListMediaReferences(ctx, sessionID)
	if err != nil {
		return nil, &PersistenceError{Op: "get_media_references", Err: err}
	}

	transcript := formatMessages(history)

	competencies, err := s.scoreCompetencies(ctx, sessionID, transcript)
	if err != nil {
		return nil, err
	}

	feedback, err := s.categorizeFeedback(ctx, sessionID, transcript, competencies)
	if err != nil {
		return nil, err
	}

	plan, err := s.buildImprovementPlan(ctx, sessionID, competencies)
	if err != nil {
		return nil, err
	}

	report := &models.EvaluationReport{
		ID:            uuid.New(),
		SessionID:     sessionID,
		OverallScore:  overallScore(competencies),
		Competencies:  competencies,
		Feedback:      feedback,
		Plan:          plan,
		Communication: communicationSummary(session.Config.Modes, refs),
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.evaluations.SaveEvaluation(ctx, report); err != nil {
		return nil, &PersistenceError{Op: "save_evaluation", Err: err}
	}

	return report, nil
}

// Stage 1: competency analysis.

func (s *EvaluationSynthesizer) scoreCompetencies(ctx context.Context, sessionID uuid.UUID, transcript string) (map[string]models.CompetencyScore, error) {
	var b strings.Builder
	b.WriteString("You are evaluating a system-design mock interview. Score the candidate in each of these competency areas:\n")
	for _, name := range competencyNames {
		b.WriteString("- ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	b.WriteString("\nReturn ONLY a JSON object mapping each competency name exactly as listed to ")
	b.WriteString(`{"score": 0-100, "confidence_level": "high"|"medium"|"low", "evidence": ["quotes or paraphrases from the transcript"]}.`)
	b.WriteString("\n\n---TRANSCRIPT START---\n")
	b.WriteString(transcript)
	b.WriteString("\n---TRANSCRIPT END---\n")

	raw, _, err := s.model.Call(ctx, sessionID,
		[]models.Message{{Role: models.RoleSystem, Content: b.String()}},
		"evaluate_competencies")
	if err != nil {
		return nil, err
	}

	var parsed map[string]models.CompetencyScore
	decodeModelJSON(raw, &parsed)

	scores := make(map[string]models.CompetencyScore, len(competencyNames))
	for _, name := range competencyNames {
		cs, ok := parsed[name]
		if !ok {
			scores[name] = defaultCompetencyScore()
			continue
		}
		cs.Score = clampScore(cs.Score)
		switch cs.Confidence {
		case models.ConfidenceHigh, models.ConfidenceMedium, models.ConfidenceLow:
		default:
			cs.Confidence = models.ConfidenceLow
		}
		if cs.Evidence == nil {
			cs.Evidence = []string{}
		}
		scores[name] = cs
	}
	return scores, nil
}

func defaultCompetencyScore() models.CompetencyScore {
	return models.CompetencyScore{
		Score:      50,
		Confidence: models.ConfidenceLow,
		Evidence:   []string{"Insufficient signal in the transcript to score this area"},
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Stage 2: overall score — arithmetic mean rounded to two decimals, 0 when
// nothing was scored.
func overallScore(scores map[string]models.CompetencyScore) float64 {
	if len(scores) == 0 {
		return 0.0
	}
	var sum float64
	for _, cs := range scores {
		sum += cs.Score
	}
	return math.Round(sum/float64(len(scores))*100) / 100
}

// Stage 3: categorized feedback.

func (s *EvaluationSynthesizer) categorizeFeedback(ctx context.Context, sessionID uuid.UUID, transcript string, scores map[string]models.CompetencyScore) (map[models.FeedbackCategory][]models.FeedbackItem, error) {
	var b strings.Builder
	b.WriteString("You are writing feedback for a system-design mock interview. Competency scores:\n")
	for _, name := range competencyNames {
		if cs, ok := scores[name]; ok {
			b.WriteString(fmt.Sprintf("- %s: %.0f\n", name, cs.Score))
		}
	}
	b.WriteString("\nReturn ONLY a JSON object: ")
	b.WriteString(`{"went_well": [3-5 items], "went_okay": [2-4 items], "needs_improvement": [2-4 items]}, `)
	b.WriteString(`each item {"description": "...", "evidence": ["..."]}.`)
	b.WriteString("\n\n---TRANSCRIPT START---\n")
	b.WriteString(transcript)
	b.WriteString("\n---TRANSCRIPT END---\n")

	raw, _, err := s.model.Call(ctx, sessionID,
		[]models.Message{{Role: models.RoleSystem, Content: b.String()}},
		"categorize_feedback")
	if err != nil {
		return nil, err
	}

	var parsed struct {
		WentWell         []models.FeedbackItem `json:"went_well"`
		WentOkay         []models.FeedbackItem `json:"went_okay"`
		NeedsImprovement []models.FeedbackItem `json:"needs_improvement"`
	}
	decodeModelJSON(raw, &parsed)

	feedback := map[models.FeedbackCategory][]models.FeedbackItem{
		models.WentWell:         parsed.WentWell,
		models.WentOkay:         parsed.WentOkay,
		models.NeedsImprovement: parsed.NeedsImprovement,
	}
	for category, items := range feedback {
		if len(items) == 0 {
			feedback[category] = []models.FeedbackItem{genericFeedback(category)}
			continue
		}
		for i := range items {
			if items[i].Evidence == nil {
				items[i].Evidence = []string{}
			}
		}
	}
	return feedback, nil
}

func genericFeedback(category models.FeedbackCategory) models.FeedbackItem {
	switch category {
	case models.WentWell:
		return models.FeedbackItem{Description: "You engaged with the problem and kept the conversation moving", Evidence: []string{}}
	case models.WentOkay:
		return models.FeedbackItem{Description: "Some answers would benefit from more concrete detail", Evidence: []string{}}
	default:
		return models.FeedbackItem{Description: "Practice structuring answers around explicit trade-offs", Evidence: []string{}}
	}
}

// Stage 4: improvement plan. Priority areas are derived from the scores,
// never taken from the model.

func (s *EvaluationSynthesizer) buildImprovementPlan(ctx context.Context, sessionID uuid.UUID, scores map[string]models.CompetencyScore) (models.ImprovementPlan, error) {
	priorities := priorityAreas(scores)

	var b strings.Builder
	b.WriteString("A mock-interview candidate needs to improve in these areas, weakest first: ")
	b.WriteString(strings.Join(priorities, ", "))
	b.WriteString(".\nReturn ONLY a JSON object: ")
	b.WriteString(`{"concrete_steps": [{"step_number": 1, "description": "...", "resources": ["..."]}], "resources": ["..."]}. `)
	b.WriteString("3-6 sequential, actionable steps.")

	raw, _, err := s.model.Call(ctx, sessionID,
		[]models.Message{{Role: models.RoleSystem, Content: b.String()}},
		"improvement_plan")
	if err != nil {
		return models.ImprovementPlan{}, err
	}

	var parsed struct {
		ConcreteSteps []models.ActionStep `json:"concrete_steps"`
		Resources     []string            `json:"resources"`
	}
	decodeModelJSON(raw, &parsed)

	steps := parsed.ConcreteSteps
	if len(steps) == 0 {
		steps = []models.ActionStep{
			{Description: "Re-solve this interview's problem end to end on paper, then compare against a reference design", Resources: []string{}},
			{Description: "Schedule two more mock interviews focused on your weakest competency areas", Resources: []string{}},
		}
	}
	for i := range steps {
		steps[i].StepNumber = i + 1
		if steps[i].Resources == nil {
			steps[i].Resources = []string{}
		}
	}

	resources := parsed.Resources
	if resources == nil {
		resources = []string{}
	}

	return models.ImprovementPlan{
		PriorityAreas:    priorities,
		ConcreteSteps:    steps,
		GeneralResources: resources,
	}, nil
}

// priorityAreas returns the 3 lowest-scoring competency names ascending by
// score, ties broken by the canonical competency order.
func priorityAreas(scores map[string]models.CompetencyScore) []string {
	type entry struct {
		name  string
		score float64
	}
	entries := make([]entry, 0, len(scores))
	for _, name := range competencyNames {
		if cs, ok := scores[name]; ok {
			entries = append(entries, entry{name, cs.Score})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].score < entries[j].score })

	n := 3
	if len(entries) < n {
		n = len(entries)
	}
	areas := make([]string, n)
	for i := 0; i < n; i++ {
		areas[i] = entries[i].name
	}
	return areas
}

// Stage 5: communication-mode analysis. Deterministic, no model call.

func communicationSummary(modes []models.CommunicationMode, refs []models.MediaReference) models.CommunicationSummary {
	counts := make(map[models.CommunicationMode]int)
	for _, ref := range refs {
		counts[ref.Mode]++
	}

	usage := make(map[string]string, len(modes))
	for _, mode := range modes {
		usage[string(mode)] = modeUsageSentence(mode, counts[mode])
	}

	total := len(refs)
	var overall string
	switch {
	case total > 10:
		overall = "Strong multi-modal engagement throughout the session."
	case total > 0:
		overall = "Some use of the available communication channels; consider leaning on them more."
	default:
		overall = "The session was conducted in text only."
	}

	return models.CommunicationSummary{
		ModeUsage:      usage,
		TotalArtifacts: total,
		Overall:        overall,
	}
}

func modeUsageSentence(mode models.CommunicationMode, count int) string {
	label := strings.ReplaceAll(string(mode), "_", " ")
	switch {
	case count > 5:
		return fmt.Sprintf("Excellent use of %s (%d artifacts)", label, count)
	case count > 0:
		return fmt.Sprintf("Good use of %s (%d artifacts)", label, count)
	default:
		return fmt.Sprintf("The %s channel was enabled but unused", label)
	}
}

// Decode-with-fallback for model output.

// extractJSONObject returns the first balanced top-level {...} block in the
// text, tolerating prose and code fences around it.
func extractJSONObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

// decodeModelJSON coerces a semi-structured model response into out.
// Returns false when no decodable JSON object is present; callers supply
// their own defaults on that path.
func decodeModelJSON(raw string, out interface{}) bool {
	block, ok := extractJSONObject(raw)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(block), out) == nil
}
