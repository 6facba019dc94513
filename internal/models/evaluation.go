package models

import (
	"time"

	"github.com/google/uuid"
)

type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

type CompetencyScore struct {
	Score      float64         `json:"score"`
	Confidence ConfidenceLevel `json:"confidence_level"`
	Evidence   []string        `json:"evidence"`
}

type FeedbackCategory string

const (
	WentWell         FeedbackCategory = "went_well"
	WentOkay         FeedbackCategory = "went_okay"
	NeedsImprovement FeedbackCategory = "needs_improvement"
)

type FeedbackItem struct {
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
}

type ActionStep struct {
	StepNumber  int      `json:"step_number"`
	Description string   `json:"description"`
	Resources   []string `json:"resources"`
}

// ImprovementPlan's priority areas are derived from the competency scores,
// never taken from the model output.
type ImprovementPlan struct {
	PriorityAreas    []string     `json:"priority_areas"`
	ConcreteSteps    []ActionStep `json:"concrete_steps"`
	GeneralResources []string     `json:"resources"`
}

// CommunicationSummary is the deterministic per-mode usage analysis
// computed from persisted media-reference counts.
type CommunicationSummary struct {
	ModeUsage      map[string]string `json:"mode_usage"`
	TotalArtifacts int               `json:"total_artifacts"`
	Overall        string            `json:"overall"`
}

// EvaluationReport is the aggregate produced once per ended session.
// Saving a report supersedes any prior report for the same session.
type EvaluationReport struct {
	ID            uuid.UUID                           `json:"id"`
	SessionID     uuid.UUID                           `json:"session_id"`
	OverallScore  float64                             `json:"overall_score"`
	Competencies  map[string]CompetencyScore          `json:"competencies"`
	Feedback      map[FeedbackCategory][]FeedbackItem `json:"feedback"`
	Plan          ImprovementPlan                     `json:"improvement_plan"`
	Communication CommunicationSummary                `json:"communication"`
	CreatedAt     time.Time                           `json:"created_at"`
}

// WhiteboardAnalysis is the structured result of a whiteboard image review.
type WhiteboardAnalysis struct {
	Components      []string `json:"components"`
	Relationships   []string `json:"relationships"`
	MissingElements []string `json:"missing_elements"`
	Patterns        []string `json:"patterns"`
}

// PerformanceIndicators carries qualitative signals used to bias the
// interviewer's subsequent questioning.
type PerformanceIndicators struct {
	ResponseQuality string `json:"response_quality"`
	TechnicalDepth  string `json:"technical_depth"`
	Accuracy        string `json:"accuracy"`
}
