package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
)

type CommunicationMode string

const (
	ModeText        CommunicationMode = "text"
	ModeAudio       CommunicationMode = "audio"
	ModeVideo       CommunicationMode = "video"
	ModeWhiteboard  CommunicationMode = "whiteboard"
	ModeScreenShare CommunicationMode = "screen_share"
)

// ResumeProfile is the structured form of an uploaded résumé, used to
// tailor the opening problem and to derive the session owner.
type ResumeProfile struct {
	CandidateID     string   `json:"candidate_id,omitempty"`
	FullName        string   `json:"full_name,omitempty"`
	Email           string   `json:"email,omitempty"`
	ExperienceLevel string   `json:"experience_level,omitempty"`
	YearsExperience int      `json:"years_experience"`
	DomainTags      []string `json:"domain_tags,omitempty"`
	MostRecentRole  string   `json:"most_recent_role,omitempty"`
}

// SessionConfig is immutable after session creation.
type SessionConfig struct {
	Modes           []CommunicationMode `json:"modes"`
	Provider        string              `json:"provider"`
	Model           string              `json:"model"`
	Resume          *ResumeProfile      `json:"resume,omitempty"`
	DurationMinutes int                 `json:"duration_minutes,omitempty"`
}

type Session struct {
	ID           uuid.UUID       `json:"id"`
	UserID       string          `json:"user_id"`
	Status       SessionStatus   `json:"status"`
	Config       SessionConfig   `json:"config"`
	MetadataJSON json.RawMessage `json:"metadata"`
	CreatedAt    time.Time       `json:"created_at"`
	EndedAt      *time.Time      `json:"ended_at,omitempty"`
}

type MessageRole string

const (
	RoleInterviewer MessageRole = "interviewer"
	RoleCandidate   MessageRole = "candidate"
	RoleSystem      MessageRole = "system"
)

// Message is one conversational turn. Append-only, ordered by CreatedAt.
type Message struct {
	ID           uuid.UUID       `json:"id"`
	SessionID    uuid.UUID       `json:"session_id"`
	Role         MessageRole     `json:"role"`
	Content      string          `json:"content"`
	MetadataJSON json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// MediaReference points at one stored media artifact (whiteboard snapshot,
// audio clip, screen recording) captured during a session.
type MediaReference struct {
	ID        uuid.UUID         `json:"id"`
	SessionID uuid.UUID         `json:"session_id"`
	Mode      CommunicationMode `json:"mode"`
	Path      string            `json:"path"`
	MimeType  string            `json:"mime_type"`
	SizeBytes int64             `json:"size_bytes"`
	CreatedAt time.Time         `json:"created_at"`
}
