package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"

	"mockmate-backend/internal/models"
)

type fakeUsageStore struct {
	records []*models.UsageRecord
	err     error
}

func (f *fakeUsageStore) SaveUsageRecord(ctx context.Context, u *models.UsageRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, u)
	return nil
}

func textResponse(text string, inputTokens, outputTokens int32) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text(text)}}},
		},
		UsageMetadata: &genai.UsageMetadata{
			PromptTokenCount:     inputTokens,
			CandidatesTokenCount: outputTokens,
		},
	}
}

func newTestClient(maxRetries int, usage UsageStore) *ModelClient {
	rateChan := make(chan struct{}, 1)
	rateChan <- struct{}{}
	return &ModelClient{
		provider:   "gemini",
		modelName:  "gemini-2.5-flash",
		maxRetries: maxRetries,
		usage:      usage,
		rateChan:   rateChan,
		sleep:      func(time.Duration) {},
	}
}

func TestModelClient_Call_Success(t *testing.T) {
	usage := &fakeUsageStore{}
	c := newTestClient(3, usage)

	calls := 0
	c.generate = func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
		calls++
		return textResponse("Tell me about your approach.", 1000, 500), nil
	}

	sessionID := uuid.New()
	content, record, err := c.Call(context.Background(), sessionID, []models.Message{
		{Role: models.RoleCandidate, Content: "I would use a hash map."},
	}, "process_response")

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
	if content != "Tell me about your approach." {
		t.Errorf("Unexpected content: %q", content)
	}
	if record.SessionID != sessionID {
		t.Error("Usage record not tied to session")
	}
	if record.InputTokens != 1000 || record.OutputTokens != 500 || record.TotalTokens != 1500 {
		t.Errorf("Unexpected token counts: %d/%d/%d", record.InputTokens, record.OutputTokens, record.TotalTokens)
	}
	// 1000/1e6*0.30 + 500/1e6*2.50 = 0.0003 + 0.00125
	if record.CostUSD != 0.00155 {
		t.Errorf("Expected cost 0.00155, got %v", record.CostUSD)
	}
	if len(usage.records) != 1 {
		t.Errorf("Expected 1 saved usage record, got %d", len(usage.records))
	}
}

func TestModelClient_Call_RetriesThenSucceeds(t *testing.T) {
	c := newTestClient(3, &fakeUsageStore{})

	var delays []time.Duration
	c.sleep = func(d time.Duration) { delays = append(delays, d) }

	calls := 0
	c.generate = func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient failure")
		}
		return textResponse("recovered", 10, 10), nil
	}

	content, _, err := c.Call(context.Background(), uuid.New(), nil, "generate_problem")
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if content != "recovered" {
		t.Errorf("Unexpected content: %q", content)
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}

	// Backoff doubles starting at 1s.
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("Expected %d sleeps, got %d", len(want), len(delays))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("Sleep %d: expected %v, got %v", i, want[i], delays[i])
		}
	}
}

func TestModelClient_Call_ExhaustsRetries(t *testing.T) {
	usage := &fakeUsageStore{}
	c := newTestClient(3, usage)

	var delays []time.Duration
	c.sleep = func(d time.Duration) { delays = append(delays, d) }

	calls := 0
	c.generate = func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
		calls++
		return nil, errors.New("provider down")
	}

	_, record, err := c.Call(context.Background(), uuid.New(), nil, "evaluate_competencies")
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if record != nil {
		t.Error("Expected no usage record on failure")
	}
	if calls != 3 {
		t.Errorf("Expected exactly maxRetries (3) attempts, got %d", calls)
	}
	if len(delays) != 2 {
		t.Errorf("Expected 2 sleeps between 3 attempts, got %d", len(delays))
	}

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("Expected ProviderError, got %T", err)
	}
	if provErr.Attempts != 3 {
		t.Errorf("Expected Attempts=3, got %d", provErr.Attempts)
	}
	if provErr.Operation != "evaluate_competencies" {
		t.Errorf("Unexpected operation: %q", provErr.Operation)
	}
	if len(usage.records) != 0 {
		t.Error("No usage should be recorded for a failed call")
	}
}

func TestModelClient_Call_EmptyResponseIsFailure(t *testing.T) {
	c := newTestClient(2, &fakeUsageStore{})

	calls := 0
	c.generate = func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
		calls++
		return textResponse("", 5, 0), nil
	}

	_, _, err := c.Call(context.Background(), uuid.New(), nil, "process_response")
	if err == nil {
		t.Fatal("Expected error for empty responses")
	}
	if calls != 2 {
		t.Errorf("Empty responses should be retried: expected 2 attempts, got %d", calls)
	}
}

func TestModelClient_Call_NilUsageMetadata(t *testing.T) {
	usage := &fakeUsageStore{}
	c := newTestClient(1, usage)

	c.generate = func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
		return &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{Content: &genai.Content{Parts: []genai.Part{genai.Text("ok")}}},
			},
		}, nil
	}

	_, record, err := c.Call(context.Background(), uuid.New(), nil, "process_response")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if record.InputTokens != 0 || record.OutputTokens != 0 || record.CostUSD != 0 {
		t.Errorf("Expected zeroed usage for missing metadata, got %+v", record)
	}
}

func TestModelClient_Call_UsageSaveFailureAborts(t *testing.T) {
	c := newTestClient(1, &fakeUsageStore{err: fmt.Errorf("connection refused")})

	c.generate = func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
		return textResponse("fine", 10, 10), nil
	}

	_, _, err := c.Call(context.Background(), uuid.New(), nil, "process_response")

	var persistErr *PersistenceError
	if !errors.As(err, &persistErr) {
		t.Fatalf("Expected PersistenceError, got %v", err)
	}
}

func TestLookupRates(t *testing.T) {
	tests := []struct {
		name      string
		provider  string
		model     string
		wantInput float64
	}{
		{"known pair", "gemini", "gemini-2.5-pro", 1.25},
		{"openai", "openai", "gpt-4o-mini", 0.15},
		{"unknown model falls back", "gemini", "gemini-9000", 0.30},
		{"unknown provider falls back", "example-corp", "whatever", 0.30},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rate := lookupRates(tc.provider, tc.model)
			if rate.input != tc.wantInput {
				t.Errorf("Expected input rate %v, got %v", tc.wantInput, rate.input)
			}
		})
	}
}

func TestFormatMessages(t *testing.T) {
	got := formatMessages([]models.Message{
		{Role: models.RoleInterviewer, Content: "Design a URL shortener."},
		{Role: models.RoleCandidate, Content: "I'd start with the API."},
		{Role: models.RoleSystem, Content: "Keep answers concise."},
	})

	want := "Interviewer: Design a URL shortener.\n\nCandidate: I'd start with the API.\n\nSystem: Keep answers concise."
	if got != want {
		t.Errorf("Expected:\n%q\ngot:\n%q", want, got)
	}
}
