package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"mockmate-backend/internal/models"
)

// ModelClient wraps single calls to the language-model provider with timed
// exponential-backoff retry and per-call usage accounting.
type ModelClient struct {
	client     *genai.Client
	provider   string
	modelName  string
	maxRetries int
	usage      UsageStore
	rateChan   chan struct{} // Token bucket

	// Injected for tests; default to the real model call and time.Sleep.
	generate func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
	sleep    func(d time.Duration)
}

func NewModelClient(
	apiKey string,
	provider string,
	modelName string,
	maxRetries int,
	concurrentReqs int,
	usage UsageStore,
) (*ModelClient, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.4)
	model.SetTopP(0.95)

	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	c := &ModelClient{
		client:     client,
		provider:   provider,
		modelName:  modelName,
		maxRetries: maxRetries,
		usage:      usage,
		rateChan:   rateChan,
		sleep:      time.Sleep,
	}
	c.generate = func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
		return model.GenerateContent(ctx, parts...)
	}
	return c, nil
}

func (c *ModelClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// acquireRate blocks until a rate slot is available
func (c *ModelClient) acquireRate(ctx context.Context) error {
	select {
	case <-c.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for model rate slot")
	}
}

func (c *ModelClient) releaseRate() {
	c.rateChan <- struct{}{}
}

// Call sends the ordered role-tagged messages as a single prompt.
func (c *ModelClient) Call(ctx context.Context, sessionID uuid.UUID, msgs []models.Message, operation string) (string, *models.UsageRecord, error) {
	return c.call(ctx, sessionID, operation, genai.Text(formatMessages(msgs)))
}

// CallWithImage sends the messages plus one inline image (whiteboard
// snapshots). mimeType must be an image/* type.
func (c *ModelClient) CallWithImage(ctx context.Context, sessionID uuid.UUID, msgs []models.Message, image []byte, mimeType, operation string) (string, *models.UsageRecord, error) {
	format := strings.TrimPrefix(mimeType, "image/")
	return c.call(ctx, sessionID, operation,
		genai.Text(formatMessages(msgs)),
		genai.ImageData(format, image),
	)
}

func (c *ModelClient) call(ctx context.Context, sessionID uuid.UUID, operation string, parts ...genai.Part) (string, *models.UsageRecord, error) {
	if err := c.acquireRate(ctx); err != nil {
		return "", nil, err
	}
	defer c.releaseRate()

	var (
		resp    *genai.GenerateContentResponse
		content string
		lastErr error
	)

	delay := time.Second
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		resp, lastErr = c.generate(ctx, parts...)
		if lastErr == nil {
			content = extractText(resp)
			if content != "" {
				break
			}
			lastErr = fmt.Errorf("model returned an empty response")
		}

		log.Printf("model call %s attempt %d/%d failed (session %s): %v", operation, attempt, c.maxRetries, sessionID, lastErr)
		if attempt < c.maxRetries {
			c.sleep(delay)
			delay *= 2
		}
	}

	if content == "" {
		return "", nil, &ProviderError{
			Provider:  c.provider,
			Model:     c.modelName,
			Operation: operation,
			Attempts:  c.maxRetries,
			Err:       lastErr,
		}
	}

	record := c.buildUsageRecord(sessionID, operation, resp)
	if c.usage != nil {
		if err := c.usage.SaveUsageRecord(ctx, record); err != nil {
			return "", nil, &PersistenceError{Op: "save_usage_record", Err: err}
		}
	}

	return content, record, nil
}

func (c *ModelClient) buildUsageRecord(sessionID uuid.UUID, operation string, resp *genai.GenerateContentResponse) *models.UsageRecord {
	var inputTokens, outputTokens int
	if resp != nil && resp.UsageMetadata != nil {
		inputTokens = int(resp.UsageMetadata.PromptTokenCount)
		outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return newUsageRecord(sessionID, c.provider, c.modelName, operation, inputTokens, outputTokens)
}

func newUsageRecord(sessionID uuid.UUID, provider, model, operation string, inputTokens, outputTokens int) *models.UsageRecord {
	rate := lookupRates(provider, model)
	cost := float64(inputTokens)/1e6*rate.input + float64(outputTokens)/1e6*rate.output
	return &models.UsageRecord{
		ID:           uuid.New(),
		SessionID:    sessionID,
		Provider:     provider,
		Model:        model,
		Operation:    operation,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		CostUSD:      math.Round(cost*1e6) / 1e6,
		CreatedAt:    time.Now().UTC(),
	}
}

// Pricing in USD per million tokens. Providers and their models are listed
// in order so unknown pairs can fall back deterministically to the default
// provider's first model.
type modelRate struct {
	model  string
	input  float64
	output float64
}

type providerRates struct {
	provider string
	models   []modelRate
}

var pricingTable = []providerRates{
	{"gemini", []modelRate{
		{"gemini-2.5-flash", 0.30, 2.50},
		{"gemini-2.5-pro", 1.25, 10.00},
		{"gemini-2.0-flash", 0.10, 0.40},
	}},
	{"openai", []modelRate{
		{"gpt-4o", 2.50, 10.00},
		{"gpt-4o-mini", 0.15, 0.60},
	}},
	{"anthropic", []modelRate{
		{"claude-sonnet-4", 3.00, 15.00},
		{"claude-haiku-3.5", 0.80, 4.00},
	}},
}

const defaultPricingProvider = "gemini"

func lookupRates(provider, model string) modelRate {
	for _, p := range pricingTable {
		if p.provider != provider {
			continue
		}
		for _, m := range p.models {
			if m.model == model {
				return m
			}
		}
	}
	for _, p := range pricingTable {
		if p.provider == defaultPricingProvider {
			return p.models[0]
		}
	}
	return modelRate{}
}

// formatMessages flattens the transcript into the "<Role>: <content>"
// blank-line separated form the prompts expect.
func formatMessages(msgs []models.Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(roleLabel(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

func roleLabel(role models.MessageRole) string {
	switch role {
	case models.RoleInterviewer:
		return "Interviewer"
	case models.RoleCandidate:
		return "Candidate"
	case models.RoleSystem:
		return "System"
	default:
		return string(role)
	}
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
