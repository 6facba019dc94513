package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mockmate-backend/internal/models"
)

type EvaluationRepo struct {
	pool *pgxpool.Pool
}

func NewEvaluationRepo(pool *pgxpool.Pool) *EvaluationRepo {
	return &EvaluationRepo{pool: pool}
}

// SaveEvaluation supersedes any prior report for the same session.
func (r *EvaluationRepo) SaveEvaluation(ctx context.Context, report *models.EvaluationReport) error {
	competenciesJSON, err := json.Marshal(report.Competencies)
	if err != nil {
		return fmt.Errorf("failed to marshal competencies: %w", err)
	}
	feedbackJSON, err := json.Marshal(report.Feedback)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}
	planJSON, err := json.Marshal(report.Plan)
	if err != nil {
		return fmt.Errorf("failed to marshal improvement plan: %w", err)
	}
	communicationJSON, err := json.Marshal(report.Communication)
	if err != nil {
		return fmt.Errorf("failed to marshal communication summary: %w", err)
	}

	query := `
		INSERT INTO evaluation_reports
			(id, session_id, overall_score, competencies_json, feedback_json, plan_json, communication_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO UPDATE
		SET id = EXCLUDED.id,
			overall_score = EXCLUDED.overall_score,
			competencies_json = EXCLUDED.competencies_json,
			feedback_json = EXCLUDED.feedback_json,
			plan_json = EXCLUDED.plan_json,
			communication_json = EXCLUDED.communication_json,
			created_at = EXCLUDED.created_at
	`
	_, err = r.pool.Exec(ctx, query,
		report.ID, report.SessionID, report.OverallScore,
		competenciesJSON, feedbackJSON, planJSON, communicationJSON,
		report.CreatedAt,
	)
	return err
}

// GetEvaluation returns nil, nil when no report exists for the session.
func (r *EvaluationRepo) GetEvaluation(ctx context.Context, sessionID uuid.UUID) (*models.EvaluationReport, error) {
	report := &models.EvaluationReport{}
	var competenciesJSON, feedbackJSON, planJSON, communicationJSON []byte

	query := `SELECT id, session_id, overall_score, competencies_json, feedback_json, plan_json, communication_json, created_at
		FROM evaluation_reports WHERE session_id = $1`

	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&report.ID, &report.SessionID, &report.OverallScore,
		&competenciesJSON, &feedbackJSON, &planJSON, &communicationJSON,
		&report.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(competenciesJSON, &report.Competencies); err != nil {
		return nil, fmt.Errorf("failed to unmarshal competencies: %w", err)
	}
	if err := json.Unmarshal(feedbackJSON, &report.Feedback); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feedback: %w", err)
	}
	if err := json.Unmarshal(planJSON, &report.Plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal improvement plan: %w", err)
	}
	if err := json.Unmarshal(communicationJSON, &report.Communication); err != nil {
		return nil, fmt.Errorf("failed to unmarshal communication summary: %w", err)
	}
	return report, nil
}
