package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"mockmate-backend/internal/models"
	"mockmate-backend/internal/repository"
	"mockmate-backend/internal/services"
)

// Pool consumes evaluation-generation jobs from Redis. Session end runs
// the synthesizer inline; the queue handles explicit regenerations and
// retries after provider failures.
type Pool struct {
	redis       *redis.Client
	synthesizer *services.EvaluationSynthesizer
	email       *services.EmailService
	jobRepo     *repository.JobRepo
	sessionRepo *repository.SessionRepo
	workerCount int
	stopChan    chan struct{}
}

func NewPool(
	redisClient *redis.Client,
	synthesizer *services.EvaluationSynthesizer,
	email *services.EmailService,
	jobRepo *repository.JobRepo,
	sessionRepo *repository.SessionRepo,
	workerCount int,
) *Pool {
	return &Pool{
		redis:       redisClient,
		synthesizer: synthesizer,
		email:       email,
		jobRepo:     jobRepo,
		sessionRepo: sessionRepo,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}

	log.Printf("Started %d worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, models.EvaluationQueue).Result()
		if err != nil {
			continue // Timeout or error, retry
		}

		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		// Try to acquire lock
		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue // Another worker has this job
		}

		log.Printf("Worker %d: processing job %s (session: %s)", id, job.ID, job.SessionID)

		p.jobRepo.UpdateStatus(ctx, job.ID, "processing")

		var processErr error
		switch job.Type {
		case models.JobTypeEvaluation:
			processErr = p.processEvaluation(ctx, &job)
		default:
			processErr = fmt.Errorf("unknown job type: %s", job.Type)
		}

		if processErr != nil {
			p.handleFailure(ctx, &job, processErr)
		} else {
			p.handleSuccess(ctx, &job)
		}

		// Release lock
		p.redis.Del(ctx, lockKey)
	}
}

func (p *Pool) processEvaluation(ctx context.Context, job *models.Job) error {
	session, err := p.sessionRepo.GetSession(ctx, job.SessionID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("session %s not found", job.SessionID)
	}
	if session.Status != models.SessionCompleted {
		return fmt.Errorf("session %s is not completed (status: %s)", session.ID, session.Status)
	}

	report, err := p.synthesizer.GenerateEvaluation(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("evaluation generation failed: %w", err)
	}

	p.publish(ctx, job.UserID, models.WSMessage{
		Type: "evaluation_ready",
		Payload: models.EvaluationReadyEvent{
			SessionID:    session.ID,
			ReportID:     report.ID,
			OverallScore: report.OverallScore,
		},
	})

	p.sendReportEmail(session, report)
	return nil
}

// sendReportEmail notifies the candidate when their resume carried an
// email address. Guest sessions without one are skipped.
func (p *Pool) sendReportEmail(session *models.Session, report *models.EvaluationReport) {
	if p.email == nil || session.Config.Resume == nil || session.Config.Resume.Email == "" {
		return
	}

	if err := p.email.SendReportReadyEmail(session.Config.Resume.Email, report); err != nil {
		log.Printf("failed to send report-ready email for session %s: %v", session.ID, err)
	}
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job) {
	p.jobRepo.UpdateStatus(ctx, job.ID, "completed")
	log.Printf("Job %s completed successfully", job.ID)
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()

	if job.RetryCount < job.MaxRetries {
		// Re-queue with backoff
		log.Printf("Job %s failed (attempt %d): %s - retrying", job.ID, job.RetryCount, errMsg)
		p.jobRepo.UpdateStatus(ctx, job.ID, "pending")
		p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

		jobBytes, _ := json.Marshal(job)
		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		time.AfterFunc(backoff, func() {
			p.redis.LPush(context.Background(), models.EvaluationQueue, string(jobBytes))
		})
	} else {
		log.Printf("Job %s failed permanently: %s", job.ID, errMsg)
		p.jobRepo.UpdateStatus(ctx, job.ID, "failed")
		p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

		p.publish(ctx, job.UserID, models.WSMessage{
			Type: "error",
			Payload: models.ErrorEvent{
				SessionID:    job.SessionID,
				ErrorCode:    "JOB_FAILED",
				ErrorMessage: errMsg,
			},
		})
	}
}

func (p *Pool) publish(ctx context.Context, userID string, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	p.redis.Publish(ctx, "user_updates:"+userID, string(data))
}
