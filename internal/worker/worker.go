package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pulseclass/backend/internal/sessionlog"
	"github.com/pulseclass/backend/internal/sessions"
	"github.com/pulseclass/backend/pkg/queue"
)

// SummaryProcessor processes end-of-session summary jobs: persist the
// aggregated stats row and close any attendance entries still open.
type SummaryProcessor struct {
	sessRepo *sessions.Repository
	logRepo  *sessionlog.Repository
	queue    *queue.Queue
	logger   *zap.Logger
}

// NewSummaryProcessor creates a session summary processor.
func NewSummaryProcessor(sessRepo *sessions.Repository, logRepo *sessionlog.Repository, q *queue.Queue, logger *zap.Logger) *SummaryProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryProcessor{sessRepo: sessRepo, logRepo: logRepo, queue: q, logger: logger}
}

// Process executes one session summary job.
func (p *SummaryProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSessionSummary {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.SessionSummaryPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := p.logRepo.CloseOpen(ctx, payload.SessionID); err != nil {
		p.logger.Warn("close open attendance failed", zap.Error(err), zap.String("session_id", payload.SessionID.String()))
	}

	if err := p.sessRepo.SaveSummary(ctx, payload); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}

	p.logger.Info("session summary saved",
		zap.String("session_id", payload.SessionID.String()),
		zap.Int("peak_viewers", payload.PeakViewers),
		zap.Int("messages", payload.MessageCount))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *SummaryProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("summary worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
