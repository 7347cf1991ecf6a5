package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kurdsoft/erp-attendance-api/internal/models"
	appErrors "github.com/kurdsoft/erp-attendance-api/pkg/errors"
	"github.com/kurdsoft/erp-attendance-api/pkg/jobs"
)

type closeDayRepository interface {
	CloseDay(ctx context.Context, date time.Time, leaveEmployeeIDs []string) (int, error)
}

type summaryInvalidator interface {
	Invalidate(ctx context.Context)
}

// CloseDayPayload carries one queued close-day batch.
type CloseDayPayload struct {
	Date             time.Time `json:"date"`
	LeaveEmployeeIDs []string  `json:"leave_employee_ids"`
	RequestedBy      string    `json:"requested_by"`
}

// CloseDayRequest is the HTTP payload triggering a batch.
type CloseDayRequest struct {
	Date             string   `json:"date" validate:"required,datetime=2006-01-02"`
	LeaveEmployeeIDs []string `json:"leave_employee_ids" validate:"omitempty,dive,required"`
}

// CloseDayService fills in absent/leave records for a finished day. The
// batch itself runs on the background worker queue so the HTTP request
// returns immediately.
type CloseDayService struct {
	repo      closeDayRepository
	audit     auditWriter
	summaries summaryInvalidator
	logger    *zap.Logger
	queue     *jobs.Queue
	now       func() time.Time
}

// NewCloseDayService constructs the service and its worker queue. Call
// Start before enqueueing and Stop on shutdown.
func NewCloseDayService(repo closeDayRepository, audit auditWriter, summaries summaryInvalidator, logger *zap.Logger, cfg jobs.QueueConfig) *CloseDayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CloseDayService{
		repo:      repo,
		audit:     audit,
		summaries: summaries,
		logger:    logger,
		now:       time.Now,
	}
	cfg.Logger = logger
	s.queue = jobs.NewQueue("close-day", s.process, cfg)
	return s
}

// Start launches the queue workers.
func (s *CloseDayService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *CloseDayService) Stop() {
	s.queue.Stop()
}

// Enqueue validates the request and schedules the batch. Returns the job ID
// so callers can correlate log lines.
func (s *CloseDayService) Enqueue(ctx context.Context, actor *models.JWTClaims, req CloseDayRequest) (string, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return "", err
	}
	if !date.Before(truncateDay(s.now().UTC()).AddDate(0, 0, 1)) {
		return "", appErrors.Clone(appErrors.ErrValidation, "cannot close a future day")
	}

	jobID := uuid.NewString()
	err = s.queue.Enqueue(jobs.Job{
		ID:   jobID,
		Type: "close-day",
		Payload: CloseDayPayload{
			Date:             date,
			LeaveEmployeeIDs: req.LeaveEmployeeIDs,
			RequestedBy:      actor.UserID,
		},
	})
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue close-day batch")
	}

	s.logger.Info("close-day batch enqueued",
		zap.String("job_id", jobID),
		zap.String("date", req.Date),
		zap.String("requested_by", actor.UserID),
	)
	return jobID, nil
}

func (s *CloseDayService) process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(CloseDayPayload)
	if !ok {
		s.logger.Error("close-day job carries unexpected payload", zap.String("job_id", job.ID))
		return nil
	}

	created, err := s.repo.CloseDay(ctx, payload.Date, payload.LeaveEmployeeIDs)
	if err != nil {
		return err
	}

	if s.summaries != nil && created > 0 {
		s.summaries.Invalidate(ctx)
	}

	detail, _ := json.Marshal(map[string]interface{}{
		"date":            payload.Date.Format("2006-01-02"),
		"records_created": created,
	})
	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:    &payload.RequestedBy,
			Action:    models.AuditActionDayClosed,
			Resource:  "attendance",
			NewValues: detail,
		}); err != nil {
			s.logger.Warn("failed to record close-day audit log", zap.Error(err))
		}
	}

	s.logger.Info("close-day batch complete",
		zap.String("job_id", job.ID),
		zap.String("date", payload.Date.Format("2006-01-02")),
		zap.Int("records_created", created),
	)
	return nil
}
