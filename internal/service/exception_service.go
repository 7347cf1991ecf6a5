package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kurdsoft/erp-attendance-api/internal/models"
	"github.com/kurdsoft/erp-attendance-api/internal/repository"
	appErrors "github.com/kurdsoft/erp-attendance-api/pkg/errors"
)

type exceptionRepository interface {
	GetByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	FileException(ctx context.Context, id, reason string) (*models.AttendanceRecord, error)
	DecideException(ctx context.Context, id string, status models.ExceptionStatus, approvedBy string) (*models.AttendanceRecord, error)
}

// ExceptionService runs the appeal workflow attached to attendance records:
// none -> pending -> approved|rejected, with terminal states final.
type ExceptionService struct {
	repo      exceptionRepository
	audit     auditWriter
	summaries summaryInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExceptionService constructs the exception workflow service.
func NewExceptionService(repo exceptionRepository, audit auditWriter, summaries summaryInvalidator, validate *validator.Validate, logger *zap.Logger) *ExceptionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExceptionService{repo: repo, audit: audit, summaries: summaries, validator: validate, logger: logger}
}

// FileExceptionRequest opens an appeal on a record.
type FileExceptionRequest struct {
	RecordID string `json:"record_id" validate:"required"`
	Reason   string `json:"reason" validate:"required"`
}

// DecideExceptionRequest resolves a pending appeal.
type DecideExceptionRequest struct {
	Approve bool `json:"approve"`
}

// File opens a pending appeal. Employees may only appeal their own records;
// approval-capable roles may file on anyone's behalf.
func (s *ExceptionService) File(ctx context.Context, req FileExceptionRequest, actor *models.JWTClaims) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exception payload")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exception reason must not be empty")
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	record, err := s.repo.GetByID(ctx, req.RecordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	if !actor.Role.CanDecideExceptions() && record.EmployeeID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "employees may only file exceptions for their own records")
	}

	stored, err := s.repo.FileException(ctx, req.RecordID, strings.TrimSpace(req.Reason))
	if err != nil {
		if errors.Is(err, repository.ErrExceptionExists) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an exception is already filed on this record")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to file exception")
	}

	s.writeAudit(ctx, actor, models.AuditActionExceptionFiled, stored.ID, map[string]interface{}{"reason": req.Reason})
	s.invalidateSummaries(ctx)
	return stored, nil
}

// Decide resolves a pending appeal to approved or rejected and stamps the
// deciding actor's display name. Re-deciding an already-decided exception is
// rejected with a conflict, never silently overwritten.
func (s *ExceptionService) Decide(ctx context.Context, recordID string, req DecideExceptionRequest, actor *models.JWTClaims) (*models.AttendanceRecord, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.CanDecideExceptions() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role is not allowed to decide exceptions")
	}
	if strings.TrimSpace(recordID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "record id required")
	}

	status := models.ExceptionRejected
	if req.Approve {
		status = models.ExceptionApproved
	}
	stored, err := s.repo.DecideException(ctx, recordID, status, actor.FullName)
	if err != nil {
		if errors.Is(err, repository.ErrNoPendingException) {
			return nil, s.classifyDecisionConflict(ctx, recordID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decide exception")
	}

	s.writeAudit(ctx, actor, models.AuditActionExceptionDecided, stored.ID, map[string]interface{}{"status": string(status)})
	s.invalidateSummaries(ctx)
	return stored, nil
}

func (s *ExceptionService) invalidateSummaries(ctx context.Context) {
	if s.summaries != nil {
		s.summaries.Invalidate(ctx)
	}
}

// classifyDecisionConflict distinguishes "record missing", "no appeal" and
// "already decided" after a conditional update matched nothing.
func (s *ExceptionService) classifyDecisionConflict(ctx context.Context, recordID string) error {
	record, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	if !record.HasException() {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "no exception filed on this record")
	}
	return appErrors.ErrExceptionDecided
}

func (s *ExceptionService) writeAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, values map[string]interface{}) {
	if s.audit == nil || actor == nil {
		return
	}
	payload, _ := json.Marshal(values)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "attendance_exception",
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record exception audit log", zap.Error(err))
	}
}
