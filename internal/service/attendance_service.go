package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kurdsoft/erp-attendance-api/internal/models"
	"github.com/kurdsoft/erp-attendance-api/internal/repository"
	appErrors "github.com/kurdsoft/erp-attendance-api/pkg/errors"
)

type attendanceRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
	ListRange(ctx context.Context, employeeID string, from, to time.Time) ([]models.AttendanceRecord, error)
	GetByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	Create(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	Replace(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	SetCheckOut(ctx context.Context, id, checkOut string, location models.GeoPoint) (*models.AttendanceRecord, error)
	SetLateness(ctx context.Context, id, checkIn string, lateMinutes int, classification models.Classification) (*models.AttendanceRecord, error)
	Delete(ctx context.Context, id string) error
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

var clockTimePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// RegisterAttendanceValidations installs custom validations shared by the
// attendance services.
func RegisterAttendanceValidations(validate *validator.Validate) {
	validate.RegisterValidation("clock_time", func(fl validator.FieldLevel) bool {
		return clockTimePattern.MatchString(fl.Field().String())
	})
	validate.RegisterValidation("classification", func(fl validator.FieldLevel) bool {
		return models.Classification(strings.ToLower(fl.Field().String())).Valid()
	})
}

// AttendanceService coordinates attendance capture workflows.
type AttendanceService struct {
	repo      attendanceRepository
	audit     auditWriter
	summaries summaryInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, audit auditWriter, summaries summaryInvalidator, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AttendanceService{repo: repo, audit: audit, summaries: summaries, validator: validate, logger: logger, now: time.Now}
	RegisterAttendanceValidations(svc.validator)
	return svc
}

// LocationPayload carries an optional capture location. All three fields are
// required together.
type LocationPayload struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   *string  `json:"address"`
}

func (p *LocationPayload) toGeoPoint() (models.GeoPoint, error) {
	if p == nil {
		return models.GeoPoint{}, nil
	}
	point := models.GeoPoint{Latitude: p.Latitude, Longitude: p.Longitude, Address: p.Address}
	if !point.Empty() && !point.Complete() {
		return models.GeoPoint{}, appErrors.Clone(appErrors.ErrValidation, "latitude, longitude and address must be provided together")
	}
	return point, nil
}

// ListRequest is used for listing attendance records.
type ListRequest struct {
	EmployeeID     string  `json:"employee_id"`
	Classification *string `json:"classification" validate:"omitempty,classification"`
	DateFrom       *string `json:"date_from"`
	DateTo         *string `json:"date_to"`
	HasException   *bool   `json:"has_exception"`
	Page           int     `json:"page"`
	PageSize       int     `json:"page_size"`
	SortBy         string  `json:"sort_by"`
	SortOrder      string  `json:"sort_order"`
}

// CheckInRequest records an employee's arrival for a day.
type CheckInRequest struct {
	EmployeeID   string           `json:"employee_id" validate:"required"`
	EmployeeName string           `json:"employee_name" validate:"required"`
	Date         string           `json:"date" validate:"required"`
	CheckIn      string           `json:"check_in" validate:"required,clock_time"`
	Device       string           `json:"device"`
	Location     *LocationPayload `json:"location"`
}

// CheckOutRequest stamps an employee's departure.
type CheckOutRequest struct {
	CheckOut string           `json:"check_out" validate:"required,clock_time"`
	Location *LocationPayload `json:"location"`
}

// ReplaceRequest fully overwrites a record. Admin-only; last write wins.
type ReplaceRequest struct {
	EmployeeID       string           `json:"employee_id" validate:"required"`
	EmployeeName     string           `json:"employee_name" validate:"required"`
	Date             string           `json:"date" validate:"required"`
	CheckIn          string           `json:"check_in" validate:"omitempty,clock_time"`
	CheckOut         string           `json:"check_out" validate:"omitempty,clock_time"`
	OnLeave          bool             `json:"on_leave"`
	Device           string           `json:"device"`
	Location         *LocationPayload `json:"location"`
	CheckOutLocation *LocationPayload `json:"checkout_location"`
}

// LatenessCorrectionRequest amends a record's check-in time; lateness and
// classification are re-derived, never set directly.
type LatenessCorrectionRequest struct {
	CheckIn string `json:"check_in" validate:"required,clock_time"`
}

// List returns paginated attendance records.
func (s *AttendanceService) List(ctx context.Context, req ListRequest) ([]models.AttendanceRecord, *models.Pagination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid filter")
	}
	var classification *models.Classification
	if req.Classification != nil {
		c := models.Classification(strings.ToLower(*req.Classification))
		classification = &c
	}
	dateFrom, err := parseOptionalDate(req.DateFrom)
	if err != nil {
		return nil, nil, err
	}
	dateTo, err := parseOptionalDate(req.DateTo)
	if err != nil {
		return nil, nil, err
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 {
		size = 50
	}
	filter := models.AttendanceFilter{
		EmployeeID:     req.EmployeeID,
		Classification: classification,
		DateFrom:       dateFrom,
		DateTo:         dateTo,
		HasException:   req.HasException,
		Page:           page,
		PageSize:       size,
		SortBy:         req.SortBy,
		SortOrder:      req.SortOrder,
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return rows, pagination, nil
}

// CheckIn creates the day's record for an employee, classifying it present
// or late against the shift start.
func (s *AttendanceService) CheckIn(ctx context.Context, req CheckInRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-in payload")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	location, err := req.Location.toGeoPoint()
	if err != nil {
		return nil, err
	}

	lateMinutes := models.LateMinutesFor(req.CheckIn)
	record := &models.AttendanceRecord{
		EmployeeID:       req.EmployeeID,
		EmployeeName:     req.EmployeeName,
		Date:             date,
		CheckIn:          req.CheckIn,
		Classification:   models.Classify(req.CheckIn, lateMinutes, false),
		LateMinutes:      lateMinutes,
		Device:           req.Device,
		CheckInLatitude:  location.Latitude,
		CheckInLongitude: location.Longitude,
		CheckInAddress:   location.Address,
	}
	stored, err := s.repo.Create(ctx, record)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateRecord) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "attendance already recorded for this employee and date")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record check-in")
	}
	s.invalidateSummaries(ctx)
	return stored, nil
}

// CheckOut stamps the departure time on an existing record. Lateness was
// fixed at check-in and is not recomputed.
func (s *AttendanceService) CheckOut(ctx context.Context, id string, req CheckOutRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-out payload")
	}
	location, err := req.Location.toGeoPoint()
	if err != nil {
		return nil, err
	}
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	if record.CheckIn == "" {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot check out without a check-in")
	}
	stored, err := s.repo.SetCheckOut(ctx, id, req.CheckOut, location)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record check-out")
	}
	s.invalidateSummaries(ctx)
	return stored, nil
}

// Replace fully overwrites a record from an admin payload. The
// classification and lateness are re-derived from the new capture fields.
func (s *AttendanceService) Replace(ctx context.Context, id string, req ReplaceRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	location, err := req.Location.toGeoPoint()
	if err != nil {
		return nil, err
	}
	checkOutLocation, err := req.CheckOutLocation.toGeoPoint()
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}

	lateMinutes := models.LateMinutesFor(req.CheckIn)
	record := &models.AttendanceRecord{
		ID:                id,
		EmployeeID:        req.EmployeeID,
		EmployeeName:      req.EmployeeName,
		Date:              date,
		CheckIn:           req.CheckIn,
		CheckOut:          req.CheckOut,
		Classification:    models.Classify(req.CheckIn, lateMinutes, req.OnLeave),
		LateMinutes:       lateMinutes,
		Device:            req.Device,
		CheckInLatitude:   location.Latitude,
		CheckInLongitude:  location.Longitude,
		CheckInAddress:    location.Address,
		CheckOutLatitude:  checkOutLocation.Latitude,
		CheckOutLongitude: checkOutLocation.Longitude,
		CheckOutAddress:   checkOutLocation.Address,
		// The exception workflow survives a replace untouched.
		ExceptionReason:     existing.ExceptionReason,
		ExceptionStatus:     existing.ExceptionStatus,
		ExceptionApprovedBy: existing.ExceptionApprovedBy,
		CreatedAt:           existing.CreatedAt,
	}
	stored, err := s.repo.Replace(ctx, record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace record")
	}
	s.invalidateSummaries(ctx)
	return stored, nil
}

// CorrectLateness amends the check-in time on a record and re-derives
// lateness and classification from it.
func (s *AttendanceService) CorrectLateness(ctx context.Context, id string, req LatenessCorrectionRequest, actor *models.JWTClaims) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lateness payload")
	}
	lateMinutes := models.LateMinutesFor(req.CheckIn)
	classification := models.Classify(req.CheckIn, lateMinutes, false)
	stored, err := s.repo.SetLateness(ctx, id, req.CheckIn, lateMinutes, classification)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to correct lateness")
	}
	s.writeAudit(ctx, actor, models.AuditActionLatenessCorrected, stored.ID, map[string]interface{}{"check_in": req.CheckIn, "late_minutes": lateMinutes})
	s.invalidateSummaries(ctx)
	return stored, nil
}

// Delete removes a record by ID.
func (s *AttendanceService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if strings.TrimSpace(id) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "record id required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete record")
	}
	s.writeAudit(ctx, actor, models.AuditActionAttendanceDeleted, id, nil)
	s.invalidateSummaries(ctx)
	return nil
}

func (s *AttendanceService) invalidateSummaries(ctx context.Context) {
	if s.summaries != nil {
		s.summaries.Invalidate(ctx)
	}
}

func (s *AttendanceService) writeAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, values map[string]interface{}) {
	if s.audit == nil || actor == nil {
		return
	}
	var payload []byte
	if values != nil {
		payload, _ = json.Marshal(values)
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "attendance",
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record attendance audit log", zap.Error(err))
	}
}

func parseDate(raw string) (time.Time, error) {
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	return date, nil
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	date, err := parseDate(*raw)
	if err != nil {
		return nil, err
	}
	return &date, nil
}
