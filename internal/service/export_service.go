package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kurdsoft/erp-attendance-api/internal/models"
	appErrors "github.com/kurdsoft/erp-attendance-api/pkg/errors"
	"github.com/kurdsoft/erp-attendance-api/pkg/export"
	"github.com/kurdsoft/erp-attendance-api/pkg/storage"
)

var attendanceExportHeaders = []string{
	"Employee", "Date", "Check In", "Check Out", "Status", "Late Minutes", "Worked Minutes", "Exception",
}

type exportListRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
}

// ExportRequest selects the records and format for a generated file.
type ExportRequest struct {
	Format     string  `json:"format" validate:"required,oneof=csv pdf"`
	DateFrom   *string `json:"date_from" validate:"omitempty,datetime=2006-01-02"`
	DateTo     *string `json:"date_to" validate:"omitempty,datetime=2006-01-02"`
	EmployeeID string  `json:"employee_id"`
}

// ExportResult describes a stored export and its signed download token.
type ExportResult struct {
	ExportID  string    `json:"export_id"`
	FileName  string    `json:"file_name"`
	Format    string    `json:"format"`
	RowCount  int       `json:"row_count"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportService renders attendance rosters to CSV or PDF, stores them on
// disk and hands out HMAC-signed download tokens.
type ExportService struct {
	repo      exportListRepository
	storage   *storage.LocalStorage
	signer    *storage.SignedURLSigner
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService instance.
func NewExportService(repo exportListRepository, store *storage.LocalStorage, signer *storage.SignedURLSigner, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		repo:      repo,
		storage:   store,
		signer:    signer,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Generate builds the export file and returns its signed token.
func (s *ExportService) Generate(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}

	filter := models.AttendanceFilter{
		EmployeeID: req.EmployeeID,
		Page:       1,
		PageSize:   10000,
		SortBy:     "date",
		SortOrder:  "asc",
	}
	if req.DateFrom != nil {
		from, err := parseDate(*req.DateFrom)
		if err != nil {
			return nil, err
		}
		filter.DateFrom = &from
	}
	if req.DateTo != nil {
		to, err := parseDate(*req.DateTo)
		if err != nil {
			return nil, err
		}
		filter.DateTo = &to
	}

	records, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load records for export")
	}

	dataset := buildAttendanceDataset(records)

	var content []byte
	switch req.Format {
	case "csv":
		content, err = s.csv.Render(dataset)
	case "pdf":
		content, err = s.pdf.Render(dataset, "Attendance Report")
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	exportID := uuid.NewString()
	fileName := fmt.Sprintf("attendance/%s/%s.%s", s.now().UTC().Format("2006-01-02"), exportID, req.Format)
	if _, err := s.storage.Save(fileName, content); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(exportID, fileName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export URL")
	}

	s.logger.Info("export generated",
		zap.String("export_id", exportID),
		zap.String("format", req.Format),
		zap.Int("rows", len(records)),
	)

	return &ExportResult{
		ExportID:  exportID,
		FileName:  fileName,
		Format:    req.Format,
		RowCount:  len(records),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// Resolve validates a download token and returns the stored file path.
func (s *ExportService) Resolve(token string) (string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download token")
	}
	return s.storage.Path(relPath), nil
}

// Cleanup deletes stored exports older than the provided TTL.
func (s *ExportService) Cleanup(ttl time.Duration) {
	deleted, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("export cleanup removed files", zap.Int("count", len(deleted)))
	}
}

// StartCleanupLoop launches a background cleanup ticker until ctx is done.
func (s *ExportService) StartCleanupLoop(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup(ttl)
			}
		}
	}()
}

func buildAttendanceDataset(records []models.AttendanceRecord) export.Dataset {
	rows := make([]map[string]string, 0, len(records))
	for i := range records {
		r := &records[i]
		exception := ""
		if r.HasException() {
			exception = string(*r.ExceptionStatus)
			if r.ExceptionReason != nil {
				exception += ": " + strings.TrimSpace(*r.ExceptionReason)
			}
		}
		rows = append(rows, map[string]string{
			"Employee":       r.EmployeeName,
			"Date":           r.Date.Format("2006-01-02"),
			"Check In":       r.CheckIn,
			"Check Out":      r.CheckOut,
			"Status":         r.DisplayStatus(),
			"Late Minutes":   strconv.Itoa(r.LateMinutes),
			"Worked Minutes": strconv.Itoa(r.WorkedMinutes()),
			"Exception":      exception,
		})
	}
	return export.Dataset{Headers: attendanceExportHeaders, Rows: rows}
}
