package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/kurdsoft/erp-attendance-api/internal/models"
	appErrors "github.com/kurdsoft/erp-attendance-api/pkg/errors"
)

type attendanceSnapshotRepository interface {
	ListRange(ctx context.Context, employeeID string, from, to time.Time) ([]models.AttendanceRecord, error)
}

// SummaryServiceConfig tunes summary caching.
type SummaryServiceConfig struct {
	CacheTTL time.Duration
}

// SummaryService serves the read-side aggregations over attendance
// snapshots, with cache-aside Redis caching.
type SummaryService struct {
	repo    attendanceSnapshotRepository
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
	cfg     SummaryServiceConfig
}

// NewSummaryService constructs a SummaryService.
func NewSummaryService(repo attendanceSnapshotRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg SummaryServiceConfig) *SummaryService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{repo: repo, cache: cache, metrics: metrics, logger: logger, now: time.Now, cfg: cfg}
}

// Daily returns the summary for one date and indicates cache utilisation.
func (s *SummaryService) Daily(ctx context.Context, date time.Time) (*models.DailySummary, bool, error) {
	date = truncateDay(date)
	cacheKey := fmt.Sprintf("summary:daily:%s", date.Format("2006-01-02"))
	var cached models.DailySummary
	if hit, err := s.cacheGet(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	start := time.Now()
	records, err := s.repo.ListRange(ctx, "", date, date)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load daily snapshot")
	}
	s.metrics.ObserveDBQuery("summary_daily", time.Since(start))
	summary := &models.DailySummary{
		Counts:         CountByStatus(records, date),
		Lateness:       SumLateness(records),
		AttendanceRate: AttendanceRate(records),
	}
	s.cacheSet(ctx, cacheKey, summary)
	return summary, false, nil
}

// WeeklyTrend returns per-day buckets for the trailing seven calendar days
// including today, ordered oldest to newest.
func (s *SummaryService) WeeklyTrend(ctx context.Context) ([]models.TrendBucket, bool, error) {
	today := truncateDay(s.now().UTC())
	from := today.AddDate(0, 0, -6)
	cacheKey := fmt.Sprintf("summary:trend:%s", today.Format("2006-01-02"))
	var cached []models.TrendBucket
	if hit, err := s.cacheGet(ctx, cacheKey, &cached); err == nil && hit {
		return cached, true, nil
	}

	start := time.Now()
	records, err := s.repo.ListRange(ctx, "", from, today)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trend snapshot")
	}
	s.metrics.ObserveDBQuery("summary_trend", time.Since(start))
	trend := WeeklyTrend(records, today)
	s.cacheSet(ctx, cacheKey, trend)
	return trend, false, nil
}

// Employee returns the rollup for one employee over an inclusive date range.
func (s *SummaryService) Employee(ctx context.Context, employeeID string, from, to time.Time) (*models.EmployeeRollup, bool, error) {
	if employeeID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "employee id required")
	}
	from = truncateDay(from)
	to = truncateDay(to)
	if to.Before(from) {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "date range end precedes start")
	}
	cacheKey := fmt.Sprintf("summary:employee:%s:%s:%s", employeeID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	var cached models.EmployeeRollup
	if hit, err := s.cacheGet(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	start := time.Now()
	records, err := s.repo.ListRange(ctx, employeeID, from, to)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee snapshot")
	}
	s.metrics.ObserveDBQuery("summary_employee", time.Since(start))
	rollup := EmployeeRollup(employeeID, records)
	s.cacheSet(ctx, cacheKey, rollup)
	return &rollup, false, nil
}

// Invalidate drops all cached summaries. Called after writes.
func (s *SummaryService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "summary:*"); err != nil {
		s.logger.Warn("summary cache invalidation failed", zap.Error(err))
	}
}

func (s *SummaryService) cacheGet(ctx context.Context, key string, dest interface{}) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	return s.cache.Get(ctx, key, dest)
}

func (s *SummaryService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("summary cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CountByStatus tallies one date's records per classification. Records with
// a filed appeal are counted under their underlying classification and also
// in Exceptions; insertion order never affects the result.
func CountByStatus(records []models.AttendanceRecord, date time.Time) models.DailyCounts {
	day := truncateDay(date)
	counts := models.DailyCounts{Date: day.Format("2006-01-02")}
	for _, record := range records {
		if !truncateDay(record.Date).Equal(day) {
			continue
		}
		counts.Total++
		switch record.Classification {
		case models.ClassificationPresent:
			counts.Present++
		case models.ClassificationLate:
			counts.Late++
		case models.ClassificationAbsent:
			counts.Absent++
		case models.ClassificationLeave:
			counts.Leave++
		}
		if record.HasException() {
			counts.Exceptions++
		}
	}
	return counts
}

// SumLateness totals and averages late minutes over a record set. The mean
// of an empty set is 0, never NaN.
func SumLateness(records []models.AttendanceRecord) models.LatenessTotals {
	totals := models.LatenessTotals{}
	for _, record := range records {
		totals.TotalLateMinutes += record.LateMinutes
	}
	if len(records) > 0 {
		totals.MeanLateMinutes = float64(totals.TotalLateMinutes) / float64(len(records))
	}
	return totals
}

// AttendanceRate is the rounded percentage of present-or-late records over
// the whole set. An empty set rates 0.
func AttendanceRate(records []models.AttendanceRecord) int {
	if len(records) == 0 {
		return 0
	}
	attended := 0
	for _, record := range records {
		if record.Classification == models.ClassificationPresent || record.Classification == models.ClassificationLate {
			attended++
		}
	}
	return int(math.Round(float64(attended) / float64(len(records)) * 100))
}

// WeeklyTrend buckets present/late/absent counts per day for the seven
// calendar days ending at today, oldest first. Days without records produce
// zero buckets.
func WeeklyTrend(records []models.AttendanceRecord, today time.Time) []models.TrendBucket {
	today = truncateDay(today)
	byDay := make(map[string]*models.TrendBucket, 7)
	buckets := make([]models.TrendBucket, 7)
	for i := 0; i < 7; i++ {
		day := today.AddDate(0, 0, i-6)
		buckets[i] = models.TrendBucket{Date: day.Format("2006-01-02")}
		byDay[buckets[i].Date] = &buckets[i]
	}
	for _, record := range records {
		bucket, ok := byDay[truncateDay(record.Date).Format("2006-01-02")]
		if !ok {
			continue
		}
		switch record.Classification {
		case models.ClassificationPresent:
			bucket.Present++
		case models.ClassificationLate:
			bucket.Late++
		case models.ClassificationAbsent:
			bucket.Absent++
		}
	}
	return buckets
}

// EmployeeRollup summarises one employee's records. Records belonging to
// other employees are ignored so callers can pass unfiltered snapshots.
func EmployeeRollup(employeeID string, records []models.AttendanceRecord) models.EmployeeRollup {
	rollup := models.EmployeeRollup{EmployeeID: employeeID}
	own := make([]models.AttendanceRecord, 0, len(records))
	for _, record := range records {
		if record.EmployeeID != employeeID {
			continue
		}
		own = append(own, record)
		switch record.Classification {
		case models.ClassificationPresent:
			rollup.PresentCount++
		case models.ClassificationLate:
			rollup.LateCount++
		case models.ClassificationAbsent:
			rollup.AbsentCount++
		case models.ClassificationLeave:
			rollup.LeaveCount++
		}
		if record.HasException() {
			rollup.ExceptionCount++
		}
		rollup.TotalWorkedMinutes += record.WorkedMinutes()
		rollup.TotalLateMinutes += record.LateMinutes
	}
	rollup.AttendanceRate = AttendanceRate(own)
	return rollup
}
