package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kurdsoft/erp-attendance-api/internal/models"
	appErrors "github.com/kurdsoft/erp-attendance-api/pkg/errors"
	"github.com/kurdsoft/erp-attendance-api/pkg/response"
)

type summaryService interface {
	Daily(ctx context.Context, date time.Time) (*models.DailySummary, bool, error)
	WeeklyTrend(ctx context.Context) ([]models.TrendBucket, bool, error)
	Employee(ctx context.Context, employeeID string, from, to time.Time) (*models.EmployeeRollup, bool, error)
}

// SummaryHandler exposes the aggregation read endpoints.
type SummaryHandler struct {
	service summaryService
	now     func() time.Time
}

// NewSummaryHandler constructs the handler.
func NewSummaryHandler(svc summaryService) *SummaryHandler {
	return &SummaryHandler{service: svc, now: time.Now}
}

// Daily godoc
// @Summary Daily attendance summary
// @Description Counts, lateness totals and attendance rate for one date
// @Tags Summaries
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /attendance/summary [get]
func (h *SummaryHandler) Daily(c *gin.Context) {
	date := h.now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
			return
		}
		date = parsed
	}

	start := time.Now()
	summary, cacheHit, err := h.service.Daily(c.Request.Context(), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil, summaryMeta(cacheHit, start))
}

// Trend godoc
// @Summary Weekly attendance trend
// @Description Per-day present/late/absent buckets for the trailing 7 days
// @Tags Summaries
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /attendance/trend [get]
func (h *SummaryHandler) Trend(c *gin.Context) {
	start := time.Now()
	buckets, cacheHit, err := h.service.WeeklyTrend(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, buckets, nil, summaryMeta(cacheHit, start))
}

// Employee godoc
// @Summary Per-employee rollup
// @Description Counts, worked/late minute totals and rate over a date range
// @Tags Summaries
// @Produce json
// @Param id path string true "Employee ID"
// @Param from query string true "From date (YYYY-MM-DD)"
// @Param to query string true "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/employees/{id}/summary [get]
func (h *SummaryHandler) Employee(c *gin.Context) {
	from, err := time.Parse("2006-01-02", c.Query("from"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be YYYY-MM-DD"))
		return
	}
	to, err := time.Parse("2006-01-02", c.Query("to"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must be YYYY-MM-DD"))
		return
	}
	if to.Before(from) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must not precede from"))
		return
	}

	start := time.Now()
	rollup, cacheHit, err := h.service.Employee(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rollup, nil, summaryMeta(cacheHit, start))
}

func summaryMeta(cacheHit bool, start time.Time) map[string]interface{} {
	return map[string]interface{}{
		"cache_hit":  cacheHit,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}
}
