package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kurdsoft/erp-attendance-api/internal/models"
	"github.com/kurdsoft/erp-attendance-api/internal/service"
	appErrors "github.com/kurdsoft/erp-attendance-api/pkg/errors"
	"github.com/kurdsoft/erp-attendance-api/pkg/response"
)

type attendanceService interface {
	List(ctx context.Context, req service.ListRequest) ([]models.AttendanceRecord, *models.Pagination, error)
	CheckIn(ctx context.Context, req service.CheckInRequest) (*models.AttendanceRecord, error)
	CheckOut(ctx context.Context, id string, req service.CheckOutRequest) (*models.AttendanceRecord, error)
	Replace(ctx context.Context, id string, req service.ReplaceRequest) (*models.AttendanceRecord, error)
	CorrectLateness(ctx context.Context, id string, req service.LatenessCorrectionRequest, actor *models.JWTClaims) (*models.AttendanceRecord, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

type closeDayService interface {
	Enqueue(ctx context.Context, actor *models.JWTClaims, req service.CloseDayRequest) (string, error)
}

// AttendanceHandler exposes the attendance capture endpoints.
type AttendanceHandler struct {
	service  attendanceService
	closeDay closeDayService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceService, closeDay closeDayService) *AttendanceHandler {
	return &AttendanceHandler{service: svc, closeDay: closeDay}
}

// List godoc
// @Summary List attendance records
// @Tags Attendance
// @Produce json
// @Param employeeId query string false "Employee ID"
// @Param status query string false "Classification (present/late/absent/leave)"
// @Param hasException query bool false "Only records with (or without) a filed exception"
// @Param dateFrom query string false "From date (YYYY-MM-DD)"
// @Param dateTo query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sortBy query string false "Sort by field"
// @Param sortOrder query string false "Sort order (asc/desc)"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	req := service.ListRequest{
		EmployeeID: c.Query("employeeId"),
		SortBy:     c.Query("sortBy"),
		SortOrder:  c.Query("sortOrder"),
		Page:       parseQueryInt(c, "page", 1),
		PageSize:   parseQueryInt(c, "limit", 50),
	}
	if status := c.Query("status"); status != "" {
		req.Classification = &status
	}
	if from := c.Query("dateFrom"); from != "" {
		req.DateFrom = &from
	}
	if to := c.Query("dateTo"); to != "" {
		req.DateTo = &to
	}
	if raw := c.Query("hasException"); raw != "" {
		hasException := raw == "true" || raw == "1"
		req.HasException = &hasException
	}

	records, pagination, err := h.service.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// CheckIn godoc
// @Summary Record a check-in
// @Description Creates the day's attendance record for an employee
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.CheckInRequest true "Check-in payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	var req service.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid check-in payload"))
		return
	}

	record, err := h.service.CheckIn(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// CheckOut godoc
// @Summary Record a check-out
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.CheckOutRequest true "Check-out payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /attendance/{id}/checkout [put]
func (h *AttendanceHandler) CheckOut(c *gin.Context) {
	var req service.CheckOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid check-out payload"))
		return
	}

	record, err := h.service.CheckOut(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Replace godoc
// @Summary Replace an attendance record
// @Description Full update of a record's capture fields; classification is re-derived
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.ReplaceRequest true "Replacement payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/{id} [put]
func (h *AttendanceHandler) Replace(c *gin.Context) {
	var req service.ReplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance payload"))
		return
	}

	record, err := h.service.Replace(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// CorrectLateness godoc
// @Summary Correct a record's check-in time
// @Description Amends the check-in and re-derives lateness and classification
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.LatenessCorrectionRequest true "Correction payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/late/{id} [put]
func (h *AttendanceHandler) CorrectLateness(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.LatenessCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid correction payload"))
		return
	}

	record, err := h.service.CorrectLateness(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete an attendance record
// @Tags Attendance
// @Produce json
// @Param id path string true "Record ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/{id} [delete]
func (h *AttendanceHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CloseDay godoc
// @Summary Close out a day
// @Description Queues a batch filling in absent/leave records for everyone without one
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.CloseDayRequest true "Close-day payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/close-day [post]
func (h *AttendanceHandler) CloseDay(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CloseDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid close-day payload"))
		return
	}

	jobID, err := h.closeDay.Enqueue(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"job_id": jobID}, nil)
}
