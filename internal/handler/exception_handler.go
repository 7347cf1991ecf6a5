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

type exceptionService interface {
	File(ctx context.Context, req service.FileExceptionRequest, actor *models.JWTClaims) (*models.AttendanceRecord, error)
	Decide(ctx context.Context, recordID string, req service.DecideExceptionRequest, actor *models.JWTClaims) (*models.AttendanceRecord, error)
}

// ExceptionHandler exposes the exception appeal workflow endpoints.
type ExceptionHandler struct {
	service exceptionService
}

// NewExceptionHandler constructs the handler.
func NewExceptionHandler(svc exceptionService) *ExceptionHandler {
	return &ExceptionHandler{service: svc}
}

// File godoc
// @Summary File an exception appeal
// @Description Attaches a pending appeal to an attendance record
// @Tags Exceptions
// @Accept json
// @Produce json
// @Param payload body service.FileExceptionRequest true "Appeal payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/exception [post]
func (h *ExceptionHandler) File(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.FileExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid exception payload"))
		return
	}

	record, err := h.service.File(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Decide godoc
// @Summary Approve or reject a pending appeal
// @Tags Exceptions
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.DecideExceptionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /attendance/exception/{id} [put]
func (h *ExceptionHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.DecideExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	record, err := h.service.Decide(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
