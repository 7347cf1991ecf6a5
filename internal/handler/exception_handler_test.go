package handler

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/kurdsoft/erp-attendance-api/internal/middleware"
	"github.com/kurdsoft/erp-attendance-api/internal/models"
	"github.com/kurdsoft/erp-attendance-api/internal/service"
	appErrors "github.com/kurdsoft/erp-attendance-api/pkg/errors"
)

type exceptionServiceMock struct {
	fileErr   error
	decideErr error

	lastFile   service.FileExceptionRequest
	lastDecide service.DecideExceptionRequest
}

func (m *exceptionServiceMock) File(_ context.Context, req service.FileExceptionRequest, _ *models.JWTClaims) (*models.AttendanceRecord, error) {
	m.lastFile = req
	if m.fileErr != nil {
		return nil, m.fileErr
	}
	reason := req.Reason
	status := models.ExceptionPending
	return &models.AttendanceRecord{ID: req.RecordID, ExceptionReason: &reason, ExceptionStatus: &status}, nil
}

func (m *exceptionServiceMock) Decide(_ context.Context, recordID string, req service.DecideExceptionRequest, actor *models.JWTClaims) (*models.AttendanceRecord, error) {
	m.lastDecide = req
	if m.decideErr != nil {
		return nil, m.decideErr
	}
	status := models.ExceptionRejected
	if req.Approve {
		status = models.ExceptionApproved
	}
	return &models.AttendanceRecord{ID: recordID, ExceptionStatus: &status, ExceptionApprovedBy: &actor.FullName}, nil
}

func buildExceptionRouter(svc *exceptionServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(middleware.ContextUserKey, &models.JWTClaims{
				UserID:   "test-user",
				Role:     models.UserRole(role),
				FullName: "Karwan Hassan",
			})
		}
		c.Next()
	})

	h := NewExceptionHandler(svc)
	router.POST("/attendance/exception", h.File)
	router.PUT("/attendance/exception/:id", middleware.RequireDeciders(), h.Decide)
	return router
}

func TestExceptionHandlerFile(t *testing.T) {
	svc := &exceptionServiceMock{}
	router := buildExceptionRouter(svc)

	body := `{"record_id":"rec-1","reason":"clinic appointment"}`
	req, _ := http.NewRequest(http.MethodPost, "/attendance/exception", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleEmployee))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Contains(t, resp.Body.String(), `"pending"`)
	require.Equal(t, "rec-1", svc.lastFile.RecordID)
}

func TestExceptionHandlerFileRequiresAuth(t *testing.T) {
	router := buildExceptionRouter(&exceptionServiceMock{})

	req, _ := http.NewRequest(http.MethodPost, "/attendance/exception", bytes.NewBufferString(`{"record_id":"rec-1","reason":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := performRequest(router, req)

	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestExceptionHandlerFileConflict(t *testing.T) {
	svc := &exceptionServiceMock{fileErr: appErrors.Clone(appErrors.ErrConflict, "an exception is already filed on this record")}
	router := buildExceptionRouter(svc)

	req, _ := http.NewRequest(http.MethodPost, "/attendance/exception", bytes.NewBufferString(`{"record_id":"rec-1","reason":"again"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleEmployee))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusConflict, resp.Code)
}

func TestExceptionHandlerDecide(t *testing.T) {
	svc := &exceptionServiceMock{}
	router := buildExceptionRouter(svc)

	req, _ := http.NewRequest(http.MethodPut, "/attendance/exception/rec-1", bytes.NewBufferString(`{"approve":true}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleManager))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"approved"`)
	require.Contains(t, resp.Body.String(), "Karwan Hassan")
	require.True(t, svc.lastDecide.Approve)
}

func TestExceptionHandlerDecideForbiddenForEmployees(t *testing.T) {
	router := buildExceptionRouter(&exceptionServiceMock{})

	req, _ := http.NewRequest(http.MethodPut, "/attendance/exception/rec-1", bytes.NewBufferString(`{"approve":true}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleEmployee))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestExceptionHandlerDecideAlreadyDecided(t *testing.T) {
	svc := &exceptionServiceMock{decideErr: appErrors.Clone(appErrors.ErrExceptionDecided, "exception already decided")}
	router := buildExceptionRouter(svc)

	req, _ := http.NewRequest(http.MethodPut, "/attendance/exception/rec-1", bytes.NewBufferString(`{"approve":false}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleHRAdmin))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusConflict, resp.Code)
	require.Contains(t, resp.Body.String(), "EXCEPTION_DECIDED")
}
