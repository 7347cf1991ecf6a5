package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/kurdsoft/erp-attendance-api/internal/middleware"
	"github.com/kurdsoft/erp-attendance-api/internal/models"
	"github.com/kurdsoft/erp-attendance-api/internal/service"
	appErrors "github.com/kurdsoft/erp-attendance-api/pkg/errors"
)

type attendanceServiceMock struct {
	listReq    service.ListRequest
	checkInErr error
	deleteErr  error
}

func (m *attendanceServiceMock) List(_ context.Context, req service.ListRequest) ([]models.AttendanceRecord, *models.Pagination, error) {
	m.listReq = req
	return []models.AttendanceRecord{{ID: "rec-1", EmployeeID: "emp-001"}}, &models.Pagination{Page: req.Page, PageSize: req.PageSize, TotalCount: 1}, nil
}

func (m *attendanceServiceMock) CheckIn(_ context.Context, req service.CheckInRequest) (*models.AttendanceRecord, error) {
	if m.checkInErr != nil {
		return nil, m.checkInErr
	}
	return &models.AttendanceRecord{ID: "rec-1", EmployeeID: req.EmployeeID, CheckIn: req.CheckIn}, nil
}

func (m *attendanceServiceMock) CheckOut(_ context.Context, id string, req service.CheckOutRequest) (*models.AttendanceRecord, error) {
	return &models.AttendanceRecord{ID: id, CheckOut: req.CheckOut}, nil
}

func (m *attendanceServiceMock) Replace(_ context.Context, id string, req service.ReplaceRequest) (*models.AttendanceRecord, error) {
	return &models.AttendanceRecord{ID: id, EmployeeID: req.EmployeeID}, nil
}

func (m *attendanceServiceMock) CorrectLateness(_ context.Context, id string, req service.LatenessCorrectionRequest, _ *models.JWTClaims) (*models.AttendanceRecord, error) {
	return &models.AttendanceRecord{ID: id, CheckIn: req.CheckIn}, nil
}

func (m *attendanceServiceMock) Delete(context.Context, string, *models.JWTClaims) error {
	return m.deleteErr
}

type closeDayServiceMock struct {
	jobID string
	err   error
}

func (m *closeDayServiceMock) Enqueue(context.Context, *models.JWTClaims, service.CloseDayRequest) (string, error) {
	return m.jobID, m.err
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func buildAttendanceRouter(svc *attendanceServiceMock, closeDay *closeDayServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(middleware.ContextUserKey, &models.JWTClaims{
				UserID: "test-user",
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	})

	h := NewAttendanceHandler(svc, closeDay)
	router.GET("/attendance", h.List)
	router.POST("/attendance", h.CheckIn)
	router.PUT("/attendance/:id/checkout", h.CheckOut)
	router.PUT("/attendance/late/:id", middleware.RequireDeciders(), h.CorrectLateness)
	router.DELETE("/attendance/:id", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleHRAdmin), h.Delete)
	router.POST("/attendance/close-day", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleHRAdmin), h.CloseDay)
	return router
}

func TestAttendanceHandlerList(t *testing.T) {
	svc := &attendanceServiceMock{}
	router := buildAttendanceRouter(svc, &closeDayServiceMock{})

	req, _ := http.NewRequest(http.MethodGet, "/attendance?employeeId=emp-001&status=late&hasException=true&page=2&limit=10&sortBy=date&sortOrder=asc", nil)
	req.Header.Set("X-Test-Role", string(models.RoleManager))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"rec-1"`)
	require.Contains(t, resp.Body.String(), `"pagination"`)

	require.Equal(t, "emp-001", svc.listReq.EmployeeID)
	require.NotNil(t, svc.listReq.Classification)
	require.Equal(t, "late", *svc.listReq.Classification)
	require.NotNil(t, svc.listReq.HasException)
	require.True(t, *svc.listReq.HasException)
	require.Equal(t, 2, svc.listReq.Page)
	require.Equal(t, 10, svc.listReq.PageSize)
}

func TestAttendanceHandlerCheckIn(t *testing.T) {
	router := buildAttendanceRouter(&attendanceServiceMock{}, &closeDayServiceMock{})

	body := `{"employee_id":"emp-001","employee_name":"Aram Salih","date":"2026-03-10","check_in":"07:55"}`
	req, _ := http.NewRequest(http.MethodPost, "/attendance", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleEmployee))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Contains(t, resp.Body.String(), `"07:55"`)
}

func TestAttendanceHandlerCheckInConflict(t *testing.T) {
	svc := &attendanceServiceMock{checkInErr: appErrors.Clone(appErrors.ErrConflict, "attendance already recorded for this employee and date")}
	router := buildAttendanceRouter(svc, &closeDayServiceMock{})

	body := `{"employee_id":"emp-001","employee_name":"Aram Salih","date":"2026-03-10","check_in":"07:55"}`
	req, _ := http.NewRequest(http.MethodPost, "/attendance", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleEmployee))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusConflict, resp.Code)
	require.Contains(t, resp.Body.String(), "CONFLICT")
}

func TestAttendanceHandlerCheckInMalformedBody(t *testing.T) {
	router := buildAttendanceRouter(&attendanceServiceMock{}, &closeDayServiceMock{})

	req, _ := http.NewRequest(http.MethodPost, "/attendance", bytes.NewBufferString(`{"employee_id":`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleEmployee))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAttendanceHandlerCorrectLatenessForbidden(t *testing.T) {
	router := buildAttendanceRouter(&attendanceServiceMock{}, &closeDayServiceMock{})

	req, _ := http.NewRequest(http.MethodPut, "/attendance/late/rec-1", bytes.NewBufferString(`{"check_in":"08:05"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleEmployee))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestAttendanceHandlerCorrectLateness(t *testing.T) {
	router := buildAttendanceRouter(&attendanceServiceMock{}, &closeDayServiceMock{})

	req, _ := http.NewRequest(http.MethodPut, "/attendance/late/rec-1", bytes.NewBufferString(`{"check_in":"08:05"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleManager))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"08:05"`)
}

func TestAttendanceHandlerDeleteRoleGate(t *testing.T) {
	router := buildAttendanceRouter(&attendanceServiceMock{}, &closeDayServiceMock{})

	req, _ := http.NewRequest(http.MethodDelete, "/attendance/rec-1", nil)
	req.Header.Set("X-Test-Role", string(models.RoleManager))
	resp := performRequest(router, req)
	require.Equal(t, http.StatusForbidden, resp.Code)

	req, _ = http.NewRequest(http.MethodDelete, "/attendance/rec-1", nil)
	req.Header.Set("X-Test-Role", string(models.RoleHRAdmin))
	resp = performRequest(router, req)
	require.Equal(t, http.StatusNoContent, resp.Code)
}

func TestAttendanceHandlerCloseDay(t *testing.T) {
	router := buildAttendanceRouter(&attendanceServiceMock{}, &closeDayServiceMock{jobID: "job-42"})

	req, _ := http.NewRequest(http.MethodPost, "/attendance/close-day", bytes.NewBufferString(`{"date":"2026-03-10"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleSuperAdmin))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusAccepted, resp.Code)
	require.Contains(t, resp.Body.String(), `"job-42"`)
}

func TestAttendanceHandlerCloseDayUnauthorized(t *testing.T) {
	router := buildAttendanceRouter(&attendanceServiceMock{}, &closeDayServiceMock{})

	req, _ := http.NewRequest(http.MethodPost, "/attendance/close-day", bytes.NewBufferString(`{"date":"2026-03-10"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := performRequest(router, req)

	require.Equal(t, http.StatusUnauthorized, resp.Code)
}
