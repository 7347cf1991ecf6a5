package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/kurdsoft/erp-attendance-api/internal/models"
)

func newAttendanceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var attendanceTestColumns = []string{
	"id", "employee_id", "employee_name", "date", "check_in", "check_out", "classification", "late_minutes", "device",
	"check_in_latitude", "check_in_longitude", "check_in_address",
	"check_out_latitude", "check_out_longitude", "check_out_address",
	"exception_reason", "exception_status", "exception_approved_by",
	"created_at", "updated_at",
}

func attendanceRow(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(attendanceTestColumns).
		AddRow(id, "emp-001", "Aram Salih", time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
			"08:15", "17:05", "late", 15, "web",
			nil, nil, nil,
			nil, nil, nil,
			nil, nil, nil,
			now, now)
}

func TestAttendanceRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnRows(attendanceRow("rec-1"))

	stored, err := repo.Create(context.Background(), &models.AttendanceRecord{
		EmployeeID:     "emp-001",
		EmployeeName:   "Aram Salih",
		Date:           time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
		CheckIn:        "08:15",
		Classification: models.ClassificationLate,
		LateMinutes:    15,
	})
	require.NoError(t, err)
	require.Equal(t, "rec-1", stored.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	// ON CONFLICT DO NOTHING swallows the insert, so RETURNING yields no row.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnRows(sqlmock.NewRows(attendanceTestColumns))

	_, err := repo.Create(context.Background(), &models.AttendanceRecord{
		EmployeeID:   "emp-001",
		EmployeeName: "Aram Salih",
		Date:         time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, ErrDuplicateRecord)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records WHERE id = $1")).
		WithArgs("rec-404").
		WillReturnRows(sqlmock.NewRows(attendanceTestColumns))

	_, err := repo.GetByID(context.Background(), "rec-404")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListSortAllowlist(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	// Unknown sort columns fall back to date DESC; they never reach the SQL.
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY date DESC LIMIT 50 OFFSET 0")).
		WillReturnRows(attendanceRow("rec-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance_records")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows, total, err := repo.List(context.Background(), models.AttendanceFilter{SortBy: "employee_id; DROP TABLE users"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	classification := models.ClassificationLate
	hasException := true
	mock.ExpectQuery(regexp.QuoteMeta("employee_id = $1 AND classification = $2 AND exception_status IS NOT NULL ORDER BY late_minutes ASC")).
		WithArgs("emp-001", classification).
		WillReturnRows(attendanceRow("rec-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance_records")).
		WithArgs("emp-001", classification).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, _, err := repo.List(context.Background(), models.AttendanceFilter{
		EmployeeID:     "emp-001",
		Classification: &classification,
		HasException:   &hasException,
		SortBy:         "late_minutes",
		SortOrder:      "asc",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryFileException(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND exception_status IS NULL")).
		WithArgs("rec-1", "traffic accident", models.ExceptionPending, sqlmock.AnyArg()).
		WillReturnRows(attendanceRow("rec-1"))

	stored, err := repo.FileException(context.Background(), "rec-1", "traffic accident")
	require.NoError(t, err)
	require.Equal(t, "rec-1", stored.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryFileExceptionAlreadyFiled(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND exception_status IS NULL")).
		WithArgs("rec-1", "second appeal", models.ExceptionPending, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(attendanceTestColumns))

	_, err := repo.FileException(context.Background(), "rec-1", "second appeal")
	require.ErrorIs(t, err, ErrExceptionExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryDecideException(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND exception_status = $5")).
		WithArgs("rec-1", models.ExceptionApproved, "Karwan Hassan", sqlmock.AnyArg(), models.ExceptionPending).
		WillReturnRows(attendanceRow("rec-1"))

	_, err := repo.DecideException(context.Background(), "rec-1", models.ExceptionApproved, "Karwan Hassan")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryDecideExceptionNoPending(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND exception_status = $5")).
		WithArgs("rec-1", models.ExceptionRejected, "Karwan Hassan", sqlmock.AnyArg(), models.ExceptionPending).
		WillReturnRows(sqlmock.NewRows(attendanceTestColumns))

	_, err := repo.DecideException(context.Background(), "rec-1", models.ExceptionRejected, "Karwan Hassan")
	require.ErrorIs(t, err, ErrNoPendingException)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendance_records WHERE id = $1")).
		WithArgs("rec-404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "rec-404")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCloseDay(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN attendance_records ar ON ar.employee_id = u.id AND ar.date = $1")).
		WithArgs(date, models.RoleEmployee).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name"}).
			AddRow("emp-003", "Dler Mahmoud").
			AddRow("emp-005", "Rebaz Karim"))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (employee_id, date) DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), "emp-003", "Dler Mahmoud", date, models.ClassificationLeave, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (employee_id, date) DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), "emp-005", "Rebaz Karim", date, models.ClassificationAbsent, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := repo.CloseDay(context.Background(), date, []string{"emp-003"})
	require.NoError(t, err)
	require.Equal(t, 2, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCloseDayNothingMissing(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN attendance_records ar")).
		WithArgs(date, models.RoleEmployee).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name"}))

	created, err := repo.CloseDay(context.Background(), date, nil)
	require.NoError(t, err)
	require.Equal(t, 0, created)
	require.NoError(t, mock.ExpectationsWereMet())
}
