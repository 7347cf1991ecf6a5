package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kurdsoft/erp-attendance-api/internal/models"
)

// ErrDuplicateRecord signals a second record for the same employee and day.
var ErrDuplicateRecord = errors.New("attendance record already exists for employee and date")

// ErrNoPendingException signals a decision attempted on a record whose
// exception is missing or already decided.
var ErrNoPendingException = errors.New("no pending exception on record")

// ErrExceptionExists signals a second appeal filed on the same record.
var ErrExceptionExists = errors.New("exception already filed on record")

const attendanceColumns = `id, employee_id, employee_name, date, check_in, check_out, classification, late_minutes, device,
check_in_latitude, check_in_longitude, check_in_address,
check_out_latitude, check_out_longitude, check_out_address,
exception_reason, exception_status, exception_approved_by,
created_at, updated_at`

// AttendanceRepository handles persistence for attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// List returns attendance rows matching the provided filter.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.EmployeeID != "" {
		where = append(where, fmt.Sprintf("employee_id = $%d", len(args)+1))
		args = append(args, filter.EmployeeID)
	}
	if filter.Classification != nil && filter.Classification.Valid() {
		where = append(where, fmt.Sprintf("classification = $%d", len(args)+1))
		args = append(args, *filter.Classification)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if filter.HasException != nil {
		if *filter.HasException {
			where = append(where, "exception_status IS NOT NULL")
		} else {
			where = append(where, "exception_status IS NULL")
		}
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"date":         "date",
		"employee":     "employee_name",
		"late_minutes": "late_minutes",
		"created_at":   "created_at",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		attendanceColumns, whereClause, sortColumn, order, size, offset)

	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM attendance_records WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return rows, total, nil
}

// ListRange returns the full snapshot of records between two dates inclusive,
// optionally scoped to one employee. Used by the aggregation layer.
func (r *AttendanceRepository) ListRange(ctx context.Context, employeeID string, from, to time.Time) ([]models.AttendanceRecord, error) {
	where := []string{"date >= $1", "date <= $2"}
	args := []interface{}{from, to}
	if employeeID != "" {
		where = append(where, "employee_id = $3")
		args = append(args, employeeID)
	}
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE %s`, attendanceColumns, strings.Join(where, " AND "))
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance range: %w", err)
	}
	return rows, nil
}

// GetByID loads a single record.
func (r *AttendanceRepository) GetByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE id = $1 LIMIT 1`, attendanceColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get attendance by id: %w", err)
	}
	return &record, nil
}

// Create inserts a new record. The (employee_id, date) unique key resolves
// check-in races: the second writer gets ErrDuplicateRecord.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = now
	record.UpdatedAt = now
	query := fmt.Sprintf(`INSERT INTO attendance_records (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
ON CONFLICT (employee_id, date) DO NOTHING
RETURNING %s`, attendanceColumns, attendanceColumns)
	var stored models.AttendanceRecord
	err := r.db.GetContext(ctx, &stored, query,
		record.ID, record.EmployeeID, record.EmployeeName, record.Date, record.CheckIn, record.CheckOut,
		record.Classification, record.LateMinutes, record.Device,
		record.CheckInLatitude, record.CheckInLongitude, record.CheckInAddress,
		record.CheckOutLatitude, record.CheckOutLongitude, record.CheckOutAddress,
		record.ExceptionReason, record.ExceptionStatus, record.ExceptionApprovedBy,
		record.CreatedAt, record.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDuplicateRecord
		}
		return nil, fmt.Errorf("create attendance: %w", err)
	}
	return &stored, nil
}

// Replace fully overwrites a record's capture fields. Last write wins; the
// exception columns are replaced along with the rest.
func (r *AttendanceRepository) Replace(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	record.UpdatedAt = time.Now().UTC()
	query := fmt.Sprintf(`UPDATE attendance_records SET
employee_id = $2, employee_name = $3, date = $4, check_in = $5, check_out = $6,
classification = $7, late_minutes = $8, device = $9,
check_in_latitude = $10, check_in_longitude = $11, check_in_address = $12,
check_out_latitude = $13, check_out_longitude = $14, check_out_address = $15,
exception_reason = $16, exception_status = $17, exception_approved_by = $18,
updated_at = $19
WHERE id = $1
RETURNING %s`, attendanceColumns)
	var stored models.AttendanceRecord
	err := r.db.GetContext(ctx, &stored, query,
		record.ID, record.EmployeeID, record.EmployeeName, record.Date, record.CheckIn, record.CheckOut,
		record.Classification, record.LateMinutes, record.Device,
		record.CheckInLatitude, record.CheckInLongitude, record.CheckInAddress,
		record.CheckOutLatitude, record.CheckOutLongitude, record.CheckOutAddress,
		record.ExceptionReason, record.ExceptionStatus, record.ExceptionApprovedBy,
		record.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("replace attendance: %w", err)
	}
	return &stored, nil
}

// SetCheckOut stamps the check-out time and location on a record.
func (r *AttendanceRepository) SetCheckOut(ctx context.Context, id, checkOut string, location models.GeoPoint) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf(`UPDATE attendance_records SET
check_out = $2, check_out_latitude = $3, check_out_longitude = $4, check_out_address = $5, updated_at = $6
WHERE id = $1
RETURNING %s`, attendanceColumns)
	var stored models.AttendanceRecord
	err := r.db.GetContext(ctx, &stored, query, id, checkOut, location.Latitude, location.Longitude, location.Address, time.Now().UTC())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("set check-out: %w", err)
	}
	return &stored, nil
}

// SetLateness amends check-in time, lateness and classification on a record.
func (r *AttendanceRepository) SetLateness(ctx context.Context, id, checkIn string, lateMinutes int, classification models.Classification) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf(`UPDATE attendance_records SET
check_in = $2, late_minutes = $3, classification = $4, updated_at = $5
WHERE id = $1
RETURNING %s`, attendanceColumns)
	var stored models.AttendanceRecord
	err := r.db.GetContext(ctx, &stored, query, id, checkIn, lateMinutes, classification, time.Now().UTC())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("set lateness: %w", err)
	}
	return &stored, nil
}

// FileException attaches a pending appeal. The conditional WHERE keeps a
// second filing from clobbering an existing workflow.
func (r *AttendanceRepository) FileException(ctx context.Context, id, reason string) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf(`UPDATE attendance_records SET
exception_reason = $2, exception_status = $3, exception_approved_by = NULL, updated_at = $4
WHERE id = $1 AND exception_status IS NULL
RETURNING %s`, attendanceColumns)
	var stored models.AttendanceRecord
	err := r.db.GetContext(ctx, &stored, query, id, reason, models.ExceptionPending, time.Now().UTC())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrExceptionExists
		}
		return nil, fmt.Errorf("file exception: %w", err)
	}
	return &stored, nil
}

// DecideException moves a pending appeal to a terminal state. The conditional
// WHERE means concurrent decisions cannot both win and a decided exception
// cannot be re-decided.
func (r *AttendanceRepository) DecideException(ctx context.Context, id string, status models.ExceptionStatus, approvedBy string) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf(`UPDATE attendance_records SET
exception_status = $2, exception_approved_by = $3, updated_at = $4
WHERE id = $1 AND exception_status = $5
RETURNING %s`, attendanceColumns)
	var stored models.AttendanceRecord
	err := r.db.GetContext(ctx, &stored, query, id, status, approvedBy, time.Now().UTC(), models.ExceptionPending)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoPendingException
		}
		return nil, fmt.Errorf("decide exception: %w", err)
	}
	return &stored, nil
}

// Delete removes a record.
func (r *AttendanceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete attendance rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CloseDay inserts an absent or leave record for every active employee
// without a record on the date. Returns the number of records created.
func (r *AttendanceRepository) CloseDay(ctx context.Context, date time.Time, leaveEmployeeIDs []string) (int, error) {
	onLeave := map[string]struct{}{}
	for _, id := range leaveEmployeeIDs {
		onLeave[id] = struct{}{}
	}

	const missingQuery = `SELECT u.id, u.full_name
FROM users u
LEFT JOIN attendance_records ar ON ar.employee_id = u.id AND ar.date = $1
WHERE u.active = TRUE AND u.role = $2 AND ar.id IS NULL`
	missing := []struct {
		ID       string `db:"id"`
		FullName string `db:"full_name"`
	}{}
	if err := r.db.SelectContext(ctx, &missing, missingQuery, date, models.RoleEmployee); err != nil {
		return 0, fmt.Errorf("close day missing employees: %w", err)
	}
	if len(missing) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin close day: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO attendance_records
(id, employee_id, employee_name, date, check_in, check_out, classification, late_minutes, device, created_at, updated_at)
VALUES ($1, $2, $3, $4, '', '', $5, 0, 'batch', $6, $6)
ON CONFLICT (employee_id, date) DO NOTHING`
	created := 0
	now := time.Now().UTC()
	for _, emp := range missing {
		classification := models.ClassificationAbsent
		if _, ok := onLeave[emp.ID]; ok {
			classification = models.ClassificationLeave
		}
		result, err := tx.ExecContext(ctx, insertQuery, uuid.NewString(), emp.ID, emp.FullName, date, classification, now)
		if err != nil {
			return 0, fmt.Errorf("close day insert: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("close day rows affected: %w", err)
		}
		created += int(affected)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit close day: %w", err)
	}
	committed = true
	return created, nil
}
