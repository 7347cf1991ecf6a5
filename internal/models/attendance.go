package models

import (
	"encoding/json"
	"time"
)

// Classification is the true attendance classification derived from the day's
// capture. It never changes when an exception appeal is filed; the combined
// display label is derived, see DisplayStatus.
type Classification string

const (
	ClassificationPresent Classification = "present"
	ClassificationLate    Classification = "late"
	ClassificationAbsent  Classification = "absent"
	ClassificationLeave   Classification = "leave"
)

// Valid returns true when the classification is a supported value.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationPresent, ClassificationLate, ClassificationAbsent, ClassificationLeave:
		return true
	default:
		return false
	}
}

// ExceptionStatus tracks the appeal workflow attached to a record.
type ExceptionStatus string

const (
	ExceptionPending  ExceptionStatus = "pending"
	ExceptionApproved ExceptionStatus = "approved"
	ExceptionRejected ExceptionStatus = "rejected"
)

// Valid returns true for supported workflow states.
func (s ExceptionStatus) Valid() bool {
	switch s {
	case ExceptionPending, ExceptionApproved, ExceptionRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state admits no further transitions.
func (s ExceptionStatus) Terminal() bool {
	return s == ExceptionApproved || s == ExceptionRejected
}

// DisplayStatusException is the combined label shown once an appeal exists.
const DisplayStatusException = "exception"

// GeoPoint is a capture location. Latitude, longitude and address form a
// unit: they are present together or absent together.
type GeoPoint struct {
	Latitude  *float64 `db:"latitude" json:"latitude,omitempty"`
	Longitude *float64 `db:"longitude" json:"longitude,omitempty"`
	Address   *string  `db:"address" json:"address,omitempty"`
}

// Complete reports whether all three location fields are set.
func (g GeoPoint) Complete() bool {
	return g.Latitude != nil && g.Longitude != nil && g.Address != nil
}

// Empty reports whether no location field is set.
func (g GeoPoint) Empty() bool {
	return g.Latitude == nil && g.Longitude == nil && g.Address == nil
}

// AttendanceRecord is one employee's capture for a single calendar day.
// At most one record exists per (EmployeeID, Date).
type AttendanceRecord struct {
	ID             string         `db:"id" json:"id"`
	EmployeeID     string         `db:"employee_id" json:"employee_id"`
	EmployeeName   string         `db:"employee_name" json:"employee_name"`
	Date           time.Time      `db:"date" json:"date"`
	CheckIn        string         `db:"check_in" json:"check_in"`
	CheckOut       string         `db:"check_out" json:"check_out"`
	Classification Classification `db:"classification" json:"classification"`
	LateMinutes    int            `db:"late_minutes" json:"late_minutes"`
	Device         string         `db:"device" json:"device,omitempty"`

	CheckInLatitude   *float64 `db:"check_in_latitude" json:"check_in_latitude,omitempty"`
	CheckInLongitude  *float64 `db:"check_in_longitude" json:"check_in_longitude,omitempty"`
	CheckInAddress    *string  `db:"check_in_address" json:"check_in_address,omitempty"`
	CheckOutLatitude  *float64 `db:"check_out_latitude" json:"check_out_latitude,omitempty"`
	CheckOutLongitude *float64 `db:"check_out_longitude" json:"check_out_longitude,omitempty"`
	CheckOutAddress   *string  `db:"check_out_address" json:"check_out_address,omitempty"`

	ExceptionReason     *string          `db:"exception_reason" json:"exception_reason,omitempty"`
	ExceptionStatus     *ExceptionStatus `db:"exception_status" json:"exception_status,omitempty"`
	ExceptionApprovedBy *string          `db:"exception_approved_by" json:"exception_approved_by,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// HasException reports whether an appeal has been filed on this record.
func (r *AttendanceRecord) HasException() bool {
	return r.ExceptionReason != nil && r.ExceptionStatus != nil
}

// DisplayStatus is the combined label the UI shows: the exception workflow
// overrides the underlying late/absent classification once an appeal is
// filed, without losing the classification itself.
func (r *AttendanceRecord) DisplayStatus() string {
	if r.HasException() {
		return DisplayStatusException
	}
	return string(r.Classification)
}

// WorkedMinutes returns the worked duration for the record's day.
func (r *AttendanceRecord) WorkedMinutes() int {
	return WorkedMinutes(r.CheckIn, r.CheckOut)
}

// MarshalJSON adds the combined status label to the payload. Dashboard
// clients key their status column off it.
func (r AttendanceRecord) MarshalJSON() ([]byte, error) {
	type alias AttendanceRecord
	return json.Marshal(struct {
		alias
		Status string `json:"status"`
	}{alias(r), r.DisplayStatus()})
}

// AttendanceFilter scopes listing queries.
type AttendanceFilter struct {
	EmployeeID     string
	Classification *Classification
	DateFrom       *time.Time
	DateTo         *time.Time
	HasException   *bool
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// DailyCounts tallies records per classification for one date. Exceptions
// counts records with a filed appeal regardless of underlying class.
type DailyCounts struct {
	Date       string `json:"date"`
	Present    int    `json:"present"`
	Late       int    `json:"late"`
	Absent     int    `json:"absent"`
	Leave      int    `json:"leave"`
	Exceptions int    `json:"exceptions"`
	Total      int    `json:"total"`
}

// LatenessTotals aggregates lateness over a record set.
type LatenessTotals struct {
	TotalLateMinutes int     `json:"total_late_minutes"`
	MeanLateMinutes  float64 `json:"mean_late_minutes"`
}

// TrendBucket is one day of the weekly trend.
type TrendBucket struct {
	Date    string `json:"date"`
	Present int    `json:"present"`
	Late    int    `json:"late"`
	Absent  int    `json:"absent"`
}

// EmployeeRollup summarises one employee over a record subset.
type EmployeeRollup struct {
	EmployeeID         string `json:"employee_id"`
	PresentCount       int    `json:"present_count"`
	LateCount          int    `json:"late_count"`
	AbsentCount        int    `json:"absent_count"`
	LeaveCount         int    `json:"leave_count"`
	ExceptionCount     int    `json:"exception_count"`
	TotalWorkedMinutes int    `json:"total_worked_minutes"`
	TotalLateMinutes   int    `json:"total_late_minutes"`
	AttendanceRate     int    `json:"attendance_rate"`
}

// DailySummary is the full read-side payload for one date.
type DailySummary struct {
	Counts         DailyCounts    `json:"counts"`
	Lateness       LatenessTotals `json:"lateness"`
	AttendanceRate int            `json:"attendance_rate"`
}
