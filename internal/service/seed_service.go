package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kurdsoft/erp-attendance-api/internal/models"
	"github.com/kurdsoft/erp-attendance-api/internal/repository"
)

// seedDays is the trailing window of calendar days populated by the
// generator, Fridays excluded except when today is a Friday.
const seedDays = 36

type seedEmployee struct {
	ID   string
	Name string
}

// The fixed demo roster. Employee index matters: it feeds the seed formula,
// so order must stay stable.
var seedEmployees = []seedEmployee{
	{ID: "emp-001", Name: "Aram Salih"},
	{ID: "emp-002", Name: "Lana Ahmed"},
	{ID: "emp-003", Name: "Dler Mahmoud"},
	{ID: "emp-004", Name: "Shene Omar"},
	{ID: "emp-005", Name: "Rebaz Karim"},
	{ID: "emp-006", Name: "Avan Rashid"},
	{ID: "emp-007", Name: "Hemin Aziz"},
	{ID: "emp-008", Name: "Tara Jalal"},
}

var seedLocations = []models.GeoPoint{
	geoPoint(36.1911, 44.0092, "Head Office, Erbil"),
	geoPoint(36.1862, 43.9930, "Branch Office, 60m Street, Erbil"),
	geoPoint(35.5646, 45.4164, "Sulaymaniyah Branch"),
	geoPoint(36.8663, 42.9884, "Duhok Branch"),
}

func geoPoint(lat, lng float64, address string) models.GeoPoint {
	return models.GeoPoint{Latitude: &lat, Longitude: &lng, Address: &address}
}

type seedRepository interface {
	Create(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
}

// SeedService populates the store with deterministic demonstration data.
// It is fixture machinery, enabled only via ENABLE_DEMO_SEED.
type SeedService struct {
	repo   seedRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewSeedService constructs a SeedService instance.
func NewSeedService(repo seedRepository, logger *zap.Logger) *SeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeedService{repo: repo, logger: logger, now: time.Now}
}

// Seed inserts the generated records. Existing (employee, date) rows are
// left untouched, so running it on every startup is safe.
func (s *SeedService) Seed(ctx context.Context) error {
	records := GenerateDemoRecords(s.now().UTC())

	inserted := 0
	for i := range records {
		if _, err := s.repo.Create(ctx, &records[i]); err != nil {
			if errors.Is(err, repository.ErrDuplicateRecord) {
				continue
			}
			return fmt.Errorf("seed record %s/%s: %w", records[i].EmployeeID, records[i].Date.Format("2006-01-02"), err)
		}
		inserted++
	}

	s.logger.Info("demo seed complete",
		zap.Int("generated", len(records)),
		zap.Int("inserted", inserted),
	)
	return nil
}

// GenerateDemoRecords builds the full synthetic record set for the trailing
// window ending at today. The function is pure so tests can assert exact
// fixture contents.
func GenerateDemoRecords(today time.Time) []models.AttendanceRecord {
	today = truncateDay(today)
	records := make([]models.AttendanceRecord, 0, seedDays*len(seedEmployees))

	for dayOffset := seedDays - 1; dayOffset >= 0; dayOffset-- {
		date := today.AddDate(0, 0, -dayOffset)
		if date.Weekday() == time.Friday && dayOffset != 0 {
			continue
		}
		for employeeIndex, emp := range seedEmployees {
			records = append(records, synthesizeRecord(date, dayOffset, employeeIndex, emp))
		}
	}

	injectExceptionExamples(records)
	return records
}

// synthesizeRecord derives one record from the deterministic seed. The seed
// formula and its classification buckets are fixture contract: changing them
// changes every downstream fixture.
func synthesizeRecord(date time.Time, dayOffset, employeeIndex int, emp seedEmployee) models.AttendanceRecord {
	seed := (dayOffset*17 + employeeIndex*31 + 42) % 100

	record := models.AttendanceRecord{
		ID:           uuid.NewString(),
		EmployeeID:   emp.ID,
		EmployeeName: emp.Name,
		Date:         date,
		Device:       "seed",
	}

	switch {
	case seed < 50:
		record.Classification = models.ClassificationPresent
		checkIn := models.ShiftStartMinutes - 20 + seed%20
		record.CheckIn = models.MinutesToClock(checkIn)
		record.CheckOut = models.MinutesToClock(17*60 + seed%45)
		applySeedLocation(&record, seed)
	case seed < 72:
		record.Classification = models.ClassificationLate
		record.LateMinutes = (seed-49)*2 + 3
		record.CheckIn = models.MinutesToClock(models.ShiftStartMinutes + record.LateMinutes)
		record.CheckOut = models.MinutesToClock(17*60 + 15 + seed%30)
		applySeedLocation(&record, seed)
	case seed < 88:
		record.Classification = models.ClassificationAbsent
	default:
		record.Classification = models.ClassificationLeave
	}

	return record
}

func applySeedLocation(record *models.AttendanceRecord, seed int) {
	loc := seedLocations[seed%len(seedLocations)]
	record.CheckInLatitude = loc.Latitude
	record.CheckInLongitude = loc.Longitude
	record.CheckInAddress = loc.Address
	record.CheckOutLatitude = loc.Latitude
	record.CheckOutLongitude = loc.Longitude
	record.CheckOutAddress = loc.Address
}

// injectExceptionExamples mutates a handful of late/absent records so the
// demo data exercises every workflow state: approved, pending, rejected and
// one more pending appeal.
func injectExceptionExamples(records []models.AttendanceRecord) {
	type injection struct {
		reason     string
		status     models.ExceptionStatus
		approvedBy string
	}
	injections := []injection{
		{reason: "Traffic accident on the ring road, supervisor informed by phone", status: models.ExceptionApproved, approvedBy: "Karwan Hassan"},
		{reason: "Clinic appointment ran long, medical note attached", status: models.ExceptionPending},
		{reason: "Overslept, no prior notice given", status: models.ExceptionRejected, approvedBy: "Karwan Hassan"},
		{reason: "Power outage at home, alarm did not go off", status: models.ExceptionPending},
	}

	next := 0
	for i := range records {
		if next >= len(injections) {
			return
		}
		c := records[i].Classification
		if c != models.ClassificationLate && c != models.ClassificationAbsent {
			continue
		}
		inj := injections[next]
		records[i].ExceptionReason = &inj.reason
		status := inj.status
		records[i].ExceptionStatus = &status
		if inj.approvedBy != "" {
			approvedBy := inj.approvedBy
			records[i].ExceptionApprovedBy = &approvedBy
		}
		next++
	}
}
