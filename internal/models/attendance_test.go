package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestDisplayStatusKeepsClassification(t *testing.T) {
	record := AttendanceRecord{
		CheckIn:        "08:20",
		Classification: ClassificationLate,
		LateMinutes:    20,
	}
	assert.Equal(t, "late", record.DisplayStatus())

	status := ExceptionPending
	record.ExceptionReason = strPtr("traffic")
	record.ExceptionStatus = &status

	// The appeal changes the display label but the underlying
	// classification survives.
	assert.Equal(t, DisplayStatusException, record.DisplayStatus())
	assert.Equal(t, ClassificationLate, record.Classification)
	assert.True(t, record.HasException())
}

func TestMarshalJSONEmitsStatusLabel(t *testing.T) {
	status := ExceptionPending
	record := AttendanceRecord{
		ID:              "rec-1",
		Classification:  ClassificationLate,
		ExceptionReason: strPtr("traffic"),
		ExceptionStatus: &status,
	}

	payload, err := json.Marshal(record)
	assert.NoError(t, err)
	assert.Contains(t, string(payload), `"status":"exception"`)
	assert.Contains(t, string(payload), `"classification":"late"`)
}

func TestExceptionStatusTerminal(t *testing.T) {
	assert.False(t, ExceptionPending.Terminal())
	assert.True(t, ExceptionApproved.Terminal())
	assert.True(t, ExceptionRejected.Terminal())
}

func TestGeoPointCompleteness(t *testing.T) {
	lat, lng := 36.19, 44.01
	addr := "Erbil"

	assert.True(t, GeoPoint{}.Empty())
	assert.False(t, GeoPoint{}.Complete())
	assert.True(t, GeoPoint{Latitude: &lat, Longitude: &lng, Address: &addr}.Complete())
	assert.False(t, GeoPoint{Latitude: &lat}.Complete())
	assert.False(t, GeoPoint{Latitude: &lat}.Empty())
}

func TestUserRoleCanDecideExceptions(t *testing.T) {
	assert.True(t, RoleSuperAdmin.CanDecideExceptions())
	assert.True(t, RoleHRAdmin.CanDecideExceptions())
	assert.True(t, RoleManager.CanDecideExceptions())
	assert.False(t, RoleEmployee.CanDecideExceptions())
}
