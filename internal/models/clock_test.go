package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToMinutes(t *testing.T) {
	assert.Equal(t, 0, ToMinutes("00:00"))
	assert.Equal(t, 480, ToMinutes("08:00"))
	assert.Equal(t, 495, ToMinutes("08:15"))
	assert.Equal(t, 1030, ToMinutes("17:10"))
	assert.Equal(t, 1439, ToMinutes("23:59"))
	assert.Equal(t, 0, ToMinutes("garbage"))
}

func TestMinutesToClock(t *testing.T) {
	assert.Equal(t, "00:00", MinutesToClock(0))
	assert.Equal(t, "08:00", MinutesToClock(480))
	assert.Equal(t, "17:05", MinutesToClock(1025))
	assert.Equal(t, "00:00", MinutesToClock(-10))
}

func TestWorkedMinutes(t *testing.T) {
	t.Run("typical day", func(t *testing.T) {
		assert.Equal(t, 535, WorkedMinutes("08:15", "17:10"))
	})

	t.Run("either side empty yields zero", func(t *testing.T) {
		assert.Equal(t, 0, WorkedMinutes("", "17:00"))
		assert.Equal(t, 0, WorkedMinutes("08:00", ""))
		assert.Equal(t, 0, WorkedMinutes("", ""))
	})

	t.Run("checkout before checkin clamps to zero", func(t *testing.T) {
		assert.Equal(t, 0, WorkedMinutes("22:00", "06:00"))
	})
}

func TestLateMinutesFor(t *testing.T) {
	assert.Equal(t, 0, LateMinutesFor(""))
	assert.Equal(t, 0, LateMinutesFor("07:45"))
	assert.Equal(t, 0, LateMinutesFor("08:00"))
	assert.Equal(t, 1, LateMinutesFor("08:01"))
	assert.Equal(t, 15, LateMinutesFor("08:15"))
	assert.Equal(t, 125, LateMinutesFor("10:05"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		checkIn     string
		lateMinutes int
		onLeave     bool
		want        Classification
	}{
		{"on time", "07:55", 0, false, ClassificationPresent},
		{"exactly shift start", "08:00", 0, false, ClassificationPresent},
		{"late", "08:15", 15, false, ClassificationLate},
		{"no check-in", "", 0, false, ClassificationAbsent},
		{"no check-in on leave", "", 0, true, ClassificationLeave},
		{"check-in wins over leave flag", "08:30", 30, true, ClassificationLate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.checkIn, tt.lateMinutes, tt.onLeave))
		})
	}
}
