package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ShiftStartMinutes is the company-wide shift start (08:00) in minutes since
// midnight. Lateness is always measured against this single threshold; the
// source system has no per-department shifts.
const ShiftStartMinutes = 480

// ToMinutes converts an "HH:MM" clock string into minutes since midnight.
// Callers must guard against empty input; parse errors belong to the DTO
// validation layer, not here.
func ToMinutes(hhmm string) int {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0
	}
	hours, _ := strconv.Atoi(parts[0])
	minutes, _ := strconv.Atoi(parts[1])
	return hours*60 + minutes
}

// MinutesToClock renders minutes since midnight back into "HH:MM".
func MinutesToClock(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// WorkedMinutes computes the worked duration between check-in and check-out.
// Either side empty yields 0. Overnight shifts are not supported: a check-out
// earlier than check-in clamps to 0 rather than wrapping around midnight.
func WorkedMinutes(checkIn, checkOut string) int {
	if checkIn == "" || checkOut == "" {
		return 0
	}
	worked := ToMinutes(checkOut) - ToMinutes(checkIn)
	if worked < 0 {
		return 0
	}
	return worked
}

// LateMinutesFor measures how many minutes after shift start the check-in
// occurred. Check-ins at or before 08:00 are not late.
func LateMinutesFor(checkIn string) int {
	if checkIn == "" {
		return 0
	}
	late := ToMinutes(checkIn) - ShiftStartMinutes
	if late < 0 {
		return 0
	}
	return late
}

// Classify derives the day's classification from its raw capture. It is a
// pure function of the single day's inputs and has no memory of prior days.
func Classify(checkIn string, lateMinutes int, onLeave bool) Classification {
	if checkIn != "" {
		if lateMinutes > 0 {
			return ClassificationLate
		}
		return ClassificationPresent
	}
	if onLeave {
		return ClassificationLeave
	}
	return ClassificationAbsent
}
