// Package clock abstracts wall time so services can be tested with a fixed
// instant, and holds the shift/slot time arithmetic shared by scheduling and
// visit code.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock supplies the current time. Services take a Clock instead of calling
// time.Now so tests can pin the instant.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Fixed always returns T.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS" into minutes since midnight.
func ParseTimeOfDay(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// At combines a calendar date with a time of day in the date's location.
func At(date time.Time, timeOfDay string) (time.Time, error) {
	mins, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := date.Date()
	return time.Date(y, mo, d, mins/60, mins%60, 0, 0, date.Location()), nil
}

// SlotStart returns the instant a slot begins: the shift start plus
// (slotNumber-1) slot lengths. Slot numbers start at 1.
func SlotStart(date time.Time, shiftStart string, slotNumber, slotMinutes int) (time.Time, error) {
	start, err := At(date, shiftStart)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(time.Duration(slotNumber-1) * time.Duration(slotMinutes) * time.Minute), nil
}

// FitsShift reports whether a consultation beginning at the given slot ends
// at or before the shift end.
func FitsShift(shiftStart, shiftEnd string, slotNumber, slotMinutes, consultMinutes int) (bool, error) {
	startMins, err := ParseTimeOfDay(shiftStart)
	if err != nil {
		return false, err
	}
	endMins, err := ParseTimeOfDay(shiftEnd)
	if err != nil {
		return false, err
	}
	consultStart := startMins + (slotNumber-1)*slotMinutes
	return consultStart+consultMinutes <= endMins, nil
}

// Overlaps reports whether two time-of-day ranges intersect.
func Overlaps(start1, end1, start2, end2 string) (bool, error) {
	s1, err := ParseTimeOfDay(start1)
	if err != nil {
		return false, err
	}
	e1, err := ParseTimeOfDay(end1)
	if err != nil {
		return false, err
	}
	s2, err := ParseTimeOfDay(start2)
	if err != nil {
		return false, err
	}
	e2, err := ParseTimeOfDay(end2)
	if err != nil {
		return false, err
	}
	return s1 < e2 && s2 < e1, nil
}

// SameDay reports whether two instants fall on the same calendar date in a's
// location.
func SameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.In(a.Location()).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// StartOfDay truncates an instant to midnight in its location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
