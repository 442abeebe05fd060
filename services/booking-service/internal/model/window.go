package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const MinutesPerDay = 24 * 60

var ErrInvalidWindow = errors.New("invalid availability window")

// AvailabilityWindow is a recurring weekly interval [StartMinute, EndMinute)
// measured from midnight UTC of Weekday.
type AvailabilityWindow struct {
	ID          string
	TrainerID   string
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
	Active      bool
	CreatedAt   time.Time
}

func (w AvailabilityWindow) Validate() error {
	if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
		return fmt.Errorf("%w: weekday %d out of range", ErrInvalidWindow, w.Weekday)
	}
	if w.StartMinute < 0 || w.EndMinute > MinutesPerDay {
		return fmt.Errorf("%w: times must be within the day", ErrInvalidWindow)
	}
	if w.StartMinute >= w.EndMinute {
		return fmt.Errorf("%w: start must be before end", ErrInvalidWindow)
	}
	return nil
}

// On returns the window's concrete bounds on day.
func (w AvailabilityWindow) On(day time.Time) (time.Time, time.Time) {
	d := StartOfDay(day)
	return d.Add(time.Duration(w.StartMinute) * time.Minute), d.Add(time.Duration(w.EndMinute) * time.Minute)
}

func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseClock parses "HH:MM" into minutes after midnight. "24:00" is accepted
// so a window can run to the end of the day.
func ParseClock(raw string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("time %q must be HH:MM", raw)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time %q must be HH:MM", raw)
	}
	return h*60 + m, nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
