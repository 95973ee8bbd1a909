package schedule

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	DefaultTime = "09:00"
)

func parseDate(s string) (string, error) {
	v := strings.TrimSpace(s)
	d, err := time.Parse(DateLayout, v)
	if err != nil {
		return "", &FormatError{Field: "date", Value: s, Expected: "YYYY-MM-DD", Example: "2024-12-25"}
	}
	return d.Format(DateLayout), nil
}

func parseClock(s string) (hour, minute int, err error) {
	v := strings.TrimSpace(s)
	t, perr := time.Parse(TimeLayout, v)
	if perr != nil {
		return 0, 0, &FormatError{Field: "time", Value: s, Expected: "HH:MM", Example: "09:30, 14:45, 23:30"}
	}
	return t.Hour(), t.Minute(), nil
}

// InWindow reports whether hour is inside the 7 AM to midnight display window.
func InWindow(hour int) bool {
	return (hour >= 7 && hour <= 23) || hour == 0
}

// parseTimeInWindow parses HH:MM and enforces the display window.
func parseTimeInWindow(s string) (hour, minute int, err error) {
	hour, minute, err = parseClock(s)
	if err != nil {
		return 0, 0, err
	}
	if !InWindow(hour) {
		return 0, 0, &ValidationError{
			Field:   "time",
			Message: fmt.Sprintf("Time must be between 7:00 AM and 12:00 AM (midnight). You entered %s.", Format12(hour, minute)),
		}
	}
	return hour, minute, nil
}

// Format12 renders a 24-hour clock value as "H:MM AM/PM".
func Format12(hour, minute int) string {
	switch {
	case hour == 0:
		return fmt.Sprintf("12:%02d AM", minute)
	case hour < 12:
		return fmt.Sprintf("%d:%02d AM", hour, minute)
	case hour == 12:
		return fmt.Sprintf("12:%02d PM", minute)
	default:
		return fmt.Sprintf("%d:%02d PM", hour-12, minute)
	}
}

func formatHHMM(hour, minute int) string { return fmt.Sprintf("%02d:%02d", hour, minute) }
