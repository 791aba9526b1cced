package domain

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Window is a date/time range expressed in a named timezone, stored the way
// the tables store it: separate date and time columns plus a timezone.
// Empty start or end dates leave that side open. An empty start time means
// 00:00 and an empty end time means the end of the end date.
type Window struct {
	StartDate string `json:"start_date,omitempty"` // YYYY-MM-DD
	StartTime string `json:"start_time,omitempty"` // HH:MM
	EndDate   string `json:"end_date,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	Timezone  string `json:"timezone,omitempty"` // IANA name, UTC when empty
}

// Location resolves the window timezone
func (w Window) Location() (*time.Location, error) {
	if w.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, w.Timezone)
	}
	return loc, nil
}

// Bounds returns the inclusive start and exclusive end instants. A nil
// bound is open.
func (w Window) Bounds() (start, end *time.Time, err error) {
	loc, err := w.Location()
	if err != nil {
		return nil, nil, err
	}

	if w.StartDate != "" {
		t, err := parseLocal(w.StartDate, w.StartTime, loc)
		if err != nil {
			return nil, nil, err
		}
		start = &t
	}

	if w.EndDate != "" {
		var t time.Time
		if w.EndTime == "" {
			day, err := parseLocal(w.EndDate, "", loc)
			if err != nil {
				return nil, nil, err
			}
			t = day.AddDate(0, 0, 1)
		} else {
			t, err = parseLocal(w.EndDate, w.EndTime, loc)
			if err != nil {
				return nil, nil, err
			}
		}
		end = &t
	}

	if start != nil && end != nil && !end.After(*start) {
		return nil, nil, fmt.Errorf("%w: end must be after start", ErrInvalidWindow)
	}
	return start, end, nil
}

// Validate checks that the window parses
func (w Window) Validate() error {
	_, _, err := w.Bounds()
	return err
}

// WindowPosition describes where an instant falls relative to a window
type WindowPosition int

const (
	BeforeWindow WindowPosition = iota
	InWindow
	AfterWindow
)

// Position evaluates at against the window in the window's timezone
func (w Window) Position(at time.Time) (WindowPosition, error) {
	start, end, err := w.Bounds()
	if err != nil {
		return InWindow, err
	}
	if start != nil && at.Before(*start) {
		return BeforeWindow, nil
	}
	if end != nil && !at.Before(*end) {
		return AfterWindow, nil
	}
	return InWindow, nil
}

// Contains reports whether at lies inside the window
func (w Window) Contains(at time.Time) (bool, error) {
	pos, err := w.Position(at)
	return pos == InWindow, err
}

func parseLocal(date, clock string, loc *time.Location) (time.Time, error) {
	if clock == "" {
		t, err := time.ParseInLocation(dateLayout, date, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidWindow, date)
		}
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout+" "+timeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q %q", ErrInvalidWindow, date, clock)
	}
	return t, nil
}
