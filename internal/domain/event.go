package domain

import (
	"strings"
	"time"
)

// EventStatus represents the lifecycle phase of an event
type EventStatus string

const (
	EventStatusUpcoming  EventStatus = "upcoming"
	EventStatusOngoing   EventStatus = "ongoing"
	EventStatusCompleted EventStatus = "completed"
)

// IsValid checks if the status is a valid EventStatus
func (s EventStatus) IsValid() bool {
	switch s {
	case EventStatusUpcoming, EventStatusOngoing, EventStatusCompleted:
		return true
	}
	return false
}

// Event is the aggregate root for zones, tickets and coupons
type Event struct {
	ID          string  `json:"id"`
	OrganizerID string  `json:"organizer_id"`
	Name        string  `json:"name"`
	Type        string  `json:"type,omitempty"`
	Description string  `json:"description,omitempty"`
	Window      Window  `json:"window"`
	Address     string  `json:"address,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	// Status overrides the time-derived status when set
	Status    EventStatus `json:"status,omitempty"`
	IsDeleted bool        `json:"-"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Validate validates event fields
func (e *Event) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrInvalidName
	}
	if strings.TrimSpace(e.OrganizerID) == "" {
		return ErrInvalidUserID
	}
	if e.Status != "" && !e.Status.IsValid() {
		return ErrInvalidStatus
	}
	return e.Window.Validate()
}

// StatusAt returns the explicit status, or derives it from the event window
func (e *Event) StatusAt(now time.Time) EventStatus {
	if e.Status != "" {
		return e.Status
	}
	pos, err := e.Window.Position(now)
	if err != nil {
		return EventStatusUpcoming
	}
	switch pos {
	case BeforeWindow:
		return EventStatusUpcoming
	case AfterWindow:
		return EventStatusCompleted
	default:
		return EventStatusOngoing
	}
}

// AcceptsReservations reports whether new invitations may be issued at now
func (e *Event) AcceptsReservations(now time.Time) bool {
	return !e.IsDeleted && e.StatusAt(now) != EventStatusCompleted
}
