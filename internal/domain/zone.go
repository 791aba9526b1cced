package domain

import (
	"strings"
	"time"
)

// Zone is a capacity-limited area of an event. Remaining only moves
// through the capacity ledger.
type Zone struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type,omitempty"`
	Color     string    `json:"color,omitempty"`
	Capacity  int       `json:"capacity"`
	Remaining int       `json:"remaining"`
	IsDeleted bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate validates zone fields
func (z *Zone) Validate() error {
	if strings.TrimSpace(z.EventID) == "" {
		return ErrInvalidEventID
	}
	if strings.TrimSpace(z.Name) == "" {
		return ErrInvalidName
	}
	if z.Capacity < 0 {
		return ErrInvalidCapacity
	}
	if z.Remaining < 0 || z.Remaining > z.Capacity {
		return ErrInvalidCapacity
	}
	return nil
}
