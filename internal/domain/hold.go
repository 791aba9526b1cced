package domain

import "time"

// HoldStatus is the state of a reservation token
type HoldStatus string

const (
	HoldStatusHeld      HoldStatus = "held"
	HoldStatusConfirmed HoldStatus = "confirmed"
	HoldStatusReleased  HoldStatus = "released"
)

// ZoneHold is a reservation token: a capacity decrement that is either
// provisional (held), permanent (confirmed) or returned (released).
type ZoneHold struct {
	Token       string     `json:"token"`
	ZoneID      string     `json:"zone_id"`
	EventID     string     `json:"event_id"`
	Count       int        `json:"count"`
	Status      HoldStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
}

// IsExpiredAt reports whether an unconfirmed hold outlived its TTL
func (h *ZoneHold) IsExpiredAt(now time.Time) bool {
	return h.Status == HoldStatusHeld && !now.Before(h.ExpiresAt)
}

// HoldRef is the part of a hold an invitation keeps
type HoldRef struct {
	Token  string `json:"token"`
	ZoneID string `json:"zone_id"`
	Count  int    `json:"count"`
}
