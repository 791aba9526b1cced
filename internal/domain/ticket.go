package domain

import (
	"math"
	"strings"
	"time"
)

// Ticket is a sellable ticket type. ZoneIDs is the ticket_zones mapping;
// an empty set means general admission.
type Ticket struct {
	ID          string  `json:"id"`
	EventID     string  `json:"event_id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Type        string  `json:"type"`
	Price       float64 `json:"price"`
	// Discount is a fixed amount off Price, applied before any coupon
	Discount *float64 `json:"discount,omitempty"`
	Quantity int      `json:"quantity"`
	Issued   int      `json:"issued"`
	IssueSeq int64    `json:"-"`
	// NoOfEntries limits lifetime check-ins; nil or 0 is unlimited
	NoOfEntries *int      `json:"no_of_entries,omitempty"`
	Color       string    `json:"color,omitempty"`
	Window      Window    `json:"window"`
	ZoneIDs     []string  `json:"zone_ids"`
	IsDeleted   bool      `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate validates ticket fields
func (t *Ticket) Validate() error {
	if strings.TrimSpace(t.EventID) == "" {
		return ErrInvalidEventID
	}
	if strings.TrimSpace(t.Name) == "" {
		return ErrInvalidName
	}
	if t.Price < 0 || math.IsNaN(t.Price) {
		return ErrInvalidPrice
	}
	if t.Discount != nil && (*t.Discount < 0 || math.IsNaN(*t.Discount)) {
		return ErrInvalidDiscount
	}
	if t.Quantity < 0 {
		return ErrInvalidQuantity
	}
	if t.NoOfEntries != nil && *t.NoOfEntries < 0 {
		return ErrInvalidEntries
	}
	return t.Window.Validate()
}

// NetPrice is the list price after the ticket's own discount
func (t *Ticket) NetPrice() float64 {
	price := t.Price
	if t.Discount != nil {
		price -= *t.Discount
	}
	if price < 0 {
		price = 0
	}
	return RoundCents(price)
}

// RemainingQuantity is quantity minus issued invitations
func (t *Ticket) RemainingQuantity() int {
	if r := t.Quantity - t.Issued; r > 0 {
		return r
	}
	return 0
}

// EntryLimit returns the lifetime check-in limit, 0 meaning unlimited
func (t *Ticket) EntryLimit() int {
	if t.NoOfEntries == nil {
		return 0
	}
	return *t.NoOfEntries
}

// IsGeneralAdmission reports whether the ticket has no zone restriction
func (t *Ticket) IsGeneralAdmission() bool {
	return len(t.ZoneIDs) == 0
}

// Grants reports whether the ticket unlocks zoneID
func (t *Ticket) Grants(zoneID string) bool {
	for _, id := range t.ZoneIDs {
		if id == zoneID {
			return true
		}
	}
	return false
}
