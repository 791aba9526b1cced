package dto

import (
	"github.com/prohmpiriya/hayak-access/internal/domain"
)

// WindowRequest is the date/time window shared by events, tickets and coupons
type WindowRequest struct {
	StartDate string `json:"start_date,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

// ToDomain converts the request window; an empty timezone means UTC
func (w WindowRequest) ToDomain() domain.Window {
	tz := w.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return domain.Window{
		StartDate: w.StartDate,
		StartTime: w.StartTime,
		EndDate:   w.EndDate,
		EndTime:   w.EndTime,
		Timezone:  tz,
	}
}

// CreateEventRequest represents request to create an event
type CreateEventRequest struct {
	Name        string `json:"name" binding:"required"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	WindowRequest
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Status    string  `json:"status,omitempty"`
}

// CreateZoneRequest represents request to add a zone to an event
type CreateZoneRequest struct {
	Name     string `json:"name" binding:"required"`
	Type     string `json:"type,omitempty"`
	Color    string `json:"color,omitempty"`
	Capacity int    `json:"capacity" binding:"min=0"`
}

// CreateTicketRequest represents request to add a ticket type to an event
type CreateTicketRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type,omitempty"`
	Price       float64  `json:"price" binding:"min=0"`
	Discount    *float64 `json:"discount,omitempty"`
	Quantity    int      `json:"quantity" binding:"min=0"`
	NoOfEntries *int     `json:"no_of_entries,omitempty"`
	Color       string   `json:"color,omitempty"`
	WindowRequest
	ZoneIDs []string `json:"zone_ids,omitempty"`
}

// CreateCouponRequest represents request to add a coupon to an event
type CreateCouponRequest struct {
	Name         string  `json:"name,omitempty"`
	Code         string  `json:"code" binding:"required"`
	DiscountType string  `json:"discount_type" binding:"required,oneof=percentage fixed"`
	Discount     float64 `json:"discount" binding:"min=0"`
	Usage        *int    `json:"usage,omitempty"`
	UntilSoldOut bool    `json:"until_sold_out"`
	TicketType   string  `json:"ticket_type,omitempty"`
	WindowRequest
	ZoneIDs  []string `json:"zone_ids,omitempty"`
	IsActive *bool    `json:"is_active,omitempty"`
}

// ZoneRemainingResponse is the ledger view of one zone
type ZoneRemainingResponse struct {
	ZoneID    string `json:"zone_id"`
	Remaining int    `json:"remaining"`
}

// TicketResponse is a ticket with its live remaining quantity
type TicketResponse struct {
	*domain.Ticket
	Remaining int  `json:"remaining"`
	OnSale    bool `json:"on_sale"`
}
