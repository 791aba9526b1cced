package dto

import (
	"time"

	"github.com/prohmpiriya/hayak-access/internal/domain"
)

// ReserveRequest represents request to reserve a ticket with zone capacity
type ReserveRequest struct {
	EventID    string   `json:"event_id" binding:"required"`
	TicketID   string   `json:"ticket_id" binding:"required"`
	ZoneIDs    []string `json:"zone_ids,omitempty"`
	CouponCode string   `json:"coupon_code,omitempty"`
	// IdempotencyKey falls back to the X-Idempotency-Key header
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ValidateCouponRequest represents a dry-run coupon check
type ValidateCouponRequest struct {
	EventID  string   `json:"event_id" binding:"required"`
	Code     string   `json:"code" binding:"required"`
	TicketID string   `json:"ticket_id" binding:"required"`
	ZoneIDs  []string `json:"zone_ids,omitempty"`
}

// TransitionRequest carries an optional explicit timestamp for check-in
// and check-out; the server clock is used when absent.
type TransitionRequest struct {
	At *time.Time `json:"at,omitempty"`
}

// ScanRequest is a scanned QR payload
type ScanRequest struct {
	Payload string     `json:"payload" binding:"required"`
	At      *time.Time `json:"at,omitempty"`
}

// InvitationStatusResponse is the compact state view
type InvitationStatusResponse struct {
	ID         string                 `json:"id"`
	State      domain.InvitationState `json:"state"`
	EntryCount int                    `json:"entry_count"`
	Checkin    *time.Time             `json:"checkin,omitempty"`
	Checkout   *time.Time             `json:"checkout,omitempty"`
}

// NewInvitationStatusResponse builds the compact view
func NewInvitationStatusResponse(inv *domain.Invitation) *InvitationStatusResponse {
	return &InvitationStatusResponse{
		ID:         inv.ID,
		State:      inv.State,
		EntryCount: inv.EntryCount,
		Checkin:    inv.Checkin,
		Checkout:   inv.Checkout,
	}
}
