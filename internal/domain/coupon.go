package domain

import (
	"math"
	"strings"
	"time"
)

// DiscountType is how a coupon reduces the price
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Coupon is a discount code scoped to one event. ZoneIDs is the
// coupon_zones mapping; empty means no zone restriction.
type Coupon struct {
	ID           string       `json:"id"`
	EventID      string       `json:"event_id"`
	Name         string       `json:"name,omitempty"`
	Code         string       `json:"code"`
	DiscountType DiscountType `json:"discount_type"`
	Discount     float64      `json:"discount"`
	// Usage caps redemptions; nil is unlimited
	Usage        *int      `json:"usage,omitempty"`
	Redeemed     int       `json:"redeemed"`
	UntilSoldOut bool      `json:"until_sold_out"`
	TicketType   string    `json:"ticket_type,omitempty"`
	Window       Window    `json:"window"`
	ZoneIDs      []string  `json:"zone_ids"`
	IsActive     bool      `json:"is_active"`
	IsDeleted    bool      `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NormalizeCouponCode is the canonical form codes are stored and matched in
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate validates coupon fields
func (c *Coupon) Validate() error {
	if strings.TrimSpace(c.EventID) == "" {
		return ErrInvalidEventID
	}
	if NormalizeCouponCode(c.Code) == "" {
		return ErrInvalidCouponCode
	}
	if math.IsNaN(c.Discount) || c.Discount < 0 {
		return ErrInvalidDiscount
	}
	switch c.DiscountType {
	case DiscountTypePercentage:
		if c.Discount > 100 {
			return ErrInvalidDiscount
		}
	case DiscountTypeFixed:
	default:
		return ErrInvalidDiscount
	}
	if c.Usage != nil && *c.Usage < 0 {
		return ErrInvalidQuantity
	}
	return c.Window.Validate()
}

// IsUsable reports whether the coupon can be looked up for redemption
func (c *Coupon) IsUsable() bool {
	return c.IsActive && !c.IsDeleted
}

// Apply computes the discounted price, rounded to cents
func (c *Coupon) Apply(price float64) float64 {
	var out float64
	switch c.DiscountType {
	case DiscountTypePercentage:
		out = price * (1 - c.Discount/100)
	default:
		out = price - c.Discount
	}
	if out < 0 {
		out = 0
	}
	return RoundCents(out)
}

// HasZoneScope reports whether the coupon restricts zones
func (c *Coupon) HasZoneScope() bool {
	return len(c.ZoneIDs) > 0
}

// CoversZone reports whether zoneID is inside the coupon zone set
func (c *Coupon) CoversZone(zoneID string) bool {
	for _, id := range c.ZoneIDs {
		if id == zoneID {
			return true
		}
	}
	return false
}

// UsageLeft reports whether another redemption fits under the cap
func (c *Coupon) UsageLeft() bool {
	return c.Usage == nil || c.Redeemed < *c.Usage
}

// DiscountResult is the outcome of a successful coupon validation
type DiscountResult struct {
	CouponID        string       `json:"coupon_id"`
	Code            string       `json:"code"`
	DiscountType    DiscountType `json:"discount_type"`
	Discount        float64      `json:"discount"`
	OriginalPrice   float64      `json:"original_price"`
	DiscountedPrice float64      `json:"discounted_price"`
	DiscountAmount  float64      `json:"discount_amount"`
}
