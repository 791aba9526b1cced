package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Not found errors
	ErrEventNotFound      = errors.New("event not found")
	ErrZoneNotFound       = errors.New("zone not found")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrHoldNotFound       = errors.New("reservation token not found")

	// Capacity errors
	ErrInsufficientCapacity = errors.New("insufficient zone capacity")
	ErrQuantityExhausted    = errors.New("ticket quantity exhausted")
	ErrAlreadyReleased      = errors.New("reservation already released")

	// Sale errors
	ErrTicketNotOnSale = errors.New("ticket is not on sale")
	ErrEventClosed     = errors.New("event is not open for reservations")
	ErrZoneNotGranted  = errors.New("zone is not granted by ticket")

	// ErrCouponInvalid is wrapped by every coupon rejection
	ErrCouponInvalid = errors.New("coupon invalid")

	ErrCouponNotFound           = fmt.Errorf("%w: coupon not found", ErrCouponInvalid)
	ErrCouponNotYetValid        = fmt.Errorf("%w: coupon not yet valid", ErrCouponInvalid)
	ErrCouponExpired            = fmt.Errorf("%w: coupon expired", ErrCouponInvalid)
	ErrCouponTicketTypeMismatch = fmt.Errorf("%w: coupon does not apply to this ticket type", ErrCouponInvalid)
	ErrCouponZoneMismatch       = fmt.Errorf("%w: coupon does not apply to the selected zones", ErrCouponInvalid)
	ErrCouponUsageExceeded      = fmt.Errorf("%w: coupon usage limit reached", ErrCouponInvalid)
	ErrCouponSoldOut            = fmt.Errorf("%w: coupon only valid until sold out", ErrCouponInvalid)

	// Lifecycle errors
	ErrInvalidTransition     = errors.New("invalid invitation transition")
	ErrNotAccepted           = errors.New("invitation not accepted")
	ErrNotCheckedIn          = errors.New("invitation not checked in")
	ErrAlreadyCheckedIn      = errors.New("invitation already checked in")
	ErrEntriesExhausted      = errors.New("no entries left on ticket")
	ErrCheckoutBeforeCheckin = errors.New("checkout must be later than checkin")
	ErrCheckinBeforeCheckout = errors.New("checkin must not precede the last checkout")

	// Concurrency errors
	ErrTimeout             = errors.New("timed out waiting for capacity lock")
	ErrConcurrencyConflict = errors.New("concurrent modification, retry")

	// Conflict errors
	ErrInvitationAlreadyExists = errors.New("invitation already exists")
	ErrDuplicateCouponCode     = errors.New("coupon code already exists for event")

	// Validation errors
	ErrInvalidEventID    = errors.New("invalid event id")
	ErrInvalidUserID     = errors.New("invalid user id")
	ErrInvalidTicketID   = errors.New("invalid ticket id")
	ErrInvalidZoneID     = errors.New("invalid zone id")
	ErrInvalidName       = errors.New("name is required")
	ErrInvalidCount      = errors.New("count must be greater than zero")
	ErrInvalidCapacity   = errors.New("capacity cannot be negative")
	ErrInvalidPrice      = errors.New("price cannot be negative")
	ErrInvalidQuantity   = errors.New("quantity cannot be negative")
	ErrInvalidDiscount   = errors.New("invalid discount")
	ErrInvalidTimezone   = errors.New("invalid timezone")
	ErrInvalidWindow     = errors.New("invalid date/time window")
	ErrInvalidCouponCode = errors.New("invalid coupon code")
	ErrInvalidEntries    = errors.New("no_of_entries cannot be negative")
	ErrZoneEventMismatch = errors.New("zone belongs to a different event")
	ErrInvalidScan       = errors.New("invalid or tampered barcode payload")
	ErrInvalidStatus     = errors.New("invalid status")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrZoneNotFound) ||
		errors.Is(err, ErrTicketNotFound) ||
		errors.Is(err, ErrInvitationNotFound) ||
		errors.Is(err, ErrHoldNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidTicketID) ||
		errors.Is(err, ErrInvalidZoneID) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidCount) ||
		errors.Is(err, ErrInvalidCapacity) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidDiscount) ||
		errors.Is(err, ErrInvalidTimezone) ||
		errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrInvalidCouponCode) ||
		errors.Is(err, ErrInvalidEntries) ||
		errors.Is(err, ErrZoneEventMismatch) ||
		errors.Is(err, ErrInvalidScan) ||
		errors.Is(err, ErrInvalidStatus)
}

// IsCouponError checks if the error is a coupon rejection
func IsCouponError(err error) bool {
	return errors.Is(err, ErrCouponInvalid)
}

// IsLifecycleError checks if the error is a state machine rejection
func IsLifecycleError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNotAccepted) ||
		errors.Is(err, ErrNotCheckedIn) ||
		errors.Is(err, ErrAlreadyCheckedIn) ||
		errors.Is(err, ErrEntriesExhausted) ||
		errors.Is(err, ErrCheckoutBeforeCheckin) ||
		errors.Is(err, ErrCheckinBeforeCheckout)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInsufficientCapacity) ||
		errors.Is(err, ErrQuantityExhausted) ||
		errors.Is(err, ErrAlreadyReleased) ||
		errors.Is(err, ErrInvitationAlreadyExists) ||
		errors.Is(err, ErrDuplicateCouponCode) ||
		errors.Is(err, ErrConcurrencyConflict)
}

// IsRetryable reports whether the caller may retry the same request
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// errorCodes is checked in order; specific coupon errors come before the
// generic ErrCouponInvalid they wrap.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrEventNotFound, "EVENT_NOT_FOUND"},
	{ErrZoneNotFound, "ZONE_NOT_FOUND"},
	{ErrTicketNotFound, "TICKET_NOT_FOUND"},
	{ErrInvitationNotFound, "INVITATION_NOT_FOUND"},
	{ErrHoldNotFound, "RESERVATION_NOT_FOUND"},
	{ErrInsufficientCapacity, "INSUFFICIENT_CAPACITY"},
	{ErrQuantityExhausted, "QUANTITY_EXHAUSTED"},
	{ErrAlreadyReleased, "ALREADY_RELEASED"},
	{ErrTicketNotOnSale, "TICKET_NOT_ON_SALE"},
	{ErrEventClosed, "EVENT_CLOSED"},
	{ErrZoneNotGranted, "ZONE_NOT_GRANTED"},
	{ErrCouponNotFound, "COUPON_NOT_FOUND"},
	{ErrCouponNotYetValid, "COUPON_NOT_YET_VALID"},
	{ErrCouponExpired, "COUPON_EXPIRED"},
	{ErrCouponTicketTypeMismatch, "COUPON_TICKET_TYPE_MISMATCH"},
	{ErrCouponZoneMismatch, "COUPON_ZONE_MISMATCH"},
	{ErrCouponUsageExceeded, "COUPON_USAGE_EXCEEDED"},
	{ErrCouponSoldOut, "COUPON_SOLD_OUT"},
	{ErrCouponInvalid, "COUPON_INVALID"},
	{ErrInvalidTransition, "INVALID_TRANSITION"},
	{ErrNotAccepted, "NOT_ACCEPTED"},
	{ErrNotCheckedIn, "NOT_CHECKED_IN"},
	{ErrAlreadyCheckedIn, "ALREADY_CHECKED_IN"},
	{ErrEntriesExhausted, "ENTRIES_EXHAUSTED"},
	{ErrCheckoutBeforeCheckin, "CHECKOUT_BEFORE_CHECKIN"},
	{ErrCheckinBeforeCheckout, "CHECKIN_BEFORE_CHECKOUT"},
	{ErrTimeout, "TIMEOUT"},
	{ErrConcurrencyConflict, "CONCURRENCY_CONFLICT"},
	{ErrInvitationAlreadyExists, "INVITATION_ALREADY_EXISTS"},
	{ErrDuplicateCouponCode, "DUPLICATE_COUPON_CODE"},
	{ErrInvalidScan, "INVALID_SCAN"},
	{ErrZoneEventMismatch, "ZONE_EVENT_MISMATCH"},
}

// ErrorCode returns the stable API code for err
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	if IsValidationError(err) {
		return "VALIDATION_ERROR"
	}
	return "INTERNAL_ERROR"
}
