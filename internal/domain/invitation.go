package domain

import (
	"time"
)

// InvitationState is a state of the invitation lifecycle
type InvitationState string

const (
	StatePending    InvitationState = "pending"
	StateAccepted   InvitationState = "accepted"
	StateDeclined   InvitationState = "declined"
	StateCheckedIn  InvitationState = "checked_in"
	StateCheckedOut InvitationState = "checked_out"
)

// IsValid checks if the state is known
func (s InvitationState) IsValid() bool {
	switch s {
	case StatePending, StateAccepted, StateDeclined, StateCheckedIn, StateCheckedOut:
		return true
	}
	return false
}

// Action is an input to the lifecycle state machine
type Action string

const (
	ActionCreate   Action = "create"
	ActionAccept   Action = "accept"
	ActionDecline  Action = "decline"
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
	// ActionExpire is recorded when an abandoned hold is swept
	ActionExpire Action = "expire"
)

type transitionKey struct {
	from   InvitationState
	action Action
}

// transition is one cell of the table: either a target state, a no-op, or
// a rejection.
type transition struct {
	to   InvitationState
	noop bool
	err  error
}

// transitions is the complete lifecycle table. Missing cells are invalid.
var transitions = map[transitionKey]transition{
	{StatePending, ActionAccept}:   {to: StateAccepted},
	{StatePending, ActionDecline}:  {to: StateDeclined},
	{StatePending, ActionCheckIn}:  {err: ErrNotAccepted},
	{StatePending, ActionCheckOut}: {err: ErrNotCheckedIn},

	{StateAccepted, ActionAccept}:   {noop: true},
	{StateAccepted, ActionDecline}:  {err: ErrInvalidTransition},
	{StateAccepted, ActionCheckIn}:  {to: StateCheckedIn},
	{StateAccepted, ActionCheckOut}: {err: ErrNotCheckedIn},

	{StateDeclined, ActionAccept}:   {err: ErrInvalidTransition},
	{StateDeclined, ActionDecline}:  {noop: true},
	{StateDeclined, ActionCheckIn}:  {err: ErrNotAccepted},
	{StateDeclined, ActionCheckOut}: {err: ErrNotCheckedIn},

	{StateCheckedIn, ActionAccept}:   {noop: true},
	{StateCheckedIn, ActionDecline}:  {err: ErrInvalidTransition},
	{StateCheckedIn, ActionCheckIn}:  {err: ErrAlreadyCheckedIn},
	{StateCheckedIn, ActionCheckOut}: {to: StateCheckedOut},

	{StateCheckedOut, ActionAccept}:   {noop: true},
	{StateCheckedOut, ActionDecline}:  {err: ErrInvalidTransition},
	{StateCheckedOut, ActionCheckIn}:  {to: StateCheckedIn},
	{StateCheckedOut, ActionCheckOut}: {err: ErrNotCheckedIn},
}

// NextState looks up the transition table. changed is false for no-ops.
func NextState(from InvitationState, action Action) (to InvitationState, changed bool, err error) {
	t, ok := transitions[transitionKey{from, action}]
	if !ok {
		return from, false, ErrInvalidTransition
	}
	if t.err != nil {
		return from, false, t.err
	}
	if t.noop {
		return from, false, nil
	}
	return t.to, true, nil
}

// Invitation is the per-attendee record
type Invitation struct {
	ID             string          `json:"id"`
	EventID        string          `json:"event_id"`
	UserID         string          `json:"user_id"`
	TicketID       string          `json:"ticket_id"`
	TicketType     string          `json:"ticket_type"`
	TicketNo       string          `json:"ticket_no"`
	Barcode        string          `json:"barcode"`
	State          InvitationState `json:"state"`
	CouponID       *string         `json:"coupon_id,omitempty"`
	CouponDiscount float64         `json:"coupon_discount"`
	Price          float64         `json:"price"`
	FinalPrice     float64         `json:"final_price"`
	Holds          []HoldRef       `json:"holds"`
	// Checkin is the most recent check-in; Checkout is cleared on check-in
	// so that Checkout, when set, always follows Checkin.
	Checkin        *time.Time `json:"checkin,omitempty"`
	Checkout       *time.Time `json:"checkout,omitempty"`
	EntryCount     int        `json:"entry_count"`
	ActionedAt     *time.Time `json:"actioned_at,omitempty"`
	IdempotencyKey string     `json:"-"`
	Version        int        `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ZoneIDs returns the zones held for this invitation
func (i *Invitation) ZoneIDs() []string {
	ids := make([]string, 0, len(i.Holds))
	for _, h := range i.Holds {
		ids = append(ids, h.ZoneID)
	}
	return ids
}

// HoldTokens returns the reservation tokens of this invitation
func (i *Invitation) HoldTokens() []string {
	tokens := make([]string, 0, len(i.Holds))
	for _, h := range i.Holds {
		tokens = append(tokens, h.Token)
	}
	return tokens
}

// Accept moves pending to accepted
func (i *Invitation) Accept(at time.Time) (bool, error) {
	to, changed, err := NextState(i.State, ActionAccept)
	if err != nil || !changed {
		return false, err
	}
	i.State = to
	i.ActionedAt = &at
	i.UpdatedAt = at
	return true, nil
}

// Decline moves pending to declined
func (i *Invitation) Decline(at time.Time) (bool, error) {
	to, changed, err := NextState(i.State, ActionDecline)
	if err != nil || !changed {
		return false, err
	}
	i.State = to
	i.ActionedAt = &at
	i.UpdatedAt = at
	return true, nil
}

// CheckIn records an entry. entryLimit is the lifetime number of
// check-ins allowed; 0 is unlimited.
func (i *Invitation) CheckIn(at time.Time, entryLimit int) error {
	to, _, err := NextState(i.State, ActionCheckIn)
	if err != nil {
		return err
	}
	if entryLimit > 0 && i.EntryCount >= entryLimit {
		return ErrEntriesExhausted
	}
	if i.Checkout != nil && at.Before(*i.Checkout) {
		return ErrCheckinBeforeCheckout
	}
	i.State = to
	i.Checkin = &at
	i.Checkout = nil
	i.EntryCount++
	i.UpdatedAt = at
	return nil
}

// CheckOut closes the open check-in; at must be strictly after it
func (i *Invitation) CheckOut(at time.Time) error {
	to, _, err := NextState(i.State, ActionCheckOut)
	if err != nil {
		return err
	}
	if i.Checkin == nil || !at.After(*i.Checkin) {
		return ErrCheckoutBeforeCheckin
	}
	i.State = to
	i.Checkout = &at
	i.UpdatedAt = at
	return nil
}

// Clone returns a deep copy for optimistic update attempts
func (i *Invitation) Clone() *Invitation {
	c := *i
	c.Holds = append([]HoldRef(nil), i.Holds...)
	if i.CouponID != nil {
		id := *i.CouponID
		c.CouponID = &id
	}
	c.Checkin = cloneTime(i.Checkin)
	c.Checkout = cloneTime(i.Checkout)
	c.ActionedAt = cloneTime(i.ActionedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
