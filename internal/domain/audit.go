package domain

import "time"

// AuditEntry records one invitation transition
type AuditEntry struct {
	ID           string            `json:"id" bson:"_id"`
	InvitationID string            `json:"invitation_id" bson:"invitation_id"`
	EventID      string            `json:"event_id" bson:"event_id"`
	Action       Action            `json:"action" bson:"action"`
	FromState    InvitationState   `json:"from_state,omitempty" bson:"from_state,omitempty"`
	ToState      InvitationState   `json:"to_state" bson:"to_state"`
	ActorID      string            `json:"actor_id,omitempty" bson:"actor_id,omitempty"`
	At           time.Time         `json:"at" bson:"at"`
	Metadata     map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// InvitationEventType names a published lifecycle event
type InvitationEventType string

const (
	InvitationEventCreated    InvitationEventType = "invitation.created"
	InvitationEventAccepted   InvitationEventType = "invitation.accepted"
	InvitationEventDeclined   InvitationEventType = "invitation.declined"
	InvitationEventCheckedIn  InvitationEventType = "invitation.checked_in"
	InvitationEventCheckedOut InvitationEventType = "invitation.checked_out"
)

// EventTypeFor maps a lifecycle action to its published event type
func EventTypeFor(action Action) InvitationEventType {
	switch action {
	case ActionCreate:
		return InvitationEventCreated
	case ActionAccept:
		return InvitationEventAccepted
	case ActionDecline:
		return InvitationEventDeclined
	case ActionCheckIn:
		return InvitationEventCheckedIn
	case ActionCheckOut:
		return InvitationEventCheckedOut
	}
	return InvitationEventType("invitation." + string(action))
}

// InvitationEvent is the domain event published for each transition
type InvitationEvent struct {
	EventID      string              `json:"event_id"`
	EventType    InvitationEventType `json:"event_type"`
	OccurredAt   time.Time           `json:"occurred_at"`
	InvitationID string              `json:"invitation_id"`
	EventRefID   string              `json:"event_ref_id"`
	UserID       string              `json:"user_id"`
	TicketID     string              `json:"ticket_id"`
	State        InvitationState     `json:"state"`
	EntryCount   int                 `json:"entry_count"`
	FinalPrice   float64             `json:"final_price"`
}

// NewInvitationEvent builds the published event for inv
func NewInvitationEvent(id string, action Action, inv *Invitation, at time.Time) *InvitationEvent {
	return &InvitationEvent{
		EventID:      id,
		EventType:    EventTypeFor(action),
		OccurredAt:   at,
		InvitationID: inv.ID,
		EventRefID:   inv.EventID,
		UserID:       inv.UserID,
		TicketID:     inv.TicketID,
		State:        inv.State,
		EntryCount:   inv.EntryCount,
		FinalPrice:   inv.FinalPrice,
	}
}

// Key is the partition key; all events of one invitation stay ordered
func (e *InvitationEvent) Key() string {
	return e.InvitationID
}
