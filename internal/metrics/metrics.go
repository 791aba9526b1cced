package metrics

import (
	"context"
	"sync"

	"github.com/prohmpiriya/hayak-access/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Allocation counters
	ReservationsCreated *telemetry.Counter
	ReservationsFailed  *telemetry.Counter
	HoldsReleased       *telemetry.Counter
	HoldsExpired        *telemetry.Counter
	CouponsRedeemed     *telemetry.Counter

	// Lifecycle counters
	Transitions       *telemetry.Counter
	TransitionsFailed *telemetry.Counter

	// Histograms
	ReservationDuration *telemetry.Histogram

	// Gauges
	PendingInvitations *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all allocation metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	counters := []struct {
		dst  **telemetry.Counter
		opts telemetry.MetricOpts
	}{
		{&ReservationsCreated, telemetry.MetricOpts{Name: "allocation_reservations_total", Description: "Invitations created by the allocation engine", Unit: "1"}},
		{&ReservationsFailed, telemetry.MetricOpts{Name: "allocation_failures_total", Description: "Reservations rejected or rolled back", Unit: "1"}},
		{&HoldsReleased, telemetry.MetricOpts{Name: "ledger_holds_released_total", Description: "Zone holds returned to capacity", Unit: "1"}},
		{&HoldsExpired, telemetry.MetricOpts{Name: "ledger_holds_expired_total", Description: "Unconfirmed zone holds released by the expiry worker", Unit: "1"}},
		{&CouponsRedeemed, telemetry.MetricOpts{Name: "coupon_redemptions_total", Description: "Coupon redemptions recorded", Unit: "1"}},
		{&Transitions, telemetry.MetricOpts{Name: "invitation_transitions_total", Description: "Invitation state transitions", Unit: "1"}},
		{&TransitionsFailed, telemetry.MetricOpts{Name: "invitation_transition_failures_total", Description: "Rejected invitation transitions", Unit: "1"}},
	}
	for _, c := range counters {
		counter, err := telemetry.NewCounter(c.opts)
		if err != nil {
			return err
		}
		*c.dst = counter
	}

	var err error
	ReservationDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "allocation_reservation_duration_seconds",
		Description: "Time to run the reservation saga",
		Unit:        "s",
	})
	if err != nil {
		return err
	}

	PendingInvitations, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "invitations_pending",
		Description: "Invitations waiting for accept or decline",
		Unit:        "1",
	})
	return err
}

// RecordReservation records a successful reservation
func RecordReservation(ctx context.Context, eventID, ticketID string, zones int, durationSeconds float64) {
	if ReservationsCreated != nil {
		ReservationsCreated.Inc(ctx,
			attribute.String("event_id", eventID),
			attribute.String("ticket_id", ticketID),
			attribute.Int("zones", zones),
		)
	}
	if ReservationDuration != nil {
		ReservationDuration.Record(ctx, durationSeconds, attribute.String("event_id", eventID))
	}
	if PendingInvitations != nil {
		PendingInvitations.Inc(ctx)
	}
}

// RecordReservationFailure records a rejected or compensated reservation
func RecordReservationFailure(ctx context.Context, eventID, reason string) {
	if ReservationsFailed != nil {
		ReservationsFailed.Inc(ctx,
			attribute.String("event_id", eventID),
			attribute.String("reason", reason),
		)
	}
}

// RecordHoldRelease records holds given back
func RecordHoldRelease(ctx context.Context, zoneID string, count int) {
	if HoldsReleased != nil {
		HoldsReleased.Add(ctx, int64(count), attribute.String("zone_id", zoneID))
	}
}

// RecordHoldExpiry records holds swept by the expiry worker
func RecordHoldExpiry(ctx context.Context, count int64) {
	if HoldsExpired != nil {
		HoldsExpired.Add(ctx, count)
	}
}

// RecordCouponRedemption records a redemption
func RecordCouponRedemption(ctx context.Context, eventID, code string) {
	if CouponsRedeemed != nil {
		CouponsRedeemed.Inc(ctx,
			attribute.String("event_id", eventID),
			attribute.String("code", code),
		)
	}
}

// RecordTransition records a lifecycle transition; pending invitations
// leave the gauge on accept or decline.
func RecordTransition(ctx context.Context, action, from, to string) {
	if Transitions != nil {
		Transitions.Inc(ctx,
			attribute.String("action", action),
			attribute.String("to", to),
		)
	}
	if PendingInvitations != nil && from == "pending" && to != "pending" {
		PendingInvitations.Dec(ctx)
	}
}

// RecordTransitionFailure records a rejected transition
func RecordTransitionFailure(ctx context.Context, action, reason string) {
	if TransitionsFailed != nil {
		TransitionsFailed.Inc(ctx,
			attribute.String("action", action),
			attribute.String("reason", reason),
		)
	}
}
