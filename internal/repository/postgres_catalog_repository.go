package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/prohmpiriya/hayak-access/pkg/database"
	"github.com/prohmpiriya/hayak-access/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresEventRepository implements EventRepository using pgxpool
type PostgresEventRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEventRepository creates a new PostgresEventRepository
func NewPostgresEventRepository(pool *pgxpool.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

// Create inserts an event
func (r *PostgresEventRepository) Create(ctx context.Context, e *domain.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.create")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", e.ID))

	query := `
		INSERT INTO events (
			id, organizer_id, name, type, description,
			start_date, start_time, end_date, end_time, timezone,
			address, latitude, longitude, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.pool.Exec(ctx, query,
		e.ID, e.OrganizerID, e.Name, e.Type, e.Description,
		e.Window.StartDate, e.Window.StartTime, e.Window.EndDate, e.Window.EndTime, e.Window.Timezone,
		e.Address, e.Latitude, e.Longitude, string(e.Status), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		spanFail(span, err)
		return fmt.Errorf("failed to create event: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID loads a live event
func (r *PostgresEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id))

	query := `
		SELECT id, organizer_id, name, type, description,
			start_date, start_time, end_date, end_time, timezone,
			address, latitude, longitude, status, created_at, updated_at
		FROM events
		WHERE id = $1 AND NOT is_deleted
	`
	e := &domain.Event{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.OrganizerID, &e.Name, &e.Type, &e.Description,
		&e.Window.StartDate, &e.Window.StartTime, &e.Window.EndDate, &e.Window.EndTime, &e.Window.Timezone,
		&e.Address, &e.Latitude, &e.Longitude, &status, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		spanFail(span, err)
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	e.Status = domain.EventStatus(status)

	span.SetStatus(codes.Ok, "")
	return e, nil
}

// PostgresZoneRepository implements ZoneRepository. The remaining column
// is owned by the Postgres ledger; this repository only seeds it.
type PostgresZoneRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresZoneRepository creates a new PostgresZoneRepository
func NewPostgresZoneRepository(pool *pgxpool.Pool) *PostgresZoneRepository {
	return &PostgresZoneRepository{pool: pool}
}

const zoneColumns = `id, event_id, name, type, color, capacity, remaining, created_at, updated_at`

func scanZone(row pgx.Row) (*domain.Zone, error) {
	z := &domain.Zone{}
	err := row.Scan(&z.ID, &z.EventID, &z.Name, &z.Type, &z.Color, &z.Capacity, &z.Remaining, &z.CreatedAt, &z.UpdatedAt)
	return z, err
}

// Create inserts a zone
func (r *PostgresZoneRepository) Create(ctx context.Context, z *domain.Zone) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.zone.create")
	defer span.End()
	span.SetAttributes(attribute.String("zone_id", z.ID), attribute.String("event_id", z.EventID))

	query := `
		INSERT INTO event_zones (id, event_id, name, type, color, capacity, remaining, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query, z.ID, z.EventID, z.Name, z.Type, z.Color, z.Capacity, z.Remaining, z.CreatedAt, z.UpdatedAt)
	if err != nil {
		if pgCode(err) == pgForeignKeyMissing {
			return domain.ErrEventNotFound
		}
		spanFail(span, err)
		return fmt.Errorf("failed to create zone: %w", err)
	}
	return nil
}

// GetByID loads a live zone
func (r *PostgresZoneRepository) GetByID(ctx context.Context, id string) (*domain.Zone, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.zone.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("zone_id", id))

	z, err := scanZone(r.pool.QueryRow(ctx, `SELECT `+zoneColumns+` FROM event_zones WHERE id = $1 AND NOT is_deleted`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrZoneNotFound
		}
		spanFail(span, err)
		return nil, fmt.Errorf("failed to get zone: %w", err)
	}
	return z, nil
}

// ListByEvent lists the live zones of an event ordered by id
func (r *PostgresZoneRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Zone, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.zone.list_by_event")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	return r.list(ctx, `SELECT `+zoneColumns+` FROM event_zones WHERE event_id = $1 AND NOT is_deleted ORDER BY id`, eventID)
}

// ListAll pages through every live zone
func (r *PostgresZoneRepository) ListAll(ctx context.Context, limit, offset int) ([]*domain.Zone, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.zone.list_all")
	defer span.End()

	return r.list(ctx, `SELECT `+zoneColumns+` FROM event_zones WHERE NOT is_deleted ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
}

func (r *PostgresZoneRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Zone, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	defer rows.Close()

	var zones []*domain.Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan zone: %w", err)
		}
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating zones: %w", err)
	}
	return zones, nil
}

// PostgresTicketRepository implements TicketRepository
type PostgresTicketRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTicketRepository creates a new PostgresTicketRepository
func NewPostgresTicketRepository(pool *pgxpool.Pool) *PostgresTicketRepository {
	return &PostgresTicketRepository{pool: pool}
}

// Create inserts a ticket and its ticket_zones rows in one transaction
func (r *PostgresTicketRepository) Create(ctx context.Context, t *domain.Ticket) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.create")
	defer span.End()
	span.SetAttributes(attribute.String("ticket_id", t.ID), attribute.Int("zones", len(t.ZoneIDs)))

	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO tickets (
				id, event_id, name, description, type, price, discount, quantity,
				no_of_entries, color, start_date, start_time, end_date, end_time, timezone,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		`
		if _, err := tx.Exec(ctx, query,
			t.ID, t.EventID, t.Name, t.Description, t.Type, t.Price, t.Discount, t.Quantity,
			t.NoOfEntries, t.Color, t.Window.StartDate, t.Window.StartTime, t.Window.EndDate, t.Window.EndTime, t.Window.Timezone,
			t.CreatedAt, t.UpdatedAt,
		); err != nil {
			return err
		}
		for _, zoneID := range t.ZoneIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO ticket_zones (ticket_id, zone_id) VALUES ($1, $2)`, t.ID, zoneID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if pgCode(err) == pgForeignKeyMissing {
			return domain.ErrZoneNotFound
		}
		spanFail(span, err)
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

// GetByID loads a live ticket with its zone ids
func (r *PostgresTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("ticket_id", id))

	query := `
		SELECT t.id, t.event_id, t.name, t.description, t.type, t.price, t.discount,
			t.quantity, t.issued, t.issue_seq, t.no_of_entries, t.color,
			t.start_date, t.start_time, t.end_date, t.end_time, t.timezone,
			t.created_at, t.updated_at,
			ARRAY(SELECT tz.zone_id::text FROM ticket_zones tz WHERE tz.ticket_id = t.id ORDER BY tz.zone_id)
		FROM tickets t
		WHERE t.id = $1 AND NOT t.is_deleted
	`
	t := &domain.Ticket{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.EventID, &t.Name, &t.Description, &t.Type, &t.Price, &t.Discount,
		&t.Quantity, &t.Issued, &t.IssueSeq, &t.NoOfEntries, &t.Color,
		&t.Window.StartDate, &t.Window.StartTime, &t.Window.EndDate, &t.Window.EndTime, &t.Window.Timezone,
		&t.CreatedAt, &t.UpdatedAt,
		&t.ZoneIDs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		spanFail(span, err)
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return t, nil
}

// ReserveQuantity is a conditional increment on the ticket row
func (r *PostgresTicketRepository) ReserveQuantity(ctx context.Context, ticketID string) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.reserve_quantity")
	defer span.End()
	span.SetAttributes(attribute.String("ticket_id", ticketID))

	query := `
		UPDATE tickets
		SET issued = issued + 1, issue_seq = issue_seq + 1, updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted AND issued < quantity
		RETURNING issue_seq
	`
	var seq int64
	err := r.pool.QueryRow(ctx, query, ticketID).Scan(&seq)
	if err == nil {
		return seq, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		err = mapLockError(err)
		spanFail(span, err)
		return 0, fmt.Errorf("failed to reserve ticket quantity: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id = $1 AND NOT is_deleted)`, ticketID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check ticket: %w", err)
	}
	if !exists {
		return 0, domain.ErrTicketNotFound
	}
	return 0, domain.ErrQuantityExhausted
}

// ReleaseQuantity gives one unit back
func (r *PostgresTicketRepository) ReleaseQuantity(ctx context.Context, ticketID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.release_quantity")
	defer span.End()
	span.SetAttributes(attribute.String("ticket_id", ticketID))

	_, err := r.pool.Exec(ctx, `UPDATE tickets SET issued = issued - 1, updated_at = NOW() WHERE id = $1 AND issued > 0`, ticketID)
	if err != nil {
		spanFail(span, err)
		return fmt.Errorf("failed to release ticket quantity: %w", err)
	}
	return nil
}

// PostgresCouponRepository implements CouponRepository
type PostgresCouponRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCouponRepository creates a new PostgresCouponRepository
func NewPostgresCouponRepository(pool *pgxpool.Pool) *PostgresCouponRepository {
	return &PostgresCouponRepository{pool: pool}
}

const couponSelect = `
	SELECT c.id, c.event_id, c.name, c.code, c.discount_type, c.discount, c.usage, c.redeemed,
		c.until_sold_out, c.ticket_type, c.start_date, c.start_time, c.end_date, c.end_time, c.timezone,
		c.is_active, c.created_at, c.updated_at,
		ARRAY(SELECT cz.zone_id::text FROM coupon_zones cz WHERE cz.coupon_id = c.id ORDER BY cz.zone_id)
	FROM coupons c
`

func scanCoupon(row pgx.Row) (*domain.Coupon, error) {
	c := &domain.Coupon{}
	var discountType string
	var ticketType *string
	err := row.Scan(
		&c.ID, &c.EventID, &c.Name, &c.Code, &discountType, &c.Discount, &c.Usage, &c.Redeemed,
		&c.UntilSoldOut, &ticketType, &c.Window.StartDate, &c.Window.StartTime, &c.Window.EndDate, &c.Window.EndTime, &c.Window.Timezone,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
		&c.ZoneIDs,
	)
	if err != nil {
		return nil, err
	}
	c.DiscountType = domain.DiscountType(discountType)
	c.TicketType = derefString(ticketType)
	return c, nil
}

// Create inserts a coupon with its coupon_zones rows
func (r *PostgresCouponRepository) Create(ctx context.Context, c *domain.Coupon) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.coupon.create")
	defer span.End()
	span.SetAttributes(attribute.String("coupon_id", c.ID), attribute.String("event_id", c.EventID))

	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO coupons (
				id, event_id, name, code, discount_type, discount, usage, until_sold_out,
				ticket_type, start_date, start_time, end_date, end_time, timezone,
				is_active, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		`
		if _, err := tx.Exec(ctx, query,
			c.ID, c.EventID, c.Name, domain.NormalizeCouponCode(c.Code), string(c.DiscountType), c.Discount, c.Usage, c.UntilSoldOut,
			nullString(c.TicketType), c.Window.StartDate, c.Window.StartTime, c.Window.EndDate, c.Window.EndTime, c.Window.Timezone,
			c.IsActive, c.CreatedAt, c.UpdatedAt,
		); err != nil {
			return err
		}
		for _, zoneID := range c.ZoneIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO coupon_zones (coupon_id, zone_id) VALUES ($1, $2)`, c.ID, zoneID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return domain.ErrDuplicateCouponCode
		case pgForeignKeyMissing:
			return domain.ErrZoneNotFound
		}
		spanFail(span, err)
		return fmt.Errorf("failed to create coupon: %w", err)
	}
	return nil
}

// GetByID loads a live coupon
func (r *PostgresCouponRepository) GetByID(ctx context.Context, id string) (*domain.Coupon, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.coupon.get_by_id")
	defer span.End()

	c, err := scanCoupon(r.pool.QueryRow(ctx, couponSelect+` WHERE c.id = $1 AND NOT c.is_deleted`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCouponNotFound
		}
		spanFail(span, err)
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return c, nil
}

// GetByCode looks a coupon up by its normalized code within an event
func (r *PostgresCouponRepository) GetByCode(ctx context.Context, eventID, code string) (*domain.Coupon, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.coupon.get_by_code")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	c, err := scanCoupon(r.pool.QueryRow(ctx, couponSelect+` WHERE c.event_id = $1 AND c.code = $2 AND NOT c.is_deleted`,
		eventID, domain.NormalizeCouponCode(code)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCouponNotFound
		}
		spanFail(span, err)
		return nil, fmt.Errorf("failed to get coupon by code: %w", err)
	}
	return c, nil
}

// RecordRedemption is a conditional increment; losing the race to the
// last unit reports ErrCouponUsageExceeded.
func (r *PostgresCouponRepository) RecordRedemption(ctx context.Context, couponID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.coupon.record_redemption")
	defer span.End()
	span.SetAttributes(attribute.String("coupon_id", couponID))

	tag, err := r.pool.Exec(ctx, `
		UPDATE coupons SET redeemed = redeemed + 1, updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted AND (usage IS NULL OR redeemed < usage)
	`, couponID)
	if err != nil {
		err = mapLockError(err)
		spanFail(span, err)
		return fmt.Errorf("failed to record coupon redemption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCouponUsageExceeded
	}
	return nil
}

// RevokeRedemption undoes one redemption
func (r *PostgresCouponRepository) RevokeRedemption(ctx context.Context, couponID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.coupon.revoke_redemption")
	defer span.End()
	span.SetAttributes(attribute.String("coupon_id", couponID))

	_, err := r.pool.Exec(ctx, `UPDATE coupons SET redeemed = redeemed - 1, updated_at = NOW() WHERE id = $1 AND redeemed > 0`, couponID)
	if err != nil {
		spanFail(span, err)
		return fmt.Errorf("failed to revoke coupon redemption: %w", err)
	}
	return nil
}
