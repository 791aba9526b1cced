package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/prohmpiriya/hayak-access/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresInvitationRepository implements InvitationRepository using pgxpool
type PostgresInvitationRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresInvitationRepository creates a new PostgresInvitationRepository
func NewPostgresInvitationRepository(pool *pgxpool.Pool) *PostgresInvitationRepository {
	return &PostgresInvitationRepository{pool: pool}
}

const invitationSelect = `
	SELECT id, event_id, user_id, ticket_id, ticket_type, ticket_no, barcode, state,
		coupon_id::text, coupon_discount, price, final_price, holds,
		checkin, checkout, entry_count, actioned_at, idempotency_key, version,
		created_at, updated_at
	FROM invitations
`

func scanInvitation(row pgx.Row) (*domain.Invitation, error) {
	inv := &domain.Invitation{}
	var state string
	var idemKey *string
	err := row.Scan(
		&inv.ID, &inv.EventID, &inv.UserID, &inv.TicketID, &inv.TicketType, &inv.TicketNo, &inv.Barcode, &state,
		&inv.CouponID, &inv.CouponDiscount, &inv.Price, &inv.FinalPrice, &inv.Holds,
		&inv.Checkin, &inv.Checkout, &inv.EntryCount, &inv.ActionedAt, &idemKey, &inv.Version,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.State = domain.InvitationState(state)
	inv.IdempotencyKey = derefString(idemKey)
	return inv, nil
}

// Create inserts a new invitation. Barcode, ticket number and the
// per-user idempotency key are unique.
func (r *PostgresInvitationRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.invitation.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("invitation_id", inv.ID),
		attribute.String("event_id", inv.EventID),
		attribute.String("ticket_id", inv.TicketID),
	)

	holds := inv.Holds
	if holds == nil {
		holds = []domain.HoldRef{}
	}

	query := `
		INSERT INTO invitations (
			id, event_id, user_id, ticket_id, ticket_type, ticket_no, barcode, state,
			coupon_id, coupon_discount, price, final_price, holds,
			entry_count, idempotency_key, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := r.pool.Exec(ctx, query,
		inv.ID, inv.EventID, inv.UserID, inv.TicketID, inv.TicketType, inv.TicketNo, inv.Barcode, string(inv.State),
		inv.CouponID, inv.CouponDiscount, inv.Price, inv.FinalPrice, holds,
		inv.EntryCount, nullString(inv.IdempotencyKey), inv.Version, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return domain.ErrInvitationAlreadyExists
		}
		spanFail(span, err)
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (r *PostgresInvitationRepository) getOne(ctx context.Context, spanName, where string, args ...interface{}) (*domain.Invitation, error) {
	ctx, span := telemetry.StartSpan(ctx, spanName)
	defer span.End()

	inv, err := scanInvitation(r.pool.QueryRow(ctx, invitationSelect+where, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvitationNotFound
		}
		spanFail(span, err)
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// GetByID retrieves an invitation by id
func (r *PostgresInvitationRepository) GetByID(ctx context.Context, id string) (*domain.Invitation, error) {
	return r.getOne(ctx, "repo.postgres.invitation.get_by_id", ` WHERE id = $1`, id)
}

// GetByBarcode retrieves an invitation by its scanned barcode
func (r *PostgresInvitationRepository) GetByBarcode(ctx context.Context, barcode string) (*domain.Invitation, error) {
	return r.getOne(ctx, "repo.postgres.invitation.get_by_barcode", ` WHERE barcode = $1`, barcode)
}

// GetByIdempotencyKey retrieves the invitation a user created with key
func (r *PostgresInvitationRepository) GetByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Invitation, error) {
	return r.getOne(ctx, "repo.postgres.invitation.get_by_idempotency_key",
		` WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
}

// Update writes the lifecycle columns when the stored version matches
func (r *PostgresInvitationRepository) Update(ctx context.Context, inv *domain.Invitation) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.invitation.update")
	defer span.End()

	span.SetAttributes(
		attribute.String("invitation_id", inv.ID),
		attribute.String("state", string(inv.State)),
		attribute.Int("version", inv.Version),
	)

	query := `
		UPDATE invitations
		SET state = $2, checkin = $3, checkout = $4, entry_count = $5,
			actioned_at = $6, version = version + 1, updated_at = $7
		WHERE id = $1 AND version = $8
	`
	tag, err := r.pool.Exec(ctx, query,
		inv.ID, string(inv.State), inv.Checkin, inv.Checkout, inv.EntryCount,
		inv.ActionedAt, inv.UpdatedAt, inv.Version,
	)
	if err != nil {
		spanFail(span, err)
		return fmt.Errorf("failed to update invitation: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM invitations WHERE id = $1)`, inv.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check invitation: %w", err)
		}
		if !exists {
			return domain.ErrInvitationNotFound
		}
		return domain.ErrConcurrencyConflict
	}

	inv.Version++
	span.SetStatus(codes.Ok, "")
	return nil
}
