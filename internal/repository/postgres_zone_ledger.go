package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/prohmpiriya/hayak-access/pkg/database"
	"github.com/prohmpiriya/hayak-access/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// PostgresZoneLedger keeps the counter in event_zones.remaining and the
// tokens in zone_holds. Row locks serialize writers per zone; waits are
// bounded by lock_timeout.
type PostgresZoneLedger struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresZoneLedger creates a new PostgresZoneLedger
func NewPostgresZoneLedger(pool *pgxpool.Pool, lockTimeout time.Duration) *PostgresZoneLedger {
	return &PostgresZoneLedger{pool: pool, lockTimeout: lockTimeout}
}

// setLockTimeout bounds how long statements in tx wait for row locks
func (l *PostgresZoneLedger) setLockTimeout(ctx context.Context, tx pgx.Tx) error {
	ms := l.lockTimeout.Milliseconds()
	if ms <= 0 {
		return nil
	}
	_, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms))
	return err
}

const holdColumns = `token::text, zone_id::text, event_id::text, count, status, created_at, expires_at, confirmed_at, released_at`

func scanHold(row pgx.Row) (*domain.ZoneHold, error) {
	h := &domain.ZoneHold{}
	var status string
	if err := row.Scan(&h.Token, &h.ZoneID, &h.EventID, &h.Count, &status, &h.CreatedAt, &h.ExpiresAt, &h.ConfirmedAt, &h.ReleasedAt); err != nil {
		return nil, err
	}
	h.Status = domain.HoldStatus(status)
	return h, nil
}

// Reserve decrements the zone counter and inserts the held token
func (l *PostgresZoneLedger) Reserve(ctx context.Context, zoneID string, count int, now, expiresAt time.Time) (*domain.ZoneHold, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.reserve")
	defer span.End()
	span.SetAttributes(attribute.String("zone_id", zoneID), attribute.Int("count", count))

	hold := &domain.ZoneHold{
		Token:     uuid.New().String(),
		ZoneID:    zoneID,
		Count:     count,
		Status:    domain.HoldStatusHeld,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	err := database.WithTx(ctx, l.pool, func(tx pgx.Tx) error {
		if err := l.setLockTimeout(ctx, tx); err != nil {
			return err
		}

		err := tx.QueryRow(ctx, `
			UPDATE event_zones SET remaining = remaining - $2, updated_at = NOW()
			WHERE id = $1 AND NOT is_deleted AND remaining >= $2
			RETURNING event_id::text
		`, zoneID, count).Scan(&hold.EventID)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM event_zones WHERE id = $1 AND NOT is_deleted)`, zoneID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return domain.ErrZoneNotFound
			}
			return domain.ErrInsufficientCapacity
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO zone_holds (token, zone_id, event_id, count, status, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, hold.Token, hold.ZoneID, hold.EventID, hold.Count, string(hold.Status), hold.CreatedAt, hold.ExpiresAt)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrZoneNotFound) || errors.Is(err, domain.ErrInsufficientCapacity) {
			return nil, err
		}
		err = mapLockError(err)
		spanFail(span, err)
		if errors.Is(err, domain.ErrTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to reserve zone capacity: %w", err)
	}
	return hold, nil
}

// Confirm marks a held token confirmed
func (l *PostgresZoneLedger) Confirm(ctx context.Context, token string, now time.Time) (*domain.ZoneHold, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.confirm")
	defer span.End()
	span.SetAttributes(attribute.String("token", token))

	hold, err := scanHold(l.pool.QueryRow(ctx, `
		UPDATE zone_holds SET status = 'confirmed', confirmed_at = $2
		WHERE token = $1 AND status = 'held'
		RETURNING `+holdColumns, token, now))
	if err == nil {
		return hold, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		spanFail(span, err)
		return nil, fmt.Errorf("failed to confirm hold: %w", mapLockError(err))
	}

	hold, err = scanHold(l.pool.QueryRow(ctx, `SELECT `+holdColumns+` FROM zone_holds WHERE token = $1`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrHoldNotFound
		}
		return nil, fmt.Errorf("failed to load hold: %w", err)
	}
	if hold.Status == domain.HoldStatusReleased {
		return nil, domain.ErrAlreadyReleased
	}
	return hold, nil
}

// Release marks the token released and restores the zone counter in one
// transaction.
func (l *PostgresZoneLedger) Release(ctx context.Context, token string, now time.Time) (*domain.ZoneHold, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.release")
	defer span.End()
	span.SetAttributes(attribute.String("token", token))

	var hold *domain.ZoneHold
	err := database.WithTx(ctx, l.pool, func(tx pgx.Tx) error {
		if err := l.setLockTimeout(ctx, tx); err != nil {
			return err
		}

		h, err := scanHold(tx.QueryRow(ctx, `
			UPDATE zone_holds SET status = 'released', released_at = $2
			WHERE token = $1 AND status <> 'released'
			RETURNING `+holdColumns, token, now))
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM zone_holds WHERE token = $1)`, token).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return domain.ErrHoldNotFound
			}
			return domain.ErrAlreadyReleased
		}
		if err != nil {
			return err
		}
		hold = h

		_, err = tx.Exec(ctx, `
			UPDATE event_zones SET remaining = LEAST(capacity, remaining + $2), updated_at = NOW()
			WHERE id = $1
		`, h.ZoneID, h.Count)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrHoldNotFound) || errors.Is(err, domain.ErrAlreadyReleased) {
			return nil, err
		}
		err = mapLockError(err)
		spanFail(span, err)
		if errors.Is(err, domain.ErrTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to release hold: %w", err)
	}
	return hold, nil
}

// Remaining reads event_zones.remaining
func (l *PostgresZoneLedger) Remaining(ctx context.Context, zoneID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.remaining")
	defer span.End()

	var remaining int
	err := l.pool.QueryRow(ctx, `SELECT remaining FROM event_zones WHERE id = $1 AND NOT is_deleted`, zoneID).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrZoneNotFound
		}
		spanFail(span, err)
		return 0, fmt.Errorf("failed to read remaining: %w", err)
	}
	return remaining, nil
}

// ExpiredHolds lists held tokens past their expiry, oldest first
func (l *PostgresZoneLedger) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*domain.ZoneHold, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.expired_holds")
	defer span.End()

	rows, err := l.pool.Query(ctx, `
		SELECT `+holdColumns+` FROM zone_holds
		WHERE status = 'held' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		spanFail(span, err)
		return nil, fmt.Errorf("failed to list expired holds: %w", err)
	}
	defer rows.Close()

	var holds []*domain.ZoneHold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hold: %w", err)
		}
		holds = append(holds, h)
	}
	return holds, rows.Err()
}

// SyncZone is a no-op: the zone row is the counter
func (l *PostgresZoneLedger) SyncZone(ctx context.Context, zone *domain.Zone, force bool) error {
	return nil
}
