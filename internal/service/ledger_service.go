package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/prohmpiriya/hayak-access/internal/clock"
	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/prohmpiriya/hayak-access/internal/metrics"
	"github.com/prohmpiriya/hayak-access/internal/repository"
	"github.com/prohmpiriya/hayak-access/pkg/logger"
	"github.com/prohmpiriya/hayak-access/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// LedgerService is the zone capacity ledger
type LedgerService interface {
	// Reserve takes count units from one zone and returns a held token
	Reserve(ctx context.Context, zoneID string, count int) (*domain.ZoneHold, error)

	// ReserveAll reserves count units in every zone, in ascending zone id
	// order. Either every zone is held or none is.
	ReserveAll(ctx context.Context, zoneIDs []string, count int) ([]*domain.ZoneHold, error)

	// Confirm makes a held token permanent
	Confirm(ctx context.Context, token string) (*domain.ZoneHold, error)

	// Release returns a token's capacity
	Release(ctx context.Context, token string) (*domain.ZoneHold, error)

	// ReleaseAll releases every token, skipping ones already released
	ReleaseAll(ctx context.Context, tokens []string) error

	// Remaining reads a zone's counter
	Remaining(ctx context.Context, zoneID string) (int, error)

	// ReleaseExpired releases up to limit holds that were never confirmed
	ReleaseExpired(ctx context.Context, limit int) (int, error)

	// SyncZone registers a zone with the ledger backend
	SyncZone(ctx context.Context, zone *domain.Zone, force bool) error
}

// LedgerServiceConfig contains configuration for the ledger service
type LedgerServiceConfig struct {
	HoldTTL time.Duration
}

type ledgerService struct {
	ledger  repository.ZoneLedger
	clock   clock.Clock
	log     *logger.Logger
	holdTTL time.Duration
}

// NewLedgerService creates a new ledger service
func NewLedgerService(ledger repository.ZoneLedger, clk clock.Clock, log *logger.Logger, cfg *LedgerServiceConfig) LedgerService {
	ttl := 2 * time.Minute
	if cfg != nil && cfg.HoldTTL > 0 {
		ttl = cfg.HoldTTL
	}
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = logger.Get()
	}
	return &ledgerService{ledger: ledger, clock: clk, log: log, holdTTL: ttl}
}

func (s *ledgerService) Reserve(ctx context.Context, zoneID string, count int) (*domain.ZoneHold, error) {
	if zoneID == "" {
		return nil, domain.ErrInvalidZoneID
	}
	if count <= 0 {
		return nil, domain.ErrInvalidCount
	}
	now := s.clock.Now()
	return s.ledger.Reserve(ctx, zoneID, count, now, now.Add(s.holdTTL))
}

func (s *ledgerService) ReserveAll(ctx context.Context, zoneIDs []string, count int) ([]*domain.ZoneHold, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ledger.reserve_all")
	defer span.End()

	ordered := SortedUnique(zoneIDs)
	span.SetAttributes(attribute.StringSlice("zone_ids", ordered), attribute.Int("count", count))

	holds := make([]*domain.ZoneHold, 0, len(ordered))
	for _, zoneID := range ordered {
		hold, err := s.Reserve(ctx, zoneID, count)
		if err != nil {
			telemetry.RecordError(span, err)
			if relErr := s.releaseHolds(context.WithoutCancel(ctx), holds); relErr != nil {
				s.log.ErrorContext(ctx, "failed to release partial zone reservation", "zone_id", zoneID, "error", relErr)
			}
			return nil, fmt.Errorf("zone %s: %w", zoneID, err)
		}
		holds = append(holds, hold)
	}
	return holds, nil
}

func (s *ledgerService) releaseHolds(ctx context.Context, holds []*domain.ZoneHold) error {
	tokens := make([]string, 0, len(holds))
	for _, h := range holds {
		tokens = append(tokens, h.Token)
	}
	return s.ReleaseAll(ctx, tokens)
}

func (s *ledgerService) Confirm(ctx context.Context, token string) (*domain.ZoneHold, error) {
	return s.ledger.Confirm(ctx, token, s.clock.Now())
}

func (s *ledgerService) Release(ctx context.Context, token string) (*domain.ZoneHold, error) {
	hold, err := s.ledger.Release(ctx, token, s.clock.Now())
	if err != nil {
		return nil, err
	}
	metrics.RecordHoldRelease(ctx, hold.ZoneID, hold.Count)
	return hold, nil
}

func (s *ledgerService) ReleaseAll(ctx context.Context, tokens []string) error {
	var errs []error
	for i := len(tokens) - 1; i >= 0; i-- {
		if _, err := s.Release(ctx, tokens[i]); err != nil && !errors.Is(err, domain.ErrAlreadyReleased) {
			errs = append(errs, fmt.Errorf("release %s: %w", tokens[i], err))
		}
	}
	return errors.Join(errs...)
}

func (s *ledgerService) Remaining(ctx context.Context, zoneID string) (int, error) {
	return s.ledger.Remaining(ctx, zoneID)
}

func (s *ledgerService) ReleaseExpired(ctx context.Context, limit int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ledger.release_expired")
	defer span.End()

	holds, err := s.ledger.ExpiredHolds(ctx, s.clock.Now(), limit)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}

	released := 0
	for _, h := range holds {
		if _, err := s.Release(ctx, h.Token); err != nil {
			if errors.Is(err, domain.ErrAlreadyReleased) {
				continue
			}
			s.log.WarnContext(ctx, "failed to release expired hold", "token", h.Token, "zone_id", h.ZoneID, "error", err)
			continue
		}
		released++
	}

	span.SetAttributes(attribute.Int("released", released))
	if released > 0 {
		metrics.RecordHoldExpiry(ctx, int64(released))
	}
	return released, nil
}

func (s *ledgerService) SyncZone(ctx context.Context, zone *domain.Zone, force bool) error {
	return s.ledger.SyncZone(ctx, zone, force)
}

// SortedUnique returns the distinct non-empty ids in ascending order
func SortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
