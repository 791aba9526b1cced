package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/hayak-access/internal/domain"
	pkgredis "github.com/prohmpiriya/hayak-access/pkg/redis"
	"github.com/prohmpiriya/hayak-access/pkg/telemetry"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed scripts/reserve_zone.lua
var reserveZoneScript string

//go:embed scripts/confirm_zone.lua
var confirmZoneScript string

//go:embed scripts/release_zone.lua
var releaseZoneScript string

//go:embed scripts/sync_zone.lua
var syncZoneScript string

var (
	scriptReserveZone = pkgredis.Script{Name: "reserve_zone", Source: reserveZoneScript}
	scriptConfirmZone = pkgredis.Script{Name: "confirm_zone", Source: confirmZoneScript}
	scriptReleaseZone = pkgredis.Script{Name: "release_zone", Source: releaseZoneScript}
	scriptSyncZone    = pkgredis.Script{Name: "sync_zone", Source: syncZoneScript}
)

const holdExpiryKey = "zone:holds:expiry"

const (
	// DefaultHoldRetention keeps held and confirmed hold records long enough
	// for a late decline to find them.
	DefaultHoldRetention = 90 * 24 * time.Hour
	// releasedHoldRetention keeps a released record around so a repeated
	// release still reports ErrAlreadyReleased.
	releasedHoldRetention = 24 * time.Hour
)

func zoneLedgerKey(zoneID string) string { return "zone:ledger:" + zoneID }
func zoneHoldKey(token string) string    { return "zone:hold:" + token }

// scriptErrors maps Lua error codes to domain errors
var scriptErrors = map[string]error{
	"ZONE_NOT_FOUND":        domain.ErrZoneNotFound,
	"INSUFFICIENT_CAPACITY": domain.ErrInsufficientCapacity,
	"HOLD_NOT_FOUND":        domain.ErrHoldNotFound,
	"ALREADY_RELEASED":      domain.ErrAlreadyReleased,
}

// RedisZoneLedger implements ZoneLedger with Lua scripts. Redis runs each
// script alone, so a script is the serialization point for its zone.
type RedisZoneLedger struct {
	client    *pkgredis.Client
	retention time.Duration
}

// NewRedisZoneLedger creates a new RedisZoneLedger
func NewRedisZoneLedger(client *pkgredis.Client) *RedisZoneLedger {
	return &RedisZoneLedger{client: client, retention: DefaultHoldRetention}
}

// WithRetention sets how long hold records live after their last change.
// Non-positive values keep the default.
func (l *RedisZoneLedger) WithRetention(d time.Duration) *RedisZoneLedger {
	if d > 0 {
		l.retention = d
	}
	return l
}

// LoadScripts preloads every ledger script
func (l *RedisZoneLedger) LoadScripts(ctx context.Context) error {
	for _, s := range []pkgredis.Script{scriptReserveZone, scriptConfirmZone, scriptReleaseZone, scriptSyncZone} {
		if _, err := l.client.LoadScript(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Reserve implements ZoneLedger
func (l *RedisZoneLedger) Reserve(ctx context.Context, zoneID string, count int, now, expiresAt time.Time) (*domain.ZoneHold, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.ledger.reserve")
	defer span.End()
	span.SetAttributes(attribute.String("zone_id", zoneID), attribute.Int("count", count))

	token := uuid.New().String()
	keys := []string{zoneLedgerKey(zoneID), zoneHoldKey(token), holdExpiryKey}
	args := []interface{}{
		count,                      // ARGV[1]: count
		token,                      // ARGV[2]: token
		now.UnixMilli(),            // ARGV[3]: now
		expiresAt.UnixMilli(),      // ARGV[4]: expires_at
		zoneID,                     // ARGV[5]: zone_id
		l.retention.Milliseconds(), // ARGV[6]: record ttl
	}

	values, err := l.run(ctx, scriptReserveZone, keys, args...)
	if err != nil {
		spanFail(span, err)
		return nil, err
	}

	remaining, _ := toInt64(values[1])
	eventID, _ := values[2].(string)
	span.SetAttributes(attribute.Int64("remaining", remaining))
	span.SetStatus(codes.Ok, "")

	return &domain.ZoneHold{
		Token:     token,
		ZoneID:    zoneID,
		EventID:   eventID,
		Count:     count,
		Status:    domain.HoldStatusHeld,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}

// Confirm implements ZoneLedger
func (l *RedisZoneLedger) Confirm(ctx context.Context, token string, now time.Time) (*domain.ZoneHold, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.ledger.confirm")
	defer span.End()
	span.SetAttributes(attribute.String("token", token))

	values, err := l.run(ctx, scriptConfirmZone, []string{zoneHoldKey(token), holdExpiryKey},
		token, now.UnixMilli(), l.retention.Milliseconds())
	if err != nil {
		spanFail(span, err)
		return nil, err
	}
	return holdFromPairs(token, values[1])
}

// Release implements ZoneLedger. The hold is read first so the script can
// declare the zone key it touches.
func (l *RedisZoneLedger) Release(ctx context.Context, token string, now time.Time) (*domain.ZoneHold, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.ledger.release")
	defer span.End()
	span.SetAttributes(attribute.String("token", token))

	zoneID, err := l.client.Client().HGet(ctx, zoneHoldKey(token), "zone_id").Result()
	if err != nil {
		if errors.Is(err, pkgredis.Nil) {
			return nil, domain.ErrHoldNotFound
		}
		spanFail(span, err)
		return nil, fmt.Errorf("failed to read hold: %w", err)
	}

	keys := []string{zoneHoldKey(token), holdExpiryKey, zoneLedgerKey(zoneID)}
	values, err := l.run(ctx, scriptReleaseZone, keys, token, now.UnixMilli(), releasedHoldRetention.Milliseconds())
	if err != nil {
		spanFail(span, err)
		return nil, err
	}
	return holdFromPairs(token, values[1])
}

// Remaining implements ZoneLedger
func (l *RedisZoneLedger) Remaining(ctx context.Context, zoneID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.ledger.remaining")
	defer span.End()

	remaining, err := l.client.Client().HGet(ctx, zoneLedgerKey(zoneID), "remaining").Int()
	if err != nil {
		if errors.Is(err, pkgredis.Nil) {
			return 0, domain.ErrZoneNotFound
		}
		spanFail(span, err)
		return 0, fmt.Errorf("failed to read remaining: %w", err)
	}
	return remaining, nil
}

// ExpiredHolds implements ZoneLedger
func (l *RedisZoneLedger) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*domain.ZoneHold, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.ledger.expired_holds")
	defer span.End()

	tokens, err := l.client.Client().ZRangeByScore(ctx, holdExpiryKey, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		spanFail(span, err)
		return nil, fmt.Errorf("failed to list expired holds: %w", err)
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	pipe := l.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(tokens))
	for i, token := range tokens {
		cmds[i] = pipe.HGetAll(ctx, zoneHoldKey(token))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		spanFail(span, err)
		return nil, fmt.Errorf("failed to load expired holds: %w", err)
	}

	holds := make([]*domain.ZoneHold, 0, len(tokens))
	var orphans []interface{}
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// the record outlived its retention; drop the index entry
			orphans = append(orphans, tokens[i])
			continue
		}
		h, err := holdFromMap(tokens[i], fields)
		if err != nil {
			return nil, err
		}
		if h.Status == domain.HoldStatusHeld {
			holds = append(holds, h)
		}
	}
	if len(orphans) > 0 {
		if err := l.client.Client().ZRem(ctx, holdExpiryKey, orphans...).Err(); err != nil {
			spanFail(span, err)
			return nil, fmt.Errorf("failed to prune expired hold index: %w", err)
		}
	}
	return holds, nil
}

// SyncZone seeds the zone counter. Without force an existing counter is
// kept so live holds are not overwritten.
func (l *RedisZoneLedger) SyncZone(ctx context.Context, zone *domain.Zone, force bool) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.ledger.sync_zone")
	defer span.End()
	span.SetAttributes(attribute.String("zone_id", zone.ID), attribute.Bool("force", force))

	forceArg := "0"
	if force {
		forceArg = "1"
	}
	err := l.client.Run(ctx, scriptSyncZone, []string{zoneLedgerKey(zone.ID)},
		zone.Capacity, zone.Remaining, zone.EventID, forceArg).Err()
	if err != nil {
		spanFail(span, err)
		return fmt.Errorf("failed to sync zone %s: %w", zone.ID, err)
	}
	return nil
}

// run executes a ledger script and converts {0, code, message} replies
// into domain errors.
func (l *RedisZoneLedger) run(ctx context.Context, s pkgredis.Script, keys []string, args ...interface{}) ([]interface{}, error) {
	result := l.client.Run(ctx, s, keys, args...)
	if result.Err() != nil {
		return nil, fmt.Errorf("failed to execute %s script: %w", s.Name, result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to parse script result: %w", err)
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("unexpected script result length: %d", len(values))
	}

	success, _ := toInt64(values[0])
	if success == 1 {
		return values, nil
	}

	errorCode, _ := values[1].(string)
	if mapped, ok := scriptErrors[errorCode]; ok {
		return nil, mapped
	}
	return nil, fmt.Errorf("%s script failed: %s", s.Name, errorCode)
}

func holdFromPairs(token string, raw interface{}) (*domain.ZoneHold, error) {
	pairs, ok := raw.([]interface{})
	if !ok || len(pairs)%2 != 0 {
		return nil, fmt.Errorf("unexpected hold payload for %s", token)
	}
	fields := make(map[string]string, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		v, _ := pairs[i+1].(string)
		fields[k] = v
	}
	return holdFromMap(token, fields)
}

func holdFromMap(token string, fields map[string]string) (*domain.ZoneHold, error) {
	count, err := strconv.Atoi(fields["count"])
	if err != nil {
		return nil, fmt.Errorf("invalid hold count for %s: %w", token, err)
	}
	h := &domain.ZoneHold{
		Token:       token,
		ZoneID:      fields["zone_id"],
		EventID:     fields["event_id"],
		Count:       count,
		Status:      domain.HoldStatus(fields["status"]),
		CreatedAt:   msToTime(fields["created_at"]),
		ExpiresAt:   msToTime(fields["expires_at"]),
		ConfirmedAt: optionalMs(fields["confirmed_at"]),
		ReleasedAt:  optionalMs(fields["released_at"]),
	}
	return h, nil
}

func msToTime(s string) time.Time {
	ms, _ := strconv.ParseInt(s, 10, 64)
	return time.UnixMilli(ms).UTC()
}

func optionalMs(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := msToTime(s)
	return &t
}

// toInt64 converts interface{} to int64
func toInt64(v interface{}) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case float64:
		return int64(val), nil
	case string:
		return strconv.ParseInt(val, 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", v)
	}
}
