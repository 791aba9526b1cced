package di

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/hayak-access/internal/repository"
	"github.com/prohmpiriya/hayak-access/pkg/config"
	"github.com/prohmpiriya/hayak-access/pkg/logger"
	pkgredis "github.com/prohmpiriya/hayak-access/pkg/redis"
)

func testConfig(backend string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "hayak-test", Environment: "test"},
		Allocation: config.AllocationConfig{
			LedgerBackend:   backend,
			HoldTTL:         time.Minute,
			LockTimeout:     time.Second,
			RequestTimeout:  5 * time.Second,
			ConflictRetries: 3,
			BarcodeSecret:   "secret",
		},
	}
}

func TestNewContainer_Memory(t *testing.T) {
	c, err := NewContainer(context.Background(), &ContainerConfig{
		Config: testConfig(config.LedgerBackendMemory),
		Logger: logger.Nop(),
	})
	require.NoError(t, err)

	assert.IsType(t, &repository.MemoryZoneLedger{}, c.ZoneLedger)
	assert.IsType(t, &repository.MemoryInvitationRepository{}, c.InvitationRepo)
	assert.IsType(t, &repository.MemoryAuditRepository{}, c.AuditRepo)
	assert.NotNil(t, c.EventPublisher)
	assert.NotNil(t, c.AllocationService)

	routes := c.Routes()
	assert.NotNil(t, routes.Health)
	assert.NotNil(t, routes.Allocation)
}

func TestNewContainer_RedisLedger(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := pkgredis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rdb.Close() })

	c, err := NewContainer(context.Background(), &ContainerConfig{
		Config: testConfig(config.LedgerBackendRedis),
		Redis:  rdb,
		Logger: logger.Nop(),
	})
	require.NoError(t, err)
	assert.IsType(t, &repository.RedisZoneLedger{}, c.ZoneLedger)
}

func TestNewContainer_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *ContainerConfig
	}{
		{name: "missing config", cfg: &ContainerConfig{}},
		{name: "postgres without database", cfg: &ContainerConfig{Config: testConfig(config.LedgerBackendPostgres)}},
		{name: "redis without client", cfg: &ContainerConfig{Config: testConfig(config.LedgerBackendRedis)}},
		{name: "unknown backend", cfg: &ContainerConfig{Config: testConfig("etcd")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Logger = logger.Nop()
			_, err := NewContainer(context.Background(), tt.cfg)
			assert.Error(t, err)
		})
	}
}
