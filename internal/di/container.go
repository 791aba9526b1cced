package di

import (
	"context"
	"fmt"
	"strings"

	"github.com/prohmpiriya/hayak-access/internal/clock"
	"github.com/prohmpiriya/hayak-access/internal/handler"
	"github.com/prohmpiriya/hayak-access/internal/repository"
	"github.com/prohmpiriya/hayak-access/internal/service"
	"github.com/prohmpiriya/hayak-access/pkg/config"
	"github.com/prohmpiriya/hayak-access/pkg/database"
	"github.com/prohmpiriya/hayak-access/pkg/logger"
	pkgredis "github.com/prohmpiriya/hayak-access/pkg/redis"
)

// Container holds all dependencies of the allocation engine
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *pkgredis.Client
	Mongo *database.MongoDB
	Clock clock.Clock

	// Repositories
	EventRepo      repository.EventRepository
	ZoneRepo       repository.ZoneRepository
	TicketRepo     repository.TicketRepository
	CouponRepo     repository.CouponRepository
	InvitationRepo repository.InvitationRepository
	AuditRepo      repository.AuditRepository
	ZoneLedger     repository.ZoneLedger

	// Publishers
	EventPublisher service.EventPublisher

	// Services
	LedgerService     service.LedgerService
	CatalogService    service.CatalogService
	CouponValidator   service.CouponValidator
	InvitationService service.InvitationService
	AllocationService service.AllocationService

	// Handlers
	HealthHandler     *handler.HealthHandler
	CatalogHandler    *handler.CatalogHandler
	AllocationHandler *handler.AllocationHandler
	InvitationHandler *handler.InvitationHandler
}

// ContainerConfig contains configuration for building the container.
// DB, Redis and Mongo are optional; what is missing falls back to the
// in-memory implementation where the configuration allows it.
type ContainerConfig struct {
	Config         *config.Config
	DB             *database.PostgresDB
	Redis          *pkgredis.Client
	Mongo          *database.MongoDB
	EventPublisher service.EventPublisher
	Clock          clock.Clock
	Logger         *logger.Logger
	ServiceName    string
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *ContainerConfig) (*Container, error) {
	if cfg.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	app := cfg.Config
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	c := &Container{
		DB:             cfg.DB,
		Redis:          cfg.Redis,
		Mongo:          cfg.Mongo,
		Clock:          cfg.Clock,
		EventPublisher: cfg.EventPublisher,
	}
	if c.Clock == nil {
		c.Clock = clock.System()
	}
	if c.EventPublisher == nil {
		c.EventPublisher = service.NewNoOpEventPublisher()
	}

	c.buildCatalogRepositories()

	ledger, err := c.buildLedger(ctx, &app.Allocation)
	if err != nil {
		return nil, err
	}
	c.ZoneLedger = ledger

	if c.Mongo != nil {
		collection := app.MongoDB.Collection
		if collection == "" {
			collection = "invitation_audit"
		}
		audit := repository.NewMongoAuditRepository(c.Mongo.Collection(collection))
		if err := audit.EnsureIndexes(ctx); err != nil {
			log.Warn("failed to ensure audit indexes", "error", err)
		}
		c.AuditRepo = audit
	} else {
		c.AuditRepo = repository.NewMemoryAuditRepository()
	}

	// Services
	c.LedgerService = service.NewLedgerService(c.ZoneLedger, c.Clock, log, &service.LedgerServiceConfig{
		HoldTTL: app.Allocation.HoldTTL,
	})
	c.CatalogService = service.NewCatalogService(c.EventRepo, c.ZoneRepo, c.TicketRepo, c.CouponRepo, c.LedgerService, c.Clock)
	c.CouponValidator = service.NewCouponValidator(c.CouponRepo, c.TicketRepo, c.LedgerService)
	c.InvitationService = service.NewInvitationService(
		c.InvitationRepo,
		c.TicketRepo,
		c.AuditRepo,
		c.LedgerService,
		c.CouponValidator,
		c.EventPublisher,
		service.NewBarcodeSigner(app.Allocation.BarcodeSecret),
		c.Clock,
		log,
		&service.InvitationServiceConfig{ConflictRetries: app.Allocation.ConflictRetries},
	)
	c.AllocationService = service.NewAllocationService(
		c.CatalogService,
		c.LedgerService,
		c.CouponValidator,
		c.InvitationService,
		c.InvitationRepo,
		c.Clock,
		log,
		&service.AllocationServiceConfig{RequestTimeout: app.Allocation.RequestTimeout},
	)

	// Handlers
	checks := map[string]handler.HealthChecker{}
	if c.DB != nil {
		checks["database"] = c.DB
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis
	}
	if c.Mongo != nil {
		checks["mongodb"] = c.Mongo
	}
	c.HealthHandler = handler.NewHealthHandler(cfg.ServiceName, checks)
	c.CatalogHandler = handler.NewCatalogHandler(c.CatalogService, c.LedgerService)
	c.AllocationHandler = handler.NewAllocationHandler(c.AllocationService)
	c.InvitationHandler = handler.NewInvitationHandler(c.InvitationService)

	return c, nil
}

func (c *Container) buildCatalogRepositories() {
	if c.DB != nil {
		pool := c.DB.Pool()
		c.EventRepo = repository.NewPostgresEventRepository(pool)
		c.ZoneRepo = repository.NewPostgresZoneRepository(pool)
		c.TicketRepo = repository.NewPostgresTicketRepository(pool)
		c.CouponRepo = repository.NewPostgresCouponRepository(pool)
		c.InvitationRepo = repository.NewPostgresInvitationRepository(pool)
		return
	}
	c.EventRepo = repository.NewMemoryEventRepository()
	c.ZoneRepo = repository.NewMemoryZoneRepository()
	c.TicketRepo = repository.NewMemoryTicketRepository()
	c.CouponRepo = repository.NewMemoryCouponRepository()
	c.InvitationRepo = repository.NewMemoryInvitationRepository()
}

func (c *Container) buildLedger(ctx context.Context, cfg *config.AllocationConfig) (repository.ZoneLedger, error) {
	switch strings.ToLower(cfg.LedgerBackend) {
	case config.LedgerBackendPostgres, "":
		if c.DB == nil {
			return nil, fmt.Errorf("ledger backend %q requires a database", config.LedgerBackendPostgres)
		}
		return repository.NewPostgresZoneLedger(c.DB.Pool(), cfg.LockTimeout), nil
	case config.LedgerBackendRedis:
		if c.Redis == nil {
			return nil, fmt.Errorf("ledger backend %q requires redis", config.LedgerBackendRedis)
		}
		ledger := repository.NewRedisZoneLedger(c.Redis).WithRetention(cfg.HoldRetention)
		if err := ledger.LoadScripts(ctx); err != nil {
			return nil, fmt.Errorf("failed to load ledger scripts: %w", err)
		}
		return ledger, nil
	case config.LedgerBackendMemory:
		return repository.NewMemoryZoneLedger(cfg.LockTimeout), nil
	}
	return nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
}

// Routes returns the handler set for RegisterRoutes
func (c *Container) Routes() *handler.Handlers {
	return &handler.Handlers{
		Health:     c.HealthHandler,
		Catalog:    c.CatalogHandler,
		Allocation: c.AllocationHandler,
		Invitation: c.InvitationHandler,
	}
}
