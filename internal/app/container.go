// Package app wires all slotline dependencies for the CLI entrypoints.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/slotlinehq/slotline/adapter/api"
	"github.com/slotlinehq/slotline/internal/audit"
	"github.com/slotlinehq/slotline/internal/notifications"
	"github.com/slotlinehq/slotline/internal/scheduling/application/commands"
	"github.com/slotlinehq/slotline/internal/scheduling/application/queries"
	"github.com/slotlinehq/slotline/internal/scheduling/application/services"
	schedulingDomain "github.com/slotlinehq/slotline/internal/scheduling/domain"
	"github.com/slotlinehq/slotline/internal/scheduling/infrastructure/cache"
	schedulingPersistence "github.com/slotlinehq/slotline/internal/scheduling/infrastructure/persistence"
	sharedApplication "github.com/slotlinehq/slotline/internal/shared/application"
	"github.com/slotlinehq/slotline/internal/shared/infrastructure/database"
	"github.com/slotlinehq/slotline/internal/shared/infrastructure/eventbus"
	"github.com/slotlinehq/slotline/internal/shared/infrastructure/migrations"
	"github.com/slotlinehq/slotline/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/slotlinehq/slotline/internal/shared/infrastructure/persistence"
	"github.com/slotlinehq/slotline/pkg/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	_ "modernc.org/sqlite"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Database. Exactly one of Pool and SQLiteDB is set.
	DBDriver database.Driver
	Pool     *pgxpool.Pool
	SQLiteDB *sql.DB

	RedisClient *redis.Client

	// Repositories
	ThreadRepo    schedulingDomain.ThreadRepository
	OpenSlotsRepo schedulingDomain.OpenSlotsRepository
	FailureRepo   schedulingDomain.FailureRepository
	OutboxRepo    outbox.Repository
	AuditRepo     audit.Repository

	UnitOfWork     sharedApplication.UnitOfWork
	EventPublisher eventbus.Publisher

	// Command handlers
	RequestAlternateHandler *commands.RequestAlternateHandler
	SelectSlotHandler       *commands.SelectSlotHandler
	RecordFailureHandler    *commands.RecordFailureHandler
	ResetFailuresHandler    *commands.ResetFailuresHandler

	// Query handlers
	GetOpenSlotsHandler      *queries.GetOpenSlotsHandler
	GetFailureSummaryHandler *queries.GetFailureSummaryHandler
	GetWorkspaceStatsHandler *queries.GetWorkspaceFailureStatsHandler

	// Workers
	OutboxProcessor *outbox.Processor
	AuditPruner     *audit.Pruner

	// Event consumption
	ConsumerRegistry *eventbus.ConsumerRegistry
	InProcessBus     *eventbus.InProcessEventBus

	// HTTP
	APIServer *api.Server

	PageCache *cache.RedisOpenSlotsCache
}

// NewContainer creates and wires all dependencies.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{
		Config:   cfg,
		Logger:   logger,
		DBDriver: database.DetectDriver(cfg.DatabaseURL),
	}

	if err := c.connectDatabase(ctx); err != nil {
		return nil, err
	}
	c.connectRedis(ctx)
	c.connectEventBus()
	c.wireHandlers()
	c.wireWorkers()
	c.wireServer()

	return c, nil
}

func (c *Container) connectDatabase(ctx context.Context) error {
	switch c.DBDriver {
	case database.DriverPostgres:
		pool, err := pgxpool.New(ctx, c.Config.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return fmt.Errorf("failed to ping database: %w", err)
		}
		c.Pool = pool

		c.ThreadRepo = schedulingPersistence.NewPostgresThreadRepository(pool)
		c.OpenSlotsRepo = schedulingPersistence.NewPostgresOpenSlotsRepository(pool)
		c.FailureRepo = schedulingPersistence.NewPostgresFailureRepository(pool)
		c.OutboxRepo = outbox.NewPostgresRepository(pool)
		c.AuditRepo = audit.NewPostgresRepository(pool)
		c.UnitOfWork = sharedPersistence.NewPostgresUnitOfWork(pool)
		c.Logger.Info("connected to postgres")

	case database.DriverSQLite:
		path := database.SQLitePath(c.Config.DatabaseURL)
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// modernc sqlite serializes writes; a single connection avoids
		// SQLITE_BUSY under concurrent handlers.
		db.SetMaxOpenConns(1)
		if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
			db.Close()
			return fmt.Errorf("failed to run sqlite migrations: %w", err)
		}
		c.SQLiteDB = db

		c.ThreadRepo = schedulingPersistence.NewSQLiteThreadRepository(db)
		c.OpenSlotsRepo = schedulingPersistence.NewSQLiteOpenSlotsRepository(db)
		c.FailureRepo = schedulingPersistence.NewSQLiteFailureRepository(db)
		c.OutboxRepo = outbox.NewSQLiteRepository(db)
		c.AuditRepo = audit.NewSQLiteRepository(db)
		c.UnitOfWork = sharedPersistence.NewSQLiteUnitOfWork(db)
		c.Logger.Info("opened sqlite database", "path", path)

	default:
		return fmt.Errorf("unsupported database driver: %s", c.DBDriver)
	}
	return nil
}

func (c *Container) connectRedis(ctx context.Context) {
	if c.Config.RedisURL == "" {
		return
	}
	opt, err := redis.ParseURL(c.Config.RedisURL)
	if err != nil {
		c.Logger.Warn("invalid Redis URL, open-slots cache disabled", "error", err)
		return
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		c.Logger.Warn("Redis not available, open-slots cache disabled", "error", err)
		return
	}
	c.RedisClient = client
	c.Logger.Info("connected to Redis")
}

func (c *Container) connectEventBus() {
	c.ConsumerRegistry = eventbus.NewConsumerRegistry(c.Logger)

	if c.Config.RabbitMQURL != "" {
		publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Logger)
		if err == nil {
			c.EventPublisher = publisher
			return
		}
		c.Logger.Warn("RabbitMQ not available, using in-process event bus", "error", err)
	}

	// Local mode: events loop straight back into registered consumers.
	bus := eventbus.NewInProcessEventBus(c.Logger)
	c.InProcessBus = bus
	c.EventPublisher = bus
}

func (c *Container) wireHandlers() {
	generator := services.NewBusinessHoursGenerator(services.DefaultGeneratorConfig())

	alternateConfig := commands.RequestAlternateConfig{
		MaxAdditionalProposals: c.Config.MaxAdditionalProposals,
		OpenSlotsTTL:           c.Config.OpenSlotsTTL,
		PublicBaseURL:          c.Config.PublicBaseURL,
	}

	c.RequestAlternateHandler = commands.NewRequestAlternateHandler(
		c.ThreadRepo, c.OpenSlotsRepo, c.OutboxRepo, c.AuditRepo, generator, c.UnitOfWork, alternateConfig)
	c.SelectSlotHandler = commands.NewSelectSlotHandler(
		c.ThreadRepo, c.OpenSlotsRepo, c.OutboxRepo, c.AuditRepo, c.UnitOfWork)
	c.RecordFailureHandler = commands.NewRecordFailureHandler(
		c.ThreadRepo, c.FailureRepo, c.AuditRepo, c.UnitOfWork)
	c.ResetFailuresHandler = commands.NewResetFailuresHandler(
		c.FailureRepo, c.AuditRepo, c.UnitOfWork)

	c.GetOpenSlotsHandler = queries.NewGetOpenSlotsHandler(c.OpenSlotsRepo)
	c.GetFailureSummaryHandler = queries.NewGetFailureSummaryHandler(c.ThreadRepo, c.FailureRepo)
	c.GetWorkspaceStatsHandler = queries.NewGetWorkspaceFailureStatsHandler(c.FailureRepo)
}

func (c *Container) wireWorkers() {
	if c.Config.OutboxProcessorEnabled {
		processorConfig := outbox.DefaultProcessorConfig()
		processorConfig.PollInterval = c.Config.OutboxPollInterval
		processorConfig.BatchSize = c.Config.OutboxBatchSize
		processorConfig.MaxRetries = c.Config.OutboxMaxRetries
		c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, processorConfig, c.Logger)
	}

	c.AuditPruner = audit.NewPruner(c.AuditRepo, audit.PrunerConfig{
		Interval:  c.Config.AuditPruneInterval,
		Retention: c.Config.AuditRetention,
	}, c.Logger)

	if dispatcher := c.notificationDispatcher(); dispatcher != nil {
		c.ConsumerRegistry.Register(dispatcher)
		if c.InProcessBus != nil {
			c.InProcessBus.GetRegistry().Register(dispatcher)
		}
	}
}

func (c *Container) notificationDispatcher() *notifications.Dispatcher {
	var clients []notifications.Client
	if url := c.Config.SlackWebhookURL; url != "" {
		clients = append(clients, notifications.NewSlackClient(notifications.DefaultWebhookConfig("slack", url), c.Logger))
	}
	if url := c.Config.ChatworkWebhookURL; url != "" {
		clients = append(clients, notifications.NewChatworkClient(notifications.DefaultWebhookConfig("chatwork", url), c.Logger))
	}
	if url := c.Config.SMSWebhookURL; url != "" {
		clients = append(clients, notifications.NewSMSClient(notifications.DefaultWebhookConfig("sms", url), c.Logger))
	}
	if len(clients) == 0 {
		return nil
	}
	return notifications.NewDispatcher(clients, c.Logger)
}

func (c *Container) wireServer() {
	var openSlots api.OpenSlotsReader = c.GetOpenSlotsHandler
	var invalidator api.PageInvalidator
	if c.RedisClient != nil {
		pageCache := cache.NewRedisOpenSlotsCache(c.RedisClient, c.GetOpenSlotsHandler, cache.DefaultPageTTL, c.Logger)
		c.PageCache = pageCache
		openSlots = pageCache
		invalidator = pageCache
	}

	handler := api.NewSchedulingHandler(api.SchedulingHandlerConfig{
		RequestAlternate: c.RequestAlternateHandler,
		SelectSlot:       c.SelectSlotHandler,
		RecordFailure:    c.RecordFailureHandler,
		ResetFailures:    c.ResetFailuresHandler,
		FailureSummary:   c.GetFailureSummaryHandler,
		WorkspaceStats:   c.GetWorkspaceStatsHandler,
		OpenSlots:        openSlots,
		PageCache:        invalidator,
		AuditRepo:        c.AuditRepo,
		Logger:           c.Logger,
	})

	serverConfig := api.DefaultServerConfig()
	serverConfig.Addr = c.Config.ServerAddr
	c.APIServer = api.NewServer(serverConfig, handler, c.Logger)
}

// RunMigrations applies the schema for the connected driver. SQLite
// migrations already ran on open; this is the explicit `migrate` entrypoint.
func (c *Container) RunMigrations(ctx context.Context) error {
	switch c.DBDriver {
	case database.DriverPostgres:
		return migrations.RunPostgresMigrations(ctx, c.Pool)
	case database.DriverSQLite:
		return migrations.RunSQLiteMigrations(ctx, c.SQLiteDB)
	default:
		return fmt.Errorf("unsupported database driver: %s", c.DBDriver)
	}
}

// Close releases all held connections.
func (c *Container) Close() {
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("failed to close event publisher", "error", err)
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("failed to close redis client", "error", err)
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
	if c.SQLiteDB != nil {
		if err := c.SQLiteDB.Close(); err != nil {
			c.Logger.Warn("failed to close sqlite database", "error", err)
		}
	}
}
