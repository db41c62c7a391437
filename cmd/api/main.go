package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supplychain-ledger/internal/handler"
	"supplychain-ledger/internal/metrics"
	"supplychain-ledger/internal/mirror"
	"supplychain-ledger/internal/repository"
	"supplychain-ledger/internal/service"
	"supplychain-ledger/internal/ws"
	"supplychain-ledger/pkg/config"
	"supplychain-ledger/pkg/database"
	"supplychain-ledger/pkg/jwt"
	"supplychain-ledger/pkg/logger"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

func main() {
	// 1. Load Env
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{}).Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
	if envErr != nil {
		log.Debug().Msg(".env file not found, using process environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Setup Database
	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("failed to connect database")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	// 3. Seed default privileges and roles
	seedPrivilegesAndRoles(ctx, db, log)

	// 4. Setup WebSocket Hub
	wsHub := ws.NewHub(log)
	go wsHub.Run(ctx)

	ledgerMetrics := metrics.New(prometheus.DefaultRegisterer, metrics.Config{
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Env,
	})

	// 5. Dependency Injection (Wiring Layers)
	productRepo := repository.NewProductRepo(db)
	txRepo := repository.NewTransactionRepo(db)
	userRepo := repository.NewUserRepo(db)
	roleRepo := repository.NewRoleRepo(db)
	outboxRepo := repository.NewOutboxRepo(db)

	perms, err := service.LoadPermissionTable(ctx, roleRepo)
	if err != nil {
		log.Warn().Err(err).Msg("using built-in permission table")
		perms = service.DefaultPermissionTable()
	}

	if cfg.Mirror.Enabled() {
		startMirror(ctx, cfg.Mirror, outboxRepo, ledgerMetrics, log)
	}

	tokens := jwt.NewManager(cfg.JWT.Secret, time.Duration(cfg.JWT.Expiration)*time.Minute, cfg.JWT.Issuer)
	authService := service.NewAuthService(userRepo, tokens, log)
	ledgerService := service.NewLedgerService(service.LedgerDeps{
		DB:           db,
		Products:     productRepo,
		Transactions: txRepo,
		Outbox:       outboxRepo,
		Permissions:  perms,
		Hub:          wsHub,
		Metrics:      ledgerMetrics,
		Log:          log,
		Config: service.LedgerConfig{
			StrictOwnership: cfg.Ledger.StrictOwnership,
			MaxRetries:      cfg.Ledger.MaxRetries,
			Mirroring:       cfg.Mirror.Enabled(),
		},
	})
	traceService := service.NewTraceService(productRepo, txRepo, log)
	dashService := service.NewDashboardService(productRepo, txRepo, userRepo, outboxRepo, perms)

	// 6. Setup Fiber
	app := fiber.New(fiber.Config{
		AppName: cfg.App.Name,
	})

	// Middleware
	app.Use(fiberlogger.New()) // Logging request
	app.Use(recover.New())     // Panic recovery
	app.Use(cors.New())        // CORS

	// 7. Routes
	handler.SetupRoutes(app, handler.Handlers{
		Auth:        handler.NewAuthHandler(authService, log),
		Products:    handler.NewProductHandler(ledgerService, traceService, log),
		Audit:       handler.NewAuditHandler(traceService, dashService, log),
		Roles:       handler.NewRoleHandler(roleRepo, log),
		Resolver:    authService,
		Permissions: perms,
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// WebSocket Route: live feed of accepted transitions
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		wsHub.Register <- c
		defer func() { wsHub.Unregister <- c }()

		for {
			// Keep alive loop
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	}))

	// 8. Graceful Shutdown
	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()
	log.Info().Str("addr", cfg.HTTP.Addr()).Str("driver", cfg.DB.Driver).Bool("mirror", cfg.Mirror.Enabled()).Msg("ledger api started")

	<-ctx.Done()

	log.Info().Msg("shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}
	log.Info().Msg("server exited")
}

// seedPrivilegesAndRoles creates the default privileges and roles if they don't exist.
func seedPrivilegesAndRoles(ctx context.Context, db *gorm.DB, log *logger.Logger) {
	privilegeRepo := repository.NewPrivilegeRepo(db)
	roleRepo := repository.NewRoleRepo(db)

	// Privileges first; roles attach them by code
	if err := privilegeRepo.SeedDefaults(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to seed privileges")
	}
	if err := roleRepo.SeedDefaults(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to seed roles")
	}
}

// startMirror connects to the mirror target and runs the outbox worker until ctx ends.
// A failed connection only disables mirroring; the ledger keeps accepting writes.
func startMirror(ctx context.Context, cfg config.MirrorConfig, outbox repository.OutboxRepository, lm *metrics.LedgerMetrics, log *logger.Logger) {
	client, err := mirror.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Error().Err(err).Msg("mirror unavailable, outbox rows will wait")
		return
	}
	worker := service.NewMirrorWorker(outbox, mirror.NewRedisStreamMirror(client, cfg.Stream), lm, log, cfg.PollInterval, cfg.BatchSize)
	go func() {
		defer client.Close()
		worker.Run(ctx)
	}()
}
