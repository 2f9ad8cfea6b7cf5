package main

import (
	"context"
	"fmt"
	"log"

	common_api "crm-bridge/internal/common/api"
	"crm-bridge/internal/config"
	"crm-bridge/internal/database"
	"crm-bridge/internal/features/client"
	"crm-bridge/internal/features/espocrm"
	"crm-bridge/internal/logger"
	"crm-bridge/internal/middleware"
	"crm-bridge/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	for _, route := range routes {
		route.Setup(app)
	}
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			utils.SetSecret(cfg.JWTSecret)
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// StartDispatcher runs the sync worker for the lifetime of the app
func StartDispatcher(lc fx.Lifecycle, dispatcher *espocrm.QueueDispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go dispatcher.Run()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return dispatcher.Stop(ctx)
		},
	})
}

// StartSyncScheduler queues a full sync on the configured cron expression
func StartSyncScheduler(lc fx.Lifecycle, cfg *config.Config, dispatcher *espocrm.QueueDispatcher, zapLogger *zap.Logger) error {
	if cfg.SyncSchedule == "" {
		return nil
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc(cfg.SyncSchedule, func() {
		if err := dispatcher.Dispatch(context.Background(), espocrm.ForFullSync()); err != nil {
			zapLogger.Error("failed to queue scheduled full sync", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid SYNC_SCHEDULE %q: %w", cfg.SyncSchedule, err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			scheduler.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			<-scheduler.Stop().Done()
			return nil
		},
	})

	return nil
}

func main() {
	app := fx.New(
		fx.Provide(
			// Load Config
			config.LoadConfig,

			// Initialize Logger
			logger.NewLogger,

			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Database
			database.NewDatabase,

			// Initialize Repository
			client.NewClientRepository,
			espocrm.NewConfigRepository,
			espocrm.NewSyncLogRepository,

			// Initialize Services
			espocrm.NewApiClient,
			espocrm.NewService,

			// Sync worker
			espocrm.NewMessageHandler,
			espocrm.NewDispatcher,
			func(d *espocrm.QueueDispatcher) espocrm.Dispatcher { return d },

			// Initialize Controllers
			espocrm.NewEspoCrmController,

			// Initialize API Routes
			AsRoute(espocrm.NewEspoCrmApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			// Register Routes & Start. The worker starts before the server so
			// shutdown drains it only after the listener stops accepting work.
			RegisterAllRoutesWithAnnotation,
			StartDispatcher,
			StartSyncScheduler,
			StartServer,
		),
	)

	app.Run()
}
