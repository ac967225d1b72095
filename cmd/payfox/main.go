package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/ManuelReschke/PayFox/internal/pkg/cache"
	"github.com/ManuelReschke/PayFox/internal/pkg/callback"
	"github.com/ManuelReschke/PayFox/internal/pkg/config"
	"github.com/ManuelReschke/PayFox/internal/pkg/constants"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/ManuelReschke/PayFox/internal/pkg/forwarder"
	"github.com/ManuelReschke/PayFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/PayFox/internal/pkg/payment"
	"github.com/ManuelReschke/PayFox/internal/pkg/router"
	"github.com/ManuelReschke/PayFox/internal/pkg/transaction"
)

const shutdownTimeout = 15 * time.Second

// Application bundles the HTTP server with the resources it must release.
type Application struct {
	App        *fiber.App
	Config     config.Config
	cache      *redis.Client
	dispatcher *forwarder.Dispatcher
}

func main() {
	application := NewApplication()

	go func() {
		addr := fmt.Sprintf("%s:%s", application.Config.Host, application.Config.Port)
		if err := application.App.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("[Main] Shutting down")
	application.Shutdown()
}

func NewApplication() *Application {
	env.SetupEnvFile()
	cfg := config.Load()
	cfg.LogSummary()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/payfox to project root
		"../../../", // Fallback
	}

	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "views"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	client := cache.NewClient(cfg.Cache)
	store := transaction.NewRedisStore(client)

	dispatcher := forwarder.NewDispatcher(forwarder.NewClient(cfg.Forwarder), cfg.Forwarder.Workers)
	dispatcher.Start()

	processor := callback.NewProcessor(store, dispatcher, cfg.Gateway.StoreKey)
	payments := controllers.NewPaymentController(payment.NewService(store, cfg.Gateway), processor, counter.New(client))

	// init fiber app
	app := fiber.New(fiber.Config{
		Views:     html.New(basePath+"views", ".html"),
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key",
	}))

	// fiber metrics
	if cfg.MetricsPassword != "" {
		metricsAuth := basicauth.New(basicauth.Config{
			Users: map[string]string{
				cfg.MetricsUser: cfg.MetricsPassword,
			},
		})
		app.Get(constants.MetricsRoute, metricsAuth, monitor.New())
		app.Get(constants.CallbackStatsRoute, metricsAuth, payments.HandleCallbackStats)
	} else {
		log.Warn("[Main] METRICS_PASSWORD not set, /metrics disabled")
	}

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app, payments, cfg.APIKey)

	return &Application{
		App:        app,
		Config:     cfg,
		cache:      client,
		dispatcher: dispatcher,
	}
}

// Shutdown stops accepting requests, drains pending notifications and
// closes the store connection.
func (a *Application) Shutdown() {
	if err := a.App.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Errorf("[Main] HTTP shutdown: %v", err)
	}
	a.dispatcher.Stop()
	if err := a.cache.Close(); err != nil {
		log.Errorf("[Main] Closing cache client: %v", err)
	}
}
