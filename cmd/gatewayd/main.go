// Command gatewayd runs the Dialect A -> Dialect G translation gateway: the
// proxy controller, the admin surface, and a static file server over the
// admin UI's build output, all behind one Fiber app, following the
// teacher SDK's examples/fiber-server bootstrap shape.
package main

import (
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/lumenbridge/gatewayd/pkg/admin"
	"github.com/lumenbridge/gatewayd/pkg/cache"
	"github.com/lumenbridge/gatewayd/pkg/config"
	"github.com/lumenbridge/gatewayd/pkg/gateway"
	"github.com/lumenbridge/gatewayd/pkg/mcpbridge"
	"github.com/lumenbridge/gatewayd/pkg/queue"
	"github.com/lumenbridge/gatewayd/pkg/session"
	"github.com/lumenbridge/gatewayd/pkg/stats"
	"github.com/lumenbridge/gatewayd/pkg/telemetry"
	"github.com/lumenbridge/gatewayd/pkg/upstream"
)

func main() {
	configPath := os.Getenv("GATEWAYD_CONFIG_PATH")
	configStore, err := config.NewStore(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := configStore.Get()

	sessionStore := session.NewStore()
	responseCache := cache.New(0)
	dispatchQueue := queue.New(queue.DefaultConcurrency, queue.DefaultSpacingMillis)
	upstreamClient := upstream.New(nil)
	counters := stats.New()

	telemetrySettings := telemetry.DefaultSettings()
	if os.Getenv("GATEWAYD_TELEMETRY_ENABLED") == "true" {
		telemetrySettings = telemetrySettings.WithEnabled(true)
	}

	mcpServers := make(map[string]string, len(cfg.MCPServers))
	for _, s := range cfg.MCPServers {
		mcpServers[s.Name] = s.URL
	}
	var mcpManager *mcpbridge.Manager
	if len(mcpServers) > 0 {
		mcpManager = mcpbridge.NewManager(mcpServers, nil)
	}

	stop := make(chan struct{})
	defer close(stop)
	go counters.LogPeriodically(time.Minute, stop)

	gw := &gateway.Gateway{
		Config:    configStore,
		Cache:     responseCache,
		Queue:     dispatchQueue,
		Upstream:  upstreamClient,
		Counters:  counters,
		MCPBridge: mcpManager,
		Telemetry: telemetrySettings,
	}

	adminHandler := &admin.Handler{
		Config:   configStore,
		Sessions: sessionStore,
		Upstream: upstreamClient,
	}

	bodyLimit := cfg.MaxRequestBodyBytes
	if bodyLimit <= 0 {
		bodyLimit = config.DefaultMaxRequestBytes
	}

	app := fiber.New(fiber.Config{
		AppName:   "gatewayd",
		BodyLimit: bodyLimit,
	})
	app.Use(logger.New())
	app.Use(cors.New())

	gw.Register(app)
	adminHandler.Register(app)
	app.Get("/api/stats", gw.StatsHandler)
	app.Static("/", "./web/static")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("gatewayd listening on :%s", port)
	log.Fatal(app.Listen(":" + port))
}
