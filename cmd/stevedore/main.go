package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"frameworks/api_compose/internal/discovery"
	"frameworks/api_compose/internal/docker"
	"frameworks/api_compose/internal/events"
	"frameworks/api_compose/internal/handlers"
	"frameworks/api_compose/internal/matcher"
	"frameworks/api_compose/internal/ops"
	"frameworks/api_compose/internal/runtime"
	"frameworks/api_compose/internal/store"
	"frameworks/api_compose/pkg/clients"
	"frameworks/api_compose/pkg/clients/dockhand"
	"frameworks/api_compose/pkg/config"
	"frameworks/api_compose/pkg/database"
	"frameworks/api_compose/pkg/logging"
	"frameworks/api_compose/pkg/monitoring"
	"frameworks/api_compose/pkg/server"
	"frameworks/api_compose/pkg/version"

	"github.com/gin-gonic/gin"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("stevedore")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Stevedore (Compose Project Reconciliation)")

	// Service token for service-to-service authentication
	serviceToken := config.RequireEnv("SERVICE_TOKEN")
	jwtSecret := []byte(config.RequireEnv("JWT_SECRET"))
	composeRoot := config.RequireEnv("COMPOSE_ROOT")
	dbURL := config.RequireEnv("DATABASE_URL")

	// === Database Connection ===
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("stevedore", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("stevedore", version.Version, version.GitCommit)

	discoveryMetrics := metricsCollector.CreateDiscoveryMetrics()
	runtimeMetrics := metricsCollector.CreateRuntimeMetrics()
	operationMetrics := metricsCollector.CreateOperationMetrics()
	dbQueries, dbDuration, dbConnections := metricsCollector.CreateDatabaseMetrics()

	// Initialize Store
	journal := store.NewStore(db).WithMetrics(dbQueries, dbDuration, dbConnections)

	// === Discovery ===
	discoverySvc, err := discovery.NewService(discovery.ServiceConfig{
		Scanner: discovery.ScannerConfig{
			Root:        composeRoot,
			DepthLimit:  config.GetEnvInt("SCAN_DEPTH_LIMIT", 3),
			MaxFileSize: config.GetEnvInt64("SCAN_MAX_FILE_SIZE_KB", 512) * 1024,
		},
		CacheTTL: config.GetEnvDuration("SCAN_CACHE_TTL_SECONDS", 60*time.Second),
	}, logging.WithComponent(logger, "discovery"), discoveryMetrics)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize discovery")
	}

	// === Container Runtime ===
	dockerClient, err := docker.NewClient(docker.Config{
		Host: config.GetEnv("DOCKER_HOST", docker.DefaultHost),
	}, logging.WithComponent(logger, "docker"), runtimeMetrics)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize Docker client")
	}

	runtimeProvider := runtime.NewProvider(dockerClient, journal, logging.WithComponent(logger, "runtime"))
	projectView := matcher.New(runtimeProvider, discoverySvc, logging.WithComponent(logger, "matcher"))

	// === Dockhand Client ===
	dockhandURL := config.GetEnv("DOCKHAND_URL", "http://dockhand:18011")
	breakerCfg := clients.DefaultCircuitBreakerConfig()
	breakerCfg.Name = "dockhand"
	breakerCfg.Logger = logger
	dockhandClient := dockhand.NewClient(dockhand.Config{
		BaseURL:              dockhandURL,
		ServiceToken:         serviceToken,
		Timeout:              15 * time.Second,
		Logger:               logger,
		CircuitBreakerConfig: &breakerCfg,
	})

	// === Websocket Hub ===
	hub := events.NewHub(logging.WithComponent(logger, "events"))
	go hub.Run()

	// === Operations ===
	callbackBase := config.GetEnv("CALLBACK_BASE_URL", fmt.Sprintf("http://stevedore:%s", config.GetEnv("PORT", "18010")))
	opsSvc := ops.NewService(
		ops.Config{CallbackBaseURL: callbackBase},
		projectView, journal, dockhandClient, hub,
		operationMetrics, logging.WithComponent(logger, "ops"),
	)

	pathValidator, err := discovery.NewPathValidator(discoverySvc.Root())
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize path validator")
	}

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("compose_root", monitoring.DirectoryHealthCheck("compose root", discoverySvc.Root()))
	healthChecker.AddCheck("dockhand", monitoring.HTTPServiceHealthCheck("dockhand", dockhandURL+"/health"))
	healthChecker.AddCheck("docker_engine", func() monitoring.CheckResult {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		start := time.Now()
		if err := dockerClient.Ping(ctx); err != nil {
			return monitoring.CheckResult{
				Status:  "unhealthy",
				Message: fmt.Sprintf("Docker engine unreachable: %v", err),
				Latency: time.Since(start).String(),
			}
		}
		return monitoring.CheckResult{
			Status:  "healthy",
			Message: "Docker engine responding",
			Latency: time.Since(start).String(),
		}
	})

	// === HTTP Server ===
	serverConfig := server.DefaultConfig("stevedore", "18010")

	app := server.SetupServiceRouter(logger, "stevedore", healthChecker, metricsCollector)

	h := handlers.NewHandlers(projectView, discoverySvc, opsSvc, hub, pathValidator, logger)
	handlers.RegisterRoutes(app, h, handlers.RouterConfig{
		JWTSecret:    jwtSecret,
		ServiceToken: serviceToken,
	})

	app.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "running", "version": version.Version})
	})

	if err := server.Start(serverConfig, app, logger); err != nil {
		logger.WithError(err).Fatal("Stevedore HTTP server failed")
	}
}
