package main

import (
	"context"
	"strconv"
	"time"

	schema "nautilus/api_compliance/db"
	"nautilus/api_compliance/internal/handlers"
	registryapi "nautilus/api_compliance/pkg/clients/registry"
	"nautilus/api_compliance/pkg/config"
	"nautilus/api_compliance/pkg/database"
	"nautilus/api_compliance/pkg/logging"
	"nautilus/api_compliance/pkg/monitoring"
	"nautilus/api_compliance/pkg/server"
	"nautilus/api_compliance/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("harbormaster")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Harbormaster (Compliance Ledger API)")

	dbURL := config.RequireEnv("DATABASE_URL")
	port := config.GetEnv("PORT", "3006")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	// Self-provision the schema when running without the fleet provisioner
	if config.GetEnvBool("DB_APPLY_SCHEMA", false) {
		if err := database.ApplySchema(db, schema.Content, "schema.sql", logger); err != nil {
			logger.WithError(err).Fatal("Failed to apply database schema")
		}
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("harbormaster", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("harbormaster", version.Version, version.GitCommit)

	// Add health checks
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": dbURL,
	}))

	// Create custom compliance metrics
	metrics := &handlers.HarbormasterMetrics{
		EmissionRecords:     metricsCollector.NewCounter("emission_records_total", "Emission records processed", []string{"source", "status"}),
		BalanceOperations:   metricsCollector.NewCounter("balance_operations_total", "FuelEU balance operations", []string{"operation", "status"}),
		PoolAllocations:     metricsCollector.NewCounter("pool_allocations_total", "Pool allocation operations", []string{"type", "status"}),
		EUAOperations:       metricsCollector.NewCounter("eua_operations_total", "EUA ledger operations", []string{"operation", "status"}),
		InvariantViolations: metricsCollector.NewGauge("balance_invariant_violations", "Balance rows violating balance == banked - borrowed", []string{}),
		VerificationRate:    metricsCollector.NewGauge("emission_verification_rate", "Share of emission records with a VERIFIED verification", []string{}),
	}

	// Create database metrics
	metrics.DBQueries, metrics.DBDuration, metrics.DBConnections = metricsCollector.CreateDatabaseMetrics()

	// Initialize handlers
	handlers.Init(db, logger, metrics)

	// Initialize and start JobManager for background compliance tasks
	jobManager := handlers.NewJobManager(db, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobManager.Start(ctx)
	defer jobManager.Stop()

	logger.Info("JobManager started - background compliance jobs active")

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "harbormaster", healthChecker, metricsCollector)

	// API routes (root level - nginx adds /api/compliance/ prefix)
	{
		// Emission ledger
		router.POST("/emissions", handlers.RecordEmission)
		router.GET("/emissions", handlers.GetEmissions)
		router.PUT("/emissions/:id", handlers.UpdateEmission)
		router.POST("/emissions/:id/verifications", handlers.AddVerification)

		// FuelEU balance ledger
		router.POST("/fueleu/balance", handlers.AdjustBalance)
		router.GET("/fueleu/balance", handlers.GetBalance)
		router.POST("/fueleu/bank/:companyId/:periodYear", handlers.BankToNextPeriod)
		router.POST("/fueleu/borrow", handlers.BorrowFromNextPeriod)

		// Pool allocation registry
		router.POST("/pools/allocate", handlers.AllocatePool)
		router.GET("/pools/allocation", handlers.GetPoolAllocation)
		router.GET("/pools/performance/:poolId/:periodYear", handlers.GetPoolPerformance)

		// EUA operation ledger
		router.POST("/eua/forecast", handlers.ForecastEUA)
		router.POST("/eua/hedge", handlers.HedgeEUA)
		router.POST("/eua/surrender", handlers.SurrenderEUA)
		router.POST("/eua/reconcile", handlers.ReconcileEUA)
		router.GET("/eua/operations", handlers.GetEUAOperations)
		router.GET("/eua/accuracy/:companyId/:periodYear", handlers.GetForecastAccuracy)

		// Company KPIs
		router.GET("/kpis", handlers.GetComplianceKPIs)
	}

	// Best-effort service registration in the fleet registry
	if registryURL := config.GetEnv("FLEET_REGISTRY_URL", ""); registryURL != "" {
		serviceToken := config.GetEnv("SERVICE_TOKEN", "")
		go func() {
			rc := registryapi.NewClient(registryapi.Config{BaseURL: registryURL, ServiceToken: serviceToken, Logger: logger})
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			portNum, _ := strconv.Atoi(port)
			if _, err := rc.BootstrapService(ctx, &registryapi.BootstrapServiceRequest{Type: "harbormaster", Version: version.Version, Protocol: "http", HealthEndpoint: "/health", Port: portNum}); err != nil {
				logger.WithError(err).Warn("Fleet registry bootstrap (harbormaster) failed")
			} else {
				logger.Info("Fleet registry bootstrap (harbormaster) ok")
			}
		}()
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("harbormaster", port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
