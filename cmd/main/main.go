package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chart-hub/src/aggregates"
	"chart-hub/src/charthub"
	"chart-hub/src/config"
	"chart-hub/src/interfaces"
	"chart-hub/src/livefeed"
	"chart-hub/src/logger"
	"chart-hub/src/models"
	"chart-hub/src/network"
	"chart-hub/src/server"
	"chart-hub/src/storage"
	"chart-hub/src/utils"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(config, config.Name)

	// 2. Setup Storage
	var db interfaces.IBarStore

	switch config.Storage.DBType {
	case "postgres":
		db, err = storage.NewPostgresDB(config.MConfig, appLogger)
	default:
		// Default to SQLite
		db, err = storage.NewAsyncSQLiteDB(config.MConfig, appLogger)
	}

	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}
	if err := db.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate db: %v", err)
	}
	defer db.Close()

	// 3. Setup Components
	var networkManager interfaces.INetworkManager = network.NewAsyncNetworkManager(config.MConfig, appLogger)
	marketStatus := utils.NewMarketStatusProvider()

	var resolver interfaces.IAggregatesResolver = aggregates.NewClient(config.Upstream, networkManager, marketStatus, appLogger)
	backfill := charthub.NewBackfillResolver(resolver, appLogger)

	// 4. Server and hub wire each other: the server publishes for the hub,
	// the hub handles the server's client commands.
	srv := server.NewChartAPIServer(config.MConfig, appLogger)

	var hub *charthub.ChartHub
	feed := livefeed.NewGateway(config.Upstream, appLogger, func(event models.MAggregateEvent) {
		hub.IngestLiveAggregate(event)
	})

	hub = charthub.NewChartHub(config.Chart, appLogger, srv, backfill, feed, db)
	srv.AttachHub(hub)

	if config.Upstream.WsURL != "" {
		feed.Start()
		defer feed.Stop()
	}

	// 6. Start Server
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	// 7. Periodic storage retention sweep
	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	appLogger.Info("Chart hub running")

	for {
		select {
		case <-cleanupTicker.C:
			if err := db.CleanupOldData(); err != nil {
				appLogger.Warning("Storage cleanup failed: %v", err)
			}

		case <-quit:
			appLogger.Info("Shutting down...")
			srv.Stop()
			return
		}
	}
}
