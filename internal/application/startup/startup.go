// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/drillgate/internal/application/container"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/caching/cleanup"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/drillgate/internal/presentation/http/server"
	"github.com/AtRiskMedia/drillgate/pkg/config"
)

const trackerSweepInterval = time.Minute

// NewLogger builds the channeled logger from pkg/config.
func NewLogger() (*logging.ChanneledLogger, error) {
	return logging.NewChanneledLogger(&logging.LoggerConfig{
		OutputToFile:    config.LogToFile,
		OutputToConsole: true,
		LogDirectory:    config.LogDirectory,
		JSONFormat:      config.LogJSON,
		DefaultLevel:    logging.ParseLevel(config.LogLevel),
	})
}

// BuildContainer loads the gate thresholds and wires every service.
func BuildContainer(logger *logging.ChanneledLogger) (*container.Container, error) {
	start := time.Now()
	gateCfg, err := config.LoadGateConfig(config.GateConfigFile)
	logger.LogStartupPhase("load_gate_config", time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	logger.Startup().Info("Gate thresholds loaded",
		"emailGateThreshold", gateCfg.EmailGateThreshold,
		"brokerGateThreshold", gateCfg.BrokerGateThreshold,
		"emailGateBlocking", gateCfg.EmailGateBlocking,
		"brokerGateBlocking", gateCfg.BrokerGateBlocking)

	start = time.Now()
	c, err := container.NewContainer(logger, gateCfg)
	logger.LogStartupPhase("open_state_store", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize container: %w", err)
	}
	logger.Startup().Info("State store ready", "driver", c.StoreDriver)
	return c, nil
}

// Initialize runs the server until SIGINT or SIGTERM.
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("Initializing drillgate...")

	// Step 1: Channeled logging
	logger, err := NewLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logger.Close()
	logger.Startup().Info("Channeled logging initialized", "level", config.LogLevel, "json", config.LogJSON)

	// Step 2: Gate config, state store and services
	appContainer, err := BuildContainer(logger)
	if err != nil {
		return err
	}

	// Step 3: Background workers
	startWorkerTime := time.Now()
	if appContainer.Purger != nil {
		cleanupWorker := cleanup.NewWorker(appContainer.Purger, cleanup.NewConfig(), logger, appContainer.PerfTracker)
		go cleanupWorker.Start(ctx)
	} else {
		logger.Startup().Info("Store expires records itself; cleanup worker not started", "driver", appContainer.StoreDriver)
	}
	go sweepTracker(ctx, appContainer.PerfTracker)
	logger.LogStartupPhase("start_background_workers", time.Since(startWorkerTime), true)

	// Step 4: HTTP server
	httpServer := server.New(config.Port, appContainer)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", config.Port,
		"store", appContainer.StoreDriver)

	// Step 5: Graceful shutdown
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-gracefulShutdown:
		logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")
	case runErr = <-serverErr:
		if runErr != nil {
			logger.System().Error("HTTP server failed", "error", runErr.Error())
		}
	}

	shutdownStart := time.Now()
	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	// Open streams are hijacked connections that Shutdown does not wait for.
	appContainer.Hub.CloseAll()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	if err := appContainer.Close(); err != nil {
		logger.Shutdown().Error("Error closing state store", "error", err.Error())
	} else {
		logger.Shutdown().Info("State store closed successfully")
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return runErr
}

func sweepTracker(ctx context.Context, tracker *performance.Tracker) {
	ticker := time.NewTicker(trackerSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tracker.Cleanup()
		}
	}
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
