package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/allisson/eventrelay/internal/app"
)

// shutdowner is a component stopped during graceful shutdown.
type shutdowner struct {
	name string
	stop func(ctx context.Context) error
}

// RunServer starts the HTTP servers, the async executor and the scheduled jobs with
// graceful shutdown support. Blocks until receiving SIGINT/SIGTERM or encountering a
// fatal server error. On shutdown the servers stop accepting requests first, then the
// scheduler and the executor drain within ShutdownTimeout. Attempts still queued at
// the deadline stay in the database for the next retry sweep.
func RunServer(ctx context.Context, version string) error {
	// Load configuration
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	// Set Gin mode based on log level
	gin.SetMode(cfg.GetGinMode())

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version))

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	// Get HTTP server from container (this initializes all dependencies)
	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	// Get Metrics server from container
	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	jobs, err := container.Scheduler()
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	executor := container.Executor()
	if err := executor.Start(); err != nil {
		return fmt.Errorf("failed to start async executor: %w", err)
	}
	jobs.Start()

	components := []shutdowner{{name: "api server", stop: server.Shutdown}}
	if metricsServer != nil {
		components = append(components, shutdowner{name: "metrics server", stop: metricsServer.Shutdown})
	}
	components = append(components,
		shutdowner{name: "scheduler", stop: jobs.Stop},
		shutdowner{name: "async executor", stop: executor.Shutdown},
	)

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start servers in goroutines
	serverErr := make(chan error, 2)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErr <- fmt.Errorf("api server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				serverErr <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or server error
	var shutdownErrors []error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		// Attempt graceful shutdown if one server fails
		logger.Error("server error, initiating shutdown", slog.Any("error", err))
		shutdownErrors = append(shutdownErrors, err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	shutdownErrors = append(shutdownErrors, shutdown(shutdownCtx, components)...)
	return errors.Join(shutdownErrors...)
}

// shutdown stops components in order and collects their errors.
func shutdown(ctx context.Context, components []shutdowner) []error {
	var errs []error
	for _, component := range components {
		if err := component.stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s shutdown: %w", component.name, err))
		}
	}
	return errs
}
