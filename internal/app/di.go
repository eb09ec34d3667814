// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	goredislib "github.com/redis/go-redis/v9"

	"github.com/allisson/eventrelay/internal/config"
	"github.com/allisson/eventrelay/internal/database"
	eventsForwarder "github.com/allisson/eventrelay/internal/events/forwarder"
	eventsHTTP "github.com/allisson/eventrelay/internal/events/http"
	"github.com/allisson/eventrelay/internal/events/lock"
	"github.com/allisson/eventrelay/internal/events/registry"
	eventsUseCase "github.com/allisson/eventrelay/internal/events/usecase"
	"github.com/allisson/eventrelay/internal/http"
	"github.com/allisson/eventrelay/internal/metrics"
	"github.com/allisson/eventrelay/internal/scheduler"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	txManager       database.TxManager
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	redisClient     goredislib.UniversalClient

	// Events
	asyncInvocationRepository eventsUseCase.AsyncInvocationRepository
	asyncInvocationUseCase    eventsUseCase.AsyncInvocationUseCase
	kafkaForwarder            *eventsForwarder.KafkaForwarder
	registry                  *registry.Registry
	locker                    lock.Locker
	executor                  *eventsUseCase.Executor
	invoker                   eventsUseCase.AsyncInvoker
	dispatcher                eventsUseCase.Dispatcher
	retrySweeper              eventsUseCase.RetrySweeper
	historyReaper             eventsUseCase.HistoryReaper
	eventHandler              *eventsHTTP.EventHandler
	asyncInvocationHandler    *eventsHTTP.AsyncInvocationHandler

	// Servers and Workers
	httpServer    *http.Server
	metricsServer *http.MetricsServer
	scheduler     *scheduler.Scheduler

	// Initialization flags and mutex for thread-safety
	mu                            sync.Mutex
	loggerInit                    sync.Once
	dbInit                        sync.Once
	txManagerInit                 sync.Once
	metricsProviderInit           sync.Once
	businessMetricsInit           sync.Once
	redisClientInit               sync.Once
	asyncInvocationRepositoryInit sync.Once
	asyncInvocationUseCaseInit    sync.Once
	kafkaForwarderInit            sync.Once
	registryInit                  sync.Once
	lockerInit                    sync.Once
	executorInit                  sync.Once
	invokerInit                   sync.Once
	dispatcherInit                sync.Once
	retrySweeperInit              sync.Once
	historyReaperInit             sync.Once
	eventHandlerInit              sync.Once
	asyncInvocationHandlerInit    sync.Once
	httpServerInit                sync.Once
	metricsServerInit             sync.Once
	schedulerInit                 sync.Once
	initErrors                    map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager. Dispatch calls running under one of its
// transactions persist their async invocation records atomically with the caller's writes.
func (c *Container) TxManager() (database.TxManager, error) {
	var err error
	c.txManagerInit.Do(func() {
		c.txManager, err = c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// MetricsProvider returns the OpenTelemetry metrics and tracing provider.
// It returns nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}

	var err error
	c.metricsProviderInit.Do(func() {
		c.metricsProvider, err = metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder, a no-op one when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// HTTPServer returns the HTTP server instance.
func (c *Container) HTTPServer() (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}

	var err error
	c.metricsServerInit.Do(func() {
		c.metricsServer, err = c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Scheduler returns the scheduler running the retry sweeper and the history reaper.
func (c *Container) Scheduler() (*scheduler.Scheduler, error) {
	var err error
	c.schedulerInit.Do(func() {
		c.scheduler, err = c.initScheduler()
		if err != nil {
			c.initErrors["scheduler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["scheduler"]; exists {
		return nil, storedErr
	}
	return c.scheduler, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down. Servers stop first,
// then the background workers, then the clients they depend on.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.scheduler != nil {
		if err := c.scheduler.Stop(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("scheduler stop: %w", err))
		}
	}

	if c.executor != nil {
		if err := c.executor.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("executor shutdown: %w", err))
		}
	}

	if c.kafkaForwarder != nil {
		if err := c.kafkaForwarder.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("kafka forwarder close: %w", err))
		}
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("redis close: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	return errors.Join(shutdownErrors...)
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initBusinessMetrics creates the business metrics recorder on the metrics provider.
func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for business metrics: %w", err)
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}

	businessMetrics, err := metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}
	return businessMetrics, nil
}

// initHTTPServer creates the HTTP server with all its dependencies.
func (c *Container) initHTTPServer() (*http.Server, error) {
	logger := c.Logger()

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}

	eventHandler, err := c.EventHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get event handler for http server: %w", err)
	}

	asyncInvocationHandler, err := c.AsyncInvocationHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get async invocation handler for http server: %w", err)
	}

	metricsProvider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}

	server := http.NewServer(db, c.config.ServerHost, c.config.ServerPort, logger)
	server.SetupRouter(c.config, eventHandler, asyncInvocationHandler, metricsProvider)

	return server, nil
}

// initMetricsServer creates the Prometheus metrics server.
func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}

	return http.NewMetricsServer(c.config.ServerHost, c.config.MetricsPort, c.Logger(), provider), nil
}

// initScheduler registers the retry sweeper and history reaper jobs.
func (c *Container) initScheduler() (*scheduler.Scheduler, error) {
	retrySweeper, err := c.RetrySweeper()
	if err != nil {
		return nil, fmt.Errorf("failed to get retry sweeper for scheduler: %w", err)
	}

	historyReaper, err := c.HistoryReaper()
	if err != nil {
		return nil, fmt.Errorf("failed to get history reaper for scheduler: %w", err)
	}

	retention := c.config.HistoryRetention

	return scheduler.New(
		c.Logger(),
		scheduler.Job{
			Name:     "retry_sweeper",
			Schedule: c.config.RetrySweeperSchedule,
			Enabled:  c.config.RetrySweeperEnabled,
			Run: func(ctx context.Context) error {
				// A sweep triggered over HTTP may still be running.
				if _, err := retrySweeper.Sweep(ctx); err != nil && !errors.Is(err, eventsUseCase.ErrSweepInProgress) {
					return err
				}
				return nil
			},
		},
		scheduler.Job{
			Name:     "history_reaper",
			Schedule: c.config.HistoryReaperSchedule,
			Enabled:  c.config.HistoryReaperEnabled,
			Run: func(ctx context.Context) error {
				_, err := historyReaper.Reap(ctx, retention, false)
				return err
			},
		},
	)
}
