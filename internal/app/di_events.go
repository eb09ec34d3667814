package app

import (
	"fmt"
	"log/slog"

	goredislib "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/allisson/eventrelay/internal/events/catalog"
	"github.com/allisson/eventrelay/internal/events/domain"
	eventsForwarder "github.com/allisson/eventrelay/internal/events/forwarder"
	eventsHTTP "github.com/allisson/eventrelay/internal/events/http"
	"github.com/allisson/eventrelay/internal/events/lock"
	"github.com/allisson/eventrelay/internal/events/registry"
	eventsRepository "github.com/allisson/eventrelay/internal/events/repository"
	eventsUseCase "github.com/allisson/eventrelay/internal/events/usecase"
)

// AsyncInvocationRepository returns the async invocation repository based on database driver.
func (c *Container) AsyncInvocationRepository() (eventsUseCase.AsyncInvocationRepository, error) {
	var err error
	c.asyncInvocationRepositoryInit.Do(func() {
		c.asyncInvocationRepository, err = c.initAsyncInvocationRepository()
		if err != nil {
			c.initErrors["asyncInvocationRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["asyncInvocationRepository"]; exists {
		return nil, storedErr
	}
	return c.asyncInvocationRepository, nil
}

// AsyncInvocationUseCase returns the record store.
func (c *Container) AsyncInvocationUseCase() (eventsUseCase.AsyncInvocationUseCase, error) {
	var err error
	c.asyncInvocationUseCaseInit.Do(func() {
		c.asyncInvocationUseCase, err = c.initAsyncInvocationUseCase()
		if err != nil {
			c.initErrors["asyncInvocationUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["asyncInvocationUseCase"]; exists {
		return nil, storedErr
	}
	return c.asyncInvocationUseCase, nil
}

// KafkaForwarder returns the Kafka forwarding listener, or nil when forwarding is disabled.
func (c *Container) KafkaForwarder() *eventsForwarder.KafkaForwarder {
	if !c.config.KafkaForwarderEnabled {
		return nil
	}

	c.kafkaForwarderInit.Do(func() {
		c.kafkaForwarder = c.initKafkaForwarder()
	})
	return c.kafkaForwarder
}

// Registry returns the listener registry holding the event catalog.
func (c *Container) Registry() (*registry.Registry, error) {
	var err error
	c.registryInit.Do(func() {
		c.registry, err = c.initRegistry()
		if err != nil {
			c.initErrors["registry"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["registry"]; exists {
		return nil, storedErr
	}
	return c.registry, nil
}

// Locker returns the execution lock based on the lock driver.
func (c *Container) Locker() (lock.Locker, error) {
	var err error
	c.lockerInit.Do(func() {
		c.locker, err = c.initLocker()
		if err != nil {
			c.initErrors["locker"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["locker"]; exists {
		return nil, storedErr
	}
	return c.locker, nil
}

// Executor returns the async task executor. Callers own its lifecycle: it must be
// started before dispatching and shut down afterwards.
func (c *Container) Executor() *eventsUseCase.Executor {
	c.executorInit.Do(func() {
		c.executor = eventsUseCase.NewExecutor(eventsUseCase.ExecutorConfig{
			Workers:   c.config.AsyncWorkers,
			QueueSize: c.config.AsyncQueueSize,
		}, c.Logger())
	})
	return c.executor
}

// Invoker returns the async invoker.
func (c *Container) Invoker() (eventsUseCase.AsyncInvoker, error) {
	var err error
	c.invokerInit.Do(func() {
		c.invoker, err = c.initInvoker()
		if err != nil {
			c.initErrors["invoker"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["invoker"]; exists {
		return nil, storedErr
	}
	return c.invoker, nil
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() (eventsUseCase.Dispatcher, error) {
	var err error
	c.dispatcherInit.Do(func() {
		c.dispatcher, err = c.initDispatcher()
		if err != nil {
			c.initErrors["dispatcher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["dispatcher"]; exists {
		return nil, storedErr
	}
	return c.dispatcher, nil
}

// RetrySweeper returns the retry sweeper.
func (c *Container) RetrySweeper() (eventsUseCase.RetrySweeper, error) {
	var err error
	c.retrySweeperInit.Do(func() {
		c.retrySweeper, err = c.initRetrySweeper()
		if err != nil {
			c.initErrors["retrySweeper"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["retrySweeper"]; exists {
		return nil, storedErr
	}
	return c.retrySweeper, nil
}

// HistoryReaper returns the history reaper.
func (c *Container) HistoryReaper() (eventsUseCase.HistoryReaper, error) {
	var err error
	c.historyReaperInit.Do(func() {
		c.historyReaper, err = c.initHistoryReaper()
		if err != nil {
			c.initErrors["historyReaper"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["historyReaper"]; exists {
		return nil, storedErr
	}
	return c.historyReaper, nil
}

// EventHandler returns the HTTP handler dispatching events.
func (c *Container) EventHandler() (*eventsHTTP.EventHandler, error) {
	var err error
	c.eventHandlerInit.Do(func() {
		c.eventHandler, err = c.initEventHandler()
		if err != nil {
			c.initErrors["eventHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["eventHandler"]; exists {
		return nil, storedErr
	}
	return c.eventHandler, nil
}

// AsyncInvocationHandler returns the HTTP handler for async invocation records.
func (c *Container) AsyncInvocationHandler() (*eventsHTTP.AsyncInvocationHandler, error) {
	var err error
	c.asyncInvocationHandlerInit.Do(func() {
		c.asyncInvocationHandler, err = c.initAsyncInvocationHandler()
		if err != nil {
			c.initErrors["asyncInvocationHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["asyncInvocationHandler"]; exists {
		return nil, storedErr
	}
	return c.asyncInvocationHandler, nil
}

// initAsyncInvocationRepository creates the async invocation repository based on the database driver.
func (c *Container) initAsyncInvocationRepository() (eventsUseCase.AsyncInvocationRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for async invocation repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return eventsRepository.NewPostgreSQLAsyncInvocationRepository(db), nil
	case "mysql":
		return eventsRepository.NewMySQLAsyncInvocationRepository(db), nil
	case "sqlite":
		return eventsRepository.NewSQLiteAsyncInvocationRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initAsyncInvocationUseCase creates the record store.
func (c *Container) initAsyncInvocationUseCase() (eventsUseCase.AsyncInvocationUseCase, error) {
	repository, err := c.AsyncInvocationRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get async invocation repository for async invocation use case: %w", err)
	}
	return eventsUseCase.NewAsyncInvocationUseCase(repository), nil
}

// initKafkaForwarder creates the Kafka forwarder with its writer.
func (c *Container) initKafkaForwarder() *eventsForwarder.KafkaForwarder {
	writer := eventsForwarder.NewKafkaWriter(c.config.KafkaBrokerList(), c.config.KafkaTopic)
	return eventsForwarder.New(eventsForwarder.Config{}, writer, c.Logger())
}

// initRegistry registers the event catalog and its listeners.
func (c *Container) initRegistry() (*registry.Registry, error) {
	// A nil *KafkaForwarder must not reach catalog.Register as a non-nil interface.
	var forwarder domain.Listener
	if kafkaForwarder := c.KafkaForwarder(); kafkaForwarder != nil {
		forwarder = kafkaForwarder
	}

	r, err := catalog.Register(registry.NewBuilder(), c.Logger(), forwarder).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build listener registry: %w", err)
	}

	c.Logger().Debug("listener registry built",
		slog.Any("events", r.EventNames()),
		slog.Bool("kafka_forwarder", forwarder != nil),
	)
	return r, nil
}

// initLocker creates the execution lock based on the lock driver.
func (c *Container) initLocker() (lock.Locker, error) {
	switch c.config.LockDriver {
	case "local":
		return lock.NewLocal(), nil
	case "redis":
		if c.config.LockExpiry <= c.config.AsyncAttemptTimeout {
			c.Logger().Warn("lock expiry does not exceed the async attempt timeout",
				slog.Duration("lock_expiry", c.config.LockExpiry),
				slog.Duration("async_attempt_timeout", c.config.AsyncAttemptTimeout),
			)
		}

		c.redisClientInit.Do(func() {
			c.redisClient = goredislib.NewClient(&goredislib.Options{
				Addr:     c.config.RedisAddress,
				Password: c.config.RedisPassword,
				DB:       c.config.RedisDB,
			})
		})

		locker, err := lock.NewRedis(c.redisClient, c.config.LockExpiry)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis lock: %w", err)
		}
		return locker, nil
	default:
		return nil, fmt.Errorf("unsupported lock driver: %s", c.config.LockDriver)
	}
}

// initInvoker creates the async invoker with all its dependencies.
func (c *Container) initInvoker() (eventsUseCase.AsyncInvoker, error) {
	r, err := c.Registry()
	if err != nil {
		return nil, fmt.Errorf("failed to get registry for invoker: %w", err)
	}

	store, err := c.AsyncInvocationUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get async invocation use case for invoker: %w", err)
	}

	locker, err := c.Locker()
	if err != nil {
		return nil, fmt.Errorf("failed to get locker for invoker: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for invoker: %w", err)
	}

	metricsProvider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for invoker: %w", err)
	}

	// Without a provider the invoker falls back to a no-op tracer.
	var tracer trace.Tracer
	if metricsProvider != nil {
		tracer = metricsProvider.Tracer()
	}

	return eventsUseCase.NewInvoker(
		eventsUseCase.InvokerConfig{AttemptTimeout: c.config.AsyncAttemptTimeout},
		r,
		store,
		locker,
		businessMetrics,
		tracer,
		c.Logger(),
	), nil
}

// initDispatcher creates the event dispatcher with all its dependencies.
func (c *Container) initDispatcher() (eventsUseCase.Dispatcher, error) {
	r, err := c.Registry()
	if err != nil {
		return nil, fmt.Errorf("failed to get registry for dispatcher: %w", err)
	}

	store, err := c.AsyncInvocationUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get async invocation use case for dispatcher: %w", err)
	}

	invoker, err := c.Invoker()
	if err != nil {
		return nil, fmt.Errorf("failed to get invoker for dispatcher: %w", err)
	}

	baseDispatcher := eventsUseCase.NewDispatcher(r, store, invoker, c.Executor(), c.Logger())

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for dispatcher: %w", err)
		}
		return eventsUseCase.NewDispatcherWithMetrics(baseDispatcher, businessMetrics), nil
	}

	return baseDispatcher, nil
}

// initRetrySweeper creates the retry sweeper with all its dependencies.
func (c *Container) initRetrySweeper() (eventsUseCase.RetrySweeper, error) {
	store, err := c.AsyncInvocationUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get async invocation use case for retry sweeper: %w", err)
	}

	invoker, err := c.Invoker()
	if err != nil {
		return nil, fmt.Errorf("failed to get invoker for retry sweeper: %w", err)
	}

	baseSweeper := eventsUseCase.NewRetrySweeper(eventsUseCase.RetrySweeperConfig{
		BatchSize:   c.config.RetrySweeperBatchSize,
		MaxAttempts: c.config.RetryMaxAttempts,
		Concurrency: c.config.RetrySweeperConcurrency,
	}, store, invoker, c.Logger())

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for retry sweeper: %w", err)
		}
		return eventsUseCase.NewRetrySweeperWithMetrics(baseSweeper, businessMetrics), nil
	}

	return baseSweeper, nil
}

// initHistoryReaper creates the history reaper with all its dependencies.
func (c *Container) initHistoryReaper() (eventsUseCase.HistoryReaper, error) {
	store, err := c.AsyncInvocationUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get async invocation use case for history reaper: %w", err)
	}

	locker, err := c.Locker()
	if err != nil {
		return nil, fmt.Errorf("failed to get locker for history reaper: %w", err)
	}

	baseReaper := eventsUseCase.NewHistoryReaper(eventsUseCase.HistoryReaperConfig{
		BatchSize: c.config.HistoryReaperBatchSize,
	}, store, locker, c.Logger())

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for history reaper: %w", err)
		}
		return eventsUseCase.NewHistoryReaperWithMetrics(baseReaper, businessMetrics), nil
	}

	return baseReaper, nil
}

// initEventHandler creates the HTTP handler dispatching events.
func (c *Container) initEventHandler() (*eventsHTTP.EventHandler, error) {
	dispatcher, err := c.Dispatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatcher for event handler: %w", err)
	}

	r, err := c.Registry()
	if err != nil {
		return nil, fmt.Errorf("failed to get registry for event handler: %w", err)
	}

	return eventsHTTP.NewEventHandler(dispatcher, r, c.Logger()), nil
}

// initAsyncInvocationHandler creates the HTTP handler for async invocation records.
func (c *Container) initAsyncInvocationHandler() (*eventsHTTP.AsyncInvocationHandler, error) {
	store, err := c.AsyncInvocationUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get async invocation use case for async invocation handler: %w", err)
	}

	sweeper, err := c.RetrySweeper()
	if err != nil {
		return nil, fmt.Errorf("failed to get retry sweeper for async invocation handler: %w", err)
	}

	return eventsHTTP.NewAsyncInvocationHandler(store, sweeper, c.Logger()), nil
}
