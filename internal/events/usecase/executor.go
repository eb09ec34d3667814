package usecase

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrExecutorStopped is returned by Start after Shutdown.
var ErrExecutorStopped = errors.New("executor stopped")

// Task is a deferred unit of work.
type Task func(ctx context.Context)

// ExecutorConfig holds worker pool sizing.
type ExecutorConfig struct {
	Workers   int
	QueueSize int
}

// Executor runs deferred tasks on a fixed pool of workers fed by a bounded queue.
// Submit never blocks: when the queue is full the task is rejected.
type Executor struct {
	config ExecutorConfig
	queue  chan Task
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewExecutor creates an Executor. Workers and QueueSize default to 1 when not positive.
func NewExecutor(config ExecutorConfig, logger *slog.Logger) *Executor {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Executor{
		config: config,
		queue:  make(chan Task, config.QueueSize),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the workers. Calling Start more than once is a no-op.
func (e *Executor) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrExecutorStopped
	}
	if e.started {
		return nil
	}
	e.started = true

	for range e.config.Workers {
		e.wg.Add(1)
		go e.work()
	}

	e.logger.Info("async executor started",
		slog.Int("workers", e.config.Workers),
		slog.Int("queue_size", e.config.QueueSize),
	)

	return nil
}

// Submit enqueues task. It returns false when the queue is full or the executor is
// shut down.
func (e *Executor) Submit(task Task) bool {
	if task == nil {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return false
	}

	select {
	case e.queue <- task:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued tasks.
func (e *Executor) Pending() int {
	return len(e.queue)
}

// Shutdown stops accepting tasks and waits for queued and running tasks to finish.
// When ctx expires first, running tasks see their context cancelled and the
// context error is returned after they return.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	started := e.started
	e.mu.Unlock()

	if !started {
		// Never started: drop what was queued.
		e.cancel()
		if pending := e.Pending(); pending > 0 {
			e.logger.Warn("async executor closed without running queued tasks", slog.Int("pending", pending))
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		e.logger.Info("async executor stopped")
		return nil
	case <-ctx.Done():
		pending := e.Pending()
		e.cancel()
		<-done
		e.logger.Warn("async executor stopped before draining queue",
			slog.Int("pending", pending),
			slog.Any("error", ctx.Err()),
		)
		return ctx.Err()
	}
}

func (e *Executor) work() {
	defer e.wg.Done()

	for task := range e.queue {
		if e.ctx.Err() != nil {
			// Shutdown deadline passed; the record stays for the retry sweeper.
			continue
		}
		e.run(task)
	}
}

func (e *Executor) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("async task panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	task(e.ctx)
}
