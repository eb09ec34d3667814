package usecase_test

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/allisson/eventrelay/internal/events/domain"
	"github.com/allisson/eventrelay/internal/events/lock"
	"github.com/allisson/eventrelay/internal/events/registry"
	"github.com/allisson/eventrelay/internal/events/repository"
	"github.com/allisson/eventrelay/internal/events/usecase"
	"github.com/allisson/eventrelay/internal/testutil"
)

const (
	eventuallyTimeout = 2 * time.Second
	eventuallyTick    = 5 * time.Millisecond
)

type orderPlaced struct {
	domain.StoppableBase
	OrderID string `json:"order_id"`
}

func (e *orderPlaced) EventName() string { return "order.placed" }

type connectionError struct {
	addr string
}

func (e *connectionError) Error() string { return "connection refused: " + e.addr }

// logBuffer is a goroutine safe sink for JSON log lines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *logBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *logBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

// Lines returns the log lines containing all of the given fragments.
func (l *logBuffer) Lines(fragments ...string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(l.String()), "\n") {
		matches := line != ""
		for _, fragment := range fragments {
			if !strings.Contains(line, fragment) {
				matches = false
				break
			}
		}
		if matches {
			out = append(out, line)
		}
	}
	return out
}

// recordingSubmitter collects tasks so tests decide when deferred work runs.
type recordingSubmitter struct {
	mu     sync.Mutex
	tasks  []usecase.Task
	reject bool
}

func (r *recordingSubmitter) Submit(task usecase.Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reject {
		return false
	}
	r.tasks = append(r.tasks, task)
	return true
}

func (r *recordingSubmitter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func (r *recordingSubmitter) RunAll(ctx context.Context) {
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = nil
	r.mu.Unlock()

	for _, task := range tasks {
		task(ctx)
	}
}

// callRecorder records listener calls in order.
type callRecorder struct {
	mu     sync.Mutex
	calls  []string
	events []domain.Event
}

func (c *callRecorder) listener(name string, fn func(ctx context.Context, event domain.Event) error) domain.Listener {
	return domain.ListenerFunc(name, func(ctx context.Context, event domain.Event) error {
		c.mu.Lock()
		c.calls = append(c.calls, name)
		c.events = append(c.events, event)
		c.mu.Unlock()

		if fn != nil {
			return fn(ctx, event)
		}
		return nil
	})
}

func (c *callRecorder) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *callRecorder) Events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Event(nil), c.events...)
}

// fixture wires the record store on an in-memory SQLite database with a local lock.
type fixture struct {
	db     *sql.DB
	store  usecase.AsyncInvocationUseCase
	locker *lock.Local
	logs   *logBuffer
	logger *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.SetupSQLiteDB(t)
	t.Cleanup(func() {
		testutil.TeardownDB(t, db)
	})

	logs := &logBuffer{}

	return &fixture{
		db:     db,
		store:  usecase.NewAsyncInvocationUseCase(repository.NewSQLiteAsyncInvocationRepository(db)),
		locker: lock.NewLocal(),
		logs:   logs,
		logger: newJSONLogger(logs),
	}
}

func newJSONLogger(logs *logBuffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (f *fixture) invoker(reg usecase.ListenerRegistry, timeout time.Duration) usecase.AsyncInvoker {
	return usecase.NewInvoker(
		usecase.InvokerConfig{AttemptTimeout: timeout},
		reg,
		f.store,
		f.locker,
		nil,
		nil,
		f.logger,
	)
}

// createInvocation persists a record for event and listenerName.
func (f *fixture) createInvocation(
	t *testing.T,
	listenerName string,
	event domain.Event,
) *domain.AsyncInvocation {
	t.Helper()

	payload, err := f.store.BuildPayload(event.EventName(), listenerName, event)
	require.NoError(t, err)

	invocation, err := f.store.Create(context.Background(), payload)
	require.NoError(t, err)

	return invocation
}

func (f *fixture) outstanding(t *testing.T) []*domain.AsyncInvocation {
	t.Helper()

	invocations, err := f.store.ListOutstanding(context.Background(), 0, 100)
	require.NoError(t, err)
	return invocations
}

func buildRegistry(t *testing.T, configure func(b *registry.Builder)) *registry.Registry {
	t.Helper()

	b := registry.NewBuilder()
	registry.RegisterEvent[orderPlaced](b)
	configure(b)

	reg, err := b.Build()
	require.NoError(t, err)
	return reg
}
