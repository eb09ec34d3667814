// Package forwarder provides an async listener that republishes events to Kafka.
package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"

	apperrors "github.com/allisson/eventrelay/internal/errors"
	"github.com/allisson/eventrelay/internal/events/domain"
)

// ListenerName is the stable name of the Kafka forwarder.
const ListenerName = "kafka_forwarder"

// MessageWriter is the subset of *kafka.Writer used by the forwarder.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds forwarder configuration.
type Config struct {
	// ConsecutiveFailures opens the breaker after this many failed writes in a row.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing the brokers again.
	OpenTimeout time.Duration
}

// envelope is the Kafka message value.
type envelope struct {
	EventName   string          `json:"event_name"`
	ForwardedAt time.Time       `json:"forwarded_at"`
	Event       json.RawMessage `json:"event"`
}

// KafkaForwarder publishes every event it receives to a Kafka topic. Writes go through a
// circuit breaker so an unreachable cluster fails attempts fast; the records stay
// outstanding and the retry sweeper delivers them once the breaker closes.
type KafkaForwarder struct {
	writer  MessageWriter
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	now     func() time.Time
}

// NewKafkaWriter creates a writer bound to topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// New creates a KafkaForwarder.
func New(config Config, writer MessageWriter, logger *slog.Logger) *KafkaForwarder {
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = 5
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	settings := gobreaker.Settings{
		Name:        ListenerName,
		MaxRequests: 1,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &KafkaForwarder{
		writer:  writer,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
		now:     time.Now,
	}
}

// Name implements domain.Listener.
func (f *KafkaForwarder) Name() string {
	return ListenerName
}

// Handle implements domain.Listener. The event name is the message key, so events of
// one type keep their relative order within a partition.
func (f *KafkaForwarder) Handle(ctx context.Context, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode event")
	}

	value, err := json.Marshal(envelope{
		EventName:   event.EventName(),
		ForwardedAt: f.now().UTC(),
		Event:       body,
	})
	if err != nil {
		return apperrors.Wrap(err, "failed to encode envelope")
	}

	message := kafka.Message{
		Key:   []byte(event.EventName()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_name", Value: []byte(event.EventName())},
		},
	}

	_, err = f.breaker.Execute(func() (interface{}, error) {
		return nil, f.writer.WriteMessages(ctx, message)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.Wrap(apperrors.ErrUnavailable, "kafka forwarder circuit open")
	}
	if err != nil {
		return apperrors.Wrap(err, "failed to write kafka message")
	}

	return nil
}

// State reports the breaker state.
func (f *KafkaForwarder) State() gobreaker.State {
	return f.breaker.State()
}

// Close closes the underlying writer.
func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}
