// Package catalog declares the platform events delivered by eventrelay and wires
// their default listeners into a registry builder.
package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/allisson/eventrelay/internal/events/domain"
	"github.com/allisson/eventrelay/internal/events/registry"
)

// Event names.
const (
	ChatMessageSentName          = "chat.message_sent"
	FileUploadedName             = "file.uploaded"
	SandboxExecutionFinishedName = "sandbox.execution_finished"
)

// ChatMessageSent is raised when a user or agent posts a message to a conversation.
type ChatMessageSent struct {
	domain.StoppableBase
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	SenderID       string    `json:"sender_id"`
	SentAt         time.Time `json:"sent_at"`
}

func (e *ChatMessageSent) EventName() string { return ChatMessageSentName }

// FileUploaded is raised when a file lands in storage.
type FileUploaded struct {
	domain.StoppableBase
	FileID      string    `json:"file_id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

func (e *FileUploaded) EventName() string { return FileUploadedName }

// SandboxExecutionFinished is raised when sandboxed code execution terminates.
type SandboxExecutionFinished struct {
	domain.StoppableBase
	ExecutionID string        `json:"execution_id"`
	Language    string        `json:"language"`
	ExitCode    int           `json:"exit_code"`
	Duration    time.Duration `json:"duration"`
	FinishedAt  time.Time     `json:"finished_at"`
}

func (e *SandboxExecutionFinished) EventName() string { return SandboxExecutionFinishedName }

// EventNames lists every event of the catalog.
func EventNames() []string {
	return []string{ChatMessageSentName, FileUploadedName, SandboxExecutionFinishedName}
}

// Register adds the catalog events to b with the audit listener on the sync path.
// When forwarder is not nil it is subscribed to every event on the async path.
func Register(b *registry.Builder, logger *slog.Logger, forwarder domain.Listener) *registry.Builder {
	registry.RegisterEvent[ChatMessageSent](b)
	registry.RegisterEvent[FileUploaded](b)
	registry.RegisterEvent[SandboxExecutionFinished](b)

	audit := NewAuditListener(logger)
	for _, name := range EventNames() {
		b.Sync(name, audit)
		if forwarder != nil {
			b.Async(name, forwarder)
		}
	}

	return b
}

// AuditListener writes every event it receives to the structured log.
type AuditListener struct {
	logger *slog.Logger
}

// NewAuditListener creates an AuditListener.
func NewAuditListener(logger *slog.Logger) *AuditListener {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AuditListener{logger: logger}
}

// Name implements domain.Listener.
func (l *AuditListener) Name() string {
	return "audit_log"
}

// Handle implements domain.Listener.
func (l *AuditListener) Handle(ctx context.Context, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	l.logger.InfoContext(ctx, "event dispatched",
		slog.String("event_name", event.EventName()),
		slog.String("event", string(body)),
	)
	return nil
}
