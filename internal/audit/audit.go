// Package audit notifies an event sink of pipeline activity. Delivery is fire
// and forget; the pipeline never fails an operation because auditing did.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventKind identifies a pipeline lifecycle event.
type EventKind string

const (
	EventUploaded   EventKind = "batch.uploaded"
	EventMapped     EventKind = "batch.mapped"
	EventValidated  EventKind = "batch.validated"
	EventCommitted  EventKind = "batch.committed"
	EventRolledBack EventKind = "batch.rolled_back"
	EventCancelled  EventKind = "batch.cancelled"
)

// Event is one pipeline activity notification.
type Event struct {
	Kind     EventKind
	TenantID uuid.UUID
	BatchID  uuid.UUID
	Actor    uuid.UUID
	Detail   map[string]any
	At       time.Time
}

// Sink receives pipeline events.
type Sink interface {
	Notify(ctx context.Context, event Event)
}

// LogSink writes events as structured log lines.
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, event Event) {
	if s.logger == nil {
		return
	}
	fields := logrus.Fields{
		"event":     event.Kind,
		"tenant_id": event.TenantID,
		"batch_id":  event.BatchID,
		"actor":     event.Actor,
	}
	for key, value := range event.Detail {
		fields[key] = value
	}
	s.logger.WithFields(fields).Info("audit event")
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Notify(context.Context, Event) {}

var (
	_ Sink = (*LogSink)(nil)
	_ Sink = NopSink{}
)
