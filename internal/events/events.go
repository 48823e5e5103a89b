// Package events publishes domain events to downstream collaborators.
package events

import (
	"context"
	"log/slog"
	"time"
)

const (
	// KindTransactionCommitted is emitted after a ledger transaction commits.
	KindTransactionCommitted = "ledger.transaction_committed"
	// KindPayoutStatusChanged is emitted after a payout request changes state.
	KindPayoutStatusChanged = "payout.status_changed"
)

// Event describes something that already happened inside the ledger core.
type Event struct {
	Kind       string
	Subject    string
	OccurredAt time.Time
	Attributes map[string]any
}

// Publisher delivers events. Publishing is best effort: the change the event
// describes is already committed when Publish is called.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LoggerPublisher writes events to a structured logger.
type LoggerPublisher struct {
	logger *slog.Logger
}

// NewLoggerPublisher constructs a publisher backed by logger.
func NewLoggerPublisher(logger *slog.Logger) *LoggerPublisher {
	return &LoggerPublisher{logger: logger}
}

// Publish writes the event as one info record.
func (p *LoggerPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.logger == nil {
		return nil
	}
	attrs := make([]any, 0, len(event.Attributes)+3)
	attrs = append(attrs,
		slog.String("kind", event.Kind),
		slog.String("subject", event.Subject),
		slog.Time("occurred_at", event.OccurredAt),
	)
	for k, v := range event.Attributes {
		attrs = append(attrs, slog.Any(k, v))
	}
	p.logger.InfoContext(ctx, "event", attrs...)
	return nil
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory. Tests use it to assert on
// emitted events.
type Recorder struct {
	ch chan Event
}

// NewRecorder returns a Recorder buffering up to size events.
func NewRecorder(size int) *Recorder {
	return &Recorder{ch: make(chan Event, size)}
}

// Publish implements Publisher. Events beyond the buffer are dropped.
func (r *Recorder) Publish(_ context.Context, event Event) error {
	select {
	case r.ch <- event:
	default:
	}
	return nil
}

// Drain returns every buffered event.
func (r *Recorder) Drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-r.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}
