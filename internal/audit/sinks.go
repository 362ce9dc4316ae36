package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bloodlink/bloodlink/internal/rbac"
)

// Enqueuer hands denial events to the background queue.
type Enqueuer interface {
	EnqueueDenial(ctx context.Context, event rbac.DenialEvent) error
}

// QueueSink forwards denials to a job queue so requests never wait on the database.
type QueueSink struct {
	queue   Enqueuer
	timeout time.Duration
}

// NewQueueSink constructs a QueueSink. timeout bounds each enqueue call.
func NewQueueSink(queue Enqueuer, timeout time.Duration) *QueueSink {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &QueueSink{queue: queue, timeout: timeout}
}

// Record enqueues the event. The request context's cancellation is ignored so
// a client hanging up does not drop the denial.
func (s *QueueSink) Record(ctx context.Context, event rbac.DenialEvent) error {
	if s == nil || s.queue == nil {
		return errors.New("audit: queue not configured")
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	return s.queue.EnqueueDenial(ctx, event)
}

// LogSink writes denials to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record logs the event at Warn.
func (s *LogSink) Record(ctx context.Context, event rbac.DenialEvent) error {
	if s == nil || s.logger == nil {
		return nil
	}
	attrs := []slog.Attr{
		slog.String("event_id", event.ID),
		slog.String("reason", string(event.Reason)),
		slog.String("check", string(event.Check)),
		slog.Time("at", event.At),
	}
	if event.UserID != nil {
		attrs = append(attrs, slog.Int64("user_id", *event.UserID))
	}
	if event.TargetUnitID != nil {
		attrs = append(attrs, slog.Int64("target_unit_id", *event.TargetUnitID))
	}
	if event.Path != "" {
		attrs = append(attrs, slog.String("method", event.Method), slog.String("path", event.Path))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	if event.IP != "" {
		attrs = append(attrs, slog.String("ip", event.IP))
	}
	if event.Detail != "" {
		attrs = append(attrs, slog.String("detail", event.Detail))
	}
	s.logger.LogAttrs(ctx, slog.LevelWarn, "authorization denied", attrs...)
	return nil
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []rbac.AuditSink

// Record calls every non-nil sink even when an earlier one fails.
func (m MultiSink) Record(ctx context.Context, event rbac.DenialEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ rbac.AuditSink = (*QueueSink)(nil)
	_ rbac.AuditSink = (*LogSink)(nil)
	_ rbac.AuditSink = MultiSink(nil)
)
