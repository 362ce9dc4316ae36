package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/bloodlink/bloodlink/internal/jobs"
	"github.com/bloodlink/bloodlink/internal/rbac"
)

// DenialStore persists denial events and prunes old ones.
type DenialStore interface {
	Record(ctx context.Context, event rbac.DenialEvent) error
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// AuditJob stores queued denials and applies retention.
type AuditJob struct {
	Store   DenialStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAuditJob initialises the audit handlers.
func NewAuditJob(store DenialStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditJob {
	return &AuditJob{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// HandleDenial persists one denial event.
func (j *AuditJob) HandleDenial(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("audit denial: handler not configured")
	}
	var payload AuditDenialPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("audit denial: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskAuditDenial)
	defer func() {
		err = tracker.End(err)
	}()

	if err = j.Store.Record(ctx, payload.Event); err != nil {
		j.logger().Warn("audit denial store", slog.String("event_id", payload.Event.ID), slog.Any("error", err))
		return err
	}
	return nil
}

// HandlePurge removes denial entries older than the payload retention.
func (j *AuditJob) HandlePurge(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("audit purge: handler not configured")
	}
	var payload AuditPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("audit purge: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Retention <= 0 {
		payload.Retention = 90 * 24 * time.Hour
	}
	tracker := j.Metrics.Track(TaskAuditPurge)
	defer func() {
		err = tracker.End(err)
	}()

	cutoff := j.now().Add(-payload.Retention)
	removed, err := j.Store.Purge(ctx, cutoff)
	if err != nil {
		return err
	}
	j.Metrics.AddPurged(removed)
	j.logger().Info("audit purge", slog.Time("before", cutoff), slog.Int64("removed", removed))
	return nil
}

func (j *AuditJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}

func (j *AuditJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
