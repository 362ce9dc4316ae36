package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bloodlink/bloodlink/internal/rbac"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries denial events.
	QueueAudit = "audit"
	// TaskAuditDenial persists one authorization denial.
	TaskAuditDenial = "audit:denial"
	// TaskAuditPurge removes denial entries past retention.
	TaskAuditPurge = "audit:purge"
)

// AuditDenialPayload wraps the denial event.
type AuditDenialPayload struct {
	Event rbac.DenialEvent `json:"event"`
}

// NewAuditDenialTask constructs an Asynq task for event. The event id doubles
// as task id so a retried enqueue does not store the denial twice.
func NewAuditDenialTask(event rbac.DenialEvent) (*asynq.Task, error) {
	data, err := json.Marshal(AuditDenialPayload{Event: event})
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueAudit), asynq.MaxRetry(10)}
	if event.ID != "" {
		opts = append(opts, asynq.TaskID(event.ID))
	}
	return asynq.NewTask(TaskAuditDenial, data, opts...), nil
}

// AuditPurgePayload configures the retention sweep.
type AuditPurgePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewAuditPurgeTask constructs an Asynq task for the retention sweep.
func NewAuditPurgeTask(payload AuditPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPurge, data, asynq.Queue(QueueDefault)), nil
}
