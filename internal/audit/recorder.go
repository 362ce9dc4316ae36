// Package audit persists and fans out authorization denial events.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bloodlink/bloodlink/internal/rbac"
)

// ActionDenied is the audit_logs action used for authorization denials.
const ActionDenied = "rbac.deny"

// Entry represents a record stored in audit_logs.
type Entry struct {
	ID       int64
	ActorID  *int64
	Action   string
	Entity   string
	EntityID string
	Meta     json.RawMessage
	At       time.Time
}

// DB is the subset of pgxpool.Pool used by Recorder.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Recorder writes entries into audit_logs.
type Recorder struct {
	db DB
}

// NewRecorder returns a new Recorder.
func NewRecorder(db DB) *Recorder {
	return &Recorder{db: db}
}

// Write persists the entry.
func (r *Recorder) Write(ctx context.Context, e Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit: recorder not initialised")
	}
	if e.Action == "" || e.Entity == "" || e.EntityID == "" {
		return errors.New("audit: entry requires action/entity/entity_id")
	}
	var at *time.Time
	if !e.At.IsZero() {
		at = &e.At
	}
	meta := e.Meta
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	_, err := r.db.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		e.ActorID, e.Action, e.Entity, e.EntityID, []byte(meta), at)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Record implements rbac.AuditSink by persisting the denial synchronously.
func (r *Recorder) Record(ctx context.Context, event rbac.DenialEvent) error {
	entry, err := EntryFromDenial(event)
	if err != nil {
		return err
	}
	return r.Write(ctx, entry)
}

// Page sizes for denial listings.
const (
	DefaultDenialLimit = 50
	MaxDenialLimit     = 200
)

// ClampDenialLimit maps non-positive limits to the default and caps the rest.
func ClampDenialLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultDenialLimit
	case limit > MaxDenialLimit:
		return MaxDenialLimit
	}
	return limit
}

// Recent lists the newest denial entries, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("audit: recorder not initialised")
	}
	limit = ClampDenialLimit(limit)
	rows, err := r.db.Query(ctx, `SELECT id, actor_id, action, entity, entity_id, meta, occurred_at
FROM audit_logs
WHERE action = $1
ORDER BY occurred_at DESC, id DESC
LIMIT $2`, ActionDenied, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list denials: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &e.Meta, &e.At)
		return e, err
	})
}

// Purge removes denial entries older than before.
func (r *Recorder) Purge(ctx context.Context, before time.Time) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("audit: recorder not initialised")
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM audit_logs WHERE action = $1 AND occurred_at < $2`, ActionDenied, before)
	if err != nil {
		return 0, fmt.Errorf("audit: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

// EntryFromDenial maps a denial event onto the audit_logs layout. The entity
// is the target unit when one was requested and the request path otherwise.
func EntryFromDenial(event rbac.DenialEvent) (Entry, error) {
	meta, err := json.Marshal(event)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: encode denial: %w", err)
	}
	e := Entry{
		ActorID: event.UserID,
		Action:  ActionDenied,
		Meta:    meta,
		At:      event.At,
	}
	switch {
	case event.TargetUnitID != nil:
		e.Entity = "org_unit"
		e.EntityID = strconv.FormatInt(*event.TargetUnitID, 10)
	case event.Path != "":
		e.Entity = "route"
		e.EntityID = strings.TrimSpace(event.Method + " " + event.Path)
	default:
		e.Entity = "decision"
		e.EntityID = event.ID
	}
	return e, nil
}

var _ rbac.AuditSink = (*Recorder)(nil)
