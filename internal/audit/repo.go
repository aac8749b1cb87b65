// Package audit is a supplementary, best-effort Postgres projection of pool/
// health/migration events. It is never authoritative: the JSON state file
// (internal/poolstate) and the migration ledger remain the source of truth,
// and every write here tolerates failure by logging rather than returning
// an error the caller would have to handle.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
)

// Recorder writes audit events if enabled, otherwise is a silent no-op.
type Recorder struct {
	db      *pg.DB
	enabled bool
	logger  *slog.Logger
}

// NewRecorder wraps db in a Recorder. Pass a nil db with enabled=false to
// get a no-op recorder for deployments without Postgres configured.
func NewRecorder(db *pg.DB, enabled bool, logger *slog.Logger) *Recorder {
	return &Recorder{db: db, enabled: enabled, logger: logger}
}

// Bootstrap creates the audit table if absent.
func (r *Recorder) Bootstrap() error {
	if r == nil || !r.enabled || r.db == nil {
		return nil
	}
	return r.db.Model(&EventModel{}).CreateTable(&orm.CreateTableOptions{IfNotExists: true})
}

// Record inserts one audit event, best-effort. Failures are logged and
// swallowed: the audit trail must never block or fail an orchestrator
// operation.
func (r *Recorder) Record(ctx context.Context, subsystem, kind, instanceID, poolID, userID, detail string) {
	if r == nil || !r.enabled || r.db == nil {
		return
	}
	evt := &EventModel{
		OccurredAt: time.Now(),
		Subsystem:  subsystem,
		Kind:       kind,
		InstanceID: instanceID,
		PoolID:     poolID,
		UserID:     userID,
		Detail:     detail,
	}
	if _, err := r.db.Model(evt).Insert(); err != nil {
		r.logger.Warn("audit: insert failed", "subsystem", subsystem, "kind", kind, "error", err)
	}
}
