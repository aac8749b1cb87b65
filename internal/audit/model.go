package audit

import "time"

// EventModel is the go-pg table model for the best-effort audit trail. It
// is never the source of truth for orchestrator state — the JSON state file
// and migration ledger are — so a write failure here is logged, not raised.
type EventModel struct {
	ID         int64     `pg:"id,pk"`
	OccurredAt time.Time `pg:"occurred_at"`
	Subsystem  string    `pg:"subsystem"` // "pool" | "health" | "migration"
	Kind       string    `pg:"kind"`      // e.g. "allocated", "bot_recovery_attempted", "migrated"
	InstanceID string    `pg:"instance_id"`
	PoolID     string    `pg:"pool_id"`
	UserID     string    `pg:"user_id"`
	Detail     string    `pg:"detail"`
}
