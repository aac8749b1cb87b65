package migration

import "errors"

var (
	// ErrNotMigrated is returned by Rollback when instanceId has no
	// "migrated" record to roll back.
	ErrNotMigrated = errors.New("instance was not migrated")
)
