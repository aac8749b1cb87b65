package migration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolstate"
)

// Run is one append-only entry in the migration log: the result of one
// invocation of the operator tool, grouping every per-bot record it produced.
type Run struct {
	StartedAt       time.Time                   `json:"startedAt"`
	CompletedAt     time.Time                   `json:"completedAt"`
	MigratedBots    []poolstate.MigrationRecord `json:"migratedBots"`
	FailedBots      []poolstate.MigrationRecord `json:"failedBots"`
	RollbackHistory []poolstate.MigrationRecord `json:"rollbackHistory"`
}

// Ledger is the append-only {root}/.migration-log.json file. Unlike
// poolstate's state file, the ledger is never rewritten in place beyond
// atomic replacement of the whole array — there is no in-place mutation of
// past runs.
type Ledger struct {
	path string
}

func NewLedger(root string) *Ledger {
	return &Ledger{path: filepath.Join(root, ".migration-log.json")}
}

// Runs returns every completed Run recorded in the ledger, oldest first, for
// operator tooling (`migrate status`) to report on.
func (l *Ledger) Runs() ([]Run, error) {
	return l.loadRuns()
}

func (l *Ledger) loadRuns() ([]Run, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var runs []Run
	if err := json.Unmarshal(data, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// Append adds one completed Run to the ledger, atomically replacing the
// file (temp file + rename, matching the state store's persistence pattern).
func (l *Ledger) Append(run Run) error {
	runs, err := l.loadRuns()
	if err != nil {
		return err
	}
	runs = append(runs, run)

	data, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return err
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

// AlreadyMigrated reports whether instanceId has a "migrated" record in any
// prior run that is not followed by a later "rolledBack" record for the
// same instance — i.e. it is migrated and currently still pooled.
func (l *Ledger) AlreadyMigrated(instanceID string) (bool, error) {
	runs, err := l.loadRuns()
	if err != nil {
		return false, err
	}

	migrated := false
	for _, run := range runs {
		for _, r := range run.MigratedBots {
			if r.InstanceID == instanceID {
				migrated = true
			}
		}
		for _, r := range run.RollbackHistory {
			if r.InstanceID == instanceID {
				migrated = false
			}
		}
	}
	return migrated, nil
}

// FindMigrated locates the most recent "migrated" record for instanceId,
// used by Rollback to recover the preserved dedicated-mode details.
func (l *Ledger) FindMigrated(instanceID string) (poolstate.MigrationRecord, bool, error) {
	runs, err := l.loadRuns()
	if err != nil {
		return poolstate.MigrationRecord{}, false, err
	}
	var found poolstate.MigrationRecord
	ok := false
	for _, run := range runs {
		for _, r := range run.MigratedBots {
			if r.InstanceID == instanceID {
				found = r
				ok = true
			}
		}
	}
	return found, ok, nil
}
