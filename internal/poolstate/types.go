// Package poolstate defines the persisted data model for the pool
// orchestrator: pools, slots, the bot mapping, the restart ledger, and the
// migration log, plus atomic load/save of the single JSON state file.
package poolstate

import "time"

// PoolStatus is the lifecycle state of a pool container.
type PoolStatus string

const (
	PoolRunning PoolStatus = "running"
	PoolStopped PoolStatus = "stopped"
	PoolFailed  PoolStatus = "failed"
)

// SlotStatus is the lifecycle state of a bot's placement.
type SlotStatus string

const (
	SlotPending SlotStatus = "pending"
	SlotRunning SlotStatus = "running"
	SlotStopped SlotStatus = "stopped"
	SlotFailed  SlotStatus = "failed"
)

// Pool is a shared container belonging to one user, hosting multiple bots.
type Pool struct {
	PoolID        string     `json:"poolId"`
	ContainerName string     `json:"containerName"`
	UserID        string     `json:"userId"`
	MaxBots       int        `json:"maxBots"`
	BasePort      int        `json:"basePort"`
	Bots          []string   `json:"bots"` // ordered by insertion; preserves slotIndex semantics
	Status        PoolStatus `json:"status"`
	MemMB         float64    `json:"memMB"`
	CPUPct        float64    `json:"cpuPct"`
	MetricsAt     time.Time  `json:"metricsAt,omitzero"`
	CreatedAt     time.Time  `json:"createdAt"`
	Root          string     `json:"root"`
}

// PortRange returns the pool's contiguous port range [basePort, basePort+maxBots).
func (p *Pool) PortRange() (lo, hi int) {
	return p.BasePort, p.BasePort + p.MaxBots
}

// UsedPorts returns the set of ports currently assigned to slots in the pool.
// The caller supplies the slot lookup since Pool itself holds no slot objects.
func (p *Pool) UsedPorts(lookup func(instanceID string) (Slot, bool)) map[int]bool {
	used := make(map[int]bool, len(p.Bots))
	for _, id := range p.Bots {
		if slot, ok := lookup(id); ok {
			used[slot.Port] = true
		}
	}
	return used
}

// Slot is the placement of one bot in one pool.
type Slot struct {
	InstanceID string     `json:"instanceId"`
	PoolID     string     `json:"poolId"`
	UserID     string     `json:"userId"`
	SlotIndex  int        `json:"slotIndex"`
	Port       int        `json:"port"`
	Status     SlotStatus `json:"status"`
	Host       string     `json:"host"`
}

// RestartScope is the kind of subject a RestartLedger entry tracks.
type RestartScope string

const (
	ScopePool RestartScope = "pool"
	ScopeBot  RestartScope = "bot"
)

// RestartEntry bounds automatic recovery attempts for one subject.
type RestartEntry struct {
	Count         int       `json:"count"`
	LastAttemptAt time.Time `json:"lastAttemptAt"`
}

// MigrationStatus is the outcome of one migration attempt.
type MigrationStatus string

const (
	MigrationMigrated   MigrationStatus = "migrated"
	MigrationFailed     MigrationStatus = "failed"
	MigrationRolledBack MigrationStatus = "rolledBack"
)

// MigrationRecord is one append-only entry in the migration ledger.
type MigrationRecord struct {
	InstanceID    string          `json:"instanceId"`
	UserID        string          `json:"userId"`
	Timestamp     time.Time       `json:"timestamp"`
	FromMode      string          `json:"fromMode"`
	ToMode        string          `json:"toMode"`
	Status        MigrationStatus `json:"status"`
	ResultingSlot *Slot           `json:"resultingSlot,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// State is the full on-disk schema of the state file.
type State struct {
	Pools       map[string]*Pool        `json:"pools"`
	BotMapping  map[string]*Slot        `json:"botMapping"`
	NextPoolID  map[string]int          `json:"nextPoolId"` // per-user next pool number
	RestartLog  map[string]RestartEntry `json:"restartLedger"`
	UpdatedAt   time.Time               `json:"updatedAt"`
	NextPortLow int                     `json:"nextPortLow"` // global monotone port floor
}

// NewState returns an empty, ready-to-use State.
func NewState() *State {
	return &State{
		Pools:      make(map[string]*Pool),
		BotMapping: make(map[string]*Slot),
		NextPoolID: make(map[string]int),
		RestartLog: make(map[string]RestartEntry),
	}
}

// RestartKey builds the RestartLedger composite key "(scope, id)".
func RestartKey(scope RestartScope, id string) string {
	return string(scope) + ":" + id
}
