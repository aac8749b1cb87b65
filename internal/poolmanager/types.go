package poolmanager

// BotConfig is the caller-supplied configuration for one bot: the strategy
// it should run and any strategy parameters. The orchestrator core does not
// interpret the trading semantics of Strategy or Params; it only needs the
// name to pick a config/program template and to detect a missing strategy
// file (falling back to a safe default, per the per-bot program contract).
type BotConfig struct {
	Strategy       string
	InitialBalance float64
	Params         map[string]string
}

// ReconcileReport is the result of one PoolManager.Reconcile() pass.
type ReconcileReport struct {
	PoolsChecked int
	RemovedStale []StaleSlot
	OrphansFound []OrphanBot
	Errors       []string
}

// StaleSlot records a slot removed from state because the supervisor no
// longer reports the bot as running.
type StaleSlot struct {
	InstanceID string
	PoolID     string
	Reason     string
}

// OrphanBot records a supervisor-reported program with no matching slot.
// Reconcile never rescues these automatically — it only flags them.
type OrphanBot struct {
	PoolID  string
	Program string
}

// Connection is what callers receive from ConnectionOf.
type Connection struct {
	Host          string
	Port          int
	URL           string
	PoolID        string
	SlotIndex     int
	ContainerName string
}

// PoolStats is a read-only snapshot of one pool for stats()/userPools().
type PoolStats struct {
	PoolID   string
	UserID   string
	Status   string
	MaxBots  int
	BotCount int
	MemMB    float64
	CPUPct   float64
}

// Stats is the aggregate returned by Manager.Stats().
type Stats struct {
	TotalPools   int
	TotalBots    int
	PoolsByUser  map[string]int
	RunningPools int
	StoppedPools int
	FailedPools  int
}

// PoolSnapshot is a read-only view of one pool for HealthMonitor and
// MigrationEngine, which must observe PoolManager state without holding its
// lock across their own I/O.
type PoolSnapshot struct {
	PoolID        string
	UserID        string
	ContainerName string
	Status        string
	Root          string
	Bots          []string
}
