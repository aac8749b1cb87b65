package poolmanager

import "errors"

var (
	// ErrMissingUserID is an input error: userId is required for allocate.
	ErrMissingUserID = errors.New("missing userId")

	// ErrUnknownInstance is an input error: no slot exists for this instanceId.
	ErrUnknownInstance = errors.New("unknown instance")

	// ErrPoolMissing is a state error: the slot's poolId has no pool record.
	ErrPoolMissing = errors.New("pool missing for slot")

	// ErrSupervisorError wraps a failure talking to the in-container supervisor.
	ErrSupervisorError = errors.New("supervisor error")

	// ErrIOError wraps a config/file write failure on the pool filesystem layout.
	ErrIOError = errors.New("pool io error")
)
