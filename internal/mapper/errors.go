package mapper

import "errors"

var (
	// ErrBotNotFound covers both an unknown instanceId and one whose
	// on-disk instance directory cannot be located by discovery.
	ErrBotNotFound = errors.New("bot not found")

	// ErrUnsupportedForDedicated covers operations that only make sense for
	// a pooled bot behind a supervisor, such as a hot strategy reload.
	ErrUnsupportedForDedicated = errors.New("operation not supported for dedicated bots")
)
