package poolstate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Store persists a State to a single JSON file using write-then-rename, the
// same atomic-replacement idiom the migration ledger uses: write to a temp
// file in the same directory, fsync is
// skipped (not required for this durability class), then rename over the
// destination so readers never observe a partial file.
type Store struct {
	path   string
	logger *slog.Logger
}

func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Load reads the state file if present. On parse failure it logs a warning
// and returns an empty state rather than failing startup (I/O error policy,
// state reads).
func (s *Store) Load() *State {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read state file, starting with empty state", "path", s.path, "error", err)
		}
		return NewState()
	}

	st := NewState()
	if err := json.Unmarshal(data, st); err != nil {
		s.logger.Warn("failed to parse state file, starting with empty state", "path", s.path, "error", err)
		return NewState()
	}
	if st.Pools == nil {
		st.Pools = make(map[string]*Pool)
	}
	if st.BotMapping == nil {
		st.BotMapping = make(map[string]*Slot)
	}
	if st.NextPoolID == nil {
		st.NextPoolID = make(map[string]int)
	}
	if st.RestartLog == nil {
		st.RestartLog = make(map[string]RestartEntry)
	}
	return st
}

// Save writes st atomically. A failure is logged and returned; the caller
// keeps its in-memory state and retries on the next mutation (I/O error
// policy, state writes).
func (s *Store) Save(st *State) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename temp state file: %w", err)
	}
	return nil
}
