package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"lifeos/internal/goal"
	"lifeos/internal/life"
)

// Store persists the engine state with write-temp + fsync + rename, so at
// any rename boundary the file is either the previous valid document or the
// new one. Writers are serialized; readers in other processes read between
// renames.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger

	// Foreign top-level keys found in the file, preserved on re-save for
	// forward compatibility.
	extras map[string]json.RawMessage
}

// NewStore creates a store over the given file path.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger.Named("state")}
}

// Path returns the canonical state file path.
func (st *Store) Path() string { return st.path }

// Load reads the state file, returning the default document when the file
// is missing or malformed.
func (st *Store) Load() *EngineState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.loadLocked()
}

func (st *Store) loadLocked() *EngineState {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if !os.IsNotExist(err) {
			st.logger.Warn("state file unreadable, using defaults", zap.Error(err))
		}
		st.extras = nil
		return Default()
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		st.logger.Warn("state file malformed, using defaults", zap.Error(err))
		st.extras = nil
		return Default()
	}

	s := Default()
	if err := json.Unmarshal(data, s); err != nil {
		st.logger.Warn("state file malformed, using defaults", zap.Error(err))
		st.extras = nil
		return Default()
	}
	if s.AreaScores == nil {
		s.AreaScores = make(map[life.Area]int)
	}
	if s.UserContext == nil {
		s.UserContext = make(map[string]any)
	}
	if s.GoalCriteria == nil {
		s.GoalCriteria = make(map[string]*goal.CriteriaSet)
	}

	known := knownKeys()
	st.extras = make(map[string]json.RawMessage)
	for k, v := range raw {
		if !known[k] {
			st.extras[k] = v
		}
	}
	return s
}

// Save writes the state atomically: temp sibling, fsync, rename.
func (st *Store) Save(s *EngineState) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.saveLocked(s)
}

func (st *Store) saveLocked(s *EngineState) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if len(st.extras) > 0 {
		var merged map[string]json.RawMessage
		if err := json.Unmarshal(doc, &merged); err != nil {
			return fmt.Errorf("remarshal state: %w", err)
		}
		for k, v := range st.extras {
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}
		if doc, err = json.MarshalIndent(merged, "", "  "); err != nil {
			return fmt.Errorf("merge state: %w", err)
		}
	} else if doc, err = json.MarshalIndent(s, "", "  "); err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	return AtomicWrite(st.path, doc)
}

// AppendInsight loads, unshifts, truncates to the ring cap, and saves.
// Returns whether the insight was new.
func (st *Store) AppendInsight(in life.Insight) (bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.loadLocked()
	added := s.AddInsight(in)
	return added, st.saveLocked(s)
}

// RecordAction appends a completed action to the ring and saves.
func (st *Store) RecordAction(a life.Action, at time.Time) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.loadLocked()
	s.RecordCompletedAction(a, at)
	return st.saveLocked(s)
}

// AtomicWrite writes data to path via a temp sibling, fsync, then rename.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// knownKeys is the set of top-level JSON keys EngineState owns.
func knownKeys() map[string]bool {
	doc, err := json.Marshal(Default())
	if err != nil {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil
	}
	keys := make(map[string]bool, len(m))
	for k := range m {
		keys[k] = true
	}
	return keys
}
