package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/CorMazz/chronolab/pkg/model"
)

// SessionVersion is the current version of the session file format.
const SessionVersion = 1

// SessionExtension is the conventional session file suffix.
const SessionExtension = ".crm"

// ErrSessionNotFound is returned when a session file does not exist.
var ErrSessionNotFound = errors.New("session file not found")

// SessionFile is the on-disk layout. The state's fields sit at the top
// level next to the version header.
type SessionFile struct {
	// Version is the file format version. Files without one are version 0.
	Version int `json:"version,omitempty"`

	// SavedAt is when the file was written.
	SavedAt time.Time `json:"saved_at,omitzero"`

	model.State
}

// SessionStore saves and loads session files. Saves and loads are
// serialized so a load never observes a half-written file from this
// process.
type SessionStore struct {
	mu  sync.Mutex
	now func() time.Time
}

// NewSessionStore creates a session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{now: time.Now}
}

// Save writes state to path, creating parent directories as needed.
func (s *SessionStore) Save(path string, state *model.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	file := SessionFile{
		Version: SessionVersion,
		SavedAt: s.now().UTC(),
		State:   *state,
	}
	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize session: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Load reads the session at path. Empty timestamps in the file are
// returned as nil.
func (s *SessionStore) Load(path string) (*model.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, path)
	}
	if err != nil {
		return nil, err
	}

	var file SessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("deserialize session %s: %w", path, err)
	}
	if file.Version > SessionVersion {
		return nil, fmt.Errorf("session %s has version %d, newest supported is %d", path, file.Version, SessionVersion)
	}

	state := file.State
	state.Normalize()
	return &state, nil
}
