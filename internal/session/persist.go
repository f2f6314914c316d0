package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FilePersister snapshots the store to a JSON file. Writes go through a
// temp file plus rename, guarded by an advisory file lock so concurrent
// processes sharing the same path do not interleave.
type FilePersister struct {
	path string
	lock *flock.Flock
}

// NewFilePersister creates a persister writing to path, creating parent
// directories as needed.
func NewFilePersister(path string) (*FilePersister, error) {
	if path == "" {
		return nil, errors.New("session: persister path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	return &FilePersister{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Save writes the snapshot atomically.
func (p *FilePersister) Save(snap Snapshot) error {
	if err := p.lock.Lock(); err != nil {
		return fmt.Errorf("locking session file: %w", err)
	}
	defer p.lock.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session snapshot: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing session snapshot: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("replacing session snapshot: %w", err)
	}
	return nil
}

// Load reads the last snapshot. ok is false when no snapshot exists yet.
func (p *FilePersister) Load() (Snapshot, bool, error) {
	if err := p.lock.Lock(); err != nil {
		return Snapshot{}, false, fmt.Errorf("locking session file: %w", err)
	}
	defer p.lock.Unlock()

	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("reading session snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decoding session snapshot: %w", err)
	}
	return snap, true, nil
}
