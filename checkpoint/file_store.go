// Package checkpoint keeps the single progress record that lets an interrupted
// run pick up at the level-1 node it was working on.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gewnthar/areasync/models"
)

// ErrCorrupt is returned by Load when the file exists but cannot be used.
var ErrCorrupt = errors.New("checkpoint file is corrupt")

// FileStore persists the checkpoint as a JSON file.
type FileStore struct {
	Path string
	now  func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path, now: time.Now}
}

// Save overwrites the record. The write goes through a temp file and a rename
// so a crash never leaves a half-written checkpoint behind.
func (s *FileStore) Save(level int, lastID, path string) error {
	data, err := json.Marshal(models.ProgressCheckpoint{
		Level:     level,
		LastID:    lastID,
		Path:      path,
		Timestamp: s.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}

// Load returns nil, nil when no checkpoint exists.
func (s *FileStore) Load() (*models.ProgressCheckpoint, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", s.Path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var p models.ProgressCheckpoint
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if p.LastID == "" || p.Level < models.LevelProvince || p.Level > models.MaxLevel {
		return nil, fmt.Errorf("%w: level %d, last_id %q", ErrCorrupt, p.Level, p.LastID)
	}
	return &p, nil
}

// Clear removes the record. A missing file is not an error.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove checkpoint %s: %w", s.Path, err)
	}
	return nil
}
