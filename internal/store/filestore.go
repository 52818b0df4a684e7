package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	groupsFileName = "groups.json"
	boardsFileName = "boards.json"
)

// FileStore persists snapshots as two JSON documents, groups.json and
// boards.json, inside a single directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating the directory if
// it does not exist.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %q: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Load reads groups.json and boards.json. A missing file is not an error;
// the corresponding part of the snapshot is simply empty.
func (s *FileStore) Load() (Snapshot, error) {
	snap := EmptySnapshot()

	if err := s.readJSON(groupsFileName, &snap.Groups); err != nil {
		return Snapshot{}, err
	}
	if err := s.readJSON(boardsFileName, &snap.Boards); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Save writes both documents. Each file is written through a temporary file
// and renamed into place so a crash mid-write never truncates the previous
// snapshot.
func (s *FileStore) Save(snap Snapshot) error {
	if err := s.writeJSON(groupsFileName, snap.Groups); err != nil {
		return err
	}
	return s.writeJSON(boardsFileName, snap.Boards)
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
