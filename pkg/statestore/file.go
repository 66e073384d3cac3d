package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/weft-testbed/weft/pkg/util"
)

// FileStore keeps one JSON file per slice under a directory, by default
// ~/.weft/slices/<name>.json.
type FileStore struct {
	Dir string
}

// DefaultDir returns the standard slice record directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".weft", "slices")
	}
	return filepath.Join(home, ".weft", "slices")
}

// NewFileStore returns a FileStore rooted at dir, or at DefaultDir when
// dir is empty.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDir()
	}
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\") || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid slice name '%s'", name)
	}
	return filepath.Join(s.Dir, name+".json"), nil
}

// Save writes the record to <dir>/<name>.json, creating the directory on
// first use.
func (s *FileStore) Save(ctx context.Context, rec *SliceRecord) error {
	path, err := s.path(rec.Name())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	rec.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal slice record: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write slice record: %w", err)
	}
	return nil
}

// Load reads the record for a slice name.
func (s *FileStore) Load(ctx context.Context, name string) (*SliceRecord, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("slice '%s': %w", name, util.ErrNotFound)
		}
		return nil, fmt.Errorf("read slice record: %w", err)
	}
	var rec SliceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse slice record %s: %w", path, err)
	}
	return &rec, nil
}

// Delete removes the record. Deleting a record that does not exist is not
// an error.
func (s *FileStore) Delete(ctx context.Context, name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete slice record: %w", err)
	}
	return nil
}

// List returns every readable record in the directory, sorted by slice
// name. Files that are not slice records are skipped.
func (s *FileStore) List(ctx context.Context) ([]*SliceRecord, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list slice records: %w", err)
	}

	var out []*SliceRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rec, err := s.Load(ctx, strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			util.Warnf("skipping unreadable slice record %s: %v", e.Name(), err)
			continue
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

var _ Store = (*FileStore)(nil)
