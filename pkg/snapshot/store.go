package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/KevoDB/blockstore/pkg/disk"
)

// Extension is appended to the file name to form the backup name
const Extension = ".bak"

var (
	// ErrSnapshotNotFound is returned when no backup exists for a name
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrIO is returned when a backup cannot be read or written
	ErrIO = errors.New("snapshot I/O error")
)

// Store keeps one backup blob per file name in a directory
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created on the
// first save.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = "."
	}
	return &Store{dir: dir}
}

// Dir returns the store directory
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the backup path for name
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+Extension)
}

// Save writes blob as the backup of name, replacing any previous one
func (s *Store) Save(name string, blob []byte) error {
	if err := disk.ValidateName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %v", ErrIO, err)
	}

	path := s.Path(name)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, blob, 0644); err != nil {
		return fmt.Errorf("%w: failed to write snapshot: %v", ErrIO, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("%w: failed to rename snapshot: %v", ErrIO, err)
	}
	return nil
}

// Load reads the backup of name
func (s *Store) Load(name string) ([]byte, error) {
	if err := disk.ValidateName(name); err != nil {
		return nil, err
	}

	path := s.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, path)
		}
		return nil, fmt.Errorf("%w: failed to read snapshot: %v", ErrIO, err)
	}
	return data, nil
}
