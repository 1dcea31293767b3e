package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const ManifestFileName = "MANIFEST"

var ErrInvalidManifest = errors.New("invalid manifest")

// ManifestEntry records one backup written to the store
type ManifestEntry struct {
	Timestamp int64  `json:"timestamp"`
	Name      string `json:"name"`
	Capacity  int    `json:"capacity"`
	Records   int    `json:"records"`
	Codec     string `json:"codec"`
	Size      int    `json:"size"`
}

// Manifest is the backup history of a store directory. Only the latest entry
// per name describes the blob currently on disk.
type Manifest struct {
	dir     string
	entries []ManifestEntry
	mu      sync.RWMutex
}

// LoadManifest reads the manifest of dir. A missing manifest yields an empty
// one.
func LoadManifest(dir string) (*Manifest, error) {
	m := &Manifest{dir: dir}

	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("%w: failed to read manifest: %v", ErrIO, err)
	}

	if err := json.Unmarshal(data, &m.entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return m, nil
}

// Record appends an entry and persists the manifest
func (m *Manifest) Record(entry ManifestEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().Unix()
	}
	m.entries = append(m.entries, entry)

	if err := m.save(); err != nil {
		m.entries = m.entries[:len(m.entries)-1]
		return err
	}
	return nil
}

// Latest returns the most recent entry for name
func (m *Manifest) Latest(name string) (ManifestEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].Name == name {
			return m.entries[i], true
		}
	}
	return ManifestEntry{}, false
}

// Names returns every name with at least one backup, sorted
func (m *Manifest) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var names []string
	for _, e := range m.entries {
		if !seen[e.Name] {
			seen[e.Name] = true
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Entries returns a copy of the whole history, oldest first
func (m *Manifest) Entries() []ManifestEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ManifestEntry(nil), m.entries...)
}

func (m *Manifest) save() error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %v", ErrIO, err)
	}

	manifestPath := filepath.Join(m.dir, ManifestFileName)
	tempPath := manifestPath + ".tmp"

	data, err := json.MarshalIndent(m.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write manifest: %v", ErrIO, err)
	}

	if err := os.Rename(tempPath, manifestPath); err != nil {
		return fmt.Errorf("%w: failed to rename manifest: %v", ErrIO, err)
	}
	return nil
}
