package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestManifestRecordAndReload(t *testing.T) {
	dir := t.TempDir()

	m, err := LoadManifest(dir)
	if err != nil {
		t.Fatalf("load empty manifest: %v", err)
	}
	if len(m.Entries()) != 0 {
		t.Fatalf("expected empty manifest")
	}

	entries := []ManifestEntry{
		{Timestamp: 1, Name: "b", Records: 1, Codec: "none"},
		{Timestamp: 2, Name: "a", Records: 2, Codec: "zstd"},
		{Timestamp: 3, Name: "b", Records: 5, Codec: "snappy"},
	}
	for _, e := range entries {
		if err := m.Record(e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	reloaded, err := LoadManifest(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(reloaded.Entries(), entries) {
		t.Errorf("expected %+v, got %+v", entries, reloaded.Entries())
	}

	latest, ok := reloaded.Latest("b")
	if !ok || latest.Records != 5 {
		t.Errorf("expected latest b with 5 records, got %+v %v", latest, ok)
	}
	if _, ok := reloaded.Latest("c"); ok {
		t.Errorf("expected no entry for c")
	}
	if names := reloaded.Names(); !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Errorf("expected [a b], got %v", names)
	}
}

func TestManifestInvalid(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ManifestFileName), []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	if _, err := LoadManifest(dir); !errors.Is(err, ErrInvalidManifest) {
		t.Errorf("expected ErrInvalidManifest, got %v", err)
	}
}

func TestManifestRecordFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	os.WriteFile(blocker, nil, 0644)

	m := &Manifest{dir: blocker}
	if err := m.Record(ManifestEntry{Name: "F"}); !errors.Is(err, ErrIO) {
		t.Errorf("expected ErrIO, got %v", err)
	}
	if len(m.Entries()) != 0 {
		t.Errorf("failed record must not stay in memory")
	}
}
