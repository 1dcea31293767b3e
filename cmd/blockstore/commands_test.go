package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KevoDB/blockstore/pkg/common/log"
	"github.com/KevoDB/blockstore/pkg/config"
	"github.com/KevoDB/blockstore/pkg/engine"
)

func newTestShell(t *testing.T, blocks int) (*shell, *bytes.Buffer) {
	t.Helper()

	cfg := config.NewDefaultConfig(t.TempDir())
	cfg.PoolCapacity = blocks
	eng, err := engine.New(cfg, engine.WithLogger(log.Nop()))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	t.Cleanup(func() { eng.Close() })

	var out bytes.Buffer
	return newShell(eng, &out), &out
}

// run executes line and returns what it printed
func run(t *testing.T, sh *shell, out *bytes.Buffer, line string) string {
	t.Helper()
	out.Reset()
	if sh.execute(line) {
		t.Fatalf("%q unexpectedly ended the shell", line)
	}
	return out.String()
}

func TestShellSession(t *testing.T) {
	sh, out := newTestShell(t, 3)

	steps := []struct {
		line string
		want string
	}{
		{"INSERT 1 a", "no file"},
		{"CREATE f 3", "File f created with 3 entries"},
		{"insert 1 hello   world", "Record 1 inserted at position 0"},
		{"INSERT 2 b", "Record 2 inserted at position 1"},
		{"INSERT 3 c", "Record 3 inserted at position 2"},
		{"INSERT 4 d", "the file is full"},
		{"SEARCH 1", "found at position 0 (block 0): hello   world"},
		{"DELETE 2", "Record 2 deleted"},
		{"INSERT 4 d", "Record 4 inserted at position 1"},
		{"COUNT", "3 records"},
		{"EDIT 4 dd", "Record 4 updated"},
		{"FIND world", "Found at positions: 0"},
		{"FIND nothing", "No record contains"},
		{"SEARCH 99", "record not found"},
		{"SORT", "File sorted"},
		{"DEFRAG", "File defragmented"},
		{"COMPACT", "Compaction moved 0 of 3 blocks"},
		{"META", "Record count: 3"},
		{"CREATE g 2", "use DROP first"},
		{"STATUS", "3 of 3 blocks used"},
		{"DROP", "File deleted"},
		{"SHOW", "File is empty"},
		{"META", "First block:  none"},
		{"CLEAR", "Disk cleared"},
		{"BOGUS", "Unknown command: BOGUS"},
		{".nope", "Unknown command: .nope"},
	}

	for _, step := range steps {
		got := run(t, sh, out, step.line)
		if !strings.Contains(got, step.want) {
			t.Errorf("%q: expected output containing %q, got %q", step.line, step.want, got)
		}
	}
}

func TestShellUsageErrors(t *testing.T) {
	sh, out := newTestShell(t, 2)

	tests := []struct {
		line string
		want string
	}{
		{"CREATE", "usage: CREATE name count"},
		{"CREATE f x", "count \"x\" is not a number"},
		{"CREATE f 1 extra", "usage: CREATE name count"},
		{"INSERT", "usage: INSERT id content"},
		{"INSERT abc x", "id \"abc\" is not a number"},
		{"SEARCH", "usage: SEARCH id"},
		{"DELETE 1 2", "usage: DELETE id"},
		{"FIND", "usage: FIND text"},
		{"RESTORE", "usage: RESTORE name"},
	}

	for _, tt := range tests {
		got := run(t, sh, out, tt.line)
		if !strings.Contains(got, tt.want) {
			t.Errorf("%q: expected output containing %q, got %q", tt.line, tt.want, got)
		}
	}
}

func TestShellCreateOversizedFile(t *testing.T) {
	sh, out := newTestShell(t, 2)

	got := run(t, sh, out, "CREATE f 4611686018427387904")
	if !strings.HasPrefix(got, "Error:") || !strings.Contains(got, "exceeds") {
		t.Errorf("expected capacity error, got %q", got)
	}
	if p := sh.prompt(); p != "blockstore> " {
		t.Errorf("expected no active file, got prompt %q", p)
	}
}

func TestShellBackupRestore(t *testing.T) {
	sh, out := newTestShell(t, 4)

	run(t, sh, out, "CREATE saved 4")
	run(t, sh, out, "INSERT 5 five")
	run(t, sh, out, "INSERT 6 six")

	if got := run(t, sh, out, "BACKUP"); !strings.Contains(got, "Backed up saved: 2 records") {
		t.Fatalf("unexpected backup output: %q", got)
	}
	if got := run(t, sh, out, ".backups"); !strings.Contains(got, "saved") {
		t.Errorf("backup history missing entry: %q", got)
	}
	if got := run(t, sh, out, "RESTORE saved"); !strings.Contains(got, "use DROP first") {
		t.Errorf("expected restore to be refused, got %q", got)
	}

	run(t, sh, out, "DROP")
	if got := run(t, sh, out, "RESTORE saved"); !strings.Contains(got, "Restored saved with 2 records") {
		t.Fatalf("unexpected restore output: %q", got)
	}
	if got := run(t, sh, out, "SHOW"); !strings.Contains(got, "six") {
		t.Errorf("restored records missing: %q", got)
	}
	if got := run(t, sh, out, "RESTORE missing"); !strings.Contains(got, "Error:") {
		t.Errorf("expected error restoring a missing backup, got %q", got)
	}
}

func TestShellDotCommands(t *testing.T) {
	sh, out := newTestShell(t, 2)

	if got := run(t, sh, out, ".help"); !strings.Contains(got, "RESTORE name") {
		t.Errorf("help text incomplete: %q", got)
	}

	run(t, sh, out, "CREATE f 1")
	run(t, sh, out, "INSERT 1 a")
	got := run(t, sh, out, ".stats")
	for _, want := range []string{"Insert: 1", "Blocks used: 1 of 2", "Active file: f (1 records)"} {
		if !strings.Contains(got, want) {
			t.Errorf(".stats: expected %q in %q", want, got)
		}
	}

	if got := run(t, sh, out, ".backups"); !strings.Contains(got, "No backups") {
		t.Errorf("expected empty backup history, got %q", got)
	}

	out.Reset()
	if !sh.execute(".exit") {
		t.Error(".exit did not end the shell")
	}
}

func TestShellPrompt(t *testing.T) {
	sh, out := newTestShell(t, 2)

	if p := sh.prompt(); p != "blockstore> " {
		t.Errorf("unexpected prompt %q", p)
	}
	run(t, sh, out, "CREATE data 1")
	if p := sh.prompt(); p != "blockstore:data> " {
		t.Errorf("unexpected prompt %q", p)
	}
}

func TestNextField(t *testing.T) {
	tests := []struct {
		in, field, rest string
	}{
		{"", "", ""},
		{"one", "one", ""},
		{"  one  two  three", "one", "two  three"},
		{"a\tb", "a", "b"},
	}
	for _, tt := range tests {
		field, rest := nextField(tt.in)
		if field != tt.field || rest != tt.rest {
			t.Errorf("nextField(%q) = %q, %q; want %q, %q", tt.in, field, rest, tt.field, tt.rest)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", config.DefaultConfigFileName)

	cfg, err := loadConfig(Flags{ConfigPath: path, Blocks: 7, Codec: "zstd"})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.PoolCapacity != 7 || cfg.SnapshotCodec != "zstd" {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.BackupDir != filepath.Dir(path) {
		t.Errorf("expected backup dir %s, got %s", filepath.Dir(path), cfg.BackupDir)
	}

	// The missing file was created with defaults
	saved, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig of created file failed: %v", err)
	}
	if saved.PoolCapacity != config.DefaultPoolCapacity {
		t.Errorf("expected saved default capacity, got %d", saved.PoolCapacity)
	}

	if _, err := loadConfig(Flags{Blocks: -1}); err == nil {
		t.Error("expected error for negative block count")
	}
	if _, err := loadConfig(Flags{Codec: "lz4"}); err == nil {
		t.Error("expected error for unknown codec")
	}
}
