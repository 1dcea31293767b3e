// Package engine ties the block pool, the active record file and the backup
// store together behind the operations of the interactive menu.
//
// The engine holds at most one active file. Every operation runs under a
// single mutex, so the pool and the file are never observed half-updated.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KevoDB/blockstore/pkg/common/log"
	"github.com/KevoDB/blockstore/pkg/config"
	"github.com/KevoDB/blockstore/pkg/disk"
	"github.com/KevoDB/blockstore/pkg/file"
	"github.com/KevoDB/blockstore/pkg/snapshot"
	"github.com/KevoDB/blockstore/pkg/stats"
	"github.com/KevoDB/blockstore/pkg/telemetry"
)

// Engine is the menu-action facade over one pool and one active file
type Engine struct {
	cfg *config.Config

	// Core components
	pool     *disk.Pool
	active   *file.File
	store    *snapshot.Store
	manifest *snapshot.Manifest
	codec    snapshot.Codec

	stats   stats.Collector
	metrics EngineMetrics
	logger  log.Logger

	mu     sync.Mutex
	closed atomic.Bool
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger used by the engine
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTelemetry records engine metrics and spans through tel
func WithTelemetry(tel telemetry.Telemetry) Option {
	return func(e *Engine) {
		e.metrics = NewEngineMetrics(tel)
	}
}

// WithStats sets the statistics collector
func WithStats(collector stats.Collector) Option {
	return func(e *Engine) {
		e.stats = collector
	}
}

// New creates an engine with a fresh pool sized by cfg
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := disk.NewPool(cfg.PoolCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	codec, err := snapshot.ParseCodec(cfg.SnapshotCodec)
	if err != nil {
		return nil, err
	}

	manifest, err := snapshot.LoadManifest(cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup manifest: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		pool:     pool,
		store:    snapshot.NewStore(cfg.BackupDir),
		manifest: manifest,
		codec:    codec,
		stats:    stats.NewAtomicCollector(),
		metrics:  NewNoopEngineMetrics(),
		logger:   log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithField("component", telemetry.ComponentEngine)

	e.stats.TrackPoolUsage(0, uint64(pool.Capacity()))
	e.logger.Debug("engine started with %d blocks, backups in %s", pool.Capacity(), e.store.Dir())
	return e, nil
}

// run executes fn under the engine lock and records its outcome
func (e *Engine) run(op stats.OperationType, fn func(ctx context.Context) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return ErrEngineClosed
	}

	var attrs []attribute.KeyValue
	if e.active != nil {
		attrs = append(attrs, attribute.String(telemetry.AttrFileName, e.active.Name()))
	}
	ctx, span := e.metrics.StartOperation(context.Background(), string(op), attrs...)

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	e.stats.TrackOperationWithLatency(op, uint64(elapsed.Nanoseconds()))
	e.stats.TrackPoolUsage(uint64(e.pool.Used()), uint64(e.pool.Capacity()))
	e.metrics.RecordOperation(ctx, string(op), start, err)
	e.metrics.RecordPoolUsage(ctx, e.pool.Used(), e.pool.Capacity())

	if err != nil && !errors.Is(err, file.ErrNotFound) {
		e.stats.TrackError(string(op) + "_" + errorType(err))
		e.logger.WithField("op", op).Debug("operation failed: %v", err)
	}
	endSpan(span, err)
	return err
}

// requireFile returns the active file or ErrNoActiveFile
func (e *Engine) requireFile() (*file.File, error) {
	if e.active == nil {
		return nil, ErrNoActiveFile
	}
	return e.active, nil
}

// requireReplaceable fails when the active file still references blocks
func (e *Engine) requireReplaceable() error {
	if e.active != nil && e.active.Count() > 0 {
		return fmt.Errorf("%w: %q has %d records, delete it first",
			ErrFileActive, e.active.Name(), e.active.Count())
	}
	return nil
}

// CreateFile makes a new empty file the active one
func (e *Engine) CreateFile(name string, capacity int) error {
	return e.run(stats.OpCreate, func(ctx context.Context) error {
		if err := e.requireReplaceable(); err != nil {
			return err
		}
		f, err := file.Create(e.pool, name, capacity)
		if err != nil {
			return err
		}
		e.active = f
		e.logger.Info("created file %q with %d entries", name, capacity)
		return nil
	})
}

// Insert adds a record to the active file and returns its position
func (e *Engine) Insert(id int64, content string) (int, error) {
	position := -1
	err := e.run(stats.OpInsert, func(ctx context.Context) error {
		f, err := e.requireFile()
		if err != nil {
			return err
		}
		position, err = f.Insert(disk.Record{ID: id, Content: content})
		if err == nil {
			e.stats.TrackBytes(true, uint64(len(content)))
		}
		return err
	})
	return position, err
}

// Search returns the first entry holding a record with the given id
func (e *Engine) Search(id int64) (file.Entry, error) {
	var entry file.Entry
	err := e.run(stats.OpSearch, func(ctx context.Context) error {
		f, err := e.requireFile()
		if err != nil {
			return err
		}
		position, err := f.Search(id)
		if err != nil {
			return err
		}
		loc := f.Locator(position)
		rec, err := e.pool.Get(loc)
		if err != nil {
			return err
		}
		entry = file.Entry{Position: position, Locator: loc, Record: rec}
		e.stats.TrackBytes(false, uint64(len(rec.Content)))
		return nil
	})
	return entry, err
}

// Edit replaces the content of the first record with the given id
func (e *Engine) Edit(id int64, content string) error {
	return e.run(stats.OpEdit, func(ctx context.Context) error {
		f, err := e.requireFile()
		if err != nil {
			return err
		}
		if err := f.Edit(id, content); err != nil {
			return err
		}
		e.stats.TrackBytes(true, uint64(len(content)))
		return nil
	})
}

// Delete removes the first record with the given id
func (e *Engine) Delete(id int64) error {
	return e.run(stats.OpDelete, func(ctx context.Context) error {
		f, err := e.requireFile()
		if err != nil {
			return err
		}
		return f.Delete(id)
	})
}

// Sort orders the active file by ascending id
func (e *Engine) Sort() error {
	return e.run(stats.OpSort, func(ctx context.Context) error {
		f, err := e.requireFile()
		if err != nil {
			return err
		}
		return f.Sort()
	})
}

// Defragment moves the records of the active file to its first entries
func (e *Engine) Defragment() error {
	return e.run(stats.OpDefragment, func(ctx context.Context) error {
		f, err := e.requireFile()
		if err != nil {
			return err
		}
		f.Defragment()
		return nil
	})
}

// Compact packs the used blocks of the pool to its lowest slots
func (e *Engine) Compact() (disk.Relocation, error) {
	var relocation disk.Relocation
	err := e.run(stats.OpCompact, func(ctx context.Context) error {
		var relocators []disk.Relocator
		if e.active != nil {
			relocators = append(relocators, e.active)
		}

		var err error
		relocation, err = e.pool.Compact(relocators...)
		if err != nil {
			return err
		}
		e.stats.TrackRelocation(uint64(relocation.Moved()))
		e.metrics.RecordRelocation(ctx, relocation.Moved())
		e.logger.Info("compaction moved %d of %d blocks", relocation.Moved(), relocation.Len())
		return nil
	})
	return relocation, err
}

// ClearAll empties every block of the pool. The active file keeps its name
// and capacity but loses all its records.
func (e *Engine) ClearAll() error {
	return e.run(stats.OpClear, func(ctx context.Context) error {
		e.pool.Initialize()
		if e.active != nil {
			e.active.Reset()
		}
		e.logger.Info("pool cleared")
		return nil
	})
}

// DeleteFile releases every block of the active file
func (e *Engine) DeleteFile() error {
	return e.run(stats.OpDeleteFile, func(ctx context.Context) error {
		f, err := e.requireFile()
		if err != nil {
			return err
		}
		if err := f.DeleteFile(); err != nil {
			return err
		}
		e.logger.Info("deleted records of file %q", f.Name())
		return nil
	})
}

// SearchByContent returns the positions whose content contains substr
func (e *Engine) SearchByContent(substr string) ([]int, error) {
	var positions []int
	err := e.run(stats.OpSearchContent, func(ctx context.Context) error {
		f, err := e.requireFile()
		if err != nil {
			return err
		}
		positions, err = f.SearchByContent(substr)
		return err
	})
	return positions, err
}

// Backup writes a snapshot of the active file to the backup directory
func (e *Engine) Backup() (snapshot.ManifestEntry, error) {
	var entry snapshot.ManifestEntry
	err := e.run(stats.OpBackup, func(ctx context.Context) error {
		f, err := e.requireFile()
		if err != nil {
			return err
		}

		img, err := snapshot.Capture(f)
		if err != nil {
			return err
		}
		blob, err := snapshot.Encode(img, e.codec)
		if err != nil {
			return err
		}
		if err := e.store.Save(img.Name, blob); err != nil {
			return err
		}

		entry = snapshot.ManifestEntry{
			Name:     img.Name,
			Capacity: img.Capacity,
			Records:  len(img.Entries),
			Codec:    e.codec.String(),
			Size:     len(blob),
		}
		if err := e.manifest.Record(entry); err != nil {
			// The blob is on disk; only the history is missing
			e.logger.Warn("failed to record backup of %q in manifest: %v", img.Name, err)
		} else if latest, ok := e.manifest.Latest(img.Name); ok {
			entry = latest
		}

		e.stats.TrackBytes(true, uint64(len(blob)))
		e.metrics.RecordSnapshot(ctx, "write", e.codec.String(), len(blob))
		e.logger.Info("backed up %q to %s (%d records, %d bytes)",
			img.Name, e.store.Path(img.Name), len(img.Entries), len(blob))
		return nil
	})
	return entry, err
}

// Restore loads the named snapshot and makes it the active file
func (e *Engine) Restore(name string) error {
	return e.run(stats.OpRestore, func(ctx context.Context) error {
		if err := disk.ValidateName(name); err != nil {
			return err
		}
		if err := e.requireReplaceable(); err != nil {
			return err
		}

		blob, err := e.store.Load(name)
		if err != nil {
			return err
		}
		img, err := snapshot.Decode(blob)
		if err != nil {
			return err
		}
		f, err := img.Rebuild(e.pool)
		if err != nil {
			return err
		}
		if f.Name() != name {
			e.logger.Warn("snapshot %s holds file %q", e.store.Path(name), f.Name())
		}
		e.active = f

		e.stats.TrackBytes(false, uint64(len(blob)))
		e.metrics.RecordSnapshot(ctx, "read", "", len(blob))
		e.logger.Info("restored %q with %d records", f.Name(), f.Count())
		return nil
	})
}

// read runs fn under the lock without tracking it as an operation
func (e *Engine) read(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return ErrEngineClosed
	}
	return fn()
}

// DiskStatus reports every block of the pool
func (e *Engine) DiskStatus() ([]disk.SlotStatus, error) {
	var status []disk.SlotStatus
	err := e.read(func() error {
		status = e.pool.Status()
		return nil
	})
	return status, err
}

// Count returns the number of records in the active file
func (e *Engine) Count() (int, error) {
	count := 0
	err := e.read(func() error {
		f, err := e.requireFile()
		if err != nil {
			return err
		}
		count = f.Count()
		return nil
	})
	return count, err
}

// Records returns the occupied entries of the active file in position order
func (e *Engine) Records() ([]file.Entry, error) {
	var records []file.Entry
	err := e.read(func() error {
		f, err := e.requireFile()
		if err != nil {
			return err
		}
		records, err = f.Records()
		return err
	})
	return records, err
}

// Meta returns the meta information of the active file
func (e *Engine) Meta() (file.MetaInfo, error) {
	var meta file.MetaInfo
	err := e.read(func() error {
		f, err := e.requireFile()
		if err != nil {
			return err
		}
		meta = f.Meta()
		return nil
	})
	return meta, err
}

// FileName returns the name of the active file, if any
func (e *Engine) FileName() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		return "", false
	}
	return e.active.Name(), true
}

// Verify checks that the active file and the pool agree
func (e *Engine) Verify() error {
	return e.read(func() error {
		if e.active == nil {
			return nil
		}
		return e.active.Verify()
	})
}

// Backups returns the backup history, oldest first
func (e *Engine) Backups() []snapshot.ManifestEntry {
	return e.manifest.Entries()
}

// GetStats returns the collected statistics plus the current pool state
func (e *Engine) GetStats() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.stats.GetStats()
	s["pool_available"] = e.pool.Available()
	if e.active != nil {
		s["active_file"] = e.active.Name()
		s["active_records"] = e.active.Count()
	}
	return s
}

// Close marks the engine closed. Later operations fail with ErrEngineClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Swap(true) {
		return nil
	}
	return e.metrics.Close()
}

// errorType names the sentinel behind err for error counters
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrNoActiveFile):
		return "no_active_file"
	case errors.Is(err, ErrFileActive):
		return "file_active"
	case errors.Is(err, file.ErrFileFull):
		return "file_full"
	case errors.Is(err, disk.ErrOutOfSpace):
		return "out_of_space"
	case errors.Is(err, disk.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, disk.ErrInvalidLocator):
		return "invalid_locator"
	case errors.Is(err, snapshot.ErrSnapshotNotFound):
		return "snapshot_not_found"
	case errors.Is(err, snapshot.ErrCorruptSnapshot):
		return "corrupt_snapshot"
	case errors.Is(err, snapshot.ErrIO):
		return "io"
	default:
		return "error"
	}
}
