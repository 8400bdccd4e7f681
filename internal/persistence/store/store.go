// Package store keeps saved levels on disk: one level file per name, the
// previous revisions under archives/, an optional SQLite index and an audit log.
package store

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"biomelevel.ai/internal/level/blocks"
	"biomelevel.ai/internal/level/world"
	"biomelevel.ai/internal/persistence/archive"
	"biomelevel.ai/internal/persistence/indexdb"
	"biomelevel.ai/internal/persistence/log"
	"biomelevel.ai/internal/persistence/r2s3"
	"biomelevel.ai/internal/persistence/snapshot"
	"biomelevel.ai/internal/tuning"
)

var (
	ErrBadName  = errors.New("store: level name must be 1-64 characters of [A-Za-z0-9_-]")
	ErrTooLarge = errors.New("store: layer exceeds max_world_size")
	ErrInvalid  = errors.New("store: invalid level")
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func ValidName(name string) error {
	if !nameRE.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return nil
}

type Store struct {
	dataDir string
	shape   blocks.Shape
	keep    int
	maxSize int

	index  *indexdb.SQLiteIndex
	mirror *r2s3.Mirror
	audit  *log.AuditLogger
	log    *stdlog.Logger

	mu sync.Mutex
}

// Saved describes a completed save.
type Saved struct {
	Header   snapshot.Header
	Path     string
	Revision int // archived revision of the overwritten file, 0 if none
}

func Open(dataDir string, tune tuning.Tuning, logger *stdlog.Logger) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("store: empty data dir")
	}
	shape, err := tune.ExportShape()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = stdlog.New(os.Stderr, "[store] ", stdlog.LstdFlags|stdlog.Lmicroseconds)
	}
	if err := os.MkdirAll(filepath.Join(dataDir, "levels"), 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		dataDir: dataDir,
		shape:   shape,
		keep:    tune.Storage.KeepRevisions,
		maxSize: tune.MaxWorldSize,
		audit:   log.NewAuditLogger(dataDir),
		log:     logger,
	}
	if !tune.Storage.DisableIndex {
		idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index.sqlite"))
		if err != nil {
			_ = s.audit.Close()
			return nil, err
		}
		s.index = idx
	}
	if m := tune.Storage.Mirror; m.Endpoint != "" {
		client, err := r2s3.New(m.Endpoint, m.Bucket, m.Region,
			os.Getenv("LEVELS_MIRROR_ACCESS_KEY_ID"), os.Getenv("LEVELS_MIRROR_SECRET_ACCESS_KEY"))
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.mirror = r2s3.NewMirror(client, dataDir, m.Prefix, m.Workers, m.Queue, logger)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.mirror.Close()
	var err error
	if s.index != nil {
		err = s.index.Close()
	}
	if cerr := s.audit.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Store) DataDir() string { return s.dataDir }

func (s *Store) IndexStats() indexdb.QueueStats { return s.index.Stats() }
func (s *Store) MirrorStats() r2s3.Stats        { return s.mirror.Stats() }
func (s *Store) AuditStats() log.AuditStats    { return s.audit.Stats() }

func (s *Store) Path(name string) string {
	return filepath.Join(s.dataDir, "levels", name+snapshot.Ext)
}

// Save validates c, rewrites its blocks into the configured shape and writes
// it under metadata.name. The previous file, if any, is archived first.
func (s *Store) Save(ctx context.Context, c *world.Container, remote string) (Saved, error) {
	name := c.Metadata.Name
	saved, err := s.save(ctx, c)
	e := log.AuditEntry{Op: "save", Level: name, Remote: remote, Digest: saved.Header.Digest, Layers: saved.Header.Layers, Archive: saved.Revision}
	if err != nil {
		e.Error = err.Error()
	}
	s.record(e)
	return saved, err
}

func (s *Store) save(ctx context.Context, c *world.Container) (Saved, error) {
	if err := ValidName(c.Metadata.Name); err != nil {
		return Saved{}, err
	}
	stats, err := world.Stats(c)
	if err != nil {
		return Saved{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	for _, st := range stats {
		if s.maxSize > 0 && (st.Width > s.maxSize || st.Height > s.maxSize) {
			return Saved{}, fmt.Errorf("%w: layer %q is %dx%d, max %d", ErrTooLarge, st.LayerType, st.Width, st.Height, s.maxSize)
		}
	}
	conv, err := world.Convert(c, s.shape)
	if err != nil {
		return Saved{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := ctx.Err(); err != nil {
		return Saved{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(c.Metadata.Name)
	rev, archived, ok, err := archive.ArchiveRevision(s.dataDir, c.Metadata.Name, path, s.keep)
	if err != nil {
		return Saved{}, err
	}
	h, err := snapshot.WriteLevel(path, conv)
	if err != nil {
		return Saved{}, err
	}
	s.index.RecordLevel(path, h, conv)
	s.mirror.Enqueue(r2s3.Job{Path: path, Level: h.Name, Digest: h.Digest})
	if ok {
		s.index.RecordRevision(c.Metadata.Name, rev, archived)
		s.mirror.Enqueue(r2s3.Job{Path: archived, Level: h.Name})
	}
	return Saved{Header: h, Path: path, Revision: rev}, nil
}

func (s *Store) Load(ctx context.Context, name, remote string) (snapshot.Header, *world.Container, error) {
	h, c, err := s.load(name)
	e := log.AuditEntry{Op: "load", Level: name, Remote: remote, Digest: h.Digest, Layers: h.Layers}
	if err != nil {
		e.Error = err.Error()
	}
	s.record(e)
	return h, c, err
}

func (s *Store) load(name string) (snapshot.Header, *world.Container, error) {
	if err := ValidName(name); err != nil {
		return snapshot.Header{}, nil, err
	}
	return snapshot.ReadLevel(s.Path(name))
}

// List returns saved levels ordered by name. Without an index it reads the
// header of every level file.
func (s *Store) List(ctx context.Context, limit int) ([]indexdb.LevelRow, error) {
	if s.index != nil {
		if err := s.index.Flush(ctx); err != nil {
			return nil, err
		}
		return s.index.ListLevels(ctx, limit)
	}

	paths, err := filepath.Glob(filepath.Join(s.dataDir, "levels", "*"+snapshot.Ext))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	var out []indexdb.LevelRow
	for _, p := range paths {
		if limit > 0 && len(out) >= limit {
			break
		}
		if strings.HasPrefix(filepath.Base(p), ".") {
			continue
		}
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			s.log.Printf("skip %s: %v", p, err)
			continue
		}
		out = append(out, indexdb.LevelRow{Name: h.Name, Digest: h.Digest, Path: p, Layers: h.Layers, SavedAt: h.SavedAt})
	}
	return out, nil
}

func (s *Store) record(e log.AuditEntry) {
	if err := s.audit.WriteAudit(e); err != nil {
		s.log.Printf("audit: %v", err)
	}
	s.index.RecordEvent(e)
}
