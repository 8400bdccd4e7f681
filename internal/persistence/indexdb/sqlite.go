package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"biomelevel.ai/internal/level/world"
	"biomelevel.ai/internal/persistence/log"
	"biomelevel.ai/internal/persistence/snapshot"
)

var ErrNotFound = errors.New("indexdb: level not found")

// SQLiteIndex is a secondary index of saved levels. Writes are queued to a
// single writer goroutine; level files remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropLevel    atomic.Uint64
	dropEvent    atomic.Uint64
	dropRevision atomic.Uint64
}

type reqKind int

const (
	reqLevel reqKind = iota + 1
	reqEvent
	reqRevision
	reqFlush
)

type req struct {
	kind reqKind

	level    LevelRow
	layers   []world.LayerStats
	event    log.AuditEntry
	revision revisionRow
	done     chan struct{}
}

// LevelRow is one row of the levels table.
type LevelRow struct {
	Name          string `json:"name"`
	Digest        string `json:"digest"`
	Path          string `json:"path"`
	WorldSize     int    `json:"world_size"`
	Layers        int    `json:"layers"`
	FormatVersion int    `json:"format_version"`
	SavedAt       string `json:"saved_at"`
}

type revisionRow struct {
	Level      string
	Revision   int
	Path       string
	RecordedAt string
}

// QueueStats counts writes dropped because the writer fell behind.
type QueueStats struct {
	DropLevelTotal    uint64
	DropEventTotal    uint64
	DropRevisionTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS levels (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			path TEXT NOT NULL,
			world_size INTEGER NOT NULL,
			layers INTEGER NOT NULL,
			format_version INTEGER NOT NULL,
			saved_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS layers (
			level TEXT NOT NULL,
			layer_type TEXT NOT NULL,
			shape TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			palette_size INTEGER NOT NULL,
			runs INTEGER NOT NULL,
			payload_len INTEGER NOT NULL,
			PRIMARY KEY (level, layer_type)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			time TEXT NOT NULL,
			op TEXT NOT NULL,
			level TEXT,
			digest TEXT,
			remote TEXT,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_level ON events(level, seq);`,
		`CREATE TABLE IF NOT EXISTS revisions (
			level TEXT NOT NULL,
			revision INTEGER NOT NULL,
			path TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (level, revision)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() QueueStats {
	if s == nil {
		return QueueStats{}
	}
	return QueueStats{
		DropLevelTotal:    s.dropLevel.Load(),
		DropEventTotal:    s.dropEvent.Load(),
		DropRevisionTotal: s.dropRevision.Load(),
	}
}

// RecordLevel queues the row for a level file that was just written.
func (s *SQLiteIndex) RecordLevel(path string, h snapshot.Header, c *world.Container) {
	if s == nil || s.closed.Load() {
		return
	}
	stats, err := world.Stats(c)
	if err != nil {
		stats = nil
	}
	savedAt := h.SavedAt
	if savedAt == "" {
		savedAt = time.Now().UTC().Format(time.RFC3339)
	}
	r := LevelRow{
		Name:          h.Name,
		Digest:        h.Digest,
		Path:          path,
		WorldSize:     c.Metadata.WorldSize,
		Layers:        len(c.Layers),
		FormatVersion: c.Metadata.FormatVersion,
		SavedAt:       savedAt,
	}
	select {
	case s.ch <- req{kind: reqLevel, level: r, layers: stats}:
	default:
		s.dropLevel.Add(1)
	}
}

func (s *SQLiteIndex) RecordEvent(e log.AuditEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	if e.Time == "" {
		e.Time = time.Now().UTC().Format(time.RFC3339Nano)
	}
	select {
	case s.ch <- req{kind: reqEvent, event: e}:
	default:
		s.dropEvent.Add(1)
	}
}

func (s *SQLiteIndex) RecordRevision(level string, rev int, archivedPath string) {
	if s == nil || s.closed.Load() {
		return
	}
	if rev <= 0 || archivedPath == "" {
		return
	}
	r := revisionRow{
		Level:      level,
		Revision:   rev,
		Path:       archivedPath,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqRevision, revision: r}:
	default:
		s.dropRevision.Add(1)
	}
}

// Flush blocks until every write queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListLevels returns up to limit levels ordered by name (limit <= 0 means all).
func (s *SQLiteIndex) ListLevels(ctx context.Context, limit int) ([]LevelRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name,digest,path,world_size,layers,format_version,saved_at FROM levels ORDER BY name LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LevelRow
	for rows.Next() {
		var r LevelRow
		if err := rows.Scan(&r.Name, &r.Digest, &r.Path, &r.WorldSize, &r.Layers, &r.FormatVersion, &r.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Lookup(ctx context.Context, name string) (LevelRow, error) {
	var r LevelRow
	err := s.db.QueryRowContext(ctx,
		`SELECT name,digest,path,world_size,layers,format_version,saved_at FROM levels WHERE name=?`, name).
		Scan(&r.Name, &r.Digest, &r.Path, &r.WorldSize, &r.Layers, &r.FormatVersion, &r.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return r, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	upsertLevel, _ := s.db.Prepare(`INSERT OR REPLACE INTO levels(name,digest,path,world_size,layers,format_version,saved_at) VALUES(?,?,?,?,?,?,?)`)
	deleteLayers, _ := s.db.Prepare(`DELETE FROM layers WHERE level=?`)
	insertLayer, _ := s.db.Prepare(`INSERT OR REPLACE INTO layers(level,layer_type,shape,width,height,palette_size,runs,payload_len) VALUES(?,?,?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT INTO events(time,op,level,digest,remote,error) VALUES(?,?,?,?,?,?)`)
	insertRevision, _ := s.db.Prepare(`INSERT OR REPLACE INTO revisions(level,revision,path,recorded_at) VALUES(?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{upsertLevel, deleteLayers, insertLayer, insertEvent, insertRevision} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx          *sql.Tx
		opCount     int
		commitEvery = 500
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqLevel:
			lv := r.level
			if !exec(upsertLevel, lv.Name, lv.Digest, lv.Path, lv.WorldSize, lv.Layers, lv.FormatVersion, lv.SavedAt) {
				continue
			}
			if !exec(deleteLayers, lv.Name) {
				continue
			}
			for _, st := range r.layers {
				if !exec(insertLayer, lv.Name, st.LayerType, st.ShapeName, st.Width, st.Height, st.PaletteSize, st.Runs, st.PayloadLen) {
					break
				}
			}

		case reqEvent:
			e := r.event
			exec(insertEvent, e.Time, e.Op, e.Level, e.Digest, e.Remote, e.Error)

		case reqRevision:
			rv := r.revision
			exec(insertRevision, rv.Level, rv.Revision, rv.Path, rv.RecordedAt)
		}
		// Commit when idle: readers share the single connection.
		if opCount >= commitEvery || len(s.ch) == 0 {
			commit()
		}
	}

	commit()
}
