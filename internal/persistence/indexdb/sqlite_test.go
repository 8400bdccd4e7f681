package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"biomelevel.ai/internal/level/grid"
	"biomelevel.ai/internal/level/world"
	"biomelevel.ai/internal/persistence/log"
	"biomelevel.ai/internal/persistence/snapshot"
)

func exportLevel(t *testing.T, name string) *world.Container {
	t.Helper()
	terrain := grid.New("terrain", 16, 16, "#1e90ff")
	terrain.FillRect(0, 0, 7, 7, "#e3c16f")
	hazard := grid.New("hazard", 16, 16, "none")
	c, err := world.Export(world.Metadata{Name: name, WorldSize: 16}, []grid.Layer{terrain, hazard}, world.ExportOptions{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	return c
}

func TestSQLiteIndex_RecordLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	for _, name := range []string{"marsh", "dunes"} {
		c := exportLevel(t, name)
		lp := filepath.Join(dir, "levels", name+snapshot.Ext)
		h, err := snapshot.WriteLevel(lp, c)
		if err != nil {
			t.Fatalf("WriteLevel: %v", err)
		}
		idx.RecordLevel(lp, h, c)
	}
	idx.RecordRevision("dunes", 1, "/abs/archives/dunes/rev_001/dunes.level.zst")
	idx.RecordEvent(log.AuditEntry{Op: "save", Level: "dunes"})

	ctx := context.Background()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	rows, err := idx.ListLevels(ctx, 0)
	if err != nil {
		t.Fatalf("ListLevels: %v", err)
	}
	if len(rows) != 2 || rows[0].Name != "dunes" || rows[1].Name != "marsh" {
		t.Fatalf("rows=%+v", rows)
	}
	if rows[0].Layers != 2 || rows[0].WorldSize != 16 || rows[0].FormatVersion != world.FormatVersion {
		t.Fatalf("row=%+v", rows[0])
	}
	limited, err := idx.ListLevels(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limited=%v err=%v", limited, err)
	}

	got, err := idx.Lookup(ctx, "marsh")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	want, _ := world.Digest(exportLevel(t, "marsh"))
	if got.Digest != want {
		t.Fatalf("digest=%s want %s", got.Digest, want)
	}
	if _, err := idx.Lookup(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM layers WHERE level='dunes'`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("layers n=%d err=%v", n, err)
	}
	var shape string
	if err := db.QueryRow(`SELECT shape FROM layers WHERE level='dunes' AND layer_type='terrain'`).Scan(&shape); err != nil || shape != "rle-base64" {
		t.Fatalf("shape=%q err=%v", shape, err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM events WHERE op='save'`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("events n=%d err=%v", n, err)
	}
	if err := db.QueryRow(`SELECT revision FROM revisions WHERE level='dunes'`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("revision=%d err=%v", n, err)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqEvent}

	s.RecordLevel("/tmp/x.level.zst", snapshot.Header{Name: "x"}, &world.Container{})
	s.RecordEvent(log.AuditEntry{Op: "load"})
	s.RecordRevision("x", 1, "/tmp/rev_001/x.level.zst")

	st := s.Stats()
	if st.DropLevelTotal != 1 || st.DropEventTotal != 1 || st.DropRevisionTotal != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var s *SQLiteIndex
	s.RecordEvent(log.AuditEntry{Op: "save"})
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if st := s.Stats(); st != (QueueStats{}) {
		t.Fatalf("stats=%+v", st)
	}
}
