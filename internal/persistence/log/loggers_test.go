package log

import (
	"path/filepath"
	"testing"
	"time"
)

func TestAuditLogger_WritesReadableEntries(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	if err := l.WriteAudit(AuditEntry{Op: "save", Level: "dunes", Digest: "ab", Layers: 2}); err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}
	if err := l.WriteAudit(AuditEntry{Op: "load", Level: "dunes", Error: "not found"}); err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := AuditFiles(dir)
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	got, err := ReadAudit(files[0])
	if err != nil {
		t.Fatalf("ReadAudit: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries=%d want 2", len(got))
	}
	if got[0].Op != "save" || got[0].Layers != 2 || got[0].Time == "" {
		t.Fatalf("entry[0]=%+v", got[0])
	}
	if got[1].Error != "not found" {
		t.Fatalf("entry[1]=%+v", got[1])
	}
	if st := l.Stats(); st.WrittenTotal != 2 || st.FailedTotal != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestAuditLogger_RotatesHourlyAndAppends(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 9, 59, 0, 0, time.UTC)
	l := NewAuditLogger(dir)
	l.now = func() time.Time { return now }

	_ = l.WriteAudit(AuditEntry{Op: "save", Level: "a"})
	now = now.Add(2 * time.Minute)
	_ = l.WriteAudit(AuditEntry{Op: "save", Level: "b"})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A second logger in the same hour appends a new zstd frame.
	l2 := NewAuditLogger(dir)
	l2.now = func() time.Time { return now }
	_ = l2.WriteAudit(AuditEntry{Op: "load", Level: "b"})
	if err := l2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, _ := AuditFiles(dir)
	want := []string{
		filepath.Join(dir, "audit", "audit-2026030109.jsonl.zst"),
		filepath.Join(dir, "audit", "audit-2026030110.jsonl.zst"),
	}
	if len(files) != 2 || files[0] != want[0] || files[1] != want[1] {
		t.Fatalf("files=%v want %v", files, want)
	}
	first, err := ReadAudit(files[0])
	if err != nil || len(first) != 1 || first[0].Level != "a" {
		t.Fatalf("first hour=%+v err=%v", first, err)
	}
	if first[0].Time != "2026-03-01T09:59:00Z" {
		t.Fatalf("time=%q", first[0].Time)
	}
	second, err := ReadAudit(files[1])
	if err != nil || len(second) != 2 || second[1].Op != "load" {
		t.Fatalf("second hour=%+v err=%v", second, err)
	}
}
