// Package log keeps the audit trail of level operations as hourly
// zstd-compressed JSONL files under <data>/audit.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
)

const hourLayout = "2006010215"

// AuditEntry records one level operation.
type AuditEntry struct {
	Time    string `json:"time"`
	Op      string `json:"op"`
	Level   string `json:"level,omitempty"`
	Digest  string `json:"digest,omitempty"`
	Layers  int    `json:"layers,omitempty"`
	Remote  string `json:"remote,omitempty"`
	Archive int    `json:"archived_revision,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AuditLogger appends entries to audit-<YYYYMMDDHH>.jsonl.zst, switching
// files when the UTC hour changes. Each file may hold several zstd frames
// if the process restarts within the hour.
type AuditLogger struct {
	dir string
	now func() time.Time

	written atomic.Uint64
	failed  atomic.Uint64

	mu   sync.Mutex
	hour string
	f    *os.File
	enc  *zstd.Encoder
	bw   *bufio.Writer
}

func NewAuditLogger(dataDir string) *AuditLogger {
	return &AuditLogger{dir: filepath.Join(dataDir, "audit"), now: time.Now}
}

type AuditStats struct {
	WrittenTotal uint64
	FailedTotal  uint64
}

func (l *AuditLogger) Stats() AuditStats {
	if l == nil {
		return AuditStats{}
	}
	return AuditStats{WrittenTotal: l.written.Load(), FailedTotal: l.failed.Load()}
}

// WriteAudit stamps e with the current time unless set and flushes it to disk.
func (l *AuditLogger) WriteAudit(e AuditEntry) error {
	err := l.write(e)
	if err != nil {
		l.failed.Add(1)
		return err
	}
	l.written.Add(1)
	return nil
}

func (l *AuditLogger) write(e AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	if e.Time == "" {
		e.Time = now.Format(time.RFC3339Nano)
	}
	if hour := now.Format(hourLayout); hour != l.hour || l.bw == nil {
		if err := l.openLocked(hour); err != nil {
			return err
		}
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := l.bw.Write(b); err != nil {
		return err
	}
	if err := l.bw.Flush(); err != nil {
		return err
	}
	// Entries are readable on disk before Close.
	return l.enc.Flush()
}

func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *AuditLogger) openLocked(hour string) error {
	if err := l.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(auditPath(l.dir, hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f, l.enc, l.bw, l.hour = f, enc, bufio.NewWriterSize(enc, 32*1024), hour
	return nil
}

func (l *AuditLogger) closeLocked() error {
	var err error
	if l.bw != nil {
		err = l.bw.Flush()
		l.bw = nil
	}
	if l.enc != nil {
		if cerr := l.enc.Close(); err == nil {
			err = cerr
		}
		l.enc = nil
	}
	if l.f != nil {
		if cerr := l.f.Close(); err == nil {
			err = cerr
		}
		l.f = nil
	}
	l.hour = ""
	return err
}

func auditPath(dir, hour string) string {
	return filepath.Join(dir, fmt.Sprintf("audit-%s.jsonl.zst", hour))
}

// AuditFiles lists the audit files of dataDir, oldest first.
func AuditFiles(dataDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dataDir, "audit", "audit-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadAudit decodes every entry of one audit file.
func ReadAudit(path string) ([]AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []AuditEntry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return out, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
