package r2s3

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	headers map[string]http.Header
	fails   int
}

func (b *fakeBucket) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.Method != http.MethodPut {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if b.fails > 0 {
		b.fails--
		http.Error(rw, "slow down", http.StatusServiceUnavailable)
		return
	}
	body, _ := io.ReadAll(r.Body)
	b.objects[r.URL.Path] = body
	b.headers[r.URL.Path] = r.Header.Clone()
	rw.WriteHeader(http.StatusOK)
}

func TestMirror_UploadsSignedObjects(t *testing.T) {
	bucket := &fakeBucket{objects: map[string][]byte{}, headers: map[string]http.Header{}, fails: 1}
	srv := httptest.NewServer(bucket)
	defer srv.Close()

	dataDir := t.TempDir()
	local := filepath.Join(dataDir, "levels", "reef.level.zst")
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := []byte("level bytes")
	if err := os.WriteFile(local, content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := New(srv.URL, "maps", "", "AKID", "SECRET")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	m := NewMirror(c, dataDir, "/prod/", 1, 4, nil)
	m.backoff = time.Millisecond
	m.Enqueue(Job{Path: local, Level: "reef", Digest: "abc123"})
	m.Close()

	st := m.Stats()
	if st.UploadSuccessTotal != 1 || st.UploadFailTotal != 0 {
		t.Fatalf("stats=%+v", st)
	}

	const key = "/maps/prod/levels/reef.level.zst"
	if string(bucket.objects[key]) != string(content) {
		t.Fatalf("objects=%v", bucket.objects)
	}
	h := bucket.headers[key]
	sum := sha256.Sum256(content)
	if h.Get("x-amz-content-sha256") != hex.EncodeToString(sum[:]) {
		t.Fatalf("payload hash=%q", h.Get("x-amz-content-sha256"))
	}
	if h.Get("x-amz-date") != "20260102T030405Z" || h.Get("x-amz-meta-digest") != "abc123" || h.Get("Content-Type") != "application/zstd" {
		t.Fatalf("headers=%v", h)
	}
	auth := h.Get("Authorization")
	if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKID/20260102/auto/s3/aws4_request") ||
		!strings.Contains(auth, "SignedHeaders=content-type;host;x-amz-content-sha256;x-amz-date;x-amz-meta-digest;x-amz-meta-level") {
		t.Fatalf("authorization=%q", auth)
	}

	// Enqueue after Close is a no-op.
	m.Enqueue(Job{Path: local})
	if m.Stats().EnqueuedTotal != 1 {
		t.Fatalf("enqueue after close counted")
	}
}

func TestMirror_ObjectKeyRejectsOutsideDataDir(t *testing.T) {
	m := &Mirror{dataDir: t.TempDir()}
	outside := filepath.Join(t.TempDir(), "x.level.zst")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := m.ObjectKey(outside); err == nil {
		t.Fatalf("expected error for path outside data dir")
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New("http://127.0.0.1:9000", "maps", "auto", "", ""); err == nil {
		t.Fatalf("expected error without credentials")
	}
	c, err := New("r2.example.com", "maps", "", "a", "b")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.endpoint != "https://r2.example.com" || c.region != "auto" {
		t.Fatalf("endpoint=%s region=%s", c.endpoint, c.region)
	}
}

func TestNormalizeObjectKey(t *testing.T) {
	cases := map[string]string{
		"/levels/a.level.zst": "levels/a.level.zst",
		`levels\b.json`:       "levels/b.json",
		"../etc/passwd":       "etc/passwd",
		"":                    "",
		"/":                   "",
	}
	for in, want := range cases {
		if got := normalizeObjectKey(in); got != want {
			t.Fatalf("normalizeObjectKey(%q)=%q want %q", in, got, want)
		}
	}
}
