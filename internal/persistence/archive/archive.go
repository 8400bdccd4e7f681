package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"biomelevel.ai/internal/persistence/snapshot"
)

type RevisionMeta struct {
	Level     string `json:"level"`
	Revision  int    `json:"revision"`
	Digest    string `json:"digest"`
	Layers    int    `json:"layers"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// ArchiveRevision copies the current file of a level into
// `dataDir/archives/<level>/rev_<NNN>/` before it is overwritten, then prunes
// the oldest revisions beyond keep (keep <= 0 keeps everything).
// It returns archived=false when the level has no current file yet.
func ArchiveRevision(dataDir, level, levelPath string, keep int) (rev int, archivedPath string, archived bool, err error) {
	if _, err := os.Stat(levelPath); err != nil {
		if os.IsNotExist(err) {
			return 0, "", false, nil
		}
		return 0, "", false, err
	}
	h, err := snapshot.ReadHeader(levelPath)
	if err != nil {
		return 0, "", false, fmt.Errorf("archive %s: %w", level, err)
	}

	levelDir := filepath.Join(dataDir, "archives", level)
	revs, err := Revisions(dataDir, level)
	if err != nil {
		return 0, "", false, err
	}
	rev = 1
	if len(revs) > 0 {
		rev = revs[len(revs)-1] + 1
	}

	revDir := filepath.Join(levelDir, fmt.Sprintf("rev_%03d", rev))
	if err := os.MkdirAll(revDir, 0o755); err != nil {
		return 0, "", false, err
	}
	dst := filepath.Join(revDir, filepath.Base(levelPath))
	if err := copyFile(levelPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := RevisionMeta{
		Level:     level,
		Revision:  rev,
		Digest:    h.Digest,
		Layers:    h.Layers,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(revDir, "meta.json"), b, 0o644)
	}

	if keep > 0 {
		revs = append(revs, rev)
		for len(revs) > keep {
			if err := os.RemoveAll(filepath.Join(levelDir, fmt.Sprintf("rev_%03d", revs[0]))); err != nil {
				return rev, dst, true, err
			}
			revs = revs[1:]
		}
	}
	return rev, dst, true, nil
}

// Revisions lists the archived revision numbers of a level in ascending order.
func Revisions(dataDir, level string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(dataDir, "archives", level))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "rev_") {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(e.Name(), "rev_%d", &n); err == nil && n > 0 {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
