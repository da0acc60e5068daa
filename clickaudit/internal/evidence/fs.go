package evidence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/linkaudit/horosafe"
	"github.com/hazyhaar/linkaudit/idgen"
)

// FSBlobStore writes PNG files under Dir as
// YYYY-MM-DD/<YYYYmmdd_HHMMSS>_<id8>.png (UTC).
type FSBlobStore struct {
	Dir string

	now func() time.Time
	ids idgen.Generator
}

func NewFSBlobStore(dir string) (*FSBlobStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("evidence: empty screenshot dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("evidence: mkdir %s: %w", dir, err)
	}
	return &FSBlobStore{Dir: dir, now: time.Now, ids: idgen.Short(8)}, nil
}

// Save writes data atomically: a temp file in the target directory is
// synced and renamed, so a reader never sees a partial image.
func (s *FSBlobStore) Save(ctx context.Context, data []byte) (string, error) {
	if err := CheckPNG(data); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := s.now().UTC()
	rel := filepath.ToSlash(filepath.Join(
		now.Format("2006-01-02"),
		idgen.Timestamped("20060102_150405", func() time.Time { return now }, s.ids)()+".png",
	))
	full, err := horosafe.SafePath(s.Dir, rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("evidence: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".capture-*.tmp")
	if err != nil {
		return "", fmt.Errorf("evidence: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("evidence: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("evidence: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("evidence: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("evidence: rename: %w", err)
	}
	return rel, nil
}

// Load reads back a path returned by Save.
func (s *FSBlobStore) Load(_ context.Context, path string) ([]byte, error) {
	full, err := horosafe.SafePath(s.Dir, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("evidence: load %s: %w", path, err)
	}
	return data, nil
}
