package modelstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/wonny/harvest/backend/internal/contracts"
)

// FileStore keeps artifacts as JSON files in one directory
type FileStore struct {
	dir       string
	overallID int64
}

var _ contracts.ModelStore = (*FileStore)(nil)

// NewFileStore creates the directory if needed
func NewFileStore(dir string, overallID int64) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("model store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	return &FileStore{dir: dir, overallID: overallID}, nil
}

// Path returns where a segment's artifact lives
func (s *FileStore) Path(key contracts.SegmentKey) string {
	return filepath.Join(s.dir, ObjectName(key, s.overallID))
}

// Save writes to a temp file in the same directory and renames it into place,
// so readers see either the old or the new artifact
func (s *FileStore) Save(ctx context.Context, key contracts.SegmentKey, artifact []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".model-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp model: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(artifact); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp model: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp model: %w", err)
	}

	if err := os.Rename(tmpName, s.Path(key)); err != nil {
		return fmt.Errorf("replace model: %w", err)
	}
	return nil
}

// Load reads a segment's artifact
func (s *FileStore) Load(ctx context.Context, key contracts.SegmentKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, contracts.ErrNoModelAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return data, nil
}
