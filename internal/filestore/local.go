package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Local stores uploads on the local filesystem below a root directory.
type Local struct {
	root string
}

// NewLocal creates a Local store, creating root if needed.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{root: root}, nil
}

func (s *Local) Save(ctx context.Context, r io.Reader, filename, subdir string) (string, string, error) {
	if !safeSegment(subdir, true) {
		return "", "", fmt.Errorf("%w: invalid subdirectory %q", ErrStorage, subdir)
	}
	dir := filepath.Join(s.root, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	ext := filepath.Ext(filename)

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		id := uuid.NewString()
		p := filepath.Join(dir, id+ext)
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrStorage, err)
		}

		_, err = io.Copy(f, r)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(p)
			return "", "", fmt.Errorf("%w: %v", ErrStorage, err)
		}
		return p, id, nil
	}
	return "", "", fmt.Errorf("%w: could not allocate a unique id", ErrStorage)
}

func (s *Local) Resolve(ctx context.Context, id, subdir string) (string, bool, error) {
	if !safeSegment(id, false) || !safeSegment(subdir, true) {
		return "", false, nil
	}
	dir := filepath.Join(s.root, subdir)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("list %s: %w", dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() && matchesID(e.Name(), id) {
			return filepath.Join(dir, e.Name()), true, nil
		}
	}
	return "", false, nil
}

func (s *Local) Delete(ctx context.Context, id, subdir string) (bool, error) {
	p, ok, err := s.Resolve(ctx, id, subdir)
	if err != nil || !ok {
		return false, err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("delete %s: %w", p, err)
	}
	return true, nil
}

// Ping checks that the root directory is still reachable.
func (s *Local) Ping(ctx context.Context) error {
	_, err := os.Stat(s.root)
	return err
}
