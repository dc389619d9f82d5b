package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Storage keeps video artifacts on local disk. The storage ref recorded on a
// video is the bare key, resolved against basePath on every access.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/videos"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Save(_ context.Context, key string, data io.Reader) (string, error) {
	path := filepath.Join(s.basePath, key)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return key, nil
}

func (s *Storage) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.basePath, ref))
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *Storage) Remove(_ context.Context, ref string) error {
	if err := os.Remove(filepath.Join(s.basePath, ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (s *Storage) LocalPath(ref string) (string, bool) {
	return filepath.Join(s.basePath, ref), true
}

// PlaybackURL is unsupported here; callers serve local artifacts directly.
func (s *Storage) PlaybackURL(_ context.Context, ref string) (string, error) {
	return "", fmt.Errorf("local storage has no playback url for %s", ref)
}

func (s *Storage) MaterializeTo(ctx context.Context, ref, localPath string) error {
	src, err := s.Open(ctx, ref)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy artifact: %w", err)
	}
	return nil
}
