package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// AvatarStore persiste blobs de avatar bajo un nombre generado y devuelve
// la URL publica resultante. La cuenta guarda solo esa referencia.
type AvatarStore interface {
	Save(ctx context.Context, name string, content io.Reader) (string, error)
	Remove(ctx context.Context, name string) error
}

// LocalAvatarStore escribe en disco y sirve bajo un path publico fijo.
type LocalAvatarStore struct {
	dir        string
	publicPath string
}

func NewLocalAvatarStore(dir string) *LocalAvatarStore {
	return &LocalAvatarStore{
		dir:        dir,
		publicPath: "/uploads",
	}
}

func (s *LocalAvatarStore) Save(_ context.Context, name string, content io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("avatar name is required")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	dst, err := os.Create(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, content); err != nil {
		_ = dst.Close()
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", s.publicPath, filepath.Base(name)), nil
}

func (s *LocalAvatarStore) Remove(_ context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, filepath.Base(name)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
