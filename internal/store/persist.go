package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// KV is the durable client-side storage backing the store. Two fixed keys
// hold the config record and the presentation state.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// FileKV persists each key as one file in a directory, written atomically
// via rename so a crash never leaves a half-written record.
type FileKV struct {
	dir string
}

func NewFileKV(dir string) (FileKV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return FileKV{}, fmt.Errorf("error creating storage dir: %w", err)
	}
	return FileKV{dir: dir}, nil
}

func (f FileKV) path(key string) string {
	return filepath.Join(f.dir, strings.ReplaceAll(key, string(filepath.Separator), "_")+".json")
}

func (f FileKV) Get(key string) ([]byte, bool, error) {
	byts, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error reading %s: %w", key, err)
	}
	return byts, true, nil
}

func (f FileKV) Set(key string, value []byte) error {
	path := f.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("error writing %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("error committing %s: %w", key, err)
	}
	return nil
}
