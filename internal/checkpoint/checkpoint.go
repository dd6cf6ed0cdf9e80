// Package checkpoint persists the per-patient output of a pipeline stage so a
// batch can resume. A checkpoint is always read and written as a whole
// mapping keyed by patient id; on resume, ids already present are skipped.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store loads and saves one stage mapping.
type Store[T any] interface {
	Load(ctx context.Context) (map[string]T, error)
	Save(ctx context.Context, records map[string]T) error
}

// Options selects the backend. A non-nil Redis client wins over Dir.
type Options struct {
	Dir         string
	Redis       HashClient
	RedisPrefix string
}

// Open returns the store of one stage.
func Open[T any](opts Options, stage string) Store[T] {
	if opts.Redis != nil {
		return NewRedisStore[T](opts.Redis, opts.RedisPrefix, stage)
	}
	return NewFileStore[T](filepath.Join(opts.Dir, stage+".gob"))
}

// FileStore keeps a stage mapping in one gob file.
type FileStore[T any] struct {
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore[T any](path string) *FileStore[T] {
	return &FileStore[T]{path: path}
}

// Path is the checkpoint file.
func (s *FileStore[T]) Path() string {
	return s.path
}

// Load returns an empty mapping when the file does not exist yet.
func (s *FileStore[T]) Load(ctx context.Context) (map[string]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer func() { _ = f.Close() }()

	records := map[string]T{}
	if err := gob.NewDecoder(f).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", s.path, err)
	}
	return records, nil
}

// Save replaces the file atomically.
func (s *FileStore[T]) Save(ctx context.Context, records map[string]T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := gob.NewEncoder(tmp).Encode(records); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

func encode[T any](v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode[T any](data []byte) (T, error) {
	var v T
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v)
	return v, err
}
