package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"clouddrive/internal/domain"
)

// FileStore - блобы в директории на локальном диске
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore создаёт FileStore. Директория хранения и temp/ создаются при необходимости.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, TempDir), 0o750); err != nil {
		return nil, &domain.StorageError{Op: "init", Name: dir, Err: err}
	}

	return &FileStore{
		dir:    dir,
		logger: logger.Named("filestore"),
	}, nil
}

// Write записывает поток на диск.
// Паттерн: temp файл → запись → fsync → atomic rename. При ошибке temp файл удаляется.
func (s *FileStore) Write(ctx context.Context, r io.Reader, suggestedName string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.StorageError{Op: "write", Name: suggestedName, Err: err}
	}

	// Директория могла быть удалена после старта
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, &domain.StorageError{Op: "write", Name: suggestedName, Err: err}
	}

	name := generateStorageName(suggestedName)
	fullPath := filepath.Join(s.dir, name)
	tmpPath := fullPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, &domain.StorageError{Op: "write", Name: name, Err: err}
	}

	size, err := io.Copy(f, &contextReader{ctx: ctx, r: r})
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, &domain.StorageError{Op: "write", Name: name, Err: err}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, &domain.StorageError{Op: "fsync", Name: name, Err: err}
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, &domain.StorageError{Op: "close", Name: name, Err: err}
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, &domain.StorageError{Op: "rename", Name: name, Err: err}
	}

	s.logger.Debug("blob written", zap.String("name", name), zap.Int64("size", size))
	return &Object{Name: name, Size: size}, nil
}

// Open открывает блоб. Возвращаемый *os.File поддерживает Seek.
func (s *FileStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if err := validateName("open", name); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, &domain.StorageError{Op: "open", Name: name, Err: err}
	}
	return f, nil
}

func (s *FileStore) Delete(_ context.Context, name string) error {
	if err := validateName("delete", name); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("blob already missing", zap.String("name", name))
		return nil
	}
	if err != nil {
		return &domain.StorageError{Op: "delete", Name: name, Err: err}
	}
	return nil
}

func (s *FileStore) Exists(_ context.Context, name string) (bool, error) {
	if err := validateName("stat", name); err != nil {
		return false, err
	}

	info, err := os.Stat(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &domain.StorageError{Op: "stat", Name: name, Err: err}
	}
	return info.Mode().IsRegular(), nil
}

func (s *FileStore) EnsureDir(_ context.Context, dir string) error {
	rel := cleanDir(dir)
	if rel == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Join(s.dir, filepath.FromSlash(rel)), 0o750); err != nil {
		return &domain.StorageError{Op: "mkdir", Name: rel, Err: err}
	}
	return nil
}

// Dir возвращает корневую директорию хранилища
func (s *FileStore) Dir() string {
	return s.dir
}

// contextReader прерывает копирование при отмене контекста
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, fmt.Errorf("write cancelled: %w", err)
	}
	return c.r.Read(p)
}
