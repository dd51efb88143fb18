package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"clouddrive/internal/config"
	"clouddrive/internal/domain"
	"clouddrive/internal/repository"
	"clouddrive/internal/storage"
)

const testUser = "user-1"

type testEnv struct {
	db       *sqlx.DB
	files    *repository.FileRepository
	blobs    *storage.FileStore
	logger   *zap.Logger
	tempDir  string
	ingestor *UploadIngestor
	archives *ArchiveBuilder
	service  *FileService
}

// newTestEnv собирает сервисы поверх sqlite и локального хранилища во временной директории
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	logger := zaptest.NewLogger(t)

	dbCfg := config.DatabaseConfig{Driver: "sqlite3", Path: filepath.Join(root, "test.db")}
	if err := repository.Migrate(dbCfg, logger); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	db, err := repository.Connect(context.Background(), dbCfg, logger)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	blobs, err := storage.NewFileStore(filepath.Join(root, "blobs"), logger)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	env := &testEnv{
		db:      db,
		files:   repository.NewFileRepository(db),
		blobs:   blobs,
		logger:  logger,
		tempDir: filepath.Join(root, "blobs", storage.TempDir),
	}
	env.useStore(t, blobs)
	return env
}

// useStore пересобирает сервисы с другим хранилищем блобов
func (e *testEnv) useStore(t *testing.T, blobs storage.Store) {
	t.Helper()

	materializer := NewFolderMaterializer(e.files, blobs, e.logger)
	e.ingestor = NewUploadIngestor(e.files, blobs, materializer, e.logger)
	e.service = NewFileService(e.files, blobs, e.logger)

	archives, err := NewArchiveBuilder(e.files, blobs, config.ArchiveConfig{CompressionLevel: 6}, e.tempDir, e.logger)
	if err != nil {
		t.Fatalf("NewArchiveBuilder: %v", err)
	}
	e.archives = archives
}

func uploadFile(name, content string) UploadFile {
	return UploadFile{
		Name:        name,
		ContentType: "",
		Size:        int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

// readArchive возвращает содержимое архива: имя записи -> данные, и порядок записей
func readArchive(t *testing.T, archive *Archive) (map[string]string, []string) {
	t.Helper()

	f, err := archive.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}

	contents := make(map[string]string, len(zr.File))
	order := make([]string, 0, len(zr.File))
	for _, zf := range zr.File {
		rc, err := zf.Open()
		if err != nil {
			t.Fatalf("открытие записи %s: %v", zf.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("чтение записи %s: %v", zf.Name, err)
		}
		contents[zf.Name] = string(body)
		order = append(order, zf.Name)
	}
	return contents, order
}

var errDiskFull = errors.New("disk full")

// failingBlobStore делегирует в настоящее хранилище, но ломает выбранные операции
type failingBlobStore struct {
	storage.Store

	mu        sync.Mutex
	writes    int
	failWrite int             // номер записи (с 1), которая завершится ошибкой
	failDirs  map[string]bool // директории, для которых EnsureDir вернёт ошибку
}

func (s *failingBlobStore) Write(ctx context.Context, r io.Reader, name string) (*storage.Object, error) {
	s.mu.Lock()
	s.writes++
	n := s.writes
	s.mu.Unlock()

	if n == s.failWrite {
		return nil, &domain.StorageError{Op: "write", Name: name, Err: errDiskFull}
	}
	return s.Store.Write(ctx, r, name)
}

func (s *failingBlobStore) EnsureDir(ctx context.Context, dir string) error {
	if s.failDirs[dir] {
		return &domain.StorageError{Op: "mkdir", Name: dir, Err: errDiskFull}
	}
	return s.Store.EnsureDir(ctx, dir)
}
