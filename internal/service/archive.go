package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"clouddrive/internal/config"
	"clouddrive/internal/domain"
	"clouddrive/internal/repository"
	"clouddrive/internal/storage"
)

const (
	archivePattern   = "archive-*.zip"
	emptyPlaceholder = ".empty"
)

// ArchiveBuilder собирает ZIP архивы из файлов и папок во временный файл
type ArchiveBuilder struct {
	files   *repository.FileRepository
	blobs   storage.Store
	tempDir string
	level   int
	logger  *zap.Logger
}

func NewArchiveBuilder(
	files *repository.FileRepository,
	blobs storage.Store,
	cfg config.ArchiveConfig,
	tempDir string,
	logger *zap.Logger,
) (*ArchiveBuilder, error) {
	if err := os.MkdirAll(tempDir, 0o750); err != nil {
		return nil, &domain.StorageError{Op: "init", Name: tempDir, Err: err}
	}

	level := cfg.CompressionLevel
	if level < flate.BestSpeed || level > flate.BestCompression {
		level = flate.DefaultCompression
	}

	return &ArchiveBuilder{
		files:   files,
		blobs:   blobs,
		tempDir: tempDir,
		level:   level,
		logger:  logger.Named("archive"),
	}, nil
}

// Archive - собранный архив во временном файле. Close удаляет файл.
type Archive struct {
	FileName string
	Entries  []string

	path      string
	size      int64
	closeOnce sync.Once
	closeErr  error
}

// Open открывает архив для чтения
func (a *Archive) Open() (*os.File, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, &domain.StorageError{Op: "open", Name: filepath.Base(a.path), Err: err}
	}
	return f, nil
}

func (a *Archive) Size() int64 {
	return a.size
}

func (a *Archive) Close() error {
	a.closeOnce.Do(func() {
		err := os.Remove(a.path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			a.closeErr = &domain.StorageError{Op: "delete", Name: filepath.Base(a.path), Err: err}
		}
	})
	return a.closeErr
}

// Build собирает архив. Содержимое папки folderID кладётся в корень архива,
// записи fileIDs - на верхний уровень. Отсутствующие блобы пропускаются.
func (b *ArchiveBuilder) Build(ctx context.Context, userID string, fileIDs []string, folderID *string) (*Archive, error) {
	var folder *domain.FileRecord
	if folderID != nil {
		rec, err := b.files.GetByID(ctx, userID, *folderID)
		if err != nil {
			return nil, err
		}
		if !rec.IsFolder {
			return nil, fmt.Errorf("%w: %s is not a folder", domain.ErrValidation, rec.ID)
		}
		folder = rec
	}

	ids := make([]string, 0, len(fileIDs))
	for _, id := range fileIDs {
		if folder != nil && id == folder.ID {
			continue
		}
		ids = append(ids, id)
	}

	if folder == nil && len(ids) == 0 {
		return nil, fmt.Errorf("%w: no files selected for download", domain.ErrValidation)
	}

	items, err := b.files.GetByIDs(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	if folder == nil && len(items) == 0 {
		return nil, fmt.Errorf("%w: no files selected for download", domain.ErrValidation)
	}

	tmp, err := os.CreateTemp(b.tempDir, archivePattern)
	if err != nil {
		return nil, &domain.StorageError{Op: "create", Name: archivePattern, Err: err}
	}

	archive := &Archive{
		FileName: archiveName(folder, items),
		path:     tmp.Name(),
	}

	if err := b.write(ctx, tmp, archive, userID, folder, items); err != nil {
		tmp.Close()
		archive.Close()
		return nil, err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		archive.Close()
		return nil, &domain.StorageError{Op: "fsync", Name: filepath.Base(archive.path), Err: err}
	}

	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		archive.Close()
		return nil, &domain.StorageError{Op: "stat", Name: filepath.Base(archive.path), Err: err}
	}
	archive.size = info.Size()

	if err := tmp.Close(); err != nil {
		archive.Close()
		return nil, &domain.StorageError{Op: "close", Name: filepath.Base(archive.path), Err: err}
	}

	archivesBuilt.Inc()
	archiveSize.Observe(float64(archive.size))

	b.logger.Info("archive built",
		zap.String("user_id", userID),
		zap.String("file_name", archive.FileName),
		zap.Int("entries", len(archive.Entries)),
		zap.Int64("size", archive.size),
	)
	return archive, nil
}

func (b *ArchiveBuilder) write(ctx context.Context, out io.Writer, archive *Archive, userID string, folder *domain.FileRecord, items []domain.FileRecord) error {
	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, b.level)
	})

	aw := &archiveWriter{
		zw:      zw,
		archive: archive,
		taken:   make(map[string]bool),
	}

	if folder != nil {
		files, err := b.addFolder(ctx, aw, userID, folder, "")
		if err != nil {
			return err
		}
		if files == 0 {
			if err := aw.placeholder(""); err != nil {
				return err
			}
		}
	}

	for i := range items {
		item := &items[i]
		name := aw.freeName(item.Name, item.IsFolder)

		if !item.IsFolder {
			if _, err := b.addFile(ctx, aw, item, name); err != nil {
				return err
			}
			continue
		}

		prefix := name + "/"
		if err := aw.dir(prefix, item.UpdatedAt); err != nil {
			return err
		}
		files, err := b.addFolder(ctx, aw, userID, item, prefix)
		if err != nil {
			return err
		}
		if files == 0 {
			if err := aw.placeholder(prefix); err != nil {
				return err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return &domain.StorageError{Op: "write", Name: archive.FileName, Err: err}
	}
	return nil
}

// addFolder рекурсивно добавляет детей папки под prefix и возвращает число добавленных файлов
func (b *ArchiveBuilder) addFolder(ctx context.Context, aw *archiveWriter, userID string, folder *domain.FileRecord, prefix string) (int, error) {
	children, err := b.files.ListChildren(ctx, userID, &folder.ID)
	if err != nil {
		return 0, err
	}

	total := 0
	for i := range children {
		child := &children[i]

		if !child.IsFolder {
			added, err := b.addFile(ctx, aw, child, prefix+child.Name)
			if err != nil {
				return 0, err
			}
			if added {
				total++
			}
			continue
		}

		sub := prefix + child.Name + "/"
		if err := aw.dir(sub, child.UpdatedAt); err != nil {
			return 0, err
		}
		files, err := b.addFolder(ctx, aw, userID, child, sub)
		if err != nil {
			return 0, err
		}
		if files == 0 {
			if err := aw.placeholder(sub); err != nil {
				return 0, err
			}
		}
		total += files
	}
	return total, nil
}

// addFile копирует блоб в архив. Отсутствующий блоб пропускается с предупреждением.
func (b *ArchiveBuilder) addFile(ctx context.Context, aw *archiveWriter, rec *domain.FileRecord, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if rec.Filename == nil || *rec.Filename == "" {
		b.skip(rec, name, errors.New("record has no blob"))
		return false, nil
	}

	rc, err := b.blobs.Open(ctx, *rec.Filename)
	if err != nil {
		b.skip(rec, name, err)
		return false, nil
	}
	defer rc.Close()

	w, err := aw.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: rec.UpdatedAt,
	})
	if err != nil {
		return false, &domain.StorageError{Op: "write", Name: name, Err: err}
	}

	if _, err := io.Copy(w, rc); err != nil {
		// Запись уже начата и не может быть отменена: архив был бы повреждён
		return false, &domain.StorageError{Op: "read", Name: *rec.Filename, Err: err}
	}

	aw.archive.Entries = append(aw.archive.Entries, name)
	return true, nil
}

func (b *ArchiveBuilder) skip(rec *domain.FileRecord, name string, err error) {
	archiveEntriesSkipped.Inc()
	b.logger.Warn("blob missing, skipping archive entry",
		zap.String("file_id", rec.ID),
		zap.String("entry", name),
		zap.Error(err),
	)
}

// CleanupStale удаляет временные архивы старше olderThan и возвращает их число
func (b *ArchiveBuilder) CleanupStale(olderThan time.Duration) (int, error) {
	matches, err := filepath.Glob(filepath.Join(b.tempDir, archivePattern))
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			b.logger.Warn("failed to remove stale archive", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		b.logger.Info("stale archives removed", zap.Int("count", removed))
	}
	return removed, nil
}

type archiveWriter struct {
	zw      *zip.Writer
	archive *Archive
	taken   map[string]bool
}

func (aw *archiveWriter) dir(name string, modified time.Time) error {
	if _, err := aw.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: modified,
	}); err != nil {
		return &domain.StorageError{Op: "write", Name: name, Err: err}
	}
	aw.archive.Entries = append(aw.archive.Entries, name)
	return nil
}

func (aw *archiveWriter) placeholder(prefix string) error {
	name := prefix + emptyPlaceholder
	if _, err := aw.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: time.Now(),
	}); err != nil {
		return &domain.StorageError{Op: "write", Name: name, Err: err}
	}
	aw.archive.Entries = append(aw.archive.Entries, name)
	return nil
}

// freeName подбирает незанятое имя верхнего уровня для отдельно выбранных записей
func (aw *archiveWriter) freeName(name string, isFolder bool) string {
	key := func(n string) string {
		if isFolder {
			return n + "/"
		}
		return n
	}

	for n := 0; ; n++ {
		candidate := domain.SuffixedName(name, n)
		if !aw.taken[key(candidate)] && !aw.entryExists(key(candidate)) {
			aw.taken[key(candidate)] = true
			return candidate
		}
	}
}

func (aw *archiveWriter) entryExists(name string) bool {
	for _, e := range aw.archive.Entries {
		if e == name {
			return true
		}
	}
	return false
}

// archiveName: имя папки, имя единственной записи или files_<время>
func archiveName(folder *domain.FileRecord, items []domain.FileRecord) string {
	switch {
	case folder != nil:
		return folder.Name + ".zip"
	case len(items) == 1 && items[0].IsFolder:
		return items[0].Name + ".zip"
	case len(items) == 1:
		base := strings.TrimSuffix(items[0].Name, filepath.Ext(items[0].Name))
		if base == "" {
			base = items[0].Name
		}
		return base + ".zip"
	default:
		return fmt.Sprintf("files_%s.zip", time.Now().UTC().Format("20060102_150405"))
	}
}
