package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"clouddrive/internal/domain"
	"clouddrive/internal/repository"
	"clouddrive/internal/storage"
)

// maxNameAttempts ограничивает подбор свободного имени "report (N).pdf"
const maxNameAttempts = 100

// FileState - состояние отдельного файла в пакетной загрузке
type FileState string

const (
	StatePending    FileState = "pending"
	StateWriting    FileState = "writing"
	StatePersisting FileState = "persisting"
	StateSucceeded  FileState = "succeeded"
	StateFailed     FileState = "failed"
)

// UploadFile - один файл из multipart формы
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

type UploadOptions struct {
	TargetFolderID    *string
	IsDirectoryUpload bool
	// RelativePaths[i] - путь i-го файла внутри загружаемой директории
	RelativePaths []string
	Tags          []string
}

type FileResult struct {
	Name   string
	State  FileState
	Record *domain.FileRecord
	Err    error
}

type UploadResult struct {
	TotalRequested int
	TotalSucceeded int
	Results        []FileResult
}

// Failed сообщает о полном провале: не загружено ни одного файла
func (r *UploadResult) Failed() bool {
	return r.TotalRequested > 0 && r.TotalSucceeded == 0
}

// FirstError возвращает первую ошибку по файлам
func (r *UploadResult) FirstError() error {
	for _, res := range r.Results {
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}

// UploadIngestor пишет блобы и создаёт записи файлов. Ошибка одного файла не прерывает пакет.
type UploadIngestor struct {
	files        *repository.FileRepository
	blobs        storage.Store
	materializer *FolderMaterializer
	logger       *zap.Logger
}

func NewUploadIngestor(
	files *repository.FileRepository,
	blobs storage.Store,
	materializer *FolderMaterializer,
	logger *zap.Logger,
) *UploadIngestor {
	return &UploadIngestor{
		files:        files,
		blobs:        blobs,
		materializer: materializer,
		logger:       logger.Named("ingest"),
	}
}

// Ingest загружает файлы в порядке их следования.
// Ошибка возвращается только если запрос нельзя обработать целиком:
// нет файлов или целевая папка не существует.
func (s *UploadIngestor) Ingest(ctx context.Context, userID string, files []UploadFile, opts UploadOptions) (*UploadResult, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files to upload", domain.ErrValidation)
	}

	var target *domain.FileRecord
	if opts.TargetFolderID != nil {
		folder, err := s.files.GetByID(ctx, userID, *opts.TargetFolderID)
		if err != nil {
			return nil, err
		}
		if !folder.IsFolder {
			return nil, fmt.Errorf("%w: target %s is not a folder", domain.ErrValidation, folder.ID)
		}
		target = folder
	}

	var folders map[string]*domain.FileRecord
	if opts.IsDirectoryUpload {
		paths := make([]string, len(files))
		for i := range files {
			paths[i] = relativePath(opts, i, files[i].Name)
		}
		folders = s.materializer.Materialize(ctx, userID, target, paths)
	}

	tags := domain.NormalizeTags(opts.Tags)
	result := &UploadResult{
		TotalRequested: len(files),
		Results:        make([]FileResult, 0, len(files)),
	}

	for i := range files {
		parent := target
		if opts.IsDirectoryUpload {
			if folder, ok := folders[dirPrefix(relativePath(opts, i, files[i].Name))]; ok {
				parent = folder
			}
		}

		res := s.ingestOne(ctx, userID, files[i], parent, tags)
		if res.State == StateSucceeded {
			result.TotalSucceeded++
		}
		result.Results = append(result.Results, res)
	}

	s.logger.Info("upload processed",
		zap.String("user_id", userID),
		zap.Int("requested", result.TotalRequested),
		zap.Int("succeeded", result.TotalSucceeded),
	)
	return result, nil
}

func (s *UploadIngestor) ingestOne(ctx context.Context, userID string, file UploadFile, parent *domain.FileRecord, tags domain.Tags) FileResult {
	res := FileResult{Name: domain.BaseName(file.Name), State: StatePending}

	fail := func(err error) FileResult {
		s.logger.Warn("failed to upload file",
			zap.String("user_id", userID),
			zap.String("name", file.Name),
			zap.String("state", string(res.State)),
			zap.Error(err),
		)
		uploadFailures.Inc()
		res.State = StateFailed
		res.Err = err
		return res
	}

	name, err := domain.SanitizeName(res.Name)
	if err != nil {
		return fail(err)
	}
	res.Name = name

	res.State = StateWriting
	obj, err := s.writeBlob(ctx, file, name)
	if err != nil {
		return fail(err)
	}

	res.State = StatePersisting
	rec := &domain.FileRecord{
		Filename:   &obj.Name,
		Type:       domain.DetectContentType(name, file.ContentType),
		Size:       obj.Size,
		UploaderID: userID,
		Tags:       tags,
	}
	parentPath := ""
	if parent != nil {
		rec.ParentID = &parent.ID
		parentPath = parent.Path
	}

	if err := s.createWithFreeName(ctx, rec, name, parentPath); err != nil {
		// Запись не создана - блоб больше никому не нужен
		if delErr := s.blobs.Delete(ctx, obj.Name); delErr != nil {
			s.logger.Warn("failed to clean up blob", zap.String("blob", obj.Name), zap.Error(delErr))
		}
		return fail(err)
	}

	filesUploaded.WithLabelValues(string(rec.Category())).Inc()
	uploadedBytes.Add(float64(rec.Size))

	res.State = StateSucceeded
	res.Name = rec.Name
	res.Record = rec
	return res
}

func (s *UploadIngestor) writeBlob(ctx context.Context, file UploadFile, name string) (*storage.Object, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer rc.Close()

	return s.blobs.Write(ctx, rc, name)
}

// createWithFreeName создаёт запись, добавляя к имени номер, если оно занято соседним файлом
func (s *UploadIngestor) createWithFreeName(ctx context.Context, rec *domain.FileRecord, name, parentPath string) error {
	var err error
	for n := 0; n < maxNameAttempts; n++ {
		rec.Name = domain.SuffixedName(name, n)
		rec.Path = domain.JoinPath(parentPath, rec.Name)

		err = s.files.CreateFile(ctx, rec)
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
	}
	return err
}

// relativePath возвращает путь i-го файла: из path_<i>, иначе имя файла из формы
func relativePath(opts UploadOptions, i int, fallback string) string {
	if i < len(opts.RelativePaths) && opts.RelativePaths[i] != "" {
		return opts.RelativePaths[i]
	}
	return fallback
}
