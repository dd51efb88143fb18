package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"clouddrive/internal/domain"
	"clouddrive/internal/repository"
	"clouddrive/internal/storage"
)

// SearchQuery - параметры поиска, включая фильтр по категории
type SearchQuery struct {
	repository.SearchParams
	Category domain.Category
}

// FileService - операции над записями: папки, листинг, перемещение, переименование, удаление
type FileService struct {
	files  *repository.FileRepository
	blobs  storage.Store
	logger *zap.Logger
}

func NewFileService(files *repository.FileRepository, blobs storage.Store, logger *zap.Logger) *FileService {
	return &FileService{
		files:  files,
		blobs:  blobs,
		logger: logger.Named("files"),
	}
}

// CreateFolder создаёт папку явно. Занятое имя возвращает ErrConflict.
func (s *FileService) CreateFolder(ctx context.Context, userID, name string, parentID *string) (*domain.FileRecord, error) {
	name, err := domain.SanitizeName(name)
	if err != nil {
		return nil, err
	}

	parentPath := ""
	if parentID != nil {
		parent, err := s.folder(ctx, userID, *parentID)
		if err != nil {
			return nil, err
		}
		parentPath = parent.Path
	}

	path := domain.JoinPath(parentPath, name)
	if err := s.blobs.EnsureDir(ctx, storage.FolderDir(userID, path)); err != nil {
		return nil, err
	}

	folder, err := s.files.CreateFolder(ctx, userID, name, parentID, path)
	if err != nil {
		return nil, err
	}

	s.logger.Info("folder created",
		zap.String("user_id", userID),
		zap.String("folder_id", folder.ID),
		zap.String("path", folder.Path),
	)
	return folder, nil
}

func (s *FileService) Get(ctx context.Context, userID, id string) (*domain.FileRecord, error) {
	return s.files.GetByID(ctx, userID, id)
}

// List возвращает содержимое папки (nil - корень)
func (s *FileService) List(ctx context.Context, userID string, parentID *string) (*domain.FolderContent, error) {
	var folder *domain.FileRecord
	if parentID != nil {
		f, err := s.folder(ctx, userID, *parentID)
		if err != nil {
			return nil, err
		}
		folder = f
	}

	children, err := s.files.ListChildren(ctx, userID, parentID)
	if err != nil {
		return nil, err
	}
	return domain.NewFolderContent(folder, children), nil
}

func (s *FileService) Move(ctx context.Context, userID string, ids []string, targetID *string) ([]domain.FileRecord, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no items to move", domain.ErrValidation)
	}

	moved, err := s.files.Move(ctx, userID, ids, targetID)
	if err != nil {
		return nil, err
	}

	target := "root"
	if targetID != nil {
		target = *targetID
	}
	s.logger.Info("records moved",
		zap.String("user_id", userID),
		zap.Int("count", len(moved)),
		zap.String("target", target),
	)
	return moved, nil
}

// Rename меняет отображаемое имя и, если tags != nil, теги. Имя блоба не меняется.
func (s *FileService) Rename(ctx context.Context, userID, id, newName string, tags []string) (*domain.FileRecord, error) {
	name, err := domain.SanitizeName(newName)
	if err != nil {
		return nil, err
	}

	var normalized domain.Tags
	if tags != nil {
		normalized = domain.NormalizeTags(tags)
	}
	return s.files.Rename(ctx, userID, id, name, normalized)
}

// UpdateTags заменяет теги записи
func (s *FileService) UpdateTags(ctx context.Context, userID, id string, tags []string) (*domain.FileRecord, error) {
	rec, err := s.files.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.files.Rename(ctx, userID, id, rec.Name, domain.NormalizeTags(tags))
}

// Delete помечает записи и их потомков удалёнными. Блобы остаются на месте.
func (s *FileService) Delete(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no items to delete", domain.ErrValidation)
	}

	// Все id должны существовать
	if _, err := s.files.GetByIDs(ctx, userID, ids); err != nil {
		return 0, err
	}

	count, err := s.files.SoftDeleteCascade(ctx, userID, ids)
	if err != nil {
		return 0, err
	}

	s.logger.Info("records deleted", zap.String("user_id", userID), zap.Int64("count", count))
	return count, nil
}

func (s *FileService) Search(ctx context.Context, userID string, q SearchQuery) ([]domain.FileRecord, error) {
	records, err := s.files.Search(ctx, userID, q.SearchParams)
	if err != nil {
		return nil, err
	}
	if q.Category == "" {
		return records, nil
	}

	filtered := records[:0]
	for i := range records {
		if records[i].Category() == q.Category {
			filtered = append(filtered, records[i])
		}
	}
	return filtered, nil
}

// OpenContent открывает блоб файла. Вызывающий код обязан закрыть ReadCloser.
func (s *FileService) OpenContent(ctx context.Context, userID, id string) (*domain.FileRecord, io.ReadCloser, error) {
	rec, err := s.files.GetByID(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	if rec.IsFolder {
		return nil, nil, fmt.Errorf("%w: %s is a folder", domain.ErrValidation, rec.ID)
	}
	if rec.Filename == nil {
		return nil, nil, fmt.Errorf("%w: content of %s is missing", domain.ErrNotFound, rec.ID)
	}

	rc, err := s.blobs.Open(ctx, *rec.Filename)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("blob missing", zap.String("file_id", rec.ID), zap.String("blob", *rec.Filename))
		return nil, nil, fmt.Errorf("%w: content of %s is missing", domain.ErrNotFound, rec.ID)
	}
	if err != nil {
		return nil, nil, err
	}
	return rec, rc, nil
}

func (s *FileService) folder(ctx context.Context, userID, id string) (*domain.FileRecord, error) {
	rec, err := s.files.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !rec.IsFolder {
		return nil, fmt.Errorf("%w: %s is not a folder", domain.ErrValidation, rec.ID)
	}
	return rec, nil
}
