package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"clouddrive/internal/domain"
	"clouddrive/internal/repository"
	"clouddrive/internal/storage"
)

// FolderMaterializer строит цепочки папок по относительным путям загружаемой директории
type FolderMaterializer struct {
	files  *repository.FileRepository
	blobs  storage.Store
	logger *zap.Logger
}

func NewFolderMaterializer(files *repository.FileRepository, blobs storage.Store, logger *zap.Logger) *FolderMaterializer {
	return &FolderMaterializer{
		files:  files,
		blobs:  blobs,
		logger: logger.Named("materializer"),
	}
}

// Materialize возвращает отображение префикс директории -> папка, создавая недостающие папки.
// root - папка, от которой отсчитываются пути (nil - корень пользователя).
// Папка, которую не удалось создать, пропускается вместе со своими подпапками.
func (m *FolderMaterializer) Materialize(ctx context.Context, userID string, root *domain.FileRecord, relativePaths []string) map[string]*domain.FileRecord {
	folders := make(map[string]*domain.FileRecord)
	failed := make(map[string]bool)

	for _, prefix := range DirPrefixes(relativePaths) {
		parentPrefix, name := splitPrefix(prefix)

		parent := root
		if parentPrefix != "" {
			if failed[parentPrefix] {
				failed[prefix] = true
				continue
			}
			parent = folders[parentPrefix]
		}

		folder, created, err := m.ensureFolder(ctx, userID, name, parent)
		if err != nil {
			m.logger.Warn("failed to materialize folder",
				zap.String("user_id", userID),
				zap.String("prefix", prefix),
				zap.Error(err),
			)
			foldersMaterialized.WithLabelValues("failed").Inc()
			failed[prefix] = true
			continue
		}

		if created {
			foldersMaterialized.WithLabelValues("created").Inc()
		} else {
			foldersMaterialized.WithLabelValues("reused").Inc()
		}
		folders[prefix] = folder
	}

	return folders
}

// ensureFolder находит папку name в parent или создаёт её вместе с директорией в хранилище
func (m *FolderMaterializer) ensureFolder(ctx context.Context, userID, name string, parent *domain.FileRecord) (*domain.FileRecord, bool, error) {
	name, err := domain.SanitizeName(name)
	if err != nil {
		return nil, false, err
	}

	var parentID *string
	parentPath := ""
	if parent != nil {
		parentID = &parent.ID
		parentPath = parent.Path
	}

	existing, err := m.files.FindFolder(ctx, userID, name, parentID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	path := domain.JoinPath(parentPath, name)
	if err := m.blobs.EnsureDir(ctx, storage.FolderDir(userID, path)); err != nil {
		return nil, false, err
	}

	folder, err := m.files.CreateFolder(ctx, userID, name, parentID, path)
	if errors.Is(err, domain.ErrConflict) {
		// Параллельный запрос успел создать ту же папку
		existing, findErr := m.files.FindFolder(ctx, userID, name, parentID)
		if findErr != nil {
			return nil, false, findErr
		}
		if existing == nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create folder %q: %w", name, err)
	}

	m.logger.Debug("folder created",
		zap.String("user_id", userID),
		zap.String("folder_id", folder.ID),
		zap.String("path", folder.Path),
	)
	return folder, true, nil
}

// DirPrefixes возвращает все префиксы директорий, заданные путями файлов,
// упорядоченные по глубине, затем по имени: "a/b/c.txt" даёт "a", "a/b".
func DirPrefixes(relativePaths []string) []string {
	seen := make(map[string]struct{})
	var prefixes []string

	for _, p := range relativePaths {
		segments := domain.SplitRelativePath(p)
		for i := 1; i < len(segments); i++ {
			prefix := strings.Join(segments[:i], "/")
			if _, ok := seen[prefix]; ok {
				continue
			}
			seen[prefix] = struct{}{}
			prefixes = append(prefixes, prefix)
		}
	}

	sort.SliceStable(prefixes, func(i, j int) bool {
		di, dj := strings.Count(prefixes[i], "/"), strings.Count(prefixes[j], "/")
		if di != dj {
			return di < dj
		}
		return prefixes[i] < prefixes[j]
	})
	return prefixes
}

// dirPrefix возвращает директорию файла по относительному пути ("" если путь из одного сегмента)
func dirPrefix(relativePath string) string {
	segments := domain.SplitRelativePath(relativePath)
	if len(segments) < 2 {
		return ""
	}
	return strings.Join(segments[:len(segments)-1], "/")
}

func splitPrefix(prefix string) (string, string) {
	i := strings.LastIndex(prefix, "/")
	if i < 0 {
		return "", prefix
	}
	return prefix[:i], prefix[i+1:]
}
