// Package storage хранит содержимое файлов (блобы) под плоскими сгенерированными именами.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"clouddrive/internal/domain"
)

const (
	// TempDir - поддиректория для временных архивов
	TempDir = "temp"
	// DirsRoot - поддиректория с деревом папок пользователей
	DirsRoot = "dirs"

	maxBaseLength = 50
	maxExtLength  = 16
)

// Object - результат записи блоба
type Object struct {
	Name string
	Size int64
}

// Store - хранилище блобов. Все ошибки ввода-вывода возвращаются как *domain.StorageError.
type Store interface {
	// Write записывает поток под новым уникальным именем и возвращает его
	Write(ctx context.Context, r io.Reader, suggestedName string) (*Object, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Delete идемпотентен: отсутствующий блоб не ошибка
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	// EnsureDir создаёт директорию (рекурсивно, идемпотентно)
	EnsureDir(ctx context.Context, dir string) error
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// generateStorageName генерирует имя блоба.
// Формат: {name}_{timestamp}_{uuid8}{ext}, например photo_20260221150405_a1b2c3d4.jpg
func generateStorageName(original string) string {
	original = domain.BaseName(original)
	ext := filepath.Ext(original)
	name := strings.TrimSuffix(original, ext)

	name = sanitize(name)
	if len(name) > maxBaseLength {
		name = name[:maxBaseLength]
	}
	if name == "" {
		name = "file"
	}

	ext = strings.ToLower(sanitize(strings.TrimPrefix(ext, ".")))
	if len(ext) > maxExtLength {
		ext = ext[:maxExtLength]
	}

	ts := time.Now().UTC().Format("20060102150405")
	uid := uuid.New().String()[:8]

	if ext != "" {
		return fmt.Sprintf("%s_%s_%s.%s", name, ts, uid, ext)
	}
	return fmt.Sprintf("%s_%s_%s", name, ts, uid)
}

// sanitize заменяет небезопасные символы на "_"
func sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	return strings.Trim(s, "._")
}

// validateName проверяет, что имя блоба плоское и не выходит за пределы хранилища
func validateName(op, name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return &domain.StorageError{Op: op, Name: name, Err: fmt.Errorf("%w: invalid blob name", domain.ErrValidation)}
	}
	return nil
}

// cleanDir нормализует относительный путь директории. "" означает корень хранилища.
func cleanDir(dir string) string {
	dir = path.Clean("/" + strings.ReplaceAll(dir, `\`, "/"))
	return strings.TrimPrefix(dir, "/")
}

// FolderDir возвращает директорию папки пользователя: dirs/<uploaderId>/<logical path>
func FolderDir(uploaderID, logicalPath string) string {
	return path.Join(DirsRoot, cleanDir(uploaderID), cleanDir(logicalPath))
}
