package domain

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

const maxNameLength = 255

// SanitizeName проверяет отображаемое имя файла или папки
func SanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", fmt.Errorf("%w: name is required", ErrValidation)
	case name == "." || name == "..":
		return "", fmt.Errorf("%w: invalid name %q", ErrValidation, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return "", fmt.Errorf("%w: name %q contains path separators", ErrValidation, name)
	case utf8.RuneCountInString(name) > maxNameLength:
		return "", fmt.Errorf("%w: name is longer than %d characters", ErrValidation, maxNameLength)
	}
	return name, nil
}

// SplitRelativePath разбивает клиентский относительный путь на сегменты.
// Пустые сегменты, "." и ".." отбрасываются.
func SplitRelativePath(p string) []string {
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || part == "." || part == ".." {
			continue
		}
		segments = append(segments, part)
	}
	return segments
}

// BaseName возвращает имя файла без клиентского пути
func BaseName(p string) string {
	segments := SplitRelativePath(p)
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// JoinPath строит логический путь записи по пути родителя
func JoinPath(parentPath, name string) string {
	if parentPath == "" || parentPath == "/" {
		return "/" + name
	}
	return path.Join(parentPath, name)
}

// SuffixedName добавляет номер перед расширением: "report.pdf" -> "report (1).pdf"
func SuffixedName(name string, n int) string {
	if n <= 0 {
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		base, ext = ext, ""
	}
	return fmt.Sprintf("%s (%d)%s", base, n, ext)
}
