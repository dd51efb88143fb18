package domain

import (
	"mime"
	"path"
	"strings"
)

// Category - категория файла для отображения и фильтрации
type Category string

const (
	CategoryFolder       Category = "folder"
	CategoryImage        Category = "image"
	CategoryVideo        Category = "video"
	CategoryAudio        Category = "audio"
	CategoryDocument     Category = "document"
	CategorySpreadsheet  Category = "spreadsheet"
	CategoryPresentation Category = "presentation"
	CategoryArchive      Category = "archive"
	CategoryCode         Category = "code"
	CategoryText         Category = "text"
	CategoryOther        Category = "other"
)

const defaultContentType = "application/octet-stream"

var extCategories = map[string]Category{
	".jpg": CategoryImage, ".jpeg": CategoryImage, ".png": CategoryImage, ".gif": CategoryImage,
	".webp": CategoryImage, ".bmp": CategoryImage, ".svg": CategoryImage, ".heic": CategoryImage,
	".mp4": CategoryVideo, ".mov": CategoryVideo, ".mkv": CategoryVideo, ".webm": CategoryVideo, ".avi": CategoryVideo,
	".mp3": CategoryAudio, ".wav": CategoryAudio, ".flac": CategoryAudio, ".ogg": CategoryAudio, ".m4a": CategoryAudio,
	".pdf": CategoryDocument, ".doc": CategoryDocument, ".docx": CategoryDocument, ".odt": CategoryDocument, ".rtf": CategoryDocument,
	".xls": CategorySpreadsheet, ".xlsx": CategorySpreadsheet, ".ods": CategorySpreadsheet, ".csv": CategorySpreadsheet,
	".ppt": CategoryPresentation, ".pptx": CategoryPresentation, ".odp": CategoryPresentation, ".key": CategoryPresentation,
	".zip": CategoryArchive, ".rar": CategoryArchive, ".7z": CategoryArchive, ".tar": CategoryArchive, ".gz": CategoryArchive,
	".go": CategoryCode, ".js": CategoryCode, ".ts": CategoryCode, ".py": CategoryCode, ".java": CategoryCode,
	".c": CategoryCode, ".cpp": CategoryCode, ".rs": CategoryCode, ".json": CategoryCode, ".yaml": CategoryCode,
	".yml": CategoryCode, ".html": CategoryCode, ".css": CategoryCode, ".sql": CategoryCode, ".sh": CategoryCode,
	".txt": CategoryText, ".md": CategoryText, ".log": CategoryText,
}

// Classify определяет категорию файла по MIME типу и расширению.
// Единственное место в коде, где принимается это решение.
func Classify(mimeType, ext string) Category {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	if mimeType == FolderType {
		return CategoryFolder
	}

	// Расширение точнее общих MIME типов вроде application/octet-stream
	if c, ok := extCategories[strings.ToLower(ext)]; ok {
		return c
	}

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return CategoryImage
	case strings.HasPrefix(mimeType, "video/"):
		return CategoryVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return CategoryAudio
	case mimeType == "application/pdf", strings.Contains(mimeType, "wordprocessing"), mimeType == "application/msword":
		return CategoryDocument
	case strings.Contains(mimeType, "spreadsheet"), mimeType == "application/vnd.ms-excel":
		return CategorySpreadsheet
	case strings.Contains(mimeType, "presentation"), mimeType == "application/vnd.ms-powerpoint":
		return CategoryPresentation
	case strings.Contains(mimeType, "zip"), strings.Contains(mimeType, "compressed"), mimeType == "application/x-tar":
		return CategoryArchive
	case strings.HasPrefix(mimeType, "text/"):
		return CategoryText
	}
	return CategoryOther
}

// DetectContentType выбирает MIME тип: заявленный клиентом, иначе по расширению
func DetectContentType(name, declared string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != defaultContentType {
		return declared
	}
	if byExt := mime.TypeByExtension(Ext(name)); byExt != "" {
		return byExt
	}
	return defaultContentType
}

// Ext возвращает расширение имени в нижнем регистре
func Ext(name string) string {
	return strings.ToLower(path.Ext(name))
}

// Valid сообщает, является ли значение известной категорией
func (c Category) Valid() bool {
	switch c {
	case CategoryFolder, CategoryImage, CategoryVideo, CategoryAudio, CategoryDocument,
		CategorySpreadsheet, CategoryPresentation, CategoryArchive, CategoryCode,
		CategoryText, CategoryOther:
		return true
	}
	return false
}
