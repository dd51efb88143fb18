package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FolderType - значение поля type для папок
const FolderType = "folder"

// FileRecord - запись метаданных файла или папки (различаются по IsFolder)
type FileRecord struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	Filename   *string    `json:"filename,omitempty" db:"filename"` // имя блоба, nil для папок
	Path       string     `json:"path" db:"path"`
	Type       string     `json:"type" db:"type"`
	Size       int64      `json:"size" db:"size"`
	IsFolder   bool       `json:"isFolder" db:"is_folder"`
	ParentID   *string    `json:"parentId" db:"parent_id"`
	UploaderID string     `json:"uploaderId" db:"uploader_id"`
	Tags       Tags       `json:"tags" db:"tags"`
	IsDeleted  bool       `json:"isDeleted" db:"is_deleted"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
	URL        string     `json:"url" db:"url"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time  `json:"updatedAt" db:"updated_at"`
}

// FileRecordView - представление записи для клиента
type FileRecordView struct {
	*FileRecord
	Category Category `json:"category"`
}

// View возвращает представление записи с вычисленной категорией
func (f *FileRecord) View() FileRecordView {
	return FileRecordView{
		FileRecord: f,
		Category:   f.Category(),
	}
}

func (f *FileRecord) Category() Category {
	if f.IsFolder {
		return CategoryFolder
	}
	return Classify(f.Type, Ext(f.Name))
}

// ParentKey возвращает parent_id в виде, пригодном для сравнения ("" для корня)
func (f *FileRecord) ParentKey() string {
	if f.ParentID == nil {
		return ""
	}
	return *f.ParentID
}

// ContentURL строит API путь для получения записи.
// Имя входит в путь, поэтому url пересчитывается при переименовании.
func ContentURL(id, name string, isFolder bool) string {
	if isFolder {
		return "/v1/files?parentId=" + url.QueryEscape(id)
	}
	return fmt.Sprintf("/v1/files/%s/content/%s", id, url.PathEscape(name))
}

// Tags - множество тегов, хранится в БД как JSON массив
type Tags []string

// NormalizeTags убирает пробелы, пустые значения и дубликаты, сохраняя порядок
func NormalizeTags(in []string) Tags {
	seen := make(map[string]struct{}, len(in))
	out := make(Tags, 0, len(in))
	for _, tag := range in {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// ParseTags разбирает строку тегов, разделённых запятыми
func ParseTags(s string) Tags {
	if strings.TrimSpace(s) == "" {
		return Tags{}
	}
	return NormalizeTags(strings.Split(s, ","))
}

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (t *Tags) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported tags type %T", src)
	}

	if len(data) == 0 {
		*t = Tags{}
		return nil
	}

	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return fmt.Errorf("failed to decode tags: %w", err)
	}
	*t = NormalizeTags(tags)
	return nil
}
