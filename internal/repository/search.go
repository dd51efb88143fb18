package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"clouddrive/internal/domain"
)

const (
	defaultSearchLimit = 100
	maxSearchLimit     = 500
)

// SearchParams - типизированные параметры поиска по записям владельца
type SearchParams struct {
	Query    string   // подстрока имени, без учёта регистра
	Tags     []string // все перечисленные теги должны присутствовать
	IsFolder *bool
	Limit    int
}

// Search ищет живые записи владельца
func (r *FileRepository) Search(ctx context.Context, uploaderID string, params SearchParams) ([]domain.FileRecord, error) {
	where, args := buildSearchWhere(uploaderID, params)

	limit := params.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	query := r.db.Rebind(`SELECT ` + fileColumns + ` FROM files WHERE ` + where +
		` ORDER BY is_folder DESC, name ASC LIMIT ?`)
	args = append(args, limit)

	var records []domain.FileRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search records: %w", err)
	}

	sortChildren(records)
	return records, nil
}

// buildSearchWhere собирает WHERE с плейсхолдерами "?" и аргументы к нему
func buildSearchWhere(uploaderID string, params SearchParams) (string, []interface{}) {
	conditions := []string{"uploader_id = ?", "is_deleted = ?"}
	args := []interface{}{uploaderID, false}

	if q := strings.TrimSpace(params.Query); q != "" {
		conditions = append(conditions, `LOWER(name) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(q))+"%")
	}

	for _, tag := range domain.NormalizeTags(params.Tags) {
		// Теги лежат JSON массивом, ищем элемент вместе с кавычками
		encoded, _ := json.Marshal(tag)
		conditions = append(conditions, `tags LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(string(encoded))+"%")
	}

	if params.IsFolder != nil {
		conditions = append(conditions, "is_folder = ?")
		args = append(args, *params.IsFolder)
	}

	return strings.Join(conditions, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
