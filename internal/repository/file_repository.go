package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"clouddrive/internal/domain"
)

const fileColumns = `id, name, filename, path, type, size, is_folder, parent_id, uploader_id,
        tags, is_deleted, deleted_at, url, created_at, updated_at`

const insertFileQuery = `
        INSERT INTO files (id, name, filename, path, type, size, is_folder, parent_id, uploader_id,
                           tags, is_deleted, deleted_at, url, created_at, updated_at)
        VALUES (:id, :name, :filename, :path, :type, :size, :is_folder, :parent_id, :uploader_id,
                :tags, :is_deleted, :deleted_at, :url, :created_at, :updated_at)`

// FileRepository хранит метаданные файлов и папок в одной таблице files.
// Все операции ограничены владельцем (uploader_id).
type FileRepository struct {
	db *sqlx.DB
}

func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) GetByID(ctx context.Context, uploaderID, id string) (*domain.FileRecord, error) {
	return getByID(ctx, r.db, uploaderID, id, false)
}

// GetByIDs возвращает живые записи в порядке ids (дубликаты схлопываются)
func (r *FileRepository) GetByIDs(ctx context.Context, uploaderID string, ids []string) ([]domain.FileRecord, error) {
	return getByIDs(ctx, r.db, uploaderID, ids)
}

// FindFolder ищет живую папку по имени среди детей parentID. Возвращает nil, nil если папки нет.
func (r *FileRepository) FindFolder(ctx context.Context, uploaderID, name string, parentID *string) (*domain.FileRecord, error) {
	rec, err := findSibling(ctx, r.db, uploaderID, parentKey(parentID), name, true, "")
	if err != nil {
		return nil, fmt.Errorf("failed to find folder: %w", err)
	}
	return rec, nil
}

// CreateFolder создаёт папку. Занятое имя возвращает ErrConflict.
func (r *FileRepository) CreateFolder(ctx context.Context, uploaderID, name string, parentID *string, path string) (*domain.FileRecord, error) {
	id := uuid.NewString()
	rec := &domain.FileRecord{
		ID:         id,
		Name:       name,
		Path:       path,
		Type:       domain.FolderType,
		IsFolder:   true,
		ParentID:   parentID,
		UploaderID: uploaderID,
		Tags:       domain.Tags{},
		URL:        domain.ContentURL(id, name, true),
	}

	if err := r.insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateFile создаёт запись файла. Поля ID, URL и временные метки заполняются здесь.
func (r *FileRepository) CreateFile(ctx context.Context, rec *domain.FileRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.IsFolder = false
	rec.Tags = domain.NormalizeTags(rec.Tags)
	rec.URL = domain.ContentURL(rec.ID, rec.Name, false)

	return r.insert(ctx, rec)
}

func (r *FileRepository) insert(ctx context.Context, rec *domain.FileRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Родитель должен быть живой папкой того же владельца
	if rec.ParentID != nil {
		parent, err := getByID(ctx, tx, rec.UploaderID, *rec.ParentID, false)
		if err != nil {
			return err
		}
		if !parent.IsFolder {
			return fmt.Errorf("%w: parent %s is not a folder", domain.ErrValidation, parent.ID)
		}
	}

	ts := now()
	rec.CreatedAt = ts
	rec.UpdatedAt = ts
	rec.IsDeleted = false
	rec.DeletedAt = nil

	if _, err := sqlx.NamedExecContext(ctx, tx, insertFileQuery, rec); err != nil {
		if isUniqueViolation(err) {
			return conflictError(rec.Name, rec.IsFolder)
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}

	return tx.Commit()
}

// ListChildren возвращает живых детей папки (nil - корень): папки, затем файлы, по имени
func (r *FileRepository) ListChildren(ctx context.Context, uploaderID string, parentID *string) ([]domain.FileRecord, error) {
	query := r.db.Rebind(`
        SELECT ` + fileColumns + `
        FROM files
        WHERE uploader_id = ? AND COALESCE(parent_id, '') = ? AND is_deleted = ?
        ORDER BY is_folder DESC, name ASC`)

	var children []domain.FileRecord
	if err := r.db.SelectContext(ctx, &children, query, uploaderID, parentKey(parentID), false); err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}

	sortChildren(children)
	return children, nil
}

// SoftDeleteCascade помечает удалёнными записи ids и всех их потомков одной меткой deleted_at
func (r *FileRepository) SoftDeleteCascade(ctx context.Context, uploaderID string, ids []string) (int64, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	ts := now()
	query, args, err := sqlx.In(`
        WITH RECURSIVE subtree(id) AS (
            SELECT id FROM files
            WHERE uploader_id = ? AND is_deleted = ? AND id IN (?)

            UNION

            SELECT f.id
            FROM files f
            INNER JOIN subtree s ON f.parent_id = s.id
            WHERE f.is_deleted = ?
        )
        UPDATE files
        SET is_deleted = ?, deleted_at = ?, updated_at = ?
        WHERE id IN (SELECT id FROM subtree)`,
		uploaderID, false, ids, false, true, ts, ts)
	if err != nil {
		return 0, fmt.Errorf("failed to build delete query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to soft delete records: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return count, nil
}

// Move переносит записи в папку targetID (nil - корень).
// Все проверки выполняются до изменений: цель, циклы, коллизии имён.
func (r *FileRepository) Move(ctx context.Context, uploaderID string, ids []string, targetID *string) ([]domain.FileRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	items, err := getByIDs(ctx, tx, uploaderID, ids)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: nothing to move", domain.ErrValidation)
	}

	targetPath := ""
	if targetID != nil {
		target, err := getByID(ctx, tx, uploaderID, *targetID, false)
		if err != nil {
			return nil, err
		}
		if !target.IsFolder {
			return nil, fmt.Errorf("%w: target %s is not a folder", domain.ErrValidation, target.ID)
		}
		targetPath = target.Path

		// Папку нельзя переместить в себя или в своего потомка
		ancestors, err := ancestorIDs(ctx, tx, uploaderID, target.ID)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if item.IsFolder && ancestors[item.ID] {
				return nil, fmt.Errorf("%w: cannot move folder %q into itself or its subfolder", domain.ErrConflict, item.Name)
			}
		}
	}

	// Коллизии имён с существующими детьми цели и между перемещаемыми записями
	siblings, err := listChildrenTx(ctx, tx, uploaderID, parentKey(targetID))
	if err != nil {
		return nil, err
	}
	taken := make(map[string]string, len(siblings))
	for _, s := range siblings {
		taken[siblingKey(s.Name, s.IsFolder)] = s.ID
	}
	for _, item := range items {
		key := siblingKey(item.Name, item.IsFolder)
		if owner, ok := taken[key]; ok && owner != item.ID {
			return nil, conflictError(item.Name, item.IsFolder)
		}
		taken[key] = item.ID
	}

	ts := now()
	update := tx.Rebind(`UPDATE files SET parent_id = ?, path = ?, updated_at = ? WHERE id = ?`)
	for i := range items {
		item := &items[i]
		if item.ParentKey() == parentKey(targetID) {
			continue
		}

		oldPath := item.Path
		item.ParentID = targetID
		item.Path = domain.JoinPath(targetPath, item.Name)
		item.UpdatedAt = ts

		if _, err := tx.ExecContext(ctx, update, targetID, item.Path, ts, item.ID); err != nil {
			if isUniqueViolation(err) {
				return nil, conflictError(item.Name, item.IsFolder)
			}
			return nil, fmt.Errorf("failed to move record %s: %w", item.ID, err)
		}

		if item.IsFolder {
			if err := updateDescendantPaths(ctx, tx, item.ID, oldPath, item.Path); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit move: %w", err)
	}
	return items, nil
}

// Rename меняет имя и (если tags != nil) теги. Блоб не трогается.
func (r *FileRepository) Rename(ctx context.Context, uploaderID, id, newName string, tags domain.Tags) (*domain.FileRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec, err := getByID(ctx, tx, uploaderID, id, false)
	if err != nil {
		return nil, err
	}

	if newName != rec.Name {
		existing, err := findSibling(ctx, tx, uploaderID, rec.ParentKey(), newName, rec.IsFolder, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check name: %w", err)
		}
		if existing != nil {
			return nil, conflictError(newName, rec.IsFolder)
		}
	}

	parentPath := ""
	if rec.ParentID != nil {
		parent, err := getByID(ctx, tx, uploaderID, *rec.ParentID, false)
		if err != nil {
			return nil, err
		}
		parentPath = parent.Path
	}

	oldPath := rec.Path
	rec.Name = newName
	rec.Path = domain.JoinPath(parentPath, newName)
	rec.URL = domain.ContentURL(rec.ID, newName, rec.IsFolder)
	rec.UpdatedAt = now()
	if tags != nil {
		rec.Tags = domain.NormalizeTags(tags)
	}

	query := tx.Rebind(`UPDATE files SET name = ?, path = ?, url = ?, tags = ?, updated_at = ? WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, query, rec.Name, rec.Path, rec.URL, rec.Tags, rec.UpdatedAt, rec.ID); err != nil {
		if isUniqueViolation(err) {
			return nil, conflictError(newName, rec.IsFolder)
		}
		return nil, fmt.Errorf("failed to rename record: %w", err)
	}

	if rec.IsFolder {
		if err := updateDescendantPaths(ctx, tx, rec.ID, oldPath, rec.Path); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rename: %w", err)
	}
	return rec, nil
}

func getByID(ctx context.Context, q sqlx.ExtContext, uploaderID, id string, deleted bool) (*domain.FileRecord, error) {
	query := q.Rebind(`SELECT ` + fileColumns + ` FROM files WHERE id = ? AND uploader_id = ? AND is_deleted = ?`)

	var rec domain.FileRecord
	if err := sqlx.GetContext(ctx, q, &rec, query, id, uploaderID, deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: record %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &rec, nil
}

func getByIDs(ctx context.Context, q sqlx.ExtContext, uploaderID string, ids []string) ([]domain.FileRecord, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT `+fileColumns+` FROM files WHERE uploader_id = ? AND is_deleted = ? AND id IN (?)`,
		uploaderID, false, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var found []domain.FileRecord
	if err := sqlx.SelectContext(ctx, q, &found, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get records: %w", err)
	}

	byID := make(map[string]domain.FileRecord, len(found))
	for _, rec := range found {
		byID[rec.ID] = rec
	}

	records := make([]domain.FileRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: record %s", domain.ErrNotFound, id)
		}
		records = append(records, rec)
	}
	return records, nil
}

// findSibling ищет живую запись с именем name среди детей parent, исключая excludeID
func findSibling(ctx context.Context, q sqlx.ExtContext, uploaderID, parent, name string, isFolder bool, excludeID string) (*domain.FileRecord, error) {
	query := q.Rebind(`
        SELECT ` + fileColumns + `
        FROM files
        WHERE uploader_id = ? AND COALESCE(parent_id, '') = ? AND name = ?
          AND is_folder = ? AND is_deleted = ? AND id <> ?`)

	var rec domain.FileRecord
	err := sqlx.GetContext(ctx, q, &rec, query, uploaderID, parent, name, isFolder, false, excludeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func listChildrenTx(ctx context.Context, q sqlx.ExtContext, uploaderID, parent string) ([]domain.FileRecord, error) {
	query := q.Rebind(`SELECT ` + fileColumns + ` FROM files WHERE uploader_id = ? AND COALESCE(parent_id, '') = ? AND is_deleted = ?`)

	var children []domain.FileRecord
	if err := sqlx.SelectContext(ctx, q, &children, query, uploaderID, parent, false); err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	return children, nil
}

// ancestorIDs возвращает id записи и всех её предков
func ancestorIDs(ctx context.Context, q sqlx.ExtContext, uploaderID, id string) (map[string]bool, error) {
	query := q.Rebind(`
        WITH RECURSIVE ancestors(id, parent_id) AS (
            SELECT id, parent_id FROM files WHERE id = ? AND uploader_id = ?

            UNION

            SELECT f.id, f.parent_id
            FROM files f
            INNER JOIN ancestors a ON f.id = a.parent_id
        )
        SELECT id FROM ancestors`)

	var ids []string
	if err := sqlx.SelectContext(ctx, q, &ids, query, id, uploaderID); err != nil {
		return nil, fmt.Errorf("failed to get ancestors: %w", err)
	}

	set := make(map[string]bool, len(ids))
	for _, a := range ids {
		set[a] = true
	}
	return set, nil
}

// updateDescendantPaths заменяет префикс oldPath на newPath у всех потомков папки
func updateDescendantPaths(ctx context.Context, q sqlx.ExtContext, folderID, oldPath, newPath string) error {
	if oldPath == newPath || oldPath == "" {
		return nil
	}

	oldPrefix := oldPath + "/"
	prefixLen := utf8.RuneCountInString(oldPrefix)

	query := q.Rebind(`
        WITH RECURSIVE subtree(id) AS (
            SELECT id FROM files WHERE parent_id = ?

            UNION

            SELECT f.id
            FROM files f
            INNER JOIN subtree s ON f.parent_id = s.id
        )
        UPDATE files
        SET path = CAST(? AS TEXT) || substr(path, CAST(? AS INTEGER))
        WHERE id IN (SELECT id FROM subtree)
          AND substr(path, 1, CAST(? AS INTEGER)) = ?`)

	if _, err := q.ExecContext(ctx, query, folderID, newPath+"/", prefixLen+1, prefixLen, oldPrefix); err != nil {
		return fmt.Errorf("failed to update descendant paths: %w", err)
	}
	return nil
}

// sortChildren фиксирует порядок независимо от collation базы: папки, затем файлы, по имени
func sortChildren(records []domain.FileRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].IsFolder != records[j].IsFolder {
			return records[i].IsFolder
		}
		return records[i].Name < records[j].Name
	})
}

func conflictError(name string, isFolder bool) error {
	kind := "file"
	if isFolder {
		kind = "folder"
	}
	return fmt.Errorf("%w: %s %q already exists in this folder", domain.ErrConflict, kind, name)
}

func siblingKey(name string, isFolder bool) string {
	if isFolder {
		return "d:" + name
	}
	return "f:" + name
}

func parentKey(parentID *string) string {
	if parentID == nil {
		return ""
	}
	return *parentID
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
