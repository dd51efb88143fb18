package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"clouddrive/internal/domain"
)

type TrashRepository struct {
	db *sqlx.DB
}

func NewTrashRepository(db *sqlx.DB) *TrashRepository {
	return &TrashRepository{db: db}
}

// GetTrashItems возвращает удалённые записи верхнего уровня:
// те, чей родитель жив, отсутствует или был удалён в другой момент.
func (r *TrashRepository) GetTrashItems(ctx context.Context, ownerID string) ([]domain.FileRecord, error) {
	query := r.db.Rebind(`
        SELECT ` + prefixedColumns("f") + `
        FROM files f
        LEFT JOIN files p ON p.id = f.parent_id
        WHERE f.uploader_id = ? AND f.is_deleted = ?
          AND (p.id IS NULL OR p.is_deleted = ? OR p.deleted_at <> f.deleted_at)
        ORDER BY f.deleted_at DESC, f.is_folder DESC, f.name ASC`)

	var items []domain.FileRecord
	if err := r.db.SelectContext(ctx, &items, query, ownerID, true, false); err != nil {
		return nil, fmt.Errorf("failed to get trash items: %w", err)
	}
	return items, nil
}

// RestoreItem восстанавливает запись и потомков, удалённых вместе с ней (та же метка deleted_at).
// Если родитель больше не существует, запись возвращается в корень.
func (r *TrashRepository) RestoreItem(ctx context.Context, itemID string, ownerID string) (*domain.FileRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	item, err := getByID(ctx, tx, ownerID, itemID, true)
	if err != nil {
		return nil, err
	}

	// Проверяем, жив ли исходный родитель
	parentPath := ""
	if item.ParentID != nil {
		parent, err := getByID(ctx, tx, ownerID, *item.ParentID, false)
		switch {
		case err == nil:
			parentPath = parent.Path
		case isNotFound(err):
			item.ParentID = nil
		default:
			return nil, err
		}
	}

	existing, err := findSibling(ctx, tx, ownerID, item.ParentKey(), item.Name, item.IsFolder, item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check name: %w", err)
	}
	if existing != nil {
		return nil, conflictError(item.Name, item.IsFolder)
	}

	ids := []string{item.ID}
	if item.IsFolder {
		descendants, err := deletedDescendants(ctx, tx, item.ID)
		if err != nil {
			return nil, err
		}
		for _, d := range descendants {
			if d.DeletedAt != nil && item.DeletedAt != nil && d.DeletedAt.Equal(*item.DeletedAt) {
				ids = append(ids, d.ID)
			}
		}
	}

	ts := now()
	query, args, err := sqlx.In(`UPDATE files SET is_deleted = ?, deleted_at = NULL, updated_at = ? WHERE id IN (?)`,
		false, ts, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build restore query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		if isUniqueViolation(err) {
			return nil, conflictError(item.Name, item.IsFolder)
		}
		return nil, fmt.Errorf("failed to restore records: %w", err)
	}

	oldPath := item.Path
	item.Path = domain.JoinPath(parentPath, item.Name)
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE files SET parent_id = ?, path = ? WHERE id = ?`),
		item.ParentID, item.Path, item.ID); err != nil {
		return nil, fmt.Errorf("failed to update restored record: %w", err)
	}
	if item.IsFolder {
		if err := updateDescendantPaths(ctx, tx, item.ID, oldPath, item.Path); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit restore: %w", err)
	}

	item.IsDeleted = false
	item.DeletedAt = nil
	item.UpdatedAt = ts
	return item, nil
}

// deletedDescendants возвращает всех удалённых потомков папки
func deletedDescendants(ctx context.Context, q sqlx.ExtContext, folderID string) ([]domain.FileRecord, error) {
	query := q.Rebind(`
        WITH RECURSIVE subtree(id) AS (
            SELECT id FROM files WHERE parent_id = ?

            UNION

            SELECT f.id
            FROM files f
            INNER JOIN subtree s ON f.parent_id = s.id
        )
        SELECT ` + fileColumns + `
        FROM files
        WHERE id IN (SELECT id FROM subtree) AND is_deleted = ?`)

	var records []domain.FileRecord
	if err := sqlx.SelectContext(ctx, q, &records, query, folderID, true); err != nil {
		return nil, fmt.Errorf("failed to get deleted descendants: %w", err)
	}
	return records, nil
}

// prefixedColumns добавляет псевдоним таблицы к списку колонок
func prefixedColumns(alias string) string {
	columns := strings.Split(fileColumns, ",")
	for i, c := range columns {
		columns[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(columns, ", ")
}
