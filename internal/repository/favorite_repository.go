package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"clouddrive/internal/domain"
)

type FavoriteRepository struct {
	db *sqlx.DB
}

func NewFavoriteRepository(db *sqlx.DB) *FavoriteRepository {
	return &FavoriteRepository{db: db}
}

// Add отмечает файл избранным. Повторное добавление не считается ошибкой.
func (r *FavoriteRepository) Add(ctx context.Context, userID, fileID string) error {
	query := r.db.Rebind(`
        INSERT INTO favorites (user_id, file_id, created_at)
        VALUES (?, ?, ?)
        ON CONFLICT (user_id, file_id) DO NOTHING`)

	if _, err := r.db.ExecContext(ctx, query, userID, fileID, now()); err != nil {
		return fmt.Errorf("failed to add favorite: %w", err)
	}
	return nil
}

func (r *FavoriteRepository) Remove(ctx context.Context, userID, fileID string) error {
	query := r.db.Rebind(`DELETE FROM favorites WHERE user_id = ? AND file_id = ?`)
	if _, err := r.db.ExecContext(ctx, query, userID, fileID); err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	return nil
}

// List возвращает избранные записи, пропуская удалённые и несуществующие файлы
func (r *FavoriteRepository) List(ctx context.Context, userID string) ([]domain.FileRecord, error) {
	query := r.db.Rebind(`
        SELECT ` + prefixedColumns("f") + `
        FROM favorites fav
        INNER JOIN files f ON f.id = fav.file_id AND f.uploader_id = fav.user_id
        WHERE fav.user_id = ? AND f.is_deleted = ?
        ORDER BY fav.created_at DESC, f.name ASC`)

	var records []domain.FileRecord
	if err := r.db.SelectContext(ctx, &records, query, userID, false); err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	return records, nil
}
