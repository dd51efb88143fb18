package domain

import "time"

// FavoriteRecord - отметка "избранное" пользователя на файле.
// Удаление файла не удаляет запись, она отфильтровывается при чтении.
type FavoriteRecord struct {
	UserID    string    `json:"userId" db:"user_id"`
	FileID    string    `json:"fileId" db:"file_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
