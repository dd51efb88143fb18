package service

import (
	"context"

	"clouddrive/internal/domain"
	"clouddrive/internal/repository"
)

type FavoriteService struct {
	favorites *repository.FavoriteRepository
	files     *repository.FileRepository
}

func NewFavoriteService(favorites *repository.FavoriteRepository, files *repository.FileRepository) *FavoriteService {
	return &FavoriteService{
		favorites: favorites,
		files:     files,
	}
}

// Add отмечает живую запись избранной
func (s *FavoriteService) Add(ctx context.Context, userID, fileID string) error {
	if _, err := s.files.GetByID(ctx, userID, fileID); err != nil {
		return err
	}
	return s.favorites.Add(ctx, userID, fileID)
}

func (s *FavoriteService) Remove(ctx context.Context, userID, fileID string) error {
	return s.favorites.Remove(ctx, userID, fileID)
}

func (s *FavoriteService) List(ctx context.Context, userID string) ([]domain.FileRecord, error) {
	return s.favorites.List(ctx, userID)
}
