package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"clouddrive/internal/domain"
	"clouddrive/internal/repository"
)

type TrashService struct {
	trashRepo *repository.TrashRepository
	logger    *zap.Logger
}

func NewTrashService(trashRepo *repository.TrashRepository, logger *zap.Logger) *TrashService {
	return &TrashService{
		trashRepo: trashRepo,
		logger:    logger.Named("trash"),
	}
}

// GetTrashItems получает список элементов в корзине
func (s *TrashService) GetTrashItems(ctx context.Context, ownerID string) ([]domain.FileRecord, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}

	return s.trashRepo.GetTrashItems(ctx, ownerID)
}

// RestoreFromTrash восстанавливает элемент из корзины
func (s *TrashService) RestoreFromTrash(ctx context.Context, itemID string, ownerID string) (*domain.FileRecord, error) {
	if itemID == "" || ownerID == "" {
		return nil, fmt.Errorf("%w: all parameters are required", domain.ErrValidation)
	}

	item, err := s.trashRepo.RestoreItem(ctx, itemID, ownerID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("item restored",
		zap.String("user_id", ownerID),
		zap.String("item_id", item.ID),
		zap.String("path", item.Path),
	)
	return item, nil
}
