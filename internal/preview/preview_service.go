package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/h2non/bimg"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"clouddrive/internal/config"
	"clouddrive/internal/domain"
	"clouddrive/internal/service"
)

// maxSourceSize ограничивает размер изображения, читаемого в память
const maxSourceSize = 50 << 20

// ErrUnsupported - превью строится только для изображений
var ErrUnsupported = errors.New("preview is not supported for this file type")

// Service строит JPEG превью изображений и держит их в LRU кэше с TTL
type Service struct {
	files   *service.FileService
	cache   *expirable.LRU[string, []byte]
	maxSize int
	quality int
	resize  func(data []byte, maxSize, quality int) ([]byte, error)
	logger  *zap.Logger
}

// NewService создает новый сервис для работы с превью
func NewService(files *service.FileService, cfg config.PreviewConfig, logger *zap.Logger) *Service {
	return &Service{
		files:   files,
		cache:   expirable.NewLRU[string, []byte](cfg.CacheSize, nil, cfg.CacheTTL),
		maxSize: cfg.MaxSize,
		quality: cfg.Quality,
		resize:  optimizeImage,
		logger:  logger.Named("preview"),
	}
}

// GetPreview возвращает превью файла. Кэш инвалидируется изменением updatedAt.
func (s *Service) GetPreview(ctx context.Context, userID, id string) ([]byte, error) {
	rec, err := s.files.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if rec.Category() != domain.CategoryImage {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, rec.Type)
	}

	key := rec.ID + ":" + strconv.FormatInt(rec.UpdatedAt.UnixNano(), 10)
	if data, ok := s.cache.Get(key); ok {
		return data, nil
	}

	_, rc, err := s.files.OpenContent(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxSourceSize+1))
	if err != nil {
		return nil, &domain.StorageError{Op: "read", Name: rec.ID, Err: err}
	}
	if len(data) > maxSourceSize {
		return nil, fmt.Errorf("%w: image is larger than %d bytes", ErrUnsupported, maxSourceSize)
	}

	preview, err := s.resize(data, s.maxSize, s.quality)
	if err != nil {
		s.logger.Warn("failed to generate preview", zap.String("file_id", rec.ID), zap.Error(err))
		return nil, fmt.Errorf("failed to generate preview: %w", err)
	}

	s.cache.Add(key, preview)
	return preview, nil
}

func optimizeImage(data []byte, maxSize, quality int) ([]byte, error) {
	image := bimg.NewImage(data)

	// Получаем текущие размеры
	size, err := image.Size()
	if err != nil {
		return nil, fmt.Errorf("failed to get image size: %w", err)
	}

	// Вычисляем новые размеры с сохранением пропорций
	width, height := calculateNewDimensions(size.Width, size.Height, maxSize)

	processed, err := image.Process(bimg.Options{
		Width:   width,
		Height:  height,
		Quality: quality,
		Type:    bimg.JPEG,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process image: %w", err)
	}

	return processed, nil
}

// calculateNewDimensions вписывает изображение в квадрат maxSize, маленькие не увеличиваются
func calculateNewDimensions(width, height, maxSize int) (newWidth, newHeight int) {
	if width <= 0 || height <= 0 {
		return maxSize, maxSize
	}
	if width <= maxSize && height <= maxSize {
		return width, height
	}

	if width > height {
		newWidth = maxSize
		newHeight = (height * maxSize) / width
	} else {
		newHeight = maxSize
		newWidth = (width * maxSize) / height
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}
	return
}
