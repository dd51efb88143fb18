package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"clouddrive/internal/auth"
	"clouddrive/internal/config"
	"clouddrive/internal/handler"
	"clouddrive/internal/preview"
	"clouddrive/internal/repository"
	"clouddrive/internal/service"
	"clouddrive/internal/storage"
)

const defaultConfigPath = "config.yaml"

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	// Загружаем конфигурацию
	appConfig, err := config.NewConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := config.NewLogger(appConfig.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(appConfig, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(appConfig *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Подключаемся к базе данных и применяем миграции
	db, err := repository.Connect(ctx, appConfig.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.Migrate(appConfig.Database, logger); err != nil {
		return err
	}

	blobs, err := newBlobStore(ctx, appConfig, logger)
	if err != nil {
		return err
	}

	// Инициализация репозиториев
	fileRepo := repository.NewFileRepository(db)
	trashRepo := repository.NewTrashRepository(db)
	favoriteRepo := repository.NewFavoriteRepository(db)

	// Инициализация сервисов
	fileService := service.NewFileService(fileRepo, blobs, logger)
	materializer := service.NewFolderMaterializer(fileRepo, blobs, logger)
	ingestor := service.NewUploadIngestor(fileRepo, blobs, materializer, logger)
	archives, err := service.NewArchiveBuilder(fileRepo, blobs, appConfig.Archive,
		filepath.Join(appConfig.Storage.BlobDir, storage.TempDir), logger)
	if err != nil {
		return fmt.Errorf("failed to create archive builder: %w", err)
	}
	favoriteService := service.NewFavoriteService(favoriteRepo, fileRepo)
	trashService := service.NewTrashService(trashRepo, logger)
	previewService := preview.NewService(fileService, appConfig.Preview, logger)

	verifier := auth.NewVerifier(appConfig.Auth.JWTSecret, appConfig.Auth.Issuer)

	// Инициализация хендлеров
	fileHandler := handler.NewFileHandler(fileService, ingestor, archives, previewService, verifier,
		appConfig.Server.MaxUploadBytes, logger)
	router := handler.NewRouter(handler.Handlers{
		Files:     fileHandler,
		Folders:   handler.NewFolderHandler(fileService, verifier, logger),
		Favorites: handler.NewFavoriteHandler(favoriteService, verifier, logger),
		Trash:     handler.NewTrashHandler(trashService, verifier, logger),
		Health:    handler.NewHealthHandler(db, logger),
	}, appConfig.Server.RequestTimeout, logger)

	httpServer := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC сервер отдаёт только стандартный health сервис
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	errCh := make(chan error, 2)

	// Запускаем gRPC сервер
	go func() {
		lis, err := net.Listen("tcp", ":"+appConfig.Server.GRPCPort)
		if err != nil {
			errCh <- fmt.Errorf("failed to listen for gRPC: %w", err)
			return
		}
		logger.Info("starting gRPC server", zap.String("port", appConfig.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("failed to serve gRPC: %w", err)
		}
	}()

	// Запускаем HTTP сервер
	go func() {
		logger.Info("starting HTTP server", zap.String("port", appConfig.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}()

	// Запускаем очистку временных архивов
	go runArchiveJanitor(ctx, archives, appConfig.Archive, logger)

	// Ожидаем сигнал завершения
	select {
	case <-ctx.Done():
		logger.Info("shutting down servers")
	case err := <-errCh:
		return err
	}

	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("server exited properly")
	return nil
}

func newBlobStore(ctx context.Context, appConfig *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch appConfig.Storage.Backend {
	case "s3":
		return storage.NewS3Store(ctx, appConfig.S3, logger)
	default:
		return storage.NewFileStore(appConfig.Storage.BlobDir, logger)
	}
}

// runArchiveJanitor удаляет архивы, которые не были закрыты обработчиком
func runArchiveJanitor(ctx context.Context, archives *service.ArchiveBuilder, cfg config.ArchiveConfig, logger *zap.Logger) {
	if cfg.CleanupInterval <= 0 {
		return
	}

	cleanupTicker := time.NewTicker(cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-cleanupTicker.C:
			if _, err := archives.CleanupStale(cfg.TempMaxAge); err != nil {
				logger.Warn("error during temp archive cleanup", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
