package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"clouddrive/internal/middleware"
)

type Handlers struct {
	Files     *FileHandler
	Folders   *FolderHandler
	Favorites *FavoriteHandler
	Trash     *TrashHandler
	Health    *HealthHandler
}

// NewRouter собирает HTTP маршруты сервиса
func NewRouter(h Handlers, requestTimeout time.Duration, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Range"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length", "Content-Range", "Accept-Ranges"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if requestTimeout > 0 {
			r.Use(chimw.Timeout(requestTimeout))
		}

		r.Post("/upload", h.Files.Upload)
		r.Get("/download", h.Files.Download)
		r.Post("/download", h.Files.Download)

		r.Route("/files", func(r chi.Router) {
			r.Get("/", h.Files.List)
			r.Get("/search", h.Files.Search)
			r.Post("/move", h.Files.Move)
			r.Post("/delete", h.Files.Delete)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/content", h.Files.Content)
				r.Get("/content/{name}", h.Files.Content)
				r.Get("/preview", h.Files.Preview)
				r.Put("/rename", h.Files.Rename)
				r.Put("/tags", h.Files.UpdateTags)
			})
		})

		r.Post("/folders", h.Folders.CreateFolder)

		r.Route("/favorites", func(r chi.Router) {
			r.Get("/", h.Favorites.List)
			r.Post("/{fileId}", h.Favorites.Add)
			r.Delete("/{fileId}", h.Favorites.Remove)
		})

		r.Route("/trash", func(r chi.Router) {
			r.Get("/", h.Trash.GetTrashItems)
			r.Post("/{id}/restore", h.Trash.RestoreItem)
		})
	})

	return r
}
