package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"clouddrive/internal/service"
)

type FavoriteHandler struct {
	favorites *service.FavoriteService
	users     UserResolver
	logger    *zap.Logger
}

func NewFavoriteHandler(favorites *service.FavoriteService, users UserResolver, logger *zap.Logger) *FavoriteHandler {
	return &FavoriteHandler{
		favorites: favorites,
		users:     users,
		logger:    logger.Named("favorite_handler"),
	}
}

func (h *FavoriteHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	records, err := h.favorites.List(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, views(records))
}

// Add идемпотентен: повторная отметка не ошибка
func (h *FavoriteHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	if err := h.favorites.Add(r.Context(), userID, chi.URLParam(r, "fileId")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FavoriteHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	if err := h.favorites.Remove(r.Context(), userID, chi.URLParam(r, "fileId")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
