package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"clouddrive/internal/service"
)

type TrashHandler struct {
	trashService *service.TrashService
	users        UserResolver
	logger       *zap.Logger
}

func NewTrashHandler(trashService *service.TrashService, users UserResolver, logger *zap.Logger) *TrashHandler {
	return &TrashHandler{
		trashService: trashService,
		users:        users,
		logger:       logger.Named("trash_handler"),
	}
}

// GetTrashItems обрабатывает запрос на получение содержимого корзины
func (h *TrashHandler) GetTrashItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	items, err := h.trashService.GetTrashItems(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, views(items))
}

// RestoreItem обрабатывает запрос на восстановление элемента из корзины
func (h *TrashHandler) RestoreItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	item, err := h.trashService.RestoreFromTrash(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, item.View())
}
