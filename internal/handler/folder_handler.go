package handler

import (
	"net/http"

	"go.uber.org/zap"

	"clouddrive/internal/service"
)

type FolderHandler struct {
	files  *service.FileService
	users  UserResolver
	logger *zap.Logger
}

func NewFolderHandler(files *service.FileService, users UserResolver, logger *zap.Logger) *FolderHandler {
	return &FolderHandler{
		files:  files,
		users:  users,
		logger: logger.Named("folder_handler"),
	}
}

// CreateFolder создаёт папку {name, parentId}. Занятое имя - 409.
func (h *FolderHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	var req struct {
		Name     string  `json:"name"`
		ParentID *string `json:"parentId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var parentID *string
	if req.ParentID != nil {
		parentID = optionalID(*req.ParentID)
	}

	folder, err := h.files.CreateFolder(r.Context(), userID, req.Name, parentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, folder.View())
}
