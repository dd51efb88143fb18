package handler

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"clouddrive/internal/domain"
	"clouddrive/internal/repository"
	"clouddrive/internal/service"
)

// Previewer строит превью файла. Реализуется preview.Service.
type Previewer interface {
	GetPreview(ctx context.Context, userID, id string) ([]byte, error)
}

type FileHandler struct {
	files          *service.FileService
	ingestor       *service.UploadIngestor
	archives       *service.ArchiveBuilder
	previews       Previewer
	users          UserResolver
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewFileHandler(
	files *service.FileService,
	ingestor *service.UploadIngestor,
	archives *service.ArchiveBuilder,
	previews Previewer,
	users UserResolver,
	maxUploadBytes int64,
	logger *zap.Logger,
) *FileHandler {
	return &FileHandler{
		files:          files,
		ingestor:       ingestor,
		archives:       archives,
		previews:       previews,
		users:          users,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.Named("file_handler"),
	}
}

// List возвращает содержимое папки parentId или корня
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	content, err := h.files.List(r.Context(), userID, optionalID(r.URL.Query().Get("parentId")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

// Search ищет по имени, тегам, категории и типу записи
func (h *FileHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	q := r.URL.Query()
	query := service.SearchQuery{
		SearchParams: repository.SearchParams{
			Query: q.Get("q"),
			Tags:  domain.ParseTags(q.Get("tags")),
		},
		Category: domain.Category(q.Get("category")),
	}

	if query.Category != "" && !query.Category.Valid() {
		writeError(w, h.logger, fmt.Errorf("%w: unknown category %q", domain.ErrValidation, query.Category))
		return
	}

	if v := q.Get("isFolder"); v != "" {
		isFolder, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, h.logger, fmt.Errorf("%w: invalid isFolder %q", domain.ErrValidation, v))
			return
		}
		query.IsFolder = &isFolder
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, h.logger, fmt.Errorf("%w: invalid limit %q", domain.ErrValidation, v))
			return
		}
		query.Limit = limit
	}

	records, err := h.files.Search(r.Context(), userID, query)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, views(records))
}

// Rename меняет имя записи и, если переданы, теги
func (h *FileHandler) Rename(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	var req struct {
		Name string   `json:"name"`
		Tags []string `json:"tags"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	rec, err := h.files.Rename(r.Context(), userID, chi.URLParam(r, "id"), req.Name, req.Tags)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec.View())
}

func (h *FileHandler) UpdateTags(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	var req struct {
		Tags []string `json:"tags"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	rec, err := h.files.UpdateTags(r.Context(), userID, chi.URLParam(r, "id"), req.Tags)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec.View())
}

// Move переносит записи в папку targetId (null - корень)
func (h *FileHandler) Move(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	var req struct {
		IDs      []string `json:"ids"`
		TargetID *string  `json:"targetId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var target *string
	if req.TargetID != nil {
		target = optionalID(*req.TargetID)
	}

	moved, err := h.files.Move(r.Context(), userID, req.IDs, target)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, views(moved))
}

// Delete переносит записи и их потомков в корзину
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	count, err := h.files.Delete(r.Context(), userID, req.IDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"deleted": count,
	})
}

// Content отдаёт исходный блоб файла. Поддерживает Range, если хранилище отдаёт io.ReadSeeker.
func (h *FileHandler) Content(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	rec, rc, err := h.files.OpenContent(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer rc.Close()

	contentType := rec.Type
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": rec.Name}))

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, rec.Name, rec.UpdatedAt, rs)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream content", zap.String("file_id", rec.ID), zap.Error(err))
	}
}

// Preview отдаёт JPEG превью изображения
func (h *FileHandler) Preview(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	data, err := h.previews.GetPreview(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func views(records []domain.FileRecord) []domain.FileRecordView {
	out := make([]domain.FileRecordView, 0, len(records))
	for i := range records {
		out = append(out, records[i].View())
	}
	return out
}
