package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"clouddrive/internal/domain"
	"clouddrive/internal/service"
)

// maxMemory - часть multipart формы, которая держится в памяти; остальное уходит во временные файлы
const maxMemory = 32 << 20

type uploadFailure struct {
	Error        bool   `json:"error"`
	Name         string `json:"name"`
	ErrorMessage string `json:"errorMessage"`
}

type uploadResponse struct {
	Success         bool                   `json:"success"`
	FilesProcessed  int                    `json:"filesProcessed"`
	FilesSuccessful int                    `json:"filesSuccessful"`
	Files           []interface{}          `json:"files"`
	File            *domain.FileRecordView `json:"file,omitempty"`
	Error           string                 `json:"error,omitempty"`
}

// Upload принимает multipart форму с одним или несколькими файлами.
// Частичный успех отвечает 200, полный провал - 500 с результатами по файлам.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		if isBodyTooLarge(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error: fmt.Sprintf("request body exceeds %d bytes", h.maxUploadBytes),
			})
			return
		}
		writeError(w, h.logger, fmt.Errorf("%w: invalid multipart form: %v", domain.ErrValidation, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		files = append(files, service.UploadFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}

	tags := r.FormValue("withTags")
	if tags == "" {
		tags = r.FormValue("tags")
	}

	opts := service.UploadOptions{
		TargetFolderID:    optionalID(r.FormValue("folderId")),
		IsDirectoryUpload: r.FormValue("isFolderUpload") == "true",
		Tags:              domain.ParseTags(tags),
	}
	if opts.IsDirectoryUpload {
		opts.RelativePaths = make([]string, len(files))
		for i := range files {
			opts.RelativePaths[i] = r.FormValue(fmt.Sprintf("path_%d", i))
		}
	}

	result, err := h.ingestor.Ingest(r.Context(), userID, files, opts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := uploadResponse{
		Success:         !result.Failed(),
		FilesProcessed:  result.TotalRequested,
		FilesSuccessful: result.TotalSucceeded,
		Files:           make([]interface{}, 0, len(result.Results)),
	}
	for _, res := range result.Results {
		if res.Err != nil {
			resp.Files = append(resp.Files, uploadFailure{
				Error:        true,
				Name:         res.Name,
				ErrorMessage: publicMessage(res.Err),
			})
			continue
		}
		view := res.Record.View()
		resp.Files = append(resp.Files, view)
		if resp.File == nil {
			resp.File = &view
		}
	}

	if result.Failed() {
		resp.Error = publicMessage(result.FirstError())
		h.logger.Error("all files failed to upload",
			zap.String("user_id", userID),
			zap.Int("requested", result.TotalRequested),
			zap.Error(result.FirstError()),
		)
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// isBodyTooLarge распознаёт срабатывание MaxBytesReader, в том числе обёрнутое multipart парсером
func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large")
}

// publicMessage скрывает подробности ошибок хранилища
func publicMessage(err error) string {
	if err == nil {
		return ""
	}
	if statusFor(err) == http.StatusInternalServerError {
		return "failed to store file"
	}
	return err.Error()
}
