package handler

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"clouddrive/internal/domain"
)

// Download собирает ZIP архив из папки или набора записей.
// GET: ?fileIds=a,b или ?folderId=x. POST: {fileIds, isFolder}, при isFolder первый id - папка.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	var (
		fileIDs  []string
		folderID *string
	)

	switch r.Method {
	case http.MethodPost:
		var req struct {
			FileIDs  []string `json:"fileIds"`
			IsFolder bool     `json:"isFolder"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.logger, err)
			return
		}
		fileIDs = req.FileIDs
		if req.IsFolder && len(fileIDs) > 0 {
			folderID = &fileIDs[0]
			fileIDs = fileIDs[1:]
		}
	default:
		q := r.URL.Query()
		fileIDs = splitIDs(q.Get("fileIds"))
		folderID = optionalID(q.Get("folderId"))
	}

	if folderID == nil && len(fileIDs) == 0 {
		writeError(w, h.logger, fmt.Errorf("%w: no file or folder ids provided", domain.ErrValidation))
		return
	}

	archive, err := h.archives.Build(r.Context(), userID, fileIDs, folderID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer func() {
		if err := archive.Close(); err != nil {
			h.logger.Warn("failed to remove temp archive", zap.Error(err))
		}
	}()

	f, err := archive.Open()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", contentDisposition(archive.FileName))
	w.Header().Set("Content-Length", strconv.FormatInt(archive.Size(), 10))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("failed to stream archive",
			zap.String("user_id", userID),
			zap.String("archive", archive.FileName),
			zap.Error(err),
		)
	}
}

// contentDisposition формирует attachment с ASCII именем и UTF-8 вариантом
func contentDisposition(name string) string {
	asciiName := strings.Map(func(r rune) rune {
		if r > 127 || r == '"' || r == '\\' || r < 32 {
			return '_'
		}
		return r
	}, name)
	encoded := strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, asciiName, encoded)
}
