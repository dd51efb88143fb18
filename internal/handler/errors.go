package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"clouddrive/internal/auth"
	"clouddrive/internal/domain"
	"clouddrive/internal/preview"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// statusFor сопоставляет ошибку домена HTTP статусу
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrNoToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, preview.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// writeError отвечает JSON {success:false, error}. Текст внутренних ошибок наружу не отдаётся.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	code := statusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
		message = "internal server error"
	}
	writeJSON(w, code, errorResponse{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON читает тело запроса; ошибка разбора - ErrValidation
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
	}
	return nil
}
