package handler

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// UserResolver определяет пользователя запроса. Реализуется auth.Verifier.
type UserResolver interface {
	VerifyToken(r *http.Request) (string, error)
}

// currentUser возвращает id пользователя или отвечает 401
func currentUser(w http.ResponseWriter, r *http.Request, users UserResolver, logger *zap.Logger) (string, bool) {
	userID, err := users.VerifyToken(r)
	if err != nil {
		logger.Debug("authorization failed", zap.Error(err))
		writeError(w, logger, err)
		return "", false
	}
	return userID, true
}

// splitIDs разбирает список id, разделённых запятыми
func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// optionalID превращает пустую строку в nil (корень)
func optionalID(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" || s == "root" {
		return nil
	}
	return &s
}
