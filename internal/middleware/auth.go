// Package middleware содержит HTTP middleware сервиса платного доступа.
package middleware

import (
	"crypto/hmac"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	// WebhookSecretHeader содержит secret_token вебхука.
	WebhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	// InitDataHeader содержит initData мини-приложения.
	InitDataHeader = "X-Telegram-Init-Data"

	authorizationScheme = "tma "
)

// ErrWebhookUnauthorized означает отсутствующий или неверный секрет вебхука.
var ErrWebhookUnauthorized = errors.New("webhook secret mismatch")

// WebhookSecret отклоняет вызовы вебхука с неверным секретом до чтения тела запроса.
// При пустом секрете проверка отключена.
func WebhookSecret(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}

		expected := []byte(secret)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := []byte(r.Header.Get(WebhookSecretHeader))
			if !hmac.Equal(provided, expected) {
				if logger != nil {
					logger.Warn("reject webhook", zap.Error(ErrWebhookUnauthorized), zap.String("remote", r.RemoteAddr))
				}
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// InitDataFromRequest извлекает initData из заголовка X-Telegram-Init-Data
// или из Authorization со схемой "tma".
func InitDataFromRequest(r *http.Request) string {
	if v := r.Header.Get(InitDataHeader); v != "" {
		return v
	}

	auth := r.Header.Get("Authorization")
	if len(auth) > len(authorizationScheme) && strings.EqualFold(auth[:len(authorizationScheme)], authorizationScheme) {
		return strings.TrimSpace(auth[len(authorizationScheme):])
	}

	return ""
}
