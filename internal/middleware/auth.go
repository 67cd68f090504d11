package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/teamchat/internal/auth"
	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/model"
)

// TokenVerifier проверяет bearer-токен провайдера авторизации.
type TokenVerifier interface {
	Verify(token string) (model.Principal, error)
}

// UserSyncer сохраняет локальную копию профиля из токена.
type UserSyncer interface {
	SyncUser(ctx context.Context, p model.Principal) error
}

const syncTimeout = 3 * time.Second

// OptionalAuth извлекает вызывающего из Authorization: Bearer или из ?token= (websocket upgrade).
// Без токена или с неверным токеном запрос идёт дальше анонимным: запросы ответят пустым
// результатом, мутации вернут 401.
// Профиль синхронизируется в users на каждом запросе, SyncUser пропускает неизменённые.
func OptionalAuth(v TokenVerifier, users UserSyncer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if errors.Is(err, auth.ErrNoToken) {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := v.Verify(token)
			if err != nil {
				logger.Debugf("auth: rejected token path=%s: %v", r.URL.Path, err)
				next.ServeHTTP(w, r)
				return
			}
			if users != nil {
				ctx, cancel := context.WithTimeout(r.Context(), syncTimeout)
				if err := users.SyncUser(ctx, p); err != nil {
					logger.Errorf("auth: sync user=%s: %v", p.UserID, err)
				}
				cancel()
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAuth отклоняет анонимные запросы (используется для /ws).
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "unauthorized")
}
