package middleware

import (
	"context"

	"github.com/teamchat/internal/model"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	PrincipalKey contextKey = "principal"
)

// GetUserID возвращает user_id из контекста (устанавливается OptionalAuth). Пустая строка — анонимный запрос.
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// GetPrincipal возвращает профиль из токена; для анонимного запроса — нулевое значение.
func GetPrincipal(ctx context.Context) model.Principal {
	v, _ := ctx.Value(PrincipalKey).(model.Principal)
	return v
}

// WithPrincipal кладёт вызывающего пользователя в контекст.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	ctx = context.WithValue(ctx, PrincipalKey, p)
	return context.WithValue(ctx, UserIDKey, p.UserID)
}
