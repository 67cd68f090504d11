package middleware

import (
	"net/http"
	"strings"
)

// MaskToken маскирует токен для логов: видны только первые 4 символа.
func MaskToken(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "***"
}

// RedactQueryToken маскирует ?token= в RequestURI, который печатает access log chi.
// r.URL не меняется, OptionalAuth по-прежнему читает токен из него.
func RedactQueryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := r.URL.Query().Get("token")
		if tok == "" {
			next.ServeHTTP(w, r)
			return
		}
		q := r.URL.Query()
		q.Set("token", MaskToken(tok))
		masked := *r.URL
		masked.RawQuery = q.Encode()
		r2 := r.WithContext(r.Context())
		r2.RequestURI = masked.RequestURI()
		next.ServeHTTP(w, r2)
	})
}
