package middleware

import (
	"fmt"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/teamchat/internal/logger"
)

// RequestLog логирует медленные (или, при LOG_LEVEL=debug, все) запросы: метод, шаблон маршрута chi,
// статус и время. Сырой путь не пишется: в нём id сущностей и ?token= websocket.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := routePattern(r)
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logger.LogDuration(fmt.Sprintf("http %s %s status=%d", r.Method, route, status), start)
	})
}
