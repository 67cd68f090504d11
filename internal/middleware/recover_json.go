package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/metrics"
)

// errorBody — формат ошибки API, тот же, что отдают обработчики: {"error": "..."}.
type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorBody{Error: msg}); err != nil {
		logger.Errorf("middleware: write error body: %v", err)
	}
}

// routePattern — шаблон маршрута chi ("/api/messages/{id}"); "" до маршрутизации или без совпадения.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// RecoverJSON при панике в handler логирует её со стеком, учитывает в метриках и отдаёт
// JSON 500, если ответ ещё не начат. http.ErrAbortHandler пробрасывается дальше.
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			route := routePattern(r)
			metrics.Panicked(route)
			logger.Errorf("panic recovered %s %s: %v\n%s", r.Method, route, rec, debug.Stack())
			if ww.Status() == 0 {
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(ww, r)
	})
}
