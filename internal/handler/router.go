package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teamchat/internal/fileserver"
	"github.com/teamchat/internal/middleware"
	"github.com/teamchat/internal/service"
	"github.com/teamchat/internal/ws"
)

// RouterDeps — всё, что нужно HTTP-слою. LocalFiles nil при S3-бэкенде, Limiter nil отключает лимиты,
// Hub nil отключает /ws.
type RouterDeps struct {
	Service        *service.Service
	Verifier       middleware.TokenVerifier
	Hub            *ws.Hub
	LocalFiles     *fileserver.Local
	Limiter        *middleware.RateLimiter
	AllowedOrigins []string
	AccessLog      bool
}

// NewRouter собирает chi-роутер API со всеми middleware.
func NewRouter(d RouterDeps) http.Handler {
	wsH := NewWSHandler(d.Hub, d.AllowedOrigins)
	workspaceH := NewWorkspaceHandler(d.Service)
	channelH := NewChannelHandler(d.Service)
	memberH := NewMemberHandler(d.Service)
	messageH := NewMessageHandler(d.Service)
	userH := NewUserHandler(d.Service)
	fileH := NewFileHandler(d.Service, d.LocalFiles)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	if d.AccessLog {
		r.Use(middleware.RedactQueryToken, chimw.Logger)
	}
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		compress := chimw.Compress(5)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			compress.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.Metrics)
	r.Use(middleware.SecureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(d.Verifier, d.Service))
		if d.Limiter != nil {
			r.Use(d.Limiter.Handler)
		}

		r.Get("/api/users/me", userH.Me)

		r.Get("/api/workspaces", workspaceH.List)
		r.Post("/api/workspaces", workspaceH.Create)
		r.Route("/api/workspaces/{id}", func(r chi.Router) {
			r.Get("/", workspaceH.Get)
			r.Put("/", workspaceH.Update)
			r.Delete("/", workspaceH.Remove)
			r.Get("/info", workspaceH.Info)
			r.Post("/join", workspaceH.Join)
			r.Post("/join-code", workspaceH.NewJoinCode)
			r.Get("/channels", channelH.List)
			r.Post("/channels", channelH.Create)
			r.Get("/members", memberH.List)
			r.Get("/members/me", memberH.Current)
			r.Post("/conversations", memberH.CreateConversation)
		})

		r.Get("/api/channels/{id}", channelH.Get)
		r.Put("/api/channels/{id}", channelH.Update)
		r.Delete("/api/channels/{id}", channelH.Remove)

		r.Get("/api/members/{id}", memberH.Get)
		r.Put("/api/members/{id}", memberH.Update)
		r.Delete("/api/members/{id}", memberH.Remove)

		r.Get("/api/messages", messageH.List)
		r.Post("/api/messages", messageH.Create)
		r.Get("/api/messages/{id}", messageH.Get)
		r.Put("/api/messages/{id}", messageH.Update)
		r.Delete("/api/messages/{id}", messageH.Remove)
		r.Post("/api/messages/{id}/reactions", messageH.ToggleReaction)

		r.Post("/api/files/upload-url", fileH.UploadURL)

		if d.Hub != nil {
			r.With(middleware.RequireAuth).Get("/ws", wsH.ServeWS)
		}
	})

	// Загрузка и чтение локальных файлов авторизуются подписанным токеном и непредсказуемым id, не bearer-токеном.
	r.Post("/api/files/upload", fileH.Upload)
	r.Get("/api/files/{filename}", fileH.Serve)

	return r
}
