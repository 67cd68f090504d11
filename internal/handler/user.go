package handler

import (
	"net/http"

	"github.com/teamchat/internal/middleware"
	"github.com/teamchat/internal/service"
)

type UserHandler struct {
	svc *service.Service
}

func NewUserHandler(svc *service.Service) *UserHandler {
	return &UserHandler{svc: svc}
}

// Me — users.current; анонимный запрос получает null.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.CurrentUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "users.current", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
