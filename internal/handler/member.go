package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teamchat/internal/middleware"
	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/service"
)

type MemberHandler struct {
	svc *service.Service
}

func NewMemberHandler(svc *service.Service) *MemberHandler {
	return &MemberHandler{svc: svc}
}

type roleRequest struct {
	Role model.Role `json:"role"`
}

type createConversationRequest struct {
	MemberID string `json:"member_id"`
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListMembers(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "members.get", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *MemberHandler) Current(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.CurrentMember(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "members.current", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetMember(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "members.getById", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	id, err := h.svc.UpdateMemberRole(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		writeServiceError(w, "members.update", err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}

func (h *MemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.RemoveMember(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "members.remove", err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}

// CreateConversation — conversations.createOrGet: одна и та же пара участников всегда даёт одну переписку.
func (h *MemberHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	id, err := h.svc.CreateOrGetConversation(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.MemberID)
	if err != nil {
		writeServiceError(w, "conversations.createOrGet", err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}
