package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teamchat/internal/middleware"
	"github.com/teamchat/internal/service"
)

type WorkspaceHandler struct {
	svc *service.Service
}

func NewWorkspaceHandler(svc *service.Service) *WorkspaceHandler {
	return &WorkspaceHandler{svc: svc}
}

type nameRequest struct {
	Name string `json:"name"`
}

type joinRequest struct {
	JoinCode string `json:"join_code"`
}

func (h *WorkspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListWorkspaces(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "workspaces.get", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	id, err := h.svc.CreateWorkspace(r.Context(), middleware.GetUserID(r.Context()), req.Name)
	if err != nil {
		writeServiceError(w, "workspaces.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws, err := h.svc.GetWorkspace(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "workspaces.getById", err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *WorkspaceHandler) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.GetWorkspaceInfo(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "workspaces.getInfoById", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *WorkspaceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	id, err := h.svc.UpdateWorkspace(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeServiceError(w, "workspaces.update", err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}

func (h *WorkspaceHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.RemoveWorkspace(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "workspaces.remove", err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}

func (h *WorkspaceHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	id, err := h.svc.JoinWorkspace(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.JoinCode)
	if err != nil {
		writeServiceError(w, "workspaces.join", err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}

func (h *WorkspaceHandler) NewJoinCode(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.NewJoinCode(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "workspaces.newJoinCode", err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}
