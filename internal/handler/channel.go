package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teamchat/internal/middleware"
	"github.com/teamchat/internal/service"
)

type ChannelHandler struct {
	svc *service.Service
}

func NewChannelHandler(svc *service.Service) *ChannelHandler {
	return &ChannelHandler{svc: svc}
}

func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListChannels(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "channels.get", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	id, err := h.svc.CreateChannel(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeServiceError(w, "channels.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (h *ChannelHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetChannel(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "channels.getById", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ChannelHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	id, err := h.svc.UpdateChannel(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeServiceError(w, "channels.update", err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}

func (h *ChannelHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.RemoveChannel(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "channels.remove", err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}
