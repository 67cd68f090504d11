package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teamchat/internal/middleware"
	"github.com/teamchat/internal/service"
)

type MessageHandler struct {
	svc *service.Service
}

func NewMessageHandler(svc *service.Service) *MessageHandler {
	return &MessageHandler{svc: svc}
}

type createMessageRequest struct {
	Body            string  `json:"body"`
	Image           *string `json:"image,omitempty"`
	WorkspaceID     string  `json:"workspace_id"`
	ChannelID       *string `json:"channel_id,omitempty"`
	ConversationID  *string `json:"conversation_id,omitempty"`
	ParentMessageID *string `json:"parent_message_id,omitempty"`
}

type bodyRequest struct {
	Body string `json:"body"`
}

type reactionRequest struct {
	Value string `json:"value"`
}

// List — messages.get. Ровно один контейнер: channel_id, conversation_id или parent_message_id
// (для треда channel_id / conversation_id необязательны).
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	q := service.MessageQuery{
		ChannelID:       queryRef(r, "channel_id"),
		ConversationID:  queryRef(r, "conversation_id"),
		ParentMessageID: queryRef(r, "parent_message_id"),
		Cursor:          r.URL.Query().Get("cursor"),
		Limit:           queryInt(r, "limit", 0),
	}
	page, err := h.svc.GetMessages(r.Context(), middleware.GetUserID(r.Context()), q)
	if err != nil {
		writeServiceError(w, "messages.get", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	id, err := h.svc.CreateMessage(r.Context(), middleware.GetUserID(r.Context()), service.CreateMessageInput{
		Body:            req.Body,
		Image:           req.Image,
		WorkspaceID:     req.WorkspaceID,
		ChannelID:       req.ChannelID,
		ConversationID:  req.ConversationID,
		ParentMessageID: req.ParentMessageID,
	})
	if err != nil {
		writeServiceError(w, "messages.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetMessageByID(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "messages.getById", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MessageHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req bodyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	id, err := h.svc.UpdateMessage(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.Body)
	if err != nil {
		writeServiceError(w, "messages.update", err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}

func (h *MessageHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.RemoveMessage(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "messages.remove", err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}

func (h *MessageHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	var req reactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	id, err := h.svc.ToggleReaction(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.Value)
	if err != nil {
		writeServiceError(w, "reactions.toggle", err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}
