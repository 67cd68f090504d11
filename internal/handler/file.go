package handler

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/teamchat/internal/fileserver"
	"github.com/teamchat/internal/middleware"
	"github.com/teamchat/internal/service"
)

type FileHandler struct {
	svc   *service.Service
	local *fileserver.Local
}

// NewFileHandler: local == nil означает S3-бэкенд — клиенты грузят и читают файлы по presigned URL напрямую.
func NewFileHandler(svc *service.Service, local *fileserver.Local) *FileHandler {
	return &FileHandler{svc: svc, local: local}
}

func (h *FileHandler) UploadURL(w http.ResponseWriter, r *http.Request) {
	target, err := h.svc.GenerateUploadURL(r.Context(), middleware.GetUserID(r.Context()))
	if errors.Is(err, service.ErrUploadsDisabled) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeServiceError(w, "upload.generateUploadUrl", err)
		return
	}
	writeJSON(w, http.StatusOK, target)
}

func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.local == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.local.Upload(w, r)
}

func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if h.local == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.local.Serve(w, r, filepath.Base(chi.URLParam(r, "filename")))
}
