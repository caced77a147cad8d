package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/trektide/apiserver/internal/images"
	"github.com/trektide/apiserver/internal/services"
)

// MediaHandler streams stored images back to clients.
type MediaHandler struct {
	media *services.MediaService
}

// NewMediaHandler constructs a MediaHandler.
func NewMediaHandler(media *services.MediaService) *MediaHandler {
	return &MediaHandler{media: media}
}

// ServeImage streams the object at the wildcard key. Keys are confined to
// the image prefix, so no traversal outside it is possible.
func (h *MediaHandler) ServeImage(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" || strings.Contains(key, "..") {
		writeError(w, http.StatusBadRequest, "invalid image key")
		return
	}

	object, err := h.media.Open(r.Context(), "img/"+key)
	if err != nil {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", images.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	// MinIO opens objects lazily, so a missing key can surface here.
	_, _ = io.Copy(w, object)
}
