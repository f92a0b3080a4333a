package audio

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voxlay/voxlay/internal/service/audiocache"
	"github.com/voxlay/voxlay/pkg/utils"
)

// Handler serves cached utterance audio by replay token.
type Handler struct {
	cache audiocache.Cache
}

// New creates the replay handler.
func New(cache audiocache.Cache) *Handler {
	return &Handler{cache: cache}
}

// RegisterRoutes mounts the replay endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/audio/{token}", h.handleReplay)
}

func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		utils.RespondError(w, http.StatusBadRequest, "token is required")
		return
	}

	data, err := h.cache.Get(r.Context(), token)
	if errors.Is(err, audiocache.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "audio not found or expired")
		return
	}
	if err != nil {
		log.Printf("[audio] cache read failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "audio retrieval failed")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(data); err != nil {
		log.Printf("[audio] response write failed: %v", err)
	}
}
