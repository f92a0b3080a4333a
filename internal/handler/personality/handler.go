package personality

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	personalitymodel "github.com/voxlay/voxlay/internal/model/personality"
	"github.com/voxlay/voxlay/pkg/utils"
)

// Handler exposes the personality table to clients.
type Handler struct {
	resolver personalitymodel.Resolver
}

// New creates the personality handler.
func New(resolver personalitymodel.Resolver) *Handler {
	return &Handler{resolver: resolver}
}

// RegisterRoutes mounts the personality endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personalities", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.resolver.List())
}
