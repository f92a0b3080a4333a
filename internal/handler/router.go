package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	audioHandler "github.com/voxlay/voxlay/internal/handler/audio"
	personalityHandler "github.com/voxlay/voxlay/internal/handler/personality"
	voiceHandler "github.com/voxlay/voxlay/internal/handler/voice"
	middlewarePkg "github.com/voxlay/voxlay/internal/middleware"
	personalityModel "github.com/voxlay/voxlay/internal/model/personality"
	"github.com/voxlay/voxlay/internal/service/audiocache"
	"github.com/voxlay/voxlay/internal/service/relay"
	"github.com/voxlay/voxlay/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(orch *relay.Orchestrator, resolver personalityModel.Resolver, cache audiocache.Cache) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		personalityHandler.New(resolver).RegisterRoutes(api)

		if cache != nil {
			audioHandler.New(cache).RegisterRoutes(api)
		}

		if orch != nil {
			voiceHandler.New(orch).RegisterRoutes(api)
		} else {
			api.Get("/voice/ws/{sessionID}", func(w http.ResponseWriter, _ *http.Request) {
				utils.RespondError(w, http.StatusServiceUnavailable, "voice relay unavailable")
			})
		}
	})

	return r
}
