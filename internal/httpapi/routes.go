package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/lobby-sync/internal/hub"
	"github.com/DoyleJ11/lobby-sync/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Options struct {
	DefaultCapacity int
	MaxCapacity     int
	WS              ws.Options
}

func SetupRoutes(h *hub.Hub, log *zap.Logger, opts Options) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.DefaultCapacity <= 0 {
		opts.DefaultCapacity = 4
	}
	if opts.MaxCapacity < opts.DefaultCapacity {
		opts.MaxCapacity = opts.DefaultCapacity
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, log, opts.WS))

	r.Route("/lobbies", func(r chi.Router) {
		r.Post("/", CreateLobby(h, log, opts))
		r.Get("/", ListLobbies(h))

		// Host-only changes carry the X-Host-Token header.
		r.Get("/{code}", GetLobby(h))
		r.Patch("/{code}", PatchLobby(h))
		r.Delete("/{code}", DeleteLobby(h))
	})
	return r
}
