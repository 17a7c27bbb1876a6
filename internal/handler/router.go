package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/oceanmonitor/dashboard/internal/handler/chat"
	"github.com/oceanmonitor/dashboard/internal/handler/data"
	"github.com/oceanmonitor/dashboard/internal/handler/identify"
	"github.com/oceanmonitor/dashboard/internal/handler/predict"
	"github.com/oceanmonitor/dashboard/internal/handler/session"
	"github.com/oceanmonitor/dashboard/internal/handler/sessionctx"
	"github.com/oceanmonitor/dashboard/internal/handler/users"
	middlewarePkg "github.com/oceanmonitor/dashboard/internal/middleware"
	sessionService "github.com/oceanmonitor/dashboard/internal/service/session"
	"github.com/oceanmonitor/dashboard/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(allowedOrigin string, sessions *sessionService.Service, video data.VideoSource) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigin))

	// Create handlers
	sessionHandler := session.New(sessions)
	chatHandler := chat.New(allowedOrigin)
	identifyHandler := identify.New()
	predictHandler := predict.New()
	usersHandler := users.New()
	dataHandler := data.New(video)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		dataHandler.RegisterVideoRoutes(api)

		api.Route("/sessions", func(sr chi.Router) {
			sessionHandler.RegisterRoutes(sr)

			sr.Route("/{"+sessionctx.Param+"}", func(s chi.Router) {
				s.Use(sessionctx.Middleware(sessions))

				sessionHandler.RegisterSessionRoutes(s)
				chatHandler.RegisterRoutes(s)
				identifyHandler.RegisterRoutes(s)
				predictHandler.RegisterRoutes(s)
				usersHandler.RegisterRoutes(s)
				dataHandler.RegisterRoutes(s)
			})
		})
	})

	return r
}
