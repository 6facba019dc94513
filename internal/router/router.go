package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"mockmate-backend/internal/handlers"
	"mockmate-backend/internal/middleware"
	"mockmate-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	sessionHandler *handlers.SessionHandler,
	evaluationHandler *handlers.EvaluationHandler,
	mediaHandler *handlers.MediaHandler,
	resumeHandler *handlers.ResumeHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Get("/me", authHandler.Me)
			})
		})

		// ──── Resume Routes (public: guests parse a resume before creating a session) ────
		r.Route("/resumes", func(r chi.Router) {
			r.Post("/parse", resumeHandler.Parse)
		})

		// ──── Session Routes ────
		// Sessions are open to guests; the coordinator derives an owner id
		// from the resume or synthesizes one.
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Get("/", sessionHandler.List)
			r.Get("/active", sessionHandler.Active)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Post("/start", sessionHandler.Start)
				r.Post("/pause", sessionHandler.Pause)
				r.Post("/resume", sessionHandler.Resume)
				r.Post("/end", sessionHandler.End)
				r.Post("/responses", sessionHandler.Respond)
				r.Post("/clarifications", sessionHandler.Clarify)
				r.Post("/difficulty", sessionHandler.NoteDifficulty)

				// Evaluation & usage
				r.Get("/evaluation", evaluationHandler.Get)
				r.Post("/evaluation/regenerate", evaluationHandler.Regenerate)
				r.Get("/usage", evaluationHandler.Usage)

				// Media
				r.Post("/media", mediaHandler.Upload)
				r.Get("/media", mediaHandler.List)
				r.Post("/whiteboard/analyze", mediaHandler.AnalyzeWhiteboard)
			})
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
