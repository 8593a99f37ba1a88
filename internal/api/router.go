package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/talk2text/internal/api/handlers"
	"github.com/nikhilbhutani/talk2text/internal/api/middleware"
	"github.com/nikhilbhutani/talk2text/internal/config"
	"github.com/nikhilbhutani/talk2text/internal/history"
	"github.com/nikhilbhutani/talk2text/internal/identity"
	"github.com/nikhilbhutani/talk2text/internal/pipeline"
	"github.com/nikhilbhutani/talk2text/internal/staging"
)

// Deps are the collaborators built in main and shared by every request.
type Deps struct {
	Pipeline *pipeline.Pipeline
	History  *history.Service
	Staging  *staging.Area
	Policy   identity.Policy
	Verifier identity.Verifier

	// GoTrue is nil when no Supabase project is configured; the /auth routes are then absent.
	GoTrue *identity.GoTrue

	Checks  map[string]handlers.Check
	Metrics http.Handler
}

type Router struct {
	mux  *chi.Mux
	cfg  *config.Config
	deps Deps
	rl   *middleware.RateLimiter
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		cfg:  cfg,
		deps: deps,
		rl:   middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
	}
}

// Close stops the rate limiter's background cleanup.
func (rt *Router) Close() {
	rt.rl.Close()
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins))

	health := handlers.NewHealthHandler(rt.deps.Checks)
	r.Get("/", health.Root)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	if rt.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(rt.rl.Limit)
		r.Use(identity.NewMiddleware(rt.deps.Verifier).Resolve)

		transcribeH := handlers.NewTranscribeHandler(rt.deps.Pipeline, rt.deps.Policy, rt.deps.Staging, rt.cfg.Upload.MaxBytes)
		r.Post("/transcribe", transcribeH.Transcribe)

		historyH := handlers.NewHistoryHandler(rt.deps.History)
		r.Get("/transcriptions/{ownerId}", historyH.List)

		if rt.deps.GoTrue != nil {
			authH := handlers.NewAuthHandler(rt.deps.GoTrue)
			r.Route("/auth", func(r chi.Router) {
				r.Post("/signup", authH.SignUp)
				r.Post("/login", authH.Login)
				r.Post("/recover", authH.Recover)

				r.Group(func(r chi.Router) {
					r.Use(identity.Require)
					r.Post("/logout", authH.Logout)
					r.Put("/password", authH.UpdatePassword)
					r.Get("/user", authH.User)
				})
			})
		}
	})

	return r
}
