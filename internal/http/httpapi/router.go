package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"studio/internal/http/handlers"
	"studio/internal/middleware"
)

// NewRouter wires the chi router with the shared middleware chain.
func NewRouter(app *handlers.App, lookup middleware.CountryLookup) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP, chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(app.Logger))
	r.Use(middleware.CORS(app.Config.AllowedOrigins))
	r.Use(middleware.Locale("en", lookup))
	r.Use(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute))

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/styles", app.Styles)

	r.Route("/v1/images", func(r chi.Router) {
		r.Post("/generate", app.ImagesGenerate)
		r.Post("/enhance", app.ImagesEnhance)
	})

	r.Route("/v1/batches", func(r chi.Router) {
		r.Post("/", app.BatchStart)
		r.Get("/{run_id}", app.BatchStatus)
		r.Get("/{run_id}/download", app.BatchDownload)
	})

	r.Route("/v1/credentials", func(r chi.Router) {
		r.Post("/", app.CredentialSave)
		r.Delete("/", app.CredentialClear)
		r.Get("/status", app.CredentialStatus)
	})

	return r
}
