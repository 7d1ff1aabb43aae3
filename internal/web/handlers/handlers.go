package handlers

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel/trace"

	"whatisyourcolor/internal/config"
	"whatisyourcolor/internal/observability"
	"whatisyourcolor/internal/services"
	"whatisyourcolor/internal/web/live"
)

type Handler struct {
	config    *config.Config
	container *services.Container
	hub       *live.Hub
	page      *template.Template

	// Observability
	logger      *observability.Logger
	tracer      trace.Tracer
	httpMetrics *observability.HTTPMetrics
}

// New creates the HTTP handler. hub can be nil, in which case /ws is not served.
func New(container *services.Container, hub *live.Hub, logger *observability.Logger) (*Handler, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	page, err := parsePage()
	if err != nil {
		return nil, err
	}

	// Metrics are optional; a failing meter only disables them
	httpMetrics, err := observability.NewHTTPMetrics(observability.GetMeter())
	if err != nil {
		logger.Warn(context.Background()).Err(err).Msg("Failed to create HTTP metrics")
		httpMetrics = nil
	}

	return &Handler{
		config:      container.Config(),
		container:   container,
		hub:         hub,
		page:        page,
		logger:      logger.Component("http"),
		tracer:      observability.GetTracer(),
		httpMetrics: httpMetrics,
	}, nil
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(h.logger))
	r.Use(middleware.Recoverer)
	if h.httpMetrics != nil {
		r.Use(observability.MetricsMiddleware(h.httpMetrics))
	}
	r.Use(observability.TracingMiddleware(h.tracer))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.config.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         int((12 * time.Hour).Seconds()),
	}))

	// Health checks
	r.Get("/healthz", h.healthzHandler)
	r.Get("/readyz", h.readyzHandler)

	// Web routes
	r.Get("/", h.indexHandler)
	if h.hub != nil {
		r.Get("/ws", h.hub.ServeWS)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/colors", func(r chi.Router) {
			r.With(RateLimitMiddleware(h.container.RateLimiter(), h.logger)).Post("/", h.submitHandler)
			r.Get("/{code}", h.describeHandler)
			r.Get("/{code}/card.png", h.cardHandler)
			r.Post("/{code}/share", h.shareHandler)
		})
		r.Get("/snapshot", h.snapshotHandler)
		r.Get("/mosaic", h.mosaicHandler)
	})

	return r
}
