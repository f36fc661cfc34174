package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/MrEthical07/docportal"
	"github.com/MrEthical07/docportal/catalog"
	"github.com/MrEthical07/docportal/middleware"
)

// Options wires the HTTP adapter to the portal components.
type Options struct {
	Store   *docportal.Store
	Gate    *docportal.Gate
	Catalog catalog.Repository
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger

	// AllowedOrigins enables CORS for browser clients on other origins. It
	// also bounds which origins may open the session stream.
	AllowedOrigins []string
	// StreamWriteTimeout bounds a single websocket write.
	StreamWriteTimeout time.Duration
}

// Handler is the HTTP adapter entrypoint.
type Handler struct {
	store    *docportal.Store
	gate     *docportal.Gate
	catalog  catalog.Repository
	metrics  http.Handler
	logger   *slog.Logger
	origins  []string
	upgrader websocket.Upgrader
	wsWrite  time.Duration
}

// NewHandler validates opts and builds a Handler. A nil Gate is derived from
// the Store.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Store == nil {
		return nil, errors.New("httpapi: Store is required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("httpapi: Catalog is required")
	}
	gate := opts.Gate
	if gate == nil {
		gate = docportal.NewGate(opts.Store)
	}
	wsWrite := opts.StreamWriteTimeout
	if wsWrite <= 0 {
		wsWrite = 10 * time.Second
	}

	h := &Handler{
		store:   opts.Store,
		gate:    gate,
		catalog: opts.Catalog,
		metrics: opts.Metrics,
		logger:  scopedLogger(opts.Logger),
		origins: append([]string(nil), opts.AllowedOrigins...),
		wsWrite: wsWrite,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(h.origins) > 0 {
		h.upgrader.CheckOrigin = h.checkOrigin
	}
	return h, nil
}

// Router registers every route and the middleware stack.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)
	if len(h.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", RequestIDHeader},
			ExposedHeaders:   []string{RequestIDHeader, "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", h.healthz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.session)
			r.Get("/stream", h.sessionStream)
			r.Post("/recheck", h.recheck)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.login)
			r.Post("/logout", h.logout)
			r.Post("/signup", h.signup)
		})

		r.Get("/periods", h.listPeriods)
		r.Get("/periods/{periodID}", h.getPeriod)
		r.Get("/periods/{periodID}/events", h.periodEvents)
		r.Get("/events/{eventID}", h.getEvent)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(h.gate))

			r.Get("/stats", h.stats)
			r.Get("/activity", h.activity)

			r.Get("/periods", h.listPeriods)
			r.Post("/periods", h.createPeriod)
			r.Put("/periods/{periodID}", h.updatePeriod)
			r.Delete("/periods/{periodID}", h.deletePeriod)

			r.Get("/events", h.listEvents)
			r.Post("/events", h.createEvent)
			r.Put("/events/{eventID}", h.updateEvent)
			r.Delete("/events/{eventID}", h.deleteEvent)

			r.Get("/links", h.listLinks)
			r.Post("/links", h.createLink)
			r.Put("/links/{linkID}", h.updateLink)
			r.Delete("/links/{linkID}", h.deleteLink)
		})
	})

	return r
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	writeSuccess(w, http.StatusOK, map[string]any{
		"service": "docportal",
		"session": snap.Status,
	})
}
