package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dgallion1/dochighlight/internal/config"
	"github.com/dgallion1/dochighlight/internal/layout"
	"github.com/dgallion1/dochighlight/internal/taxonomy"
	"github.com/dgallion1/dochighlight/internal/viewer"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// TaxonomySource provides the entity type catalogue.
type TaxonomySource interface {
	DataTypes(ctx context.Context) (*taxonomy.Index, error)
}

// Server is the HTTP API server for dochighlight.
type Server struct {
	router   chi.Router
	registry *viewer.Registry
	stats    *viewer.PassStats
	taxonomy TaxonomySource
	hub      *Hub
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server. tax may be nil.
func NewServer(reg *viewer.Registry, stats *viewer.PassStats, tax TaxonomySource, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		registry: reg,
		stats:    stats,
		taxonomy: tax,
		hub:      NewHub(log),
		log:      log,
		cfg:      cfg,
	}
	reg.OnEvict(func(id string) {
		log.Info("view evicted", "doc_id", id)
		s.hub.CloseDocument(id)
	})
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Hub returns the stream hub that views publish to.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Get("/api/stats/layout", s.handleLayoutStats)
		r.Get("/api/taxonomy/datatypes", s.handleDataTypes)

		r.Post("/api/documents", s.handleCreateDocument)
		r.Get("/api/documents", s.handleListDocuments)

		r.Route("/api/documents/{docID}", func(r chi.Router) {
			r.Get("/", s.handleGetDocument)
			r.Delete("/", s.handleDeleteDocument)
			r.Post("/render", s.handleRenderUntil)
			r.Post("/refresh", s.handleRefresh)
			r.Get("/report", s.handleReport)
			r.Get("/stream", s.handleStream)

			r.Route("/pages/{page}", func(r chi.Router) {
				r.Post("/render", s.handleRenderPage)
				r.Get("/shapes", s.handleShapes)
				r.Get("/overlay.png", s.handleOverlay)
				r.Get("/hit", s.handleHit)
			})

			r.Route("/spans/{spanID}", func(r chi.Router) {
				r.Get("/pages", s.handleSpanPages)
				r.Get("/order", s.handleSpanOrder)
				r.Get("/stroke", s.handleSpanStroke)
				r.Get("/snapshot.jpg", s.handleSnapshot)
				r.Post("/select", s.handleSelect)
				r.Delete("/select", s.handleUnselect)
				r.Post("/hover", s.handleHover)
				r.Delete("/hover", s.handleEndHover)
			})
			r.Get("/selection", s.handleSelection)
			r.Delete("/selection", s.handleClearSelection)
			r.Post("/range", s.handleRange)

			r.Get("/links", s.handleListLinks)
			r.Put("/links", s.handleAddLink)
			r.Delete("/links", s.handleRemoveLink)
			r.Get("/entities/{entityID}", s.handleEntity)
			r.Delete("/entities/{entityID}", s.handleRemoveEntity)
			r.Get("/entities/{entityID}/pages", s.handleEntityPages)

			r.Get("/markers", s.handleMarkers)
			r.Put("/overview", s.handleSetOverview)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// view resolves the {docID} URL parameter, writing a 404 when unknown.
func (s *Server) view(w http.ResponseWriter, r *http.Request) (*viewer.View, bool) {
	v, err := s.registry.Lookup(chi.URLParam(r, "docID"))
	if err != nil {
		writeViewError(w, err)
		return nil, false
	}
	return v, true
}

// pageParam parses the {page} URL parameter.
func pageParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	p, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || p < 1 {
		jsonError(w, "page must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return p, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeViewError maps viewer and layout errors to status codes.
func writeViewError(w http.ResponseWriter, err error) {
	var (
		nf    *viewer.NotFoundError
		input *layout.InputError
		dep   *viewer.RenderDependencyError
	)
	switch {
	case errors.As(err, &nf):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &input),
		errors.Is(err, viewer.ErrInvalidColor),
		errors.Is(err, viewer.ErrInvalidArgument):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, viewer.ErrSuperseded):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.As(err, &dep):
		jsonError(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}
