// Package server wires the schema store, compiler, sqlgen dialects and
// backend connections into an HTTP API, using the same chi router plus
// CORS middleware shape the reference toolbox builds its own API
// surface from.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tesseract-olap/tesseract/internal/backend"
	"github.com/tesseract-olap/tesseract/internal/cache"
	"github.com/tesseract-olap/tesseract/internal/geoservice"
	"github.com/tesseract-olap/tesseract/internal/log"
	"github.com/tesseract-olap/tesseract/internal/logiclayer"
	"github.com/tesseract-olap/tesseract/internal/schema"
)

// Server holds the resources every request handler needs.
type Server struct {
	Schema     *schema.Store
	Cache      *cache.Store
	Backend    backend.Backend
	Logger     log.Logger
	Geo        *geoservice.Client
	LogicLayer *logiclayer.Config

	// Reload rebuilds the schema and its members cache from the
	// configured schema file, for /flush to swap in atomically. Nil
	// disables /flush (returns an error instead of a no-op).
	Reload func(ctx context.Context) (*schema.Schema, *cache.Cache, error)
}

// NewRouter builds the full HTTP API: CORS-enabled JSON/CSV endpoints
// for cube metadata and aggregate queries, plus an operational flush
// endpoint that swaps the schema store's contents without restarting
// the process.
func NewRouter(s *Server) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/cubes", s.handleCubes)
	r.Get("/cubes/{cube}", s.handleCube)
	r.Get("/cubes/{cube}/aggregate", s.handleAggregate)
	r.Get("/cubes/{cube}/aggregate.{format}", s.handleAggregate)
	r.Get("/cubes/{cube}/members", s.handleCubeMembers)
	r.Get("/cubes/{cube}/members.{format}", s.handleCubeMembers)
	r.Get("/members", s.handleMembersFlat)
	r.Get("/members.{format}", s.handleMembersFlat)
	r.Get("/relations", s.handleRelations)
	r.Get("/relations.{format}", s.handleRelations)
	r.Get("/diagnosis", s.handleDiagnosis)
	r.Get("/diagnosis.{format}", s.handleDiagnosis)

	// /data is the logic-layer endpoint: cube aliasing, time macros,
	// named sets, cut operators and cartesian fan-out all run here
	// before anything is compiled to SQL. /cubes/{cube}/aggregate is the
	// core path: it compiles q straight to SQL with none of that
	// rewriting, for callers that already address the schema exactly.
	r.Get("/data", s.handleLogicLayer)
	r.Get("/data.{format}", s.handleLogicLayer)
	r.Post("/flush", s.handleFlush)

	return r
}

func requestLogger(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "request",
				"method", r.Method, "path", r.URL.Path,
				"status", ww.Status(), "duration_ms", time.Since(start).Milliseconds())
		})
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"name":"tesseract"}`))
}
