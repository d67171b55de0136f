// Package api exposes the HTTP interface of the ingest service: health and
// readiness probes, Prometheus metrics, and read-only projections of the
// entity graph.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/velofit/framesearch/internal/store"
)

// Reader is the read-only store surface the API serves from.
type Reader interface {
	SpecByID(ctx context.Context, specID int64) (store.SpecProjection, error)
	GroupByPair(ctx context.Context, definitionID, buildKitID int64) (store.GroupProjection, error)
}

// Pinger reports downstream connectivity for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the store.
type Server struct {
	router chi.Router
	reader Reader
	pinger Pinger
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. pinger may be
// nil, in which case readyz always reports ready.
func NewServer(reader Reader, pinger Pinger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		reader: reader,
		pinger: pinger,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/specs/{spec_id}", s.getSpec)
		r.Get("/groups/{definition_id}/{build_kit_id}", s.getGroup)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getSpec(w http.ResponseWriter, r *http.Request) {
	specID, err := strconv.ParseInt(chi.URLParam(r, "spec_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "spec_id must be an integer")
		return
	}
	proj, err := s.reader.SpecByID(r.Context(), specID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "spec not found")
		return
	}
	if err != nil {
		s.logger.Error("spec lookup failed", zap.Int64("spec_id", specID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, specResponse(proj))
}

func (s *Server) getGroup(w http.ResponseWriter, r *http.Request) {
	defID, err := strconv.ParseInt(chi.URLParam(r, "definition_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "definition_id must be an integer")
		return
	}
	kitID, err := strconv.ParseInt(chi.URLParam(r, "build_kit_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "build_kit_id must be an integer")
		return
	}
	proj, err := s.reader.GroupByPair(r.Context(), defID, kitID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "group not found")
		return
	}
	if err != nil {
		s.logger.Error("group lookup failed",
			zap.Int64("definition_id", defID),
			zap.Int64("build_kit_id", kitID),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, groupResponse(proj))
}

type specPayload struct {
	SpecID     int64  `json:"spec_id"`
	SizeLabel  string `json:"size_label"`
	StackMM    int    `json:"stack_mm"`
	ReachMM    int    `json:"reach_mm"`
	Definition string `json:"definition"`
	Material   string `json:"material,omitempty"`
	BrandName  string `json:"brand_name"`
	FamilyName string `json:"family_name"`
	Category   string `json:"category"`
}

func specResponse(p store.SpecProjection) specPayload {
	return specPayload{
		SpecID:     p.SpecID,
		SizeLabel:  p.SizeLabel,
		StackMM:    p.StackMM,
		ReachMM:    p.ReachMM,
		Definition: p.Definition,
		Material:   p.Material,
		BrandName:  p.BrandName,
		FamilyName: p.FamilyName,
		Category:   p.Category,
	}
}

type groupPayload struct {
	DefinitionID int64    `json:"definition_id"`
	BuildKitID   int64    `json:"build_kit_id"`
	Definition   string   `json:"definition"`
	Material     string   `json:"material,omitempty"`
	BrandName    string   `json:"brand_name"`
	FamilyName   string   `json:"family_name"`
	Category     string   `json:"category"`
	KitName      string   `json:"kit_name"`
	SKUs         []string `json:"skus"`
	Sizes        []string `json:"sizes"`
	Colors       []string `json:"colors"`
}

func groupResponse(p store.GroupProjection) groupPayload {
	return groupPayload{
		DefinitionID: p.DefinitionID,
		BuildKitID:   p.BuildKitID,
		Definition:   p.Definition,
		Material:     p.Material,
		BrandName:    p.BrandName,
		FamilyName:   p.FamilyName,
		Category:     p.Category,
		KitName:      p.KitName,
		SKUs:         p.SKUs,
		Sizes:        p.Sizes,
		Colors:       p.Colors,
	}
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
