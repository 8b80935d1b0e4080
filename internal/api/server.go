// Package api exposes the pipeline over a small JSON HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/imagefilter/internal/config"
	"github.com/dharsanguruparan/imagefilter/internal/metrics"
	"github.com/dharsanguruparan/imagefilter/internal/model"
	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
	"github.com/dharsanguruparan/imagefilter/internal/signing"
)

// OwnerHeader carries the operator identity set by the fronting proxy.
const OwnerHeader = "X-User"

// ReadyFunc reports whether backing services are reachable.
type ReadyFunc func(ctx context.Context) error

// Server exposes HTTP endpoints for uploads and pipeline control.
type Server struct {
	cfg    *config.Config
	pipe   *pipeline.Pipeline
	ready  ReadyFunc
	signer *signing.Signer
	log    zerolog.Logger
	server *http.Server
	once   sync.Once
}

// New constructs a Server. ready may be nil.
func New(cfg *config.Config, pipe *pipeline.Pipeline, ready ReadyFunc, log zerolog.Logger) *Server {
	s := &Server{
		cfg:   cfg,
		pipe:  pipe,
		ready: ready,
		log:   log.With().Str("component", "api").Logger(),
	}
	if cfg.DownloadSecret != "" {
		s.signer = signing.NewSigner([]byte(cfg.DownloadSecret))
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware(routePattern))
	r.Use(s.loggingMiddleware)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Post("/files", s.handleUpload)
	r.Route("/files/{fileID}", func(r chi.Router) {
		r.Use(s.fileAccess)
		r.Get("/", s.handleFile)
		r.Delete("/", s.handleDelete)
		r.Get("/summary", s.handleSummary)
		r.Get("/products", s.handleProducts)
		r.Get("/images", s.handleImages)
		r.Get("/download", s.handleDownload)
		r.Post("/validate", s.handleAction(s.pipe.RequestValidate))
		r.Post("/classify", s.handleAction(s.pipe.RequestClassify))
		r.Post("/generate", s.handleAction(s.pipe.RequestGenerate))
	})
	r.Put("/images/{imageID}/type", s.handleOverride)
	r.Get("/downloads/{token}", s.handleSignedDownload)
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("addr", s.cfg.Address).Msg("api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return metrics.RoutePrefix(r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type fileKey struct{}

// fileAccess loads the file named in the path and hides files that belong to
// another owner.
func (s *Server) fileAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, err := s.pipe.File(r.Context(), chi.URLParam(r, "fileID"), owner(r))
		if err != nil {
			s.respondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), fileKey{}, f)))
	})
}

func fileFrom(r *http.Request) *model.File {
	f, _ := r.Context().Value(fileKey{}).(*model.File)
	return f
}

func owner(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(OwnerHeader))
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrFileNotFound), errors.Is(err, model.ErrImageNotFound), errors.Is(err, model.ErrProductNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pipeline.ErrUnsupportedFormat):
		status = http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNotGenerated):
		status = http.StatusConflict
	case errors.Is(err, signing.ErrInvalid):
		respondJSON(w, http.StatusForbidden, pipeline.Result{OK: false, Message: err.Error()})
		return
	default:
		s.log.Error().Err(err).Msg("request failed")
	}
	respondJSON(w, status, pipeline.Result{OK: false, Message: pipeline.Message(err)})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,"+OwnerHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
