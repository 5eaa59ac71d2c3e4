// Package server exposes the local HTTP surface: a demo page with forms to
// track, a query API over recorded events, and a live event stream.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ajsharma/form_tail/internal/sink"
	"github.com/ajsharma/form_tail/internal/store"
)

//go:embed web/demo.html
var demoPage []byte

// shutdownTimeout bounds graceful shutdown in ListenAndServe.
const shutdownTimeout = 5 * time.Second

// Options wires the optional backends. A nil Store disables the query API
// and a nil Hub disables the stream.
type Options struct {
	Store  *store.Store
	Hub    *sink.Hub
	Logger *zap.Logger
}

// Server serves the demo page and the event API.
type Server struct {
	store  *store.Store
	hub    *sink.Hub
	logger *zap.Logger
	router chi.Router
}

// New builds a Server and its routes.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		store:  opts.Store,
		hub:    opts.Hub,
		logger: log.Named("server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/demo", http.StatusFound)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/demo", func(r chi.Router) {
		r.Get("/", s.handleDemo)
		r.Post("/submit", s.handleDemoSubmit)
	})

	r.Route("/api/events", func(r chi.Router) {
		r.Get("/", s.handleListEvents)
		r.Get("/counts", s.handleCountEvents)
		r.Get("/stream", s.handleStream)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleDemo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(demoPage)
}

// handleDemoSubmit accepts demo form posts. Adding ?fail=1 returns an error
// so the failure block can be exercised.
func (s *Server) handleDemoSubmit(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("fail") != "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"ok": false})
		return
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, "Failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"fields": len(r.Form),
	})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "event store not configured", http.StatusNotFound)
		return
	}

	f, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := s.store.List(r.Context(), f)
	if err != nil {
		s.logger.Warn("list events failed", zap.Error(err))
		http.Error(w, "Failed to load events", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleCountEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "event store not configured", http.StatusNotFound)
		return
	}
	counts, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Warn("count events failed", zap.Error(err))
		http.Error(w, "Failed to count events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "event stream not configured", http.StatusNotFound)
		return
	}
	s.hub.ServeHTTP(w, r)
}

// parseFilter reads name, site, form, since (RFC3339) and limit.
func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{
		Name:   q.Get("name"),
		Site:   q.Get("site"),
		FormID: q.Get("form"),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("since must be an RFC3339 timestamp")
		}
		f.Since = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
