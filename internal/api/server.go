// Package api serves the query engine over HTTP for the reporting surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/IshaanNene/mediabias/internal/analytics"
	"github.com/IshaanNene/mediabias/internal/config"
	"github.com/IshaanNene/mediabias/internal/observability"
	"github.com/IshaanNene/mediabias/internal/types"
)

// Server exposes read-only query endpoints over the current engine.
type Server struct {
	cfg     *config.Config
	engine  atomic.Pointer[analytics.Engine]
	metrics *observability.Metrics
	logger  *slog.Logger
	router  chi.Router
}

// NewServer creates a Server answering from engine.
func NewServer(cfg *config.Config, engine *analytics.Engine, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if metrics == nil {
		metrics = &observability.Metrics{}
	}
	s := &Server{
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With("component", "api_server"),
	}
	s.engine.Store(engine)
	s.router = s.routes()
	return s
}

// SetEngine swaps the engine used by subsequent requests.
func (s *Server) SetEngine(engine *analytics.Engine) {
	s.engine.Store(engine)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.cfg.Metrics.Enabled {
		r.Method(http.MethodGet, s.cfg.Metrics.Path, s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/parties", s.handleParties)
		r.Get("/datasets", s.handleDatasets)
		r.Get("/datasets/{dataset}/query", s.handleQuery)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down within
// the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.API.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.API.ReadTimeout,
		WriteTimeout:      s.cfg.API.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server starting", "addr", s.cfg.API.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.API.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

type errorResponse struct {
	Error string `json:"error"`
}

type datasetInfo struct {
	Name          string   `json:"name"`
	Frequency     string   `json:"frequency"`
	RollingWindow int      `json:"rolling_window"`
	LabelFormat   string   `json:"label_format"`
	Since         string   `json:"since,omitempty"`
	Publishers    []string `json:"publishers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

func (s *Server) handleParties(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Load().Parties())
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	engine := s.engine.Load()
	out := make([]datasetInfo, 0, len(engine.Datasets()))
	for _, name := range engine.Datasets() {
		d, err := engine.Dataset(name)
		if err != nil {
			continue
		}
		info := datasetInfo{
			Name:          d.Name,
			Frequency:     string(d.Granularity.Frequency),
			RollingWindow: d.Granularity.RollingWindow,
			LabelFormat:   d.Granularity.LabelFormat,
			Publishers:    d.Publishers(),
		}
		if !d.Since.IsZero() {
			info.Since = d.Since.Format(time.DateOnly)
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleQuery maps query parameters onto analytics.Query. An absent
// publisher or party parameter selects everything; a present but empty
// one selects nothing.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	engine := s.engine.Load()
	params := r.URL.Query()

	q := analytics.Query{
		Mode: analytics.Mode(strings.TrimSpace(params.Get("mode"))),
		Unit: analytics.Unit(strings.TrimSpace(params.Get("unit"))),
	}
	if q.Mode == "" {
		q.Mode = analytics.ModeTotals
	}

	if values, ok := params["publisher"]; ok {
		q.Publishers = parseList(values)
	} else {
		q.Publishers = []string{analytics.GroupAll}
	}
	if values, ok := params["party"]; ok {
		q.Parties = parseList(values)
	} else {
		q.Parties = engine.Parties()
	}

	if raw := strings.TrimSpace(params.Get("since")); raw != "" {
		since, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			s.metrics.QueriesFailed.Add(1)
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "since must be YYYY-MM-DD"})
			return
		}
		q.Since = since
	}

	dataset := chi.URLParam(r, "dataset")
	res, err := engine.Query(dataset, q)
	if err != nil {
		s.metrics.QueriesFailed.Add(1)
		status := http.StatusBadRequest
		if errors.Is(err, types.ErrUnknownDataset) {
			status = http.StatusNotFound
		}
		s.logger.Debug("query rejected", "dataset", dataset, "error", err,
			"request_id", middleware.GetReqID(r.Context()))
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	s.metrics.QueriesServed.Add(1)
	writeJSON(w, http.StatusOK, res)
}

// parseList accepts repeated and comma separated values.
func parseList(values []string) []string {
	out := []string{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
