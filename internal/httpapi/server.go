// Package httpapi serves the read-only operations surface: liveness, counter
// and registry inspection, and Prometheus metrics. It never mutates state and
// never serves predictions.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"ModelRetrainer/internal/domain"
	"ModelRetrainer/internal/metrics"
	"ModelRetrainer/internal/ports"
)

// StatusSource exposes the dataset counter snapshot.
type StatusSource interface {
	Status(ctx context.Context) (domain.DatasetStatus, error)
}

// Deps wires read-only collaborators into the handlers.
type Deps struct {
	Dataset   StatusSource
	Registry  ports.ModelRegistry
	Threshold int
	Logger    *slog.Logger
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Dataset    domain.DatasetStatus  `json:"dataset"`
	Threshold  int                   `json:"threshold"`
	Ready      bool                  `json:"ready_for_training"`
	Production *domain.RegistryEntry `json:"production"`
}

// Server owns the gin engine and its listener.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	logger *slog.Logger
}

// NewServer registers routes on a fresh gin engine.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), otelgin.Middleware("modelretrainer-ops"))

	h := &handlers{deps: deps, logger: logger}
	engine.GET("/healthz", h.health)
	engine.GET("/status", h.status)
	engine.GET("/history", h.history)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{
		engine: engine,
		http: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("ops server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) status(c *gin.Context) {
	ctx := c.Request.Context()

	snapshot, err := h.deps.Dataset.Status(ctx)
	if err != nil {
		h.internalError(c, "read dataset status", err)
		return
	}
	metrics.SetPending(snapshot.Pending)

	resp := StatusResponse{
		Dataset:   snapshot,
		Threshold: h.deps.Threshold,
		Ready:     snapshot.Pending >= h.deps.Threshold,
	}

	entry, err := h.deps.Registry.Current(ctx)
	switch {
	case errors.Is(err, domain.ErrEmptyRegistry):
	case err != nil:
		h.internalError(c, "read production model", err)
		return
	default:
		resp.Production = &entry
	}

	c.JSON(http.StatusOK, resp)
}

func (h *handlers) history(c *gin.Context) {
	entries, err := h.deps.Registry.History(c.Request.Context())
	if err != nil {
		h.internalError(c, "read registry history", err)
		return
	}
	if entries == nil {
		entries = []domain.RegistryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"versions": entries})
}

func (h *handlers) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
