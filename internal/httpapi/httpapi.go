// Package httpapi is the engine's admin HTTP surface: health check, symbol
// listing, per-symbol snapshot, consolidated summary and cross-symbol
// correlation, built on the teacher's gin route-registration conventions.
// This is not the excluded fan-out/dashboard server; it exists for
// operators to inspect a running core.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tradsys/marketcore/internal/bookmgr"
	"github.com/tradsys/marketcore/internal/common/errors"
	"github.com/tradsys/marketcore/internal/feed"
	"github.com/tradsys/marketcore/internal/types"
)

// Server owns the gin engine and its dependencies.
type Server struct {
	engine    *gin.Engine
	books     *bookmgr.Manager
	logger    *zap.Logger
	startTime time.Time
}

// NewServer builds a Server with routes registered but not yet listening.
// registry may be nil, in which case /metrics is not mounted on this
// surface (it still runs standalone via internal/metrics.RegisterHandler).
func NewServer(books *bookmgr.Manager, registry *prometheus.Registry, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.Use(correlationMiddleware(logger))

	s := &Server{engine: engine, books: books, logger: logger, startTime: time.Now()}
	s.registerRoutes(registry)
	return s
}

// Engine returns the underlying gin engine, e.g. for http.ListenAndServe.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes(registry *prometheus.Registry) {
	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/symbols", s.symbols)
	s.engine.GET("/snapshot/:symbol", s.snapshot)
	s.engine.GET("/summary", s.summary)
	s.engine.GET("/correlation/:a/:b", s.correlation)
	if registry != nil {
		handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		s.engine.GET("/metrics", gin.WrapH(handler))
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) symbols(c *gin.Context) {
	active := s.books.ActiveSymbols()
	names := make([]string, len(active))
	for i, sym := range active {
		names[i] = sym.String()
	}
	c.JSON(http.StatusOK, gin.H{"symbols": names})
}

func (s *Server) snapshot(c *gin.Context) {
	symbol := types.SymbolFromString(c.Param("symbol"))
	b, err := s.books.Get(symbol)
	if err != nil {
		if errors.Code(err) == errors.ErrSymbolNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "symbol not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	snap := feed.BuildSnapshot(b, uint64(time.Now().UnixMilli()))
	c.JSON(http.StatusOK, snap)
}

func (s *Server) summary(c *gin.Context) {
	c.JSON(http.StatusOK, s.books.Consolidated(uint64(time.Now().UnixMilli())))
}

func (s *Server) correlation(c *gin.Context) {
	symA := types.SymbolFromString(c.Param("a"))
	symB := types.SymbolFromString(c.Param("b"))

	coeff, err := s.books.Correlation(symA, symB)
	if err != nil {
		if errors.Code(err) == errors.ErrSymbolNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "symbol not found"})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol_a": symA.String(), "symbol_b": symB.String(), "correlation": coeff})
}
