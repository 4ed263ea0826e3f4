// Package server exposes the memory pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/memvault/memvault/internal/memory"
	"github.com/memvault/memvault/internal/model"
	"github.com/memvault/memvault/internal/provider"
	"github.com/memvault/memvault/internal/substrate"
)

// Admin is the substrate control surface the admin endpoints expose.
type Admin interface {
	ActiveProvider() string
	HealthSnapshot() []substrate.Health
	MetricsSnapshot() map[string]substrate.Metrics
	SwitchPrimary(name string) error
	ProbeNow()
}

// AuditReader serves the audit inspection endpoints.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]model.RedactionAudit, error)
	ByRequestID(ctx context.Context, requestID string) ([]model.RedactionAudit, error)
}

// Server wires the memory service and substrate admin surface into a gin
// router with graceful shutdown.
type Server struct {
	router  *gin.Engine
	service *memory.Service
	admin   Admin
	audits  AuditReader
	log     *logrus.Logger
	http    *http.Server
}

// New builds the server and registers all routes. audits may be nil when no
// readable audit store is configured; its endpoints then return 501.
func New(addr string, service *memory.Service, admin Admin, audits AuditReader, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:  router,
		service: service,
		admin:   admin,
		audits:  audits,
		log:     log,
		http: &http.Server{
			Addr:    addr,
			Handler: router,
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.router.Group("/v1")
	v1.POST("/memories", s.createMemory)
	v1.GET("/memories", s.listMemories)
	v1.DELETE("/memories/:id", s.deleteMemory)

	admin := v1.Group("/admin")
	admin.GET("/health", s.getHealth)
	admin.GET("/metrics", s.getMetrics)
	admin.POST("/switch", s.switchPrimary)
	admin.POST("/probe", s.probeNow)
	admin.GET("/audit", s.getAudit)
}

// Handler returns the underlying router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.log.WithFields(logrus.Fields{
		"component": "server",
		"addr":      s.http.Addr,
	}).Info("http server starting")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type createMemoryRequest struct {
	OwnerID         string `json:"owner_id" binding:"required"`
	Scope           string `json:"scope" binding:"required"`
	Content         string `json:"content" binding:"required"`
	SensitivityTier string `json:"sensitivity_tier" binding:"required"`
	ContextID       string `json:"context_id"`
}

func (s *Server) createMemory(c *gin.Context) {
	var req createMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.service.Write(c.Request.Context(), memory.WriteParams{
		OwnerID:         req.OwnerID,
		Scope:           req.Scope,
		Content:         req.Content,
		SensitivityTier: req.SensitivityTier,
		ContextID:       req.ContextID,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) listMemories(c *gin.Context) {
	owner := c.Query("owner_id")
	scope := c.Query("scope")
	query := c.Query("query")
	tier := c.Query("tier")
	limit := parseLimit(c.Query("limit"))

	var (
		items []model.MemoryItem
		err   error
	)
	if query != "" {
		items, err = s.service.Recall(c.Request.Context(), provider.RecallParams{
			OwnerID: owner,
			Scope:   scope,
			Query:   query,
			Limit:   limit,
		})
	} else {
		items, err = s.service.List(c.Request.Context(), provider.ListParams{
			OwnerID: owner,
			Scope:   scope,
			Tier:    tier,
			Limit:   limit,
		})
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	if items == nil {
		items = []model.MemoryItem{}
	}
	c.JSON(http.StatusOK, gin.H{"memories": items, "count": len(items)})
}

func (s *Server) deleteMemory(c *gin.Context) {
	deleted, err := s.service.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "memory not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) getHealth(c *gin.Context) {
	health := s.admin.HealthSnapshot()
	overall := http.StatusOK
	for _, h := range health {
		if h.Status == substrate.StatusUnhealthy {
			overall = http.StatusServiceUnavailable
		}
	}
	c.JSON(overall, gin.H{
		"active_provider": s.admin.ActiveProvider(),
		"providers":       health,
		"timestamp":       time.Now().UTC(),
	})
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"providers": s.admin.MetricsSnapshot(),
		"timestamp": time.Now().UTC(),
	})
}

type switchRequest struct {
	Provider string `json:"provider" binding:"required"`
}

func (s *Server) switchPrimary(c *gin.Context) {
	var req switchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.admin.SwitchPrimary(req.Provider); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active_provider": s.admin.ActiveProvider()})
}

func (s *Server) probeNow(c *gin.Context) {
	s.admin.ProbeNow()
	s.getHealth(c)
}

func (s *Server) getAudit(c *gin.Context) {
	if s.audits == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "audit store is not readable"})
		return
	}
	ctx := c.Request.Context()
	if reqID := c.Query("request_id"); reqID != "" {
		records, err := s.audits.ByRequestID(ctx, reqID)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
		return
	}
	limit := parseLimit(c.Query("limit"))
	if limit <= 0 {
		limit = 50
	}
	records, err := s.audits.Recent(ctx, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// writeError maps pipeline errors onto HTTP status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, provider.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, provider.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, substrate.ErrSubstrateUnavailable), errors.Is(err, provider.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled):
		c.Status(499)
	default:
		s.log.WithFields(logrus.Fields{"component": "server"}).WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
