package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bandwatch/bandwatch/internal/config"
	"github.com/bandwatch/bandwatch/internal/errors"
	"github.com/bandwatch/bandwatch/internal/logging"
	"github.com/bandwatch/bandwatch/internal/metrics"
	"github.com/bandwatch/bandwatch/internal/panel"
	"github.com/bandwatch/bandwatch/internal/store"
	"github.com/gin-gonic/gin"
)

// Server is the read-mostly ops API: account inspection, usage windows and
// a handful of write actions against the panel.
type Server struct {
	router     *gin.Engine
	config     config.ServerConfig
	apiConfig  config.APIConfig
	panel      *panel.Client
	store      *store.SQLiteStore
	metrics    *metrics.Metrics
	logger     *logging.Logger
	httpServer *http.Server
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates a new ops API server
func NewServer(cfg config.ServerConfig, apiCfg config.APIConfig, p *panel.Client, st *store.SQLiteStore, m *metrics.Metrics, logger *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		router:    gin.New(),
		config:    cfg,
		apiConfig: apiCfg,
		panel:     p,
		store:     st,
		metrics:   m,
		logger:    logger,
	}
	server.router.HandleMethodNotAllowed = true

	server.router.Use(gin.Recovery())
	server.router.Use(server.observabilityMiddleware())

	server.setupRoutes()
	return server
}

// observabilityMiddleware attaches a correlation ID and records structured
// logs plus request metrics for every call.
func (s *Server) observabilityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.GenerateCorrelationID()
		}
		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		elapsed := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		s.metrics.HTTPRequestsTotal.WithLabelValues(endpoint, c.Request.Method, status).Inc()
		s.metrics.RequestLatency.WithLabelValues(endpoint, c.Request.Method, status).Observe(elapsed.Seconds())

		s.logger.InfoWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", elapsed.Milliseconds(),
		)
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Metrics and health need no authentication
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.router.GET("/healthz", s.handleHealth)

	authMiddleware := APIKeyAuth(s.apiConfig.Auth.APIKeys, s.apiConfig.Auth.HeaderName, s.logger)

	v1 := s.router.Group("/api/v1")
	v1.Use(authMiddleware)
	{
		v1.GET("/accounts", s.handleListAccounts)
		v1.GET("/accounts/:uuid", s.handleGetAccount)
		v1.GET("/accounts/:uuid/usage", s.handleAccountUsage)
		v1.POST("/accounts/:uuid/reset", s.handleResetUsage)
		v1.GET("/stats", s.handleStats)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	stats, err := s.store.Stats()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "tables": stats})
}

func (s *Server) handleListAccounts(c *gin.Context) {
	accounts, err := s.panel.FetchAccounts(c.Request.Context())
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts, "count": len(accounts)})
}

func (s *Server) handleGetAccount(c *gin.Context) {
	account, err := s.panel.FetchAccount(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		var notFound *errors.ErrAccountNotFound
		if stderrors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: err.Error(),
				Code:    http.StatusNotFound,
			})
			return
		}
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// handleAccountUsage reports the usage delta over the last N hours (default:
// since local midnight) from stored snapshots.
func (s *Server) handleAccountUsage(c *gin.Context) {
	uuid := c.Param("uuid")
	reg, err := s.store.AccountByUUID(uuid)
	if err != nil {
		s.storeError(c, err)
		return
	}
	if reg == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: fmt.Sprintf("account %s is not registered", uuid),
			Code:    http.StatusNotFound,
		})
		return
	}

	var usage float64
	window := "since_midnight"
	if hoursParam := c.Query("hours"); hoursParam != "" {
		hours, err := strconv.Atoi(hoursParam)
		if err != nil || hours <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "bad_request",
				Message: "hours must be a positive integer",
				Code:    http.StatusBadRequest,
			})
			return
		}
		usage, err = s.store.WindowUsage(reg.ID, time.Now().Add(-time.Duration(hours)*time.Hour))
		if err != nil {
			s.storeError(c, err)
			return
		}
		window = fmt.Sprintf("last_%dh", hours)
	} else {
		usage, err = s.store.UsageSinceMidnight(reg.ID)
		if err != nil {
			s.storeError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"uuid":     uuid,
		"window":   window,
		"usage_gb": usage,
	})
}

func (s *Server) handleResetUsage(c *gin.Context) {
	uuid := c.Param("uuid")
	if err := s.panel.ResetUsage(c.Request.Context(), uuid); err != nil {
		var notFound *errors.ErrAccountNotFound
		if stderrors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: err.Error(),
				Code:    http.StatusNotFound,
			})
			return
		}
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uuid": uuid, "reset": true})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.Stats()
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": stats})
}

func (s *Server) upstreamError(c *gin.Context, err error) {
	c.JSON(http.StatusBadGateway, ErrorResponse{
		Error:   "upstream_unavailable",
		Message: err.Error(),
		Code:    http.StatusBadGateway,
	})
}

func (s *Server) storeError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: err.Error(),
		Code:    http.StatusInternalServerError,
	})
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("ops API listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return &errors.ErrServerStart{Addr: addr, Err: err}
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return &errors.ErrServerShutdown{Err: err}
	}
	return nil
}
