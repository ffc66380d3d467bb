package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/KevinKickass/ProductionPulse/internal/api/websocket"
	"github.com/KevinKickass/ProductionPulse/internal/config"
	"github.com/KevinKickass/ProductionPulse/internal/interfaces"
	"github.com/KevinKickass/ProductionPulse/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router  *gin.Engine
	lm      interfaces.LifecycleManager
	logger  *zap.Logger
	server  *http.Server
	wsHub   *websocket.Hub
	metrics http.Handler
}

// NewServer wires the routes. wsHub and metricsHandler may be nil.
func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, metricsHandler http.Handler) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:  gin.New(),
		lm:      lm,
		logger:  logger,
		wsHub:   wsHub,
		metrics: metricsHandler,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start binds the listener synchronously so port errors surface to the caller.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	s.router.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/state", s.getState)
		v1.POST("/reset", s.resetState)

		v1.POST("/production", s.recordProduction)

		downtime := v1.Group("/downtime")
		{
			downtime.POST("/start", s.startDowntime)
			downtime.POST("/end", s.endDowntime)
		}

		sessions := v1.Group("/sessions")
		{
			sessions.POST("/start", s.startSession)
			sessions.POST("/end", s.endSession)
		}

		v1.PUT("/demo", s.setDemoMode)
		v1.PUT("/settings/profit", s.setProfit)

		machine := v1.Group("/machine")
		{
			machine.GET("", s.getMachineStatus)
			machine.POST("/command", s.executeMachineCommand)
		}

		m := v1.Group("/metrics")
		{
			m.GET("/summary", s.getSummary)
			m.GET("/hourly", s.getHourly)
			m.GET("/weekly", s.getWeekly)
			m.GET("/downtime", s.getDowntimeEvents)
			m.GET("/operators", s.getOperatorReport)
		}

		system := v1.Group("/system")
		{
			system.GET("/status", s.getSystemStatus)
			system.POST("/shutdown", s.shutdown)
		}

		if s.wsHub != nil {
			ws := v1.Group("/ws")
			{
				ws.GET("/live", s.wsLiveConnection)
				ws.GET("/status", s.wsStatus)
			}
		}
	}
}

func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": s.lm.Now().Unix(),
	})
}

// respondError maps the error taxonomy onto HTTP status codes.
func (s *Server) respondError(c *gin.Context, area, message string, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(area+"_400", message, err.Error()))
	case errors.Is(err, types.ErrConflictingState):
		c.JSON(http.StatusConflict, types.NewErrorResponse(area+"_409", message, err.Error()))
	default:
		s.logger.Error(message, zap.String("area", area), zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(area+"_500", message, err.Error()))
	}
}
