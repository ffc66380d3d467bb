package rest

import (
	"net/http"

	"github.com/KevinKickass/ProductionPulse/internal/types"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/state
func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.EventLog().Snapshot())
}

// POST /api/v1/reset
func (s *Server) resetState(c *gin.Context) {
	if err := s.lm.ResetState(c.Request.Context()); err != nil {
		s.respondError(c, "STATE", "Failed to reset state", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "State reset"})
}

// POST /api/v1/production
func (s *Server) recordProduction(c *gin.Context) {
	var req struct {
		Count *int `json:"count" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("PRODUCTION_400", "Invalid request body", err.Error()))
		return
	}

	ev, err := s.lm.EventLog().RecordProduction(*req.Count, s.lm.Now())
	if err != nil {
		s.respondError(c, "PRODUCTION", "Failed to record production", err)
		return
	}

	c.JSON(http.StatusCreated, ev)
}

// POST /api/v1/downtime/start
func (s *Server) startDowntime(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	// Body is optional; an empty reason is allowed.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("DOWNTIME_400", "Invalid request body", err.Error()))
			return
		}
	}

	ev, err := s.lm.EventLog().StartDowntime(req.Reason, s.lm.Now())
	if err != nil {
		s.respondError(c, "DOWNTIME", "Failed to start downtime", err)
		return
	}

	c.JSON(http.StatusCreated, ev)
}

// POST /api/v1/downtime/end
func (s *Server) endDowntime(c *gin.Context) {
	ev, err := s.lm.EventLog().EndDowntime(s.lm.Now())
	if err != nil {
		s.respondError(c, "DOWNTIME", "Failed to end downtime", err)
		return
	}
	if ev == nil {
		c.JSON(http.StatusOK, gin.H{"message": "No open downtime"})
		return
	}

	c.JSON(http.StatusOK, ev)
}

// POST /api/v1/sessions/start
func (s *Server) startSession(c *gin.Context) {
	var req struct {
		OperatorID string `json:"operator_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("SESSION_400", "Invalid request body", err.Error()))
		return
	}

	sess, err := s.lm.EventLog().StartOperatorSession(req.OperatorID, s.lm.Now())
	if err != nil {
		s.respondError(c, "SESSION", "Failed to start session", err)
		return
	}

	c.JSON(http.StatusCreated, sess)
}

// POST /api/v1/sessions/end
func (s *Server) endSession(c *gin.Context) {
	sess, err := s.lm.EventLog().EndOperatorSession(s.lm.Now())
	if err != nil {
		s.respondError(c, "SESSION", "Failed to end session", err)
		return
	}
	if sess == nil {
		c.JSON(http.StatusOK, gin.H{"message": "No open session"})
		return
	}

	c.JSON(http.StatusOK, sess)
}

// PUT /api/v1/demo
func (s *Server) setDemoMode(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("DEMO_400", "Invalid request body", err.Error()))
		return
	}

	var enabled bool
	if req.Enabled == nil {
		enabled = s.lm.EventLog().ToggleDemoMode(s.lm.Now())
	} else {
		enabled = s.lm.EventLog().SetDemoMode(*req.Enabled, s.lm.Now()).DemoMode
	}

	c.JSON(http.StatusOK, gin.H{"demo_mode": enabled})
}

// PUT /api/v1/settings/profit
func (s *Server) setProfit(c *gin.Context) {
	var req struct {
		ProfitPerEmpanada *float64 `json:"profit_per_empanada" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("SETTINGS_400", "Invalid request body", err.Error()))
		return
	}

	if err := s.lm.EventLog().SetProfitPerEmpanada(*req.ProfitPerEmpanada, s.lm.Now()); err != nil {
		s.respondError(c, "SETTINGS", "Failed to update profit", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"profit_per_empanada": *req.ProfitPerEmpanada})
}
