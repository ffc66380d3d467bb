package rest

import (
	"net/http"

	"github.com/KevinKickass/ProductionPulse/internal/machine"
	"github.com/KevinKickass/ProductionPulse/internal/types"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/machine
func (s *Server) getMachineStatus(c *gin.Context) {
	status := s.lm.MachineController().GetStatus()
	c.JSON(http.StatusOK, status)
}

// POST /api/v1/machine/command
func (s *Server) executeMachineCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
		Reason  string `json:"reason"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("MACHINE_400", "Invalid request body", err.Error()))
		return
	}

	cmd := machine.Command(req.Command)

	if err := s.lm.MachineController().ExecuteCommand(c.Request.Context(), cmd, req.Reason); err != nil {
		s.respondError(c, "MACHINE", "Command execution failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Command executed",
		"command": req.Command,
		"status":  s.lm.MachineController().GetStatus(),
	})
}
