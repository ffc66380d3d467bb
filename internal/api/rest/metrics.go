package rest

import (
	"net/http"

	"github.com/KevinKickass/ProductionPulse/internal/metrics"
	"github.com/gin-gonic/gin"
)

// engine honours an optional ?lang=es|en override.
func (s *Server) engine(c *gin.Context) *metrics.Engine {
	base := s.lm.Metrics()
	if lang := c.Query("lang"); lang != "" {
		return base.WithLocale(metrics.ParseLocale(lang))
	}
	return base
}

// GET /api/v1/metrics/summary
func (s *Server) getSummary(c *gin.Context) {
	state := s.lm.EventLog().Snapshot()
	c.JSON(http.StatusOK, s.engine(c).Summary(state, s.lm.Now()))
}

// GET /api/v1/metrics/hourly
func (s *Server) getHourly(c *gin.Context) {
	state := s.lm.EventLog().Snapshot()
	buckets := s.engine(c).ProductionByHour(state, s.lm.Now())
	c.JSON(http.StatusOK, gin.H{"hours": buckets})
}

// GET /api/v1/metrics/weekly
func (s *Server) getWeekly(c *gin.Context) {
	state := s.lm.EventLog().Snapshot()
	days := s.engine(c).Last7DaysProduction(state, s.lm.Now())
	c.JSON(http.StatusOK, gin.H{"days": days})
}

// GET /api/v1/metrics/downtime
func (s *Server) getDowntimeEvents(c *gin.Context) {
	e := s.engine(c)
	now := s.lm.Now()
	state := s.lm.EventLog().Snapshot()

	events := e.TodayDowntimeEvents(state, now)
	response := make([]gin.H, 0, len(events))
	for _, ev := range events {
		d := ev.Interval.Duration(now)
		response = append(response, gin.H{
			"event":       ev,
			"active":      ev.Interval.IsOpen(),
			"duration_ms": d.Milliseconds(),
			"duration":    e.FormatDuration(d),
		})
	}

	total := e.TodayDowntime(state, now)
	c.JSON(http.StatusOK, gin.H{
		"events":            response,
		"total_downtime_ms": total.Milliseconds(),
		"total_downtime":    e.FormatDuration(total),
	})
}

// GET /api/v1/metrics/operators
func (s *Server) getOperatorReport(c *gin.Context) {
	state := s.lm.EventLog().Snapshot()
	c.JSON(http.StatusOK, s.engine(c).ProductionByOperator(state, s.lm.Now()))
}
