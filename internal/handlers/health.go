package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/launchpad/internal/monitoring"
)

// HealthHandler exposes liveness and readiness probes.
type HealthHandler struct {
	manager *monitoring.HealthManager
}

func NewHealthHandler(manager *monitoring.HealthManager) *HealthHandler {
	return &HealthHandler{manager: manager}
}

// Summary answers GET /health with the readiness outcome but without per-check details.
func (h *HealthHandler) Summary(c *gin.Context) {
	if h.manager == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "status": monitoring.StatusUp, "checked_at": time.Now().UTC()})
		return
	}
	report := h.manager.EvaluateReadiness(requestContext(c))
	c.JSON(reportStatus(report), gin.H{
		"success":    report.Success,
		"status":     report.Status,
		"checked_at": time.Now().UTC(),
	})
}

// Live answers GET /health/live.
func (h *HealthHandler) Live(c *gin.Context) {
	h.writeReport(c, h.evaluate(c, false))
}

// Ready answers GET /health/ready.
func (h *HealthHandler) Ready(c *gin.Context) {
	h.writeReport(c, h.evaluate(c, true))
}

func (h *HealthHandler) evaluate(c *gin.Context, readiness bool) monitoring.HealthReport {
	if h.manager == nil {
		return monitoring.HealthReport{Success: true, Status: monitoring.StatusUp}
	}
	if readiness {
		return h.manager.EvaluateReadiness(requestContext(c))
	}
	return h.manager.EvaluateLiveness(requestContext(c))
}

func (h *HealthHandler) writeReport(c *gin.Context, report monitoring.HealthReport) {
	c.JSON(reportStatus(report), gin.H{
		"success":    report.Success,
		"status":     report.Status,
		"checks":     report.Checks,
		"checked_at": time.Now().UTC(),
	})
}

// reportStatus keeps degraded dependencies serving traffic; only a down probe fails.
func reportStatus(report monitoring.HealthReport) int {
	if report.Status == monitoring.StatusDown {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
