package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/botsdv/backend/internal/service"
)

// @Summary Admin dashboard
// @Tags statistics
// @Produce json
// @Param X-User-Id header string true "Caller id"
// @Success 200 {object} service.AdminDashboard
// @Router /api/statistics/admin-dashboard [get]
func (h *Handler) AdminDashboard(c *gin.Context) {
	d, err := h.Dashboards.AdminDashboard(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// @Summary Agent dashboard
// @Tags statistics
// @Produce json
// @Param X-User-Id header string true "Caller id"
// @Param agent_id path string true "Agent ID"
// @Success 200 {object} service.AgentDashboard
// @Failure 403 {object} map[string]any
// @Router /api/statistics/agent-dashboard/{agent_id} [get]
func (h *Handler) AgentDashboard(c *gin.Context) {
	agentID := c.Param("agent_id")
	if err := service.CanViewAgent(actor(c), agentID); err != nil {
		h.respondError(c, err)
		return
	}
	d, err := h.Dashboards.AgentDashboard(c.Request.Context(), agentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) AgentStats(c *gin.Context) {
	agentID := c.Param("agent_id")
	if err := service.CanViewAgent(actor(c), agentID); err != nil {
		h.respondError(c, err)
		return
	}
	s, err := h.Dashboards.AgentStats(c.Request.Context(), agentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// @Summary Performance table
// @Tags performance
// @Produce json
// @Param X-User-Id header string true "Caller id"
// @Param year query string false "Year or all"
// @Param month query string false "1-12 or all"
// @Param category query string false "Category or all"
// @Param agent_id query string false "Agent ID or all"
// @Success 200 {object} service.PerformanceTable
// @Router /api/performance/table-data [get]
func (h *Handler) PerformanceTable(c *gin.Context) {
	f, ok := h.performanceFilter(c)
	if !ok {
		return
	}
	t, err := h.Dashboards.PerformanceTable(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) PerformanceByAgent(c *gin.Context) {
	f, ok := h.performanceFilter(c)
	if !ok {
		return
	}
	b, err := h.Dashboards.ByAgent(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) PerformanceByProduct(c *gin.Context) {
	f, ok := h.performanceFilter(c)
	if !ok {
		return
	}
	b, err := h.Dashboards.ByProduct(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) ExportTickets(c *gin.Context) {
	h.exportCSV(c, "tickets", h.Exporter.Tickets)
}

func (h *Handler) ExportPerformance(c *gin.Context) {
	h.exportCSV(c, "performance", h.Exporter.Performance)
}

func (h *Handler) exportCSV(c *gin.Context, prefix string, write func(context.Context, io.Writer, service.PerformanceFilter) error) {
	f, ok := h.performanceFilter(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := write(c.Request.Context(), &buf, f); err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+service.ExportFilename(prefix, time.Now())+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) performanceFilter(c *gin.Context) (service.PerformanceFilter, bool) {
	f, err := service.ParsePerformanceFilter(c.Query("year"), c.Query("month"), c.Query("category"), c.Query("agent_id"))
	if err != nil {
		h.respondError(c, err)
		return f, false
	}
	return f, true
}
