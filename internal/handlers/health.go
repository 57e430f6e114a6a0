package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Health reports the status of every registered dependency
// GET /health
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	h.healthMu.RLock()
	names := make([]string, 0, len(h.health))
	for name := range h.health {
		names = append(names, name)
	}
	h.healthMu.RUnlock()
	sort.Strings(names)

	status := http.StatusOK
	checks := make(gin.H, len(names))
	for _, name := range names {
		h.healthMu.RLock()
		check := h.health[name]
		h.healthMu.RUnlock()

		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":    overall,
		"service":   "lemarcheluxe-backend",
		"checks":    checks,
		"timestamp": time.Now().UTC(),
	})
}
