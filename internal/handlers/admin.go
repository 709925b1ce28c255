package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// manualScanTimeout bounds a scan started over HTTP
const manualScanTimeout = 2 * time.Minute

// RunReminders performs one reminder scan right away. The scan outlives a
// disconnected client so reminders it sent are still marked.
func (h *Handler) RunReminders(c *gin.Context) {
	if h.reminders == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "unavailable", "message": "reminder scheduler is disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), manualScanTimeout)
	defer cancel()

	reminded, err := h.reminders.ScanOnce(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}

	ids := make([]string, 0, len(reminded))
	for _, a := range reminded {
		ids = append(ids, a.ID)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reminded": ids})
}
