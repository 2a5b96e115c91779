package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/api/dto"
)

const (
	minQueueCount     = 1
	maxQueueCount     = 100
	defaultQueueCount = 1
)

// ListQueues handles GET /queues and GET /queues/:count
func (h *QueueHandler) ListQueues(c *gin.Context) {
	raw := c.Param("count")
	if raw == "" {
		raw = c.Query("count")
	}
	count := parseQueueCount(raw)

	queues, err := h.inspector.ListQueues(c.Request.Context(), count)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list queues")
		return
	}

	out := dto.NewQueueDTOs(queues)
	c.JSON(http.StatusOK, dto.ListQueuesResponse{
		Count:  len(out),
		Queues: out,
	})
}

// parseQueueCount falls back to the default for missing or non-numeric
// input and clamps numbers into range
func parseQueueCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultQueueCount
	}
	if n < minQueueCount {
		return minQueueCount
	}
	if n > maxQueueCount {
		return maxQueueCount
	}
	return n
}
