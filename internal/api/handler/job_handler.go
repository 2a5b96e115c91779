package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/api/dto"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/scheduler"
)

// ListJobs handles GET /queue
// Lists jobs in the requested order, one page at a time
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	params := scheduler.ListParams{
		Limit:             parseLimit(req.Limit),
		Sort:              req.Sort,
		Order:             req.Order,
		Statuses:          splitStatuses(req.Status),
		ContinuationToken: req.ContinuationToken,
	}

	result, err := h.scheduler.List(c.Request.Context(), params)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list jobs")
		return
	}

	jobs := dto.NewJobDTOs(result.Jobs)
	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:              jobs,
		Count:             len(jobs),
		ContinuationToken: result.ContinuationToken,
	})
}

// NextJob handles GET /queue/next
// Returns the job that should run next, or 204 when nothing is eligible
func (h *JobHandler) NextJob(c *gin.Context) {
	job, err := h.scheduler.Next(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Failed to get next job")
		return
	}

	if job == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, dto.NextJobResponse{Job: dto.NewJobDTO(job)})
}

// parseLimit reads the limit parameter. Missing or non-numeric values
// select the default page size; numbers are clamped later by the engine.
func parseLimit(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return scheduler.DefaultLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return scheduler.DefaultLimit
	}
	return n
}

// splitStatuses accepts both repeated and comma separated status values
func splitStatuses(values []string) []string {
	var out []string
	for _, v := range values {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
