package dto

import (
	"time"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/admin"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/domain"
)

// TimestampLayout renders instants as ISO-8601 UTC with milliseconds
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ListJobsRequest carries the raw query of GET /queue. Limit stays a string
// so a non-numeric value falls back to the default instead of failing binding.
type ListJobsRequest struct {
	Limit             string   `form:"limit"`
	ContinuationToken string   `form:"continuationToken"`
	Sort              string   `form:"sort"`
	Order             string   `form:"order"`
	Status            []string `form:"status"`
}

type ListJobsResponse struct {
	Jobs              []JobDTO `json:"jobs"`
	Count             int      `json:"count"`
	ContinuationToken *string  `json:"continuationToken"`
}

type NextJobResponse struct {
	Job JobDTO `json:"job"`
}

type JobDTO struct {
	ID          string  `json:"id"`
	FileID      string  `json:"fileId"`
	Status      string  `json:"status"`
	ScheduledAt *string `json:"scheduledAt"`
	CreatedAt   string  `json:"createdAt"`
}

// NewJobDTO converts a job record for the wire
func NewJobDTO(job *domain.Job) JobDTO {
	out := JobDTO{
		ID:        job.ID,
		FileID:    job.FileID,
		Status:    string(job.Status),
		CreatedAt: formatTime(job.CreatedAt),
	}
	if job.ScheduledAt != nil {
		at := formatTime(*job.ScheduledAt)
		out.ScheduledAt = &at
	}
	return out
}

// NewJobDTOs converts a page of jobs; the result is never nil
func NewJobDTOs(jobs []*domain.Job) []JobDTO {
	out := make([]JobDTO, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, NewJobDTO(job))
	}
	return out
}

type ListQueuesResponse struct {
	Count  int        `json:"count"`
	Queues []QueueDTO `json:"queues"`
}

type QueueDTO struct {
	Name                   string  `json:"name"`
	ActiveMessageCount     int64   `json:"activeMessageCount"`
	DeadLetterMessageCount int64   `json:"deadLetterMessageCount"`
	CreatedOn              *string `json:"createdOn"`
	UpdatedOn              *string `json:"updatedOn"`
}

// NewQueueDTOs converts broker queue statistics for the wire
func NewQueueDTOs(queues []admin.QueueInfo) []QueueDTO {
	out := make([]QueueDTO, 0, len(queues))
	for _, q := range queues {
		out = append(out, QueueDTO{
			Name:                   q.Name,
			ActiveMessageCount:     q.ActiveMessageCount,
			DeadLetterMessageCount: q.DeadLetterMessageCount,
			CreatedOn:              formatOptional(q.CreatedOn),
			UpdatedOn:              formatOptional(q.UpdatedOn),
		})
	}
	return out
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
