package domain

import (
	"strings"
	"time"
)

// Job is a persisted unit of work derived from an upload event
type Job struct {
	ID          string     `json:"id"`
	FileID      string     `json:"fileId"`
	Status      Status     `json:"status"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// timestamp layouts accepted for scheduledAt, most specific first
var scheduleLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. Values without a zone are UTC.
// Precision is cut to milliseconds, the finest every backend can store.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range scheduleLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC().Truncate(time.Millisecond), true
		}
	}
	return time.Time{}, false
}

// DeriveInitialState decides the status a new job starts in.
// A scheduledAt that parses and is not in the past yields a scheduled job,
// anything else yields a pending job without a schedule.
func DeriveInitialState(event FileUploaded, now time.Time) (Status, *time.Time, error) {
	if strings.TrimSpace(event.FileID) == "" {
		return "", nil, NewInvalidEventError("file_uploaded", ErrMissingFileID)
	}

	if event.ScheduledAt == nil {
		return StatusPending, nil, nil
	}

	at, ok := ParseTimestamp(*event.ScheduledAt)
	if !ok || at.Before(now) {
		return StatusPending, nil, nil
	}

	return StatusScheduled, &at, nil
}

// NewJob builds the job record for an upload event
func NewJob(id string, event FileUploaded, now time.Time) (*Job, error) {
	status, scheduledAt, err := DeriveInitialState(event, now)
	if err != nil {
		return nil, err
	}

	return &Job{
		ID:          id,
		FileID:      strings.TrimSpace(event.FileID),
		Status:      status,
		ScheduledAt: scheduledAt,
		CreatedAt:   now.UTC().Truncate(time.Millisecond),
	}, nil
}

// Eligible reports whether the job may be dispatched at now
func (j *Job) Eligible(now time.Time) bool {
	switch j.Status {
	case StatusPending:
		return true
	case StatusScheduled:
		return j.ScheduledAt != nil && !j.ScheduledAt.After(now)
	}
	return false
}

// Clone returns a deep copy so callers can hold a job without sharing
// the schedule pointer with the store
func (j *Job) Clone() *Job {
	cp := *j
	if j.ScheduledAt != nil {
		at := *j.ScheduledAt
		cp.ScheduledAt = &at
	}
	return &cp
}
