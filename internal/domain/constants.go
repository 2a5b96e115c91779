package domain

// Status is the lifecycle state of a job record
type Status string

// Job status constants
const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
)

// Event kinds recognized on the upload queue
const (
	EventFileUploaded = "file_uploaded"
)

// Valid reports whether s is one of the canonical statuses
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusRunning, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Replaceable reports whether a stored record in this status may still be
// overwritten by a redelivered upload event. Once a downstream worker has
// picked the job up the record belongs to it.
func (s Status) Replaceable() bool {
	return s == StatusPending || s == StatusScheduled
}

// ParseStatus converts a string into a Status, rejecting unknown spellings
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", ErrUnknownStatus
	}
	return status, nil
}
