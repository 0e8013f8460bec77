package operations

import (
	"context"
	"time"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusBlocked    JobStatus = "blocked"
)

// Valid reports whether s is a known status
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusBlocked:
		return true
	}
	return false
}

// Priority orders pending jobs
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var priorityRank = map[Priority]int{
	PriorityLow:      0,
	PriorityNormal:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

// Rank returns the priority's position, higher runs first
func (p Priority) Rank() int {
	return priorityRank[p]
}

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Job is a unit of work submitted to the queue
type Job struct {
	ID              string                 `json:"id"`
	Type            string                 `json:"type"`
	Payload         map[string]interface{} `json:"payload,omitempty"`
	Status          JobStatus              `json:"status"`
	Priority        Priority               `json:"priority"`
	RequiredFeature string                 `json:"required_feature,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	NextAttemptAt   *time.Time             `json:"next_attempt_at,omitempty"`
	Error           string                 `json:"error,omitempty"`
	RetryCount      int                    `json:"retry_count"`
	Attempts        int                    `json:"attempts"`
	BlockReason     string                 `json:"block_reason,omitempty"`
	BlockMessage    string                 `json:"block_message,omitempty"`
	LicenseChecked  bool                   `json:"license_checked"`
	Result          interface{}            `json:"result,omitempty"`
	Sequence        uint64                 `json:"sequence"`
}

// Clone returns a copy that shares no mutable state with j. Payload and
// Result values are copied shallowly.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Payload != nil {
		c.Payload = make(map[string]interface{}, len(j.Payload))
		for k, v := range j.Payload {
			c.Payload[k] = v
		}
	}
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	c.NextAttemptAt = cloneTime(j.NextAttemptAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// EnqueueRequest describes a job to submit
type EnqueueRequest struct {
	Type            string
	Priority        Priority
	RequiredFeature string
	Payload         map[string]interface{}
}

// JobFilter for querying jobs
type JobFilter struct {
	Status   JobStatus
	Type     string
	Priority Priority
	Limit    int
}

func (f JobFilter) matches(j *Job) bool {
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if f.Type != "" && j.Type != f.Type {
		return false
	}
	if f.Priority != "" && j.Priority != f.Priority {
		return false
	}
	return true
}

// Processor performs a job. The returned result is stored on the job and
// must be JSON serializable.
type Processor func(ctx context.Context, job *Job) (interface{}, error)

// SelectNext returns the pending job that should run next at now: highest
// priority first, insertion order within a priority. Jobs waiting for a
// retry delay are skipped; blocked and processing jobs are never chosen.
func SelectNext(jobs []*Job, now time.Time) *Job {
	var best *Job
	for _, j := range jobs {
		if j.Status != JobStatusPending {
			continue
		}
		if j.NextAttemptAt != nil && now.Before(*j.NextAttemptAt) {
			continue
		}
		if best == nil ||
			j.Priority.Rank() > best.Priority.Rank() ||
			(j.Priority.Rank() == best.Priority.Rank() && j.Sequence < best.Sequence) {
			best = j
		}
	}
	return best
}
