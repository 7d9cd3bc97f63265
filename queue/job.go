// Package queue runs PDF operations asynchronously on a fixed pool of
// workers and keeps a record of every job.
package queue

import (
	"errors"
	"time"
)

var (
	// ErrQueueFull is returned by Submit when the buffer is saturated.
	ErrQueueFull = errors.New("job queue is full")
	// ErrJobNotFound is returned for unknown or expired job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobNotReady is returned by Result before a job has completed.
	ErrJobNotReady = errors.New("job has not completed")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("queue is closed")
	// ErrNoResult fails a job whose handler returned neither a result nor
	// an error.
	ErrNoResult = errors.New("handler returned no result")
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the job will not change state again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is the persisted record of a submitted task.
type Job struct {
	ID        string    `json:"job_id"`
	Operation string    `json:"operation"`
	Status    Status    `json:"status"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ResultKey string    `json:"result_key,omitempty"`
}

// Input is one uploaded file carried by a task.
type Input struct {
	Name string
	Data []byte
}

// Task is the work a job performs. Inputs stay in memory and are not
// written to the job store.
type Task struct {
	Operation string
	Params    map[string]string
	Inputs    []Input
}

// Param returns the named parameter or "".
func (t Task) Param(name string) string {
	return t.Params[name]
}

// Data returns the input bytes in order.
func (t Task) Data() [][]byte {
	out := make([][]byte, len(t.Inputs))
	for i, in := range t.Inputs {
		out[i] = in.Data
	}
	return out
}
