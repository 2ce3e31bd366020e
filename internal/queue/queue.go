// Package queue implements the Redis transport that carries completion jobs
// from the API producers to the worker pool. Delivery is at-least-once: a
// claimed job stays on a processing list until it is acked, and jobs whose
// claim expires are handed out again.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Job states reported by JobState. Unknown job IDs read as StatePending.
const (
	StatePending = "PENDING"
	StateStarted = "STARTED"
	StateRetry   = "RETRY"
	StateSuccess = "SUCCESS"
	StateFailure = "FAILURE"
)

// Roles used for conversation context entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrInvalidJob reports a job that is missing required fields.
var ErrInvalidJob = errors.New("queue: invalid job")

// ContextEntry is one prior conversation turn shipped with a job.
type ContextEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Job is the unit of work handed to a completion worker.
type Job struct {
	ID         string         `json:"id"`
	MessageID  uuid.UUID      `json:"message_id"`
	ChatroomID uuid.UUID      `json:"chatroom_id"`
	UserID     uuid.UUID      `json:"user_id"`
	Prompt     string         `json:"prompt"`
	Context    []ContextEntry `json:"context,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// NewJob builds a job with a fresh ID for the given message.
func NewJob(messageID, chatroomID, userID uuid.UUID, prompt string, context []ContextEntry) *Job {
	return &Job{
		ID:         uuid.NewString(),
		MessageID:  messageID,
		ChatroomID: chatroomID,
		UserID:     userID,
		Prompt:     prompt,
		Context:    context,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Validate reports whether the job carries everything a worker needs.
func (j *Job) Validate() error {
	if j.ID == "" || j.MessageID == uuid.Nil || j.ChatroomID == uuid.Nil || j.UserID == uuid.Nil {
		return ErrInvalidJob
	}
	if j.Prompt == "" {
		return ErrInvalidJob
	}
	return nil
}

// Delivery is one claimed job. Attempt counts this claim included, so the
// first delivery of a job carries Attempt == 1 and a redelivery after a
// worker crash carries Attempt == 2.
type Delivery struct {
	Job     *Job
	Attempt int

	raw string
}

// JobStatus is the transport-side view of a job, read from Redis.
type JobStatus struct {
	JobID    string `json:"job_id"`
	State    string `json:"state"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason,omitempty"`
}

// Stats counts jobs per transport stage.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

// Queue is the transport contract the producers and workers share.
//
// Claim blocks up to wait and returns (nil, nil) when nothing arrived. Every
// claimed delivery must be settled exactly once with Ack, NackRetry or
// NackDead; an unsettled delivery becomes visible again after the claim
// expires.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	Claim(ctx context.Context, wait time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	NackRetry(ctx context.Context, d *Delivery, delay time.Duration) error
	NackDead(ctx context.Context, d *Delivery, reason string) error
	JobState(ctx context.Context, jobID string) (*JobStatus, error)
	Stats(ctx context.Context) (*Stats, error)
}
