// Package pipeline turns claimed completion jobs into chatroom replies. The
// processor computes a single Outcome per delivery and the dispatcher maps
// that outcome onto exactly one transport settlement, so every delivery ends
// acked, rescheduled, or buried.
package pipeline

import "github.com/google/uuid"

// OutcomeKind classifies how processing one delivery went.
type OutcomeKind int

const (
	// Success means the message reached a terminal state: either this
	// delivery produced the reply or an earlier one already had. Both settle
	// the delivery with an ack.
	Success OutcomeKind = iota
	// RetryableFailure means the attempt failed for a reason that may clear
	// up: engine timeouts, rate limits, storage hiccups.
	RetryableFailure
	// TerminalFailure means no retry can ever succeed, such as a job whose
	// message does not exist.
	TerminalFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case RetryableFailure:
		return "retryable_failure"
	case TerminalFailure:
		return "terminal_failure"
	default:
		return "unknown"
	}
}

// Outcome is the processor's verdict on one delivery.
type Outcome struct {
	Kind OutcomeKind
	// ReplyID is set only when this delivery created the reply; a duplicate
	// delivery of already-finished work succeeds with a nil ReplyID.
	ReplyID *uuid.UUID
	// Reason names the failure class in words fit for status records.
	Reason string
	// Err carries the underlying error for logs.
	Err error
}

func success(replyID *uuid.UUID) Outcome {
	return Outcome{Kind: Success, ReplyID: replyID}
}

func retryable(reason string, err error) Outcome {
	return Outcome{Kind: RetryableFailure, Reason: reason, Err: err}
}

func terminal(reason string, err error) Outcome {
	return Outcome{Kind: TerminalFailure, Reason: reason, Err: err}
}
