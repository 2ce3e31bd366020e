package pipeline

import (
	"context"
	"errors"

	"chatmind/backend/internal/llm"
	"chatmind/backend/internal/models"
	"chatmind/backend/internal/queue"
	"chatmind/backend/internal/storage"

	"github.com/google/uuid"
)

// Store is the slice of the storage layer the pipeline touches.
type Store interface {
	GetMessage(id uuid.UUID) (*models.Message, error)
	MarkMessageProcessing(id uuid.UUID) (bool, error)
	CompleteMessageWithReply(id uuid.UUID, reply *models.Message) error
	MarkMessageFailed(id uuid.UUID, reason string) (bool, error)
}

// Processor runs one job: claim the message, render the prompt, call the
// completion engine, and persist the reply. It owns no transport concerns;
// it only reports what happened.
type Processor struct {
	store        Store
	engine       llm.Client
	contextTurns int
}

// NewProcessor Constructor
func NewProcessor(store Store, engine llm.Client, contextTurns int) *Processor {
	return &Processor{store: store, engine: engine, contextTurns: contextTurns}
}

// Process handles a single delivery. It never updates the transport; the
// dispatcher settles the delivery based on the returned Outcome.
//
// Duplicate deliveries are expected under at-least-once semantics. A message
// that already reached a terminal state reports Success with no ReplyID so
// the duplicate gets acked without a second reply.
func (p *Processor) Process(ctx context.Context, job *queue.Job) Outcome {
	if err := job.Validate(); err != nil {
		return terminal("malformed job payload", err)
	}

	claimed, err := p.store.MarkMessageProcessing(job.MessageID)
	if err != nil {
		return retryable("storage error", err)
	}
	if !claimed {
		// The guard refuses only messages that are gone or already terminal.
		msg, err := p.store.GetMessage(job.MessageID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return terminal("message not found", err)
		case err != nil:
			return retryable("storage error", err)
		case msg.Status.Terminal():
			return success(nil)
		default:
			return retryable("message status conflict", nil)
		}
	}

	turns := make([]llm.Turn, 0, len(job.Context))
	for _, entry := range job.Context {
		turns = append(turns, llm.Turn{Role: entry.Role, Content: entry.Content})
	}
	prompt := llm.BuildPrompt(turns, job.Prompt, p.contextTurns)

	text, err := p.engine.Complete(ctx, prompt)
	if err != nil {
		return retryable(llm.FailureReason(err), err)
	}

	parentID := job.MessageID
	reply := &models.Message{
		ChatroomID:      job.ChatroomID,
		UserID:          job.UserID,
		ParentMessageID: &parentID,
		Content:         text,
		IsFromUser:      false,
		Status:          models.StatusCompleted,
	}

	if err := p.store.CompleteMessageWithReply(job.MessageID, reply); err != nil {
		if errors.Is(err, storage.ErrMessageTerminal) {
			// Another delivery finished first; ours is a no-op.
			return success(nil)
		}
		return retryable("storage error", err)
	}

	return success(&reply.ID)
}
