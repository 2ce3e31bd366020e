package pipeline

import (
	"context"
	"fmt"
	"time"

	"chatmind/backend/internal/alerts"
	"chatmind/backend/internal/hub"
	"chatmind/backend/internal/logger"
	"chatmind/backend/internal/metrics"
	"chatmind/backend/internal/queue"
)

// Notifier publishes realtime status events for connected clients.
type Notifier interface {
	Publish(ctx context.Context, ev hub.Event) error
}

// Dispatcher settles deliveries according to their outcome: ack on success,
// delayed redelivery while the retry budget lasts, dead-letter once it is
// spent. It is also the single place that marks messages FAILED, which keeps
// the FAILED flip tied to the final delivery.
type Dispatcher struct {
	queue       queue.Queue
	store       Store
	events      Notifier
	alert       alerts.Notifier
	log         *logger.Logger
	maxAttempts int
	retryDelay  time.Duration
}

// NewDispatcher Constructor
func NewDispatcher(q queue.Queue, store Store, events Notifier, alert alerts.Notifier, log *logger.Logger, maxAttempts int, retryDelay time.Duration) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Dispatcher{
		queue:       q,
		store:       store,
		events:      events,
		alert:       alert,
		log:         log,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}
}

// Dispatch settles one delivery. Settlement failures are returned for the
// worker to log; the claim reaper will eventually redeliver anything left
// unsettled, and the status guard makes that redelivery harmless.
func (d *Dispatcher) Dispatch(ctx context.Context, delivery *queue.Delivery, out Outcome) error {
	job := delivery.Job

	switch out.Kind {
	case Success:
		if err := d.queue.Ack(ctx, delivery); err != nil {
			return err
		}
		if out.ReplyID == nil {
			d.log.Info("acked duplicate delivery", "job_id", job.ID, "message_id", job.MessageID, "attempt", delivery.Attempt)
			metrics.JobsSettled.WithLabelValues("duplicate").Inc()
			return nil
		}
		d.log.Info("completed message", "job_id", job.ID, "message_id", job.MessageID, "reply_id", out.ReplyID, "attempt", delivery.Attempt)
		metrics.JobsSettled.WithLabelValues("completed").Inc()
		d.publish(ctx, hub.Event{
			Type:       hub.EventMessageCompleted,
			UserID:     job.UserID,
			ChatroomID: job.ChatroomID,
			MessageID:  job.MessageID,
			ReplyID:    out.ReplyID,
		})
		return nil

	case RetryableFailure:
		if delivery.Attempt < d.maxAttempts {
			d.log.Warn("attempt failed, scheduling retry",
				"job_id", job.ID, "message_id", job.MessageID,
				"attempt", delivery.Attempt, "max_attempts", d.maxAttempts,
				"reason", out.Reason, "error", out.Err)
			metrics.JobsSettled.WithLabelValues("retried").Inc()
			return d.queue.NackRetry(ctx, delivery, d.retryDelay)
		}
		reason := fmt.Sprintf("%s after %d attempts", out.Reason, delivery.Attempt)
		return d.bury(ctx, delivery, reason, out)

	case TerminalFailure:
		return d.bury(ctx, delivery, out.Reason, out)

	default:
		return fmt.Errorf("dispatch job %s: unknown outcome kind %d", job.ID, out.Kind)
	}
}

// bury marks the message FAILED (when it exists) and dead-letters the job.
func (d *Dispatcher) bury(ctx context.Context, delivery *queue.Delivery, reason string, out Outcome) error {
	job := delivery.Job
	d.log.Error("burying job",
		"job_id", job.ID, "message_id", job.MessageID,
		"attempt", delivery.Attempt, "reason", reason, "error", out.Err)
	metrics.JobsSettled.WithLabelValues("dead_lettered").Inc()

	marked, err := d.store.MarkMessageFailed(job.MessageID, reason)
	if err != nil {
		d.log.Error("failed to mark message FAILED", "message_id", job.MessageID, "error", err)
	}
	if marked {
		d.publish(ctx, hub.Event{
			Type:       hub.EventMessageFailed,
			UserID:     job.UserID,
			ChatroomID: job.ChatroomID,
			MessageID:  job.MessageID,
			Reason:     reason,
		})
	}
	if d.alert != nil {
		d.alert.Alertf("⚠️ Job %s dead-lettered: %s (message %s)", job.ID, reason, job.MessageID)
	}
	return d.queue.NackDead(ctx, delivery, reason)
}

func (d *Dispatcher) publish(ctx context.Context, ev hub.Event) {
	if d.events == nil {
		return
	}
	if err := d.events.Publish(ctx, ev); err != nil {
		d.log.Warn("failed to publish status event", "message_id", ev.MessageID, "error", err)
	}
}
