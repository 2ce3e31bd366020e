package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"chatmind/backend/internal/alerts"
	"chatmind/backend/internal/logger"
	"chatmind/backend/internal/metrics"
	"chatmind/backend/internal/queue"
)

const statsSampleInterval = 15 * time.Second

// Worker drives a pool of goroutines that claim, process, and settle jobs
// until the context is cancelled.
type Worker struct {
	queue       queue.Queue
	processor   *Processor
	dispatcher  *Dispatcher
	alert       alerts.Notifier
	log         *logger.Logger
	concurrency int
	claimWait   time.Duration
}

// NewWorker Constructor
func NewWorker(q queue.Queue, p *Processor, d *Dispatcher, alert alerts.Notifier, log *logger.Logger, concurrency int, claimWait time.Duration) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if claimWait <= 0 {
		claimWait = 5 * time.Second
	}
	return &Worker{
		queue:       q,
		processor:   p,
		dispatcher:  d,
		alert:       alert,
		log:         log,
		concurrency: concurrency,
		claimWait:   claimWait,
	}
}

// Run blocks until ctx is cancelled and every pool goroutine has drained.
// In-flight jobs finish their current delivery before the pool exits; their
// settlement uses a background context because ctx is already dead by then.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("worker pool starting", "concurrency", w.concurrency)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.runLoop(ctx, id)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.sampleQueueDepth(ctx)
	}()

	wg.Wait()
	w.log.Info("worker pool stopped")
}

func (w *Worker) runLoop(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		delivery, err := w.queue.Claim(ctx, w.claimWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("claim failed", "worker", id, "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if delivery == nil {
			continue
		}

		start := time.Now()
		outcome := w.processSafely(ctx, delivery)
		metrics.JobDuration.Observe(time.Since(start).Seconds())

		// Settle even when ctx died mid-flight so finished work is not
		// redelivered needlessly.
		settleCtx, cancel := w.settleContext(ctx)
		err = w.dispatcher.Dispatch(settleCtx, delivery, outcome)
		cancel()
		if err != nil {
			// Left unsettled; the claim reaper will redeliver it and the
			// status guard keeps the redelivery harmless.
			w.log.Error("failed to settle delivery",
				"worker", id, "job_id", delivery.Job.ID, "outcome", outcome.Kind.String(), "error", err)
		}
	}
}

// settleContext returns ctx while it is alive, or a short standalone context
// once it is cancelled so an in-flight delivery can still be settled during
// shutdown.
func (w *Worker) settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// processSafely converts a panicking job into a retryable failure so one bad
// delivery cannot take down the loop, while still consuming the retry budget.
func (w *Worker) processSafely(ctx context.Context, delivery *queue.Delivery) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("panic while processing job",
				"job_id", delivery.Job.ID, "panic", r, "stack", string(debug.Stack()))
			if w.alert != nil {
				w.alert.Alertf("🔥 Worker panic on job %s: %v", delivery.Job.ID, r)
			}
			out = retryable("worker panic", fmt.Errorf("panic: %v", r))
		}
	}()
	return w.processor.Process(ctx, delivery.Job)
}

func (w *Worker) sampleQueueDepth(ctx context.Context) {
	ticker := time.NewTicker(statsSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := w.queue.Stats(ctx)
			if err != nil {
				w.log.Warn("failed to sample queue depth", "error", err)
				continue
			}
			metrics.QueueDepth.WithLabelValues("pending").Set(float64(stats.Pending))
			metrics.QueueDepth.WithLabelValues("processing").Set(float64(stats.Processing))
			metrics.QueueDepth.WithLabelValues("delayed").Set(float64(stats.Delayed))
			metrics.QueueDepth.WithLabelValues("dead").Set(float64(stats.Dead))
		}
	}
}
