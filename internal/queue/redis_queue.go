package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"chatmind/backend/internal/logger"

	"github.com/redis/go-redis/v9"
)

// Redis key layout, with name defaulting to "llm":
//
//	queue:{name}                pending jobs (list, LPUSH / BLMOVE)
//	queue:{name}:processing     claimed jobs awaiting settlement (list)
//	queue:{name}:delayed        retry-scheduled jobs (zset, score = due unix ms)
//	queue:{name}:dead           exhausted or malformed jobs (capped list)
//	queue:{name}:claim:{job}    claim marker, expires with the visibility timeout
//	queue:{name}:attempts:{job} delivery counter, survives redelivery
//	queue:{name}:job:{job}      job state hash (state, attempts, reason, timestamps)
const promoteBatch = 100

// Options tune a RedisQueue. Zero values fall back to the defaults below.
type Options struct {
	// Name selects the queue; it is part of every key.
	Name string
	// Visibility is how long a claim holds a job before the reaper hands it
	// out again.
	Visibility time.Duration
	// StateTTL bounds how long job state hashes and attempt counters live.
	StateTTL time.Duration
	// DeadCap caps the dead list length.
	DeadCap int64
}

// RedisQueue is the Queue implementation backed by Redis lists and one zset.
type RedisQueue struct {
	rdb *redis.Client
	log *logger.Logger

	name       string
	visibility time.Duration
	stateTTL   time.Duration
	deadCap    int64
}

// NewRedisQueue Constructor
func NewRedisQueue(rdb *redis.Client, log *logger.Logger, opts Options) *RedisQueue {
	if opts.Name == "" {
		opts.Name = "llm"
	}
	if opts.Visibility <= 0 {
		opts.Visibility = time.Hour
	}
	if opts.StateTTL <= 0 {
		opts.StateTTL = time.Hour
	}
	if opts.DeadCap <= 0 {
		opts.DeadCap = 1000
	}
	return &RedisQueue{
		rdb:        rdb,
		log:        log,
		name:       opts.Name,
		visibility: opts.Visibility,
		stateTTL:   opts.StateTTL,
		deadCap:    opts.DeadCap,
	}
}

func (q *RedisQueue) keyPending() string    { return "queue:" + q.name }
func (q *RedisQueue) keyProcessing() string { return "queue:" + q.name + ":processing" }
func (q *RedisQueue) keyDelayed() string    { return "queue:" + q.name + ":delayed" }
func (q *RedisQueue) keyDead() string       { return "queue:" + q.name + ":dead" }
func (q *RedisQueue) keyClaim(jobID string) string {
	return "queue:" + q.name + ":claim:" + jobID
}
func (q *RedisQueue) keyAttempts(jobID string) string {
	return "queue:" + q.name + ":attempts:" + jobID
}
func (q *RedisQueue) keyJob(jobID string) string {
	return "queue:" + q.name + ":job:" + jobID
}

// Enqueue validates and pushes a job onto the pending list.
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := q.rdb.LPush(ctx, q.keyPending(), raw).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	q.setJobState(ctx, job.ID, StatePending, 0, "")
	return nil
}

// Claim blocks up to wait for a job, moving it onto the processing list and
// stamping a claim marker. It returns (nil, nil) when the wait elapses with
// nothing pending.
func (q *RedisQueue) Claim(ctx context.Context, wait time.Duration) (*Delivery, error) {
	raw, err := q.rdb.BLMove(ctx, q.keyPending(), q.keyProcessing(), "RIGHT", "LEFT", wait).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil || job.ID == "" {
		// A payload we cannot parse can never succeed; bury it right away.
		q.buryRaw(ctx, raw, "malformed payload")
		q.log.Warn("dead-lettered malformed job payload", "queue", q.name)
		return nil, nil
	}

	attempt, err := q.rdb.Incr(ctx, q.keyAttempts(job.ID)).Result()
	if err != nil {
		return nil, fmt.Errorf("claim job %s: count attempt: %w", job.ID, err)
	}
	q.rdb.Expire(ctx, q.keyAttempts(job.ID), q.stateTTL)

	if err := q.rdb.Set(ctx, q.keyClaim(job.ID), "1", q.visibility).Err(); err != nil {
		return nil, fmt.Errorf("claim job %s: set marker: %w", job.ID, err)
	}
	q.setJobState(ctx, job.ID, StateStarted, int(attempt), "")

	return &Delivery{Job: &job, Attempt: int(attempt), raw: raw}, nil
}

// Ack settles a delivery as done: the job leaves the processing list and its
// claim and attempt counter are dropped.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.rdb.LRem(ctx, q.keyProcessing(), 1, d.raw).Err(); err != nil {
		return fmt.Errorf("ack job %s: %w", d.Job.ID, err)
	}
	q.rdb.Del(ctx, q.keyClaim(d.Job.ID), q.keyAttempts(d.Job.ID))
	q.setJobState(ctx, d.Job.ID, StateSuccess, d.Attempt, "")
	return nil
}

// NackRetry reschedules the delivery after delay. The attempt counter is kept
// so the next claim sees the full delivery count.
func (q *RedisQueue) NackRetry(ctx context.Context, d *Delivery, delay time.Duration) error {
	if err := q.rdb.LRem(ctx, q.keyProcessing(), 1, d.raw).Err(); err != nil {
		return fmt.Errorf("retry job %s: %w", d.Job.ID, err)
	}
	q.rdb.Del(ctx, q.keyClaim(d.Job.ID))

	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.rdb.ZAdd(ctx, q.keyDelayed(), redis.Z{Score: due, Member: d.raw}).Err(); err != nil {
		return fmt.Errorf("retry job %s: schedule: %w", d.Job.ID, err)
	}
	q.setJobState(ctx, d.Job.ID, StateRetry, d.Attempt, "")
	return nil
}

// NackDead buries the delivery on the dead list with a reason.
func (q *RedisQueue) NackDead(ctx context.Context, d *Delivery, reason string) error {
	if err := q.rdb.LRem(ctx, q.keyProcessing(), 1, d.raw).Err(); err != nil {
		return fmt.Errorf("bury job %s: %w", d.Job.ID, err)
	}
	q.rdb.Del(ctx, q.keyClaim(d.Job.ID), q.keyAttempts(d.Job.ID))
	q.buryRaw(ctx, d.raw, reason)
	q.setJobState(ctx, d.Job.ID, StateFailure, d.Attempt, reason)
	return nil
}

type deadEntry struct {
	Payload  string    `json:"payload"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

func (q *RedisQueue) buryRaw(ctx context.Context, raw, reason string) {
	q.rdb.LRem(ctx, q.keyProcessing(), 1, raw)
	entry, _ := json.Marshal(deadEntry{Payload: raw, Reason: reason, FailedAt: time.Now().UTC()})
	q.rdb.LPush(ctx, q.keyDead(), entry)
	q.rdb.LTrim(ctx, q.keyDead(), 0, q.deadCap-1)
}

// JobState reads the transport-side state of a job. IDs the transport has
// never seen (or whose state already aged out) read as PENDING.
func (q *RedisQueue) JobState(ctx context.Context, jobID string) (*JobStatus, error) {
	fields, err := q.rdb.HGetAll(ctx, q.keyJob(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("job state %s: %w", jobID, err)
	}
	status := &JobStatus{JobID: jobID, State: StatePending}
	if len(fields) == 0 {
		return status, nil
	}
	if v := fields["state"]; v != "" {
		status.State = v
	}
	if v := fields["attempts"]; v != "" {
		status.Attempts, _ = strconv.Atoi(v)
	}
	status.Reason = fields["reason"]
	return status, nil
}

// Stats counts jobs per stage.
func (q *RedisQueue) Stats(ctx context.Context) (*Stats, error) {
	pending, err := q.rdb.LLen(ctx, q.keyPending()).Result()
	if err != nil {
		return nil, err
	}
	processing, err := q.rdb.LLen(ctx, q.keyProcessing()).Result()
	if err != nil {
		return nil, err
	}
	delayed, err := q.rdb.ZCard(ctx, q.keyDelayed()).Result()
	if err != nil {
		return nil, err
	}
	dead, err := q.rdb.LLen(ctx, q.keyDead()).Result()
	if err != nil {
		return nil, err
	}
	return &Stats{Pending: pending, Processing: processing, Delayed: delayed, Dead: dead}, nil
}

func (q *RedisQueue) setJobState(ctx context.Context, jobID, state string, attempts int, reason string) {
	key := q.keyJob(jobID)
	fields := map[string]interface{}{
		"state":      state,
		"attempts":   attempts,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if reason != "" {
		fields["reason"] = reason
	}
	if err := q.rdb.HSet(ctx, key, fields).Err(); err != nil {
		q.log.Warn("failed to record job state", "job_id", jobID, "state", state, "error", err)
		return
	}
	q.rdb.Expire(ctx, key, q.stateTTL)
}

// RunMaintenance promotes due retries and reclaims expired claims until ctx
// is cancelled. Run it from one goroutine per worker process; the promotion
// step is safe to run concurrently because ZREM decides a single winner.
func (q *RedisQueue) RunMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := q.PromoteDue(ctx); err != nil {
				q.log.Error("promote delayed jobs", "error", err)
			} else if n > 0 {
				q.log.Debug("promoted delayed jobs", "count", n)
			}
			if n, err := q.ReapExpired(ctx); err != nil {
				q.log.Error("reap expired claims", "error", err)
			} else if n > 0 {
				q.log.Warn("requeued jobs with expired claims", "count", n)
			}
		}
	}
}

// PromoteDue moves retry-scheduled jobs whose delay has elapsed back onto the
// pending list.
func (q *RedisQueue) PromoteDue(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := q.rdb.ZRangeByScore(ctx, q.keyDelayed(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, raw := range due {
		removed, err := q.rdb.ZRem(ctx, q.keyDelayed(), raw).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			// Another promoter won this member.
			continue
		}
		if err := q.rdb.LPush(ctx, q.keyPending(), raw).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// ReapExpired requeues processing-list jobs whose claim marker has expired,
// which is how work stranded by a crashed worker gets redelivered.
func (q *RedisQueue) ReapExpired(ctx context.Context) (int, error) {
	entries, err := q.rdb.LRange(ctx, q.keyProcessing(), 0, -1).Result()
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, raw := range entries {
		var probe struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal([]byte(raw), &probe); err != nil || probe.ID == "" {
			q.buryRaw(ctx, raw, "malformed payload")
			continue
		}

		alive, err := q.rdb.Exists(ctx, q.keyClaim(probe.ID)).Result()
		if err != nil {
			return reaped, err
		}
		if alive > 0 {
			continue
		}

		removed, err := q.rdb.LRem(ctx, q.keyProcessing(), 1, raw).Result()
		if err != nil {
			return reaped, err
		}
		if removed == 0 {
			// The owning worker settled it between our scan and now.
			continue
		}
		if err := q.rdb.LPush(ctx, q.keyPending(), raw).Err(); err != nil {
			return reaped, err
		}
		reaped++
	}
	return reaped, nil
}
