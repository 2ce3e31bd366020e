package pipeline_test

import (
	"context"
	"testing"
	"time"

	"chatmind/backend/internal/alerts"
	"chatmind/backend/internal/hub"
	"chatmind/backend/internal/logger"
	"chatmind/backend/internal/pipeline"
	"chatmind/backend/internal/queue"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type dispatcherFixture struct {
	queue    *queue.RedisQueue
	store    *MockStore
	notifier *RecordingNotifier
	disp     *pipeline.Dispatcher
}

func newDispatcherFixture(t *testing.T, maxAttempts int) *dispatcherFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.NewRedisQueue(rdb, logger.NewNop(), queue.Options{})
	store := new(MockStore)
	notifier := &RecordingNotifier{}
	disp := pipeline.NewDispatcher(q, store, notifier, alerts.Nop{}, logger.NewNop(), maxAttempts, 0)
	return &dispatcherFixture{queue: q, store: store, notifier: notifier, disp: disp}
}

// claim enqueues the job and claims it n times, settling intermediate claims
// as retries, so the returned delivery carries Attempt == n.
func (f *dispatcherFixture) claim(t *testing.T, job *queue.Job, n int) *queue.Delivery {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.queue.Enqueue(ctx, job))

	var d *queue.Delivery
	for i := 0; i < n; i++ {
		if i > 0 {
			require.NoError(t, f.queue.NackRetry(ctx, d, 0))
			promoted, err := f.queue.PromoteDue(ctx)
			require.NoError(t, err)
			require.Equal(t, 1, promoted)
		}
		var err error
		d, err = f.queue.Claim(ctx, 100*time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, d)
	}
	require.Equal(t, n, d.Attempt)
	return d
}

func TestDispatcher_AcksFreshSuccess(t *testing.T) {
	f := newDispatcherFixture(t, 3)
	ctx := context.Background()
	job := newTestJob()
	d := f.claim(t, job, 1)
	replyID := uuid.New()

	err := f.disp.Dispatch(ctx, d, pipeline.Outcome{Kind: pipeline.Success, ReplyID: &replyID})
	require.NoError(t, err)

	stats, err := f.queue.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.Processing)
	assert.EqualValues(t, 0, stats.Pending)

	state, err := f.queue.JobState(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateSuccess, state.State)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, hub.EventMessageCompleted, events[0].Type)
	assert.Equal(t, job.UserID, events[0].UserID)
	require.NotNil(t, events[0].ReplyID)
	assert.Equal(t, replyID, *events[0].ReplyID)

	f.store.AssertNotCalled(t, "MarkMessageFailed", mock.Anything, mock.Anything)
}

func TestDispatcher_AcksDuplicateWithoutEvent(t *testing.T) {
	f := newDispatcherFixture(t, 3)
	ctx := context.Background()
	d := f.claim(t, newTestJob(), 1)

	err := f.disp.Dispatch(ctx, d, pipeline.Outcome{Kind: pipeline.Success})
	require.NoError(t, err)

	assert.Empty(t, f.notifier.Events(), "a no-op duplicate must not fire a completion event")
}

func TestDispatcher_RetriesWhileBudgetLasts(t *testing.T) {
	f := newDispatcherFixture(t, 3)
	ctx := context.Background()
	job := newTestJob()
	d := f.claim(t, job, 1)

	err := f.disp.Dispatch(ctx, d, pipeline.Outcome{
		Kind:   pipeline.RetryableFailure,
		Reason: "completion engine timeout",
	})
	require.NoError(t, err)

	stats, err := f.queue.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Delayed, "the job must be parked for redelivery")
	assert.EqualValues(t, 0, stats.Dead)

	state, err := f.queue.JobState(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateRetry, state.State)

	f.store.AssertNotCalled(t, "MarkMessageFailed", mock.Anything, mock.Anything)
	assert.Empty(t, f.notifier.Events(), "retries are invisible to the client until the budget is spent")
}

func TestDispatcher_BuriesOnExhaustedBudget(t *testing.T) {
	f := newDispatcherFixture(t, 3)
	ctx := context.Background()
	job := newTestJob()
	d := f.claim(t, job, 3)

	f.store.On("MarkMessageFailed", job.MessageID, "completion engine timeout after 3 attempts").Return(true, nil)

	err := f.disp.Dispatch(ctx, d, pipeline.Outcome{
		Kind:   pipeline.RetryableFailure,
		Reason: "completion engine timeout",
	})
	require.NoError(t, err)

	stats, err := f.queue.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Dead)
	assert.EqualValues(t, 0, stats.Delayed)

	state, err := f.queue.JobState(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateFailure, state.State)
	assert.Equal(t, "completion engine timeout after 3 attempts", state.Reason)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, hub.EventMessageFailed, events[0].Type)
	assert.Equal(t, "completion engine timeout after 3 attempts", events[0].Reason)

	f.store.AssertExpectations(t)
}

func TestDispatcher_TerminalFailureBuriesImmediately(t *testing.T) {
	f := newDispatcherFixture(t, 3)
	ctx := context.Background()
	job := newTestJob()
	d := f.claim(t, job, 1)

	// The message row does not exist, so marking it FAILED affects nothing
	// and no client event should fire.
	f.store.On("MarkMessageFailed", job.MessageID, "message not found").Return(false, nil)

	err := f.disp.Dispatch(ctx, d, pipeline.Outcome{
		Kind:   pipeline.TerminalFailure,
		Reason: "message not found",
	})
	require.NoError(t, err)

	stats, err := f.queue.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Dead, "terminal failures must not burn retries")

	assert.Empty(t, f.notifier.Events())
	f.store.AssertExpectations(t)
}
