package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentforge/api/internal/config"
	"github.com/contentforge/api/internal/model"
	"github.com/contentforge/api/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testQueueConfig = config.QueueConfig{
	Name:         "content-generation",
	InitialDelay: time.Minute,
	MaxAttempts:  3,
	BackoffBase:  2 * time.Second,
	Retention:    24 * time.Hour,
}

type fakeEnqueuer struct {
	task *asynq.Task
	opts []asynq.Option
	err  error
	id   string
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.task = task
	f.opts = opts
	id := f.id
	if id == "" {
		id = "job-1"
	}
	return &asynq.TaskInfo{ID: id, Queue: testQueueConfig.Name, Type: task.Type(), Payload: task.Payload()}, nil
}

type fakeInspector struct {
	tasks  map[string]*asynq.TaskInfo
	paused bool
	err    error
}

func (f *fakeInspector) GetTaskInfo(queue, id string) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	info, ok := f.tasks[id]
	if !ok {
		return nil, asynq.ErrTaskNotFound
	}
	return info, nil
}

func (f *fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Paused: f.paused}, nil
}

type fakeLock struct {
	held     map[string]bool
	err      error
	released []string
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: make(map[string]bool)}
}

func (l *fakeLock) Acquire(ctx context.Context, contentID string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.held[contentID] {
		return false, nil
	}
	l.held[contentID] = true
	return true, nil
}

func (l *fakeLock) Release(ctx context.Context, contentID string) error {
	delete(l.held, contentID)
	l.released = append(l.released, contentID)
	return nil
}

func optionValue(opts []asynq.Option, typ asynq.OptionType) (interface{}, bool) {
	for _, o := range opts {
		if o.Type() == typ {
			return o.Value(), true
		}
	}
	return nil, false
}

func TestSubmit_EnqueuesWithDelayAndRetries(t *testing.T) {
	enq := &fakeEnqueuer{id: "abc"}
	svc := NewQueueService(enq, &fakeInspector{}, store.NewMemoryContentStore(), nil, testQueueConfig, 5*time.Minute, testLogger(), nil)

	payload := model.GenerationJobPayload{UserID: "u1", ContentID: "c1", ContentType: model.ContentTypeBlog, Prompt: "p", Title: "t"}
	jobID, err := svc.Submit(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "abc", jobID)

	require.NotNil(t, enq.task)
	assert.Equal(t, model.TaskTypeContentGeneration, enq.task.Type())
	var got model.GenerationJobPayload
	require.NoError(t, json.Unmarshal(enq.task.Payload(), &got))
	assert.Equal(t, payload, got)

	v, ok := optionValue(enq.opts, asynq.MaxRetryOpt)
	require.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = optionValue(enq.opts, asynq.ProcessInOpt)
	require.True(t, ok)
	assert.Equal(t, time.Minute, v)

	v, ok = optionValue(enq.opts, asynq.QueueOpt)
	require.True(t, ok)
	assert.Equal(t, "content-generation", v)

	_, ok = optionValue(enq.opts, asynq.RetentionOpt)
	assert.True(t, ok)
}

func TestSubmit_ZeroDelayOmitsProcessIn(t *testing.T) {
	enq := &fakeEnqueuer{}
	cfg := testQueueConfig
	cfg.InitialDelay = 0
	svc := NewQueueService(enq, &fakeInspector{}, store.NewMemoryContentStore(), nil, cfg, 0, testLogger(), nil)

	_, err := svc.Submit(context.Background(), model.GenerationJobPayload{ContentID: "c1"})
	require.NoError(t, err)

	_, ok := optionValue(enq.opts, asynq.ProcessInOpt)
	assert.False(t, ok)
}

func TestSubmit_BrokerFailureIsQueueUnavailable(t *testing.T) {
	lock := newFakeLock()
	enq := &fakeEnqueuer{err: errors.New("dial tcp: connection refused")}
	svc := NewQueueService(enq, &fakeInspector{}, store.NewMemoryContentStore(), lock, testQueueConfig, 0, testLogger(), nil)

	_, err := svc.Submit(context.Background(), model.GenerationJobPayload{ContentID: "c1"})
	assert.ErrorIs(t, err, model.ErrQueueUnavailable)
	assert.Equal(t, []string{"c1"}, lock.released)
	assert.False(t, lock.held["c1"])
}

func TestSubmit_SingleFlight(t *testing.T) {
	lock := newFakeLock()
	svc := NewQueueService(&fakeEnqueuer{}, &fakeInspector{}, store.NewMemoryContentStore(), lock, testQueueConfig, 0, testLogger(), nil)

	_, err := svc.Submit(context.Background(), model.GenerationJobPayload{ContentID: "c1"})
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), model.GenerationJobPayload{ContentID: "c1"})
	assert.ErrorIs(t, err, model.ErrGenerationInProgress)

	_, err = svc.Submit(context.Background(), model.GenerationJobPayload{ContentID: "c2"})
	assert.NoError(t, err)
}

func TestSubmit_LockErrorIsQueueUnavailable(t *testing.T) {
	lock := newFakeLock()
	lock.err = errors.New("redis down")
	svc := NewQueueService(&fakeEnqueuer{}, &fakeInspector{}, store.NewMemoryContentStore(), lock, testQueueConfig, 0, testLogger(), nil)

	_, err := svc.Submit(context.Background(), model.GenerationJobPayload{ContentID: "c1"})
	assert.ErrorIs(t, err, model.ErrQueueUnavailable)
}

func TestRetryDelay(t *testing.T) {
	delay := RetryDelay(2 * time.Second)
	assert.Equal(t, 2*time.Second, delay(0, nil, nil))
	assert.Equal(t, 4*time.Second, delay(1, nil, nil))
	assert.Equal(t, 8*time.Second, delay(2, nil, nil))
}

func TestMapBrokerState(t *testing.T) {
	tests := []struct {
		name   string
		info   asynq.TaskInfo
		paused bool
		want   model.BrokerState
	}{
		{"pending", asynq.TaskInfo{State: asynq.TaskStatePending}, false, model.BrokerStateWaiting},
		{"pending paused", asynq.TaskInfo{State: asynq.TaskStatePending}, true, model.BrokerStatePaused},
		{"scheduled", asynq.TaskInfo{State: asynq.TaskStateScheduled}, false, model.BrokerStateDelayed},
		{"retry", asynq.TaskInfo{State: asynq.TaskStateRetry}, false, model.BrokerStateDelayed},
		{"active", asynq.TaskInfo{State: asynq.TaskStateActive}, false, model.BrokerStateActive},
		{"orphaned", asynq.TaskInfo{State: asynq.TaskStateActive, IsOrphaned: true}, false, model.BrokerStateStuck},
		{"completed", asynq.TaskInfo{State: asynq.TaskStateCompleted}, false, model.BrokerStateCompleted},
		{"archived", asynq.TaskInfo{State: asynq.TaskStateArchived}, false, model.BrokerStateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tt.info
			assert.Equal(t, tt.want, MapBrokerState(&info, tt.paused))
		})
	}
}

func TestResolveStatus(t *testing.T) {
	tests := []struct {
		state  model.BrokerState
		record model.GenerationStatus
		want   model.GenerationStatus
	}{
		{model.BrokerStateWaiting, model.GenerationStatusPending, model.GenerationStatusPending},
		{model.BrokerStateDelayed, model.GenerationStatusPending, model.GenerationStatusPending},
		{model.BrokerStatePaused, model.GenerationStatusPending, model.GenerationStatusPending},
		{model.BrokerStateActive, model.GenerationStatusProcessing, model.GenerationStatusProcessing},
		{model.BrokerStateCompleted, model.GenerationStatusProcessing, model.GenerationStatusCompleted},
		{model.BrokerStateFailed, model.GenerationStatusProcessing, model.GenerationStatusFailed},
		{model.BrokerStateStuck, model.GenerationStatusProcessing, model.GenerationStatusFailed},
		// Terminal record wins over broker
		{model.BrokerStateActive, model.GenerationStatusCompleted, model.GenerationStatusCompleted},
		{model.BrokerStateDelayed, model.GenerationStatusFailed, model.GenerationStatusFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveStatus(tt.state, tt.record), "%s/%s", tt.state, tt.record)
	}
}

func setupStatusTest(t *testing.T, state asynq.TaskState, mutate func(ctx context.Context, s *store.MemoryContentStore, id string)) (*QueueService, *fakeInspector, *model.Content) {
	t.Helper()
	ctx := context.Background()
	contents := store.NewMemoryContentStore()
	c := &model.Content{UserID: "u1", Title: "T", ContentType: model.ContentTypeBlog, Prompt: "P"}
	require.NoError(t, contents.Create(ctx, c))
	if mutate != nil {
		mutate(ctx, contents, c.ID)
	}

	payload, _ := json.Marshal(model.GenerationJobPayload{UserID: "u1", ContentID: c.ID})
	insp := &fakeInspector{tasks: map[string]*asynq.TaskInfo{
		"job-1": {ID: "job-1", State: state, Payload: payload},
	}}
	svc := NewQueueService(&fakeEnqueuer{}, insp, contents, nil, testQueueConfig, 0, testLogger(), nil)
	return svc, insp, c
}

func TestGetStatus_PendingHasNoContent(t *testing.T) {
	svc, _, _ := setupStatusTest(t, asynq.TaskStateScheduled, nil)

	resp, err := svc.GetStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, model.GenerationStatusPending, resp.Status)
	assert.Nil(t, resp.Content)
}

func TestGetStatus_CompletedRecordOverridesBroker(t *testing.T) {
	svc, _, c := setupStatusTest(t, asynq.TaskStateActive, func(ctx context.Context, s *store.MemoryContentStore, id string) {
		require.NoError(t, s.MarkCompleted(ctx, id, "generated"))
	})

	resp, err := svc.GetStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.GenerationStatusCompleted, resp.Status)
	require.NotNil(t, resp.Content)
	assert.Equal(t, c.ID, resp.Content.ID)
	assert.Equal(t, "generated", resp.Content.GeneratedText)
	assert.Equal(t, "P", resp.Content.Prompt)
}

func TestGetStatus_FailedRecordCarriesReason(t *testing.T) {
	svc, _, _ := setupStatusTest(t, asynq.TaskStateRetry, func(ctx context.Context, s *store.MemoryContentStore, id string) {
		require.NoError(t, s.MarkFailed(ctx, id, "Gemini API quota exceeded"))
	})

	resp, err := svc.GetStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.GenerationStatusFailed, resp.Status)
	assert.Equal(t, "Gemini API quota exceeded", resp.FailureReason)
	assert.Nil(t, resp.Content)
}

func TestGetStatus_PausedQueue(t *testing.T) {
	svc, insp, _ := setupStatusTest(t, asynq.TaskStatePending, nil)
	insp.paused = true

	resp, err := svc.GetStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.GenerationStatusPending, resp.Status)
}

func TestGetStatus_Errors(t *testing.T) {
	t.Run("job not found", func(t *testing.T) {
		svc, _, _ := setupStatusTest(t, asynq.TaskStatePending, nil)
		_, err := svc.GetStatus(context.Background(), "missing")
		assert.ErrorIs(t, err, model.ErrJobNotFound)
	})

	t.Run("content not found", func(t *testing.T) {
		svc, _, _ := setupStatusTest(t, asynq.TaskStatePending, func(ctx context.Context, s *store.MemoryContentStore, id string) {
			require.NoError(t, s.SoftDelete(ctx, id))
		})
		_, err := svc.GetStatus(context.Background(), "job-1")
		assert.ErrorIs(t, err, model.ErrContentNotFound)
	})

	t.Run("broker down", func(t *testing.T) {
		svc, insp, _ := setupStatusTest(t, asynq.TaskStatePending, nil)
		insp.err = errors.New("connection refused")
		_, err := svc.GetStatus(context.Background(), "job-1")
		assert.ErrorIs(t, err, model.ErrQueueUnavailable)
	})
}

func TestGetStatusForUser(t *testing.T) {
	svc, _, _ := setupStatusTest(t, asynq.TaskStateActive, nil)

	resp, err := svc.GetStatusForUser(context.Background(), "job-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, model.GenerationStatusProcessing, resp.Status)

	_, err = svc.GetStatusForUser(context.Background(), "job-1", "intruder")
	assert.ErrorIs(t, err, model.ErrForbidden)
}
