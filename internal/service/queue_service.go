package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/contentforge/api/internal/config"
	"github.com/contentforge/api/internal/metrics"
	"github.com/contentforge/api/internal/model"
	"github.com/contentforge/api/internal/store"
)

// TaskEnqueuer is the part of *asynq.Client used to submit jobs
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskInspector is the part of *asynq.Inspector used to read job state
type TaskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// GenerationLock guards against two live jobs for the same content
type GenerationLock interface {
	Acquire(ctx context.Context, contentID string) (bool, error)
	Release(ctx context.Context, contentID string) error
}

// RetryDelay returns asynq's backoff: base doubled for every retry already made
func RetryDelay(base time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		if n < 0 {
			n = 0
		}
		if n > 20 {
			n = 20
		}
		return base * time.Duration(1<<uint(n))
	}
}

// QueueService submits generation jobs and answers job status queries
type QueueService struct {
	enqueuer  TaskEnqueuer
	inspector TaskInspector
	contents  store.ContentStore
	lock      GenerationLock
	cfg       config.QueueConfig
	taskTTL   time.Duration
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// NewQueueService wires the broker client and inspector. lock may be nil.
func NewQueueService(
	enqueuer TaskEnqueuer,
	inspector TaskInspector,
	contents store.ContentStore,
	lock GenerationLock,
	cfg config.QueueConfig,
	taskTimeout time.Duration,
	log *slog.Logger,
	m *metrics.Metrics,
) *QueueService {
	return &QueueService{
		enqueuer:  enqueuer,
		inspector: inspector,
		contents:  contents,
		lock:      lock,
		cfg:       cfg,
		taskTTL:   taskTimeout,
		log:       log.With("component", "queue"),
		metrics:   m,
	}
}

// Submit enqueues a generation job and returns the broker-assigned id. The
// content record is not touched.
func (s *QueueService) Submit(ctx context.Context, payload model.GenerationJobPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, payload.ContentID)
		if err != nil {
			s.metrics.JobEnqueued("error")
			return "", fmt.Errorf("%w: %v", model.ErrQueueUnavailable, err)
		}
		if !acquired {
			s.metrics.JobEnqueued("conflict")
			return "", model.ErrGenerationInProgress
		}
	}

	task := asynq.NewTask(model.TaskTypeContentGeneration, data)
	info, err := s.enqueuer.EnqueueContext(ctx, task, s.enqueueOptions()...)
	if err != nil {
		s.metrics.JobEnqueued("error")
		s.log.Error("Failed to enqueue generation job", "contentId", payload.ContentID, "error", err)
		if s.lock != nil {
			if rerr := s.lock.Release(context.WithoutCancel(ctx), payload.ContentID); rerr != nil {
				s.log.Warn("Failed to release generation lock", "contentId", payload.ContentID, "error", rerr)
			}
		}
		return "", fmt.Errorf("%w: %v", model.ErrQueueUnavailable, err)
	}

	s.metrics.JobEnqueued("ok")
	s.log.Info("Content generation job added to queue",
		"jobId", info.ID,
		"contentId", payload.ContentID,
		"processAt", info.NextProcessAt,
	)
	return info.ID, nil
}

func (s *QueueService) enqueueOptions() []asynq.Option {
	opts := []asynq.Option{
		asynq.Queue(s.cfg.Name),
		asynq.MaxRetry(s.cfg.MaxAttempts - 1),
	}
	if s.cfg.InitialDelay > 0 {
		opts = append(opts, asynq.ProcessIn(s.cfg.InitialDelay))
	}
	if s.cfg.Retention > 0 {
		// Keep finished jobs visible to status queries
		opts = append(opts, asynq.Retention(s.cfg.Retention))
	}
	if s.taskTTL > 0 {
		opts = append(opts, asynq.Timeout(s.taskTTL))
	}
	return opts
}

// GetStatus reports a job's status, letting a terminal content record
// override what the broker says
func (s *QueueService) GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	resp, _, err := s.getStatus(ctx, jobID)
	return resp, err
}

// GetStatusForUser is GetStatus restricted to the content's owner
func (s *QueueService) GetStatusForUser(ctx context.Context, jobID, userID string) (*model.JobStatusResponse, error) {
	resp, content, err := s.getStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if content.UserID != userID {
		s.log.Warn("Unauthorized job status request", "jobId", jobID, "userId", userID)
		return nil, model.ErrForbidden
	}
	return resp, nil
}

func (s *QueueService) getStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, *model.Content, error) {
	info, err := s.inspector.GetTaskInfo(s.cfg.Name, jobID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, nil, model.ErrJobNotFound
		}
		return nil, nil, fmt.Errorf("%w: %v", model.ErrQueueUnavailable, err)
	}

	var payload model.GenerationJobPayload
	if err := json.Unmarshal(info.Payload, &payload); err != nil {
		return nil, nil, fmt.Errorf("failed to decode job payload: %w", err)
	}

	content, err := s.contents.Get(ctx, payload.ContentID)
	if err != nil {
		if errors.Is(err, model.ErrContentNotFound) {
			s.log.Warn("Content not found for job", "jobId", jobID, "contentId", payload.ContentID)
		}
		return nil, nil, err
	}

	paused := false
	if info.State == asynq.TaskStatePending {
		if qi, err := s.inspector.GetQueueInfo(s.cfg.Name); err == nil {
			paused = qi.Paused
		}
	}

	brokerState := MapBrokerState(info, paused)
	status := ResolveStatus(brokerState, content.GenerationStatus)

	resp := &model.JobStatusResponse{
		JobID:         jobID,
		Status:        status,
		FailureReason: content.FailureReason,
	}
	if status == model.GenerationStatusFailed && resp.FailureReason == "" {
		resp.FailureReason = info.LastErr
	}
	if status == model.GenerationStatusCompleted {
		resp.Content = &model.JobContentDetail{
			ID:            content.ID,
			Title:         content.Title,
			GeneratedText: content.GeneratedText,
			ContentType:   content.ContentType,
			Prompt:        content.Prompt,
		}
	}
	return resp, content, nil
}

// MapBrokerState translates an asynq task into the broker vocabulary
func MapBrokerState(info *asynq.TaskInfo, queuePaused bool) model.BrokerState {
	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateAggregating:
		if queuePaused {
			return model.BrokerStatePaused
		}
		return model.BrokerStateWaiting
	case asynq.TaskStateScheduled, asynq.TaskStateRetry:
		return model.BrokerStateDelayed
	case asynq.TaskStateActive:
		if info.IsOrphaned {
			return model.BrokerStateStuck
		}
		return model.BrokerStateActive
	case asynq.TaskStateCompleted:
		return model.BrokerStateCompleted
	case asynq.TaskStateArchived:
		return model.BrokerStateFailed
	default:
		return model.BrokerStateWaiting
	}
}

// ResolveStatus combines the broker state with the record's own status. A
// completed or failed record always wins.
func ResolveStatus(state model.BrokerState, recordStatus model.GenerationStatus) model.GenerationStatus {
	if recordStatus.IsTerminal() {
		return recordStatus
	}

	switch state {
	case model.BrokerStateWaiting, model.BrokerStateDelayed, model.BrokerStatePaused:
		return model.GenerationStatusPending
	case model.BrokerStateActive:
		return model.GenerationStatusProcessing
	case model.BrokerStateCompleted:
		return model.GenerationStatusCompleted
	case model.BrokerStateFailed, model.BrokerStateStuck:
		return model.GenerationStatusFailed
	default:
		return model.GenerationStatusPending
	}
}

// RedisGenerationLock implements GenerationLock with SET NX
type RedisGenerationLock struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisGenerationLock(client *redis.Client, ttl time.Duration) *RedisGenerationLock {
	return &RedisGenerationLock{redis: client, ttl: ttl}
}

func lockKey(contentID string) string {
	return "generation:lock:" + contentID
}

func (l *RedisGenerationLock) Acquire(ctx context.Context, contentID string) (bool, error) {
	return l.redis.SetNX(ctx, lockKey(contentID), time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
}

func (l *RedisGenerationLock) Release(ctx context.Context, contentID string) error {
	return l.redis.Del(ctx, lockKey(contentID)).Err()
}
