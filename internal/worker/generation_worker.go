package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/contentforge/api/internal/client"
	"github.com/contentforge/api/internal/metrics"
	"github.com/contentforge/api/internal/model"
	"github.com/contentforge/api/internal/service"
	"github.com/contentforge/api/internal/store"
)

const publishTimeout = 5 * time.Second

// EventPublisher sends lifecycle events to the bus
type EventPublisher interface {
	Publish(ctx context.Context, channel, userID string, payload interface{}) error
}

// GenerationWorker processes content generation jobs
type GenerationWorker struct {
	contents  store.ContentStore
	generator client.Generator
	events    EventPublisher
	lock      service.GenerationLock
	log       *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewGenerationWorker creates a new generation worker. lock and m may be nil.
func NewGenerationWorker(
	contents store.ContentStore,
	generator client.Generator,
	events EventPublisher,
	lock service.GenerationLock,
	log *slog.Logger,
	m *metrics.Metrics,
) *GenerationWorker {
	return &GenerationWorker{
		contents:  contents,
		generator: generator,
		events:    events,
		lock:      lock,
		log:       log.With("component", "worker"),
		metrics:   m,
		now:       time.Now,
	}
}

// Register binds the worker to its task type
func (w *GenerationWorker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(model.TaskTypeContentGeneration, w.ProcessTask)
}

// ProcessTask handles one delivery of a generation task from asynq
func (w *GenerationWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.GenerationJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.metrics.JobProcessed("skipped")
		return fmt.Errorf("failed to unmarshal generation payload: %v: %w", err, asynq.SkipRetry)
	}

	jobID, _ := asynq.GetTaskID(ctx)
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	return w.Process(ctx, jobID, payload, retried >= maxRetry)
}

// Process runs one attempt of the generation state machine. Returning an
// error hands the job back to the broker for retry; finalAttempt tells the
// worker no further retry will follow.
func (w *GenerationWorker) Process(ctx context.Context, jobID string, payload model.GenerationJobPayload, finalAttempt bool) (err error) {
	log := w.log.With("jobId", jobID, "contentId", payload.ContentID)
	log.Info("Processing content generation job", "contentType", payload.ContentType, "final", finalAttempt)

	defer func() {
		if err == nil || finalAttempt || errors.Is(err, asynq.SkipRetry) {
			w.releaseLock(ctx, payload.ContentID)
		}
		switch {
		case err == nil:
			w.metrics.JobProcessed("completed")
		case errors.Is(err, asynq.SkipRetry):
			w.metrics.JobProcessed("skipped")
		case finalAttempt:
			w.metrics.JobProcessed("failed")
		default:
			w.metrics.JobProcessed("retry")
		}
	}()

	content, err := w.contents.Get(ctx, payload.ContentID)
	if err != nil {
		if errors.Is(err, model.ErrContentNotFound) {
			log.Error("Content not found for generation job")
			return fmt.Errorf("%w: %w", model.ErrContentNotFound, asynq.SkipRetry)
		}
		return &model.PersistenceError{Op: "load content", Err: err}
	}

	if err := w.contents.MarkProcessing(ctx, content.ID); err != nil {
		log.Error("Failed to mark content as processing", "error", err)
		return &model.PersistenceError{Op: "mark content processing", Err: err}
	}

	w.publish(ctx, model.EventGenerationStarted, content.UserID, model.GenerationStartedPayload{
		ContentID: content.ID,
		JobID:     jobID,
		Status:    model.GenerationStatusProcessing,
		Timestamp: w.now(),
	})

	started := time.Now()
	text, genErr := w.generator.Generate(ctx, payload.Prompt, payload.ContentType)
	w.metrics.ObserveGeneration(w.generator.Name(), time.Since(started))
	if genErr == nil && strings.TrimSpace(text) == "" {
		genErr = model.ErrEmptyGenerationResult
	}
	if genErr != nil {
		return w.fail(ctx, log, jobID, content.ID, payload.UserID, genErr)
	}

	if err := w.contents.MarkCompleted(ctx, content.ID, text); err != nil {
		return w.fail(ctx, log, jobID, content.ID, payload.UserID, &model.PersistenceError{Op: "save generated content", Err: err})
	}

	w.publish(ctx, model.EventGenerationCompleted, content.UserID, model.GenerationCompletedPayload{
		ContentID:     content.ID,
		JobID:         jobID,
		Status:        model.GenerationStatusCompleted,
		Title:         content.Title,
		ContentType:   content.ContentType,
		GeneratedText: text,
		Timestamp:     w.now(),
	})

	log.Info("Content generation completed", "length", len(text))
	return nil
}

// fail records the failure on the content record, publishes the Failed
// event and returns cause so the broker can retry
func (w *GenerationWorker) fail(ctx context.Context, log *slog.Logger, jobID, contentID, userID string, cause error) error {
	var perr *model.GenerationProviderError
	if errors.As(cause, &perr) && perr.NeedsAlert() {
		log.Error("Generation provider needs attention", "kind", perr.Kind, "error", cause, "alert", true)
	} else {
		log.Error("Content generation failed", "error", cause)
	}

	reason := cause.Error()
	if err := w.contents.MarkFailed(ctx, contentID, reason); err != nil {
		log.Error("Failed to mark content as failed, dropping failed event", "error", err)
		return errors.Join(cause, &model.PersistenceError{Op: "mark content failed", Err: err})
	}

	if userID == "" {
		content, err := w.contents.Get(ctx, contentID)
		if err != nil {
			log.Warn("Failed to resolve content owner, dropping failed event", "error", err)
			return cause
		}
		userID = content.UserID
	}

	w.publish(ctx, model.EventGenerationFailed, userID, model.GenerationFailedPayload{
		ContentID:     contentID,
		JobID:         jobID,
		Status:        model.GenerationStatusFailed,
		FailureReason: reason,
		Timestamp:     w.now(),
	})
	return cause
}

// publish sends an event and discards any error
func (w *GenerationWorker) publish(ctx context.Context, channel, userID string, payload interface{}) {
	if w.events == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := w.events.Publish(pctx, channel, userID, payload); err != nil {
		w.log.Warn("Failed to publish lifecycle event", "channel", channel, "userId", userID, "error", err)
	}
}

func (w *GenerationWorker) releaseLock(ctx context.Context, contentID string) {
	if w.lock == nil {
		return
	}
	if err := w.lock.Release(context.WithoutCancel(ctx), contentID); err != nil {
		w.log.Warn("Failed to release generation lock", "contentId", contentID, "error", err)
	}
}
