package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/contentforge/api/internal/client"
	"github.com/contentforge/api/internal/model"
	"github.com/contentforge/api/internal/store"
)

const exportURLExpiry = time.Hour

// JobQueue submits generation jobs
type JobQueue interface {
	Submit(ctx context.Context, payload model.GenerationJobPayload) (string, error)
}

// ContentService handles content records owned by a user
type ContentService struct {
	contents store.ContentStore
	queue    JobQueue
	storage  client.StorageClient
	log      *slog.Logger
}

// NewContentService creates the service. storage may be nil, in which case
// exports return a placeholder URL.
func NewContentService(contents store.ContentStore, queue JobQueue, storage client.StorageClient, log *slog.Logger) *ContentService {
	return &ContentService{
		contents: contents,
		queue:    queue,
		storage:  storage,
		log:      log.With("component", "content"),
	}
}

// Generate creates a pending content record and queues its generation job
func (s *ContentService) Generate(ctx context.Context, userID string, req *model.GenerateContentRequest) (*model.GenerateContentResponse, error) {
	content := &model.Content{
		UserID:           userID,
		Title:            req.Title,
		ContentType:      req.ContentType,
		Prompt:           req.Prompt,
		Status:           model.ContentStatusDraft,
		GenerationStatus: model.GenerationStatusPending,
	}
	if err := s.contents.Create(ctx, content); err != nil {
		return nil, &model.PersistenceError{Op: "create content", Err: err}
	}

	jobID, err := s.submit(ctx, content)
	if err != nil {
		if ferr := s.contents.MarkFailed(ctx, content.ID, "Failed to queue content generation"); ferr != nil {
			s.log.Error("Failed to mark unqueued content as failed", "contentId", content.ID, "error", ferr)
		}
		return nil, err
	}

	s.log.Info("Content generation queued", "contentId", content.ID, "jobId", jobID, "userId", userID)
	return &model.GenerateContentResponse{
		JobID:            jobID,
		ContentID:        content.ID,
		GenerationStatus: model.GenerationStatusPending,
		CreatedAt:        content.CreatedAt,
	}, nil
}

// Regenerate queues a fresh generation job for an existing record. The
// record is moved back to pending before the job exists and restored if the
// job cannot be queued.
func (s *ContentService) Regenerate(ctx context.Context, userID, contentID string) (*model.GenerateContentResponse, error) {
	content, err := s.Get(ctx, userID, contentID)
	if err != nil {
		return nil, err
	}
	if !content.GenerationStatus.IsTerminal() {
		return nil, model.ErrGenerationInProgress
	}

	if err := s.contents.MarkPending(ctx, content.ID); err != nil {
		if errors.Is(err, model.ErrGenerationInProgress) || errors.Is(err, model.ErrContentNotFound) {
			return nil, err
		}
		return nil, &model.PersistenceError{Op: "reset content", Err: err}
	}

	jobID, err := s.submit(ctx, content)
	if err != nil {
		if rerr := s.contents.RevertPending(ctx, content.ID, content.GenerationStatus, content.FailureReason); rerr != nil {
			s.log.Error("Failed to restore content after rejected regeneration", "contentId", content.ID, "error", rerr)
		}
		return nil, err
	}

	s.log.Info("Content regeneration queued", "contentId", content.ID, "jobId", jobID, "userId", userID)
	return &model.GenerateContentResponse{
		JobID:            jobID,
		ContentID:        content.ID,
		GenerationStatus: model.GenerationStatusPending,
		CreatedAt:        content.CreatedAt,
	}, nil
}

// submit enqueues the job for a pending record and stores its id
func (s *ContentService) submit(ctx context.Context, content *model.Content) (string, error) {
	jobID, err := s.queue.Submit(ctx, model.GenerationJobPayload{
		UserID:      content.UserID,
		ContentID:   content.ID,
		ContentType: content.ContentType,
		Prompt:      content.Prompt,
		Title:       content.Title,
	})
	if err != nil {
		return "", err
	}

	if err := s.contents.SetJobID(ctx, content.ID, jobID); err != nil {
		// The job is queued; status queries still work through the job id
		s.log.Error("Failed to store job id on content", "contentId", content.ID, "jobId", jobID, "error", err)
	}
	return jobID, nil
}

// Create stores manually written content
func (s *ContentService) Create(ctx context.Context, userID string, req *model.CreateContentRequest) (*model.Content, error) {
	status := req.Status
	if status == "" {
		status = model.ContentStatusDraft
	}
	content := &model.Content{
		UserID:           userID,
		Title:            req.Title,
		ContentType:      req.ContentType,
		Prompt:           req.Prompt,
		GeneratedText:    req.GeneratedText,
		Status:           status,
		GenerationStatus: model.GenerationStatusCompleted,
	}
	if err := s.contents.Create(ctx, content); err != nil {
		return nil, &model.PersistenceError{Op: "create content", Err: err}
	}
	s.log.Info("New content created", "contentId", content.ID, "userId", userID)
	return content, nil
}

// Get returns one record after checking ownership
func (s *ContentService) Get(ctx context.Context, userID, contentID string) (*model.Content, error) {
	content, err := s.contents.Get(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if content.UserID != userID {
		s.log.Warn("Unauthorized access attempt to content", "contentId", contentID, "userId", userID)
		return nil, model.ErrForbidden
	}
	return content, nil
}

// List returns a page of the user's records
func (s *ContentService) List(ctx context.Context, userID string, filter model.ContentListFilter) (*model.ContentListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 10
	}

	contents, total, err := s.contents.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	return &model.ContentListResponse{
		Contents: contents,
		Pagination: model.Pagination{
			Total:      total,
			Page:       filter.Page,
			Limit:      filter.Limit,
			TotalPages: int(math.Ceil(float64(total) / float64(filter.Limit))),
		},
	}, nil
}

// Update changes the supplied fields of a record
func (s *ContentService) Update(ctx context.Context, userID, contentID string, req *model.UpdateContentRequest) (*model.Content, error) {
	if _, err := s.Get(ctx, userID, contentID); err != nil {
		return nil, err
	}
	if err := s.contents.Update(ctx, contentID, req); err != nil {
		return nil, err
	}
	s.log.Info("Content updated", "contentId", contentID, "userId", userID)
	return s.contents.Get(ctx, contentID)
}

// Delete soft-deletes a record
func (s *ContentService) Delete(ctx context.Context, userID, contentID string) error {
	if _, err := s.Get(ctx, userID, contentID); err != nil {
		return err
	}
	if err := s.contents.SoftDelete(ctx, contentID); err != nil {
		return err
	}
	s.log.Info("Content soft deleted", "contentId", contentID, "userId", userID)

	if s.storage != nil {
		if err := s.storage.Delete(ctx, exportKey(userID, contentID)); err != nil {
			s.log.Warn("Failed to remove exported file", "contentId", contentID, "error", err)
		}
	}
	return nil
}

// exportKey is the object key of a record's markdown export. Re-exports
// overwrite it.
func exportKey(userID, contentID string) string {
	return fmt.Sprintf("exports/%s/%s.md", userID, contentID)
}

// Export uploads the generated text as markdown and returns a signed URL
func (s *ContentService) Export(ctx context.Context, userID, contentID string) (*model.ContentExportResponse, error) {
	content, err := s.Get(ctx, userID, contentID)
	if err != nil {
		return nil, err
	}
	if content.GenerationStatus != model.GenerationStatusCompleted {
		return nil, model.ErrContentNotCompleted
	}

	body := fmt.Sprintf("# %s\n\n%s\n", content.Title, content.GeneratedText)
	expiresAt := time.Now().Add(exportURLExpiry)

	if s.storage == nil {
		return &model.ContentExportResponse{
			FileURL:   fmt.Sprintf("https://cdn.contentforge.local/exports/%s.md", uuid.New().String()),
			Size:      int64(len(body)),
			Format:    "markdown",
			ExpiresAt: expiresAt,
		}, nil
	}

	key := exportKey(userID, content.ID)
	if _, err := s.storage.Upload(ctx, key, strings.NewReader(body), "text/markdown"); err != nil {
		return nil, fmt.Errorf("failed to upload export: %w", err)
	}
	url, err := s.storage.GetSignedURL(ctx, key, exportURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign export url: %w", err)
	}

	s.log.Info("Content exported", "contentId", content.ID, "key", key)
	return &model.ContentExportResponse{
		FileURL:   url,
		Size:      int64(len(body)),
		Format:    "markdown",
		ExpiresAt: expiresAt,
	}, nil
}
