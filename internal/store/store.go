package store

import (
	"context"

	"github.com/contentforge/api/internal/model"
)

// ContentStore persists content records. Lookups of missing or soft-deleted
// records return model.ErrContentNotFound.
type ContentStore interface {
	Create(ctx context.Context, content *model.Content) error
	Get(ctx context.Context, id string) (*model.Content, error)
	List(ctx context.Context, userID string, filter model.ContentListFilter) ([]*model.Content, int64, error)
	Update(ctx context.Context, id string, req *model.UpdateContentRequest) error
	SetJobID(ctx context.Context, id, jobID string) error

	// Generation state transitions. Each clears or sets failureReason so
	// that it is only present while the record is failed.
	//
	// MarkPending only moves a completed or failed record; any other status
	// returns model.ErrGenerationInProgress. RevertPending puts a record that
	// is still pending back to status and is a no-op once it has moved on or
	// is gone.
	MarkPending(ctx context.Context, id string) error
	RevertPending(ctx context.Context, id string, status model.GenerationStatus, reason string) error
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, generatedText string) error
	MarkFailed(ctx context.Context, id, reason string) error

	SoftDelete(ctx context.Context, id string) error
}

// normalizePage applies listing defaults
func normalizePage(f model.ContentListFilter) (page, limit int) {
	page, limit = f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
