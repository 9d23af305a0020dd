package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contentforge/api/internal/model"
)

// MemoryContentStore keeps records in process memory. Used when no MongoDB
// URI is configured and in tests.
type MemoryContentStore struct {
	mu       sync.RWMutex
	contents map[string]*model.Content
	now      func() time.Time
}

func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{
		contents: make(map[string]*model.Content),
		now:      time.Now,
	}
}

func (s *MemoryContentStore) Create(ctx context.Context, content *model.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if content.ID == "" {
		content.ID = uuid.New().String()
	}
	now := s.now()
	content.CreatedAt = now
	content.UpdatedAt = now
	if content.Status == "" {
		content.Status = model.ContentStatusDraft
	}
	if content.GenerationStatus == "" {
		content.GenerationStatus = model.GenerationStatusPending
	}

	cp := *content
	s.contents[content.ID] = &cp
	return nil
}

func (s *MemoryContentStore) Get(ctx context.Context, id string) (*model.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contents[id]
	if !ok || c.IsDeleted {
		return nil, model.ErrContentNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryContentStore) List(ctx context.Context, userID string, filter model.ContentListFilter) ([]*model.Content, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*model.Content
	for _, c := range s.contents {
		if c.UserID != userID || c.IsDeleted {
			continue
		}
		if filter.ContentType != "" && c.ContentType != filter.ContentType {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.GenerationStatus != "" && c.GenerationStatus != filter.GenerationStatus {
			continue
		}
		cp := *c
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	page, limit := normalizePage(filter)
	start := (page - 1) * limit
	if start >= len(matched) {
		return []*model.Content{}, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *MemoryContentStore) Update(ctx context.Context, id string, req *model.UpdateContentRequest) error {
	return s.update(id, func(c *model.Content) {
		if req.Title != nil {
			c.Title = *req.Title
		}
		if req.ContentType != nil {
			c.ContentType = *req.ContentType
		}
		if req.Prompt != nil {
			c.Prompt = *req.Prompt
		}
		if req.GeneratedText != nil {
			c.GeneratedText = *req.GeneratedText
		}
		if req.Status != nil {
			c.Status = *req.Status
		}
	})
}

func (s *MemoryContentStore) SetJobID(ctx context.Context, id, jobID string) error {
	return s.update(id, func(c *model.Content) {
		c.JobID = jobID
	})
}

func (s *MemoryContentStore) MarkPending(ctx context.Context, id string) error {
	var err error
	if uerr := s.update(id, func(c *model.Content) {
		if !c.GenerationStatus.IsTerminal() {
			err = model.ErrGenerationInProgress
			return
		}
		c.GenerationStatus = model.GenerationStatusPending
		c.FailureReason = ""
	}); uerr != nil {
		return uerr
	}
	return err
}

func (s *MemoryContentStore) RevertPending(ctx context.Context, id string, status model.GenerationStatus, reason string) error {
	err := s.update(id, func(c *model.Content) {
		if c.GenerationStatus != model.GenerationStatusPending {
			return
		}
		c.GenerationStatus = status
		c.FailureReason = ""
		if status == model.GenerationStatusFailed {
			c.FailureReason = reason
		}
	})
	if errors.Is(err, model.ErrContentNotFound) {
		return nil
	}
	return err
}

func (s *MemoryContentStore) MarkProcessing(ctx context.Context, id string) error {
	return s.update(id, func(c *model.Content) {
		c.GenerationStatus = model.GenerationStatusProcessing
		c.FailureReason = ""
	})
}

func (s *MemoryContentStore) MarkCompleted(ctx context.Context, id, generatedText string) error {
	return s.update(id, func(c *model.Content) {
		c.GeneratedText = generatedText
		c.GenerationStatus = model.GenerationStatusCompleted
		c.FailureReason = ""
	})
}

func (s *MemoryContentStore) MarkFailed(ctx context.Context, id, reason string) error {
	return s.update(id, func(c *model.Content) {
		c.GenerationStatus = model.GenerationStatusFailed
		c.FailureReason = reason
	})
}

func (s *MemoryContentStore) SoftDelete(ctx context.Context, id string) error {
	return s.update(id, func(c *model.Content) {
		c.IsDeleted = true
	})
}

func (s *MemoryContentStore) update(id string, fn func(c *model.Content)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contents[id]
	if !ok || c.IsDeleted {
		return model.ErrContentNotFound
	}
	fn(c)
	c.UpdatedAt = s.now()
	return nil
}
