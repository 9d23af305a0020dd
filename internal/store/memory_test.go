package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentforge/api/internal/model"
)

func newTestContent(userID string, ct model.ContentType) *model.Content {
	return &model.Content{
		UserID:      userID,
		Title:       "Launch",
		ContentType: ct,
		Prompt:      "write something",
	}
}

func TestMemoryContentStore_CreateDefaults(t *testing.T) {
	s := NewMemoryContentStore()
	c := newTestContent("u1", model.ContentTypeBlog)

	require.NoError(t, s.Create(context.Background(), c))
	assert.NotEmpty(t, c.ID)

	got, err := s.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ContentStatusDraft, got.Status)
	assert.Equal(t, model.GenerationStatusPending, got.GenerationStatus)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestMemoryContentStore_GetMissing(t *testing.T) {
	s := NewMemoryContentStore()
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrContentNotFound)
	assert.ErrorIs(t, s.MarkProcessing(context.Background(), "nope"), model.ErrContentNotFound)
}

func TestMemoryContentStore_FailureReasonLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContentStore()
	c := newTestContent("u1", model.ContentTypeSocial)
	require.NoError(t, s.Create(ctx, c))

	require.NoError(t, s.MarkFailed(ctx, c.ID, "quota exceeded"))
	got, _ := s.Get(ctx, c.ID)
	assert.Equal(t, model.GenerationStatusFailed, got.GenerationStatus)
	assert.Equal(t, "quota exceeded", got.FailureReason)

	require.NoError(t, s.MarkProcessing(ctx, c.ID))
	got, _ = s.Get(ctx, c.ID)
	assert.Equal(t, model.GenerationStatusProcessing, got.GenerationStatus)
	assert.Empty(t, got.FailureReason)

	require.NoError(t, s.MarkCompleted(ctx, c.ID, "text"))
	got, _ = s.Get(ctx, c.ID)
	assert.Equal(t, model.GenerationStatusCompleted, got.GenerationStatus)
	assert.Equal(t, "text", got.GeneratedText)
	assert.Empty(t, got.FailureReason)
}

func TestMemoryContentStore_ListFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContentStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Create(ctx, newTestContent("u1", model.ContentTypeBlog)))
	}
	require.NoError(t, s.Create(ctx, newTestContent("u1", model.ContentTypeProduct)))
	require.NoError(t, s.Create(ctx, newTestContent("u2", model.ContentTypeBlog)))

	all, total, err := s.List(ctx, "u1", model.ContentListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, all, 4)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt))

	blogs, total, err := s.List(ctx, "u1", model.ContentListFilter{ContentType: model.ContentTypeBlog, Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, blogs, 1)

	empty, _, err := s.List(ctx, "u1", model.ContentListFilter{Page: 9, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryContentStore_SoftDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContentStore()
	c := newTestContent("u1", model.ContentTypeBlog)
	require.NoError(t, s.Create(ctx, c))

	require.NoError(t, s.SoftDelete(ctx, c.ID))

	_, err := s.Get(ctx, c.ID)
	assert.ErrorIs(t, err, model.ErrContentNotFound)

	list, total, err := s.List(ctx, "u1", model.ContentListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
}

func TestMemoryContentStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContentStore()
	c := newTestContent("u1", model.ContentTypeBlog)
	require.NoError(t, s.Create(ctx, c))

	got, _ := s.Get(ctx, c.ID)
	got.Title = "mutated"

	again, _ := s.Get(ctx, c.ID)
	assert.Equal(t, "Launch", again.Title)
}

func TestMemoryContentStore_Update(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContentStore()
	c := newTestContent("u1", model.ContentTypeBlog)
	require.NoError(t, s.Create(ctx, c))

	title := "Renamed"
	status := model.ContentStatusPublished
	require.NoError(t, s.Update(ctx, c.ID, &model.UpdateContentRequest{Title: &title, Status: &status}))

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, model.ContentStatusPublished, got.Status)
	assert.Equal(t, "write something", got.Prompt)
}

func TestMemoryContentStore_MarkPendingClearsFailure(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContentStore()
	c := newTestContent("u1", model.ContentTypeBlog)
	require.NoError(t, s.Create(ctx, c))
	require.NoError(t, s.MarkFailed(ctx, c.ID, "timeout"))

	require.NoError(t, s.MarkPending(ctx, c.ID))

	got, _ := s.Get(ctx, c.ID)
	assert.Equal(t, model.GenerationStatusPending, got.GenerationStatus)
	assert.Empty(t, got.FailureReason)
}

func TestMemoryContentStore_MarkPendingRequiresTerminal(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContentStore()
	c := newTestContent("u1", model.ContentTypeBlog)
	require.NoError(t, s.Create(ctx, c))
	require.NoError(t, s.MarkProcessing(ctx, c.ID))

	assert.ErrorIs(t, s.MarkPending(ctx, c.ID), model.ErrGenerationInProgress)
	assert.ErrorIs(t, s.MarkPending(ctx, "missing"), model.ErrContentNotFound)

	got, _ := s.Get(ctx, c.ID)
	assert.Equal(t, model.GenerationStatusProcessing, got.GenerationStatus)
}

func TestMemoryContentStore_RevertPending(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContentStore()
	c := newTestContent("u1", model.ContentTypeBlog)
	require.NoError(t, s.Create(ctx, c))
	require.NoError(t, s.MarkFailed(ctx, c.ID, "quota"))
	require.NoError(t, s.MarkPending(ctx, c.ID))

	require.NoError(t, s.RevertPending(ctx, c.ID, model.GenerationStatusFailed, "quota"))
	got, _ := s.Get(ctx, c.ID)
	assert.Equal(t, model.GenerationStatusFailed, got.GenerationStatus)
	assert.Equal(t, "quota", got.FailureReason)

	// a record that already moved on is left alone
	require.NoError(t, s.MarkPending(ctx, c.ID))
	require.NoError(t, s.MarkCompleted(ctx, c.ID, "done"))
	require.NoError(t, s.RevertPending(ctx, c.ID, model.GenerationStatusFailed, "quota"))
	got, _ = s.Get(ctx, c.ID)
	assert.Equal(t, model.GenerationStatusCompleted, got.GenerationStatus)
	assert.Empty(t, got.FailureReason)

	assert.NoError(t, s.RevertPending(ctx, "missing", model.GenerationStatusCompleted, ""))
}
