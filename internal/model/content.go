package model

import "time"

// Content is a generated content record owned by a user
type Content struct {
	ID               string           `json:"id"`
	UserID           string           `json:"userId"`
	Title            string           `json:"title"`
	ContentType      ContentType      `json:"contentType"`
	Prompt           string           `json:"prompt"`
	GeneratedText    string           `json:"generatedText"`
	Status           ContentStatus    `json:"status"`
	GenerationStatus GenerationStatus `json:"generationStatus"`
	FailureReason    string           `json:"failureReason,omitempty"`
	JobID            string           `json:"jobId,omitempty"`
	IsDeleted        bool             `json:"-"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// GenerateContentRequest is the body of POST /api/content/generate
type GenerateContentRequest struct {
	Title       string      `json:"title" validate:"required,min=1,max=200"`
	ContentType ContentType `json:"contentType" validate:"required,oneof=blog product social"`
	Prompt      string      `json:"prompt" validate:"required,min=1,max=1000"`
}

// GenerateContentResponse is returned once a generation job is queued
type GenerateContentResponse struct {
	JobID            string           `json:"jobId"`
	ContentID        string           `json:"contentId"`
	GenerationStatus GenerationStatus `json:"status"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// ContentListFilter narrows a user's content listing
type ContentListFilter struct {
	ContentType      ContentType
	Status           ContentStatus
	GenerationStatus GenerationStatus
	Page             int
	Limit            int
}

// ContentListResponse is a page of content records
type ContentListResponse struct {
	Contents   []*Content `json:"contents"`
	Pagination Pagination `json:"pagination"`
}

// Pagination describes a listing page
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// ContentExportResponse points at an exported copy of generated text
type ContentExportResponse struct {
	FileURL   string    `json:"fileUrl"`
	Size      int64     `json:"size"`
	Format    string    `json:"format"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateContentRequest is the body of POST /api/content for manually written content
type CreateContentRequest struct {
	Title         string        `json:"title" validate:"required,min=1,max=200"`
	ContentType   ContentType   `json:"contentType" validate:"required,oneof=blog product social"`
	Prompt        string        `json:"prompt" validate:"required,min=1,max=1000"`
	GeneratedText string        `json:"generatedText" validate:"max=20000"`
	Status        ContentStatus `json:"status" validate:"omitempty,oneof=draft published"`
}

// UpdateContentRequest is the body of PUT /api/content/:id. Nil fields are left as is.
type UpdateContentRequest struct {
	Title         *string        `json:"title" validate:"omitempty,min=1,max=200"`
	ContentType   *ContentType   `json:"contentType" validate:"omitempty,oneof=blog product social"`
	Prompt        *string        `json:"prompt" validate:"omitempty,min=1,max=1000"`
	GeneratedText *string        `json:"generatedText" validate:"omitempty,max=20000"`
	Status        *ContentStatus `json:"status" validate:"omitempty,oneof=draft published"`
}

// IsEmpty reports whether the request changes nothing
func (r *UpdateContentRequest) IsEmpty() bool {
	return r.Title == nil && r.ContentType == nil && r.Prompt == nil && r.GeneratedText == nil && r.Status == nil
}
