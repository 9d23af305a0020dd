package handler

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/contentforge/api/internal/middleware"
	"github.com/contentforge/api/internal/model"
	"github.com/contentforge/api/internal/service"
	"github.com/contentforge/api/pkg/response"
)

type ContentHandler struct {
	contents  *service.ContentService
	jobs      *service.QueueService
	validator *validator.Validate
	log       *slog.Logger
}

func NewContentHandler(contents *service.ContentService, jobs *service.QueueService, v *validator.Validate, log *slog.Logger) *ContentHandler {
	return &ContentHandler{
		contents:  contents,
		jobs:      jobs,
		validator: v,
		log:       log.With("component", "handler"),
	}
}

// Generate handles POST /api/content/generate
// @Summary      Generate content
// @Description  Create a content record and queue its AI generation job
// @Tags         Content
// @Accept       json
// @Produce      json
// @Param        request body model.GenerateContentRequest true "Generate request"
// @Success      202 {object} model.GenerateContentResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/content/generate [post]
func (h *ContentHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerateContentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.contents.Generate(c.UserContext(), middleware.GetUserID(c), &req)
	if err != nil {
		return h.writeError(c, err)
	}

	return response.Accepted(c, result)
}

// JobStatus handles GET /api/content/job/:jobId/status
// @Summary      Get generation job status
// @Tags         Content
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobStatusResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/content/job/{jobId}/status [get]
func (h *ContentHandler) JobStatus(c *fiber.Ctx) error {
	result, err := h.jobs.GetStatusForUser(c.UserContext(), c.Params("jobId"), middleware.GetUserID(c))
	if err != nil {
		return h.writeError(c, err)
	}
	return response.OK(c, result)
}

// List handles GET /api/content
func (h *ContentHandler) List(c *fiber.Ctx) error {
	filter := model.ContentListFilter{
		ContentType:      model.ContentType(c.Query("contentType")),
		Status:           model.ContentStatus(c.Query("status")),
		GenerationStatus: model.GenerationStatus(c.Query("generationStatus")),
		Page:             c.QueryInt("page", 1),
		Limit:            c.QueryInt("limit", 10),
	}
	if filter.ContentType != "" && !filter.ContentType.IsValid() {
		return response.ValidationError(c, "Invalid content type", nil)
	}

	result, err := h.contents.List(c.UserContext(), middleware.GetUserID(c), filter)
	if err != nil {
		return h.writeError(c, err)
	}
	return response.OK(c, result)
}

// Create handles POST /api/content
func (h *ContentHandler) Create(c *fiber.Ctx) error {
	var req model.CreateContentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.contents.Create(c.UserContext(), middleware.GetUserID(c), &req)
	if err != nil {
		return h.writeError(c, err)
	}
	return response.Created(c, result)
}

// Get handles GET /api/content/:id
func (h *ContentHandler) Get(c *fiber.Ctx) error {
	result, err := h.contents.Get(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return response.OK(c, result)
}

// Update handles PUT /api/content/:id
func (h *ContentHandler) Update(c *fiber.Ctx) error {
	var req model.UpdateContentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if req.IsEmpty() {
		return response.ValidationError(c, "No fields to update", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.contents.Update(c.UserContext(), middleware.GetUserID(c), c.Params("id"), &req)
	if err != nil {
		return h.writeError(c, err)
	}
	return response.OK(c, result)
}

// Delete handles DELETE /api/content/:id
func (h *ContentHandler) Delete(c *fiber.Ctx) error {
	if err := h.contents.Delete(c.UserContext(), middleware.GetUserID(c), c.Params("id")); err != nil {
		return h.writeError(c, err)
	}
	return response.NoContent(c)
}

// Regenerate handles POST /api/content/:id/regenerate
func (h *ContentHandler) Regenerate(c *fiber.Ctx) error {
	result, err := h.contents.Regenerate(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return response.Accepted(c, result)
}

// Export handles GET /api/content/:id/export
// @Summary      Export content
// @Description  Upload generated text as markdown and return a signed download URL
// @Tags         Content
// @Produce      json
// @Param        id path string true "Content ID"
// @Success      200 {object} model.ContentExportResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/content/{id}/export [get]
func (h *ContentHandler) Export(c *fiber.Ctx) error {
	result, err := h.contents.Export(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return response.OK(c, result)
}

func (h *ContentHandler) writeError(c *fiber.Ctx, err error) error {
	var perr *model.PersistenceError
	switch {
	case errors.Is(err, model.ErrForbidden):
		return response.Forbidden(c, err.Error())
	case errors.Is(err, model.ErrContentNotFound):
		return response.NotFound(c, "Content not found")
	case errors.Is(err, model.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, model.ErrGenerationInProgress):
		return response.Conflict(c, err.Error())
	case errors.Is(err, model.ErrContentNotCompleted):
		return response.ValidationError(c, "Content generation is not completed", nil)
	case errors.Is(err, model.ErrQueueUnavailable):
		return response.QueueUnavailable(c, "Failed to queue content generation")
	case errors.As(err, &perr):
		h.log.Error("Content persistence failed", "op", perr.Op, "error", perr.Err)
		return response.ServiceError(c, "Failed to save content")
	default:
		h.log.Error("Request failed", "path", c.Path(), "error", err)
		return response.ServiceError(c, "Internal server error")
	}
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}

// RouteLimits are the per-route rate limiters. Nil entries are skipped.
type RouteLimits struct {
	Generate fiber.Handler
	Export   fiber.Handler
	Read     fiber.Handler
}

// Routes mounts the content API on router
func (h *ContentHandler) Routes(router fiber.Router, limits RouteLimits) {
	generate := orNext(limits.Generate)
	export := orNext(limits.Export)
	read := orNext(limits.Read)

	content := router.Group("/content")
	content.Post("/generate", generate, h.Generate)
	content.Get("/job/:jobId/status", read, h.JobStatus)
	content.Get("/", read, h.List)
	content.Post("/", h.Create)
	content.Get("/:id", read, h.Get)
	content.Put("/:id", h.Update)
	content.Delete("/:id", h.Delete)
	content.Post("/:id/regenerate", generate, h.Regenerate)
	content.Get("/:id/export", export, h.Export)
}

func orNext(h fiber.Handler) fiber.Handler {
	if h != nil {
		return h
	}
	return func(c *fiber.Ctx) error { return c.Next() }
}
