package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/docpipe/api/internal/model"
	"github.com/docpipe/api/internal/service"
	"github.com/docpipe/api/internal/store"
	"github.com/docpipe/api/pkg/response"
)

type PipelineHandler struct {
	service   *service.PipelineService
	validator *validator.Validate
}

func NewPipelineHandler(svc *service.PipelineService, v *validator.Validate) *PipelineHandler {
	return &PipelineHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/pipelines
func (h *PipelineHandler) Create(c *fiber.Ctx) error {
	var req model.CreatePipelineRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	result, err := h.service.Create(c.Context(), &req)
	if err != nil {
		if verr, ok := asValidationError(err); ok {
			return response.ValidationError(c, "Validation failed", verr)
		}
		if errors.Is(err, service.ErrInvalidConfig) {
			return response.ValidationError(c, err.Error(), nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/pipelines/:jobId
func (h *PipelineHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Status(c.Context(), jobID)
	if err != nil {
		return h.serviceError(c, err)
	}

	return response.OK(c, result)
}

// Approve handles POST /api/pipelines/:jobId/approve
func (h *PipelineHandler) Approve(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.ApproveStageRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	result, err := h.service.Approve(c.Context(), jobID, &req)
	if err != nil {
		if errors.Is(err, service.ErrUnknownSuggestion) {
			return response.ValidationError(c, err.Error(), nil)
		}
		return h.serviceError(c, err)
	}

	return response.Accepted(c, result)
}

// Suggestions handles GET /api/pipelines/:jobId/suggestions
func (h *PipelineHandler) Suggestions(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Suggestions(c.Context(), jobID)
	if err != nil {
		return h.serviceError(c, err)
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/pipelines/:jobId/cancel
func (h *PipelineHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Cancel(c.Context(), jobID)
	if err != nil {
		return h.serviceError(c, err)
	}

	return response.OK(c, result)
}

// Pause handles POST /api/pipelines/:jobId/pause
func (h *PipelineHandler) Pause(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Pause(c.Context(), jobID)
	if err != nil {
		return h.serviceError(c, err)
	}

	return response.OK(c, result)
}

// Resume handles POST /api/pipelines/:jobId/resume
func (h *PipelineHandler) Resume(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Resume(c.Context(), jobID)
	if err != nil {
		return h.serviceError(c, err)
	}

	return response.OK(c, result)
}

// Download handles GET /api/pipelines/:jobId/download
// The optional ?stage=N query selects a stage's intermediate output instead
// of the final document.
func (h *PipelineHandler) Download(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}
	stageIndex := -1
	if raw := c.Query("stage"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return response.ValidationError(c, "stage must be a non-negative integer", nil)
		}
		stageIndex = n
	}

	data, path, err := h.service.Download(c.Context(), jobID, stageIndex)
	if err != nil {
		return h.serviceError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
	c.Set("X-Document-Path", path)
	return c.Send(data)
}

// serviceError maps service sentinels to HTTP responses.
func (h *PipelineHandler) serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, service.ErrInvalidState):
		return response.InvalidState(c, err.Error())
	default:
		return response.ServiceError(c, err.Error())
	}
}

// asValidationError formats validator errors for the response envelope.
func asValidationError(err error) (interface{}, bool) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields, true
	}
	return nil, false
}
