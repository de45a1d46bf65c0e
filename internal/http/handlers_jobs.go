package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"reelforge/internal/model"
	"reelforge/internal/pipeline"
	"reelforge/internal/store"
)

// JobController is the control surface of the pipeline coordinator.
type JobController interface {
	Submit(ctx context.Context, prompt string, options json.RawMessage) (model.Job, error)
	Approve(ctx context.Context, jobID uuid.UUID) (model.Job, error)
	StartVideo(ctx context.Context, jobID uuid.UUID) (model.Job, error)
	StartRegeneration(ctx context.Context, jobID uuid.UUID, stage string, index *int, override string) (model.Job, error)
}

// JobReader is the read-only slice of the store handlers need.
type JobReader interface {
	GetJob(ctx context.Context, id uuid.UUID) (model.Job, error)
	ListJobs(ctx context.Context, filter store.JobListFilter) ([]model.Job, int64, error)
}

func controllerFrom(c *fiber.Ctx) JobController {
	ctl, _ := c.Locals("controller").(JobController)
	return ctl
}

func jobsFrom(c *fiber.Ctx) JobReader {
	jr, _ := c.Locals("jobs").(JobReader)
	return jr
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Success: false,
		Code:    "BAD_REQUEST",
		Error:   msg,
	})
}

// respondError maps domain errors to the stable error envelope.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "Job not found",
		})
	case errors.Is(err, pipeline.ErrPrecondition):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Success: false,
			Code:    "PRECONDITION_FAILED",
			Error:   err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   err.Error(),
		})
	}
}

func parseJobID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

// createJobHandler accepts a prompt and starts the generation pipeline.
func createJobHandler(c *fiber.Ctx) error {
	var req CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON body: "+err.Error())
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return badRequest(c, "prompt is required")
	}

	job, err := controllerFrom(c).Submit(c.Context(), req.Prompt, req.Options)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(JobResponse{Success: true, Job: jobView(job)})
}

// listJobsHandler returns a page of jobs, newest first.
func listJobsHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)
	if limit < 1 || limit > 100 {
		return badRequest(c, fmt.Sprintf("limit must be between 1 and 100, got %d", limit))
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		return badRequest(c, "offset must not be negative")
	}

	status := c.Query("status")
	if status != "" && !validStatus(status) {
		return badRequest(c, "unknown status filter "+status)
	}

	jobs, total, err := jobsFrom(c).ListJobs(c.Context(), store.JobListFilter{
		Status: status,
		Limit:  int32(limit),
		Offset: int32(offset),
	})
	if err != nil {
		return respondError(c, err)
	}

	views := make([]JobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, jobView(j))
	}
	return c.JSON(JobListResponse{Success: true, Jobs: views, Total: total, Limit: limit, Offset: offset})
}

func validStatus(s string) bool {
	switch model.Status(s) {
	case model.StatusPending, model.StatusProcessing, model.StatusGeneratingAssets,
		model.StatusReady, model.StatusApproved, model.StatusGeneratingVideo,
		model.StatusCompleted, model.StatusError, model.StatusFailed:
		return true
	}
	return false
}

// getJobHandler returns a single job with its artifacts.
func getJobHandler(c *fiber.Ctx) error {
	id, err := parseJobID(c)
	if err != nil {
		return badRequest(c, "invalid job id")
	}

	job, err := jobsFrom(c).GetJob(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(JobResponse{Success: true, Job: jobView(job)})
}

// approveJobHandler approves a READY job and starts video assembly.
func approveJobHandler(c *fiber.Ctx) error {
	id, err := parseJobID(c)
	if err != nil {
		return badRequest(c, "invalid job id")
	}

	job, err := controllerFrom(c).Approve(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(JobResponse{Success: true, Job: jobView(job)})
}

// generateVideoHandler starts video assembly for a READY job without
// requiring approval.
func generateVideoHandler(c *fiber.Ctx) error {
	id, err := parseJobID(c)
	if err != nil {
		return badRequest(c, "invalid job id")
	}

	job, err := controllerFrom(c).StartVideo(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(JobResponse{Success: true, Job: jobView(job)})
}

func regenerateAudioHandler(c *fiber.Ctx) error {
	return regenerateHandler(c, model.StageAudio)
}

func regenerateImageHandler(c *fiber.Ctx) error {
	return regenerateHandler(c, model.StageImage)
}

// regenerateHandler replaces one scene's asset, or all of them when no
// index is given, on a settled job.
func regenerateHandler(c *fiber.Ctx, stage string) error {
	id, err := parseJobID(c)
	if err != nil {
		return badRequest(c, "invalid job id")
	}

	var req RegenerateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid JSON body: "+err.Error())
		}
	}

	override := req.Prompt
	if stage == model.StageAudio {
		override = req.Text
	}
	if override != "" && req.Index == nil {
		return badRequest(c, "an override requires a scene index")
	}

	job, err := controllerFrom(c).StartRegeneration(c.Context(), id, stage, req.Index, override)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(JobResponse{Success: true, Job: jobView(job)})
}
