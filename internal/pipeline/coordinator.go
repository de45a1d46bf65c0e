// Package pipeline drives jobs through their stages: content first,
// audio and image in parallel, then video on demand. The coordinator
// owns every status transition; stage handlers only generate artifacts
// and report completion.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/metrics"
	"reelforge/internal/model"
	"reelforge/internal/queue"
	"reelforge/internal/store"
)

// ErrPrecondition marks a control operation rejected because the job is
// not in an eligible status. The HTTP layer maps it to a 409.
var ErrPrecondition = errors.New("precondition failed")

// JobStore is the slice of the store the pipeline needs.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (model.Job, error)
	Mutate(ctx context.Context, id uuid.UUID, fn func(*model.Job) error) (model.Job, error)
}

// TaskQueue is the enqueue side of the task queue.
type TaskQueue interface {
	Enqueue(ctx context.Context, jobID uuid.UUID, kind string, payload json.RawMessage) (uuid.UUID, error)
}

// Coordinator applies transition rules and fans work out to the queue.
type Coordinator struct {
	Store JobStore
	Queue TaskQueue
	Log   *slog.Logger
}

// NewCoordinator wires a Coordinator.
func NewCoordinator(st JobStore, q TaskQueue, logger *slog.Logger) *Coordinator {
	return &Coordinator{Store: st, Queue: q, Log: logger}
}

// Submit creates a PENDING job and enqueues its content task.
func (c *Coordinator) Submit(ctx context.Context, prompt string, options json.RawMessage) (model.Job, error) {
	now := time.Now().UTC()
	job := model.Job{
		ID:               uuid.New(),
		Status:           model.StatusPending,
		Prompt:           prompt,
		Options:          options,
		Workers:          model.Stages(),
		CompletedWorkers: []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := c.Store.CreateJob(ctx, &job); err != nil {
		return model.Job{}, err
	}
	if _, err := c.Queue.Enqueue(ctx, job.ID, queue.KindContent, nil); err != nil {
		return model.Job{}, err
	}

	metrics.RecordJobSubmitted()
	c.Log.Info("job submitted", "job_id", job.ID)
	return job, nil
}

// CompleteStage records that a stage finished and applies the
// transition rule for that stage. The record-and-transition step runs
// under the job's row lock, so two parallel stages finishing at once
// cannot both miss the join.
func (c *Coordinator) CompleteStage(ctx context.Context, jobID uuid.UUID, stage string) (model.Job, error) {
	job, err := c.Store.Mutate(ctx, jobID, func(j *model.Job) error {
		j.AddCompletedWorker(stage)

		switch stage {
		case model.StageContent:
			j.SetStatus(model.StatusGeneratingAssets)
		case model.StageAudio, model.StageImage:
			if j.AssetStagesComplete() && j.Status != model.StatusReady {
				j.SetStatus(model.StatusReady)
			}
		case model.StageVideo:
			if j.Status != model.StatusCompleted {
				j.SetStatus(model.StatusCompleted)
			}
		default:
			return fmt.Errorf("unknown stage %q", stage)
		}
		return nil
	})
	if err != nil {
		return model.Job{}, err
	}

	// Content completion fans the asset stages out. Enqueueing outside
	// the row lock keeps the transaction short; a duplicate task from a
	// redelivered content task is harmless because SetAt overwrites.
	if stage == model.StageContent {
		if _, err := c.Queue.Enqueue(ctx, jobID, queue.KindAudio, nil); err != nil {
			return job, err
		}
		if _, err := c.Queue.Enqueue(ctx, jobID, queue.KindImage, nil); err != nil {
			return job, err
		}
	}

	c.Log.Info("stage complete", "job_id", jobID, "stage", stage, "status", job.Status)
	return job, nil
}

// Approve moves a READY job to APPROVED and kicks off video assembly.
func (c *Coordinator) Approve(ctx context.Context, jobID uuid.UUID) (model.Job, error) {
	job, err := c.Store.Mutate(ctx, jobID, func(j *model.Job) error {
		if j.Status != model.StatusReady {
			return fmt.Errorf("%w: job is %s, approval requires %s", ErrPrecondition, j.Status, model.StatusReady)
		}
		j.SetStatus(model.StatusApproved)
		return nil
	})
	if err != nil {
		return model.Job{}, err
	}

	if _, err := c.Queue.Enqueue(ctx, jobID, queue.KindVideo, nil); err != nil {
		return job, err
	}
	c.Log.Info("job approved", "job_id", jobID)
	return job, nil
}

// StartVideo moves a READY job to GENERATING_VIDEO and enqueues the
// assembly task without requiring approval.
func (c *Coordinator) StartVideo(ctx context.Context, jobID uuid.UUID) (model.Job, error) {
	job, err := c.Store.Mutate(ctx, jobID, func(j *model.Job) error {
		if j.Status != model.StatusReady {
			return fmt.Errorf("%w: job is %s, video generation requires %s", ErrPrecondition, j.Status, model.StatusReady)
		}
		j.SetStatus(model.StatusGeneratingVideo)
		return nil
	})
	if err != nil {
		return model.Job{}, err
	}

	if _, err := c.Queue.Enqueue(ctx, jobID, queue.KindVideo, nil); err != nil {
		return job, err
	}
	c.Log.Info("video generation started", "job_id", jobID)
	return job, nil
}

// RegeneratePayload selects which asset a regeneration task replaces.
// A nil Index means every scene. Override substitutes the scene's
// narration text (audio) or image prompt (image) for this run only; it
// is never written back to the stored content.
type RegeneratePayload struct {
	Index    *int   `json:"index,omitempty"`
	Override string `json:"override,omitempty"`
}

// StartRegeneration validates that a single asset (or all assets) of a
// settled job may be regenerated, moves the job back to
// GENERATING_ASSETS, and enqueues the regeneration task. stage must be
// audio or image.
func (c *Coordinator) StartRegeneration(ctx context.Context, jobID uuid.UUID, stage string, index *int, override string) (model.Job, error) {
	var kind string
	switch stage {
	case model.StageAudio:
		kind = queue.KindRegenerateAudio
	case model.StageImage:
		kind = queue.KindRegenerateImage
	default:
		return model.Job{}, fmt.Errorf("stage %q does not support regeneration", stage)
	}

	job, err := c.Store.Mutate(ctx, jobID, func(j *model.Job) error {
		if !j.CanRegenerate() {
			return fmt.Errorf("%w: job is %s, regeneration requires %s, %s or %s",
				ErrPrecondition, j.Status, model.StatusReady, model.StatusCompleted, model.StatusError)
		}
		if j.Content == nil {
			return fmt.Errorf("%w: job has no generated content yet", ErrPrecondition)
		}
		if index != nil && (*index < 0 || *index >= len(j.Content.Scenes)) {
			return fmt.Errorf("%w: scene index %d out of range, job has %d scenes",
				ErrPrecondition, *index, len(j.Content.Scenes))
		}
		j.SetStatus(model.StatusGeneratingAssets)
		return nil
	})
	if err != nil {
		return model.Job{}, err
	}

	payload, err := json.Marshal(RegeneratePayload{Index: index, Override: override})
	if err != nil {
		return model.Job{}, err
	}
	if _, err := c.Queue.Enqueue(ctx, jobID, kind, payload); err != nil {
		return job, err
	}

	metrics.RecordRegeneration(stage)
	c.Log.Info("regeneration started", "job_id", jobID, "stage", stage)
	return job, nil
}

// statically ensure the concrete store satisfies the pipeline's view.
var _ JobStore = (*store.Store)(nil)
var _ TaskQueue = (*queue.Queue)(nil)
