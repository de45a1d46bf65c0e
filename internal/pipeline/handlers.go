package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/metrics"
	"reelforge/internal/model"
	"reelforge/internal/retry"
)

// ScriptGenerator produces a scene script from a prompt.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, prompt string) (model.Content, error)
}

// SceneSpeaker synthesizes narration audio for one scene.
type SceneSpeaker interface {
	GenerateScene(ctx context.Context, jobID uuid.UUID, text string, index int) (string, error)
}

// SceneIllustrator renders an image for one scene.
type SceneIllustrator interface {
	GenerateScene(ctx context.Context, jobID uuid.UUID, prompt string, index int) (string, error)
}

// VideoAssembler renders the final video from stored scene assets.
type VideoAssembler interface {
	Assemble(ctx context.Context, jobID uuid.UUID, content *model.Content, audioURLs, imageURLs []string) (string, error)
}

// Handlers executes stage tasks. Generation failures are terminal for
// the job, not the task: the handler records the cause on the job and
// returns nil so the queue does not redeliver. Errors only propagate
// when the surrounding context is cancelled, which is the shutdown and
// crash-redelivery path.
type Handlers struct {
	Store JobStore
	Coord *Coordinator
	Log   *slog.Logger

	Content ScriptGenerator
	Speech  SceneSpeaker
	Image   SceneIllustrator
	Video   VideoAssembler

	// Snapshot directory for generated scripts; empty disables snapshots.
	StoragePath string

	// Audio generation retries hard: narration is the pipeline's
	// backbone and the TTS API sheds load often.
	AudioAttempts int
	AudioDelay    time.Duration

	// Image generation gives up sooner; a missing image is recoverable
	// through single-asset regeneration.
	ImageAttempts int
	ImageDelay    time.Duration
}

const backoffCeiling = 3

func (h *Handlers) audioAttempts() int {
	if h.AudioAttempts > 0 {
		return h.AudioAttempts
	}
	return 12
}

func (h *Handlers) audioBackoff() retry.Backoff {
	delay := h.AudioDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return retry.Capped(delay, backoffCeiling)
}

func (h *Handlers) imageAttempts() int {
	if h.ImageAttempts > 0 {
		return h.ImageAttempts
	}
	return 3
}

func (h *Handlers) imageBackoff() retry.Backoff {
	delay := h.ImageDelay
	if delay <= 0 {
		delay = 3 * time.Second
	}
	return retry.CappedScaled(delay, backoffCeiling)
}

// fail records a stage failure on the job. The cause format is part of
// the API surface; clients match on the prefix.
func (h *Handlers) fail(ctx context.Context, jobID uuid.UUID, prefix string, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	msg := fmt.Sprintf("%s: %v", prefix, cause)
	if _, err := h.Store.Mutate(ctx, jobID, func(j *model.Job) error {
		j.Fail(msg)
		return nil
	}); err != nil {
		return err
	}
	h.Log.Error("stage failed", "job_id", jobID, "cause", msg)
	return nil
}

// HandleContent generates the scene script and fans out the asset
// stages.
func (h *Handlers) HandleContent(ctx context.Context, jobID uuid.UUID) error {
	job, err := h.Store.Mutate(ctx, jobID, func(j *model.Job) error {
		j.SetStatus(model.StatusProcessing)
		return nil
	})
	if err != nil {
		return err
	}

	script, err := h.Content.GenerateScript(ctx, job.Prompt)
	if err != nil {
		return h.fail(ctx, jobID, "Content processing error", err)
	}

	h.snapshotScript(&script)

	if _, err := h.Store.Mutate(ctx, jobID, func(j *model.Job) error {
		j.Content = &script
		return nil
	}); err != nil {
		return err
	}

	_, err = h.Coord.CompleteStage(ctx, jobID, model.StageContent)
	return err
}

// snapshotScript archives a generated script for offline review. Best
// effort only; a full disk must not fail the job.
func (h *Handlers) snapshotScript(script *model.Content) {
	if h.StoragePath == "" {
		return
	}

	dir := filepath.Join(h.StoragePath, "content")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		h.Log.Warn("script snapshot skipped", "error", err)
		return
	}

	data, err := json.MarshalIndent(script, "", "  ")
	if err != nil {
		h.Log.Warn("script snapshot skipped", "error", err)
		return
	}

	path := filepath.Join(dir, fmt.Sprintf("content-%d.json", time.Now().UnixMilli()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		h.Log.Warn("script snapshot skipped", "error", err)
	}
}

// HandleAudio narrates every scene in order, retrying each scene
// independently, then reports audio completion.
func (h *Handlers) HandleAudio(ctx context.Context, jobID uuid.UUID) error {
	job, err := h.Store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Content == nil {
		return h.fail(ctx, jobID, "Audio processing error", fmt.Errorf("job has no generated content"))
	}

	for i, scene := range job.Content.Scenes {
		text := scene.Text
		index := i
		err := retry.Do(ctx, h.audioAttempts(), h.audioBackoff(), func(ctx context.Context) error {
			url, err := h.Speech.GenerateScene(ctx, jobID, text, index)
			if err != nil {
				metrics.RecordStageRetry(model.StageAudio)
				h.Log.Warn("scene narration attempt failed", "job_id", jobID, "scene", index+1, "error", err)
				return err
			}
			_, err = h.Store.Mutate(ctx, jobID, func(j *model.Job) error {
				j.AudioURLs.SetAt(index, url)
				return nil
			})
			return err
		})
		if err != nil {
			return h.fail(ctx, jobID, "Audio processing error", err)
		}
	}

	_, err = h.Coord.CompleteStage(ctx, jobID, model.StageAudio)
	return err
}

// HandleImage renders every scene's image in order, then reports image
// completion.
func (h *Handlers) HandleImage(ctx context.Context, jobID uuid.UUID) error {
	job, err := h.Store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Content == nil {
		return h.fail(ctx, jobID, "Image processing error", fmt.Errorf("job has no generated content"))
	}

	for i, scene := range job.Content.Scenes {
		prompt := scene.Image
		index := i
		err := retry.Do(ctx, h.imageAttempts(), h.imageBackoff(), func(ctx context.Context) error {
			url, err := h.Image.GenerateScene(ctx, jobID, prompt, index)
			if err != nil {
				metrics.RecordStageRetry(model.StageImage)
				h.Log.Warn("scene image attempt failed", "job_id", jobID, "scene", index+1, "error", err)
				return err
			}
			_, err = h.Store.Mutate(ctx, jobID, func(j *model.Job) error {
				j.ImageURLs.SetAt(index, url)
				return nil
			})
			return err
		})
		if err != nil {
			return h.fail(ctx, jobID, "Image processing error", err)
		}
	}

	_, err = h.Coord.CompleteStage(ctx, jobID, model.StageImage)
	return err
}

// HandleVideo assembles the final video from the stored assets.
func (h *Handlers) HandleVideo(ctx context.Context, jobID uuid.UUID) error {
	job, err := h.Store.Mutate(ctx, jobID, func(j *model.Job) error {
		j.SetStatus(model.StatusGeneratingVideo)
		return nil
	})
	if err != nil {
		return err
	}
	if job.Content == nil {
		return h.fail(ctx, jobID, "Video processing error", fmt.Errorf("job has no generated content"))
	}

	videoURL, err := h.Video.Assemble(ctx, jobID, job.Content, job.AudioURLs.Strings(), job.ImageURLs.Strings())
	if err != nil {
		return h.fail(ctx, jobID, "Video processing error", err)
	}

	if _, err := h.Store.Mutate(ctx, jobID, func(j *model.Job) error {
		j.VideoURL = videoURL
		return nil
	}); err != nil {
		return err
	}

	_, err = h.Coord.CompleteStage(ctx, jobID, model.StageVideo)
	return err
}

// HandleRegenerateAudio replaces one scene's narration, or all of them,
// then rejoins through the normal audio completion rule.
func (h *Handlers) HandleRegenerateAudio(ctx context.Context, jobID uuid.UUID, payload json.RawMessage) error {
	return h.regenerate(ctx, jobID, payload, model.StageAudio, "Audio regeneration error")
}

// HandleRegenerateImage replaces one scene's image, or all of them.
func (h *Handlers) HandleRegenerateImage(ctx context.Context, jobID uuid.UUID, payload json.RawMessage) error {
	return h.regenerate(ctx, jobID, payload, model.StageImage, "Image regeneration error")
}

func (h *Handlers) regenerate(ctx context.Context, jobID uuid.UUID, payload json.RawMessage, stage, errPrefix string) error {
	var p RegeneratePayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return h.fail(ctx, jobID, errPrefix, fmt.Errorf("bad task payload: %w", err))
		}
	}

	job, err := h.Store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Content == nil {
		return h.fail(ctx, jobID, errPrefix, fmt.Errorf("job has no generated content"))
	}

	indexes := make([]int, 0, len(job.Content.Scenes))
	if p.Index != nil {
		if *p.Index < 0 || *p.Index >= len(job.Content.Scenes) {
			return h.fail(ctx, jobID, errPrefix, fmt.Errorf("scene index %d out of range", *p.Index))
		}
		indexes = append(indexes, *p.Index)
	} else {
		for i := range job.Content.Scenes {
			indexes = append(indexes, i)
		}
	}

	for _, index := range indexes {
		// The override replaces the scene's source text for this run
		// only; the stored content keeps its original fields.
		text := job.Content.Scenes[index].Text
		imagePrompt := job.Content.Scenes[index].Image
		if p.Override != "" && p.Index != nil {
			text = p.Override
			imagePrompt = p.Override
		}

		var genErr error
		switch stage {
		case model.StageAudio:
			genErr = retry.Do(ctx, h.audioAttempts(), h.audioBackoff(), func(ctx context.Context) error {
				url, err := h.Speech.GenerateScene(ctx, jobID, text, index)
				if err != nil {
					return err
				}
				_, err = h.Store.Mutate(ctx, jobID, func(j *model.Job) error {
					j.AudioURLs.SetAt(index, url)
					return nil
				})
				return err
			})
		case model.StageImage:
			genErr = retry.Do(ctx, h.imageAttempts(), h.imageBackoff(), func(ctx context.Context) error {
				url, err := h.Image.GenerateScene(ctx, jobID, imagePrompt, index)
				if err != nil {
					return err
				}
				_, err = h.Store.Mutate(ctx, jobID, func(j *model.Job) error {
					j.ImageURLs.SetAt(index, url)
					return nil
				})
				return err
			})
		}
		if genErr != nil {
			return h.fail(ctx, jobID, errPrefix, genErr)
		}
	}

	// The stage is already a completedWorkers member from the original
	// run, so this is the join re-check that returns the job to READY.
	_, err = h.Coord.CompleteStage(ctx, jobID, stage)
	return err
}
