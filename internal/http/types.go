package http

import (
	"encoding/json"
	"time"

	"reelforge/internal/model"
)

// ErrorResponse is the envelope for all error replies. Code is a stable
// machine-readable identifier; Error is human-readable detail.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// CreateJobRequest starts a new generation job.
type CreateJobRequest struct {
	Prompt  string          `json:"prompt"`
	Options json.RawMessage `json:"options,omitempty"`
}

// RegenerateRequest selects which scene's asset to regenerate. Omitting
// index regenerates every scene. Text (audio) or Prompt (image)
// overrides the scene's source for this run without altering the
// stored content; overrides are only valid together with an index.
type RegenerateRequest struct {
	Index  *int   `json:"index,omitempty"`
	Text   string `json:"text,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

// JobView is the API shape of a job.
type JobView struct {
	ID               string         `json:"id"`
	Status           string         `json:"status"`
	Prompt           string         `json:"prompt"`
	Content          *model.Content `json:"content,omitempty"`
	AudioURLs        []string       `json:"audioUrls"`
	ImageURLs        []string       `json:"imageUrls"`
	VideoURL         string         `json:"videoUrl,omitempty"`
	Workers          []string       `json:"workers"`
	CompletedWorkers []string       `json:"completedWorkers"`
	Error            string         `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Success bool    `json:"success"`
	Job     JobView `json:"job"`
}

// JobListResponse wraps a page of jobs.
type JobListResponse struct {
	Success bool      `json:"success"`
	Jobs    []JobView `json:"jobs"`
	Total   int64     `json:"total"`
	Limit   int       `json:"limit"`
	Offset  int       `json:"offset"`
}

func jobView(j model.Job) JobView {
	completed := j.CompletedWorkers
	if completed == nil {
		completed = []string{}
	}
	return JobView{
		ID:               j.ID.String(),
		Status:           string(j.Status),
		Prompt:           j.Prompt,
		Content:          j.Content,
		AudioURLs:        j.AudioURLs.Strings(),
		ImageURLs:        j.ImageURLs.Strings(),
		VideoURL:         j.VideoURL,
		Workers:          j.Workers,
		CompletedWorkers: completed,
		Error:            j.Error,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}
