package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a job. These values must
// match the text values stored in the database (jobs.status).
//
// Centralizing these here avoids scattering string literals like
// "PENDING" or "READY" across packages.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusProcessing       Status = "PROCESSING"
	StatusGeneratingAssets Status = "GENERATING_ASSETS"
	StatusReady            Status = "READY"
	StatusApproved         Status = "APPROVED"
	StatusGeneratingVideo  Status = "GENERATING_VIDEO"
	StatusCompleted        Status = "COMPLETED"
	StatusError            Status = "ERROR"
	StatusFailed           Status = "FAILED"
)

// Stage names. A job's workers field holds the fixed ordered set of
// stages defined for its type; completedWorkers records which of them
// have reported completion since the current generation epoch began.
const (
	StageContent = "content"
	StageAudio   = "audio"
	StageImage   = "image"
	StageVideo   = "video"
)

// Stages returns the ordered stage set for a standard video job.
func Stages() []string {
	return []string{StageContent, StageAudio, StageImage, StageVideo}
}

// Scene is a single narrative unit of generated content: the narration
// text and the image prompt that should illustrate it.
type Scene struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
	Image string `json:"image"`
}

// Content is the structured script produced by the content stage and
// consumed by the audio, image, and video stages.
type Content struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Scenes      []Scene  `json:"scenes"`
	Tags        []string `json:"tags,omitempty"`
}

// URLSlice is a scene-indexed sequence of artifact URLs. Slots may be
// nil until the corresponding scene has been generated; the slice only
// ever grows.
type URLSlice []*string

// SetAt writes url into slot i, padding the slice with nil entries when
// it is shorter than i+1. It never shrinks the slice.
func (u *URLSlice) SetAt(i int, url string) {
	for len(*u) <= i {
		*u = append(*u, nil)
	}
	(*u)[i] = &url
}

// At returns the URL at slot i, or "" when the slot is absent or unset.
func (u URLSlice) At(i int) string {
	if i < 0 || i >= len(u) || u[i] == nil {
		return ""
	}
	return *u[i]
}

// Strings flattens the slice for API responses, rendering unset slots
// as empty strings.
func (u URLSlice) Strings() []string {
	out := make([]string, len(u))
	for i, s := range u {
		if s != nil {
			out[i] = *s
		}
	}
	return out
}

// Job is one end-to-end request to turn a prompt into a narrated video.
type Job struct {
	ID               uuid.UUID
	Status           Status
	Prompt           string
	Options          json.RawMessage
	Content          *Content
	AudioURLs        URLSlice
	ImageURLs        URLSlice
	VideoURL         string
	Workers          []string
	CompletedWorkers []string
	Error            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AddCompletedWorker records stage completion with set semantics.
func (j *Job) AddCompletedWorker(stage string) {
	for _, w := range j.CompletedWorkers {
		if w == stage {
			return
		}
	}
	j.CompletedWorkers = append(j.CompletedWorkers, stage)
}

// HasCompletedWorker reports whether a stage has completed at least
// once in the current generation epoch.
func (j *Job) HasCompletedWorker(stage string) bool {
	for _, w := range j.CompletedWorkers {
		if w == stage {
			return true
		}
	}
	return false
}

// AssetStagesComplete reports whether every non-video stage has
// completed. This is the join condition for the READY transition.
func (j *Job) AssetStagesComplete() bool {
	for _, w := range j.Workers {
		if w == StageVideo {
			continue
		}
		if !j.HasCompletedWorker(w) {
			return false
		}
	}
	return true
}

// SetStatus assigns a new status and clears the recorded error when the
// job moves off ERROR.
func (j *Job) SetStatus(status Status) {
	if j.Status == StatusError && status != StatusError {
		j.Error = ""
	}
	j.Status = status
}

// Fail records a failure cause and moves the job to ERROR.
func (j *Job) Fail(cause string) {
	j.Status = StatusError
	j.Error = cause
}

var regenerableStatuses = map[Status]struct{}{
	StatusReady:     {},
	StatusCompleted: {},
	StatusError:     {},
}

// CanRegenerate reports whether the job may accept a regeneration
// request in its current status.
func (j *Job) CanRegenerate() bool {
	_, ok := regenerableStatuses[j.Status]
	return ok
}
