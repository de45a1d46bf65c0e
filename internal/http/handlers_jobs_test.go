package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"reelforge/internal/model"
	"reelforge/internal/pipeline"
	"reelforge/internal/store"
)

type fakeController struct {
	submitted     []string
	approveErr    error
	regenStage    string
	regenIndex    *int
	regenOverride string
}

func (f *fakeController) Submit(_ context.Context, prompt string, _ json.RawMessage) (model.Job, error) {
	f.submitted = append(f.submitted, prompt)
	return model.Job{
		ID:        uuid.New(),
		Status:    model.StatusPending,
		Prompt:    prompt,
		Workers:   model.Stages(),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeController) Approve(_ context.Context, jobID uuid.UUID) (model.Job, error) {
	if f.approveErr != nil {
		return model.Job{}, f.approveErr
	}
	return model.Job{ID: jobID, Status: model.StatusApproved}, nil
}

func (f *fakeController) StartVideo(_ context.Context, jobID uuid.UUID) (model.Job, error) {
	return model.Job{ID: jobID, Status: model.StatusGeneratingVideo}, nil
}

func (f *fakeController) StartRegeneration(_ context.Context, jobID uuid.UUID, stage string, index *int, override string) (model.Job, error) {
	f.regenStage = stage
	f.regenIndex = index
	f.regenOverride = override
	return model.Job{ID: jobID, Status: model.StatusGeneratingAssets}, nil
}

type fakeReader struct {
	jobs map[uuid.UUID]model.Job
}

func (f *fakeReader) GetJob(_ context.Context, id uuid.UUID) (model.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return model.Job{}, sql.ErrNoRows
	}
	return job, nil
}

func (f *fakeReader) ListJobs(_ context.Context, filter store.JobListFilter) ([]model.Job, int64, error) {
	var out []model.Job
	for _, j := range f.jobs {
		if filter.Status == "" || string(j.Status) == filter.Status {
			out = append(out, j)
		}
	}
	return out, int64(len(out)), nil
}

func newTestApp(ctl JobController, jr JobReader) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("controller", ctl)
		c.Locals("jobs", jr)
		return c.Next()
	})
	registerV1Routes(app.Group("/v1"))
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*nethttp.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}

func TestCreateJobReturnsPendingJob(t *testing.T) {
	ctl := &fakeController{}
	app := newTestApp(ctl, &fakeReader{})

	resp, body := doJSON(t, app, nethttp.MethodPost, "/v1/jobs",
		CreateJobRequest{Prompt: "a video about lighthouses"})

	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}
	var out JobResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !out.Success || out.Job.Status != string(model.StatusPending) {
		t.Fatalf("unexpected response: %+v", out)
	}
	if len(ctl.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(ctl.submitted))
	}
}

func TestCreateJobRequiresPrompt(t *testing.T) {
	app := newTestApp(&fakeController{}, &fakeReader{})

	resp, body := doJSON(t, app, nethttp.MethodPost, "/v1/jobs", CreateJobRequest{Prompt: "   "})

	if resp.StatusCode != nethttp.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var out ErrorResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Code != "BAD_REQUEST" {
		t.Fatalf("expected BAD_REQUEST, got %s", out.Code)
	}
}

func TestGetJobUnknownIDReturnsNotFound(t *testing.T) {
	app := newTestApp(&fakeController{}, &fakeReader{jobs: map[uuid.UUID]model.Job{}})

	resp, body := doJSON(t, app, nethttp.MethodGet, "/v1/jobs/"+uuid.NewString(), nil)

	if resp.StatusCode != nethttp.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var out ErrorResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %s", out.Code)
	}
}

func TestApprovePreconditionMapsToConflict(t *testing.T) {
	ctl := &fakeController{
		approveErr: fmt.Errorf("%w: job is PROCESSING, approval requires READY", pipeline.ErrPrecondition),
	}
	app := newTestApp(ctl, &fakeReader{})

	resp, body := doJSON(t, app, nethttp.MethodPost, "/v1/jobs/"+uuid.NewString()+"/approve", nil)

	if resp.StatusCode != nethttp.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	var out ErrorResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Code != "PRECONDITION_FAILED" {
		t.Fatalf("expected PRECONDITION_FAILED, got %s", out.Code)
	}
}

func TestRegenerateImagePassesIndexThrough(t *testing.T) {
	ctl := &fakeController{}
	app := newTestApp(ctl, &fakeReader{})

	index := 2
	resp, _ := doJSON(t, app, nethttp.MethodPost,
		"/v1/jobs/"+uuid.NewString()+"/regenerate-image", RegenerateRequest{Index: &index})

	if resp.StatusCode != nethttp.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if ctl.regenStage != model.StageImage {
		t.Fatalf("expected image stage, got %q", ctl.regenStage)
	}
	if ctl.regenIndex == nil || *ctl.regenIndex != 2 {
		t.Fatalf("expected index 2, got %v", ctl.regenIndex)
	}
}

func TestRegenerateAudioWithoutBodyMeansAllScenes(t *testing.T) {
	ctl := &fakeController{}
	app := newTestApp(ctl, &fakeReader{})

	resp, _ := doJSON(t, app, nethttp.MethodPost,
		"/v1/jobs/"+uuid.NewString()+"/regenerate-audio", nil)

	if resp.StatusCode != nethttp.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if ctl.regenStage != model.StageAudio {
		t.Fatalf("expected audio stage, got %q", ctl.regenStage)
	}
	if ctl.regenIndex != nil {
		t.Fatalf("expected nil index for all-scene regeneration, got %d", *ctl.regenIndex)
	}
}

func TestRegenerateImageOverrideRequiresIndex(t *testing.T) {
	ctl := &fakeController{}
	app := newTestApp(ctl, &fakeReader{})

	resp, _ := doJSON(t, app, nethttp.MethodPost,
		"/v1/jobs/"+uuid.NewString()+"/regenerate-image", RegenerateRequest{Prompt: "a stormier sky"})

	if resp.StatusCode != nethttp.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	index := 0
	resp, _ = doJSON(t, app, nethttp.MethodPost,
		"/v1/jobs/"+uuid.NewString()+"/regenerate-image",
		RegenerateRequest{Index: &index, Prompt: "a stormier sky"})

	if resp.StatusCode != nethttp.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if ctl.regenOverride != "a stormier sky" {
		t.Fatalf("override not passed through, got %q", ctl.regenOverride)
	}
}

func TestListJobsRejectsUnknownStatus(t *testing.T) {
	app := newTestApp(&fakeController{}, &fakeReader{})

	resp, _ := doJSON(t, app, nethttp.MethodGet, "/v1/jobs?status=SOMETHING", nil)

	if resp.StatusCode != nethttp.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
