package model

import (
	"testing"

	"github.com/google/uuid"
)

func TestURLSliceSetAtPadsWithNil(t *testing.T) {
	var u URLSlice
	u.SetAt(2, "/storage/audio/a/scene-3.mp3")

	if len(u) != 3 {
		t.Fatalf("expected length 3, got %d", len(u))
	}
	if u[0] != nil || u[1] != nil {
		t.Fatalf("expected nil padding below target index")
	}
	if u.At(2) != "/storage/audio/a/scene-3.mp3" {
		t.Fatalf("unexpected value at index 2: %q", u.At(2))
	}
}

func TestURLSliceSetAtNeverShrinks(t *testing.T) {
	var u URLSlice
	u.SetAt(0, "a")
	u.SetAt(1, "b")
	u.SetAt(2, "c")
	u.SetAt(1, "b2")

	if len(u) != 3 {
		t.Fatalf("expected length 3 after overwrite, got %d", len(u))
	}
	if u.At(0) != "a" || u.At(1) != "b2" || u.At(2) != "c" {
		t.Fatalf("unexpected contents: %v", u.Strings())
	}
}

func TestAddCompletedWorkerSetSemantics(t *testing.T) {
	j := Job{ID: uuid.New(), Workers: Stages()}

	j.AddCompletedWorker(StageAudio)
	j.AddCompletedWorker(StageAudio)
	j.AddCompletedWorker(StageAudio)

	if len(j.CompletedWorkers) != 1 {
		t.Fatalf("expected single membership, got %v", j.CompletedWorkers)
	}
}

func TestAssetStagesCompleteIgnoresVideo(t *testing.T) {
	j := Job{Workers: Stages()}

	j.AddCompletedWorker(StageContent)
	j.AddCompletedWorker(StageAudio)
	if j.AssetStagesComplete() {
		t.Fatalf("join must not fire before image completes")
	}

	j.AddCompletedWorker(StageImage)
	if !j.AssetStagesComplete() {
		t.Fatalf("join should fire once content, audio, and image are complete")
	}
}

func TestSetStatusClearsErrorWhenLeavingError(t *testing.T) {
	j := Job{Status: StatusGeneratingAssets}
	j.Fail("Audio processing error: boom")

	if j.Status != StatusError || j.Error == "" {
		t.Fatalf("expected ERROR with cause, got %s %q", j.Status, j.Error)
	}

	j.SetStatus(StatusReady)
	if j.Error != "" {
		t.Fatalf("expected error cleared on recovery, got %q", j.Error)
	}
}
