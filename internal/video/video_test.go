package video

import (
	"strings"
	"testing"

	"reelforge/internal/model"
)

func TestBuildSRTTimesScenesBackToBack(t *testing.T) {
	scenes := []model.Scene{
		{Text: "First scene narration."},
		{Text: "Second scene narration."},
	}
	srt := buildSRT(scenes, []float64{2.5, 3.0})

	if !strings.Contains(srt, "00:00:00,000 --> 00:00:02,500") {
		t.Fatalf("first cue mistimed:\n%s", srt)
	}
	if !strings.Contains(srt, "00:00:02,500 --> 00:00:05,500") {
		t.Fatalf("second cue should start where the first ends:\n%s", srt)
	}
	if !strings.Contains(srt, "Second scene narration.") {
		t.Fatalf("cue text missing:\n%s", srt)
	}
}

func TestSRTTimestampRollsOverMinutes(t *testing.T) {
	if got := srtTimestamp(61.25); got != "00:01:01,250" {
		t.Fatalf("expected 00:01:01,250, got %s", got)
	}
}

func TestLocalPathMapsStorageURL(t *testing.T) {
	a := &Assembler{storagePath: "/data/storage"}

	got := a.localPath("/storage/audio/abc/clip.mp3")
	if got != "/data/storage/audio/abc/clip.mp3" {
		t.Fatalf("unexpected path %s", got)
	}
}
