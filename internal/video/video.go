// Package video assembles the final narrated video with ffmpeg: one
// zoompan clip per scene timed to its narration, concatenated, with
// subtitles burned in from the scene texts.
package video

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/config"
	"reelforge/internal/model"
)

// Assembler shells out to ffmpeg and ffprobe.
type Assembler struct {
	ffmpeg      string
	ffprobe     string
	width       int
	height      int
	storagePath string
	outputDir   string
}

// New builds an Assembler from config, defaulting to the binaries on
// PATH and a portrait 1080x1920 canvas.
func New(cfg *config.Config) *Assembler {
	a := &Assembler{
		ffmpeg:      cfg.Video.FFmpegPath,
		ffprobe:     cfg.Video.FFprobePath,
		width:       cfg.Video.Width,
		height:      cfg.Video.Height,
		storagePath: cfg.Storage.Path,
		outputDir:   cfg.Video.OutputDir,
	}
	if a.ffmpeg == "" {
		a.ffmpeg = "ffmpeg"
	}
	if a.ffprobe == "" {
		a.ffprobe = "ffprobe"
	}
	if a.width <= 0 {
		a.width = 1080
	}
	if a.height <= 0 {
		a.height = 1920
	}
	if a.outputDir == "" {
		a.outputDir = filepath.Join(cfg.Storage.Path, "videos")
	}
	return a
}

// localPath maps a stored artifact URL like /storage/audio/<id>/x.mp3
// back to its on-disk location.
func (a *Assembler) localPath(artifactURL string) string {
	return filepath.Join(a.storagePath, strings.TrimPrefix(artifactURL, "/storage/"))
}

// Assemble renders the final video and returns its URL under
// /storage/videos/. Scene i uses imageURLs[i] and audioURLs[i]; the
// clip runs for the narration's duration.
func (a *Assembler) Assemble(ctx context.Context, jobID uuid.UUID, content *model.Content, audioURLs, imageURLs []string) (string, error) {
	if content == nil || len(content.Scenes) == 0 {
		return "", fmt.Errorf("job %s has no scenes to assemble", jobID)
	}
	if len(audioURLs) < len(content.Scenes) || len(imageURLs) < len(content.Scenes) {
		return "", fmt.Errorf("job %s is missing assets: %d scenes, %d audio, %d images",
			jobID, len(content.Scenes), len(audioURLs), len(imageURLs))
	}

	workDir, err := os.MkdirTemp("", "assemble-"+jobID.String()+"-")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	durations := make([]float64, len(content.Scenes))
	clips := make([]string, len(content.Scenes))
	for i := range content.Scenes {
		dur, err := a.audioDuration(ctx, a.localPath(audioURLs[i]))
		if err != nil {
			return "", fmt.Errorf("probe scene %d audio: %w", i+1, err)
		}
		durations[i] = dur

		clip := filepath.Join(workDir, fmt.Sprintf("clip-%03d.mp4", i))
		if err := a.renderClip(ctx, a.localPath(imageURLs[i]), a.localPath(audioURLs[i]), dur, clip); err != nil {
			return "", fmt.Errorf("render scene %d clip: %w", i+1, err)
		}
		clips[i] = clip
	}

	listPath := filepath.Join(workDir, "concat.txt")
	if err := writeConcatList(listPath, clips); err != nil {
		return "", err
	}

	srtPath := filepath.Join(workDir, "subtitles.srt")
	if err := os.WriteFile(srtPath, []byte(buildSRT(content.Scenes, durations)), 0o644); err != nil {
		return "", fmt.Errorf("write subtitles: %w", err)
	}

	if err := os.MkdirAll(a.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	name := fmt.Sprintf("video_%s_%d.mp4", jobID, time.Now().UnixMilli())
	outPath := filepath.Join(a.outputDir, name)

	args := []string{
		"-y",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-vf", "subtitles=" + srtPath + ":force_style='FontSize=14,Alignment=2,MarginV=40'",
		"-c:v", "libx264", "-preset", "medium", "-crf", "23",
		"-c:a", "aac", "-b:a", "192k",
		"-movflags", "+faststart",
		outPath,
	}
	if out, err := exec.CommandContext(ctx, a.ffmpeg, args...).CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg concat failed: %w: %s", err, tail(out))
	}

	return "/storage/videos/" + name, nil
}

// audioDuration asks ffprobe for a file's duration in seconds.
func (a *Assembler) audioDuration(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("ffprobe reported non-positive duration for %s", path)
	}
	return dur, nil
}

// renderClip turns a still image plus its narration into one video
// clip with a slow zoom and a short fade on both ends.
func (a *Assembler) renderClip(ctx context.Context, imagePath, audioPath string, duration float64, outPath string) error {
	frames := int(duration * 25)
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,"+
			"zoompan=z='min(zoom+0.0008,1.2)':d=%d:x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':s=%dx%d,"+
			"fade=t=in:st=0:d=0.3,fade=t=out:st=%.2f:d=0.3",
		a.width*2, a.height*2, a.width*2, a.height*2,
		frames, a.width, a.height,
		duration-0.3)

	args := []string{
		"-y",
		"-loop", "1", "-framerate", "25", "-i", imagePath,
		"-i", audioPath,
		"-vf", filter,
		"-t", fmt.Sprintf("%.3f", duration),
		"-c:v", "libx264", "-preset", "medium", "-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "192k",
		"-shortest",
		outPath,
	}
	if out, err := exec.CommandContext(ctx, a.ffmpeg, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg clip failed: %w: %s", err, tail(out))
	}
	return nil
}

func writeConcatList(path string, clips []string) error {
	var sb strings.Builder
	for _, clip := range clips {
		sb.WriteString("file '" + clip + "'\n")
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

// buildSRT lays each scene's narration over its clip's time range.
func buildSRT(scenes []model.Scene, durations []float64) string {
	var sb strings.Builder
	var cursor float64
	for i, scene := range scenes {
		start := cursor
		cursor += durations[i]

		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString("\n")
		sb.WriteString(srtTimestamp(start))
		sb.WriteString(" --> ")
		sb.WriteString(srtTimestamp(cursor))
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(scene.Text))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func srtTimestamp(seconds float64) string {
	ms := int(seconds * 1000)
	h := ms / 3_600_000
	m := ms % 3_600_000 / 60_000
	s := ms % 60_000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

func tail(out []byte) string {
	const max = 400
	s := strings.TrimSpace(string(out))
	if len(s) > max {
		s = "..." + s[len(s)-max:]
	}
	return s
}
