// Package speech synthesizes per-scene narration audio over an HTTP
// text-to-speech API and stores the result on local disk.
package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/config"
)

// minArtifactBytes rejects truncated or error-page responses that the
// API returns with status 200.
const minArtifactBytes = 100

// Client fetches narration audio for one scene at a time.
type Client struct {
	enabled     bool
	baseURL     string
	model       string
	voice       string
	storagePath string
	http        *http.Client
}

// New builds a Client from config. When cfg.TTS.Enabled is false the
// client writes placeholder files instead of calling the API, which
// keeps the rest of the pipeline exercisable without network access.
func New(cfg *config.Config) *Client {
	return &Client{
		enabled:     cfg.TTS.Enabled,
		baseURL:     cfg.TTS.BaseURL,
		model:       cfg.TTS.Model,
		voice:       cfg.TTS.Voice,
		storagePath: cfg.Storage.Path,
		http:        &http.Client{Timeout: 120 * time.Second},
	}
}

// GenerateScene synthesizes audio for one scene and returns the stored
// file's path relative to the storage root, e.g.
// /storage/audio/<jobID>/<jobID>-scene-1-<ts>.mp3.
func (c *Client) GenerateScene(ctx context.Context, jobID uuid.UUID, text string, index int) (string, error) {
	dir := filepath.Join(c.storagePath, "audio", jobID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}

	name := fmt.Sprintf("%s-scene-%d-%d.mp3", jobID, index+1, time.Now().UnixMilli())
	path := filepath.Join(dir, name)

	var data []byte
	if c.enabled {
		var err error
		data, err = c.fetch(ctx, text)
		if err != nil {
			return "", err
		}
	} else {
		data = placeholderArtifact("audio placeholder for scene narration: " + text)
	}

	if len(data) < minArtifactBytes {
		return "", fmt.Errorf("speech api returned %d bytes, below the %d byte minimum", len(data), minArtifactBytes)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write audio file: %w", err)
	}

	return "/storage/audio/" + jobID.String() + "/" + name, nil
}

func (c *Client) fetch(ctx context.Context, text string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/%s?model=%s&voice=%s",
		c.baseURL, url.PathEscape(text), url.QueryEscape(c.model), url.QueryEscape(c.voice))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("speech api request failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// placeholderArtifact pads the note past the artifact size floor so
// placeholder runs take the same validation path as real ones.
func placeholderArtifact(note string) []byte {
	data := []byte(note)
	for len(data) < minArtifactBytes {
		data = append(data, ' ')
	}
	return data
}
