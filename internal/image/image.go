// Package image renders per-scene still images over an HTTP image
// generation API and stores the result on local disk.
package image

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/config"
)

const minArtifactBytes = 100

// Client fetches one generated image at a time.
type Client struct {
	enabled     bool
	baseURL     string
	model       string
	width       int
	height      int
	storagePath string
	http        *http.Client
}

// New builds a Client from config. When cfg.Image.Enabled is false the
// client writes placeholder files instead of calling the API.
func New(cfg *config.Config) *Client {
	width := cfg.Image.Width
	if width <= 0 {
		width = 1080 * 2
	}
	height := cfg.Image.Height
	if height <= 0 {
		height = 1920 * 2
	}
	return &Client{
		enabled:     cfg.Image.Enabled,
		baseURL:     cfg.Image.BaseURL,
		model:       cfg.Image.Model,
		width:       width,
		height:      height,
		storagePath: cfg.Storage.Path,
		http:        &http.Client{Timeout: 120 * time.Second},
	}
}

// GenerateScene renders an image for one scene and returns the stored
// file's path relative to the storage root, e.g.
// /storage/images/<jobID>/<jobID>-image-0-<ts>-<rand>.jpg.
func (c *Client) GenerateScene(ctx context.Context, jobID uuid.UUID, prompt string, index int) (string, error) {
	dir := filepath.Join(c.storagePath, "images", jobID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create images dir: %w", err)
	}

	suffix := strings.Split(uuid.NewString(), "-")[0]
	name := fmt.Sprintf("%s-image-%d-%d-%s.jpg", jobID, index, time.Now().UnixMilli(), suffix)
	path := filepath.Join(dir, name)

	var data []byte
	if c.enabled {
		var err error
		data, err = c.fetch(ctx, prompt)
		if err != nil {
			return "", err
		}
	} else {
		data = placeholderArtifact("image placeholder for prompt: " + prompt)
	}

	if len(data) < minArtifactBytes {
		return "", fmt.Errorf("image api returned %d bytes, below the %d byte minimum", len(data), minArtifactBytes)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image file: %w", err)
	}

	return "/storage/images/" + jobID.String() + "/" + name, nil
}

func (c *Client) fetch(ctx context.Context, prompt string) ([]byte, error) {
	// A fresh seed per call so a retried prompt is not served the same
	// failed render from the provider's cache.
	endpoint := fmt.Sprintf("%s/%s?width=%d&height=%d&model=%s&seed=%d&nologo=true",
		c.baseURL, url.PathEscape(prompt), c.width, c.height,
		url.QueryEscape(c.model), rand.Intn(1_000_000))

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
		return nil, fmt.Errorf("image api request failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func placeholderArtifact(note string) []byte {
	data := []byte(note)
	for len(data) < minArtifactBytes {
		data = append(data, ' ')
	}
	return data
}
