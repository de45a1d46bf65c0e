// Package content turns a user prompt into a structured scene script
// via an LLM provider.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/model"
)

// Provider represents a logical LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// Generator produces a validated scene script from a prompt.
type Generator interface {
	GenerateScript(ctx context.Context, prompt string) (model.Content, error)
}

const systemInstruction = "You are a short-video scriptwriter. Respond with a single JSON object and no extra text. " +
	`The object has keys "title" (string), "description" (string), "tags" (array of strings) and "scenes" ` +
	`(array of objects with "title", "text" and "image"). "text" is the narration for the scene and "image" ` +
	"is a detailed visual description for an image generator."

func userInstruction(prompt string, sceneCount int) string {
	if sceneCount < 1 {
		sceneCount = 5
	}
	return fmt.Sprintf("Write a narrated short-video script with exactly %d scenes about the following topic. "+
		"Keep each scene's narration to two or three sentences.\n\nTopic: %s", sceneCount, prompt)
}

// parseScript parses a Content object out of an LLM response. Models
// wrap JSON in markdown fences or chat it up; try the whole string
// first, then strip fences, then salvage the outermost {...} block.
func parseScript(raw string) (model.Content, error) {
	candidates := []string{raw}

	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		candidates = append(candidates, trimmed)
	}
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start != -1 && end > start {
		candidates = append(candidates, raw[start:end+1])
	}

	var lastErr error
	for _, candidate := range candidates {
		var c model.Content
		if err := json.Unmarshal([]byte(candidate), &c); err != nil {
			lastErr = err
			continue
		}
		return c, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no JSON object found in content")
	}
	return model.Content{}, lastErr
}

// normalize fills derivable fields and rejects scripts the asset
// stages cannot work with.
func normalize(c *model.Content) error {
	if strings.TrimSpace(c.Title) == "" {
		return errors.New("script has no title")
	}
	if len(c.Scenes) == 0 {
		return errors.New("script has no scenes")
	}

	texts := make([]string, 0, len(c.Scenes))
	for i := range c.Scenes {
		scene := &c.Scenes[i]
		if strings.TrimSpace(scene.Text) == "" {
			return fmt.Errorf("scene %d has no narration text", i+1)
		}
		if strings.TrimSpace(scene.Image) == "" {
			return fmt.Errorf("scene %d has no image description", i+1)
		}
		if strings.TrimSpace(scene.Title) == "" {
			scene.Title = fmt.Sprintf("Scene %d", i+1)
		}
		texts = append(texts, scene.Text)
	}

	if strings.TrimSpace(c.Description) == "" {
		c.Description = strings.Join(texts, " ")
	}
	return nil
}

// NewFromConfig constructs a Generator for the configured provider.
func NewFromConfig(cfg *config.Config) (Generator, Provider, string, error) {
	prov := Provider(cfg.Content.DefaultProvider)

	timeout := 60 * time.Second
	if cfg.Content.TimeoutMs > 0 {
		timeout = time.Duration(cfg.Content.TimeoutMs) * time.Millisecond
	}
	sceneCount := cfg.Content.SceneCount

	switch prov {
	case ProviderOpenAI:
		openaiCfg := cfg.Content.OpenAI
		if openaiCfg.APIKey == "" || openaiCfg.Model == "" {
			return nil, prov, openaiCfg.Model, errors.New("openai content provider is not fully configured")
		}
		return &openAIGenerator{
			apiKey:     openaiCfg.APIKey,
			baseURL:    openaiCfg.BaseURL,
			model:      openaiCfg.Model,
			sceneCount: sceneCount,
			http:       &http.Client{Timeout: timeout},
		}, prov, openaiCfg.Model, nil
	case ProviderAnthropic:
		anthCfg := cfg.Content.Anthropic
		if anthCfg.APIKey == "" || anthCfg.Model == "" {
			return nil, prov, anthCfg.Model, errors.New("anthropic content provider is not fully configured")
		}
		return &anthropicGenerator{
			apiKey:     anthCfg.APIKey,
			model:      anthCfg.Model,
			sceneCount: sceneCount,
			http:       &http.Client{Timeout: timeout},
		}, prov, anthCfg.Model, nil
	case ProviderGoogle:
		googleCfg := cfg.Content.Google
		if googleCfg.APIKey == "" || googleCfg.Model == "" {
			return nil, prov, googleCfg.Model, errors.New("google content provider is not fully configured")
		}
		return &googleGenerator{
			apiKey:     googleCfg.APIKey,
			model:      googleCfg.Model,
			sceneCount: sceneCount,
			http:       &http.Client{Timeout: timeout},
		}, prov, googleCfg.Model, nil
	default:
		return nil, prov, "", fmt.Errorf("unsupported content provider: %s", cfg.Content.DefaultProvider)
	}
}

// openAIGenerator implements Generator using OpenAI-compatible Chat Completions.
type openAIGenerator struct {
	apiKey     string
	baseURL    string
	model      string
	sceneCount int
	http       *http.Client
}

// anthropicGenerator implements Generator using Anthropic's Messages API.
type anthropicGenerator struct {
	apiKey     string
	model      string
	sceneCount int
	http       *http.Client
}

// googleGenerator implements Generator using Google Gemini (Generative Language API).
type googleGenerator struct {
	apiKey     string
	model      string
	sceneCount int
	http       *http.Client
}

type openAIChatRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIChatMessage   `json:"messages"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}

type anthropicMessagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string                 `json:"role"`
	Content []anthropicTextContent `json:"content"`
}

type anthropicTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessagesResponse struct {
	Content []anthropicTextContent `json:"content"`
}

type googleGenerateContentRequest struct {
	Contents []googleContent `json:"contents"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text,omitempty"`
}

type googleGenerateContentResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
}

func finishScript(raw string) (model.Content, error) {
	c, err := parseScript(raw)
	if err != nil {
		return model.Content{}, fmt.Errorf("failed to parse JSON from LLM response: %w", err)
	}
	if err := normalize(&c); err != nil {
		return model.Content{}, err
	}
	return c, nil
}

func (g *openAIGenerator) GenerateScript(ctx context.Context, prompt string) (model.Content, error) {
	body := openAIChatRequest{
		Model: g.model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: userInstruction(prompt, g.sceneCount)},
		},
		Temperature:    0.7,
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return model.Content{}, err
	}

	endpoint := g.baseURL
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	endpoint = endpoint + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return model.Content{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return model.Content{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.Content{}, fmt.Errorf("openai chat completion failed with status %d", resp.StatusCode)
	}

	var parsed openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return model.Content{}, err
	}
	if len(parsed.Choices) == 0 {
		return model.Content{}, errors.New("openai chat completion returned no choices")
	}

	return finishScript(parsed.Choices[0].Message.Content)
}

func (g *anthropicGenerator) GenerateScript(ctx context.Context, prompt string) (model.Content, error) {
	body := anthropicMessagesRequest{
		Model:     g.model,
		MaxTokens: 4096,
		System:    systemInstruction,
		Messages: []anthropicMessage{
			{
				Role: "user",
				Content: []anthropicTextContent{
					{Type: "text", Text: userInstruction(prompt, g.sceneCount)},
				},
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return model.Content{}, err
	}

	endpoint := "https://api.anthropic.com/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return model.Content{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", g.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return model.Content{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.Content{}, fmt.Errorf("anthropic messages request failed with status %d", resp.StatusCode)
	}

	var parsed anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return model.Content{}, err
	}
	if len(parsed.Content) == 0 {
		return model.Content{}, errors.New("anthropic messages returned no content")
	}

	return finishScript(parsed.Content[0].Text)
}

func (g *googleGenerator) GenerateScript(ctx context.Context, prompt string) (model.Content, error) {
	body := googleGenerateContentRequest{
		Contents: []googleContent{
			{
				Parts: []googlePart{{Text: systemInstruction + "\n\n" + userInstruction(prompt, g.sceneCount)}},
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return model.Content{}, err
	}

	base := "https://generativelanguage.googleapis.com/v1beta"
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", base, g.model, url.QueryEscape(g.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return model.Content{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return model.Content{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.Content{}, fmt.Errorf("google generateContent failed with status %d", resp.StatusCode)
	}

	var parsed googleGenerateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return model.Content{}, err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return model.Content{}, errors.New("google generateContent returned no candidates")
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	return finishScript(sb.String())
}
