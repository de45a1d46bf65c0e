package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type AuthConfig struct {
	Enabled         bool   `yaml:"enabled"`
	InitialAdminKey string `yaml:"initialAdminKey"`
}

type RateLimitConfig struct {
	DefaultPerMinute int `yaml:"defaultPerMinute"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type WorkerConfig struct {
	MaxConcurrentTasks int `yaml:"maxConcurrentTasks"`
	PollIntervalMs     int `yaml:"pollIntervalMs"`
	MaxTaskDeliveries  int `yaml:"maxTaskDeliveries"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type GoogleConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// ContentConfig selects and configures the LLM provider used for
// script generation.
type ContentConfig struct {
	DefaultProvider string          `yaml:"defaultProvider"`
	SceneCount      int             `yaml:"sceneCount"`
	TimeoutMs       int             `yaml:"timeoutMs"`
	OpenAI          OpenAIConfig    `yaml:"openai"`
	Anthropic       AnthropicConfig `yaml:"anthropic"`
	Google          GoogleConfig    `yaml:"google"`
}

// TTSConfig configures the speech synthesis API. When disabled the
// speech client writes placeholder artifacts instead of calling out.
type TTSConfig struct {
	Enabled      bool   `yaml:"enabled"`
	BaseURL      string `yaml:"baseURL"`
	Model        string `yaml:"model"`
	Voice        string `yaml:"voice"`
	MaxRetries   int    `yaml:"maxRetries"`
	RetryDelayMs int    `yaml:"retryDelayMs"`
}

// ImageConfig configures the image generation API.
type ImageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	BaseURL      string `yaml:"baseURL"`
	Model        string `yaml:"model"`
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	MaxRetries   int    `yaml:"maxRetries"`
	RetryDelayMs int    `yaml:"retryDelayMs"`
}

// VideoConfig configures the ffmpeg-based assembly stage.
type VideoConfig struct {
	FFmpegPath  string `yaml:"ffmpegPath"`
	FFprobePath string `yaml:"ffprobePath"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	OutputDir   string `yaml:"outputDir"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Storage   StorageConfig   `yaml:"storage"`
	Worker    WorkerConfig    `yaml:"worker"`
	Content   ContentConfig   `yaml:"content"`
	TTS       TTSConfig       `yaml:"tts"`
	Image     ImageConfig     `yaml:"image"`
	Video     VideoConfig     `yaml:"video"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	return &cfg
}
