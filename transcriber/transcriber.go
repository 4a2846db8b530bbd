// Package transcriber turns a recorded FLAC clip into text through an
// OpenAI-compatible speech-to-text endpoint (Groq or OpenAI).
package transcriber

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Request is one clip to transcribe.
type Request struct {
	Audio    []byte
	Format   string // file extension, e.g. "flac"
	Language string // ISO-639-1; empty lets the service detect it
	// Prompt biases recognition towards these words.
	Prompt string
}

type Result struct {
	Text     string
	Provider string
	Elapsed  time.Duration
	Metrics  *NetworkMetrics
}

type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (Result, error)
}

const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
)

type Config struct {
	Provider string        `yaml:"provider"`
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

type providerDefaults struct {
	baseURL string
	model   string
	keyEnv  string
}

var defaults = map[string]providerDefaults{
	ProviderGroq:   {baseURL: "https://api.groq.com/openai/v1/", model: "whisper-large-v3-turbo", keyEnv: "GROQ_API_KEY"},
	ProviderOpenAI: {baseURL: "https://api.openai.com/v1/", model: "gpt-4o-transcribe", keyEnv: "OPENAI_API_KEY"},
}

// New builds the configured provider. With no provider set it picks the
// first one whose API key is in the environment, Groq first.
func New(cfg Config) (Transcriber, error) {
	provider := cfg.Provider
	if provider == "" {
		switch {
		case cfg.APIKey != "" || os.Getenv(defaults[ProviderGroq].keyEnv) != "":
			provider = ProviderGroq
		case os.Getenv(defaults[ProviderOpenAI].keyEnv) != "":
			provider = ProviderOpenAI
		default:
			return nil, fmt.Errorf("set GROQ_API_KEY or OPENAI_API_KEY environment variable")
		}
	}
	d, ok := defaults[provider]
	if !ok {
		return nil, fmt.Errorf("unknown transcription provider %q", provider)
	}

	key := cfg.APIKey
	if key == "" {
		key = os.Getenv(d.keyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("%s: set %s or transcriber.api_key", provider, d.keyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.baseURL
	}
	if cfg.Model == "" {
		cfg.Model = d.model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return NewClient(provider, key, cfg), nil
}
