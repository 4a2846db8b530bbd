package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"murmur/log"
)

// Client talks to any OpenAI-compatible /audio/transcriptions endpoint.
type Client struct {
	name   string
	model  string
	client oai.Client
	trace  *tracingTransport
}

func NewClient(name, apiKey string, cfg Config) *Client {
	trace := newTracingTransport(http.DefaultTransport)
	return &Client{
		name:  name,
		model: cfg.Model,
		trace: trace,
		client: oai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(cfg.BaseURL),
			option.WithHTTPClient(&http.Client{Transport: trace, Timeout: cfg.Timeout}),
			option.WithMaxRetries(1),
		),
	}
}

func (c *Client) Name() string { return c.name }

func (c *Client) Transcribe(ctx context.Context, req Request) (Result, error) {
	format := req.Format
	if format == "" {
		format = "flac"
	}
	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(req.Audio), "audio."+format, "audio/"+format),
		Model:          oai.AudioModel(c.model),
		ResponseFormat: oai.AudioResponseFormatJSON,
	}
	if req.Language != "" {
		params.Language = oai.String(req.Language)
	}
	if req.Prompt != "" {
		params.Prompt = oai.String(req.Prompt)
	}

	start := time.Now()
	res, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("%s transcription: %w", c.name, err)
	}
	elapsed := time.Since(start)

	metrics := c.trace.last()
	if metrics != nil {
		log.Debugf("%s network: dns=%v tls=%v ttfb=%v total=%v reused=%v ratelimit=%s",
			c.name, metrics.DNS, metrics.TLS, metrics.TTFB, metrics.Total, metrics.ConnReused, metrics.RateLimit)
	}
	return Result{
		Text:     strings.TrimSpace(res.Text),
		Provider: c.name,
		Elapsed:  elapsed,
		Metrics:  metrics,
	}, nil
}
