package transcriber

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type FakeTranscriber struct {
	text  string
	err   error
	delay time.Duration

	mu       sync.Mutex
	requests []Request
}

func NewFake(text string, err error) *FakeTranscriber {
	return &FakeTranscriber{text: text, err: err}
}

// WithDelay makes every call take d, or until ctx is done.
func (f *FakeTranscriber) WithDelay(d time.Duration) *FakeTranscriber {
	f.delay = d
	return f
}

func (f *FakeTranscriber) Name() string { return "fake" }

func (f *FakeTranscriber) Transcribe(ctx context.Context, req Request) (Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return Result{}, fmt.Errorf("fake transcriber error: %w", f.err)
	}
	return Result{Text: f.text, Provider: "fake", Elapsed: 10 * time.Millisecond}, nil
}

// Requests returns every request received so far.
func (f *FakeTranscriber) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}
