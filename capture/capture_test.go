package capture

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"murmur/audio"
	"murmur/dictation"
	"murmur/dictionary"
	"murmur/transcriber"
)

var errBoom = errors.New("boom")

// sineWave returns d of a 440 Hz tone as 16 kHz little-endian PCM.
func sineWave(d time.Duration) []byte {
	n := int(d.Seconds() * 16000)
	pcm := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		s := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		pcm = append(pcm, byte(s), byte(uint16(s)>>8))
	}
	return pcm
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(time.Millisecond):
		}
	}
}

type fixture struct {
	svc  *Service
	ac   *audio.FakeContext
	fake *transcriber.FakeTranscriber
}

func newFixture(t *testing.T, pcm []byte, fake *transcriber.FakeTranscriber, cfg Config) *fixture {
	t.Helper()
	dict, err := dictionary.New([]dictionary.Term{{Term: "wrld", Replacement: "world"}})
	if err != nil {
		t.Fatal(err)
	}
	ac := audio.NewFakeContext(pcm, false)
	svc := New(ac, fake, dict, cfg)
	t.Cleanup(svc.Close)
	return &fixture{svc: svc, ac: ac, fake: fake}
}

func (f *fixture) waitAudio(t *testing.T) {
	t.Helper()
	caps := f.ac.Captures()
	if len(caps) == 0 {
		t.Fatal("no capture opened")
	}
	select {
	case <-caps[len(caps)-1].AudioDone():
	case <-time.After(2 * time.Second):
		t.Fatal("audio never finished")
	}
}

func TestStartStopTranscribes(t *testing.T) {
	f := newFixture(t, sineWave(500*time.Millisecond), transcriber.NewFake("hello wrld", nil), Config{
		Language:  "en",
		TargetApp: func() string { return "Editor" },
	})
	ctx := context.Background()

	if err := f.svc.StartCapture(ctx, ""); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	if f.svc.Phase() != dictation.PhaseRecording {
		t.Fatalf("phase = %s", f.svc.Phase())
	}
	f.waitAudio(t)

	res, err := f.svc.StopCapture(ctx)
	if err != nil {
		t.Fatalf("StopCapture: %v", err)
	}
	if res.RawText != "hello wrld" || res.ProcessedText != "Hello world" {
		t.Errorf("result = %+v", res)
	}
	if res.TargetApp != "Editor" {
		t.Errorf("target app = %q", res.TargetApp)
	}
	if f.svc.Phase() != dictation.PhaseIdle {
		t.Errorf("phase = %s after stop", f.svc.Phase())
	}

	reqs := f.fake.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if req.Format != "flac" || req.Language != "en" || req.Prompt != "world" {
		t.Errorf("request = %+v", req)
	}
	if !bytes.HasPrefix(req.Audio, []byte("fLaC")) {
		t.Errorf("audio is not flac: % x", req.Audio[:min(8, len(req.Audio))])
	}
	if c := f.ac.Captures()[0]; !c.Closed() || c.Running() {
		t.Errorf("device closed=%v running=%v", c.Closed(), c.Running())
	}
}

func TestStartCaptureLanguageOverride(t *testing.T) {
	f := newFixture(t, sineWave(200*time.Millisecond), transcriber.NewFake("hallo", nil), Config{Language: "en"})
	ctx := context.Background()

	if err := f.svc.StartCapture(ctx, "de"); err != nil {
		t.Fatal(err)
	}
	f.waitAudio(t)
	if _, err := f.svc.StopCapture(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.fake.Requests()[0].Language; got != "de" {
		t.Errorf("language = %q, want de", got)
	}
}

func TestGuards(t *testing.T) {
	f := newFixture(t, nil, transcriber.NewFake("", nil), Config{})
	ctx := context.Background()

	if _, err := f.svc.StopCapture(ctx); !errors.Is(err, ErrNotRecording) {
		t.Errorf("stop while idle = %v", err)
	}
	if err := f.svc.CancelCapture(ctx); !errors.Is(err, ErrNotRecording) {
		t.Errorf("cancel while idle = %v", err)
	}
	if err := f.svc.StartCapture(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.StartCapture(ctx, ""); !errors.Is(err, ErrBusy) {
		t.Errorf("second start = %v, want ErrBusy", err)
	}
	if n := len(f.ac.Captures()); n != 1 {
		t.Errorf("opened %d devices, want 1", n)
	}
}

func TestAmplitudeLevels(t *testing.T) {
	f := newFixture(t, sineWave(time.Second), transcriber.NewFake("", nil), Config{Bands: 4})

	var mu sync.Mutex
	var events []dictation.AmplitudeEvent
	unlisten, err := f.svc.Amplitude().Listen(func(ev dictation.AmplitudeEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer unlisten()

	if err := f.svc.StartCapture(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "loud levels", func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range events {
			if len(ev.Levels) == 4 && ev.Levels[0] > 0.1 {
				return true
			}
		}
		return false
	})

	mu.Lock()
	defer mu.Unlock()
	for _, ev := range events {
		if len(ev.Levels) != 4 {
			t.Fatalf("levels = %v, want 4 bands", ev.Levels)
		}
		for _, l := range ev.Levels {
			if l < 0 || l > 1 {
				t.Fatalf("level %v out of range", l)
			}
		}
	}
}

func TestShortClipSkipsTranscription(t *testing.T) {
	f := newFixture(t, sineWave(100*time.Millisecond), transcriber.NewFake("never", nil), Config{MinDuration: time.Hour})
	ctx := context.Background()

	if err := f.svc.StartCapture(ctx, ""); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.StopCapture(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.RawText != "" || res.ProcessedText != "" {
		t.Errorf("result = %+v, want no text", res)
	}
	if n := len(f.fake.Requests()); n != 0 {
		t.Errorf("transcriber called %d times", n)
	}
}

func TestCancelRecording(t *testing.T) {
	f := newFixture(t, sineWave(200*time.Millisecond), transcriber.NewFake("x", nil), Config{})
	ctx := context.Background()

	if err := f.svc.StartCapture(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.CancelCapture(ctx); err != nil {
		t.Fatalf("CancelCapture: %v", err)
	}
	if f.svc.Phase() != dictation.PhaseIdle {
		t.Errorf("phase = %s", f.svc.Phase())
	}
	if !f.ac.Captures()[0].Closed() {
		t.Error("device not closed")
	}
	if n := len(f.fake.Requests()); n != 0 {
		t.Errorf("transcriber called %d times", n)
	}
	if err := f.svc.StartCapture(ctx, ""); err != nil {
		t.Errorf("start after cancel: %v", err)
	}
}

func TestTranscriberError(t *testing.T) {
	f := newFixture(t, sineWave(200*time.Millisecond), transcriber.NewFake("", errBoom), Config{})
	ctx := context.Background()

	if err := f.svc.StartCapture(ctx, ""); err != nil {
		t.Fatal(err)
	}
	f.waitAudio(t)
	if _, err := f.svc.StopCapture(ctx); !errors.Is(err, errBoom) {
		t.Fatalf("StopCapture = %v, want wrapped errBoom", err)
	}
	if f.svc.Phase() != dictation.PhaseIdle {
		t.Errorf("phase = %s", f.svc.Phase())
	}
}

func TestCancelDuringProcessing(t *testing.T) {
	slow := transcriber.NewFake("late", nil).WithDelay(10 * time.Second)
	f := newFixture(t, sineWave(200*time.Millisecond), slow, Config{})
	ctx := context.Background()

	if err := f.svc.StartCapture(ctx, ""); err != nil {
		t.Fatal(err)
	}
	f.waitAudio(t)

	errc := make(chan error, 1)
	go func() {
		_, err := f.svc.StopCapture(ctx)
		errc <- err
	}()
	waitFor(t, "transcription", func() bool { return len(slow.Requests()) == 1 })

	if err := f.svc.CancelCapture(ctx); err != nil {
		t.Fatalf("CancelCapture: %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("StopCapture = %v, want ErrCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("StopCapture did not return after cancel")
	}
	if err := f.svc.StartCapture(ctx, ""); err != nil {
		t.Errorf("start after cancel: %v", err)
	}
}

// gatedTranscriber ignores cancellation and answers once open is closed.
type gatedTranscriber struct {
	started chan struct{}
	open    chan struct{}
}

func (g *gatedTranscriber) Name() string { return "gated" }

func (g *gatedTranscriber) Transcribe(context.Context, transcriber.Request) (transcriber.Result, error) {
	close(g.started)
	<-g.open
	return transcriber.Result{Text: "too late"}, nil
}

func TestCancelledStopDropsLateTranscript(t *testing.T) {
	g := &gatedTranscriber{started: make(chan struct{}), open: make(chan struct{})}
	dict, _ := dictionary.New(nil)
	ac := audio.NewFakeContext(sineWave(300*time.Millisecond), false)
	svc := New(ac, g, dict, Config{})
	t.Cleanup(svc.Close)
	ctx := context.Background()

	if err := svc.StartCapture(ctx, ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "capture", func() bool { return len(ac.Captures()) == 1 })
	<-ac.Captures()[0].AudioDone()

	type stopped struct {
		res dictation.Result
		err error
	}
	done := make(chan stopped, 1)
	go func() {
		res, err := svc.StopCapture(ctx)
		done <- stopped{res, err}
	}()
	<-g.started

	if err := svc.CancelCapture(ctx); err != nil {
		t.Fatalf("CancelCapture: %v", err)
	}
	close(g.open)

	select {
	case got := <-done:
		if !errors.Is(got.err, ErrCancelled) {
			t.Errorf("StopCapture err = %v, want ErrCancelled", got.err)
		}
		if got.res.RawText != "" {
			t.Errorf("cancelled stop returned text %q", got.res.RawText)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("StopCapture did not return")
	}
	if svc.Phase() != dictation.PhaseIdle {
		t.Errorf("phase = %s, want idle", svc.Phase())
	}
}

type completions struct {
	mu     sync.Mutex
	phases []dictation.Phase
	done   []dictation.Result
}

func listenAll(t *testing.T, svc *Service) *completions {
	t.Helper()
	c := &completions{}
	u1, err := svc.Phases().Listen(func(ev dictation.PhaseEvent) {
		c.mu.Lock()
		c.phases = append(c.phases, ev.State)
		c.mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	u2, err := svc.Completions().Listen(func(ev dictation.CompletionEvent) {
		c.mu.Lock()
		c.done = append(c.done, ev.Result)
		c.mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { u1(); u2() })
	return c
}

func (c *completions) results() []dictation.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dictation.Result(nil), c.done...)
}

func TestMaxDurationAutoStop(t *testing.T) {
	f := newFixture(t, sineWave(200*time.Millisecond), transcriber.NewFake("hello wrld", nil), Config{MaxDuration: 50 * time.Millisecond})
	c := listenAll(t, f.svc)
	ctx := context.Background()

	if err := f.svc.StartCapture(ctx, ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "completion", func() bool { return len(c.results()) == 1 })

	if got := c.results()[0].ProcessedText; got != "Hello world" {
		t.Errorf("completion text = %q", got)
	}
	c.mu.Lock()
	if len(c.phases) != 1 || c.phases[0] != dictation.PhaseProcessing {
		t.Errorf("phase events = %v, want [processing]", c.phases)
	}
	c.mu.Unlock()
	if f.svc.Phase() != dictation.PhaseIdle {
		t.Errorf("phase = %s", f.svc.Phase())
	}
	if _, err := f.svc.StopCapture(ctx); !errors.Is(err, ErrNotRecording) {
		t.Errorf("stop after auto stop = %v", err)
	}
}

func TestAutoStopFailurePublishesIdle(t *testing.T) {
	f := newFixture(t, sineWave(200*time.Millisecond), transcriber.NewFake("", errBoom), Config{MaxDuration: 50 * time.Millisecond})
	c := listenAll(t, f.svc)

	if err := f.svc.StartCapture(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "idle phase event", func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.phases) == 2 && c.phases[1] == dictation.PhaseIdle
	})
	if n := len(c.results()); n != 0 {
		t.Errorf("completions = %d, want 0", n)
	}
}

func TestSilenceAutoStop(t *testing.T) {
	var warnings atomic.Int32
	f := newFixture(t, nil, transcriber.NewFake("", nil), Config{
		SilenceWarn:    time.Second,
		SilenceTimeout: 2 * time.Second,
		OnSilence:      func() { warnings.Add(1) },
	})
	c := listenAll(t, f.svc)

	if err := f.svc.StartCapture(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "silence completion", func() bool { return len(c.results()) == 1 })
	if warnings.Load() == 0 {
		t.Error("no silence warning before auto stop")
	}
}
