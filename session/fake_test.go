package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"murmur/dictation"
	"murmur/event"
)

// recorder keeps the order of every collaborator call across all fakes.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

func (r *recorder) count(call string) int {
	n := 0
	for _, c := range r.list() {
		if c == call {
			n++
		}
	}
	return n
}

type fakeCapture struct {
	rec       *recorder
	startErr  error
	stopErr   error
	cancelErr error
	result    dictation.Result
	onStart   func()
	onStop    func()
}

func (f *fakeCapture) StartCapture(_ context.Context, language string) error {
	f.rec.add("capture:start:" + language)
	if f.onStart != nil {
		f.onStart()
	}
	return f.startErr
}

func (f *fakeCapture) StopCapture(context.Context) (dictation.Result, error) {
	f.rec.add("capture:stop")
	if f.onStop != nil {
		f.onStop()
	}
	if f.stopErr != nil {
		return dictation.Result{}, f.stopErr
	}
	return f.result, nil
}

func (f *fakeCapture) CancelCapture(context.Context) error {
	f.rec.add("capture:cancel")
	return f.cancelErr
}

type fakeHotkeys struct {
	rec         *recorder
	registerErr error
	listenErr   error
	registered  []dictation.Registration
}

func (f *fakeHotkeys) RegisterHotkey(_ context.Context, reg dictation.Registration) error {
	f.rec.add("hotkey:register:" + reg.ID)
	if f.registerErr != nil {
		return f.registerErr
	}
	f.registered = append(f.registered, reg)
	return nil
}

func (f *fakeHotkeys) UnregisterHotkey(_ context.Context, id string) error {
	f.rec.add("hotkey:unregister:" + id)
	return nil
}

func (f *fakeHotkeys) StartListening(context.Context) error {
	f.rec.add("hotkey:listen")
	return f.listenErr
}

func (f *fakeHotkeys) StopListening(context.Context) error {
	f.rec.add("hotkey:stop_listening")
	return nil
}

type fakeSounds struct{ rec *recorder }

func (f *fakeSounds) Play(_ context.Context, cue dictation.Cue) error {
	f.rec.add("sound:" + string(cue))
	return nil
}

type fakeInjector struct {
	rec *recorder
	err error
}

func (f *fakeInjector) InjectText(_ context.Context, text string) error {
	f.rec.add("inject:" + text)
	return f.err
}

type fakeOverlay struct {
	rec *recorder
	err error
}

func (f *fakeOverlay) Show() error {
	f.rec.add("overlay:show")
	return f.err
}

func (f *fakeOverlay) Hide() error {
	f.rec.add("overlay:hide")
	return f.err
}

type failingSource[T any] struct{ err error }

func (f failingSource[T]) Listen(func(T)) (event.Unlisten, error) { return nil, f.err }

type harness struct {
	c          *Controller
	rec        *recorder
	capture    *fakeCapture
	hotkeys    *fakeHotkeys
	injector   *fakeInjector
	overlay    *fakeOverlay
	amplitude  *event.Topic[dictation.AmplitudeEvent]
	phase      *event.Topic[dictation.PhaseEvent]
	completion *event.Topic[dictation.CompletionEvent]
	actions    *event.Topic[dictation.HotkeyActionEvent]
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rec := &recorder{}
	h := &harness{
		rec:        rec,
		capture:    &fakeCapture{rec: rec},
		hotkeys:    &fakeHotkeys{rec: rec},
		injector:   &fakeInjector{rec: rec},
		overlay:    &fakeOverlay{rec: rec},
		amplitude:  event.NewTopic[dictation.AmplitudeEvent]("amplitude"),
		phase:      event.NewTopic[dictation.PhaseEvent]("phase"),
		completion: event.NewTopic[dictation.CompletionEvent]("completion"),
		actions:    event.NewTopic[dictation.HotkeyActionEvent]("hotkey_action"),
	}
	h.c = New(h.config())
	return h
}

func (h *harness) config() Config {
	return Config{
		Capture:  h.capture,
		Hotkeys:  h.hotkeys,
		Sounds:   &fakeSounds{rec: h.rec},
		Injector: h.injector,
		Overlay:  h.overlay,
		Streams: Streams{
			Amplitude:    h.amplitude,
			Phase:        h.phase,
			Completion:   h.completion,
			HotkeyAction: h.actions,
		},
		Registration: dictation.DefaultRegistration(),
	}
}

// force puts the controller into phase p without side effects.
func (h *harness) force(p dictation.Phase) {
	h.c.mu.Lock()
	h.c.phase = p
	h.c.mu.Unlock()
}

func (h *harness) assertCalls(t *testing.T, want ...string) {
	t.Helper()
	got := h.rec.list()
	if !slices.Equal(got, want) {
		t.Errorf("calls:\n got  %q\n want %q", got, want)
	}
}

func assertPhase(t *testing.T, c *Controller, want dictation.Phase) {
	t.Helper()
	if got := c.Phase(); got != want {
		t.Errorf("phase = %s, want %s", got, want)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(time.Millisecond):
		}
	}
}

var errBoom = errors.New("boom")
