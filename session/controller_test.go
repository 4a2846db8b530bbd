package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"murmur/dictation"
)

func TestStartFromIdle(t *testing.T) {
	h := newHarness(t)

	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	assertPhase(t, h.c, dictation.PhaseRecording)
	h.assertCalls(t, "sound:StartRecording", "overlay:show", "capture:start:")
}

func TestStartIgnoredUnlessIdle(t *testing.T) {
	for _, p := range []dictation.Phase{dictation.PhaseRecording, dictation.PhaseLocked, dictation.PhaseProcessing} {
		t.Run(string(p), func(t *testing.T) {
			h := newHarness(t)
			h.force(p)

			if err := h.c.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}
			assertPhase(t, h.c, p)
			h.assertCalls(t)
		})
	}
}

func TestStartFailureRollsBackToIdle(t *testing.T) {
	h := newHarness(t)
	h.capture.startErr = errBoom

	err := h.c.Start(context.Background())
	if !errors.Is(err, errBoom) {
		t.Fatalf("Start err = %v, want wrapped errBoom", err)
	}
	assertPhase(t, h.c, dictation.PhaseIdle)
	h.assertCalls(t,
		"sound:StartRecording", "overlay:show", "capture:start:",
		"overlay:hide", "sound:Error",
	)
}

func TestStartFailureKeepsNewerPhase(t *testing.T) {
	h := newHarness(t)
	h.capture.startErr = errBoom
	// The capture service reports Locked before the failed start returns.
	h.capture.onStart = func() { h.force(dictation.PhaseLocked) }

	if err := h.c.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	assertPhase(t, h.c, dictation.PhaseLocked)
}

func TestStartLockStopScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	want := dictation.Result{RawText: "hello wrld", ProcessedText: "Hello world", DurationMs: 2300}
	h.capture.result = want

	if err := h.c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	assertPhase(t, h.c, dictation.PhaseRecording)

	if err := h.c.route(ctx, dictation.HotkeyActionEvent{HotkeyID: "dictation-main", Action: dictation.ActionLock}); err != nil {
		t.Fatalf("route lock: %v", err)
	}
	assertPhase(t, h.c, dictation.PhaseLocked)

	h.rec.reset()
	if err := h.c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	assertPhase(t, h.c, dictation.PhaseIdle)
	h.assertCalls(t, "capture:stop", "inject:Hello world", "overlay:hide", "sound:StopRecording")
	snap := h.c.Snapshot()
	if snap.LastResult == nil || *snap.LastResult != want {
		t.Errorf("last result = %+v, want %+v", snap.LastResult, want)
	}
	if snap.ResultSeq != 1 {
		t.Errorf("ResultSeq = %d, want 1", snap.ResultSeq)
	}
}

func TestStopCaptureFailureStillFinalizes(t *testing.T) {
	h := newHarness(t)
	previous := dictation.Result{RawText: "earlier", ProcessedText: "Earlier", DurationMs: 900}
	h.c.storeResultFor(h.c.cycle, previous)
	h.force(dictation.PhaseRecording)
	h.capture.stopErr = errBoom

	err := h.c.Stop(context.Background())
	if !errors.Is(err, errBoom) {
		t.Fatalf("Stop err = %v, want wrapped errBoom", err)
	}

	assertPhase(t, h.c, dictation.PhaseIdle)
	h.assertCalls(t, "capture:stop", "overlay:hide", "sound:StopRecording")
	if got := h.c.Snapshot().LastResult; got == nil || *got != previous {
		t.Errorf("last result changed to %+v", got)
	}
}

func TestStopInjectFailureKeepsResult(t *testing.T) {
	h := newHarness(t)
	h.force(dictation.PhaseLocked)
	h.capture.result = dictation.Result{RawText: "hi", ProcessedText: "Hi", DurationMs: 400}
	h.injector.err = errBoom

	if err := h.c.Stop(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("Stop err = %v, want wrapped errBoom", err)
	}
	assertPhase(t, h.c, dictation.PhaseIdle)
	if got := h.c.Snapshot().LastResult; got == nil || got.ProcessedText != "Hi" {
		t.Errorf("last result = %+v, want the failed injection's result", got)
	}
	h.assertCalls(t, "capture:stop", "inject:Hi", "overlay:hide", "sound:StopRecording")
}

func TestStopSkipsInjectionForEmptyText(t *testing.T) {
	h := newHarness(t)
	h.force(dictation.PhaseRecording)
	h.capture.result = dictation.Result{DurationMs: 300}

	if err := h.c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	h.assertCalls(t, "capture:stop", "overlay:hide", "sound:StopRecording")
}

func TestStopFinalizesWithCancelledContext(t *testing.T) {
	h := newHarness(t)
	h.force(dictation.PhaseRecording)
	h.capture.stopErr = context.Canceled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h.c.Stop(ctx)

	assertPhase(t, h.c, dictation.PhaseIdle)
	if h.rec.count("sound:StopRecording") != 1 {
		t.Error("stop cue not played with a cancelled context")
	}
}

func TestStopIgnoredWhenIdleOrProcessing(t *testing.T) {
	for _, p := range []dictation.Phase{dictation.PhaseIdle, dictation.PhaseProcessing} {
		t.Run(string(p), func(t *testing.T) {
			h := newHarness(t)
			h.force(p)

			if err := h.c.Stop(context.Background()); err != nil {
				t.Fatalf("Stop: %v", err)
			}
			assertPhase(t, h.c, p)
			h.assertCalls(t)
		})
	}
}

func TestCancelReturnsToIdle(t *testing.T) {
	for _, p := range []dictation.Phase{dictation.PhaseRecording, dictation.PhaseLocked, dictation.PhaseProcessing} {
		t.Run(string(p), func(t *testing.T) {
			h := newHarness(t)
			h.force(p)
			h.c.onAmplitude(dictation.AmplitudeEvent{Levels: []float32{0.2, 0.4}})

			if err := h.c.Cancel(context.Background()); err != nil {
				t.Fatalf("Cancel: %v", err)
			}

			snap := h.c.Snapshot()
			if snap.Phase != dictation.PhaseIdle {
				t.Errorf("phase = %s, want idle", snap.Phase)
			}
			if len(snap.Levels) != 0 {
				t.Errorf("levels = %v, want empty", snap.Levels)
			}
			if snap.LastResult != nil || snap.ResultSeq != 0 {
				t.Errorf("cancel produced a result: %+v", snap.LastResult)
			}
			h.assertCalls(t, "capture:cancel", "overlay:hide")
		})
	}
}

func TestCancelIgnoresCommandFailure(t *testing.T) {
	h := newHarness(t)
	h.force(dictation.PhaseRecording)
	h.capture.cancelErr = errBoom

	if err := h.c.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	assertPhase(t, h.c, dictation.PhaseIdle)
}

func TestCancelIgnoredWhenIdle(t *testing.T) {
	h := newHarness(t)
	h.c.Cancel(context.Background())
	h.assertCalls(t)
}

func TestLockOnlyFromRecording(t *testing.T) {
	for _, tt := range []struct {
		from, want dictation.Phase
	}{
		{dictation.PhaseIdle, dictation.PhaseIdle},
		{dictation.PhaseRecording, dictation.PhaseLocked},
		{dictation.PhaseLocked, dictation.PhaseLocked},
		{dictation.PhaseProcessing, dictation.PhaseProcessing},
	} {
		t.Run(string(tt.from), func(t *testing.T) {
			h := newHarness(t)
			h.force(tt.from)
			h.c.Lock(context.Background())
			assertPhase(t, h.c, tt.want)
			h.assertCalls(t)
		})
	}
}

func TestUnlockBehavesLikeStop(t *testing.T) {
	result := dictation.Result{RawText: "ok", ProcessedText: "Ok", DurationMs: 1000}

	viaUnlock := newHarness(t)
	viaUnlock.force(dictation.PhaseLocked)
	viaUnlock.capture.result = result
	if err := viaUnlock.c.Unlock(context.Background()); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	viaStop := newHarness(t)
	viaStop.force(dictation.PhaseLocked)
	viaStop.capture.result = result
	if err := viaStop.c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	viaUnlock.assertCalls(t, viaStop.rec.list()...)
	a, b := viaUnlock.c.Snapshot(), viaStop.c.Snapshot()
	if a.Phase != b.Phase || *a.LastResult != *b.LastResult {
		t.Errorf("unlock ended at %+v, stop ended at %+v", a, b)
	}
}

func TestUnlockIgnoredUnlessLocked(t *testing.T) {
	for _, p := range []dictation.Phase{dictation.PhaseIdle, dictation.PhaseRecording, dictation.PhaseProcessing} {
		h := newHarness(t)
		h.force(p)
		h.c.Unlock(context.Background())
		assertPhase(t, h.c, p)
		h.assertCalls(t)
	}
}

func TestAmplitudeClearedOnStop(t *testing.T) {
	h := newHarness(t)
	h.force(dictation.PhaseRecording)
	h.c.onAmplitude(dictation.AmplitudeEvent{Levels: []float32{0.1, 0.9}})
	if got := h.c.Snapshot().Levels; len(got) != 2 {
		t.Fatalf("levels = %v, want 2 bands", got)
	}

	h.c.Stop(context.Background())

	if got := h.c.Snapshot().Levels; len(got) != 0 {
		t.Errorf("levels = %v after stop, want empty", got)
	}
}

func TestAmplitudeIgnoredWhileIdle(t *testing.T) {
	h := newHarness(t)
	h.c.onAmplitude(dictation.AmplitudeEvent{Levels: []float32{1}})
	if got := h.c.Snapshot().Levels; len(got) != 0 {
		t.Errorf("levels = %v while idle", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	h := newHarness(t)
	h.force(dictation.PhaseRecording)
	levels := []float32{0.5}
	h.c.onAmplitude(dictation.AmplitudeEvent{Levels: levels})
	levels[0] = 0

	snap := h.c.Snapshot()
	snap.Levels[0] = 0.9
	if got := h.c.Snapshot().Levels[0]; got != 0.5 {
		t.Errorf("controller level = %v, want 0.5", got)
	}
}

func TestCapturePhaseEventWins(t *testing.T) {
	h := newHarness(t)
	h.force(dictation.PhaseRecording)
	h.c.onAmplitude(dictation.AmplitudeEvent{Levels: []float32{0.3}})

	h.c.onCapturePhase(dictation.PhaseEvent{State: dictation.PhaseIdle})

	snap := h.c.Snapshot()
	if snap.Phase != dictation.PhaseIdle || len(snap.Levels) != 0 {
		t.Errorf("snapshot = %+v, want idle with no levels", snap)
	}
	h.assertCalls(t, "overlay:hide")

	h.c.onCapturePhase(dictation.PhaseEvent{State: "paused"})
	assertPhase(t, h.c, dictation.PhaseIdle)
}

func TestCompletionEventForcesIdle(t *testing.T) {
	h := newHarness(t)
	h.force(dictation.PhaseLocked)
	want := dictation.Result{RawText: "auto", ProcessedText: "Auto", DurationMs: 60000}

	h.c.onCompletion(dictation.CompletionEvent{Result: want})

	snap := h.c.Snapshot()
	if snap.Phase != dictation.PhaseIdle {
		t.Errorf("phase = %s, want idle", snap.Phase)
	}
	if snap.LastResult == nil || *snap.LastResult != want {
		t.Errorf("last result = %+v", snap.LastResult)
	}
	h.assertCalls(t, "overlay:hide")
}

func TestConcurrentStartsOnlyOneWins(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.c.Start(context.Background())
		}()
	}
	wg.Wait()

	if n := h.rec.count("capture:start:"); n != 1 {
		t.Errorf("capture started %d times, want 1", n)
	}
	assertPhase(t, h.c, dictation.PhaseRecording)
}

func TestRandomOperationsKeepPhaseValid(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 2000; i++ {
		h.capture.startErr, h.capture.stopErr, h.capture.cancelErr = nil, nil, nil
		if rng.Intn(4) == 0 {
			h.capture.startErr, h.capture.stopErr, h.capture.cancelErr = errBoom, errBoom, errBoom
		}
		before := h.c.Phase()

		switch rng.Intn(7) {
		case 0:
			h.c.Start(ctx)
		case 1:
			h.c.Stop(ctx)
			if before.Active() {
				assertPhase(t, h.c, dictation.PhaseIdle)
			}
		case 2:
			h.c.Cancel(ctx)
			assertPhase(t, h.c, dictation.PhaseIdle)
		case 3:
			h.c.Lock(ctx)
		case 4:
			h.c.Unlock(ctx)
		case 5:
			h.c.onAmplitude(dictation.AmplitudeEvent{Levels: []float32{rng.Float32()}})
		case 6:
			phases := []dictation.Phase{dictation.PhaseIdle, dictation.PhaseRecording, dictation.PhaseLocked, dictation.PhaseProcessing}
			h.c.onCapturePhase(dictation.PhaseEvent{State: phases[rng.Intn(len(phases))]})
		}

		snap := h.c.Snapshot()
		if !snap.Phase.IsValid() {
			t.Fatalf("step %d: invalid phase %q", i, snap.Phase)
		}
		if snap.Phase == dictation.PhaseIdle && len(snap.Levels) != 0 {
			t.Fatalf("step %d: idle with levels %v", i, snap.Levels)
		}
	}
}

func TestChangesPublishesSnapshots(t *testing.T) {
	h := newHarness(t)
	var mu sync.Mutex
	var phases []dictation.Phase
	stop, err := h.c.Changes().Listen(func(s Snapshot) {
		mu.Lock()
		phases = append(phases, s.Phase)
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	h.capture.result = dictation.Result{ProcessedText: "x"}
	h.c.Start(context.Background())
	h.c.Stop(context.Background())

	waitFor(t, "idle snapshot", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(phases) > 0 && phases[len(phases)-1] == dictation.PhaseIdle
	})
	mu.Lock()
	defer mu.Unlock()
	want := []dictation.Phase{dictation.PhaseRecording, dictation.PhaseProcessing, dictation.PhaseProcessing, dictation.PhaseIdle}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}
}

// blockStop makes the fake capture's StopCapture wait until the returned
// release func is called. entered is closed once StopCapture is waiting.
func blockStop(h *harness) (entered <-chan struct{}, release func()) {
	in := make(chan struct{})
	gate := make(chan struct{})
	h.capture.onStop = func() {
		close(in)
		<-gate
	}
	return in, func() { close(gate) }
}

func TestCancelDuringStopDropsStaleResult(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.force(dictation.PhaseRecording)
	h.capture.result = dictation.Result{RawText: "stale text", ProcessedText: "stale text"}
	entered, release := blockStop(h)

	errc := make(chan error, 1)
	go func() { errc <- h.c.Stop(ctx) }()
	<-entered

	if err := h.c.Cancel(ctx); err != nil {
		t.Fatal(err)
	}
	assertPhase(t, h.c, dictation.PhaseIdle)
	if err := h.c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	assertPhase(t, h.c, dictation.PhaseRecording)

	release()
	if err := <-errc; err != nil {
		t.Fatalf("Stop: %v", err)
	}

	snap := h.c.Snapshot()
	if snap.Phase != dictation.PhaseRecording {
		t.Errorf("phase = %s after the cancelled stop returned, want recording", snap.Phase)
	}
	if snap.LastResult != nil {
		t.Errorf("cancelled cycle stored %+v", snap.LastResult)
	}
	h.assertCalls(t,
		"capture:stop",
		"capture:cancel", "overlay:hide",
		"sound:StartRecording", "overlay:show", "capture:start:")
}

func TestStopReportingCancellationSkipsStopCue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.force(dictation.PhaseLocked)
	h.capture.stopErr = dictation.ErrCaptureCancelled
	entered, release := blockStop(h)

	errc := make(chan error, 1)
	go func() { errc <- h.c.Stop(ctx) }()
	<-entered
	h.c.Cancel(ctx)
	release()

	if err := <-errc; err != nil {
		t.Fatalf("Stop = %v, want nil for a cancelled capture", err)
	}
	assertPhase(t, h.c, dictation.PhaseIdle)
	h.assertCalls(t, "capture:stop", "capture:cancel", "overlay:hide")
}

func TestCompletionOvertakingProcessingEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := dictation.Result{RawText: "auto", ProcessedText: "Auto", DurationMs: 100}

	// completion first, then its Processing event
	h.c.Start(ctx)
	h.c.onCompletion(dictation.CompletionEvent{Result: res})
	h.c.onCapturePhase(dictation.PhaseEvent{State: dictation.PhaseProcessing})
	assertPhase(t, h.c, dictation.PhaseIdle)

	// the late Processing event lands after the next cycle started
	h.c.Start(ctx)
	h.c.onCompletion(dictation.CompletionEvent{Result: res})
	h.c.Start(ctx)
	h.c.onCapturePhase(dictation.PhaseEvent{State: dictation.PhaseProcessing})
	assertPhase(t, h.c, dictation.PhaseRecording)

	// in order, Processing is applied and the completion ends it
	h.c.onCapturePhase(dictation.PhaseEvent{State: dictation.PhaseProcessing})
	assertPhase(t, h.c, dictation.PhaseProcessing)
	h.c.onCompletion(dictation.CompletionEvent{Result: res})
	assertPhase(t, h.c, dictation.PhaseIdle)

	if err := h.c.Start(ctx); err != nil || h.c.Phase() != dictation.PhaseRecording {
		t.Errorf("start after auto stops: phase %s, err %v", h.c.Phase(), err)
	}
}

func TestProcessingEventAfterCancelIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.c.Start(ctx)
	h.c.Cancel(ctx)

	h.c.onCapturePhase(dictation.PhaseEvent{State: dictation.PhaseProcessing})
	assertPhase(t, h.c, dictation.PhaseIdle)
}

func TestAutoStopStreamsNeverWedge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.c.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	defer h.c.Teardown(ctx)

	for i := 1; i <= 200; i++ {
		waitFor(t, "idle", func() bool { return h.c.Phase() == dictation.PhaseIdle })
		if err := h.c.Start(ctx); err != nil {
			t.Fatal(err)
		}
		h.phase.Publish(dictation.PhaseEvent{State: dictation.PhaseProcessing})
		h.completion.Publish(dictation.CompletionEvent{Result: dictation.Result{ProcessedText: "auto"}})
		seq := uint64(i)
		waitFor(t, "completion", func() bool { return h.c.Snapshot().ResultSeq == seq })
	}

	time.Sleep(20 * time.Millisecond)
	assertPhase(t, h.c, dictation.PhaseIdle)
}

func TestUnlockOnlyStopsFromLocked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var mu sync.Mutex
	var phases []dictation.Phase
	stop, err := h.c.Changes().Listen(func(s Snapshot) {
		mu.Lock()
		phases = append(phases, s.Phase)
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	const rounds = 300
	for i := 0; i < rounds; i++ {
		h.c.onCapturePhase(dictation.PhaseEvent{State: dictation.PhaseLocked})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); h.c.Unlock(ctx) }()
		go func() {
			defer wg.Done()
			h.c.onCapturePhase(dictation.PhaseEvent{State: dictation.PhaseRecording})
		}()
		wg.Wait()
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(phases); i++ {
		if phases[i] != dictation.PhaseProcessing || phases[i-1] == dictation.PhaseProcessing {
			continue
		}
		if phases[i-1] != dictation.PhaseLocked {
			t.Fatalf("snapshot %d: processing entered from %s", i, phases[i-1])
		}
	}
}
