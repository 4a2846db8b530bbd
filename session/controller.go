// Package session drives one dictation session: it owns the current phase,
// reacts to hotkey gestures and capture events, and sequences the commands
// sent to the capture, sound, injection and overlay collaborators.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"murmur/dictation"
	"murmur/event"
	"murmur/log"
)

// Config lists the collaborators a Controller drives. Sounds, Injector and
// Overlay may be nil.
type Config struct {
	Capture      Capture
	Hotkeys      Hotkeys
	Sounds       Sounds
	Injector     Injector
	Overlay      Overlay
	Streams      Streams
	Registration dictation.Registration
}

// Snapshot is a copy of the controller's observable state.
type Snapshot struct {
	Phase      dictation.Phase
	Levels     []float32
	LastResult *dictation.Result
	// ResultSeq increases every time LastResult is replaced.
	ResultSeq uint64
}

// Controller is the dictation state machine. Guard checks and the phase
// mutation they protect happen under one lock, so two operations can never
// both act on the same phase. Collaborator commands run outside the lock.
type Controller struct {
	capture  Capture
	hotkeys  Hotkeys
	sounds   Sounds
	injector Injector
	overlay  Overlay
	streams  Streams
	reg      dictation.Registration
	changes  *event.Topic[Snapshot]

	mu         sync.Mutex
	phase      dictation.Phase
	levels     []float32
	lastResult *dictation.Result
	resultSeq  uint64
	// cycle identifies the current capture cycle. Start and Cancel advance
	// it so commands still running for an older cycle can tell.
	cycle uint64
	// processingSeen is set once the capture's Processing event for an
	// auto-stop has been consumed; staleProcessing counts Processing events
	// whose completion overtook them on the other stream.
	processingSeen  bool
	staleProcessing int

	subMu       sync.Mutex
	initialized bool
	unlisteners []event.Unlisten
	registered  bool
	listening   bool
	eventCtx    context.Context
}

func New(cfg Config) *Controller {
	return &Controller{
		capture:  cfg.Capture,
		hotkeys:  cfg.Hotkeys,
		sounds:   cfg.Sounds,
		injector: cfg.Injector,
		overlay:  cfg.Overlay,
		streams:  cfg.Streams,
		reg:      cfg.Registration,
		changes:  event.NewTopic[Snapshot]("session_changes"),
		phase:    dictation.PhaseIdle,
		eventCtx: context.Background(),
	}
}

// Changes publishes a Snapshot after every state mutation.
func (c *Controller) Changes() *event.Topic[Snapshot] { return c.changes }

func (c *Controller) Phase() dictation.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Phase:     c.phase,
		Levels:    slices.Clone(c.levels),
		ResultSeq: c.resultSeq,
	}
	if c.lastResult != nil {
		r := *c.lastResult
		s.LastResult = &r
	}
	return s
}

// setLocked replaces the phase and publishes the new state. c.mu must be held.
func (c *Controller) setLocked(op string, to dictation.Phase) {
	from := c.phase
	c.phase = to
	if to == dictation.PhaseIdle {
		c.levels = nil
	}
	log.Transition(op, string(from), string(to))
	c.changes.Publish(c.snapshotLocked())
}

// transition moves to `to` only if guard accepts the current phase.
func (c *Controller) transition(op string, guard func(dictation.Phase) bool, to dictation.Phase) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !guard(c.phase) {
		log.Debugf("%s ignored in phase %s", op, c.phase)
		return 0, false
	}
	if to == dictation.PhaseRecording {
		c.cycle++
		c.processingSeen = false
	}
	c.setLocked(op, to)
	return c.cycle, true
}

// Start begins a capture cycle. It does nothing unless the phase is Idle.
// If the capture service refuses to start, the phase returns to Idle and
// the error is returned.
func (c *Controller) Start(ctx context.Context) error {
	cycle, ok := c.transition("start", isIdle, dictation.PhaseRecording)
	if !ok {
		return nil
	}

	c.play(ctx, dictation.CueStartRecording)
	c.showOverlay()

	if err := c.capture.StartCapture(ctx, ""); err != nil {
		log.Errorf("start capture: %v", err)
		c.rollbackStart(cycle)
		c.hideOverlay()
		c.play(context.WithoutCancel(ctx), dictation.CueError)
		return fmt.Errorf("start capture: %w", err)
	}
	log.Info("dictation_started")
	return nil
}

// rollbackStart undoes Start's phase change unless something else moved the
// phase on since.
func (c *Controller) rollbackStart(cycle uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cycle == cycle && c.phase == dictation.PhaseRecording {
		c.setLocked("start_failed", dictation.PhaseIdle)
	}
}

// Stop ends an active capture, stores its result and injects the processed
// text. Unless the cycle was cancelled meanwhile, the session ends Idle with
// the overlay hidden and the stop cue played.
func (c *Controller) Stop(ctx context.Context) error {
	return c.stop(ctx, "stop", dictation.Phase.Active)
}

func (c *Controller) stop(ctx context.Context, op string, guard func(dictation.Phase) bool) error {
	cycle, ok := c.transition(op, guard, dictation.PhaseProcessing)
	if !ok {
		return nil
	}
	cancelled := false
	defer func() { c.finalize(context.WithoutCancel(ctx), cycle, cancelled) }()

	result, err := c.capture.StopCapture(ctx)
	if errors.Is(err, dictation.ErrCaptureCancelled) {
		cancelled = true
		log.Info("stop_cancelled")
		return nil
	}
	if err != nil {
		log.Errorf("stop capture: %v", err)
		return fmt.Errorf("stop capture: %w", err)
	}
	if !c.storeResultFor(cycle, result) {
		cancelled = true
		log.Info("stop_cancelled")
		return nil
	}
	log.Dictation(len(result.RawText), len(result.ProcessedText), result.DurationMs, result.TargetApp)

	if result.ProcessedText == "" {
		log.Info("no_speech")
		return nil
	}
	if c.injector == nil {
		return nil
	}
	if err := c.injector.InjectText(ctx, result.ProcessedText); err != nil {
		log.Errorf("inject text: %v", err)
		return fmt.Errorf("inject text: %w", err)
	}
	return nil
}

// finalize returns cycle to Idle. A cycle that was cancelled or replaced is
// left alone: Cancel already cleaned up, and a newer cycle owns the overlay.
func (c *Controller) finalize(ctx context.Context, cycle uint64, cancelled bool) {
	c.mu.Lock()
	current := c.cycle == cycle
	if current && c.phase != dictation.PhaseIdle {
		c.setLocked("stop", dictation.PhaseIdle)
	}
	c.mu.Unlock()
	if !current {
		return
	}
	c.hideOverlay()
	if !cancelled {
		c.play(ctx, dictation.CueStopRecording)
	}
	log.Info("dictation_stopped")
}

// Cancel abandons the current cycle without producing a result. A Stop still
// waiting on the capture service for this cycle neither stores nor injects.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	if c.phase == dictation.PhaseIdle {
		c.mu.Unlock()
		return nil
	}
	cycle := c.cycle
	c.mu.Unlock()

	if err := c.capture.CancelCapture(ctx); err != nil {
		log.Warnf("cancel capture: %v", err)
	}

	// Start cannot run until the phase is Idle, so an unchanged cycle means
	// nothing newer began while the capture service was cancelling.
	c.mu.Lock()
	if c.cycle != cycle {
		c.mu.Unlock()
		return nil
	}
	c.cycle++
	if c.phase != dictation.PhaseIdle {
		c.setLocked("cancel", dictation.PhaseIdle)
	}
	c.mu.Unlock()

	c.hideOverlay()
	log.Info("dictation_cancelled")
	return nil
}

// Lock keeps recording after the hotkey is released.
func (c *Controller) Lock(context.Context) error {
	c.transition("lock", isRecording, dictation.PhaseLocked)
	return nil
}

// Unlock finishes a locked recording; it never resumes unlocked recording.
func (c *Controller) Unlock(ctx context.Context) error {
	return c.stop(ctx, "unlock", isLocked)
}

// storeResultFor records r unless cycle has been cancelled or replaced.
func (c *Controller) storeResultFor(cycle uint64, r dictation.Result) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cycle != cycle {
		return false
	}
	c.lastResult = &r
	c.resultSeq++
	c.changes.Publish(c.snapshotLocked())
	return true
}

func (c *Controller) onAmplitude(ev dictation.AmplitudeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == dictation.PhaseIdle {
		return
	}
	c.levels = slices.Clone(ev.Levels)
	c.changes.Publish(c.snapshotLocked())
}

// onCapturePhase applies the capture service's own phase. It wins over any
// controller transition that is in flight.
func (c *Controller) onCapturePhase(ev dictation.PhaseEvent) {
	if !ev.State.IsValid() {
		log.Warnf("ignoring capture phase %q", ev.State)
		return
	}
	c.mu.Lock()
	from := c.phase
	if ev.State == dictation.PhaseProcessing {
		// Phase and completion events travel on separate streams. A
		// Processing event overtaken by its completion, or one for a
		// cancelled cycle, must not leave the session stuck.
		if c.staleProcessing > 0 {
			c.staleProcessing--
			c.mu.Unlock()
			log.Debugf("dropping stale capture processing event")
			return
		}
		if from == dictation.PhaseIdle {
			c.processingSeen = true
			c.mu.Unlock()
			log.Debugf("dropping capture processing event while idle")
			return
		}
		c.processingSeen = true
	} else {
		c.processingSeen = false
	}
	c.setLocked("capture_phase", ev.State)
	c.mu.Unlock()

	if ev.State == dictation.PhaseIdle && from != dictation.PhaseIdle {
		c.hideOverlay()
	}
}

func (c *Controller) onCompletion(ev dictation.CompletionEvent) {
	c.mu.Lock()
	from := c.phase
	if !c.processingSeen {
		c.staleProcessing++
	}
	c.processingSeen = false
	r := ev.Result
	c.lastResult = &r
	c.resultSeq++
	c.setLocked("completion", dictation.PhaseIdle)
	c.mu.Unlock()

	log.Dictation(len(r.RawText), len(r.ProcessedText), r.DurationMs, r.TargetApp)
	if from != dictation.PhaseIdle {
		c.hideOverlay()
	}
}

func (c *Controller) play(ctx context.Context, cue dictation.Cue) {
	if c.sounds == nil {
		return
	}
	if err := c.sounds.Play(ctx, cue); err != nil {
		log.Warnf("play %s: %v", cue, err)
	}
}

func (c *Controller) showOverlay() {
	if c.overlay == nil {
		return
	}
	if err := c.overlay.Show(); err != nil {
		log.Debugf("overlay show: %v", err)
	}
}

func (c *Controller) hideOverlay() {
	if c.overlay == nil {
		return
	}
	if err := c.overlay.Hide(); err != nil {
		log.Debugf("overlay hide: %v", err)
	}
}

func isIdle(p dictation.Phase) bool      { return p == dictation.PhaseIdle }
func isRecording(p dictation.Phase) bool { return p == dictation.PhaseRecording }
func isLocked(p dictation.Phase) bool    { return p == dictation.PhaseLocked }
