package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"murmur/audio"
	"murmur/beep"
	"murmur/capture"
	"murmur/clipboard"
	"murmur/config"
	"murmur/dictation"
	"murmur/dictionary"
	"murmur/history"
	"murmur/hotkey"
	"murmur/log"
	"murmur/overlay"
	"murmur/session"
	"murmur/transcriber"
)

const teardownTimeout = 5 * time.Second

// app owns every long-lived service and the controller that drives them.
type app struct {
	cfg         *config.Config
	audio       audio.Context
	capture     *capture.Service
	hotkeys     *hotkey.Service
	overlay     overlay.Overlay
	overlayMode string
	history     *history.Store // nil when disabled
	ctrl        *session.Controller
	provider    string

	// updates carries the latest snapshot for the overlay; older ones are
	// replaced. Results queue separately so none is lost.
	updates chan session.Snapshot
	wake    chan struct{}

	mu      sync.Mutex
	lastSeq uint64
	results []dictation.Result
	count   int
}

func newApp(cfg *config.Config, setup bool) (_ *app, err error) {
	actx, err := audio.NewContext()
	if err != nil {
		return nil, fmt.Errorf("audio: %w", err)
	}
	defer func() {
		if err != nil {
			actx.Close()
		}
	}()

	dev, err := pickDevice(actx, cfg.Capture.Device, setup)
	if err != nil {
		return nil, err
	}
	tr, err := transcriber.New(cfg.Transcriber)
	if err != nil {
		return nil, err
	}
	dict, err := dictionary.New(cfg.Dictionary)
	if err != nil {
		return nil, err
	}

	sounds := beep.New()
	if !cfg.Sound.Enabled {
		sounds.Disable()
	}
	sounds.Init()

	svc := capture.New(actx, tr, dict, capture.Config{
		Device:         dev,
		Gain:           cfg.Capture.Gain,
		Language:       cfg.Capture.Language,
		Bands:          cfg.Capture.Bands,
		MaxDuration:    cfg.Capture.MaxDuration,
		MinDuration:    cfg.Capture.MinDuration,
		SilenceWarn:    cfg.Capture.SilenceWarn,
		SilenceTimeout: cfg.Capture.SilenceTimeout,
		OnSilence: func() {
			log.Warn("no speech detected")
			sounds.Play(context.Background(), dictation.CueError)
		},
	})

	injector := clipboard.NewInjector(clipboard.Options{
		Mode:         cfg.Paste.Mode,
		Restore:      cfg.Paste.Restore,
		RestoreDelay: cfg.Paste.RestoreDelay,
	})
	if err := injector.Init(); err != nil {
		log.Warnf("paste init: %v", err)
	}

	info := overlay.Info{
		Hotkey:   hotkey.Format(cfg.Hotkey.Keys),
		Device:   deviceName(dev),
		Provider: tr.Name(),
		Version:  version,
	}
	ov, mode, err := chooseOverlay(cfg.Overlay.Mode, info, term.IsTerminal(int(os.Stdout.Fd())))
	if err != nil {
		svc.Close()
		return nil, err
	}

	var store *history.Store
	if cfg.History.Enabled {
		dir, err := cfg.HistoryDir()
		if err != nil {
			svc.Close()
			return nil, err
		}
		if store, err = history.Open(dir); err != nil {
			svc.Close()
			return nil, err
		}
	}

	hk := hotkey.NewService(hotkey.New)
	ctrl := session.New(session.Config{
		Capture:  svc,
		Hotkeys:  hk,
		Sounds:   sounds,
		Injector: injector,
		Overlay:  ov,
		Streams: session.Streams{
			Amplitude:    svc.Amplitude(),
			Phase:        svc.Phases(),
			Completion:   svc.Completions(),
			HotkeyAction: hk.Actions(),
		},
		Registration: cfg.Hotkey,
	})

	return &app{
		cfg:         cfg,
		audio:       actx,
		capture:     svc,
		hotkeys:     hk,
		overlay:     ov,
		overlayMode: mode,
		history:     store,
		ctrl:        ctrl,
		provider:    tr.Name(),
		updates:     make(chan session.Snapshot, 1),
		wake:        make(chan struct{}, 1),
	}, nil
}

func pickDevice(actx audio.Context, name string, setup bool) (*audio.DeviceInfo, error) {
	switch {
	case name != "":
		return audio.FindDevice(actx, name)
	case setup:
		dev, err := audio.SelectDevice(actx)
		if errors.Is(err, audio.ErrSelectAborted) {
			return nil, nil
		}
		return dev, err
	default:
		return nil, nil
	}
}

func deviceName(dev *audio.DeviceInfo) string {
	if dev == nil {
		return "system default"
	}
	if audio.IsBluetooth(dev.Name) {
		return dev.Name + " (BT!)"
	}
	return dev.Name
}

// chooseOverlay resolves the configured mode. "auto" prefers the window,
// then the terminal UI when stdout is a terminal, then nothing.
func chooseOverlay(mode string, info overlay.Info, tty bool) (overlay.Overlay, string, error) {
	switch mode {
	case "gui":
		w, err := overlay.NewWindow(info)
		if err != nil {
			return nil, "", fmt.Errorf("overlay gui: %w (build with -tags gui)", err)
		}
		return w, "gui", nil
	case "tui":
		return overlay.NewTUI(info), "tui", nil
	case "none":
		return overlay.None{}, "none", nil
	case "auto", "":
		if overlay.GUIAvailable {
			if w, err := overlay.NewWindow(info); err == nil {
				return w, "gui", nil
			}
		}
		if tty {
			return overlay.NewTUI(info), "tui", nil
		}
		return overlay.None{}, "none", nil
	default:
		return nil, "", fmt.Errorf("unknown overlay mode %q", mode)
	}
}

// run blocks until ctx ends or the user quits from the overlay. The overlay
// runs on the calling goroutine.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.ctrl.Initialize(ctx); err != nil {
		a.close()
		return err
	}
	unlisten, err := a.ctrl.Changes().Listen(a.offer)
	if err != nil {
		a.shutdown()
		return err
	}

	log.SessionStart(a.provider, a.cfg.Capture.Language, a.overlayMode)
	log.Infof("ready: hold %s to dictate", hotkey.Format(a.cfg.Hotkey.Keys))
	if a.overlayMode == "none" {
		fmt.Fprintf(os.Stderr, "murmur ready: hold %s to dictate, double-tap to lock, Ctrl+C to quit\n",
			hotkey.Format(a.cfg.Hotkey.Keys))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.pump(gctx) })

	runErr := a.overlay.Run(gctx)
	cancel()
	waitErr := g.Wait()
	unlisten()

	return errors.Join(runErr, waitErr, a.shutdown())
}

func (a *app) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	err := a.ctrl.Teardown(ctx)
	a.close()
	log.SessionEnd(a.count)
	return err
}

func (a *app) close() {
	a.hotkeys.Close()
	a.capture.Close()
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			log.Warnf("history close: %v", err)
		}
	}
	a.audio.Close()
}

// offer hands s to the pump. A snapshot the pump has not taken yet is
// replaced, but a new result is queued until it is recorded.
func (a *app) offer(s session.Snapshot) {
	if s.LastResult != nil {
		a.mu.Lock()
		if s.ResultSeq != a.lastSeq {
			a.lastSeq = s.ResultSeq
			a.results = append(a.results, *s.LastResult)
		}
		a.mu.Unlock()
		select {
		case a.wake <- struct{}{}:
		default:
		}
	}
	for {
		select {
		case a.updates <- s:
			return
		default:
		}
		select {
		case <-a.updates:
		default:
		}
	}
}

func (a *app) pump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			a.drain()
			return nil
		case s := <-a.updates:
			a.apply(s)
			a.drain()
		case <-a.wake:
			a.drain()
		}
	}
}

func (a *app) apply(s session.Snapshot) {
	state := overlay.State{Phase: s.Phase, Levels: s.Levels, Results: s.ResultSeq}
	if s.LastResult != nil {
		state.LastText = s.LastResult.ProcessedText
	}
	a.overlay.Update(state)
}

// drain records every queued result in arrival order.
func (a *app) drain() {
	a.mu.Lock()
	pending := a.results
	a.results = nil
	a.mu.Unlock()
	for _, r := range pending {
		a.record(r)
	}
}

func (a *app) record(r dictation.Result) {
	if r.ProcessedText == "" {
		return
	}
	a.count++
	log.TranscriptionText(r.ProcessedText)
	if a.history == nil {
		return
	}
	if _, err := a.history.Add(r); err != nil {
		log.Errorf("history: %v", err)
		return
	}
	if keep := a.cfg.History.Keep; keep > 0 {
		if n, err := a.history.Prune(keep); err != nil {
			log.Errorf("history prune: %v", err)
		} else if n > 0 {
			log.Debugf("history: pruned %d entries", n)
		}
	}
}
