package session

import (
	"context"
	"errors"
	"fmt"

	"murmur/event"
	"murmur/log"
)

var ErrAlreadyInitialized = errors.New("session: controller already initialized")

// Initialize attaches the controller to its four push streams, registers the
// hotkey and starts the hotkey listener. It may be called once per
// Controller. On failure everything acquired so far is released again, so
// the controller is either fully wired or not wired at all.
func (c *Controller) Initialize(ctx context.Context) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if c.initialized {
		return ErrAlreadyInitialized
	}
	c.initialized = true
	c.eventCtx = context.WithoutCancel(ctx)

	subscriptions := []struct {
		name   string
		listen func() (event.Unlisten, error)
	}{
		{"amplitude", func() (event.Unlisten, error) { return c.streams.Amplitude.Listen(c.onAmplitude) }},
		{"capture_phase", func() (event.Unlisten, error) { return c.streams.Phase.Listen(c.onCapturePhase) }},
		{"completion", func() (event.Unlisten, error) { return c.streams.Completion.Listen(c.onCompletion) }},
		{"hotkey_action", func() (event.Unlisten, error) { return c.streams.HotkeyAction.Listen(c.onHotkeyAction) }},
	}
	for _, s := range subscriptions {
		unlisten, err := s.listen()
		if err != nil {
			return c.abortInit(ctx, fmt.Errorf("subscribe %s: %w", s.name, err))
		}
		c.unlisteners = append(c.unlisteners, unlisten)
	}

	if err := c.hotkeys.RegisterHotkey(ctx, c.reg); err != nil {
		return c.abortInit(ctx, fmt.Errorf("register hotkey %s: %w", c.reg.ID, err))
	}
	c.registered = true

	if err := c.hotkeys.StartListening(ctx); err != nil {
		return c.abortInit(ctx, fmt.Errorf("start hotkey listener: %w", err))
	}
	c.listening = true

	log.Infof("session_initialized hotkey=%s", c.reg.ID)
	return nil
}

func (c *Controller) abortInit(ctx context.Context, err error) error {
	if relErr := c.releaseLocked(ctx); relErr != nil {
		log.Warnf("rollback after failed init: %v", relErr)
	}
	log.Errorf("initialize: %v", err)
	return err
}

// Teardown releases every subscription, unregisters the hotkey and stops the
// listener. It only releases what was acquired, so it is safe after a failed
// Initialize and a no-op when called again.
func (c *Controller) Teardown(ctx context.Context) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return c.releaseLocked(ctx)
}

func (c *Controller) releaseLocked(ctx context.Context) error {
	unlisteners := c.unlisteners
	c.unlisteners = nil
	for _, unlisten := range unlisteners {
		unlisten()
	}

	var errs []error
	if c.registered {
		c.registered = false
		if err := c.hotkeys.UnregisterHotkey(ctx, c.reg.ID); err != nil {
			errs = append(errs, fmt.Errorf("unregister hotkey %s: %w", c.reg.ID, err))
		}
	}
	if c.listening {
		c.listening = false
		if err := c.hotkeys.StopListening(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop hotkey listener: %w", err))
		}
	}
	if len(unlisteners) > 0 {
		log.Infof("session_teardown released=%d", len(unlisteners))
	}
	return errors.Join(errs...)
}

// Subscriptions reports how many push streams are currently attached.
func (c *Controller) Subscriptions() int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.unlisteners)
}
