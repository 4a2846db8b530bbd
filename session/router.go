package session

import (
	"context"

	"murmur/dictation"
	"murmur/log"
)

// route maps a hotkey gesture addressed to this controller onto one
// operation. Gestures for other hotkeys and unknown actions are ignored.
func (c *Controller) route(ctx context.Context, ev dictation.HotkeyActionEvent) error {
	if ev.HotkeyID != c.reg.ID {
		return nil
	}
	switch ev.Action {
	case dictation.ActionActivate:
		return c.Start(ctx)
	case dictation.ActionDeactivate:
		return c.Stop(ctx)
	case dictation.ActionLock:
		return c.Lock(ctx)
	case dictation.ActionUnlock:
		return c.Unlock(ctx)
	default:
		log.Debugf("ignoring hotkey action %q", ev.Action)
		return nil
	}
}

func (c *Controller) onHotkeyAction(ev dictation.HotkeyActionEvent) {
	c.subMu.Lock()
	ctx := c.eventCtx
	c.subMu.Unlock()

	if err := c.route(ctx, ev); err != nil {
		log.Errorf("hotkey %s: %v", ev.Action, err)
	}
}
