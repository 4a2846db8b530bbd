package hotkey

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"murmur/dictation"
	"murmur/event"
	"murmur/log"
)

// Service owns the table of registered hotkeys. Every gesture of every
// registration is published on Actions while the service is listening;
// edges that arrive while it is not listening are dropped.
type Service struct {
	bind    Binder
	actions *event.Topic[dictation.HotkeyActionEvent]
	now     func() time.Time

	mu        sync.Mutex
	entries   map[string]*entry
	listening bool
}

type entry struct {
	reg     dictation.Registration
	tracker *Tracker
	hk      Hotkey
	down    bool
	timer   *time.Timer
	done    chan struct{}
}

// NewService uses bind to attach registrations to the keyboard. Pass New for
// the platform backend.
func NewService(bind Binder) *Service {
	return &Service{
		bind:    bind,
		actions: event.NewTopic[dictation.HotkeyActionEvent]("hotkey_action"),
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

func (s *Service) Actions() *event.Topic[dictation.HotkeyActionEvent] { return s.actions }

// RegisterHotkey binds reg. A registration with the same id is replaced.
func (s *Service) RegisterHotkey(_ context.Context, reg dictation.Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	keys, err := ParseKeys(reg.Keys)
	if err != nil {
		return err
	}
	reg.Keys = keys

	hk, err := s.bind(keys)
	if err != nil {
		return fmt.Errorf("bind %s: %w", Format(keys), err)
	}
	if err := hk.Register(); err != nil {
		return fmt.Errorf("register %s: %w", Format(keys), err)
	}

	e := &entry{reg: reg, tracker: NewTracker(reg), hk: hk, done: make(chan struct{})}
	s.mu.Lock()
	old := s.entries[reg.ID]
	s.entries[reg.ID] = e
	s.mu.Unlock()
	if old != nil {
		s.release(old)
	}

	go s.watch(reg.ID, e)
	log.Infof("hotkey_registered id=%s keys=%s", reg.ID, Format(keys))
	return nil
}

// UnregisterHotkey removes the registration. Removing an unknown id is not
// an error.
func (s *Service) UnregisterHotkey(_ context.Context, id string) error {
	s.Unregister(id)
	return nil
}

// Unregister removes id and reports whether it was registered.
func (s *Service) Unregister(id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.release(e)
	log.Infof("hotkey_unregistered id=%s", id)
	return true
}

func (s *Service) release(e *entry) {
	close(e.done)
	e.hk.Unregister()
	s.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
	}
	s.mu.Unlock()
}

// Registered lists the current registrations ordered by id.
func (s *Service) Registered() []dictation.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	regs := make([]dictation.Registration, 0, len(s.entries))
	for _, e := range s.entries {
		regs = append(regs, e.reg)
	}
	slices.SortFunc(regs, func(a, b dictation.Registration) int { return strings.Compare(a.ID, b.ID) })
	return regs
}

func (s *Service) StartListening(context.Context) error {
	s.mu.Lock()
	s.listening = true
	s.mu.Unlock()
	log.Info("hotkey_listening")
	return nil
}

// StopListening stops publishing and drops any gesture in progress.
func (s *Service) StopListening(context.Context) error {
	s.mu.Lock()
	s.listening = false
	for _, e := range s.entries {
		e.tracker.Reset()
		e.down = false
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
	s.mu.Unlock()
	log.Info("hotkey_stopped_listening")
	return nil
}

func (s *Service) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// PressedKeys returns the keys of every combination currently held down.
func (s *Service) PressedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for _, e := range s.entries {
		if !e.down {
			continue
		}
		for _, k := range e.reg.Keys {
			if !slices.Contains(keys, k) {
				keys = append(keys, k)
			}
		}
	}
	slices.Sort(keys)
	return keys
}

// Close unregisters everything and closes the action topic.
func (s *Service) Close() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.Unregister(id)
	}
	s.actions.Close()
}

func (s *Service) watch(id string, e *entry) {
	for {
		select {
		case <-e.done:
			return
		case <-e.hk.Keydown():
			s.edge(id, e, true)
		case <-e.hk.Keyup():
			s.edge(id, e, false)
		}
	}
}

func (s *Service) edge(id string, e *entry, down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[id] != e || !s.listening {
		return
	}
	e.down = down

	now := s.now()
	var action dictation.Action
	var ok bool
	if down {
		action, ok = e.tracker.Down(now)
	} else {
		action, ok = e.tracker.Up(now)
	}
	log.Debugf("hotkey %s %s -> %s", id, edgeName(down), e.tracker.State())
	s.emitLocked(id, action, ok)
	s.scheduleLocked(id, e)
}

func (s *Service) tick(id string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[id] != e || !s.listening {
		return
	}
	e.timer = nil
	action, ok := e.tracker.Tick(s.now())
	s.emitLocked(id, action, ok)
	s.scheduleLocked(id, e)
}

// scheduleLocked arms the timer for the tracker's next deadline.
func (s *Service) scheduleLocked(id string, e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	deadline, ok := e.tracker.Deadline()
	if !ok {
		return
	}
	e.timer = time.AfterFunc(deadline.Sub(s.now()), func() { s.tick(id, e) })
}

func (s *Service) emitLocked(id string, action dictation.Action, ok bool) {
	if !ok {
		return
	}
	log.Debugf("hotkey_action id=%s action=%s", id, action)
	s.actions.Publish(dictation.HotkeyActionEvent{HotkeyID: id, Action: action})
}

func edgeName(down bool) string {
	if down {
		return "down"
	}
	return "up"
}
