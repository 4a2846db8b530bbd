package hotkey

import (
	"errors"
	"sync"
)

type FakeHotkey struct {
	Keys    []string
	keydown chan struct{}
	keyup   chan struct{}

	mu           sync.Mutex
	registered   bool
	unregistered bool
	registerErr  error
}

func NewFake() *FakeHotkey {
	return &FakeHotkey{
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func (f *FakeHotkey) Register() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return f.registerErr
	}
	f.registered = true
	return nil
}

func (f *FakeHotkey) Unregister() {
	f.mu.Lock()
	f.unregistered = true
	f.mu.Unlock()
}

func (f *FakeHotkey) Keydown() <-chan struct{} { return f.keydown }
func (f *FakeHotkey) Keyup() <-chan struct{}   { return f.keyup }

func (f *FakeHotkey) SimKeydown() { f.keydown <- struct{}{} }
func (f *FakeHotkey) SimKeyup()   { f.keyup <- struct{}{} }

func (f *FakeHotkey) Unregistered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unregistered
}

// FakeBinder hands out FakeHotkeys and remembers them by combination.
type FakeBinder struct {
	mu          sync.Mutex
	bound       map[string]*FakeHotkey
	RegisterErr error
}

func NewFakeBinder() *FakeBinder {
	return &FakeBinder{bound: make(map[string]*FakeHotkey)}
}

func (b *FakeBinder) Bind(keys []string) (Hotkey, error) {
	if len(keys) == 0 {
		return nil, errors.New("no keys")
	}
	f := NewFake()
	f.Keys = keys
	f.registerErr = b.RegisterErr
	b.mu.Lock()
	b.bound[Format(keys)] = f
	b.mu.Unlock()
	return f, nil
}

// Get returns the most recent fake bound to combo, e.g. "Control+Shift+D".
func (b *FakeBinder) Get(combo string) *FakeHotkey {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bound[combo]
}
