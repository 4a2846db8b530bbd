// Package event is a small in-process pub/sub used to carry the push
// streams between services and the session controller.
//
// Every listener gets its own mailbox and goroutine, so events on one topic
// reach a listener in publish order while a slow listener never blocks the
// publisher or other listeners.
package event

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("event: topic closed")

// Unlisten detaches a listener. Calling it more than once is harmless.
type Unlisten func()

// Topic fans out values of one type to any number of listeners.
type Topic[T any] struct {
	name string

	mu     sync.Mutex
	subs   map[uint64]*mailbox[T]
	nextID uint64
	closed bool
}

func NewTopic[T any](name string) *Topic[T] {
	return &Topic[T]{name: name, subs: make(map[uint64]*mailbox[T])}
}

func (t *Topic[T]) Name() string { return t.name }

// Listen registers fn for every value published after this call returns.
func (t *Topic[T]) Listen(fn func(T)) (Unlisten, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	id := t.nextID
	t.nextID++
	mb := newMailbox(fn)
	t.subs[id] = mb
	go mb.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			mb.close()
		})
	}, nil
}

// Publish queues v for every current listener and returns immediately.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	for _, mb := range t.subs {
		mb.push(v)
	}
}

// Listeners returns the number of attached listeners.
func (t *Topic[T]) Listeners() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Close detaches all listeners and makes further Listen calls fail.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, mb := range t.subs {
		mb.close()
		delete(t.subs, id)
	}
}

type mailbox[T any] struct {
	fn func(T)

	mu     sync.Mutex
	queue  []T
	closed bool
	wake   chan struct{}
}

func newMailbox[T any](fn func(T)) *mailbox[T] {
	return &mailbox[T]{fn: fn, wake: make(chan struct{}, 1)}
}

func (m *mailbox[T]) push(v T) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, v)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) run() {
	for range m.wake {
		for {
			m.mu.Lock()
			if m.closed {
				m.mu.Unlock()
				return
			}
			if len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			v := m.queue[0]
			var zero T
			m.queue[0] = zero
			m.queue = m.queue[1:]
			m.mu.Unlock()
			m.fn(v)
		}
	}
}
