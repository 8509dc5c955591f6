// Package actor provides a small serialized mailbox. All messages
// posted to a mailbox are handled one at a time on a single goroutine,
// which is how per-session state stays race-free without locks on every
// field.
package actor

import (
	"context"
	"sync"
)

// Mailbox delivers messages of type T to a single handler goroutine.
type Mailbox[T any] struct {
	ch        chan T
	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a mailbox with the given buffer size.
func New[T any](size int) *Mailbox[T] {
	return &Mailbox[T]{
		ch:     make(chan T, size),
		closed: make(chan struct{}),
	}
}

// Post enqueues a message. It returns false if the mailbox is closed or
// full; posting never blocks, so timer callbacks and audio callbacks
// can post safely.
func (m *Mailbox[T]) Post(msg T) bool {
	select {
	case <-m.closed:
		return false
	default:
	}
	select {
	case m.ch <- msg:
		return true
	case <-m.closed:
		return false
	default:
		return false
	}
}

// Run handles messages until the context is cancelled or the mailbox is
// closed. It must be called from exactly one goroutine.
func (m *Mailbox[T]) Run(ctx context.Context, handle func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.closed:
			// Drain what was already enqueued.
			for {
				select {
				case msg := <-m.ch:
					handle(msg)
				default:
					return
				}
			}
		case msg := <-m.ch:
			handle(msg)
		}
	}
}

// Close stops delivery. Pending messages are drained by Run before it
// returns.
func (m *Mailbox[T]) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
}
