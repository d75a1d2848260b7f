// Package connectivity reports whether the remote store is reachable and
// publishes reachability changes.
package connectivity

import (
	"context"
	"sync"
)

type Status int

const (
	Disconnected Status = iota
	Connected
)

func (s Status) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Oracle reports the current status and notifies subscribers on every
// transition. Callbacks run on the notifier's goroutine and must not block
// for long.
type Oracle interface {
	Status() Status
	Subscribe(fn func(Status)) (unsubscribe func())
}

// hub is the subscription bookkeeping shared by the oracles in this package.
type hub struct {
	mu     sync.Mutex
	status Status
	subs   map[int]func(Status)
	next   int

	// serializes set so subscribers observe transitions in order
	notifyMu sync.Mutex
}

func (h *hub) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *hub) Subscribe(fn func(Status)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = map[int]func(Status){}
	}
	id := h.next
	h.next++
	h.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
		})
	}
}

// set records s and notifies subscribers when it differs from the previous
// status. It reports whether a transition happened.
func (h *hub) set(s Status) bool {
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	h.mu.Lock()
	if h.status == s {
		h.mu.Unlock()
		return false
	}
	h.status = s
	fns := make([]func(Status), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
	return true
}

// Manual is an oracle whose status is set by the caller, e.g. a forced
// offline mode or tests.
type Manual struct {
	hub
}

func NewManual(initial Status) *Manual {
	m := &Manual{}
	m.status = initial
	return m
}

// Set changes the status, notifying subscribers if it changed.
func (m *Manual) Set(s Status) {
	m.set(s)
}

// Transition is one edge observed on an Oracle.
type Transition struct {
	From Status
	To   Status
}

// Online reports whether t is an offline to online edge.
func (t Transition) Online() bool {
	return t.From == Disconnected && t.To == Connected
}

// Transitions adapts o's callbacks into a channel of edges. Repeated
// notifications of the same status are dropped. The channel is closed and
// the subscription released when ctx is done.
func Transitions(ctx context.Context, o Oracle) <-chan Transition {
	raw := make(chan Status, 16)
	out := make(chan Transition)

	// subscribe before sampling so no edge is missed in between
	unsubscribe := o.Subscribe(func(s Status) {
		select {
		case raw <- s:
		case <-ctx.Done():
		}
	})
	last := o.Status()

	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-raw:
				if s == last {
					continue
				}
				t := Transition{From: last, To: s}
				last = s
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
