package chart

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Surface is a host-side Container whose width is reported by the client.
type Surface struct {
	id    string
	width atomic.Int64
}

// NewSurface returns a container with a fresh element id.
func NewSurface(width int) *Surface {
	s := &Surface{id: "chart-" + uuid.NewString()}
	s.SetWidth(width)
	return s
}

func (s *Surface) ID() string { return s.id }

func (s *Surface) ClientWidth() int { return int(s.width.Load()) }

func (s *Surface) SetWidth(w int) {
	if w < 0 {
		w = 0
	}
	s.width.Store(int64(w))
}

// Window is a Viewport fed by explicit Resize calls.
type Window struct {
	mu        sync.Mutex
	next      int
	listeners map[int]func()
}

func NewWindow() *Window {
	return &Window{listeners: make(map[int]func())}
}

func (w *Window) AddResizeListener(fn func()) (remove func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.next
	w.next++
	w.listeners[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.listeners, id)
	}
}

// Resize notifies every listener.
func (w *Window) Resize() {
	w.mu.Lock()
	fns := make([]func(), 0, len(w.listeners))
	for _, fn := range w.listeners {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Listeners reports how many resize listeners are installed.
func (w *Window) Listeners() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.listeners)
}
