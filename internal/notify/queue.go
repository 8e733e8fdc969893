// Package notify implements the single-slot, self-expiring operator message.
package notify

import (
	"sync"
	"time"
)

// DefaultWindow is how long a message stays visible.
const DefaultWindow = 4 * time.Second

// Event tells listeners what happened to the slot.
type Event int

const (
	Shown Event = iota
	Cleared
)

func (e Event) String() string {
	if e == Shown {
		return "shown"
	}
	return "cleared"
}

// Notification is a transient outcome message.
type Notification struct {
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Listener is called after the slot changes. It runs outside the queue's lock
// and must not block for long.
type Listener func(Event, Notification)

// Queue holds at most one live notification. Every Show replaces the current
// message and restarts the visibility window.
type Queue struct {
	mu        sync.Mutex
	window    time.Duration
	current   *Notification
	gen       uint64
	timer     *time.Timer
	listeners map[int]Listener
	nextID    int
	closed    bool
	now       func() time.Time
}

// New returns an empty queue whose messages expire after window.
func New(window time.Duration) *Queue {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Queue{
		window:    window,
		listeners: make(map[int]Listener),
		now:       time.Now,
	}
}

// Window returns the visibility window.
func (q *Queue) Window() time.Duration {
	return q.window
}

// Show installs msg immediately. Showing on a closed queue is a no-op.
func (q *Queue) Show(msg string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.gen++
	gen := q.gen
	n := Notification{Message: msg, CreatedAt: q.now()}
	q.current = &n
	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(q.window, func() { q.expire(gen) })
	listeners := q.snapshotListeners()
	q.mu.Unlock()

	for _, l := range listeners {
		l(Shown, n)
	}
}

// expire clears the slot if no newer message replaced the one from gen.
func (q *Queue) expire(gen uint64) {
	q.mu.Lock()
	if q.closed || gen != q.gen || q.current == nil {
		q.mu.Unlock()
		return
	}
	n := *q.current
	q.current = nil
	q.timer = nil
	listeners := q.snapshotListeners()
	q.mu.Unlock()

	for _, l := range listeners {
		l(Cleared, n)
	}
}

// Current returns the live notification, if any.
func (q *Queue) Current() (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return Notification{}, false
	}
	return *q.current, true
}

// Subscribe registers fn and returns a function that removes it.
func (q *Queue) Subscribe(fn Listener) func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextID
	q.nextID++
	q.listeners[id] = fn
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.listeners, id)
	}
}

// Close stops the pending expiry and drops all listeners. Later Show calls
// are ignored.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.current = nil
	q.closed = true
	q.listeners = make(map[int]Listener)
}

func (q *Queue) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(q.listeners))
	for _, l := range q.listeners {
		out = append(out, l)
	}
	return out
}
