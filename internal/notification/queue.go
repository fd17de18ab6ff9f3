package notification

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"orgsync/internal/utils"
)

// Queue holds the active toasts in publication order
type Queue struct {
	mu       sync.Mutex
	toasts   []Toast
	duration time.Duration
	subs     map[int]func(Toast)
	nextSub  int
	sinks    []Sink
	now      func() time.Time

	commandExecutor CommandExecutor
}

var _ Publisher = (*Queue)(nil)

// NewQueue creates a queue and the sinks enabled in cfg
func NewQueue(cfg *Config, opts ...Option) *Queue {
	q := &Queue{
		duration: DefaultToastDuration,
		subs:     make(map[int]func(Toast)),
		now:      time.Now,
	}
	if cfg != nil && cfg.ToastDuration > 0 {
		q.duration = cfg.ToastDuration
	}

	for _, opt := range opts {
		opt(q)
	}

	if cfg == nil {
		return q
	}

	if cfg.Desktop.Enabled {
		var dOpts []Option
		if q.commandExecutor != nil {
			dOpts = append(dOpts, WithCommandExecutor(q.commandExecutor))
		}
		q.sinks = append(q.sinks, NewDesktopSink(&cfg.Desktop, dOpts...))
	}

	if cfg.Log.Enabled && cfg.Log.Path != "" {
		q.sinks = append(q.sinks, NewLogSink(&cfg.Log))
	}

	return q
}

// Duration returns the fixed lifetime of a toast
func (q *Queue) Duration() time.Duration {
	return q.duration
}

// Publish appends a toast, forwards it to the sinks and notifies subscribers
func (q *Queue) Publish(message string, severity Severity) Toast {
	q.mu.Lock()
	t := Toast{
		ID:        uuid.New(),
		Message:   message,
		Severity:  severity,
		CreatedAt: q.now(),
	}
	q.toasts = append(q.toasts, t)
	subs := q.subscribers()
	sinks := append([]Sink(nil), q.sinks...)
	q.mu.Unlock()

	for _, s := range sinks {
		if err := s.Send(t); err != nil {
			utils.Debugf("toast sink failed: %v", err)
		}
	}
	for _, fn := range subs {
		fn(t)
	}
	return t
}

// Info publishes an informational toast
func (q *Queue) Info(message string) Toast { return q.Publish(message, SeverityInfo) }

// Success publishes a success toast
func (q *Queue) Success(message string) Toast { return q.Publish(message, SeveritySuccess) }

// Error publishes a failure toast
func (q *Queue) Error(message string) Toast { return q.Publish(message, SeverityError) }

// Active returns the toasts not yet expired, oldest first
func (q *Queue) Active() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	out := make([]Toast, 0, len(q.toasts))
	for _, t := range q.toasts {
		if !t.Expired(now, q.duration) {
			out = append(out, t)
		}
	}
	return out
}

// Expire drops the toasts older than the queue duration and returns how many
// were removed
func (q *Queue) Expire() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	kept := q.toasts[:0]
	for _, t := range q.toasts {
		if !t.Expired(now, q.duration) {
			kept = append(kept, t)
		}
	}
	removed := len(q.toasts) - len(kept)
	q.toasts = kept
	return removed
}

// Dismiss removes a toast before it expires
func (q *Queue) Dismiss(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, t := range q.toasts {
		if t.ID == id {
			q.toasts = append(q.toasts[:i], q.toasts[i+1:]...)
			return true
		}
	}
	return false
}

// Subscribe registers fn to be called with every toast published afterwards.
// fn runs on the publisher's goroutine and must not block. The returned
// function unsubscribes.
func (q *Queue) Subscribe(fn func(Toast)) (unsubscribe func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := q.nextSub
	q.nextSub++
	q.subs[id] = fn
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.subs, id)
	}
}

// SinkCount returns the number of active sinks
func (q *Queue) SinkCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.sinks)
}

// Close closes every sink
func (q *Queue) Close() error {
	q.mu.Lock()
	sinks := q.sinks
	q.sinks = nil
	q.mu.Unlock()

	var lastErr error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// subscribers returns the callbacks in registration order; q.mu must be held
func (q *Queue) subscribers() []func(Toast) {
	out := make([]func(Toast), 0, len(q.subs))
	for i := 0; i < q.nextSub; i++ {
		if fn, ok := q.subs[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}
