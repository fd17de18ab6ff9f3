// Package notification provides the process-wide toast queue: transient
// messages published by any component, expired after a fixed duration, and
// forwarded to optional output sinks (log file, desktop notifications).
package notification

import (
	"time"

	"github.com/google/uuid"
)

// DefaultToastDuration is how long a toast stays active when unset
const DefaultToastDuration = 4 * time.Second

// Severity classifies a toast
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityError
)

// String returns the upper-case name used in logs
func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "SUCCESS"
	case SeverityError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Toast is one transient user-visible message
type Toast struct {
	ID        uuid.UUID
	Message   string
	Severity  Severity
	CreatedAt time.Time
}

// Expired reports whether the toast is older than d at now
func (t Toast) Expired(now time.Time, d time.Duration) bool {
	return !now.Before(t.CreatedAt.Add(d))
}

// Publisher is the narrow interface through which components raise toasts
type Publisher interface {
	Publish(message string, severity Severity) Toast
}

// Sink receives every published toast
type Sink interface {
	Send(t Toast) error
	Close() error
}

// Config holds the notification configuration
type Config struct {
	ToastDuration time.Duration
	Log           LogConfig
	Desktop       DesktopConfig
}

// LogConfig holds toast log configuration
type LogConfig struct {
	Enabled   bool
	Path      string
	MaxSizeMB int
}

// DesktopConfig holds OS notification configuration
type DesktopConfig struct {
	Enabled   bool
	OnError   bool
	OnSuccess bool
}

// CommandExecutor is the interface for executing system commands
type CommandExecutor interface {
	Execute(cmd string, args ...string) error
}

// MockCommandExecutor is a mock implementation of CommandExecutor for testing
type MockCommandExecutor struct {
	ExecuteFunc func(cmd string, args ...string) error
}

// Execute implements CommandExecutor
func (m *MockCommandExecutor) Execute(cmd string, args ...string) error {
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(cmd, args...)
	}
	return nil
}

// Option is a functional option for configuring the queue and its sinks
type Option func(interface{})

// WithCommandExecutor sets a custom command executor
func WithCommandExecutor(executor CommandExecutor) Option {
	return func(c interface{}) {
		if ch, ok := c.(*desktopSink); ok {
			ch.executor = executor
		}
		if q, ok := c.(*Queue); ok {
			q.commandExecutor = executor
		}
	}
}

// WithPlatform sets the platform for desktop notifications
func WithPlatform(platform string) Option {
	return func(c interface{}) {
		if ch, ok := c.(*desktopSink); ok {
			ch.platform = platform
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c interface{}) {
		if q, ok := c.(*Queue); ok {
			q.now = now
		}
	}
}

// WithSink adds an extra sink to the queue
func WithSink(s Sink) Option {
	return func(c interface{}) {
		if q, ok := c.(*Queue); ok {
			q.sinks = append(q.sinks, s)
		}
	}
}
