package notification_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"orgsync/internal/notification"
)

// =============================================================================
// Test Helpers
// =============================================================================

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 16, 10, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingSink keeps every toast it receives
type recordingSink struct {
	mu     sync.Mutex
	toasts []notification.Toast
	closed bool
}

func (s *recordingSink) Send(t notification.Toast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toasts = append(s.toasts, t)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

// =============================================================================
// Unit Tests - Queue
// =============================================================================

// TestQueuePublishOrder verifies toasts are kept in publication order
func TestQueuePublishOrder(t *testing.T) {
	q := notification.NewQueue(nil)

	q.Info("one")
	q.Success("two")
	q.Error("three")

	active := q.Active()
	if len(active) != 3 {
		t.Fatalf("expected 3 active toasts, got %d", len(active))
	}
	want := []string{"one", "two", "three"}
	for i, toast := range active {
		if toast.Message != want[i] {
			t.Errorf("toast %d = %q, want %q", i, toast.Message, want[i])
		}
	}
	if active[2].Severity != notification.SeverityError {
		t.Errorf("expected error severity, got %s", active[2].Severity)
	}
	if active[0].ID == active[1].ID {
		t.Error("toast IDs should be unique")
	}
}

// TestQueueExpiry verifies toasts disappear after the configured duration
func TestQueueExpiry(t *testing.T) {
	clock := newFakeClock()
	q := notification.NewQueue(&notification.Config{ToastDuration: 2 * time.Second},
		notification.WithClock(clock.Now))

	q.Info("first")
	clock.Advance(time.Second)
	q.Info("second")

	clock.Advance(time.Second)
	if active := q.Active(); len(active) != 1 || active[0].Message != "second" {
		t.Fatalf("expected only 'second' active, got %v", active)
	}

	if removed := q.Expire(); removed != 1 {
		t.Errorf("Expire removed %d, want 1", removed)
	}

	clock.Advance(time.Second)
	q.Expire()
	if active := q.Active(); len(active) != 0 {
		t.Errorf("expected no active toasts, got %v", active)
	}
}

// TestQueueDefaultDuration verifies an unset duration uses the default
func TestQueueDefaultDuration(t *testing.T) {
	q := notification.NewQueue(&notification.Config{})
	if q.Duration() != notification.DefaultToastDuration {
		t.Errorf("Duration = %v, want %v", q.Duration(), notification.DefaultToastDuration)
	}
}

// TestQueueDismiss verifies a toast can be removed early
func TestQueueDismiss(t *testing.T) {
	q := notification.NewQueue(nil)
	toast := q.Error("boom")
	q.Info("other")

	if !q.Dismiss(toast.ID) {
		t.Fatal("Dismiss should find the toast")
	}
	if q.Dismiss(toast.ID) {
		t.Error("second Dismiss should report false")
	}
	if active := q.Active(); len(active) != 1 || active[0].Message != "other" {
		t.Errorf("unexpected active toasts %v", active)
	}
}

// TestQueueSubscribe verifies subscribers see every later toast until they unsubscribe
func TestQueueSubscribe(t *testing.T) {
	q := notification.NewQueue(nil)

	var got []string
	unsubscribe := q.Subscribe(func(toast notification.Toast) {
		got = append(got, toast.Message)
	})

	q.Info("a")
	q.Error("b")
	unsubscribe()
	q.Info("c")

	if strings.Join(got, ",") != "a,b" {
		t.Errorf("subscriber saw %v, want [a b]", got)
	}
}

// TestQueueSubscriberMayPublish verifies a callback can publish without deadlocking
func TestQueueSubscriberMayPublish(t *testing.T) {
	q := notification.NewQueue(nil)

	q.Subscribe(func(toast notification.Toast) {
		if toast.Message == "ping" {
			q.Info("pong")
		}
	})
	q.Info("ping")

	if len(q.Active()) != 2 {
		t.Errorf("expected 2 toasts, got %d", len(q.Active()))
	}
}

// TestQueueSinks verifies extra sinks receive toasts and are closed
func TestQueueSinks(t *testing.T) {
	sink := &recordingSink{}
	q := notification.NewQueue(nil, notification.WithSink(sink))

	q.Success("saved")

	if len(sink.toasts) != 1 || sink.toasts[0].Message != "saved" {
		t.Fatalf("sink received %v", sink.toasts)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sink.closed {
		t.Error("sink should be closed")
	}
	if q.SinkCount() != 0 {
		t.Errorf("SinkCount after Close = %d", q.SinkCount())
	}
}

// TestQueueConcurrentPublish verifies the queue is safe for concurrent use
func TestQueueConcurrentPublish(t *testing.T) {
	q := notification.NewQueue(&notification.Config{ToastDuration: time.Hour})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Info("x")
			_ = q.Active()
			q.Expire()
		}()
	}
	wg.Wait()

	if len(q.Active()) != 20 {
		t.Errorf("expected 20 toasts, got %d", len(q.Active()))
	}
}

// =============================================================================
// Unit Tests - Configuration
// =============================================================================

// TestQueueConfigSinks tests that configuration enables/disables sinks
func TestQueueConfigSinks(t *testing.T) {
	tests := []struct {
		name          string
		desktop       bool
		log           bool
		expectedSinks int
	}{
		{"both enabled", true, true, 2},
		{"only desktop enabled", true, false, 1},
		{"only log enabled", false, true, 1},
		{"both disabled", false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &notification.Config{
				Desktop: notification.DesktopConfig{Enabled: tt.desktop, OnError: true},
				Log: notification.LogConfig{
					Enabled: tt.log,
					Path:    filepath.Join(t.TempDir(), "toasts.log"),
				},
			}
			q := notification.NewQueue(cfg, notification.WithCommandExecutor(&notification.MockCommandExecutor{}))
			defer func() { _ = q.Close() }()

			if q.SinkCount() != tt.expectedSinks {
				t.Errorf("expected %d sinks, got %d", tt.expectedSinks, q.SinkCount())
			}
		})
	}
}

// =============================================================================
// Unit Tests - Desktop Sink (with mock command executor)
// =============================================================================

// TestDesktopSinkLinux tests that toasts are sent via notify-send on Linux
func TestDesktopSinkLinux(t *testing.T) {
	var executedCmd string
	var executedArgs []string

	mock := &notification.MockCommandExecutor{
		ExecuteFunc: func(cmd string, args ...string) error {
			executedCmd = cmd
			executedArgs = args
			return nil
		},
	}

	sink := notification.NewDesktopSink(
		&notification.DesktopConfig{Enabled: true, OnError: true, OnSuccess: true},
		notification.WithCommandExecutor(mock),
		notification.WithPlatform("linux"),
	)

	err := sink.Send(notification.Toast{Message: "Task created", Severity: notification.SeveritySuccess})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if executedCmd != "notify-send" {
		t.Errorf("expected notify-send command, got %q", executedCmd)
	}
	if !strings.Contains(strings.Join(executedArgs, " "), "Task created") {
		t.Errorf("expected args to contain message, got %v", executedArgs)
	}
}

// TestDesktopSinkDarwinEscapes tests that quotes are escaped for osascript
func TestDesktopSinkDarwinEscapes(t *testing.T) {
	var executedArgs []string
	mock := &notification.MockCommandExecutor{
		ExecuteFunc: func(cmd string, args ...string) error {
			executedArgs = args
			return nil
		},
	}

	sink := notification.NewDesktopSink(
		&notification.DesktopConfig{Enabled: true, OnError: true},
		notification.WithCommandExecutor(mock),
		notification.WithPlatform("darwin"),
	)

	if err := sink.Send(notification.Toast{Message: `say "hi"`, Severity: notification.SeverityError}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	script := strings.Join(executedArgs, " ")
	if !strings.Contains(script, `display notification "say \"hi\""`) {
		t.Errorf("expected escaped script, got %q", script)
	}
}

// TestDesktopSinkSeverityFilter tests that disabled severities are not sent
func TestDesktopSinkSeverityFilter(t *testing.T) {
	calls := 0
	mock := &notification.MockCommandExecutor{
		ExecuteFunc: func(cmd string, args ...string) error {
			calls++
			return nil
		},
	}

	sink := notification.NewDesktopSink(
		&notification.DesktopConfig{Enabled: true, OnError: true, OnSuccess: false},
		notification.WithCommandExecutor(mock),
		notification.WithPlatform("linux"),
	)

	_ = sink.Send(notification.Toast{Message: "ok", Severity: notification.SeveritySuccess})
	_ = sink.Send(notification.Toast{Message: "fyi", Severity: notification.SeverityInfo})
	_ = sink.Send(notification.Toast{Message: "bad", Severity: notification.SeverityError})

	if calls != 1 {
		t.Errorf("expected 1 desktop notification, got %d", calls)
	}
}

// TestDesktopSinkUnsupportedPlatform tests the error for unknown platforms
func TestDesktopSinkUnsupportedPlatform(t *testing.T) {
	sink := notification.NewDesktopSink(
		&notification.DesktopConfig{Enabled: true, OnError: true},
		notification.WithCommandExecutor(&notification.MockCommandExecutor{}),
		notification.WithPlatform("plan9"),
	)
	if err := sink.Send(notification.Toast{Message: "x", Severity: notification.SeverityError}); err == nil {
		t.Error("expected error for unsupported platform")
	}
}

// =============================================================================
// Unit Tests - Log Sink
// =============================================================================

// TestLogSink tests that toasts are written to the log file with correct format
func TestLogSink(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "toasts.log")

	sink := notification.NewLogSink(&notification.LogConfig{Enabled: true, Path: logPath, MaxSizeMB: 10})
	defer func() { _ = sink.Close() }()

	err := sink.Send(notification.Toast{
		Message:   "Could not delete expense",
		Severity:  notification.SeverityError,
		CreatedAt: time.Date(2026, 1, 16, 10, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	entries, err := notification.ReadLog(logPath)
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	want := "2026-01-16T10:30:00Z [ERROR] Could not delete expense"
	if entries[0] != want {
		t.Errorf("entry = %q, want %q", entries[0], want)
	}
}

// TestLogSinkCompaction tests that an oversized log keeps its newest lines
func TestLogSinkCompaction(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "toasts.log")
	var old bytes.Buffer
	for i := 0; old.Len() <= 1024*1024; i++ {
		fmt.Fprintf(&old, "2026-01-01T00:00:00Z [INFO] old toast %06d\n", i)
	}
	if err := os.WriteFile(logPath, old.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	sink := notification.NewLogSink(&notification.LogConfig{Enabled: true, Path: logPath, MaxSizeMB: 1})
	defer func() { _ = sink.Close() }()

	if err := sink.Send(notification.Toast{Message: "fresh", Severity: notification.SeveritySuccess, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() > 1024*1024/2+128 {
		t.Errorf("log size = %d, expected about half the limit", info.Size())
	}
	if _, err := os.Stat(logPath + ".old"); !os.IsNotExist(err) {
		t.Errorf("compaction must not leave a side file: %v", err)
	}

	entries, _ := notification.ReadLog(logPath)
	if len(entries) < 2 {
		t.Fatalf("expected recent history to survive, got %d entries", len(entries))
	}
	if !strings.HasSuffix(entries[len(entries)-1], "[SUCCESS] fresh") {
		t.Errorf("last entry = %q", entries[len(entries)-1])
	}
	lines := strings.Split(strings.TrimSuffix(old.String(), "\n"), "\n")
	if entries[len(entries)-2] != lines[len(lines)-1] {
		t.Errorf("newest old entry lost: %q", entries[len(entries)-2])
	}
	for _, e := range entries[:len(entries)-1] {
		if !strings.HasPrefix(e, "2026-01-01T00:00:00Z [INFO] old toast ") {
			t.Fatalf("partial line kept: %q", e)
		}
	}
}

// TestLogSinkCompactsWhileOpen tests that the size limit holds across sends
func TestLogSinkCompactsWhileOpen(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "toasts.log")
	sink := notification.NewLogSink(&notification.LogConfig{Enabled: true, Path: logPath, MaxSizeMB: 1})
	defer func() { _ = sink.Close() }()

	msg := strings.Repeat("x", 1000)
	for i := 0; i < 1500; i++ {
		if err := sink.Send(notification.Toast{Message: msg, CreatedAt: time.Now()}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() > 1024*1024 {
		t.Errorf("log size = %d, exceeds the limit", info.Size())
	}
}

// TestLogSinkFoldsLineBreaks tests that a multi-line message stays one entry
func TestLogSinkFoldsLineBreaks(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "toasts.log")
	sink := notification.NewLogSink(&notification.LogConfig{Enabled: true, Path: logPath})
	defer func() { _ = sink.Close() }()

	err := sink.Send(notification.Toast{
		Message:   "Could not save note:\ntitle: required",
		Severity:  notification.SeverityError,
		CreatedAt: time.Date(2026, 1, 16, 10, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	entries, _ := notification.ReadLog(logPath)
	want := "2026-01-16T10:30:00Z [ERROR] Could not save note: title: required"
	if len(entries) != 1 || entries[0] != want {
		t.Errorf("entries = %q, want [%q]", entries, want)
	}
}

// TestReadLogMissing tests that a missing log yields no entries
func TestReadLogMissing(t *testing.T) {
	entries, err := notification.ReadLog(filepath.Join(t.TempDir(), "absent.log"))
	if err != nil || entries != nil {
		t.Errorf("ReadLog = %v, %v", entries, err)
	}
}

// TestClearLogMissing tests that clearing an absent log succeeds
func TestClearLogMissing(t *testing.T) {
	if err := notification.ClearLog(filepath.Join(t.TempDir(), "absent", "toasts.log")); err != nil {
		t.Errorf("ClearLog: %v", err)
	}
}

// TestClearLog tests that ClearLog empties the file
func TestClearLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "toasts.log")
	if err := os.WriteFile(logPath, []byte("line\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := notification.ClearLog(logPath); err != nil {
		t.Fatalf("ClearLog: %v", err)
	}
	entries, _ := notification.ReadLog(logPath)
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %v", entries)
	}
}

// =============================================================================
// Unit Tests - Writer Sink
// =============================================================================

// TestWriterSink tests the line format used by the CLI
func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	q := notification.NewQueue(nil, notification.WithSink(notification.NewWriterSink(&buf)))

	q.Success("Note saved")
	q.Error("Could not load notes")

	want := "[SUCCESS] Note saved\n[ERROR] Could not load notes\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
