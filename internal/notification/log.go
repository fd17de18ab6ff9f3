package notification

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// logLineLimit bounds one line when reading the toast log back
const logLineLimit = 1024 * 1024

// logSink appends toasts to a log file, one line each. Once the file would
// exceed MaxSizeMB it is compacted in place to its newest half, so the
// notifications command always shows the latest history.
type logSink struct {
	config *LogConfig
	file   *os.File
	size   int64
	mu     sync.Mutex
}

// NewLogSink creates a sink writing one line per toast to cfg.Path
func NewLogSink(cfg *LogConfig) Sink {
	return &logSink{
		config: cfg,
	}
}

// formatLogLine renders t as it is stored in the log, without the newline.
// Line breaks inside the message are folded so a toast stays on one line.
func formatLogLine(t Toast) string {
	msg := strings.Join(strings.Fields(t.Message), " ")
	return fmt.Sprintf("%s [%s] %s", t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), t.Severity, msg)
}

// Send writes a toast to the log file
func (s *logSink) Send(t Toast) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := formatLogLine(t) + "\n"
	if err := s.open(); err != nil {
		return err
	}
	if limit := s.limit(); limit > 0 && s.size+int64(len(line)) > limit {
		if err := s.compact(limit / 2); err != nil {
			return err
		}
	}

	n, err := s.file.WriteString(line)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write toast: %w", err)
	}
	return s.file.Sync()
}

func (s *logSink) limit() int64 {
	return int64(s.config.MaxSizeMB) * 1024 * 1024
}

func (s *logSink) open() error {
	if s.file != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.config.Path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(s.config.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	s.file, s.size = file, info.Size()
	return nil
}

// compact rewrites the log keeping the newest whole lines that fit in keep
// bytes. The rewrite goes through a temporary file renamed over the log.
func (s *logSink) compact(keep int64) error {
	data, err := os.ReadFile(s.config.Path)
	if err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}
	tail := newestLines(data, keep)

	tmp := s.config.Path + ".tmp"
	if err := os.WriteFile(tmp, tail, 0644); err != nil {
		return fmt.Errorf("failed to compact log file: %w", err)
	}
	_ = s.file.Close()
	s.file = nil
	if err := os.Rename(tmp, s.config.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to compact log file: %w", err)
	}
	return s.open()
}

// newestLines returns the suffix of data made of whole lines, at most keep bytes
func newestLines(data []byte, keep int64) []byte {
	if int64(len(data)) <= keep {
		return data
	}
	tail := data[int64(len(data))-keep:]
	if i := bytes.IndexByte(tail, '\n'); i >= 0 {
		return tail[i+1:]
	}
	return nil
}

// Close closes the log file
func (s *logSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.size = nil, 0
	return err
}

// ReadLog returns the log lines, oldest first. A missing log has no entries.
func ReadLog(path string) ([]string, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var entries []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), logLineLimit)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			entries = append(entries, line)
		}
	}
	return entries, scanner.Err()
}

// ClearLog empties the log. A missing log is already clear.
func ClearLog(path string) error {
	err := os.Truncate(path, 0)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
