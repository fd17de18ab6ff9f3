package notification

import (
	"fmt"
	"io"
	"sync"
)

// writerSink prints toasts as lines, used by the CLI where there is no
// overlay to render them
type writerSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink printing "[SEVERITY] message" lines to w
func NewWriterSink(w io.Writer) Sink {
	return &writerSink{w: w}
}

func (s *writerSink) Send(t Toast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "[%s] %s\n", t.Severity, t.Message)
	return err
}

func (s *writerSink) Close() error {
	return nil
}
