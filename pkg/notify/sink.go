// Package notify provides the fire-and-forget progress notification sink
// used by the dispatcher and retry executor. Sinks never block the caller
// and never fail the run.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Sink receives human-readable progress notifications.
type Sink interface {
	Notify(message string)
}

// Func adapts a plain function to the Sink interface.
type Func func(message string)

// Notify implements Sink.
func (f Func) Notify(message string) {
	f(message)
}

// Nop discards all notifications.
type Nop struct{}

// Notify implements Sink.
func (Nop) Notify(string) {}

// WriterSink writes one notification per line to an io.Writer.
// Write errors are dropped: notifications must never fail the run.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Notify implements Sink.
func (s *WriterSink) Notify(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, message)
}

// LoggerSink forwards notifications to a zerolog logger at info level.
type LoggerSink struct {
	logger zerolog.Logger
}

// NewLoggerSink creates a sink backed by the given logger.
func NewLoggerSink(logger zerolog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

// Notify implements Sink.
func (s *LoggerSink) Notify(message string) {
	s.logger.Info().Msg(message)
}

// Capture records notifications in memory for test assertions.
type Capture struct {
	mu       sync.Mutex
	messages []string
}

// Notify implements Sink.
func (c *Capture) Notify(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
}

// Messages returns a copy of everything captured so far.
func (c *Capture) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of captured notifications.
func (c *Capture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
