// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
)

// Severity grades a status report.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Sink receives human-readable status reports. Implementations must be safe
// for concurrent use; reports from background tasks arrive on their own
// goroutines.
type Sink interface {
	Report(message string, severity Severity)
}

// WriterSink writes one line per report.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a WriterSink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Report implements Sink.
func (s *WriterSink) Report(message string, severity Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if severity == SeverityWarning {
		fmt.Fprintf(s.w, "warning: %s\n", message)
		return
	}
	fmt.Fprintln(s.w, message)
}

// LogSink forwards reports to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Report implements Sink.
func (s *LogSink) Report(message string, severity Severity) {
	level := slog.LevelInfo
	switch severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError:
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, message, "source", "dispatch")
}

// Report is one recorded status report.
type Report struct {
	Message  string
	Severity Severity
}

// Collector records every report it receives.
type Collector struct {
	mu      sync.Mutex
	reports []Report
}

// Report implements Sink.
func (c *Collector) Report(message string, severity Severity) {
	c.mu.Lock()
	c.reports = append(c.reports, Report{Message: message, Severity: severity})
	c.mu.Unlock()
}

// Reports returns a copy of the recorded reports in arrival order.
func (c *Collector) Reports() []Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.reports)
}

// Count returns the number of reports with the given severity.
func (c *Collector) Count(severity Severity) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.reports {
		if r.Severity == severity {
			n++
		}
	}
	return n
}

// Tee fans every report out to all sinks in order.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

type tee []Sink

func (t tee) Report(message string, severity Severity) {
	for _, s := range t {
		s.Report(message, severity)
	}
}
