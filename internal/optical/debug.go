// Package optical holds the logging streams shared by the optical tracking
// packages.
//
// There are three streams: ops (actionable warnings and lifecycle), diag
// (diagnostics and tuning context) and trace (per-frame telemetry). Each
// package logs through its own Scope, so one set of writers carries every
// component and lines read "[optical] capture: ...". A nil writer disables
// its stream.
package optical

import (
	"fmt"
	"io"
	"log"
	"sync"
)

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

type stream int

const (
	opsStream stream = iota
	diagStream
	traceStream
	streamCount
)

var (
	mu      sync.RWMutex
	loggers [streamCount]*log.Logger
)

// SetLogWriters configures all three logging streams at once.
func SetLogWriters(w LogWriters) {
	mu.Lock()
	defer mu.Unlock()
	for s, out := range [streamCount]io.Writer{w.Ops, w.Diag, w.Trace} {
		loggers[s] = nil
		if out != nil {
			loggers[s] = log.New(out, "[optical] ", log.LstdFlags|log.Lmicroseconds)
		}
	}
}

func logger(s stream) *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return loggers[s]
}

// Scope tags log lines with a component name.
type Scope string

func (s Scope) logf(st stream, format string, args []interface{}) {
	l := logger(st)
	if l == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if s != "" {
		msg = string(s) + ": " + msg
	}
	l.Output(3, msg)
}

// Opsf logs to the ops stream.
func (s Scope) Opsf(format string, args ...interface{}) { s.logf(opsStream, format, args) }

// Diagf logs to the diag stream.
func (s Scope) Diagf(format string, args ...interface{}) { s.logf(diagStream, format, args) }

// Tracef logs to the trace stream.
func (s Scope) Tracef(format string, args ...interface{}) { s.logf(traceStream, format, args) }

// Framef logs per-frame telemetry to the trace stream, tagged with the
// frame index in the same zero-padded form as recorded file names.
func (s Scope) Framef(index uint64, format string, args ...interface{}) {
	if logger(traceStream) == nil {
		return
	}
	s.logf(traceStream, "frame %06d: "+format, append([]interface{}{index}, args...))
}

// TraceEnabled reports whether the trace stream has a writer, so per-frame
// callers can skip building expensive arguments.
func TraceEnabled() bool { return logger(traceStream) != nil }
