package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	outputMu sync.RWMutex
	output   io.Writer = os.Stderr
)

// SetOutput replaces the process log destination used by Tee.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	output = w
}

// Output returns the process log destination.
func Output() io.Writer {
	outputMu.RLock()
	defer outputMu.RUnlock()
	return output
}

// Tee derives a logger that writes to the process log destination and to w.
func Tee(base zerolog.Logger, w io.Writer) zerolog.Logger {
	return base.Output(zerolog.MultiLevelWriter(Output(), w))
}

// Sink turns zerolog events into plain text lines for a single consumer.
// Each event produces exactly one call to emit. After Close, writes are dropped.
type Sink struct {
	mu     sync.Mutex
	emit   func(line string)
	buf    bytes.Buffer
	format zerolog.ConsoleWriter
	closed bool
}

// NewSink creates a sink that delivers formatted log lines to emit.
func NewSink(emit func(line string)) *Sink {
	s := &Sink{emit: emit}
	s.format = zerolog.ConsoleWriter{
		Out:        &s.buf,
		NoColor:    true,
		PartsOrder: []string{zerolog.LevelFieldName, zerolog.MessageFieldName},
		FormatLevel: func(i interface{}) string {
			if i == nil {
				return "INFO -"
			}
			return strings.ToUpper(fmt.Sprint(i)) + " -"
		},
		FieldsExclude: []string{"trace_id", "run_id", "session_key", "session_id"},
	}
	return s
}

// Write implements io.Writer.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return len(p), nil
	}

	s.buf.Reset()
	if _, err := s.format.Write(p); err != nil {
		// Not a JSON event; forward the raw text.
		s.buf.Reset()
		s.buf.Write(p)
	}

	line := strings.TrimRight(s.buf.String(), "\r\n")
	if strings.TrimSpace(line) != "" {
		s.emit(line)
	}
	return len(p), nil
}

// Close detaches the sink. It is safe to call more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// LineWriter captures incidental text output line by line while passing
// every byte through to its original destination.
type LineWriter struct {
	mu       sync.Mutex
	dst      io.Writer
	emit     func(line string)
	partial  bytes.Buffer
	restored bool
}

// NewLineWriter creates a LineWriter. dst may be nil.
func NewLineWriter(dst io.Writer, emit func(line string)) *LineWriter {
	return &LineWriter{dst: dst, emit: emit}
}

// Write implements io.Writer.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dst != nil {
		if _, err := w.dst.Write(p); err != nil {
			return 0, err
		}
	}
	if w.restored {
		return len(p), nil
	}

	w.partial.Write(p)
	for {
		data := w.partial.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(data[:idx]))
		w.partial.Next(idx + 1)
		if line != "" {
			w.emit(line)
		}
	}
	return len(p), nil
}

// Restore flushes any partial line and stops capturing. Later writes only
// reach the original destination.
func (w *LineWriter) Restore() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.restored {
		return nil
	}
	if line := strings.TrimSpace(w.partial.String()); line != "" {
		w.emit(line)
	}
	w.partial.Reset()
	w.restored = true
	return nil
}
