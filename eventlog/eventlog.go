// Package eventlog provides an optional diagnostic sink that writes
// every ActionEvent a session emits as one newline-delimited JSON object
// per line. It is not on the aggregator's hot path — register it with
// Session.RegisterEventListener when a host application wants an audit
// trail.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"suinput/core/action"
)

// record is the on-disk shape of one logged ActionEvent.
type record struct {
	Handle action.Handle `json:"handle"`
	Time   time.Time     `json:"time"`
	Data   any           `json:"data"`
}

// Sink is a thread-safe NDJSON writer of ActionEvents.
type Sink struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// New creates (or appends to) the NDJSON file at path.
func New(path string) (*Sink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog open: %w", err)
	}
	return &Sink{file: file, writer: bufio.NewWriter(file)}, nil
}

// Listener returns a listener function (func(action.Event))
// that appends each event as one JSON line, flushed immediately so a
// crash doesn't lose the tail of the log.
func (s *Sink) Listener() func(action.Event) {
	return func(ev action.Event) {
		s.mu.Lock()
		defer s.mu.Unlock()

		data, err := json.Marshal(record{Handle: ev.Handle, Time: ev.Time, Data: ev.Data})
		if err != nil {
			fmt.Fprintf(os.Stderr, "eventlog marshal failed: %v\n", err)
			return
		}
		if _, err := s.writer.Write(append(data, '\n')); err != nil {
			fmt.Fprintf(os.Stderr, "eventlog write failed: %v\n", err)
			return
		}
		if err := s.writer.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "eventlog flush failed: %v\n", err)
		}
	}
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("eventlog flush: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("eventlog close: %w", err)
	}
	return nil
}
