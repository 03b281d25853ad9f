// Package wrap interposes a recorder between a data producer and its
// consumer. Every value the producer yields is written to the current
// recorder and handed back unchanged; pause, resume and teardown signals
// from the host close and recreate the recorder so that each active
// session lands in its own timestamped file.
package wrap

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/audiolibrelab/streamrec/internal/recorder"
)

// State represents the wrapper lifecycle state
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateActive        State = "ACTIVE"
	StatePaused        State = "PAUSED"
	StateTornDown      State = "TORN_DOWN"
)

// Producer yields values one at a time.
type Producer[T any] interface {
	Read() (T, error)
}

// ProducerFunc adapts a function to Producer.
type ProducerFunc[T any] func() (T, error)

func (f ProducerFunc[T]) Read() (T, error) {
	return f()
}

// Factory opens a recorder on a fresh file. recorder.Factory satisfies it.
type Factory[T any] interface {
	New() (recorder.Recorder[T], error)
}

// Wrapper records every value flowing through a producer.
type Wrapper[T any] struct {
	factory  Factory[T]
	producer Producer[T]

	mu       sync.Mutex
	state    State
	rec      recorder.Recorder[T]
	session  string
	sessions int
}

// New returns a wrapper in StateUninitialized. No file is created until
// Resume or the first value.
func New[T any](factory Factory[T], producer Producer[T]) *Wrapper[T] {
	return &Wrapper[T]{
		factory:  factory,
		producer: producer,
		state:    StateUninitialized,
	}
}

// Resume starts a new session unless one is already open. It does nothing
// after Teardown.
func (w *Wrapper[T]) Resume() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateTornDown {
		slog.Debug("Resume ignored, wrapper torn down")
		return nil
	}
	if w.rec != nil && !w.rec.Closed() {
		w.state = StateActive
		return nil
	}
	return w.open()
}

// Read pulls the next value from the producer, records it while active and
// returns it unchanged. Producer errors are returned as is and nothing is
// recorded. A write error is returned alongside the value; the recorder
// stays open.
//
// The producer is called without holding the wrapper lock, so a blocked
// producer never delays Pause or Teardown.
func (w *Wrapper[T]) Read() (T, error) {
	v, err := w.producer.Read()
	if err != nil {
		return v, err
	}
	return w.Intercept(v)
}

// Intercept records v as if the producer had yielded it. Hosts that push
// values instead of being polled call this directly.
func (w *Wrapper[T]) Intercept(v T) (T, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case StateUninitialized:
		if err := w.open(); err != nil {
			return v, err
		}
	case StateActive:
		if w.rec == nil || w.rec.Closed() {
			if err := w.open(); err != nil {
				return v, err
			}
		}
	default:
		return v, nil
	}

	return v, w.rec.Write(v)
}

// Pause closes the current recorder. Values pass through unrecorded until
// the next Resume.
func (w *Wrapper[T]) Pause() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateTornDown {
		return nil
	}
	err := w.release()
	w.state = StatePaused
	slog.Debug("Recording paused", "sessions", w.sessions)
	return err
}

// Teardown closes the current recorder for good. Calling it again is a
// no-op.
func (w *Wrapper[T]) Teardown() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateTornDown {
		return nil
	}
	err := w.release()
	w.state = StateTornDown
	slog.Debug("Recording torn down", "sessions", w.sessions)
	return err
}

// Close is Teardown, so a Wrapper can be used with recorder.With.
func (w *Wrapper[T]) Close() error {
	return w.Teardown()
}

// State returns the current lifecycle state.
func (w *Wrapper[T]) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Sessions returns how many recorders have been opened.
func (w *Wrapper[T]) Sessions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessions
}

// SessionID identifies the most recent session in logs. Empty before the
// first one.
func (w *Wrapper[T]) SessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

// Path returns the file of the open recorder, or "" when none is open.
func (w *Wrapper[T]) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rec == nil {
		return ""
	}
	return w.rec.Path()
}

// open must be called with mu held. On failure the state is unchanged.
func (w *Wrapper[T]) open() error {
	rec, err := w.factory.New()
	if err != nil {
		return err
	}
	w.rec = rec
	w.session = uuid.NewString()
	w.sessions++
	w.state = StateActive
	slog.Debug("Recording session started", "session", w.session, "path", rec.Path())
	return nil
}

// release must be called with mu held.
func (w *Wrapper[T]) release() error {
	rec := w.rec
	w.rec = nil
	if rec == nil || rec.Closed() {
		return nil
	}
	slog.Debug("Recording session ended", "session", w.session, "path", rec.Path())
	return rec.Close()
}
