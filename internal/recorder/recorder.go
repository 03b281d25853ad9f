// Package recorder writes timestamped data streams to files. Every format
// (video, audio, tabular, structured) implements Recorder: the format
// parameters are fixed when the recorder is opened, each Write is validated
// against them before reaching the container writer, and Close releases
// the file.
package recorder

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/streamrec/internal/ffmpeg"
	"github.com/audiolibrelab/streamrec/internal/timestamp"
)

// Recorder defines the interface that all format recorders implement
type Recorder[T any] interface {
	io.Closer

	// Write validates datum and appends it to the file.
	Write(datum T) error

	// Closed reports whether Close has been called.
	Closed() bool

	// Path returns the file being written.
	Path() string
}

// With runs fn and closes r on every exit path, including a panic in fn.
// A close error is joined with fn's error. Closing r inside fn is allowed;
// the second Close is a no-op.
func With(r io.Closer, fn func() error) (err error) {
	defer func() {
		if cerr := r.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn()
}

// NewPath returns <dir>/<timestamp>.<ext>. The directory must already
// exist; it is not created. A name that is somehow taken already is skipped.
func NewPath(dir, ext string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", &IOError{Op: "stat", Path: dir, Err: err}
	}
	if !info.IsDir() {
		return "", &IOError{Op: "stat", Path: dir, Err: errNotDir}
	}

	ext = strings.TrimPrefix(ext, ".")
	for {
		path := filepath.Join(dir, timestamp.Now()+"."+ext)
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", &IOError{Op: "stat", Path: path, Err: err}
		}
	}
}

// Factory is a deferred recorder construction bound to a directory, an
// extension and fixed format parameters. Each New call opens a recorder on
// a fresh timestamped file.
type Factory[T any] struct {
	Dir  string
	Ext  string
	Open func(path string) (Recorder[T], error)
}

// New derives a new path inside Dir and opens a recorder on it.
func (f Factory[T]) New() (Recorder[T], error) {
	if f.Open == nil {
		return nil, configErrorf("factory", "no open function")
	}
	path, err := NewPath(f.Dir, f.Ext)
	if err != nil {
		return nil, err
	}
	return f.Open(path)
}

// VideoFactory binds NewVideoRecorder to dir.
func VideoFactory(dir, ext string, params VideoParams, opts ...Option) Factory[Frame] {
	return Factory[Frame]{Dir: dir, Ext: ext, Open: func(path string) (Recorder[Frame], error) {
		r, err := NewVideoRecorder(path, params, opts...)
		if err != nil {
			return nil, err
		}
		return r, nil
	}}
}

// AudioFactory binds NewAudioRecorder to dir.
func AudioFactory(dir, ext string, params AudioParams, opts ...Option) Factory[Samples] {
	return Factory[Samples]{Dir: dir, Ext: ext, Open: func(path string) (Recorder[Samples], error) {
		r, err := NewAudioRecorder(path, params, opts...)
		if err != nil {
			return nil, err
		}
		return r, nil
	}}
}

// TabularFactory binds NewTabularRecorder to dir with a .csv extension.
func TabularFactory(dir string, params TabularParams, opts ...Option) Factory[[]any] {
	return Factory[[]any]{Dir: dir, Ext: "csv", Open: func(path string) (Recorder[[]any], error) {
		r, err := NewTabularRecorder(path, params, opts...)
		if err != nil {
			return nil, err
		}
		return r, nil
	}}
}

// StructuredFactory binds NewStructuredRecorder to dir with a .jsonl
// extension.
func StructuredFactory(dir string, params StructuredParams, opts ...Option) Factory[any] {
	return Factory[any]{Dir: dir, Ext: "jsonl", Open: func(path string) (Recorder[any], error) {
		r, err := NewStructuredRecorder(path, params, opts...)
		if err != nil {
			return nil, err
		}
		return r, nil
	}}
}

// Option customises how a recorder reaches its container writer.
type Option func(*options)

type options struct {
	ffmpeg       ffmpeg.Options
	frameWriter  FrameWriterFunc
	sampleWriter SampleWriterFunc
	now          func() time.Time
}

func newOptions(opts []Option) options {
	o := options{
		ffmpeg: ffmpeg.DefaultOptions(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithFFmpeg sets the ffmpeg binaries used by the default container writers.
func WithFFmpeg(o ffmpeg.Options) Option {
	return func(opts *options) { opts.ffmpeg = o }
}

// WithFrameWriter replaces the ffmpeg video container writer.
func WithFrameWriter(fn FrameWriterFunc) Option {
	return func(opts *options) { opts.frameWriter = fn }
}

// WithSampleWriter replaces the default audio container writer.
func WithSampleWriter(fn SampleWriterFunc) Option {
	return func(opts *options) { opts.sampleWriter = fn }
}

// WithClock sets the clock used for row and record timestamps.
func WithClock(now func() time.Time) Option {
	return func(opts *options) { opts.now = now }
}

// state is the lifecycle shared by every recorder
type state struct {
	mu     sync.Mutex
	path   string
	closed bool
}

func (s *state) Path() string {
	return s.path
}

func (s *state) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// reserveTarget creates path as an empty file, failing if it exists or
// cannot be created. Recorders whose container writer opens the output
// lazily reserve it first so open reports an unusable target. release
// removes the reservation when the writer cannot be started.
func reserveTarget(path string) (release func(), err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	return func() { os.Remove(path) }, nil
}
