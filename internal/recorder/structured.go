package recorder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
	"unicode/utf16"

	"github.com/audiolibrelab/streamrec/internal/timestamp"
)

// StructuredParams controls how records are serialised.
type StructuredParams struct {
	// EnsureASCII escapes every non-ASCII character as \uXXXX.
	EnsureASCII bool `mapstructure:"ensure_ascii" yaml:"ensure_ascii"`
	// EscapeHTML escapes <, > and & inside strings.
	EscapeHTML bool `mapstructure:"escape_html" yaml:"escape_html"`
}

// Envelope is the shape of every line written by a StructuredRecorder.
type Envelope struct {
	Timestamp float64 `json:"timestamp"`
	Data      any     `json:"data"`
}

// StructuredRecorder appends JSON lines of the form
// {"timestamp": <seconds>, "data": <value>}.
type StructuredRecorder struct {
	state
	params  StructuredParams
	file    *os.File
	now     func() time.Time
	records int
}

// NewStructuredRecorder opens path for appending JSON lines.
func NewStructuredRecorder(path string, params StructuredParams, opts ...Option) (*StructuredRecorder, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}

	slog.Debug("Structured recorder opened", "path", path)

	return &StructuredRecorder{
		state:  state{path: path},
		params: params,
		file:   f,
		now:    newOptions(opts).now,
	}, nil
}

// Params returns the serialisation options.
func (r *StructuredRecorder) Params() StructuredParams {
	return r.params
}

// Records returns the number of lines written by this recorder.
func (r *StructuredRecorder) Records() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records
}

// Write appends value as one line. Values encoding/json cannot marshal
// are rejected with KindSerialization.
func (r *StructuredRecorder) Write(value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	line, err := r.encode(Envelope{Timestamp: timestamp.Seconds(r.now()), Data: value})
	if err != nil {
		return &ValidationError{Kind: KindSerialization, Msg: fmt.Sprintf("%T is not JSON serializable", value), Err: err}
	}

	if _, err := r.file.Write(line); err != nil {
		return &IOError{Op: "write", Path: r.path, Err: err}
	}
	r.records++
	return nil
}

func (r *StructuredRecorder) encode(env Envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(r.params.EscapeHTML)
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	if r.params.EnsureASCII {
		return escapeNonASCII(buf.Bytes()), nil
	}
	return buf.Bytes(), nil
}

// Close closes the file. Closing twice is a no-op.
func (r *StructuredRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	slog.Debug("Structured recorder closed", "path", r.path, "records", r.records)

	if err := r.file.Close(); err != nil {
		return &IOError{Op: "close", Path: r.path, Err: err}
	}
	return nil
}

// escapeNonASCII rewrites every non-ASCII rune in valid JSON as a \u
// escape, using surrogate pairs outside the BMP. Non-ASCII can only occur
// inside strings, so the result is equivalent JSON.
func escapeNonASCII(src []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(src))
	for _, r := range string(src) {
		if r < 0x80 {
			out.WriteByte(byte(r))
			continue
		}
		if r > 0xFFFF {
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&out, `\u%04x\u%04x`, hi, lo)
			continue
		}
		fmt.Fprintf(&out, `\u%04x`, r)
	}
	return out.Bytes()
}
