package recorder

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"slices"
	"strconv"
	"time"

	"github.com/audiolibrelab/streamrec/internal/timestamp"
)

// HeaderMode decides what happens when a tabular file already exists.
type HeaderMode string

const (
	// AppendIfExists appends rows to an existing file whose header row
	// matches; the header is written only to new or empty files.
	AppendIfExists HeaderMode = "append"
	// CreateOnly refuses to open an existing file.
	CreateOnly HeaderMode = "create"
)

// TabularParams fixes the columns of a CSV file.
type TabularParams struct {
	Headers         []string   `mapstructure:"headers" yaml:"headers"`
	TimestampHeader string     `mapstructure:"timestamp_header" yaml:"timestamp_header,omitempty"`
	Mode            HeaderMode `mapstructure:"mode" yaml:"mode,omitempty"`
}

// Validate checks the parameters independently of any file.
func (p TabularParams) Validate() error {
	if len(p.Headers) == 0 {
		return configErrorf("headers", "at least one header is required")
	}
	seen := make(map[string]bool, len(p.Headers)+1)
	if p.TimestampHeader != "" {
		seen[p.TimestampHeader] = true
	}
	for i, h := range p.Headers {
		if h == "" {
			return configErrorf("headers", "header[%d] is empty", i)
		}
		if seen[h] {
			return configErrorf("headers", "duplicate header %q", h)
		}
		seen[h] = true
	}
	switch p.Mode {
	case "", AppendIfExists, CreateOnly:
	default:
		return configErrorf("mode", "must be %q or %q, got %q", AppendIfExists, CreateOnly, p.Mode)
	}
	return nil
}

// Columns returns the header row as written, timestamp column first.
func (p TabularParams) Columns() []string {
	if p.TimestampHeader == "" {
		return slices.Clone(p.Headers)
	}
	return append([]string{p.TimestampHeader}, p.Headers...)
}

// TabularRecorder appends comma-separated rows to a file.
type TabularRecorder struct {
	state
	params TabularParams
	file   *os.File
	csv    *csv.Writer
	now    func() time.Time
	rows   int
}

// NewTabularRecorder opens path for CSV rows. The header row is written
// when the file is new or empty. What happens for an existing file
// depends on params.Mode.
func NewTabularRecorder(path string, params TabularParams, opts ...Option) (*TabularRecorder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.Mode == "" {
		params.Mode = AppendIfExists
	}
	params.Headers = slices.Clone(params.Headers)
	columns := params.Columns()

	flags := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if params.Mode == CreateOnly {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &IOError{Op: "stat", Path: path, Err: err}
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		w.Write(columns)
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, &IOError{Op: "write", Path: path, Err: err}
		}
	} else {
		if err := checkHeader(path, columns); err != nil {
			f.Close()
			return nil, err
		}
		if err := terminateLastLine(f, path, info.Size()); err != nil {
			f.Close()
			return nil, err
		}
	}

	slog.Debug("Tabular recorder opened", "path", path, "columns", columns, "appending", info.Size() > 0)

	return &TabularRecorder{
		state:  state{path: path},
		params: params,
		file:   f,
		csv:    w,
		now:    newOptions(opts).now,
	}, nil
}

// checkHeader verifies that an existing file starts with columns.
func checkHeader(path string, columns []string) error {
	f, err := os.Open(path)
	if err != nil {
		return &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	existing, err := r.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return &IOError{Op: "read", Path: path, Err: err}
	}
	if !slices.Equal(existing, columns) {
		return configErrorf("headers", "existing file %s has header %v, want %v", path, existing, columns)
	}
	return nil
}

// terminateLastLine appends a newline to w when the existing file of the
// given size does not end with one, so the next row starts on its own line.
func terminateLastLine(w io.Writer, path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return &IOError{Op: "read", Path: path, Err: err}
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := w.Write([]byte{'\n'}); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Params returns the format parameters the recorder was opened with.
func (r *TabularRecorder) Params() TabularParams {
	return r.params
}

// Rows returns the number of data rows written by this recorder.
func (r *TabularRecorder) Rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// Write appends one row. The row must have one scalar per header; the
// timestamp column, if configured, is filled in automatically.
func (r *TabularRecorder) Write(row []any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if len(row) != len(r.params.Headers) {
		return validationErrorf(KindColumns, "expected %d columns %v, got %d", len(r.params.Headers), r.params.Headers, len(row))
	}

	record := make([]string, 0, len(row)+1)
	if r.params.TimestampHeader != "" {
		record = append(record, strconv.FormatFloat(timestamp.Seconds(r.now()), 'f', 6, 64))
	}
	for i, v := range row {
		s, ok := formatCell(v)
		if !ok {
			return validationErrorf(KindDtype, "column %q: %T is not a scalar", r.params.Headers[i], v)
		}
		record = append(record, s)
	}

	r.csv.Write(record)
	r.csv.Flush()
	if err := r.csv.Error(); err != nil {
		return &IOError{Op: "write", Path: r.path, Err: err}
	}
	r.rows++
	return nil
}

// Close flushes and closes the file. Closing twice is a no-op.
func (r *TabularRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	slog.Debug("Tabular recorder closed", "path", r.path, "rows", r.rows)

	r.csv.Flush()
	if err := errors.Join(r.csv.Error(), r.file.Close()); err != nil {
		return &IOError{Op: "close", Path: r.path, Err: err}
	}
	return nil
}

// formatCell renders a scalar cell. ok is false for composite values.
func formatCell(v any) (s string, ok bool) {
	switch v := v.(type) {
	case nil:
		return "", true
	case string:
		return v, true
	case []byte:
		return string(v), true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), true
	case fmt.Stringer:
		return v.String(), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.String:
		return rv.String(), true
	}
	return "", false
}
