// Package source provides the producers the CLI records from: lines of a
// text stream, a sine tone and a moving video test pattern.
package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/audiolibrelab/streamrec/internal/wrap"
)

// Lines yields the lines of r without their terminators, then io.EOF.
type Lines struct {
	scanner *bufio.Scanner
}

// NewLines reads lines from r. Lines up to 1 MiB are accepted.
func NewLines(r io.Reader) *Lines {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Lines{scanner: s}
}

func (l *Lines) Read() (string, error) {
	if l.scanner.Scan() {
		return l.scanner.Text(), nil
	}
	if err := l.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Map converts every value of p with fn. An fn error is returned from Read
// in place of the value.
func Map[T, U any](p wrap.Producer[T], fn func(T) (U, error)) wrap.Producer[U] {
	return wrap.ProducerFunc[U](func() (U, error) {
		v, err := p.Read()
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(v)
	})
}

// JSONValue decodes line as JSON, falling back to the line itself as a
// string when it is not valid JSON.
func JSONValue(line string) (any, error) {
	if !json.Valid([]byte(line)) {
		return line, nil
	}
	var v any
	if err := json.Unmarshal([]byte(line), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// JSONValues yields one decoded value per line of r.
func JSONValues(r io.Reader) wrap.Producer[any] {
	return Map[string, any](NewLines(r), JSONValue)
}

// CSVRows yields the records of r as rows of strings. Records may have
// differing field counts; the recorder decides what it accepts.
func CSVRows(r io.Reader) wrap.Producer[[]any] {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return wrap.ProducerFunc[[]any](func() ([]any, error) {
		rec, err := cr.Read()
		if err != nil {
			return nil, err
		}
		row := make([]any, len(rec))
		for i, f := range rec {
			row[i] = strings.TrimSpace(f)
		}
		return row, nil
	})
}

// pacer releases one value per period of wall-clock time. A zero period
// never waits.
type pacer struct {
	ctx    context.Context
	period time.Duration
	next   time.Time
}

func newPacer(ctx context.Context, period time.Duration) *pacer {
	return &pacer{ctx: ctx, period: period}
}

// wait blocks until the next slot or until the context is done.
func (p *pacer) wait() error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	if p.period <= 0 {
		return nil
	}
	now := time.Now()
	if p.next.IsZero() {
		p.next = now
	}
	if d := p.next.Sub(now); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-p.ctx.Done():
			return p.ctx.Err()
		case <-t.C:
		}
	}
	p.next = p.next.Add(p.period)
	return nil
}
