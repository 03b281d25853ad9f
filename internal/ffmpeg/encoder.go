// Package ffmpeg drives ffmpeg and ffprobe subprocesses. An Encoder feeds
// raw frames or samples to ffmpeg over stdin and lets it mux them into a
// container file.
package ffmpeg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Options selects the ffmpeg binaries and how long Close waits for the
// encoder to finish writing the container trailer.
type Options struct {
	Binary       string        `mapstructure:"binary" yaml:"binary"`
	ProbeBinary  string        `mapstructure:"probe_binary" yaml:"probe_binary"`
	LogLevel     string        `mapstructure:"log_level" yaml:"log_level"`
	CloseTimeout time.Duration `mapstructure:"close_timeout" yaml:"close_timeout"`
}

// DefaultOptions returns options that resolve ffmpeg and ffprobe from PATH.
func DefaultOptions() Options {
	return Options{
		Binary:       "ffmpeg",
		ProbeBinary:  "ffprobe",
		LogLevel:     "error",
		CloseTimeout: 30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Binary == "" {
		o.Binary = d.Binary
	}
	if o.ProbeBinary == "" {
		o.ProbeBinary = d.ProbeBinary
	}
	if o.LogLevel == "" {
		o.LogLevel = d.LogLevel
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = d.CloseTimeout
	}
	return o
}

// ErrEncoderClosed is returned by Write after Close.
var ErrEncoderClosed = errors.New("ffmpeg encoder is closed")

// Encoder is a running ffmpeg process reading raw media from stdin.
type Encoder struct {
	opts  Options
	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu        sync.Mutex
	stderrBuf strings.Builder
	closed    bool

	done chan error
}

// Start launches ffmpeg with args (as built by VideoArgs or AudioArgs).
func Start(opts Options, args []string) (*Encoder, error) {
	opts = opts.withDefaults()

	full := append([]string{"-hide_banner", "-loglevel", opts.LogLevel}, args...)
	cmd := exec.Command(opts.Binary, full...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	slog.Debug("Starting FFmpeg encoder", "command", opts.Binary+" "+strings.Join(full, " "))

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	e := &Encoder{
		opts:  opts,
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan error, 1),
	}

	// Wait must not run before the stderr reader has drained the pipe.
	go func() {
		e.readOutput(stderr)
		e.done <- cmd.Wait()
	}()

	return e, nil
}

// readOutput buffers ffmpeg diagnostics for error reports
func (e *Encoder) readOutput(pipe io.Reader) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		e.mu.Lock()
		e.stderrBuf.WriteString(line + "\n")
		e.mu.Unlock()
		slog.Debug("FFmpeg output", "line", line)
	}
}

// Stderr returns everything ffmpeg has written to stderr so far.
func (e *Encoder) Stderr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return strings.TrimSpace(e.stderrBuf.String())
}

// Write sends raw media bytes to ffmpeg.
func (e *Encoder) Write(p []byte) (int, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return 0, ErrEncoderClosed
	}

	n, err := e.stdin.Write(p)
	if err != nil {
		return n, e.describe(fmt.Errorf("FFmpeg write failed: %w", err))
	}
	return n, nil
}

// Close ends the input stream and waits for ffmpeg to finalise the file.
// If ffmpeg does not exit within CloseTimeout it is killed.
func (e *Encoder) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	stdinErr := e.stdin.Close()

	select {
	case err := <-e.done:
		if err != nil {
			return e.describe(fmt.Errorf("FFmpeg process failed: %w", err))
		}
		if stdinErr != nil && !errors.Is(stdinErr, io.ErrClosedPipe) {
			return fmt.Errorf("failed to close FFmpeg input: %w", stdinErr)
		}
		slog.Debug("FFmpeg exited successfully")
		return nil

	case <-time.After(e.opts.CloseTimeout):
		slog.Warn("FFmpeg did not exit within timeout, force killing", "timeout", e.opts.CloseTimeout)
		if e.cmd.Process != nil {
			e.cmd.Process.Kill()
		}
		<-e.done
		return fmt.Errorf("FFmpeg did not finish within %s", e.opts.CloseTimeout)
	}
}

func (e *Encoder) describe(err error) error {
	if out := e.Stderr(); out != "" {
		return fmt.Errorf("%w\nOutput: %s", err, out)
	}
	return err
}
