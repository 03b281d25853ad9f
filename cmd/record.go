package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/streamrec/internal/server"
	"github.com/audiolibrelab/streamrec/internal/service"
	"github.com/audiolibrelab/streamrec/internal/source"
	"github.com/audiolibrelab/streamrec/internal/wrap"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a stream to timestamped files",
	Long: `Record a stream of values to files in the output directory.

While recording, signals control the session:
  SIGUSR1   pause (the current file is closed)
  SIGUSR2   resume (a new file is opened)
  SIGINT    stop
  SIGTERM   stop

With --listen the same controls are served over HTTP: GET /status,
POST /pause, POST /resume, POST /stop and GET /api/files.`,
}

var recordLinesCmd = &cobra.Command{
	Use:   "lines",
	Short: "Record lines read from stdin",
	Long: `Record lines read from stdin as JSON values (jsonl) or CSV rows (csv).

Lines that are not valid JSON are recorded as strings. CSV rows must have as
many fields as the configured headers; other rows are logged and skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		svc, err := newService(cmd)
		if err != nil {
			return err
		}

		in := cmd.InOrStdin()
		switch format {
		case "jsonl":
			return record(cmd.Context(), cmd, svc, svc.StructuredWrapper(source.JSONValues(in)))
		case "csv":
			if headers, _ := cmd.Flags().GetStringSlice("headers"); len(headers) > 0 {
				svc.Config().Tabular.Headers = headers
			}
			return record(cmd.Context(), cmd, svc, svc.TabularWrapper(source.CSVRows(in)))
		default:
			return fmt.Errorf("unsupported format %q (expected jsonl or csv)", format)
		}
	},
}

var recordToneCmd = &cobra.Command{
	Use:   "tone",
	Short: "Record a sine tone through the audio recorder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		frequency, _ := cmd.Flags().GetFloat64("frequency")
		realtime, _ := cmd.Flags().GetBool("realtime")
		svc, err := newService(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := withDuration(cmd)
		defer cancel()

		tone := source.NewTone(ctx, frequency, svc.Config().Audio.AudioParams, 100*time.Millisecond, realtime)
		return record(ctx, cmd, svc, svc.AudioWrapper(tone))
	},
}

var recordPatternCmd = &cobra.Command{
	Use:   "pattern",
	Short: "Record a moving test pattern through the video recorder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		realtime, _ := cmd.Flags().GetBool("realtime")
		svc, err := newService(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := withDuration(cmd)
		defer cancel()

		pattern := source.NewPattern(ctx, svc.Config().Video.VideoParams, realtime)
		return record(ctx, cmd, svc, svc.VideoWrapper(pattern))
	},
}

func init() {
	recordCmd.PersistentFlags().StringP("output", "o", "", "output directory (overrides config)")
	recordCmd.PersistentFlags().Bool("paused", false, "start paused and wait for SIGUSR2")
	recordCmd.PersistentFlags().String("listen", "", "serve the control API on this address (e.g. localhost:8080)")

	recordLinesCmd.Flags().StringP("format", "f", "jsonl", "record format: jsonl or csv")
	recordLinesCmd.Flags().StringSlice("headers", nil, "CSV column headers (overrides config)")

	recordToneCmd.Flags().Float64("frequency", 440, "tone frequency in Hz")
	recordToneCmd.Flags().Duration("duration", 5*time.Second, "length of the recording, 0 records until interrupted")
	recordToneCmd.Flags().Bool("realtime", true, "pace samples to the wall clock")

	recordPatternCmd.Flags().Duration("duration", 5*time.Second, "length of the recording, 0 records until interrupted")
	recordPatternCmd.Flags().Bool("realtime", true, "pace frames to the configured frame rate")

	recordCmd.AddCommand(recordLinesCmd)
	recordCmd.AddCommand(recordToneCmd)
	recordCmd.AddCommand(recordPatternCmd)
}

// newService applies the record flags to the loaded configuration and makes
// sure the output directory exists.
func newService(cmd *cobra.Command) (*service.Service, error) {
	if output, _ := cmd.Flags().GetString("output"); output != "" {
		cfg.Output.Directory = output
	}

	svc := service.New(cfg)
	dir, err := svc.PrepareOutput()
	if err != nil {
		return nil, err
	}
	slog.Debug("Output directory ready", "directory", dir)
	return svc, nil
}

func withDuration(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	duration, _ := cmd.Flags().GetDuration("duration")
	if duration <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), duration)
}

// record drives w until its producer ends, ctx is done or a stop signal
// arrives, then tears it down.
func record[T any](ctx context.Context, cmd *cobra.Command, svc *service.Service, w *wrap.Wrapper[T]) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	paused, _ := cmd.Flags().GetBool("paused")
	if paused {
		if err := w.Pause(); err != nil {
			return err
		}
		slog.Info("Recording paused - send SIGUSR2 to start", "pid", os.Getpid())
	} else {
		if err := w.Resume(); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		slog.Info("Recording started - Press Ctrl+C to stop", "file", w.Path(), "pid", os.Getpid())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go handleSignals(ctx, cancel, w, sigChan)

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		ln, err := net.Listen("tcp", listen)
		if err != nil {
			w.Teardown()
			return fmt.Errorf("failed to start control API: %w", err)
		}
		go func() {
			if err := server.New(svc, w, cancel).Serve(ctx, ln); err != nil {
				slog.Error("Control API failed", "error", err)
			}
		}()
	}

	type result struct {
		values int
		err    error
	}
	done := make(chan result, 1)
	go func() {
		n, err := service.Run(ctx, w, nil)
		done <- result{n, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		// The producer may be blocked on stdin; give it a moment to notice.
		select {
		case res = <-done:
		case <-time.After(time.Second):
		}
	}

	if err := w.Teardown(); err != nil {
		return fmt.Errorf("failed to stop recording: %w", err)
	}
	if res.err != nil {
		return fmt.Errorf("recording failed: %w", res.err)
	}

	slog.Info("Recording finished", "values", res.values, "sessions", w.Sessions(), "directory", cfg.Output.Directory)
	return nil
}

// handleSignals maps SIGUSR1 and SIGUSR2 to pause and resume, and anything
// else on sigChan to stop.
func handleSignals(ctx context.Context, stop context.CancelFunc, h service.Handle, sigChan <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				path := h.Path()
				if err := h.Pause(); err != nil {
					slog.Error("Failed to pause recording", "error", err)
					continue
				}
				slog.Info("Recording paused", "closed_file", path)
			case syscall.SIGUSR2:
				if err := h.Resume(); err != nil {
					slog.Error("Failed to resume recording", "error", err)
					continue
				}
				slog.Info("Recording resumed", "session", h.SessionID(), "file", h.Path())
			default:
				slog.Info("Stopping recording...", "signal", sig)
				stop()
				return
			}
		}
	}
}
