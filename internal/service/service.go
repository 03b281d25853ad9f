package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/audiolibrelab/streamrec/internal/config"
	"github.com/audiolibrelab/streamrec/internal/recorder"
	"github.com/audiolibrelab/streamrec/internal/wrap"
)

// Handle is the lifecycle surface of a wrapper, whatever it records.
type Handle interface {
	Resume() error
	Pause() error
	Teardown() error
	State() wrap.State
	Sessions() int
	SessionID() string
	Path() string
}

// RecordingInfo describes one file in the output directory
type RecordingInfo struct {
	Name         string    `json:"name" yaml:"name"`
	Path         string    `json:"path" yaml:"path"`
	Format       string    `json:"format" yaml:"format"`
	Size         int64     `json:"size" yaml:"size"`
	SizeHuman    string    `json:"size_human" yaml:"size_human"`
	ModTime      time.Time `json:"mod_time" yaml:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human" yaml:"mod_time_human"`
}

// Service builds recorders and wrappers from a resolved configuration.
type Service struct {
	cfg *config.Config
}

// New creates a new service instance
func New(cfg *config.Config) *Service {
	return &Service{cfg: cfg}
}

// Config returns the resolved configuration.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// PrepareOutput creates the output directory if needed and returns it.
func (s *Service) PrepareOutput() (string, error) {
	dir := s.cfg.Output.Directory
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return dir, nil
}

func (s *Service) options() []recorder.Option {
	return []recorder.Option{recorder.WithFFmpeg(s.cfg.FFmpeg)}
}

// VideoFactory binds the video section of the profile to the output directory.
func (s *Service) VideoFactory() recorder.Factory[recorder.Frame] {
	return recorder.VideoFactory(s.cfg.Output.Directory, s.cfg.Video.Extension, s.cfg.Video.VideoParams, s.options()...)
}

// AudioFactory binds the audio section of the profile to the output directory.
func (s *Service) AudioFactory() recorder.Factory[recorder.Samples] {
	return recorder.AudioFactory(s.cfg.Output.Directory, s.cfg.Audio.Extension, s.cfg.Audio.AudioParams, s.options()...)
}

// TabularFactory binds the tabular section of the profile to the output directory.
func (s *Service) TabularFactory() recorder.Factory[[]any] {
	return recorder.TabularFactory(s.cfg.Output.Directory, s.cfg.Tabular, s.options()...)
}

// StructuredFactory binds the structured section of the profile to the output directory.
func (s *Service) StructuredFactory() recorder.Factory[any] {
	return recorder.StructuredFactory(s.cfg.Output.Directory, s.cfg.Structured, s.options()...)
}

// MakeWrapper attaches a recorder factory to a producer. Nothing is opened
// until the wrapper is resumed or first read.
func MakeWrapper[T any](factory wrap.Factory[T], producer wrap.Producer[T]) *wrap.Wrapper[T] {
	return wrap.New(factory, producer)
}

// VideoWrapper records frames from p with the profile's video settings.
func (s *Service) VideoWrapper(p wrap.Producer[recorder.Frame]) *wrap.Wrapper[recorder.Frame] {
	return MakeWrapper[recorder.Frame](s.VideoFactory(), p)
}

// AudioWrapper records sample blocks from p with the profile's audio settings.
func (s *Service) AudioWrapper(p wrap.Producer[recorder.Samples]) *wrap.Wrapper[recorder.Samples] {
	return MakeWrapper[recorder.Samples](s.AudioFactory(), p)
}

// TabularWrapper records rows from p with the profile's tabular settings.
func (s *Service) TabularWrapper(p wrap.Producer[[]any]) *wrap.Wrapper[[]any] {
	return MakeWrapper[[]any](s.TabularFactory(), p)
}

// StructuredWrapper records values from p as JSON lines.
func (s *Service) StructuredWrapper(p wrap.Producer[any]) *wrap.Wrapper[any] {
	return MakeWrapper[any](s.StructuredFactory(), p)
}

// Run drains w until the producer reports io.EOF or ctx is done, passing
// each value to sink. Values the recorder rejects as invalid are logged and
// still passed on; any other error stops the run. It returns the number of
// values read.
func Run[T any](ctx context.Context, w *wrap.Wrapper[T], sink func(T)) (int, error) {
	n := 0
	for ctx.Err() == nil {
		v, err := w.Read()
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return n, nil
		case errors.Is(err, recorder.ErrValidation):
			slog.Warn("Value not recorded", "kind", recorder.KindOf(err), "error", err)
		case err != nil:
			return n, err
		}
		n++
		if sink != nil {
			sink(v)
		}
	}
	return n, nil
}

// ListRecordings returns the recordings in the output directory, newest
// first. Files with extensions no recorder writes are skipped.
func (s *Service) ListRecordings() ([]RecordingInfo, error) {
	dir := s.cfg.Output.Directory

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var recordings []RecordingInfo
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		format := FormatOf(file.Name())
		if format == "" {
			continue
		}

		info, err := file.Info()
		if err != nil {
			slog.Warn("Failed to get file info", "file", file.Name(), "error", err)
			continue
		}

		recordings = append(recordings, RecordingInfo{
			Name:         file.Name(),
			Path:         filepath.Join(dir, file.Name()),
			Format:       format,
			Size:         info.Size(),
			SizeHuman:    formatBytes(info.Size()),
			ModTime:      info.ModTime(),
			ModTimeHuman: info.ModTime().Format("2006-01-02 15:04:05"),
		})
	}

	// Names are timestamps, so they sort by creation time
	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].Name > recordings[j].Name
	})

	return recordings, nil
}

// FormatOf names the recorder that writes files like name: "video",
// "audio", "tabular", "structured", or "" for anything else. Extensions
// shared by video and audio (mov) report "video".
func FormatOf(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case ext == ".csv":
		return "tabular"
	case ext == ".jsonl":
		return "structured"
	}
	if _, err := recorder.VideoCodecFor(name); err == nil {
		return "video"
	}
	if _, err := recorder.AudioFormatFor(name); err == nil {
		return "audio"
	}
	return ""
}

// formatBytes formats a byte count into a human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
