package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/streamrec/internal/recorder"
)

const profilesConfig = `
active_profile: lab

profiles:
  default:
    output:
      directory: /data/recordings
    video:
      extension: mkv
      fps: 25
      height: 480
      width: 640
    structured:
      ensure_ascii: true
  lab:
    video:
      fps: 60
    audio:
      extension: flac
      channels: 1
    tabular:
      headers: [x, y, z]
    structured:
      ensure_ascii: false
  studio:
    output:
      directory: ~/Studio
    ffmpeg:
      binary: /opt/ffmpeg/bin/ffmpeg
      close_timeout: 5s
`

func TestLoadWithProfile_ActiveProfileMergesOverDefault(t *testing.T) {
	configFile := createTempConfig(t, profilesConfig)

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Profile != "lab" {
		t.Errorf("Expected profile 'lab', got %s", cfg.Profile)
	}

	// Profile-specific values
	if cfg.Video.FPS != 60 {
		t.Errorf("Expected fps 60, got %v", cfg.Video.FPS)
	}
	if cfg.Audio.Extension != "flac" || cfg.Audio.Channels != 1 {
		t.Errorf("Expected flac mono audio, got %+v", cfg.Audio)
	}
	if !slices.Equal(cfg.Tabular.Headers, []string{"x", "y", "z"}) {
		t.Errorf("Expected headers [x y z], got %v", cfg.Tabular.Headers)
	}
	if cfg.Structured.EnsureASCII {
		t.Errorf("Expected explicit ensure_ascii=false to override default profile")
	}

	// Inherited from the default profile
	if cfg.Video.Extension != "mkv" || cfg.Video.Height != 480 || cfg.Video.Width != 640 {
		t.Errorf("Expected video geometry from default profile, got %+v", cfg.Video)
	}
	if cfg.Output.Directory != "/data/recordings" {
		t.Errorf("Expected directory /data/recordings, got %s", cfg.Output.Directory)
	}

	// Inherited from the built-in defaults
	if cfg.Video.Channels != 3 {
		t.Errorf("Expected built-in channels 3, got %d", cfg.Video.Channels)
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("Expected built-in sample rate 48000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Tabular.TimestampHeader != "timestamp" || cfg.Tabular.Mode != recorder.AppendIfExists {
		t.Errorf("Expected built-in tabular settings, got %+v", cfg.Tabular)
	}

	if !slices.Contains(cfg.Inheritance, "video.height") {
		t.Errorf("Expected video.height to be reported as inherited, got %v", cfg.Inheritance)
	}
	if slices.Contains(cfg.Inheritance, "video.fps") {
		t.Errorf("video.fps is profile-specific but reported as inherited")
	}
}

func TestLoadWithProfile_ExplicitProfile(t *testing.T) {
	configFile := createTempConfig(t, profilesConfig)

	cfg, err := LoadWithProfile(configFile, "Studio")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	home, _ := os.UserHomeDir()
	if cfg.Output.Directory != filepath.Join(home, "Studio") {
		t.Errorf("Expected expanded ~/Studio, got %s", cfg.Output.Directory)
	}
	if cfg.FFmpeg.Binary != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("Expected custom ffmpeg binary, got %s", cfg.FFmpeg.Binary)
	}
	if cfg.FFmpeg.CloseTimeout != 5*time.Second {
		t.Errorf("Expected close timeout 5s, got %v", cfg.FFmpeg.CloseTimeout)
	}
	if cfg.FFmpeg.ProbeBinary != "ffprobe" {
		t.Errorf("Expected default ffprobe binary, got %s", cfg.FFmpeg.ProbeBinary)
	}
	if !cfg.Structured.EnsureASCII {
		t.Errorf("Expected ensure_ascii inherited from default profile")
	}
}

func TestLoadWithProfile_DefaultProfile(t *testing.T) {
	configFile := createTempConfig(t, profilesConfig)

	cfg, err := LoadWithProfile(configFile, DefaultProfile)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Video.FPS != 25 {
		t.Errorf("Expected fps 25, got %v", cfg.Video.FPS)
	}
	if cfg.Audio.Extension != "wav" {
		t.Errorf("Expected built-in audio extension wav, got %s", cfg.Audio.Extension)
	}
}

func TestLoadWithProfile_MissingProfile(t *testing.T) {
	configFile := createTempConfig(t, profilesConfig)

	_, err := LoadWithProfile(configFile, "nope")
	if err == nil || !strings.Contains(err.Error(), "'nope' not found") {
		t.Errorf("Expected profile not found error, got: %v", err)
	}
}

func TestLoadWithProfile_NoFile(t *testing.T) {
	cfg, err := LoadWithProfile("", "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := Default()
	if cfg.Video != want.Video || cfg.Audio != want.Audio || cfg.FFmpeg != want.FFmpeg {
		t.Errorf("Expected built-in defaults, got %+v", cfg)
	}
	if cfg.Output.Directory != want.Output.Directory {
		t.Errorf("Expected directory %s, got %s", want.Output.Directory, cfg.Output.Directory)
	}
}

func TestLoadWithProfile_MissingFile(t *testing.T) {
	_, err := LoadWithProfile(filepath.Join(t.TempDir(), "missing.yaml"), "")
	if err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadWithProfile_EnvironmentOverride(t *testing.T) {
	t.Setenv("STREAMREC_OUTPUT_DIRECTORY", "/env/dir")
	t.Setenv("STREAMREC_AUDIO_SAMPLE_RATE", "22050")

	cfg, err := LoadWithProfile("", "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Output.Directory != "/env/dir" {
		t.Errorf("Expected /env/dir, got %s", cfg.Output.Directory)
	}
	if cfg.Audio.SampleRate != 22050 {
		t.Errorf("Expected 22050, got %d", cfg.Audio.SampleRate)
	}
}

func TestLoadWithProfile_GlobalsDirectory(t *testing.T) {
	configFile := createTempConfig(t, `
globals:
  output:
    directory: /global/out
profiles:
  default:
    output:
      directory: /profile/out
`)

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Output.Directory != "/global/out" {
		t.Errorf("Expected global directory to take priority, got %s", cfg.Output.Directory)
	}
}

func TestLoadWithProfile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "unknown section",
			content: `
profiles:
  default:
    vidoe:
      fps: 30
`,
			want: "unknown section 'vidoe'",
		},
		{
			name: "unsupported video extension",
			content: `
profiles:
  default:
    video:
      extension: webm
`,
			want: "video:",
		},
		{
			name: "unsupported audio extension",
			content: `
profiles:
  default:
    audio:
      extension: xyz
`,
			want: "audio:",
		},
		{
			name: "zero sample rate",
			content: `
profiles:
  default:
    audio:
      sample_rate: 0
`,
			want: "sample_rate",
		},
		{
			name: "duplicate headers",
			content: `
profiles:
  default:
    tabular:
      headers: [a, a]
`,
			want: "duplicate header",
		},
		{
			name: "bad tabular mode",
			content: `
profiles:
  default:
    tabular:
      mode: overwrite
`,
			want: "mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile := createTempConfig(t, tt.content)

			_, err := LoadWithProfile(configFile, "")
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestProfileNames(t *testing.T) {
	configFile := createTempConfig(t, profilesConfig)

	names, err := ProfileNames(configFile)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !slices.Equal(names, []string{"default", "lab", "studio"}) {
		t.Errorf("Expected [default lab studio], got %v", names)
	}
}

func TestUpdateActiveProfile(t *testing.T) {
	configFile := createTempConfig(t, profilesConfig)

	if err := UpdateActiveProfile(configFile, "studio"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	root, err := ReadRoot(configFile)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if root.ActiveProfile != "studio" {
		t.Errorf("Expected active profile 'studio', got %s", root.ActiveProfile)
	}

	if err := UpdateActiveProfile(configFile, "missing"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/Recordings", filepath.Join(home, "Recordings")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"~", "~"},
	}

	for _, test := range tests {
		result := expandPath(test.input)
		if result != test.expected {
			t.Errorf("expandPath(%s) = %s, expected %s", test.input, result, test.expected)
		}
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected built-in defaults to validate, got: %v", err)
	}

	cfg.Tabular.Headers[0] = "changed"
	if Default().Tabular.Headers[0] != "line" {
		t.Error("Default() must not share the headers slice")
	}
}

// Helper function to create temporary config file for testing
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "streamrec.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}
