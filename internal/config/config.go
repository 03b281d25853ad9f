package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/audiolibrelab/streamrec/internal/ffmpeg"
	"github.com/audiolibrelab/streamrec/internal/recorder"
)

// DefaultProfile is the profile every other profile falls back to.
const DefaultProfile = "default"

// EnvPrefix prefixes environment overrides, e.g. STREAMREC_OUTPUT_DIRECTORY.
const EnvPrefix = "STREAMREC"

type GlobalsConfig struct {
	Output OutputConfig `mapstructure:"output" yaml:"output"`
}

type RootConfig struct {
	ActiveProfile string                    `mapstructure:"active_profile" yaml:"active_profile"`
	Globals       *GlobalsConfig            `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Profiles      map[string]map[string]any `mapstructure:"profiles" yaml:"profiles"`
}

type Config struct {
	Output     OutputConfig              `mapstructure:"output" yaml:"output"`
	Video      VideoConfig               `mapstructure:"video" yaml:"video"`
	Audio      AudioConfig               `mapstructure:"audio" yaml:"audio"`
	Tabular    recorder.TabularParams    `mapstructure:"tabular" yaml:"tabular"`
	Structured recorder.StructuredParams `mapstructure:"structured" yaml:"structured"`
	FFmpeg     ffmpeg.Options            `mapstructure:"ffmpeg" yaml:"ffmpeg"`

	// Internal fields describing where the values came from, for config show
	Profile     string   `mapstructure:"-" yaml:"-"`
	Inheritance []string `mapstructure:"-" yaml:"-"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

type VideoConfig struct {
	Extension            string `mapstructure:"extension" yaml:"extension"`
	recorder.VideoParams `mapstructure:",squash" yaml:",inline"`
}

type AudioConfig struct {
	Extension            string `mapstructure:"extension" yaml:"extension"`
	recorder.AudioParams `mapstructure:",squash" yaml:",inline"`
}

var defaultConfig = Config{
	Output: OutputConfig{
		Directory: filepath.Join("~", "Recordings", "streamrec"),
	},
	Video: VideoConfig{
		Extension:   "mp4",
		VideoParams: recorder.VideoParams{FPS: 30, Height: 240, Width: 320, Channels: 3},
	},
	Audio: AudioConfig{
		Extension:   "wav",
		AudioParams: recorder.AudioParams{SampleRate: 48000, Channels: 2},
	},
	Tabular: recorder.TabularParams{
		Headers:         []string{"line"},
		TimestampHeader: "timestamp",
		Mode:            recorder.AppendIfExists,
	},
	FFmpeg: ffmpeg.DefaultOptions(),
}

// Default returns the built-in configuration used when no file exists.
func Default() *Config {
	c := defaultConfig
	c.Tabular.Headers = append([]string(nil), defaultConfig.Tabular.Headers...)
	c.Output.Directory = expandPath(c.Output.Directory)
	c.Profile = DefaultProfile
	return &c
}

// setDefaults registers every built-in value so that environment overrides
// and partial profiles resolve against it.
func setDefaults(v *viper.Viper) {
	d := defaultConfig
	v.SetDefault("output.directory", d.Output.Directory)
	v.SetDefault("video.extension", d.Video.Extension)
	v.SetDefault("video.fps", d.Video.FPS)
	v.SetDefault("video.height", d.Video.Height)
	v.SetDefault("video.width", d.Video.Width)
	v.SetDefault("video.channels", d.Video.Channels)
	v.SetDefault("audio.extension", d.Audio.Extension)
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.channels", d.Audio.Channels)
	v.SetDefault("tabular.headers", d.Tabular.Headers)
	v.SetDefault("tabular.timestamp_header", d.Tabular.TimestampHeader)
	v.SetDefault("tabular.mode", string(d.Tabular.Mode))
	v.SetDefault("structured.ensure_ascii", d.Structured.EnsureASCII)
	v.SetDefault("structured.escape_html", d.Structured.EscapeHTML)
	v.SetDefault("ffmpeg.binary", d.FFmpeg.Binary)
	v.SetDefault("ffmpeg.probe_binary", d.FFmpeg.ProbeBinary)
	v.SetDefault("ffmpeg.log_level", d.FFmpeg.LogLevel)
	v.SetDefault("ffmpeg.close_timeout", d.FFmpeg.CloseTimeout)
}

// LoadWithProfile resolves a profile from configFile. The profile is
// chosen by the profile argument, then active_profile, then "default".
// A named profile is merged key by key over the default profile, which is
// itself merged over the built-in defaults. An empty configFile yields the
// built-in defaults (with environment overrides).
func LoadWithProfile(configFile, profile string) (*Config, error) {
	rootConfig := &RootConfig{}
	if configFile != "" {
		var err error
		rootConfig, err = ReadRoot(configFile)
		if err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	// Determine which profile to use
	profileName := profile
	if profileName == "" {
		profileName = rootConfig.ActiveProfile
	}
	if profileName == "" {
		profileName = DefaultProfile
	}
	// viper folds keys to lower case
	profileName = strings.ToLower(profileName)

	selected, exists := rootConfig.Profiles[profileName]
	if !exists && profileName != DefaultProfile {
		return nil, fmt.Errorf("configuration profile '%s' not found", profileName)
	}

	merged := viper.New()
	setDefaults(merged)
	merged.SetEnvPrefix(EnvPrefix)
	merged.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	merged.AutomaticEnv()

	if base, ok := rootConfig.Profiles[DefaultProfile]; ok && profileName != DefaultProfile {
		if err := merged.MergeConfigMap(base); err != nil {
			return nil, fmt.Errorf("error merging default profile: %w", err)
		}
	}
	if err := merged.MergeConfigMap(selected); err != nil {
		return nil, fmt.Errorf("error merging profile '%s': %w", profileName, err)
	}

	var cfg Config
	if err := merged.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error resolving configuration profile '%s': %w", profileName, err)
	}
	cfg.Profile = profileName
	cfg.Inheritance = inheritedKeys(merged, selected)

	// Global output directory takes priority over the profile
	if rootConfig.Globals != nil && rootConfig.Globals.Output.Directory != "" {
		cfg.Output.Directory = rootConfig.Globals.Output.Directory
	}
	cfg.Output.Directory = expandPath(cfg.Output.Directory)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ReadRoot reads and syntax-checks a configuration file without
// resolving a profile.
func ReadRoot(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	for name, p := range rootConfig.Profiles {
		if name == "" {
			return nil, fmt.Errorf("profile names cannot be empty")
		}
		for key := range p {
			if !isSection(key) {
				return nil, fmt.Errorf("profile '%s': unknown section '%s'", name, key)
			}
		}
	}
	return &rootConfig, nil
}

func isSection(key string) bool {
	switch strings.ToLower(key) {
	case "output", "video", "audio", "tabular", "structured", "ffmpeg":
		return true
	}
	return false
}

// ProfileNames lists the profiles defined in configFile, sorted.
func ProfileNames(configFile string) ([]string, error) {
	rootConfig, err := ReadRoot(configFile)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rootConfig.Profiles))
	for name := range rootConfig.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// UpdateActiveProfile updates the active_profile field in the config file
func UpdateActiveProfile(configFile, newActiveProfile string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}
	newActiveProfile = strings.ToLower(newActiveProfile)

	names, err := ProfileNames(configFile)
	if err != nil {
		return err
	}
	if i := sort.SearchStrings(names, newActiveProfile); i == len(names) || names[i] != newActiveProfile {
		return fmt.Errorf("configuration profile '%s' not found", newActiveProfile)
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("active_profile", newActiveProfile)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// inheritedKeys returns the resolved keys the selected profile did not set
// itself.
func inheritedKeys(merged *viper.Viper, selected map[string]any) []string {
	own := viper.New()
	if err := own.MergeConfigMap(selected); err != nil {
		return nil
	}
	var keys []string
	for _, key := range merged.AllKeys() {
		if !own.IsSet(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Validate checks every section of a resolved configuration.
func Validate(c *Config) error {
	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory cannot be empty")
	}
	if err := c.Video.Validate(); err != nil {
		return fmt.Errorf("video: %w", err)
	}
	if _, err := recorder.VideoCodecFor("x." + c.Video.Extension); err != nil {
		return fmt.Errorf("video: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if _, err := recorder.AudioFormatFor("x." + c.Audio.Extension); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if err := c.Tabular.Validate(); err != nil {
		return fmt.Errorf("tabular: %w", err)
	}
	if c.FFmpeg.Binary == "" || c.FFmpeg.ProbeBinary == "" {
		return fmt.Errorf("ffmpeg: binary and probe_binary cannot be empty")
	}
	if c.FFmpeg.CloseTimeout < 0 {
		return errors.New("ffmpeg: close_timeout cannot be negative")
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
