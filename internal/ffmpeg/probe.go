package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Stream is one stream as reported by ffprobe.
type Stream struct {
	Index        int    `json:"index"`
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	CodecTag     string `json:"codec_tag_string"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	PixelFormat  string `json:"pix_fmt,omitempty"`
	SampleRate   string `json:"sample_rate,omitempty"`
	Channels     int    `json:"channels,omitempty"`
	NbFrames     string `json:"nb_frames,omitempty"`
	NbReadFrames string `json:"nb_read_frames,omitempty"`
	Duration     string `json:"duration,omitempty"`
}

// Frames returns the decoded frame count, falling back to the container's
// own count when ffprobe did not decode the stream.
func (s Stream) Frames() int {
	for _, v := range []string{s.NbReadFrames, s.NbFrames} {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

// ProbeResult is the subset of ffprobe's JSON output we care about.
type ProbeResult struct {
	Streams []Stream `json:"streams"`
	Format  struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

// FirstStream returns the first stream of the given codec type.
func (r *ProbeResult) FirstStream(codecType string) (Stream, bool) {
	for _, s := range r.Streams {
		if s.CodecType == codecType {
			return s, true
		}
	}
	return Stream{}, false
}

// ParseProbe decodes ffprobe -of json output.
func ParseProbe(data []byte) (*ProbeResult, error) {
	var r ProbeResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("invalid ffprobe output: %w", err)
	}
	return &r, nil
}

// Probe runs ffprobe on path, decoding every frame so that frame counts
// are exact.
func Probe(ctx context.Context, opts Options, path string) (*ProbeResult, error) {
	opts = opts.withDefaults()
	cmd := exec.CommandContext(ctx, opts.ProbeBinary,
		"-v", "error",
		"-count_frames",
		"-show_streams",
		"-show_format",
		"-of", "json",
		path,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed on %s: %w\nOutput: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return ParseProbe(out)
}

// Available reports whether the ffmpeg binary can be found.
func Available(opts Options) error {
	opts = opts.withDefaults()
	if _, err := exec.LookPath(opts.Binary); err != nil {
		return fmt.Errorf("ffmpeg binary %q not found: %w", opts.Binary, err)
	}
	return nil
}

// Version returns the first line of `ffmpeg -version`.
func Version(ctx context.Context, opts Options) (string, error) {
	opts = opts.withDefaults()
	out, err := exec.CommandContext(ctx, opts.Binary, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to query FFmpeg version: %w", err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// Encoders lists the encoder names ffmpeg was built with.
func Encoders(ctx context.Context, opts Options) ([]string, error) {
	opts = opts.withDefaults()
	out, err := exec.CommandContext(ctx, opts.Binary, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list FFmpeg encoders: %w", err)
	}
	return parseEncoders(string(out)), nil
}

// parseEncoders extracts encoder names from `ffmpeg -encoders`. The table
// starts after a " ------" separator line; each row is "FLAGS name desc".
func parseEncoders(output string) []string {
	var names []string
	inTable := false
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !inTable {
			inTable = strings.HasPrefix(line, "------")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			names = append(names, fields[1])
		}
	}
	return names
}
