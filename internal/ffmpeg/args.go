package ffmpeg

import (
	"strconv"
)

// VideoSpec describes a rawvideo stream piped into ffmpeg and the codec it
// is encoded with.
type VideoSpec struct {
	Width       int
	Height      int
	FPS         float64
	PixelFormat string // input layout: gray, rgb24 or rgba
	Codec       string // ffmpeg encoder name, e.g. mpeg4 or libx264
	Tag         string // optional FourCC written to the container
	Output      string
}

// VideoArgs builds the ffmpeg arguments for a VideoSpec. The output is
// overwritten (-y); callers reserve it beforehand.
func VideoArgs(s VideoSpec) []string {
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", s.PixelFormat,
		"-s", strconv.Itoa(s.Width) + "x" + strconv.Itoa(s.Height),
		"-r", strconv.FormatFloat(s.FPS, 'f', -1, 64),
		"-i", "pipe:0",
		"-an",
		"-c:v", s.Codec,
	}
	if s.Tag != "" {
		args = append(args, "-tag:v", s.Tag)
	}
	args = append(args, "-pix_fmt", "yuv420p", s.Output)
	return args
}

// AudioSpec describes interleaved float32 little-endian samples piped into
// ffmpeg.
type AudioSpec struct {
	SampleRate   int
	Channels     int
	Codec        string // ffmpeg encoder name
	Muxer        string // container format passed to -f
	SampleFormat string // optional output sample format, e.g. s16
	Output       string
}

// AudioArgs builds the ffmpeg arguments for an AudioSpec. The output is
// overwritten (-y) like VideoArgs.
func AudioArgs(s AudioSpec) []string {
	args := []string{
		"-y",
		"-f", "f32le",
		"-ar", strconv.Itoa(s.SampleRate),
		"-ac", strconv.Itoa(s.Channels),
		"-i", "pipe:0",
		"-vn",
		"-c:a", s.Codec,
	}
	if s.SampleFormat != "" {
		args = append(args, "-sample_fmt", s.SampleFormat)
	}
	if s.Muxer != "" {
		args = append(args, "-f", s.Muxer)
	}
	return append(args, s.Output)
}
