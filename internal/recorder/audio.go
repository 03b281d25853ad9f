package recorder

import (
	"encoding/binary"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/audiolibrelab/streamrec/internal/ffmpeg"
)

// AudioParams fixes the sample rate and channel count of an audio file.
type AudioParams struct {
	SampleRate int `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels   int `mapstructure:"channels" yaml:"channels"`
}

// Validate checks the parameters independently of any file.
func (p AudioParams) Validate() error {
	if p.SampleRate <= 0 {
		return configErrorf("sample_rate", "must be > 0, got %d", p.SampleRate)
	}
	if p.Channels <= 0 {
		return configErrorf("channels", "must be > 0, got %d", p.Channels)
	}
	return nil
}

// AudioFormat is the container and subtype selected by an audio file
// extension, plus the ffmpeg settings that produce it.
type AudioFormat struct {
	Format       string
	Subtype      string
	Codec        string
	Muxer        string
	SampleFormat string
}

var audioFormats = map[string]AudioFormat{
	".wav":  {Format: "WAV", Subtype: "PCM_16", Codec: "pcm_s16le", Muxer: "wav"},
	".flac": {Format: "FLAC", Subtype: "PCM_16", Codec: "flac", Muxer: "flac", SampleFormat: "s16"},
	".ogg":  {Format: "OGG", Subtype: "VORBIS", Codec: "libvorbis", Muxer: "ogg"},
	".opus": {Format: "OGG", Subtype: "OPUS", Codec: "libopus", Muxer: "ogg"},
	".mp3":  {Format: "MP3", Subtype: "MPEG_LAYER_III", Codec: "libmp3lame", Muxer: "mp3"},
	".m4a":  {Format: "M4A", Subtype: "ALAC_16", Codec: "alac", Muxer: "ipod", SampleFormat: "s16p"},
	".mov":  {Format: "MOV", Subtype: "ALAC_16", Codec: "alac", Muxer: "mov", SampleFormat: "s16p"},
	".alac": {Format: "CAF", Subtype: "ALAC_16", Codec: "alac", Muxer: "caf", SampleFormat: "s16p"},
}

// AudioFormatFor returns the audio format for path's extension.
func AudioFormatFor(path string) (AudioFormat, error) {
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := audioFormats[ext]
	if !ok {
		return AudioFormat{}, configErrorf("extension", "audio format %q is not supported or recognized", strings.TrimPrefix(ext, "."))
	}
	return f, nil
}

// AudioExtensions lists supported audio extensions in sorted order.
func AudioExtensions() []string {
	exts := make([]string, 0, len(audioFormats))
	for ext := range audioFormats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// SampleWriter is the container writer behind an AudioRecorder. It
// receives interleaved samples and handles quantisation.
type SampleWriter interface {
	WriteSamples(interleaved []float32) error
	Close() error
}

// SampleWriterFunc opens a SampleWriter for a new file.
type SampleWriterFunc func(path string, format AudioFormat, params AudioParams) (SampleWriter, error)

// AudioRecorder appends sample blocks to an audio file.
type AudioRecorder struct {
	state
	params AudioParams
	format AudioFormat
	writer SampleWriter
	frames int
}

// NewAudioRecorder opens an audio file at path. WAV is written natively;
// the other formats are encoded by ffmpeg.
func NewAudioRecorder(path string, params AudioParams, opts ...Option) (*AudioRecorder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	format, err := AudioFormatFor(path)
	if err != nil {
		return nil, err
	}

	o := newOptions(opts)
	open := o.sampleWriter
	if open == nil {
		open = defaultSampleWriter(o.ffmpeg)
	}

	w, err := open(path, format, params)
	if err != nil {
		return nil, err
	}

	slog.Debug("Audio recorder opened", "path", path, "format", format.Format, "subtype", format.Subtype,
		"sample_rate", params.SampleRate, "channels", params.Channels)

	return &AudioRecorder{
		state:  state{path: path},
		params: params,
		format: format,
		writer: w,
	}, nil
}

// Params returns the format parameters the recorder was opened with.
func (r *AudioRecorder) Params() AudioParams {
	return r.params
}

// Format returns the format chosen from the file extension.
func (r *AudioRecorder) Format() AudioFormat {
	return r.format
}

// Frames returns the number of sample frames (samples per channel)
// written so far.
func (r *AudioRecorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Write appends a block shaped (n) for mono recorders or (n, channels).
func (r *AudioRecorder) Write(samples Samples) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	switch samples.Rank() {
	case 1:
		if r.params.Channels != 1 {
			return validationErrorf(KindChannels, "expected %d channels, but got mono data with shape %v", r.params.Channels, samples.Shape)
		}
	case 2:
		if samples.Shape[1] != r.params.Channels {
			return validationErrorf(KindChannels, "expected %d channels, got data with shape %v", r.params.Channels, samples.Shape)
		}
	default:
		return validationErrorf(KindDimension, "expected 1D or 2D array, got %dD", samples.Rank())
	}
	if err := samples.check(); err != nil {
		return err
	}

	if err := r.writer.WriteSamples(samples.Data); err != nil {
		return &IOError{Op: "write", Path: r.path, Err: err}
	}
	r.frames += samples.Shape[0]
	return nil
}

// Close finalises the file. Closing twice is a no-op.
func (r *AudioRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	slog.Debug("Audio recorder closed", "path", r.path, "frames", r.frames)

	if err := r.writer.Close(); err != nil {
		return &IOError{Op: "close", Path: r.path, Err: err}
	}
	return nil
}

func defaultSampleWriter(opts ffmpeg.Options) SampleWriterFunc {
	return func(path string, format AudioFormat, params AudioParams) (SampleWriter, error) {
		if format.Format == "WAV" {
			return newWAVWriter(path, params)
		}

		release, err := reserveTarget(path)
		if err != nil {
			return nil, err
		}
		enc, err := ffmpeg.Start(opts, ffmpeg.AudioArgs(ffmpeg.AudioSpec{
			SampleRate:   params.SampleRate,
			Channels:     params.Channels,
			Codec:        format.Codec,
			Muxer:        format.Muxer,
			SampleFormat: format.SampleFormat,
			Output:       path,
		}))
		if err != nil {
			release()
			return nil, &IOError{Op: "open", Path: path, Err: err}
		}
		return &encoderSamples{enc: enc}, nil
	}
}

// encoderSamples feeds float32 little-endian PCM to ffmpeg.
type encoderSamples struct {
	enc *ffmpeg.Encoder
	buf []byte
}

func (e *encoderSamples) WriteSamples(interleaved []float32) error {
	n := len(interleaved) * 4
	if cap(e.buf) < n {
		e.buf = make([]byte, n)
	}
	buf := e.buf[:n]
	for i, v := range interleaved {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	_, err := e.enc.Write(buf)
	return err
}

func (e *encoderSamples) Close() error {
	return e.enc.Close()
}
