package recorder

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/audiolibrelab/streamrec/internal/ffmpeg"
)

// VideoParams fixes the shape of every frame a VideoRecorder accepts.
type VideoParams struct {
	FPS      float64 `mapstructure:"fps" yaml:"fps"`
	Height   int     `mapstructure:"height" yaml:"height"`
	Width    int     `mapstructure:"width" yaml:"width"`
	Channels int     `mapstructure:"channels" yaml:"channels"`
}

// Validate checks the parameters independently of any file.
func (p VideoParams) Validate() error {
	switch {
	case p.FPS <= 0:
		return configErrorf("fps", "must be > 0, got %v", p.FPS)
	case p.Height <= 0:
		return configErrorf("height", "must be > 0, got %d", p.Height)
	case p.Width <= 0:
		return configErrorf("width", "must be > 0, got %d", p.Width)
	case p.Channels != 1 && p.Channels != 3 && p.Channels != 4:
		return configErrorf("channels", "must be 1 (gray), 3 (RGB) or 4 (RGBA), got %d", p.Channels)
	}
	return nil
}

// VideoCodec is the codec selected by a video file extension.
type VideoCodec struct {
	FourCC   string // mp4v, XVID, X264
	Encoder  string // ffmpeg encoder
	Tag      string // FourCC written to the container, if any
	EvenSize bool   // encoder rejects odd heights and widths in yuv420p
}

var videoCodecs = map[string]VideoCodec{
	".mp4": {FourCC: "mp4v", Encoder: "mpeg4", Tag: "mp4v"},
	".avi": {FourCC: "XVID", Encoder: "mpeg4", Tag: "xvid"},
	".mov": {FourCC: "mp4v", Encoder: "mpeg4", Tag: "mp4v"},
	".mkv": {FourCC: "X264", Encoder: "libx264", EvenSize: true},
}

// VideoCodecFor returns the codec for path's extension.
func VideoCodecFor(path string) (VideoCodec, error) {
	ext := strings.ToLower(filepath.Ext(path))
	c, ok := videoCodecs[ext]
	if !ok {
		return VideoCodec{}, configErrorf("extension", "video format %q is not supported", strings.TrimPrefix(ext, "."))
	}
	return c, nil
}

// VideoExtensions lists supported video extensions in sorted order.
func VideoExtensions() []string {
	exts := make([]string, 0, len(videoCodecs))
	for ext := range videoCodecs {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// FrameWriter is the container writer behind a VideoRecorder. WriteFrame
// receives exactly one frame of row-major interleaved pixels.
type FrameWriter interface {
	WriteFrame(pix []byte) error
	Close() error
}

// FrameWriterFunc opens a FrameWriter for a new file.
type FrameWriterFunc func(path string, codec VideoCodec, params VideoParams) (FrameWriter, error)

// VideoRecorder appends frames to a video container.
type VideoRecorder struct {
	state
	params VideoParams
	codec  VideoCodec
	writer FrameWriter
	frames int
}

// NewVideoRecorder opens a video file at path. The codec follows the
// extension; see VideoCodecFor.
func NewVideoRecorder(path string, params VideoParams, opts ...Option) (*VideoRecorder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	codec, err := VideoCodecFor(path)
	if err != nil {
		return nil, err
	}
	if codec.EvenSize && (params.Height%2 != 0 || params.Width%2 != 0) {
		return nil, configErrorf("size", "%s needs even height and width, got %dx%d", codec.Encoder, params.Width, params.Height)
	}

	o := newOptions(opts)
	open := o.frameWriter
	if open == nil {
		open = ffmpegFrameWriter(o.ffmpeg)
	}

	w, err := open(path, codec, params)
	if err != nil {
		return nil, err
	}

	slog.Debug("Video recorder opened", "path", path, "codec", codec.FourCC,
		"size", fmt.Sprintf("%dx%d", params.Width, params.Height), "channels", params.Channels, "fps", params.FPS)

	return &VideoRecorder{
		state:  state{path: path},
		params: params,
		codec:  codec,
		writer: w,
	}, nil
}

// Params returns the format parameters the recorder was opened with.
func (r *VideoRecorder) Params() VideoParams {
	return r.params
}

// Codec returns the codec chosen from the file extension.
func (r *VideoRecorder) Codec() VideoCodec {
	return r.codec
}

// Frames returns the number of frames written so far.
func (r *VideoRecorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Write appends one frame shaped (height, width, channels).
func (r *VideoRecorder) Write(frame Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if err := r.validate(frame); err != nil {
		return err
	}
	if err := r.writer.WriteFrame(frame.Data); err != nil {
		return &IOError{Op: "write", Path: r.path, Err: err}
	}
	r.frames++
	return nil
}

func (r *VideoRecorder) validate(frame Frame) error {
	if frame.Rank() != 3 {
		return validationErrorf(KindDimension, "expected 3D array (height, width, channels), got %dD", frame.Rank())
	}
	if err := frame.check(); err != nil {
		return err
	}
	if frame.Shape[2] != r.params.Channels {
		return validationErrorf(KindChannels, "expected %d channels, got frame with shape %v", r.params.Channels, frame.Shape)
	}
	if frame.Shape[0] != r.params.Height || frame.Shape[1] != r.params.Width {
		return validationErrorf(KindDimension, "expected frame shape [%d %d %d], got %v",
			r.params.Height, r.params.Width, r.params.Channels, frame.Shape)
	}
	return nil
}

// Close finalises the container. Closing twice is a no-op.
func (r *VideoRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	slog.Debug("Video recorder closed", "path", r.path, "frames", r.frames)

	if err := r.writer.Close(); err != nil {
		return &IOError{Op: "close", Path: r.path, Err: err}
	}
	return nil
}

var pixelFormats = map[int]string{1: "gray", 3: "rgb24", 4: "rgba"}

// ffmpegFrameWriter is the default FrameWriterFunc.
func ffmpegFrameWriter(opts ffmpeg.Options) FrameWriterFunc {
	return func(path string, codec VideoCodec, params VideoParams) (FrameWriter, error) {
		release, err := reserveTarget(path)
		if err != nil {
			return nil, err
		}
		enc, err := ffmpeg.Start(opts, ffmpeg.VideoArgs(ffmpeg.VideoSpec{
			Width:       params.Width,
			Height:      params.Height,
			FPS:         params.FPS,
			PixelFormat: pixelFormats[params.Channels],
			Codec:       codec.Encoder,
			Tag:         codec.Tag,
			Output:      path,
		}))
		if err != nil {
			release()
			return nil, &IOError{Op: "open", Path: path, Err: err}
		}
		return encoderFrames{enc}, nil
	}
}

type encoderFrames struct {
	enc *ffmpeg.Encoder
}

func (e encoderFrames) WriteFrame(pix []byte) error {
	_, err := e.enc.Write(pix)
	return err
}

func (e encoderFrames) Close() error {
	return e.enc.Close()
}
