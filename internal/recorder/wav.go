package recorder

import (
	"errors"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

// wavWriter writes 16-bit PCM WAV files with go-audio.
type wavWriter struct {
	file   *os.File
	enc    *wav.Encoder
	format *audio.Format
}

func newWAVWriter(path string, params AudioParams) (SampleWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}

	w := &wavWriter{
		file:   f,
		enc:    wav.NewEncoder(f, params.SampleRate, wavBitDepth, params.Channels, 1),
		format: &audio.Format{NumChannels: params.Channels, SampleRate: params.SampleRate},
	}

	// An empty write emits the RIFF header so that a file closed without
	// samples is still a valid WAV.
	if err := w.WriteSamples(nil); err != nil {
		f.Close()
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	return w, nil
}

func (w *wavWriter) WriteSamples(interleaved []float32) error {
	data := make([]int, len(interleaved))
	for i, v := range interleaved {
		data[i] = quantize16(v)
	}
	return w.enc.Write(&audio.IntBuffer{
		Format:         w.format,
		Data:           data,
		SourceBitDepth: wavBitDepth,
	})
}

func (w *wavWriter) Close() error {
	return errors.Join(w.enc.Close(), w.file.Close())
}

// quantize16 maps [-1, 1] onto the int16 range, clipping out-of-range and
// NaN values.
func quantize16(v float32) int {
	if v != v {
		return 0
	}
	f := math.Max(-1, math.Min(1, float64(v)))
	return int(math.Round(f * math.MaxInt16))
}
