package source

import (
	"context"
	"math"
	"time"

	"github.com/audiolibrelab/streamrec/internal/recorder"
)

// Tone generates a sine wave in fixed-size blocks.
type Tone struct {
	Frequency  float64
	Amplitude  float32
	SampleRate int
	Channels   int
	BlockSize  int

	pace  *pacer
	phase float64
}

// NewTone returns a tone producer. With realtime set, Read paces blocks to
// the wall clock; otherwise blocks are produced as fast as they are read.
// Read returns the context error once ctx is done.
func NewTone(ctx context.Context, frequency float64, params recorder.AudioParams, block time.Duration, realtime bool) *Tone {
	size := int(float64(params.SampleRate) * block.Seconds())
	if size < 1 {
		size = 1
	}
	period := time.Duration(0)
	if realtime {
		period = block
	}
	return &Tone{
		Frequency:  frequency,
		Amplitude:  0.5,
		SampleRate: params.SampleRate,
		Channels:   params.Channels,
		BlockSize:  size,
		pace:       newPacer(ctx, period),
	}
}

func (t *Tone) Read() (recorder.Samples, error) {
	if err := t.pace.wait(); err != nil {
		return recorder.Samples{}, err
	}

	step := 2 * math.Pi * t.Frequency / float64(t.SampleRate)
	data := make([]float32, 0, t.BlockSize*t.Channels)
	for i := 0; i < t.BlockSize; i++ {
		v := t.Amplitude * float32(math.Sin(t.phase))
		for c := 0; c < t.Channels; c++ {
			data = append(data, v)
		}
		t.phase = math.Mod(t.phase+step, 2*math.Pi)
	}

	if t.Channels == 1 {
		return recorder.Mono(data), nil
	}
	return recorder.Interleaved(data, t.Channels), nil
}
