package source

import (
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/streamrec/internal/recorder"
	"github.com/audiolibrelab/streamrec/internal/wrap"
)

func drain[T any](t *testing.T, p wrap.Producer[T]) []T {
	t.Helper()
	var out []T
	for {
		v, err := p.Read()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, v)
	}
}

func TestLines(t *testing.T) {
	got := drain[string](t, NewLines(strings.NewReader("one\ntwo\r\n\nthree")))
	assert.Equal(t, []string{"one", "two", "", "three"}, got)
}

func TestLines_TooLong(t *testing.T) {
	l := NewLines(strings.NewReader(strings.Repeat("x", 2*1024*1024)))
	_, err := l.Read()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestJSONValues(t *testing.T) {
	in := `{"a": 1}
[1, 2]
plain text
42
"quoted"`

	got := drain(t, JSONValues(strings.NewReader(in)))
	require.Len(t, got, 5)
	assert.Equal(t, map[string]any{"a": 1.0}, got[0])
	assert.Equal(t, []any{1.0, 2.0}, got[1])
	assert.Equal(t, "plain text", got[2])
	assert.Equal(t, 42.0, got[3])
	assert.Equal(t, "quoted", got[4])
}

func TestCSVRows(t *testing.T) {
	got := drain(t, CSVRows(strings.NewReader("1, 2\n\"a,b\",c,d\n")))
	assert.Equal(t, [][]any{{"1", "2"}, {"a,b", "c", "d"}}, got)
}

func TestMap_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	p := Map[string, int](NewLines(strings.NewReader("a\nb\n")), func(s string) (int, error) {
		if s == "b" {
			return 0, boom
		}
		return len(s), nil
	})

	v, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = p.Read()
	assert.ErrorIs(t, err, boom)

	_, err = p.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTone_Blocks(t *testing.T) {
	params := recorder.AudioParams{SampleRate: 8000, Channels: 2}
	tone := NewTone(context.Background(), 1000, params, 100*time.Millisecond, false)

	s, err := tone.Read()
	require.NoError(t, err)
	assert.Equal(t, []int{800, 2}, s.Shape)
	assert.Len(t, s.Data, 1600)

	for i := 0; i < len(s.Data); i += 2 {
		require.Equal(t, s.Data[i], s.Data[i+1], "channels carry the same signal")
		require.LessOrEqual(t, math.Abs(float64(s.Data[i])), 0.5)
	}
	// 1 kHz at 8 kHz: sample 2 is a quarter period in.
	assert.InDelta(t, 0.5, s.Data[4], 1e-6)

	next, err := tone.Read()
	require.NoError(t, err)
	assert.InDelta(t, 0, next.Data[0], 1e-4, "phase continues across blocks")
}

func TestTone_Mono(t *testing.T) {
	tone := NewTone(context.Background(), 440, recorder.AudioParams{SampleRate: 16000, Channels: 1}, 10*time.Millisecond, false)

	s, err := tone.Read()
	require.NoError(t, err)
	assert.Equal(t, []int{160}, s.Shape)
}

func TestTone_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tone := NewTone(ctx, 440, recorder.AudioParams{SampleRate: 8000, Channels: 1}, 50*time.Millisecond, true)

	_, err := tone.Read()
	require.NoError(t, err)
	cancel()

	_, err = tone.Read()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTone_Realtime(t *testing.T) {
	tone := NewTone(context.Background(), 440, recorder.AudioParams{SampleRate: 8000, Channels: 1}, 20*time.Millisecond, true)

	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := tone.Read()
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestPattern(t *testing.T) {
	for _, channels := range []int{1, 3, 4} {
		params := recorder.VideoParams{FPS: 30, Height: 24, Width: 32, Channels: channels}
		p := NewPattern(context.Background(), params, false)

		first, err := p.Read()
		require.NoError(t, err)
		assert.Equal(t, []int{24, 32, channels}, first.Shape)
		assert.Len(t, first.Data, 24*32*channels)

		second, err := p.Read()
		require.NoError(t, err)
		assert.NotEqual(t, first.Data, second.Data, "block moves between frames")
		assert.Equal(t, 2, p.Frames())
	}
}

func TestPattern_FramesFitRecorder(t *testing.T) {
	params := recorder.VideoParams{FPS: 10, Height: 16, Width: 16, Channels: 3}
	p := NewPattern(context.Background(), params, false)

	var got [][]byte
	r, err := recorder.NewVideoRecorder(filepath.Join(t.TempDir(), "p.mp4"), params, recorder.WithFrameWriter(
		func(string, recorder.VideoCodec, recorder.VideoParams) (recorder.FrameWriter, error) {
			return frameSink{&got}, nil
		}))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		f, err := p.Read()
		require.NoError(t, err)
		require.NoError(t, r.Write(f))
	}
	require.NoError(t, r.Close())
	assert.Len(t, got, 3)
}

type frameSink struct {
	frames *[][]byte
}

func (s frameSink) WriteFrame(pix []byte) error {
	*s.frames = append(*s.frames, append([]byte(nil), pix...))
	return nil
}

func (s frameSink) Close() error { return nil }
