package recorder

import (
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeFrames records frames in memory in place of ffmpeg.
type fakeFrames struct {
	path   string
	codec  VideoCodec
	frames [][]byte
	closes int
	err    error
}

func (f *fakeFrames) WriteFrame(pix []byte) error {
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, slices.Clone(pix))
	return nil
}

func (f *fakeFrames) Close() error {
	f.closes++
	return nil
}

func withFakeFrames(f *fakeFrames) Option {
	return WithFrameWriter(func(path string, codec VideoCodec, _ VideoParams) (FrameWriter, error) {
		f.path, f.codec = path, codec
		return f, nil
	})
}

// fakeSamples records samples in memory in place of a codec.
type fakeSamples struct {
	format  AudioFormat
	samples []float32
	writes  int
	closes  int
}

func (f *fakeSamples) WriteSamples(interleaved []float32) error {
	f.samples = append(f.samples, interleaved...)
	f.writes++
	return nil
}

func (f *fakeSamples) Close() error {
	f.closes++
	return nil
}

func withFakeSamples(f *fakeSamples) Option {
	return WithSampleWriter(func(_ string, format AudioFormat, _ AudioParams) (SampleWriter, error) {
		f.format = format
		return f, nil
	})
}

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func requireFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, filepath.Join(dir, e.Name()))
	}
	return names
}
