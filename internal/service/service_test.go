package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/streamrec/internal/config"
	"github.com/audiolibrelab/streamrec/internal/recorder"
	"github.com/audiolibrelab/streamrec/internal/wrap"
)

func testService(t *testing.T) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Directory = filepath.Join(t.TempDir(), "out")
	cfg.Tabular = recorder.TabularParams{Headers: []string{"a", "b"}, TimestampHeader: "t"}
	return New(cfg)
}

// values yields vs in order, then io.EOF.
func values[T any](vs ...T) wrap.Producer[T] {
	i := 0
	return wrap.ProducerFunc[T](func() (T, error) {
		var zero T
		if i >= len(vs) {
			return zero, io.EOF
		}
		i++
		return vs[i-1], nil
	})
}

func TestPrepareOutput(t *testing.T) {
	s := testService(t)

	dir, err := s.PrepareOutput()
	require.NoError(t, err)
	assert.DirExists(t, dir)

	_, err = s.PrepareOutput()
	assert.NoError(t, err, "existing directory is fine")
}

func TestFactoriesUseProfile(t *testing.T) {
	s := testService(t)
	s.Config().Video.Extension = "mkv"
	s.Config().Audio.Extension = "flac"

	assert.Equal(t, s.Config().Output.Directory, s.VideoFactory().Dir)
	assert.Equal(t, "mkv", s.VideoFactory().Ext)
	assert.Equal(t, "flac", s.AudioFactory().Ext)
	assert.Equal(t, "csv", s.TabularFactory().Ext)
	assert.Equal(t, "jsonl", s.StructuredFactory().Ext)
}

func TestTabularWrapper_Run(t *testing.T) {
	s := testService(t)
	_, err := s.PrepareOutput()
	require.NoError(t, err)

	w := s.TabularWrapper(values([]any{1, 2}, []any{3}, []any{5, 6}))
	var seen [][]any
	n, err := Run(context.Background(), w, func(row []any) { seen = append(seen, row) })
	require.NoError(t, err)
	require.NoError(t, w.Teardown())

	assert.Equal(t, 3, n, "rejected rows still pass through")
	assert.Len(t, seen, 3)

	recs, err := s.ListRecordings()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "tabular", recs[0].Format)

	data, err := os.ReadFile(recs[0].Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "t,a,b", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], ",1,2"))
	assert.True(t, strings.HasSuffix(lines[2], ",5,6"))
}

func TestStructuredWrapper_PauseResume(t *testing.T) {
	s := testService(t)
	_, err := s.PrepareOutput()
	require.NoError(t, err)

	w := s.StructuredWrapper(values[any]("a", "b", "c"))
	var h Handle = w

	require.NoError(t, h.Resume())
	_, err = w.Read()
	require.NoError(t, err)
	require.NoError(t, h.Pause())
	require.NoError(t, h.Resume())
	_, err = w.Read()
	require.NoError(t, err)
	require.NoError(t, h.Teardown())

	assert.Equal(t, wrap.StateTornDown, h.State())
	assert.Equal(t, 2, h.Sessions())

	recs, err := s.ListRecordings()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Greater(t, recs[0].Name, recs[1].Name, "newest first")

	var env recorder.Envelope
	data, err := os.ReadFile(recs[0].Path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "b", env.Data)
}

func TestRun_StopsOnError(t *testing.T) {
	s := testService(t)
	_, err := s.PrepareOutput()
	require.NoError(t, err)

	boom := errors.New("device lost")
	calls := 0
	w := s.StructuredWrapper(wrap.ProducerFunc[any](func() (any, error) {
		calls++
		if calls == 3 {
			return nil, boom
		}
		return calls, nil
	}))

	n, err := Run(context.Background(), w, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, n)
	assert.NoError(t, w.Teardown())
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := testService(t)
	_, err := s.PrepareOutput()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w := s.StructuredWrapper(wrap.ProducerFunc[any](func() (any, error) { return 1, nil }))

	n, err := Run(ctx, w, func(any) { cancel() })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, w.Teardown())
}

func TestRun_MissingDirectory(t *testing.T) {
	s := testService(t)

	w := s.StructuredWrapper(values[any](1))
	_, err := Run(context.Background(), w, nil)

	var ioErr *recorder.IOError
	assert.ErrorAs(t, err, &ioErr)
}

func TestListRecordings_SkipsForeignFiles(t *testing.T) {
	s := testService(t)
	dir, err := s.PrepareOutput()
	require.NoError(t, err)

	for _, name := range []string{"a.wav", "b.mp4", "c.jsonl", "d.csv", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), make([]byte, 2048), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755))

	recs, err := s.ListRecordings()
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, "d.csv", recs[0].Name)
	assert.Equal(t, "2.0 KB", recs[0].SizeHuman)
}

func TestFormatOf(t *testing.T) {
	tests := map[string]string{
		"x.mp4":   "video",
		"x.MKV":   "video",
		"x.mov":   "video",
		"x.flac":  "audio",
		"x.wav":   "audio",
		"x.csv":   "tabular",
		"x.jsonl": "structured",
		"x.txt":   "",
		"x":       "",
	}
	for name, want := range tests {
		assert.Equal(t, want, FormatOf(name), name)
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "1.0 MB", formatBytes(1<<20))
}
