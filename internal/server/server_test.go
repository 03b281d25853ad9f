package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/streamrec/internal/config"
	"github.com/audiolibrelab/streamrec/internal/service"
	"github.com/audiolibrelab/streamrec/internal/wrap"
)

type fixture struct {
	handler http.Handler
	wrapper *wrap.Wrapper[any]
	stopped int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Directory = filepath.Join(t.TempDir(), "out")
	cfg.Profile = "default"

	svc := service.New(cfg)
	_, err := svc.PrepareOutput()
	require.NoError(t, err)

	f := &fixture{}
	f.wrapper = svc.StructuredWrapper(wrap.ProducerFunc[any](func() (any, error) {
		return nil, io.EOF
	}))
	t.Cleanup(func() { f.wrapper.Teardown() })

	f.handler = New(svc, f.wrapper, func() { f.stopped++ }).Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "UNINITIALIZED", body["state"])
	assert.Equal(t, "default", body["profile"])
	assert.Equal(t, 0.0, body["sessions"])
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodPost, "/resume")
	assert.Equal(t, "ACTIVE", body["state"])
	assert.Equal(t, "Recording in progress", body["message"])
	assert.NotEmpty(t, body["file"])
	assert.NotEmpty(t, body["session"])

	_, body = f.do(t, http.MethodPost, "/pause")
	assert.Equal(t, "PAUSED", body["state"])
	assert.Nil(t, body["file"], "no file is open while paused")

	_, body = f.do(t, http.MethodPost, "/resume")
	assert.Equal(t, 2.0, body["sessions"])

	_, body = f.do(t, http.MethodGet, "/api/files")
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 2.0, body["count"])
}

func TestResumeAfterTeardown(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.wrapper.Teardown())

	rec, body := f.do(t, http.MethodPost, "/resume")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestStop(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodPost, "/stop")
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 1, f.stopped)
}

func TestFiles_Empty(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodGet, "/api/files")
	assert.Equal(t, []any{}, body["files"])
	assert.Equal(t, 0.0, body["count"])
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		method string
		path   string
		allow  string
	}{
		{http.MethodPost, "/status", http.MethodGet},
		{http.MethodGet, "/pause", http.MethodPost},
		{http.MethodGet, "/resume", http.MethodPost},
		{http.MethodGet, "/stop", http.MethodPost},
		{http.MethodDelete, "/api/files", http.MethodGet},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec, body := f.do(t, tt.method, tt.path)
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			assert.Equal(t, tt.allow, rec.Header().Get("Allow"))
			assert.Equal(t, "Method not allowed", body["error"])
		})
	}
	assert.Zero(t, f.stopped)
}

func TestServe(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Directory = t.TempDir()
	svc := service.New(cfg)
	w := svc.StructuredWrapper(wrap.ProducerFunc[any](func() (any, error) { return nil, io.EOF }))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(svc, w, cancel).Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post("http://"+ln.Addr().String()+"/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down after /stop")
	}
}
