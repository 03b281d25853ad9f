// Package server exposes a running recording over a small HTTP control API:
// status, pause, resume, stop and the list of recordings on disk.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/audiolibrelab/streamrec/internal/service"
	"github.com/audiolibrelab/streamrec/internal/wrap"
)

// Server serves the control API for one recording handle.
type Server struct {
	service *service.Service
	handle  service.Handle
	stop    func()
}

// StatusResponse is returned by GET /status and by the control endpoints.
type StatusResponse struct {
	Success  bool   `json:"success"`
	State    string `json:"state"`
	Message  string `json:"message"`
	Session  string `json:"session,omitempty"`
	Sessions int    `json:"sessions"`
	File     string `json:"file,omitempty"`
	Profile  string `json:"profile"`
}

// FilesResponse is returned by GET /api/files.
type FilesResponse struct {
	Success bool                    `json:"success"`
	Files   []service.RecordingInfo `json:"files"`
	Count   int                     `json:"count"`
}

// New creates a control server. stop is called by POST /stop and should end
// the recording loop, which tears the handle down.
func New(svc *service.Service, handle service.Handle, stop func()) *Server {
	return &Server{
		service: svc,
		handle:  handle,
		stop:    stop,
	}
}

// Handler returns the routes of the control API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/pause", s.handlePause)
	mux.HandleFunc("/resume", s.handleResume)
	mux.HandleFunc("/stop", s.handleStop)
	mux.HandleFunc("/api/files", s.handleFiles)
	return mux
}

// Serve answers requests on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Control API shutdown failed", "error", err)
		}
	}()

	slog.Info("Control API listening", "url", fmt.Sprintf("http://%s", ln.Addr()))
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	s.sendStatus(w)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.handle.Pause(); err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to pause recording: %v", err),
			"operation", "pause")
		return
	}
	slog.Info("Recording paused via control API")
	s.sendStatus(w)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if s.handle.State() == wrap.StateTornDown {
		s.sendErrorResponse(w, http.StatusConflict, "Recording has been stopped", "operation", "resume")
		return
	}
	if err := s.handle.Resume(); err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to resume recording: %v", err),
			"operation", "resume")
		return
	}
	slog.Info("Recording resumed via control API", "file", s.handle.Path())
	s.sendStatus(w)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	slog.Info("Stopping recording via control API")
	s.stop()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "Recording stopping",
	})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	files, err := s.service.ListRecordings()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, err.Error(), "operation", "list_files")
		return
	}
	if files == nil {
		files = []service.RecordingInfo{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(FilesResponse{
		Success: true,
		Files:   files,
		Count:   len(files),
	})
}

func (s *Server) sendStatus(w http.ResponseWriter) {
	state := s.handle.State()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{
		Success:  true,
		State:    string(state),
		Message:  statusMessage(state),
		Session:  s.handle.SessionID(),
		Sessions: s.handle.Sessions(),
		File:     s.handle.Path(),
		Profile:  s.service.Config().Profile,
	})
}

func statusMessage(state wrap.State) string {
	switch state {
	case wrap.StateUninitialized:
		return "Waiting for the first value"
	case wrap.StateActive:
		return "Recording in progress"
	case wrap.StatePaused:
		return "Recording paused"
	case wrap.StateTornDown:
		return "Recording stopped"
	default:
		return ""
	}
}

// allowMethod writes a 405 response and returns false unless r uses method.
func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Allow", method)
	w.WriteHeader(http.StatusMethodNotAllowed)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   "Method not allowed",
	})
	return false
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	logFields = append(logFields, logContext...)
	slog.Error("Sending error response to client", logFields...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}
