package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/harun/nava/internal/logger"
	"github.com/harun/nava/internal/tracing"
	"github.com/harun/nava/pkg/agent"
	"github.com/harun/nava/pkg/routing"
	"github.com/harun/nava/pkg/session"
	"github.com/harun/nava/pkg/workspace"
)

type promptRequest struct {
	Prompt      string `json:"prompt"`
	Intent      string `json:"intent,omitempty"`
	UseFallback *bool  `json:"use_fallback,omitempty"`
}

type errorResponse struct {
	Error  string         `json:"error"`
	Intent routing.Intent `json:"intent,omitempty"`
}

// handleGenerate upgrades to a websocket and runs one bridged agent session.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown.Load() {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	rt, err := s.cfg.Handle.Acquire()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	s.inFlight.Add(1)
	defer s.inFlight.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	bridge, err := session.NewBridge(conn, session.BridgeConfig{
		Factory: rt.Factory,
		Logger:  tracing.LoggerFromContext(r.Context(), s.logger),
		Output:  s.cfg.BridgeOutput,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create session bridge")
		_ = conn.Close()
		return
	}

	s.logger.Info().Str("session_id", bridge.ID()).Str("remote", r.RemoteAddr).Msg("Client connected")
	s.sessions.add(bridge.ID(), r.RemoteAddr, conn)
	defer s.sessions.remove(bridge.ID())

	// The bridge has already reported any failure to the client.
	if err := bridge.Serve(r.Context()); err != nil {
		s.logger.Debug().Err(err).Str("session_id", bridge.ID()).Msg("Session ended with error")
	}
}

// handlePrompt dispatches one prompt and answers with JSON on every path.
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPromptBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	opts, err := dispatchOptions(req.Intent, req.UseFallback)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.cfg.Gateway.Dispatch(r.Context(), req.Prompt, opts)
	if err != nil {
		status, body := s.dispatchFailure(r, resp, err)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePromptStream streams a dispatch as server-sent events: chunk events
// while the agent runs, then done with the response or error.
func (s *Server) handlePromptStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prompt := q.Get("prompt")
	if strings.TrimSpace(prompt) == "" {
		writeError(w, http.StatusBadRequest, "Prompt cannot be empty.")
		return
	}

	var useFallback *bool
	if v := q.Get("use_fallback"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid use_fallback value")
			return
		}
		useFallback = &b
	}
	opts, err := dispatchOptions(q.Get("intent"), useFallback)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.cfg.Handle.Acquire(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	resp, err := s.cfg.Gateway.Stream(r.Context(), prompt, opts, func(chunk string) error {
		if err := writeSSEEvent(w, "chunk", map[string]string{"text": chunk}); err != nil {
			return err
		}
		flusher.Flush()
		return r.Context().Err()
	})
	if err != nil {
		_, body := s.dispatchFailure(r, resp, err)
		_ = writeSSEEvent(w, "error", body)
	} else {
		_ = writeSSEEvent(w, "done", resp)
	}
	flusher.Flush()
}

func (s *Server) dispatchFailure(r *http.Request, resp *routing.Response, err error) (int, errorResponse) {
	body := errorResponse{Error: logger.RedactString(err.Error())}
	if resp != nil {
		body.Intent = resp.Intent
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, routing.ErrEmptyPrompt):
		status = http.StatusBadRequest
	case errors.Is(err, agent.ErrNotReady):
		status = http.StatusServiceUnavailable
	default:
		log := tracing.LoggerFromContext(r.Context(), s.logger)
		log.Error().Err(err).Msg("Prompt dispatch failed")
	}
	return status, body
}

func dispatchOptions(intent string, useFallback *bool) (routing.DispatchOptions, error) {
	var opts routing.DispatchOptions
	if intent != "" {
		in, err := routing.ParseIntent(intent)
		if err != nil {
			return opts, err
		}
		opts.Intent = in
	}
	opts.NoFallback = useFallback != nil && !*useFallback
	return opts, nil
}

func (s *Server) handleListFiles(w http.ResponseWriter, _ *http.Request) {
	files, err := s.cfg.Workspace.List()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list workspace")
		writeError(w, http.StatusInternalServerError, "failed to list files")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"files": files})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	f, err := s.cfg.Workspace.Open(name)
	switch {
	case errors.Is(err, workspace.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	case errors.Is(err, workspace.ErrNotFound):
		writeError(w, http.StatusNotFound, "File not found")
		return
	case err != nil:
		s.logger.Error().Err(err).Str("file", name).Msg("Failed to open workspace file")
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, err := s.cfg.Handle.Acquire()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"ready":    err == nil,
		"sessions": s.sessions.count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeSSEEvent writes one event with a JSON data line.
func writeSSEEvent(w http.ResponseWriter, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
