package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/leapstack-labs/chatbatch/internal/engine"
	"github.com/leapstack-labs/chatbatch/internal/export"
	"github.com/leapstack-labs/chatbatch/pkg/core"
)

// maxRequestBody bounds the JSON body of a run request.
const maxRequestBody = 1 << 20

// errBusy is returned while another run is executing.
var errBusy = errors.New("a run is already in progress")

// runRequest is the optional body of POST /api/run. Override may be given
// as a JSON object or as a string holding one.
type runRequest struct {
	UsersFile   string          `json:"users_file"`
	PromptsFile string          `json:"prompts_file"`
	Override    json.RawMessage `json:"override"`
}

// runResponse is the reply of POST /api/run.
type runResponse struct {
	OK bool `json:"ok"`
	*core.RunSummary
	Error string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "busy": s.busy.Load()})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	cfg, err := s.snapshot()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, runResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cfg.Redacted())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, runResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	override, err := overrideString(body.Override)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, runResponse{Error: err.Error()})
		return
	}

	if !s.busy.CompareAndSwap(false, true) {
		writeJSON(w, http.StatusConflict, runResponse{Error: errBusy.Error()})
		return
	}
	defer s.busy.Store(false)

	cfg, err := s.snapshot()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, runResponse{Error: err.Error()})
		return
	}

	log := s.logger.With("request_id", middleware.GetReqID(r.Context()))
	log.Info("run requested", "users_file", body.UsersFile, "prompts_file", body.PromptsFile)

	summary, err := s.runner.Run(s.ctx, cfg, engine.Request{
		UsersFile:   resolvePath(body.UsersFile, cfg.ProjectRoot),
		PromptsFile: resolvePath(body.PromptsFile, cfg.ProjectRoot),
		Override:    override,
	})
	if err != nil {
		status := http.StatusBadRequest
		var eerr *export.Error
		if errors.As(err, &eerr) {
			status = http.StatusInternalServerError
		}
		log.Error("run failed", "error", err)
		writeJSON(w, status, runResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, runResponse{OK: true, RunSummary: summary})
}

// overrideString accepts an override as a JSON object or a JSON string.
func overrideString(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid override: %w", err)
		}
		return s, nil
	}
	return trimmed, nil
}

func resolvePath(p, root string) string {
	if p == "" || filepath.IsAbs(p) || root == "" {
		return p
	}
	return filepath.Join(root, p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
