package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"testctl/internal/environment"
	"testctl/internal/nodeid"
	"testctl/internal/orchestrator"
	"testctl/internal/resulttree"
	"testctl/internal/scheduler"
	"testctl/pkg/logging"
)

type nodeRequest struct {
	NodeID string `json:"nodeid"`
}

type runResponse struct {
	RunID  string `json:"run_id"`
	NodeID string `json:"nodeid"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps command failures onto HTTP status codes. Precondition
// violations are the caller's fault; anything else is ours.
func statusFor(err error) int {
	switch {
	case errors.Is(err, resulttree.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, nodeid.ErrMalformed),
		errors.Is(err, resulttree.ErrNotBranch),
		errors.Is(err, environment.ErrNoEnvironment):
		return http.StatusBadRequest
	case errors.Is(err, environment.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrNotStarted),
		errors.Is(err, scheduler.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Server", "Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Error("Server", err, "Request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeNodeRequest(w http.ResponseWriter, r *http.Request) (nodeRequest, bool) {
	var req nodeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return req, false
	}
	return req, true
}

func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.backend.GetTree(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.backend.GetNode(r.Context(), r.URL.Query().Get("nodeid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeNodeRequest(w, r)
	if !ok {
		return
	}
	runID, err := s.backend.RunTests(r.Context(), req.NodeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runResponse{RunID: runID, NodeID: req.NodeID})
}

func (s *Server) handleStartEnvironment(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeNodeRequest(w, r)
	if !ok {
		return
	}
	if err := s.backend.StartEnvironment(r.Context(), req.NodeID); err != nil {
		writeError(w, err)
		return
	}
	s.writeNode(w, r, req.NodeID)
}

func (s *Server) handleStopEnvironment(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeNodeRequest(w, r)
	if !ok {
		return
	}
	if err := s.backend.StopEnvironment(r.Context(), req.NodeID); err != nil {
		writeError(w, err)
		return
	}
	s.writeNode(w, r, req.NodeID)
}

func (s *Server) writeNode(w http.ResponseWriter, r *http.Request, id string) {
	node, err := s.backend.GetNode(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}
