package apiserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/klubi/stratus/internal/dirsummary"
	"github.com/klubi/stratus/internal/host"
	"github.com/klubi/stratus/internal/schema"
	"github.com/klubi/stratus/internal/store"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// writeJSON serialises data as JSON and writes it to the response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// writeError writes a JSON error envelope to the response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeLookupError maps registry and store misses to 404.
func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, host.ErrNotFound) || errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

// writeToolError maps input and sandbox errors to 400 and keeps the
// sandbox code machine-readable.
func (s *Server) writeToolError(w http.ResponseWriter, err error) {
	var perr *dirsummary.PathError
	switch {
	case errors.As(err, &perr):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": perr.Message, "code": perr.Code})
	case errors.Is(err, schema.ErrInvalid):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// requireStore answers 503 when runs are not persisted.
func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run persistence is disabled")
		return false
	}
	return true
}

// decodeBody decodes a JSON body into v; an empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"workflows": len(s.host.Workflows()),
		"agents":    len(s.host.Agents()),
	})
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.host.DescribeWorkflows())
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.host.Workflow(mux.Vars(r)["key"])
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wf.Describe())
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.host.DescribeAgents())
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	a, err := s.host.Agent(key)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a.Info(key))
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.host.DescribeTools())
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	t, err := s.host.Tool(mux.Vars(r)["id"])
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t.Info())
}
