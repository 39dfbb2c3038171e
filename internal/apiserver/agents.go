package apiserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/klubi/stratus/internal/agent"
	"github.com/klubi/stratus/internal/evals"
	"github.com/klubi/stratus/internal/store"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	a, err := s.host.Agent(key)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}

	var req v1alpha1.GenerateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	resp, err := a.Generate(r.Context(), req.Prompt)
	if err != nil && !errors.Is(err, agent.ErrMaxSteps) {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	out := resp.APIResponse(key)
	if err != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"error": err.Error(), "partial": out})
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	a, err := s.host.Agent(mux.Vars(r)["key"])
	if err != nil {
		s.writeLookupError(w, err)
		return
	}

	var req v1alpha1.EvalRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Input == "" {
		s.writeError(w, http.StatusBadRequest, "input is required")
		return
	}
	metric, err := evals.NewMetric(req.Metric)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := evals.Evaluate(r.Context(), a, req.Input, metric)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, v1alpha1.EvalResultStatus{Score: res.Score, Info: res.Info})
}

// handleListEvals lists stored eval results; ?agent= narrows by agent name.
func (s *Server) handleListEvals(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	prefix := store.KindPrefix(v1alpha1.KindEvalResult, evals.Slug(r.URL.Query().Get("agent")))
	items, err := s.store.List(prefix, func() interface{} { return &v1alpha1.EvalResult{} })
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	results := make([]*v1alpha1.EvalResult, 0, len(items))
	for _, item := range items {
		results = append(results, item.(*v1alpha1.EvalResult))
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	t, err := s.host.Tool(mux.Vars(r)["id"])
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := t.Execute(r.Context(), json.RawMessage(body))
	if err != nil {
		s.writeToolError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v1alpha1.ToolExecuteResponse{Tool: t.ID, Output: out})
}
