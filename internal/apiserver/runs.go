package apiserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/klubi/stratus/internal/store"
	"github.com/klubi/stratus/internal/workflow"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

// handleStartRun runs a workflow. With ?async=true the run is stored as
// Pending for the run controller and 202 is returned at once; otherwise
// the request waits for the result.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	wf, err := s.host.Workflow(key)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}

	var req v1alpha1.RunRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if !s.requireStore(w) {
			return
		}
		rec := newPendingRun(wf.Key(), uuid.NewString(), req)
		if err := s.store.Create(runKey(wf.Key(), rec.Metadata.Name), rec); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.logger.Info("run submitted", zap.String("workflow", wf.Key()), zap.String("run_id", rec.Metadata.Name))
		s.writeJSON(w, http.StatusAccepted, rec)
		return
	}

	run := wf.CreateRun()
	if req.TimeoutSeconds > 0 {
		run.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	res, err := run.Start(r.Context(), req.TriggerData)
	if errors.Is(err, workflow.ErrInvalidTrigger) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if res == nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res.Response(wf.Key()))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	prefix := store.KindPrefix(v1alpha1.KindWorkflowRun, r.URL.Query().Get("workflow"))
	items, err := s.store.List(prefix, func() interface{} { return &v1alpha1.WorkflowRun{} })
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	runs := make([]*v1alpha1.WorkflowRun, 0, len(items))
	for _, item := range items {
		runs = append(runs, item.(*v1alpha1.WorkflowRun))
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) (string, *v1alpha1.WorkflowRun, bool) {
	if !s.requireStore(w) {
		return "", nil, false
	}
	vars := mux.Vars(r)
	key := runKey(vars["workflow"], vars["id"])

	var rec v1alpha1.WorkflowRun
	if err := s.store.Get(key, &rec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return "", nil, false
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return "", nil, false
	}
	return key, &rec, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if _, rec, ok := s.getRun(w, r); ok {
		s.writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	key, rec, ok := s.getRun(w, r)
	if !ok {
		return
	}
	if rec.Status.Phase == v1alpha1.RunRunning {
		s.writeError(w, http.StatusConflict, "run is still executing")
		return
	}
	if err := s.store.Delete(key); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleGetRunLogs(w http.ResponseWriter, r *http.Request) {
	if _, rec, ok := s.getRun(w, r); ok {
		s.writeJSON(w, http.StatusOK, workflow.Timeline(rec))
	}
}

// handleApply creates a Pending run from a WorkflowRun manifest. Applying
// a finished run again resets it to Pending so it executes once more.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var meta v1alpha1.TypeMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		s.writeError(w, http.StatusBadRequest, "cannot determine resource kind: "+err.Error())
		return
	}
	if meta.Kind != v1alpha1.KindWorkflowRun {
		s.writeError(w, http.StatusBadRequest, "unsupported kind: "+meta.Kind)
		return
	}

	var in v1alpha1.WorkflowRun
	if err := json.Unmarshal(raw, &in); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wf, err := s.host.Workflow(in.Spec.Workflow)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := in.Metadata.Name
	if name == "" {
		name = uuid.NewString()
	}

	rec := newPendingRun(wf.Key(), name, v1alpha1.RunRequest{
		TriggerData:    in.Spec.TriggerData,
		TimeoutSeconds: in.Spec.TimeoutSeconds,
		Labels:         in.Metadata.Labels,
	})
	key := runKey(wf.Key(), name)

	var existing v1alpha1.WorkflowRun
	err = s.store.Get(key, &existing)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := s.store.Create(key, rec); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusCreated, rec)
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	case !existing.Status.Phase.Terminal():
		s.writeError(w, http.StatusConflict, fmt.Sprintf("run %s is %s", name, existing.Status.Phase))
	default:
		rec.Metadata.UID = existing.Metadata.UID
		rec.Metadata.CreatedAt = existing.Metadata.CreatedAt
		if err := s.store.Update(key, rec); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, rec)
	}
}

func runKey(workflowKey, id string) string {
	return store.ResourceKey(v1alpha1.KindWorkflowRun, workflowKey, id)
}

func newPendingRun(workflowKey, name string, req v1alpha1.RunRequest) *v1alpha1.WorkflowRun {
	now := time.Now()
	return &v1alpha1.WorkflowRun{
		TypeMeta: v1alpha1.TypeMeta{APIVersion: v1alpha1.APIVersion, Kind: v1alpha1.KindWorkflowRun},
		Metadata: v1alpha1.ObjectMeta{
			Name:      name,
			Scope:     workflowKey,
			Labels:    req.Labels,
			UID:       uuid.NewString(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Spec: v1alpha1.WorkflowRunSpec{
			Workflow:       workflowKey,
			TriggerData:    req.TriggerData,
			TimeoutSeconds: req.TimeoutSeconds,
		},
		Status: v1alpha1.WorkflowRunStatus{Phase: v1alpha1.RunPending},
	}
}
