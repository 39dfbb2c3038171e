package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

func TestRunWorkflow(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1alpha1/workflows/weatherWorkflow/runs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		var req v1alpha1.RunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.TriggerData["city"] != "Tulsa" {
			t.Errorf("unexpected trigger %v", req.TriggerData)
		}
		json.NewEncoder(w).Encode(v1alpha1.RunResponse{
			RunID:  "r1",
			Status: v1alpha1.RunSucceeded,
			Results: map[string]v1alpha1.StepState{
				"plan-activities": {ID: "plan-activities", Status: v1alpha1.StepSuccess, Output: map[string]any{"activities": "hike"}},
			},
		})
	}))
	defer ts.Close()

	c := New(ts.URL)
	res, err := c.RunWorkflow(context.Background(), "weatherWorkflow", v1alpha1.RunRequest{TriggerData: map[string]any{"city": "Tulsa"}})
	if err != nil {
		t.Fatalf("RunWorkflow: %v", err)
	}
	if res.RunID != "r1" || res.Results["plan-activities"].Status != v1alpha1.StepSuccess {
		t.Errorf("unexpected response %+v", res)
	}
}

func TestAPIErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1alpha1/workflows/missing":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"workflow \"missing\": not found"}`))
		case "/api/v1alpha1/tools/summarize-directory/execute":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"path escapes sandbox","code":"ERR_PATH_OUTSIDE_SANDBOX"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("boom"))
		}
	}))
	defer ts.Close()

	c := New(ts.URL)
	_, err := c.GetWorkflow(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, err = c.ExecuteTool(context.Background(), "summarize-directory", map[string]any{"path": "../"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "ERR_PATH_OUTSIDE_SANDBOX" || apiErr.Status != http.StatusBadRequest {
		t.Errorf("expected sandbox APIError, got %v", err)
	}

	err = c.Healthz(context.Background())
	if !errors.As(err, &apiErr) || apiErr.Message != "boom" {
		t.Errorf("expected plain-text APIError, got %v", err)
	}
}

func TestWaitForRun(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		phase := v1alpha1.RunRunning
		if atomic.AddInt32(&calls, 1) >= 3 {
			phase = v1alpha1.RunSucceeded
		}
		json.NewEncoder(w).Encode(v1alpha1.WorkflowRun{
			Metadata: v1alpha1.ObjectMeta{Name: "r1"},
			Status:   v1alpha1.WorkflowRunStatus{Phase: phase},
		})
	}))
	defer ts.Close()

	run, err := New(ts.URL).WaitForRun(context.Background(), "weatherWorkflow", "r1", time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForRun: %v", err)
	}
	if run.Status.Phase != v1alpha1.RunSucceeded || atomic.LoadInt32(&calls) != 3 {
		t.Errorf("unexpected result %s after %d calls", run.Status.Phase, calls)
	}
}

func TestListRunsQuery(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("workflow"); got != "sweAgentWorkflow" {
			t.Errorf("expected workflow filter, got %q", got)
		}
		w.Write([]byte(`[{"metadata":{"name":"a"}},{"metadata":{"name":"b"}}]`))
	}))
	defer ts.Close()

	runs, err := New(ts.URL).ListRuns(context.Background(), "sweAgentWorkflow")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[1].Metadata.Name != "b" {
		t.Errorf("unexpected runs %+v", runs)
	}
}
