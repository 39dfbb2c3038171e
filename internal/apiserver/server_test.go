package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/klubi/stratus/internal/agent"
	"github.com/klubi/stratus/internal/evals"
	"github.com/klubi/stratus/internal/host"
	"github.com/klubi/stratus/internal/llm"
	"github.com/klubi/stratus/internal/store"
	"github.com/klubi/stratus/internal/tools"
	"github.com/klubi/stratus/internal/workflow"
	"github.com/klubi/stratus/internal/workflows"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

func newTestServer(t *testing.T, withStore bool) (*httptest.Server, store.Store) {
	t.Helper()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main"), 0644); err != nil {
		t.Fatal(err)
	}

	var st store.Store
	if withStore {
		st = store.NewMemoryStore()
		t.Cleanup(func() { st.Close() })
	}

	reg := prometheus.NewRegistry()
	h := host.New(host.Options{
		Workflows: map[string]*workflow.Workflow{
			workflows.SWEAgentKey: workflows.SWEAgent(root),
		},
		Agents: map[string]*agent.Agent{
			"echoAgent": agent.New(agent.Config{Name: "Echo Agent"}, llm.NewEcho(), nil),
		},
		Tools:   []*tools.Tool{tools.DirectorySummaryTool(root)},
		Store:   st,
		Metrics: workflow.NewMetrics(reg),
	})

	srv := NewServer("127.0.0.1:0", h, reg, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func doJSON(t *testing.T, method, url string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthzAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t, false)

	var health map[string]interface{}
	if code := doJSON(t, "GET", ts.URL+"/healthz", nil, &health); code != http.StatusOK {
		t.Fatalf("healthz: %d", code)
	}
	if health["status"] != "ok" {
		t.Errorf("unexpected health body %v", health)
	}

	// Run something so the workflow collectors have samples.
	doJSON(t, "POST", ts.URL+"/api/v1alpha1/workflows/sweAgentWorkflow/runs",
		v1alpha1.RunRequest{TriggerData: map[string]any{"path": "."}}, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !bytes.Contains(buf.Bytes(), []byte("stratus_workflow_runs_total")) {
		t.Errorf("metrics output missing run counter:\n%s", buf.String())
	}
}

func TestRegistryEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, false)

	var wfs []v1alpha1.WorkflowInfo
	if code := doJSON(t, "GET", ts.URL+"/api/v1alpha1/workflows", nil, &wfs); code != http.StatusOK {
		t.Fatalf("list workflows: %d", code)
	}
	if len(wfs) != 1 || wfs[0].Key != "sweAgentWorkflow" {
		t.Fatalf("unexpected workflows %+v", wfs)
	}

	var info v1alpha1.WorkflowInfo
	if code := doJSON(t, "GET", ts.URL+"/api/v1alpha1/workflows/sweAgentWorkflow", nil, &info); code != http.StatusOK {
		t.Fatalf("get workflow: %d", code)
	}
	if info.Steps[0].ID != "list-directories" {
		t.Errorf("unexpected steps %+v", info.Steps)
	}

	if code := doJSON(t, "GET", ts.URL+"/api/v1alpha1/workflows/nope", nil, nil); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}

	var agents []v1alpha1.AgentInfo
	doJSON(t, "GET", ts.URL+"/api/v1alpha1/agents", nil, &agents)
	if len(agents) != 1 || agents[0].Key != "echoAgent" {
		t.Errorf("unexpected agents %+v", agents)
	}

	var tl []v1alpha1.ToolInfo
	doJSON(t, "GET", ts.URL+"/api/v1alpha1/tools", nil, &tl)
	if len(tl) != 1 || tl[0].ID != "summarize-directory" {
		t.Errorf("unexpected tools %+v", tl)
	}
}

func TestSyncRun(t *testing.T) {
	ts, st := newTestServer(t, true)

	var res v1alpha1.RunResponse
	code := doJSON(t, "POST", ts.URL+"/api/v1alpha1/workflows/sweAgentWorkflow/runs",
		v1alpha1.RunRequest{TriggerData: map[string]any{"path": "./", "includeHidden": false}}, &res)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if res.Status != v1alpha1.RunSucceeded {
		t.Fatalf("expected Succeeded, got %s (%s)", res.Status, res.Error)
	}
	out, _ := res.Results["list-directories"].Output.(map[string]interface{})
	if out["directoryCount"] != 1.0 || out["fileCount"] != 1.0 {
		t.Errorf("unexpected output %v", out)
	}

	var rec v1alpha1.WorkflowRun
	if err := st.Get(runKey("sweAgentWorkflow", res.RunID), &rec); err != nil {
		t.Fatalf("run not persisted: %v", err)
	}

	var runs []v1alpha1.WorkflowRun
	doJSON(t, "GET", ts.URL+"/api/v1alpha1/runs?workflow=sweAgentWorkflow", nil, &runs)
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}

	var logs []v1alpha1.LogEntry
	code = doJSON(t, "GET", ts.URL+"/api/v1alpha1/runs/sweAgentWorkflow/"+res.RunID+"/logs", nil, &logs)
	if code != http.StatusOK || len(logs) == 0 {
		t.Fatalf("logs: %d %v", code, logs)
	}

	if code := doJSON(t, "DELETE", ts.URL+"/api/v1alpha1/runs/sweAgentWorkflow/"+res.RunID, nil, nil); code != http.StatusOK {
		t.Errorf("delete: %d", code)
	}
	if code := doJSON(t, "GET", ts.URL+"/api/v1alpha1/runs/sweAgentWorkflow/"+res.RunID, nil, nil); code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", code)
	}
}

func TestSyncRunInvalidTrigger(t *testing.T) {
	ts, _ := newTestServer(t, false)

	code := doJSON(t, "POST", ts.URL+"/api/v1alpha1/workflows/sweAgentWorkflow/runs",
		v1alpha1.RunRequest{TriggerData: map[string]any{"includeHidden": true}}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestAsyncRunAndApply(t *testing.T) {
	ts, st := newTestServer(t, true)

	var rec v1alpha1.WorkflowRun
	code := doJSON(t, "POST", ts.URL+"/api/v1alpha1/workflows/sweAgentWorkflow/runs?async=true",
		v1alpha1.RunRequest{TriggerData: map[string]any{"path": "."}, Labels: map[string]string{"via": "test"}}, &rec)
	if code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", code)
	}
	if rec.Status.Phase != v1alpha1.RunPending || rec.Metadata.Labels["via"] != "test" {
		t.Errorf("unexpected record %+v", rec)
	}

	manifest := map[string]interface{}{
		"apiVersion": v1alpha1.APIVersion,
		"kind":       v1alpha1.KindWorkflowRun,
		"metadata":   map[string]interface{}{"name": "nightly"},
		"spec": map[string]interface{}{
			"workflow":    "sweAgentWorkflow",
			"triggerData": map[string]interface{}{"path": "src"},
		},
	}
	if code := doJSON(t, "POST", ts.URL+"/api/v1alpha1/apply", manifest, nil); code != http.StatusCreated {
		t.Fatalf("apply: expected 201, got %d", code)
	}
	// Still Pending: a second apply conflicts.
	if code := doJSON(t, "POST", ts.URL+"/api/v1alpha1/apply", manifest, nil); code != http.StatusConflict {
		t.Errorf("re-apply: expected 409, got %d", code)
	}

	var stored v1alpha1.WorkflowRun
	if err := st.Get(runKey("sweAgentWorkflow", "nightly"), &stored); err != nil {
		t.Fatal(err)
	}
	stored.Status.Phase = v1alpha1.RunSucceeded
	if err := st.Update(runKey("sweAgentWorkflow", "nightly"), &stored); err != nil {
		t.Fatal(err)
	}
	if code := doJSON(t, "POST", ts.URL+"/api/v1alpha1/apply", manifest, nil); code != http.StatusOK {
		t.Errorf("re-apply finished run: expected 200, got %d", code)
	}

	manifest["kind"] = "AgentPod"
	if code := doJSON(t, "POST", ts.URL+"/api/v1alpha1/apply", manifest, nil); code != http.StatusBadRequest {
		t.Errorf("unsupported kind: expected 400, got %d", code)
	}
}

func TestRunsWithoutStore(t *testing.T) {
	ts, _ := newTestServer(t, false)

	if code := doJSON(t, "GET", ts.URL+"/api/v1alpha1/runs", nil, nil); code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	code := doJSON(t, "POST", ts.URL+"/api/v1alpha1/workflows/sweAgentWorkflow/runs?async=true",
		v1alpha1.RunRequest{TriggerData: map[string]any{"path": "."}}, nil)
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for async run, got %d", code)
	}
}

func TestGenerate(t *testing.T) {
	ts, _ := newTestServer(t, false)

	var resp v1alpha1.GenerateResponse
	code := doJSON(t, "POST", ts.URL+"/api/v1alpha1/agents/echoAgent/generate", v1alpha1.GenerateRequest{Prompt: "London"}, &resp)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp.Text != "You said: London" || resp.Steps != 1 {
		t.Errorf("unexpected response %+v", resp)
	}

	if code := doJSON(t, "POST", ts.URL+"/api/v1alpha1/agents/echoAgent/generate", v1alpha1.GenerateRequest{}, nil); code != http.StatusBadRequest {
		t.Errorf("empty prompt: expected 400, got %d", code)
	}
}

func TestEvaluateAndListEvals(t *testing.T) {
	ts, st := newTestServer(t, true)
	defer evals.AttachListeners(st, nil)()

	var res v1alpha1.EvalResultStatus
	code := doJSON(t, "POST", ts.URL+"/api/v1alpha1/agents/echoAgent/evals", v1alpha1.EvalRequest{Input: "London"}, &res)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if res.Score != 1 {
		t.Errorf("neutral echo should score 1, got %v", res.Score)
	}

	var stored []v1alpha1.EvalResult
	doJSON(t, "GET", ts.URL+"/api/v1alpha1/evals?agent=Echo%20Agent", nil, &stored)
	if len(stored) != 1 || stored[0].Spec.Metric != evals.ToneConsistencyName {
		t.Errorf("unexpected stored evals %+v", stored)
	}

	if code := doJSON(t, "POST", ts.URL+"/api/v1alpha1/agents/echoAgent/evals", v1alpha1.EvalRequest{Input: "x", Metric: "bleu"}, nil); code != http.StatusBadRequest {
		t.Errorf("unknown metric: expected 400, got %d", code)
	}
}

func TestExecuteTool(t *testing.T) {
	ts, _ := newTestServer(t, false)

	var res v1alpha1.ToolExecuteResponse
	code := doJSON(t, "POST", ts.URL+"/api/v1alpha1/tools/summarize-directory/execute", map[string]any{"path": "."}, &res)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	out, _ := res.Output.(map[string]interface{})
	if out["totalFiles"] != 1.0 {
		t.Errorf("unexpected output %v", res.Output)
	}

	var perr map[string]string
	code = doJSON(t, "POST", ts.URL+"/api/v1alpha1/tools/summarize-directory/execute", map[string]any{"path": "../.."}, &perr)
	if code != http.StatusBadRequest || perr["code"] != "ERR_PATH_OUTSIDE_SANDBOX" {
		t.Errorf("sandbox escape: %d %v", code, perr)
	}

	code = doJSON(t, "POST", ts.URL+"/api/v1alpha1/tools/summarize-directory/execute", map[string]any{}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("missing path: expected 400, got %d", code)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t, false)

	req, _ := http.NewRequestWithContext(context.Background(), "OPTIONS", ts.URL+"/api/v1alpha1/workflows", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS headers on preflight")
	}
}
