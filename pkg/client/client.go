// Package client provides a Go client library for the stratus API server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error (status %d, %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Client communicates with the stratus API server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL (e.g. "http://127.0.0.1:7117").
// Synchronous runs can take minutes, so the timeout is generous.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// doJSON executes a request, checks for a 2xx status, and decodes the body
// into target when target is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, target interface{}) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: string(bytes.TrimSpace(respBody))}
		var envelope struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != "" {
			apiErr.Message = envelope.Error
			apiErr.Code = envelope.Code
		}
		return apiErr
	}

	if target != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// Healthz checks whether the API server is healthy.
func (c *Client) Healthz(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/healthz", nil, nil)
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func (c *Client) ListWorkflows(ctx context.Context) ([]v1alpha1.WorkflowInfo, error) {
	var out []v1alpha1.WorkflowInfo
	return out, c.doJSON(ctx, http.MethodGet, "/api/v1alpha1/workflows", nil, &out)
}

func (c *Client) GetWorkflow(ctx context.Context, key string) (*v1alpha1.WorkflowInfo, error) {
	var out v1alpha1.WorkflowInfo
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1alpha1/workflows/"+url.PathEscape(key), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListAgents(ctx context.Context) ([]v1alpha1.AgentInfo, error) {
	var out []v1alpha1.AgentInfo
	return out, c.doJSON(ctx, http.MethodGet, "/api/v1alpha1/agents", nil, &out)
}

func (c *Client) GetAgent(ctx context.Context, key string) (*v1alpha1.AgentInfo, error) {
	var out v1alpha1.AgentInfo
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1alpha1/agents/"+url.PathEscape(key), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTools(ctx context.Context) ([]v1alpha1.ToolInfo, error) {
	var out []v1alpha1.ToolInfo
	return out, c.doJSON(ctx, http.MethodGet, "/api/v1alpha1/tools", nil, &out)
}

func (c *Client) GetTool(ctx context.Context, id string) (*v1alpha1.ToolInfo, error) {
	var out v1alpha1.ToolInfo
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1alpha1/tools/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// RunWorkflow runs a workflow and waits for the result.
func (c *Client) RunWorkflow(ctx context.Context, key string, req v1alpha1.RunRequest) (*v1alpha1.RunResponse, error) {
	var out v1alpha1.RunResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1alpha1/workflows/"+url.PathEscape(key)+"/runs", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitRun stores a Pending run for the server's run controller.
func (c *Client) SubmitRun(ctx context.Context, key string, req v1alpha1.RunRequest) (*v1alpha1.WorkflowRun, error) {
	var out v1alpha1.WorkflowRun
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1alpha1/workflows/"+url.PathEscape(key)+"/runs?async=true", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRuns lists stored runs; an empty workflow lists all of them.
func (c *Client) ListRuns(ctx context.Context, workflow string) ([]v1alpha1.WorkflowRun, error) {
	path := "/api/v1alpha1/runs"
	if workflow != "" {
		path += "?workflow=" + url.QueryEscape(workflow)
	}
	var out []v1alpha1.WorkflowRun
	return out, c.doJSON(ctx, http.MethodGet, path, nil, &out)
}

func (c *Client) GetRun(ctx context.Context, workflow, id string) (*v1alpha1.WorkflowRun, error) {
	var out v1alpha1.WorkflowRun
	if err := c.doJSON(ctx, http.MethodGet, runPath(workflow, id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteRun(ctx context.Context, workflow, id string) error {
	return c.doJSON(ctx, http.MethodDelete, runPath(workflow, id), nil, nil)
}

func (c *Client) GetRunLogs(ctx context.Context, workflow, id string) ([]v1alpha1.LogEntry, error) {
	var out []v1alpha1.LogEntry
	return out, c.doJSON(ctx, http.MethodGet, runPath(workflow, id)+"/logs", nil, &out)
}

// WaitForRun polls until the run reaches a terminal phase or ctx ends.
func (c *Client) WaitForRun(ctx context.Context, workflow, id string, interval time.Duration) (*v1alpha1.WorkflowRun, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		run, err := c.GetRun(ctx, workflow, id)
		if err != nil {
			return nil, err
		}
		if run.Status.Phase.Terminal() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Apply submits a WorkflowRun manifest.
func (c *Client) Apply(ctx context.Context, run *v1alpha1.WorkflowRun) (*v1alpha1.WorkflowRun, error) {
	var out v1alpha1.WorkflowRun
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1alpha1/apply", run, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func runPath(workflow, id string) string {
	return "/api/v1alpha1/runs/" + url.PathEscape(workflow) + "/" + url.PathEscape(id)
}

// ---------------------------------------------------------------------------
// Agents, tools and evals
// ---------------------------------------------------------------------------

func (c *Client) Generate(ctx context.Context, agent, prompt string) (*v1alpha1.GenerateResponse, error) {
	var out v1alpha1.GenerateResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1alpha1/agents/"+url.PathEscape(agent)+"/generate",
		v1alpha1.GenerateRequest{Prompt: prompt}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Evaluate(ctx context.Context, agent string, req v1alpha1.EvalRequest) (*v1alpha1.EvalResultStatus, error) {
	var out v1alpha1.EvalResultStatus
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1alpha1/agents/"+url.PathEscape(agent)+"/evals", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListEvals lists stored eval results, optionally for one agent name.
func (c *Client) ListEvals(ctx context.Context, agent string) ([]v1alpha1.EvalResult, error) {
	path := "/api/v1alpha1/evals"
	if agent != "" {
		path += "?agent=" + url.QueryEscape(agent)
	}
	var out []v1alpha1.EvalResult
	return out, c.doJSON(ctx, http.MethodGet, path, nil, &out)
}

// ExecuteTool runs a tool with a JSON-encodable input.
func (c *Client) ExecuteTool(ctx context.Context, id string, input interface{}) (*v1alpha1.ToolExecuteResponse, error) {
	var out v1alpha1.ToolExecuteResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1alpha1/tools/"+url.PathEscape(id)+"/execute", input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
