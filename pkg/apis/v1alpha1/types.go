// Package v1alpha1 defines all stratus resource types.
package v1alpha1

import "time"

const (
	APIVersion = "stratus.dev/v1alpha1"
)

// Resource kinds
const (
	KindWorkflowRun = "WorkflowRun"
	KindEvalResult  = "EvalResult"
)

// TypeMeta describes the API version and kind of a resource.
type TypeMeta struct {
	APIVersion string `json:"apiVersion" yaml:"apiVersion"`
	Kind       string `json:"kind" yaml:"kind"`
}

// ObjectMeta holds metadata common to all resources.
// Scope groups resources: the workflow key for runs, the agent name for evals.
type ObjectMeta struct {
	Name      string            `json:"name" yaml:"name"`
	Scope     string            `json:"scope,omitempty" yaml:"scope,omitempty"`
	Labels    map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	UID       string            `json:"uid,omitempty" yaml:"uid,omitempty"`
	CreatedAt time.Time         `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// -------------------------------------------------------
// WorkflowRun
// -------------------------------------------------------

// RunPhase represents the lifecycle phase of a WorkflowRun.
type RunPhase string

const (
	RunPending   RunPhase = "Pending"
	RunRunning   RunPhase = "Running"
	RunSucceeded RunPhase = "Succeeded"
	RunFailed    RunPhase = "Failed"
)

// Terminal reports whether no further transitions are expected.
func (p RunPhase) Terminal() bool {
	return p == RunSucceeded || p == RunFailed
}

// StepStatus is the outcome of a single workflow step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// WorkflowRun records one execution of a registered workflow.
type WorkflowRun struct {
	TypeMeta `json:",inline" yaml:",inline"`
	Metadata ObjectMeta        `json:"metadata" yaml:"metadata"`
	Spec     WorkflowRunSpec   `json:"spec" yaml:"spec"`
	Status   WorkflowRunStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

type WorkflowRunSpec struct {
	// Workflow is the registration key, e.g. "weatherWorkflow".
	Workflow       string         `json:"workflow" yaml:"workflow"`
	TriggerData    map[string]any `json:"triggerData,omitempty" yaml:"triggerData,omitempty"`
	TimeoutSeconds int            `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
}

type WorkflowRunStatus struct {
	Phase      RunPhase             `json:"phase" yaml:"phase"`
	Steps      []StepState          `json:"steps,omitempty" yaml:"steps,omitempty"`
	Results    map[string]StepState `json:"results,omitempty" yaml:"results,omitempty"`
	Error      string               `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time            `json:"startedAt,omitempty" yaml:"startedAt,omitempty"`
	FinishedAt time.Time            `json:"finishedAt,omitempty" yaml:"finishedAt,omitempty"`
}

// StepState is the persisted view of a step result.
type StepState struct {
	ID         string     `json:"id" yaml:"id"`
	Status     StepStatus `json:"status" yaml:"status"`
	Output     any        `json:"output,omitempty" yaml:"output,omitempty"`
	Error      string     `json:"error,omitempty" yaml:"error,omitempty"`
	Attempts   int        `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	StartedAt  time.Time  `json:"startedAt,omitempty" yaml:"startedAt,omitempty"`
	FinishedAt time.Time  `json:"finishedAt,omitempty" yaml:"finishedAt,omitempty"`
}

// -------------------------------------------------------
// EvalResult
// -------------------------------------------------------

// EvalResult stores the score an evaluation metric gave an agent response.
type EvalResult struct {
	TypeMeta `json:",inline" yaml:",inline"`
	Metadata ObjectMeta       `json:"metadata" yaml:"metadata"`
	Spec     EvalResultSpec   `json:"spec" yaml:"spec"`
	Status   EvalResultStatus `json:"status" yaml:"status"`
}

type EvalResultSpec struct {
	Agent  string `json:"agent" yaml:"agent"`
	Metric string `json:"metric" yaml:"metric"`
	Input  string `json:"input" yaml:"input"`
	Output string `json:"output" yaml:"output"`
}

type EvalResultStatus struct {
	Score float64        `json:"score" yaml:"score"`
	Info  map[string]any `json:"info,omitempty" yaml:"info,omitempty"`
}

// -------------------------------------------------------
// Registry descriptors (read-only, served from the host)
// -------------------------------------------------------

// WorkflowInfo describes a registered workflow.
type WorkflowInfo struct {
	Key           string     `json:"key" yaml:"key"`
	Name          string     `json:"name" yaml:"name"`
	TriggerSchema any        `json:"triggerSchema,omitempty" yaml:"triggerSchema,omitempty"`
	Steps         []StepInfo `json:"steps" yaml:"steps"`
}

// StepInfo describes one step of a workflow.
type StepInfo struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Retries     int    `json:"retries,omitempty" yaml:"retries,omitempty"`
}

// AgentInfo describes a registered agent.
type AgentInfo struct {
	Key          string   `json:"key" yaml:"key"`
	Name         string   `json:"name" yaml:"name"`
	Model        string   `json:"model,omitempty" yaml:"model,omitempty"`
	Instructions string   `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Tools        []string `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	ID           string `json:"id" yaml:"id"`
	Description  string `json:"description" yaml:"description"`
	InputSchema  any    `json:"inputSchema,omitempty" yaml:"inputSchema,omitempty"`
	OutputSchema any    `json:"outputSchema,omitempty" yaml:"outputSchema,omitempty"`
}

// -------------------------------------------------------
// Watch types
// -------------------------------------------------------

// EventType represents the type of a watch event.
type EventType string

const (
	EventAdded    EventType = "ADDED"
	EventModified EventType = "MODIFIED"
	EventDeleted  EventType = "DELETED"
)

// WatchEvent is emitted when a resource changes in the store.
type WatchEvent struct {
	Type   EventType
	Kind   string
	Key    string
	Object interface{}
}

// -------------------------------------------------------
// Log entry
// -------------------------------------------------------

// LogEntry is a single line of a run's step timeline.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"runId"`
	Step      string    `json:"step,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// -------------------------------------------------------
// API request/response bodies
// -------------------------------------------------------

// RunRequest starts a workflow run.
type RunRequest struct {
	TriggerData    map[string]any    `json:"triggerData"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`
}

// RunResponse is the outcome of a synchronous run.
type RunResponse struct {
	RunID    string               `json:"runId"`
	Workflow string               `json:"workflow"`
	Status   RunPhase             `json:"status"`
	Results  map[string]StepState `json:"results"`
	Error    string               `json:"error,omitempty"`
}

type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// ToolCallRecord is one tool call an agent made while answering.
type ToolCallRecord struct {
	Tool   string `json:"tool"`
	Input  any    `json:"input,omitempty"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

type GenerateResponse struct {
	Agent        string           `json:"agent"`
	Text         string           `json:"text"`
	Steps        int              `json:"steps"`
	ToolCalls    []ToolCallRecord `json:"toolCalls,omitempty"`
	InputTokens  int              `json:"inputTokens"`
	OutputTokens int              `json:"outputTokens"`
}

type EvalRequest struct {
	Input  string `json:"input"`
	Metric string `json:"metric,omitempty"`
}

type ToolExecuteResponse struct {
	Tool   string `json:"tool"`
	Output any    `json:"output"`
}
