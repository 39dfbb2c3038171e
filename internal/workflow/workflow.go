// Package workflow runs named, ordered step graphs.
//
// A Workflow is built with New(...).Step(a).Then(b).Commit(). Each call to
// CreateRun yields a Run with a fresh ID; Start decodes and validates the
// trigger data against the workflow's trigger prototype, then executes the
// steps in order. Results are keyed by step ID. When a store is attached,
// every run is persisted as a WorkflowRun resource and updated as steps
// finish.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/klubi/stratus/internal/schema"
	"github.com/klubi/stratus/internal/store"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

var (
	ErrStepFailed     = errors.New("step failed")
	ErrInvalidTrigger = errors.New("invalid trigger data")
	ErrNotCommitted   = errors.New("workflow not committed")
)

// Retry configures re-execution of a failing step. Attempts counts retries
// after the first try.
type Retry struct {
	Attempts int
	Delay    time.Duration
}

type Step struct {
	ID          string
	Description string
	// Input is an optional struct prototype. When set, the trigger data is
	// decoded into a fresh copy and exposed as StepContext.Input.
	Input   any
	Retry   *Retry
	Execute func(ctx context.Context, sc *StepContext) (any, error)
}

// StepResult is the outcome of one step within a run.
type StepResult struct {
	Status     v1alpha1.StepStatus `json:"status"`
	Output     any                 `json:"output,omitempty"`
	Error      string              `json:"error,omitempty"`
	Attempts   int                 `json:"attempts,omitempty"`
	StartedAt  time.Time           `json:"startedAt,omitempty"`
	FinishedAt time.Time           `json:"finishedAt,omitempty"`
}

// StepContext is handed to Step.Execute.
type StepContext struct {
	RunID string
	// TriggerData is a pointer to the decoded trigger prototype.
	TriggerData any
	// InputData is the raw trigger map as supplied by the caller.
	InputData map[string]any
	// Input is the decoded Step.Input, if the step declares one.
	Input   any
	Results map[string]StepResult
	Logger  *zap.Logger
}

// GetStepResult returns the output of an earlier successful step.
func (sc *StepContext) GetStepResult(id string) (any, bool) {
	r, ok := sc.Results[id]
	if !ok || r.Status != v1alpha1.StepSuccess {
		return nil, false
	}
	return r.Output, true
}

// StepOutput converts an earlier step's output to T, going through JSON
// when the stored value has a different shape.
func StepOutput[T any](sc *StepContext, id string) (T, error) {
	var out T
	v, ok := sc.GetStepResult(id)
	if !ok {
		return out, fmt.Errorf("no successful result for step %q", id)
	}
	switch typed := v.(type) {
	case T:
		return typed, nil
	case *T:
		if typed != nil {
			return *typed, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("encoding %s output: %w", id, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decoding %s output: %w", id, err)
	}
	return out, nil
}

// TriggerAs returns the decoded trigger as T.
func TriggerAs[T any](sc *StepContext) (T, bool) {
	switch v := sc.TriggerData.(type) {
	case *T:
		if v != nil {
			return *v, true
		}
	case T:
		return v, true
	}
	var zero T
	return zero, false
}

// InputAs returns the decoded step input as T.
func InputAs[T any](sc *StepContext) (T, bool) {
	switch v := sc.Input.(type) {
	case *T:
		if v != nil {
			return *v, true
		}
	case T:
		return v, true
	}
	var zero T
	return zero, false
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

type Workflow struct {
	Name string
	// TriggerSchema is a struct prototype the trigger data must decode into.
	TriggerSchema any

	key          string
	steps        []*Step
	committed    bool
	store        store.Store
	logger       *zap.Logger
	metrics      *Metrics
	defaultRetry Retry
}

// New starts building a workflow. trigger may be nil for workflows that
// take no input.
func New(name string, trigger any) *Workflow {
	return &Workflow{
		Name:          name,
		TriggerSchema: trigger,
		key:           name,
		logger:        zap.NewNop(),
	}
}

// Step appends s. It panics if the workflow is already committed or the
// step ID is reused.
func (w *Workflow) Step(s *Step) *Workflow {
	if w.committed {
		panic(fmt.Sprintf("workflow %s: step %q added after Commit", w.Name, s.ID))
	}
	if s.ID == "" || s.Execute == nil {
		panic(fmt.Sprintf("workflow %s: step needs an ID and Execute", w.Name))
	}
	for _, existing := range w.steps {
		if existing.ID == s.ID {
			panic(fmt.Sprintf("workflow %s: duplicate step %q", w.Name, s.ID))
		}
	}
	w.steps = append(w.steps, s)
	return w
}

// Then appends s to run after the previous step.
func (w *Workflow) Then(s *Step) *Workflow {
	return w.Step(s)
}

// Commit freezes the step graph.
func (w *Workflow) Commit() *Workflow {
	w.committed = true
	return w
}

func (w *Workflow) Committed() bool { return w.committed }

// Key is the registration name runs are filed under.
func (w *Workflow) Key() string { return w.key }

// Steps returns the steps in execution order.
func (w *Workflow) Steps() []*Step {
	return append([]*Step(nil), w.steps...)
}

// Env is what a host provides to a registered workflow.
type Env struct {
	Key     string
	Store   store.Store
	Logger  *zap.Logger
	Metrics *Metrics
	// Retry applies to steps that do not set their own.
	Retry Retry
}

// Attach binds the workflow to host services.
func (w *Workflow) Attach(env Env) {
	if env.Key != "" {
		w.key = env.Key
	}
	w.store = env.Store
	w.metrics = env.Metrics
	w.defaultRetry = env.Retry
	if env.Logger != nil {
		w.logger = env.Logger.With(zap.String("workflow", w.key))
	}
}

// Describe returns the registry descriptor.
func (w *Workflow) Describe() v1alpha1.WorkflowInfo {
	info := v1alpha1.WorkflowInfo{
		Key:           w.key,
		Name:          w.Name,
		TriggerSchema: schema.Reflect(w.TriggerSchema),
		Steps:         make([]v1alpha1.StepInfo, 0, len(w.steps)),
	}
	for _, s := range w.steps {
		info.Steps = append(info.Steps, v1alpha1.StepInfo{
			ID:          s.ID,
			Description: s.Description,
			Retries:     w.retryFor(s).Attempts,
		})
	}
	return info
}

func (w *Workflow) retryFor(s *Step) Retry {
	if s.Retry != nil {
		return *s.Retry
	}
	return w.defaultRetry
}

// decodeTrigger decodes data into a fresh copy of the trigger prototype.
func (w *Workflow) decodeTrigger(data map[string]any) (any, error) {
	if w.TriggerSchema == nil {
		return nil, nil
	}
	return decodeProto(w.TriggerSchema, data)
}

func decodeProto(proto any, data map[string]any) (any, error) {
	t := reflect.TypeOf(proto)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	target := reflect.New(t).Interface()
	if err := schema.DecodeMap(data, target); err != nil {
		return nil, err
	}
	return target, nil
}
