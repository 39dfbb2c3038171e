// Package host is the orchestration object: it owns the registered
// workflows, agents and tools and binds them to the shared logger, store
// and metrics.
package host

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/klubi/stratus/internal/agent"
	"github.com/klubi/stratus/internal/store"
	"github.com/klubi/stratus/internal/tools"
	"github.com/klubi/stratus/internal/workflow"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

const DefaultName = "stratus"

var ErrNotFound = errors.New("not found")

type Options struct {
	// Name names the logger; defaults to "stratus".
	Name      string
	Workflows map[string]*workflow.Workflow
	Agents    map[string]*agent.Agent
	Tools     []*tools.Tool
	Logger    *zap.Logger
	// Store persists workflow runs. Nil keeps runs in memory only.
	Store   store.Store
	Metrics *workflow.Metrics
	// Retry is the default step retry policy.
	Retry workflow.Retry
}

type Host struct {
	name      string
	workflows map[string]*workflow.Workflow
	agents    map[string]*agent.Agent
	tools     tools.Set
	logger    *zap.Logger
	store     store.Store
}

// New registers everything in opts. Each workflow is attached under its
// registration key, so its runs are filed as /WorkflowRun/{key}/{id}.
func New(opts Options) *Host {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Host{
		name:      opts.Name,
		workflows: make(map[string]*workflow.Workflow, len(opts.Workflows)),
		agents:    make(map[string]*agent.Agent, len(opts.Agents)),
		tools:     tools.NewSet(opts.Tools...),
		logger:    logger,
		store:     opts.Store,
	}
	for key, wf := range opts.Workflows {
		wf.Attach(workflow.Env{
			Key:     key,
			Store:   opts.Store,
			Logger:  logger,
			Metrics: opts.Metrics,
			Retry:   opts.Retry,
		})
		h.workflows[key] = wf
	}
	for key, a := range opts.Agents {
		h.agents[key] = a
	}

	logger.Info("host initialized",
		zap.Strings("workflows", h.Workflows()),
		zap.Strings("agents", h.Agents()),
		zap.Strings("tools", h.Tools()),
	)
	return h
}

func (h *Host) Name() string { return h.name }

func (h *Host) Logger() *zap.Logger { return h.logger }

// Store returns the run store, or nil when runs are not persisted.
func (h *Host) Store() store.Store { return h.store }

// Workflow returns the workflow registered under key.
func (h *Host) Workflow(key string) (*workflow.Workflow, error) {
	wf, ok := h.workflows[key]
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", key, ErrNotFound)
	}
	return wf, nil
}

// Agent returns the agent registered under key.
func (h *Host) Agent(key string) (*agent.Agent, error) {
	a, ok := h.agents[key]
	if !ok {
		return nil, fmt.Errorf("agent %q: %w", key, ErrNotFound)
	}
	return a, nil
}

func (h *Host) Tool(id string) (*tools.Tool, error) {
	t, ok := h.tools[id]
	if !ok {
		return nil, fmt.Errorf("tool %q: %w", id, ErrNotFound)
	}
	return t, nil
}

// Workflows returns the registered workflow keys, sorted.
func (h *Host) Workflows() []string { return sortedKeys(h.workflows) }

// Agents returns the registered agent keys, sorted.
func (h *Host) Agents() []string { return sortedKeys(h.agents) }

// Tools returns the registered tool IDs, sorted.
func (h *Host) Tools() []string { return h.tools.IDs() }

// DescribeWorkflows returns descriptors for every workflow in key order.
func (h *Host) DescribeWorkflows() []v1alpha1.WorkflowInfo {
	out := make([]v1alpha1.WorkflowInfo, 0, len(h.workflows))
	for _, key := range h.Workflows() {
		out = append(out, h.workflows[key].Describe())
	}
	return out
}

func (h *Host) DescribeAgents() []v1alpha1.AgentInfo {
	out := make([]v1alpha1.AgentInfo, 0, len(h.agents))
	for _, key := range h.Agents() {
		out = append(out, h.agents[key].Info(key))
	}
	return out
}

func (h *Host) DescribeTools() []v1alpha1.ToolInfo {
	out := make([]v1alpha1.ToolInfo, 0, len(h.tools))
	for _, id := range h.Tools() {
		out = append(out, h.tools[id].Info())
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
