// Package evals scores agent responses with metrics and hands every
// result to the registered listeners.
package evals

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/klubi/stratus/internal/agent"
	"github.com/klubi/stratus/internal/store"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

type Result struct {
	Score float64        `json:"score"`
	Info  map[string]any `json:"info,omitempty"`
}

type Metric interface {
	Name() string
	Measure(ctx context.Context, input, output string) (Result, error)
}

// Event is what listeners receive after each evaluation.
type Event struct {
	ID     string
	Agent  string
	Metric string
	Input  string
	Output string
	Result Result
	At     time.Time
}

type Listener func(ctx context.Context, ev Event) error

var (
	mu        sync.RWMutex
	listeners = map[int]Listener{}
	nextID    int
)

// AddListener registers l for every later evaluation. The returned func
// removes it.
func AddListener(l Listener) func() {
	mu.Lock()
	defer mu.Unlock()
	id := nextID
	nextID++
	listeners[id] = l
	return func() {
		mu.Lock()
		defer mu.Unlock()
		delete(listeners, id)
	}
}

// AttachListeners persists every evaluation as an EvalResult in st.
func AttachListeners(st store.Store, logger *zap.Logger) func() {
	if logger == nil {
		logger = zap.NewNop()
	}
	return AddListener(func(_ context.Context, ev Event) error {
		res := ToResource(ev)
		key := store.ResourceKey(v1alpha1.KindEvalResult, res.Metadata.Scope, res.Metadata.Name)
		if err := st.Create(key, res); err != nil {
			return fmt.Errorf("storing eval result: %w", err)
		}
		logger.Debug("eval result stored", zap.String("key", key), zap.Float64("score", ev.Result.Score))
		return nil
	})
}

// ToResource converts an event to its stored form. Scope is the agent name
// in lower-kebab case.
func ToResource(ev Event) *v1alpha1.EvalResult {
	return &v1alpha1.EvalResult{
		TypeMeta: v1alpha1.TypeMeta{APIVersion: v1alpha1.APIVersion, Kind: v1alpha1.KindEvalResult},
		Metadata: v1alpha1.ObjectMeta{
			Name:      ev.ID,
			Scope:     Slug(ev.Agent),
			UID:       ev.ID,
			Labels:    map[string]string{"metric": ev.Metric},
			CreatedAt: ev.At,
			UpdatedAt: ev.At,
		},
		Spec: v1alpha1.EvalResultSpec{
			Agent:  ev.Agent,
			Metric: ev.Metric,
			Input:  ev.Input,
			Output: ev.Output,
		},
		Status: v1alpha1.EvalResultStatus{Score: ev.Result.Score, Info: ev.Result.Info},
	}
}

// Slug lowercases s and joins its words with dashes.
func Slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

// Evaluate runs a on input, measures the answer with m and notifies
// listeners. A failing listener is logged, not returned.
func Evaluate(ctx context.Context, a *agent.Agent, input string, m Metric) (*Result, error) {
	resp, err := a.Generate(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", a.Name, err)
	}
	res, err := m.Measure(ctx, input, resp.Text)
	if err != nil {
		return nil, fmt.Errorf("measuring %s: %w", m.Name(), err)
	}

	ev := Event{
		ID:     uuid.NewString(),
		Agent:  a.Name,
		Metric: m.Name(),
		Input:  input,
		Output: resp.Text,
		Result: res,
		At:     time.Now(),
	}
	notify(ctx, ev, a)
	return &res, nil
}

func notify(ctx context.Context, ev Event, a *agent.Agent) {
	mu.RLock()
	ls := make([]Listener, 0, len(listeners))
	for _, l := range listeners {
		ls = append(ls, l)
	}
	mu.RUnlock()

	for _, l := range ls {
		if err := l(ctx, ev); err != nil {
			a.Logger().Warn("eval listener failed", zap.String("metric", ev.Metric), zap.Error(err))
		}
	}
}

// EvaluateAll evaluates every input with at most limit in flight. Results
// are in input order; the first error cancels the rest.
func EvaluateAll(ctx context.Context, a *agent.Agent, inputs []string, m Metric, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 1
	}
	out := make([]Result, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, in := range inputs {
		g.Go(func() error {
			res, err := Evaluate(gctx, a, in, m)
			if err != nil {
				return err
			}
			out[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// NewMetric returns the metric registered under name; empty selects
// tone consistency.
func NewMetric(name string) (Metric, error) {
	switch name {
	case "", ToneConsistencyName:
		return NewToneConsistency(), nil
	default:
		return nil, fmt.Errorf("unknown metric %q", name)
	}
}
