package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klubi/stratus/internal/store"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

type cityTrigger struct {
	City string `json:"city" validate:"required"`
}

type greeting struct {
	Message string `json:"message"`
}

func twoStepWorkflow() *Workflow {
	return New("greeter", cityTrigger{}).
		Step(&Step{
			ID: "greet",
			Execute: func(ctx context.Context, sc *StepContext) (any, error) {
				trig, ok := TriggerAs[cityTrigger](sc)
				if !ok {
					return nil, errors.New("no trigger")
				}
				return greeting{Message: "hello " + trig.City}, nil
			},
		}).
		Then(&Step{
			ID: "shout",
			Execute: func(ctx context.Context, sc *StepContext) (any, error) {
				g, err := StepOutput[greeting](sc, "greet")
				if err != nil {
					return nil, err
				}
				return g.Message + "!", nil
			},
		}).
		Commit()
}

func TestRunSucceeds(t *testing.T) {
	wf := twoStepWorkflow()

	res, err := wf.CreateRun().Start(context.Background(), map[string]any{"city": "Tulsa"})
	require.NoError(t, err)

	assert.Equal(t, v1alpha1.RunSucceeded, res.Status)
	assert.NotEmpty(t, res.RunID)
	require.Contains(t, res.Results, "greet")
	assert.Equal(t, v1alpha1.StepSuccess, res.Results["greet"].Status)
	assert.Equal(t, greeting{Message: "hello Tulsa"}, res.Results["greet"].Output)
	assert.Equal(t, "hello Tulsa!", res.Results["shout"].Output)
	assert.Equal(t, 1, res.Results["shout"].Attempts)
}

func TestRunIDsAreUnique(t *testing.T) {
	wf := twoStepWorkflow()
	assert.NotEqual(t, wf.CreateRun().ID, wf.CreateRun().ID)
}

func TestRunRejectsInvalidTrigger(t *testing.T) {
	executed := false
	wf := New("strict", cityTrigger{}).
		Step(&Step{ID: "only", Execute: func(context.Context, *StepContext) (any, error) {
			executed = true
			return nil, nil
		}}).
		Commit()

	res, err := wf.CreateRun().Start(context.Background(), map[string]any{})
	require.ErrorIs(t, err, ErrInvalidTrigger)
	assert.False(t, executed)
	assert.Equal(t, v1alpha1.RunFailed, res.Status)
}

func TestRunRequiresCommit(t *testing.T) {
	wf := New("draft", nil).Step(&Step{ID: "a", Execute: func(context.Context, *StepContext) (any, error) { return nil, nil }})

	_, err := wf.CreateRun().Start(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotCommitted)
}

func TestFailedStepSkipsRest(t *testing.T) {
	boom := errors.New("boom")
	wf := New("fails", nil).
		Step(&Step{ID: "a", Execute: func(context.Context, *StepContext) (any, error) { return nil, boom }}).
		Then(&Step{ID: "b", Execute: func(context.Context, *StepContext) (any, error) { return "never", nil }}).
		Commit()

	res, err := wf.CreateRun().Start(context.Background(), nil)
	require.ErrorIs(t, err, ErrStepFailed)
	assert.Equal(t, v1alpha1.RunFailed, res.Status)
	assert.Equal(t, v1alpha1.StepFailed, res.Results["a"].Status)
	assert.Contains(t, res.Results["a"].Error, "boom")
	assert.Equal(t, v1alpha1.StepSkipped, res.Results["b"].Status)
}

func TestStepRetries(t *testing.T) {
	calls := 0
	wf := New("flaky", nil).
		Step(&Step{
			ID:    "flaky",
			Retry: &Retry{Attempts: 2, Delay: time.Millisecond},
			Execute: func(context.Context, *StepContext) (any, error) {
				calls++
				if calls < 3 {
					return nil, errors.New("transient")
				}
				return "ok", nil
			},
		}).
		Commit()

	res, err := wf.CreateRun().Start(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Results["flaky"].Attempts)
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	calls := 0
	wf := New("perm", nil).
		Step(&Step{
			ID:    "perm",
			Retry: &Retry{Attempts: 5, Delay: time.Millisecond},
			Execute: func(context.Context, *StepContext) (any, error) {
				calls++
				return nil, Permanent(errors.New("bad input"))
			},
		}).
		Commit()

	_, err := wf.CreateRun().Start(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestEnvRetryAppliesToSteps(t *testing.T) {
	calls := 0
	wf := New("default-retry", nil).
		Step(&Step{ID: "a", Execute: func(context.Context, *StepContext) (any, error) {
			calls++
			return nil, errors.New("nope")
		}}).
		Commit()
	wf.Attach(Env{Retry: Retry{Attempts: 1, Delay: time.Millisecond}})

	_, err := wf.CreateRun().Start(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, wf.Describe().Steps[0].Retries)
}

func TestPanickingStepFails(t *testing.T) {
	wf := New("panics", nil).
		Step(&Step{ID: "p", Execute: func(context.Context, *StepContext) (any, error) { panic("kaboom") }}).
		Commit()

	res, err := wf.CreateRun().Start(context.Background(), nil)
	require.ErrorIs(t, err, ErrStepFailed)
	assert.Contains(t, res.Results["p"].Error, "kaboom")
}

func TestStepInput(t *testing.T) {
	wf := New("input", nil).
		Step(&Step{
			ID:    "echo",
			Input: cityTrigger{},
			Execute: func(ctx context.Context, sc *StepContext) (any, error) {
				in, ok := InputAs[cityTrigger](sc)
				if !ok {
					return nil, errors.New("missing input")
				}
				return in.City, nil
			},
		}).
		Commit()

	res, err := wf.CreateRun().Start(context.Background(), map[string]any{"city": "Oslo"})
	require.NoError(t, err)
	assert.Equal(t, "Oslo", res.Results["echo"].Output)

	res, err = wf.CreateRun().Start(context.Background(), map[string]any{})
	require.ErrorIs(t, err, ErrStepFailed)
	assert.Contains(t, res.Results["echo"].Error, "invalid step input")
}

func TestStepBuilderPanics(t *testing.T) {
	noop := func(context.Context, *StepContext) (any, error) { return nil, nil }

	assert.Panics(t, func() {
		New("dup", nil).Step(&Step{ID: "a", Execute: noop}).Step(&Step{ID: "a", Execute: noop})
	})
	assert.Panics(t, func() {
		New("late", nil).Commit().Step(&Step{ID: "a", Execute: noop})
	})
	assert.Panics(t, func() {
		New("empty", nil).Step(&Step{ID: "a"})
	})
}

func TestRunPersistsRecord(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()

	wf := twoStepWorkflow()
	wf.Attach(Env{Key: "greeterWorkflow", Store: st})

	run := wf.CreateRun()
	_, err := run.Start(context.Background(), map[string]any{"city": "Lima"})
	require.NoError(t, err)

	var rec v1alpha1.WorkflowRun
	require.NoError(t, st.Get(run.StoreKey(), &rec))
	assert.Equal(t, "/WorkflowRun/greeterWorkflow/"+run.ID, run.StoreKey())
	assert.Equal(t, v1alpha1.RunSucceeded, rec.Status.Phase)
	assert.Equal(t, "greeterWorkflow", rec.Spec.Workflow)
	require.Len(t, rec.Status.Steps, 2)
	assert.Equal(t, v1alpha1.StepSuccess, rec.Status.Steps[1].Status)
	assert.False(t, rec.Status.FinishedAt.IsZero())

	results := ResultsFromRecord(&rec)
	assert.Equal(t, "hello Lima!", results["shout"].Output)
}

func TestRunResumesPendingRecord(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()

	wf := twoStepWorkflow()
	wf.Attach(Env{Key: "greeterWorkflow", Store: st})

	pending := &v1alpha1.WorkflowRun{
		TypeMeta: v1alpha1.TypeMeta{APIVersion: v1alpha1.APIVersion, Kind: v1alpha1.KindWorkflowRun},
		Metadata: v1alpha1.ObjectMeta{Name: "run-1", Scope: "greeterWorkflow", Labels: map[string]string{"source": "api"}},
		Spec:     v1alpha1.WorkflowRunSpec{Workflow: "greeterWorkflow", TriggerData: map[string]any{"city": "Quito"}},
		Status:   v1alpha1.WorkflowRunStatus{Phase: v1alpha1.RunPending},
	}
	key := store.ResourceKey(v1alpha1.KindWorkflowRun, "greeterWorkflow", "run-1")
	require.NoError(t, st.Create(key, pending))

	_, err := wf.CreateRunWithID("run-1").Start(context.Background(), pending.Spec.TriggerData)
	require.NoError(t, err)

	var rec v1alpha1.WorkflowRun
	require.NoError(t, st.Get(key, &rec))
	assert.Equal(t, v1alpha1.RunSucceeded, rec.Status.Phase)
	assert.Equal(t, "api", rec.Metadata.Labels["source"])
}

func TestRunTimeout(t *testing.T) {
	wf := New("slow", nil).
		Step(&Step{ID: "wait", Execute: func(ctx context.Context, sc *StepContext) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}).
		Commit()

	run := wf.CreateRun()
	run.Timeout = 20 * time.Millisecond
	res, err := run.Start(context.Background(), nil)
	require.ErrorIs(t, err, ErrStepFailed)
	assert.Equal(t, 1, res.Results["wait"].Attempts)
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	wf := twoStepWorkflow()
	wf.Attach(Env{Key: "greeterWorkflow", Metrics: m})

	_, err := wf.CreateRun().Start(context.Background(), map[string]any{"city": "Bern"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("greeterWorkflow", "Succeeded")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.runsActive.WithLabelValues("greeterWorkflow")))
}

func TestDescribe(t *testing.T) {
	info := twoStepWorkflow().Describe()

	assert.Equal(t, "greeter", info.Key)
	require.Len(t, info.Steps, 2)
	assert.Equal(t, "greet", info.Steps[0].ID)
	schema, ok := info.TriggerSchema.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, schema["required"], "city")
}

func TestTimeline(t *testing.T) {
	wf := New("fails", nil).
		Step(&Step{ID: "a", Execute: func(context.Context, *StepContext) (any, error) { return "ok", nil }}).
		Then(&Step{ID: "b", Execute: func(context.Context, *StepContext) (any, error) { return nil, errors.New("boom") }}).
		Then(&Step{ID: "c", Execute: func(context.Context, *StepContext) (any, error) { return nil, nil }}).
		Commit()
	st := store.NewMemoryStore()
	defer st.Close()
	wf.Attach(Env{Store: st})

	run := wf.CreateRun()
	_, err := run.Start(context.Background(), nil)
	require.Error(t, err)

	var rec v1alpha1.WorkflowRun
	require.NoError(t, st.Get(run.StoreKey(), &rec))

	entries := Timeline(&rec)
	require.NotEmpty(t, entries)
	assert.Equal(t, "run created for workflow fails", entries[0].Message)
	last := entries[len(entries)-1]
	assert.Equal(t, "error", last.Level)
	assert.Contains(t, last.Message, "run failed")

	var sawSkip bool
	for _, e := range entries {
		assert.Equal(t, run.ID, e.RunID)
		if e.Step == "c" && e.Message == "step skipped" {
			sawSkip = true
		}
	}
	assert.True(t, sawSkip)
}

// phaseRecorder notes the phase of every record at the moment it is created.
type phaseRecorder struct {
	store.Store
	created []v1alpha1.RunPhase
}

func (p *phaseRecorder) Create(key string, value interface{}) error {
	if rec, ok := value.(*v1alpha1.WorkflowRun); ok {
		p.created = append(p.created, rec.Status.Phase)
	}
	return p.Store.Create(key, value)
}

func TestSyncRunIsCreatedRunning(t *testing.T) {
	st := &phaseRecorder{Store: store.NewMemoryStore()}
	defer st.Close()

	wf := twoStepWorkflow()
	wf.Attach(Env{Key: "greeterWorkflow", Store: st})

	_, err := wf.CreateRun().Start(context.Background(), map[string]any{"city": "Oslo"})
	require.NoError(t, err)
	_, err = wf.CreateRun().Start(context.Background(), map[string]any{})
	require.ErrorIs(t, err, ErrInvalidTrigger)

	assert.Equal(t, []v1alpha1.RunPhase{v1alpha1.RunRunning, v1alpha1.RunRunning}, st.created)
}
