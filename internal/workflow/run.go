package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/klubi/stratus/internal/store"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

// Run is one execution of a workflow.
type Run struct {
	ID string
	// Timeout bounds the whole run when positive.
	Timeout time.Duration

	wf *Workflow
}

// RunResult is what Start returns: per-step results keyed by step ID.
type RunResult struct {
	RunID   string                `json:"runId"`
	Status  v1alpha1.RunPhase     `json:"status"`
	Results map[string]StepResult `json:"results"`
	Error   string                `json:"error,omitempty"`
}

// CreateRun returns a run with a fresh ID.
func (w *Workflow) CreateRun() *Run {
	return w.CreateRunWithID(uuid.NewString())
}

// CreateRunWithID resumes a run whose record was created elsewhere, such
// as a Pending WorkflowRun submitted through the API.
func (w *Workflow) CreateRunWithID(id string) *Run {
	return &Run{ID: id, wf: w}
}

// StoreKey is where the run's WorkflowRun record lives.
func (r *Run) StoreKey() string {
	return store.ResourceKey(v1alpha1.KindWorkflowRun, r.wf.key, r.ID)
}

// Start validates trigger data and executes every step in order. A failed
// step marks later steps skipped; Start then returns the results together
// with an error wrapping ErrStepFailed.
func (r *Run) Start(ctx context.Context, trigger map[string]any) (*RunResult, error) {
	w := r.wf
	if !w.committed {
		return nil, fmt.Errorf("workflow %s: %w", w.Name, ErrNotCommitted)
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	logger := w.logger.With(zap.String("run_id", r.ID))
	res := &RunResult{RunID: r.ID, Status: v1alpha1.RunRunning, Results: map[string]StepResult{}}
	decoded, decodeErr := w.decodeTrigger(trigger)

	w.metrics.runStarted(w.key)
	rec := r.claimRecord(trigger, logger)

	if decodeErr != nil {
		err := fmt.Errorf("%w: %v", ErrInvalidTrigger, decodeErr)
		logger.Warn("rejected trigger data", zap.Error(err))
		for i := range rec.Status.Steps {
			rec.Status.Steps[i].Status = v1alpha1.StepSkipped
		}
		r.finish(rec, res, err, logger)
		return res, err
	}
	logger.Info("run started", zap.Int("steps", len(w.steps)))

	var failed error
	for i, s := range w.steps {
		if failed != nil {
			sr := StepResult{Status: v1alpha1.StepSkipped}
			res.Results[s.ID] = sr
			rec.Status.Steps[i] = stepState(s.ID, sr)
			continue
		}

		rec.Status.Steps[i].Status = v1alpha1.StepRunning
		rec.Status.Steps[i].StartedAt = time.Now()
		r.save(rec, logger)

		sc := &StepContext{
			RunID:       r.ID,
			TriggerData: decoded,
			InputData:   trigger,
			Results:     copyResults(res.Results),
			Logger:      logger.With(zap.String("step", s.ID)),
		}
		sr := r.runStep(ctx, s, sc)
		res.Results[s.ID] = sr
		rec.Status.Steps[i] = stepState(s.ID, sr)

		if sr.Status == v1alpha1.StepFailed {
			failed = fmt.Errorf("%w: %s: %s", ErrStepFailed, s.ID, sr.Error)
		}
		r.save(rec, logger)
	}

	r.finish(rec, res, failed, logger)
	return res, failed
}

// runStep executes one step with its retry policy.
func (r *Run) runStep(ctx context.Context, s *Step, sc *StepContext) StepResult {
	w := r.wf
	sr := StepResult{StartedAt: time.Now()}

	if s.Input != nil {
		in, err := decodeProto(s.Input, sc.InputData)
		if err != nil {
			sr.Status = v1alpha1.StepFailed
			sr.Error = fmt.Sprintf("invalid step input: %v", err)
			sr.FinishedAt = time.Now()
			return sr
		}
		sc.Input = in
	}

	retry := w.retryFor(s)
	op := func() (any, error) {
		sr.Attempts++
		if sr.Attempts > 1 {
			sc.Logger.Info("retrying step", zap.Int("attempt", sr.Attempts))
		}
		out, err := safeExecute(ctx, s, sc)
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return out, err
	}

	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(retry.Delay)),
		backoff.WithMaxTries(uint(retry.Attempts+1)),
	)
	sr.FinishedAt = time.Now()
	if err != nil {
		sr.Status = v1alpha1.StepFailed
		sr.Error = err.Error()
		sc.Logger.Warn("step failed", zap.Int("attempts", sr.Attempts), zap.Error(err))
	} else {
		sr.Status = v1alpha1.StepSuccess
		sr.Output = out
		sc.Logger.Info("step succeeded", zap.Int("attempts", sr.Attempts), zap.Duration("took", sr.FinishedAt.Sub(sr.StartedAt)))
	}
	w.metrics.stepFinished(w.key, s.ID, string(sr.Status), sr.FinishedAt.Sub(sr.StartedAt), sr.Attempts)
	return sr
}

// safeExecute turns a panicking step into a permanent error.
func safeExecute(ctx context.Context, s *Step, sc *StepContext) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			sc.Logger.Error("step panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			err = backoff.Permanent(fmt.Errorf("panic: %v", p))
		}
	}()
	return s.Execute(ctx, sc)
}

func (r *Run) finish(rec *v1alpha1.WorkflowRun, res *RunResult, err error, logger *zap.Logger) {
	now := time.Now()
	res.Status = v1alpha1.RunSucceeded
	if err != nil {
		res.Status = v1alpha1.RunFailed
		res.Error = err.Error()
	}

	rec.Status.Phase = res.Status
	rec.Status.Error = res.Error
	rec.Status.FinishedAt = now
	rec.Status.Results = make(map[string]v1alpha1.StepState, len(res.Results))
	for id, sr := range res.Results {
		rec.Status.Results[id] = stepState(id, sr)
	}
	r.save(rec, logger)

	r.wf.metrics.runFinished(r.wf.key, string(res.Status))
	logger.Info("run finished",
		zap.String("status", string(res.Status)),
		zap.Duration("took", now.Sub(rec.Status.StartedAt)),
	)
}

// claimRecord writes the run's record as Running before any step executes.
// A record submitted elsewhere (async or apply) keeps its metadata and spec;
// otherwise a new one is created. Sync runs are never stored as Pending, so
// the run controller cannot pick them up a second time.
func (r *Run) claimRecord(trigger map[string]any, logger *zap.Logger) *v1alpha1.WorkflowRun {
	now := time.Now()
	rec := &v1alpha1.WorkflowRun{
		TypeMeta: v1alpha1.TypeMeta{APIVersion: v1alpha1.APIVersion, Kind: v1alpha1.KindWorkflowRun},
		Metadata: v1alpha1.ObjectMeta{
			Name:      r.ID,
			Scope:     r.wf.key,
			UID:       r.ID,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Spec: v1alpha1.WorkflowRunSpec{Workflow: r.wf.key, TriggerData: trigger},
	}
	if r.wf.store != nil {
		var existing v1alpha1.WorkflowRun
		err := r.wf.store.Get(r.StoreKey(), &existing)
		switch {
		case err == nil:
			rec.Metadata = existing.Metadata
			rec.Spec = existing.Spec
		case !errors.Is(err, store.ErrNotFound):
			logger.Warn("failed to load run record", zap.Error(err))
		}
	}

	rec.Status = v1alpha1.WorkflowRunStatus{
		Phase:     v1alpha1.RunRunning,
		StartedAt: now,
		Steps:     make([]v1alpha1.StepState, 0, len(r.wf.steps)),
	}
	for _, s := range r.wf.steps {
		rec.Status.Steps = append(rec.Status.Steps, v1alpha1.StepState{ID: s.ID, Status: v1alpha1.StepPending})
	}
	if r.wf.store == nil {
		return rec
	}

	rec.Metadata.UpdatedAt = now
	err := r.wf.store.Create(r.StoreKey(), rec)
	if errors.Is(err, store.ErrAlreadyExists) {
		err = r.wf.store.Update(r.StoreKey(), rec)
	}
	if err != nil {
		logger.Warn("failed to persist run record", zap.Error(err))
	}
	return rec
}

func (r *Run) save(rec *v1alpha1.WorkflowRun, logger *zap.Logger) {
	if r.wf.store == nil {
		return
	}
	rec.Metadata.UpdatedAt = time.Now()
	if err := r.wf.store.Update(r.StoreKey(), rec); err != nil {
		logger.Warn("failed to persist run record", zap.Error(err))
	}
}

func stepState(id string, sr StepResult) v1alpha1.StepState {
	return v1alpha1.StepState{
		ID:         id,
		Status:     sr.Status,
		Output:     sr.Output,
		Error:      sr.Error,
		Attempts:   sr.Attempts,
		StartedAt:  sr.StartedAt,
		FinishedAt: sr.FinishedAt,
	}
}

func copyResults(in map[string]StepResult) map[string]StepResult {
	out := make(map[string]StepResult, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ResultsFromRecord rebuilds step results from a persisted run.
func ResultsFromRecord(rec *v1alpha1.WorkflowRun) map[string]StepResult {
	out := make(map[string]StepResult, len(rec.Status.Results))
	for id, st := range rec.Status.Results {
		out[id] = StepResult{
			Status:     st.Status,
			Output:     st.Output,
			Error:      st.Error,
			Attempts:   st.Attempts,
			StartedAt:  st.StartedAt,
			FinishedAt: st.FinishedAt,
		}
	}
	return out
}

// Response is the API view of the result.
func (res *RunResult) Response(workflowKey string) *v1alpha1.RunResponse {
	out := &v1alpha1.RunResponse{
		RunID:    res.RunID,
		Workflow: workflowKey,
		Status:   res.Status,
		Results:  make(map[string]v1alpha1.StepState, len(res.Results)),
		Error:    res.Error,
	}
	for id, sr := range res.Results {
		out.Results[id] = stepState(id, sr)
	}
	return out
}
