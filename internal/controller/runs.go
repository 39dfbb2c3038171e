package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/klubi/stratus/internal/host"
	"github.com/klubi/stratus/internal/store"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

// RunController executes WorkflowRuns that are stored as Pending.
type RunController struct {
	host   *host.Host
	store  store.Store
	logger *zap.Logger
}

func NewRunController(h *host.Host, s store.Store, logger *zap.Logger) *RunController {
	return &RunController{host: h, store: s, logger: logger}
}

// Reconcile runs the workflow for a Pending record. Step failures end up
// in the record, so only store errors are returned for a retry.
func (c *RunController) Reconcile(ctx context.Context, key string) error {
	rec, err := c.claim(key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.logger.Debug("run not found, possibly deleted", zap.String("key", key))
		return nil
	case errors.Is(err, errNotPending):
		return nil
	case err != nil:
		return fmt.Errorf("claiming run %q: %w", key, err)
	}

	wf, err := c.host.Workflow(rec.Spec.Workflow)
	if err != nil {
		return markFailed(c.store, key, rec, err.Error(), c.logger)
	}
	if want := store.ResourceKey(v1alpha1.KindWorkflowRun, wf.Key(), rec.Metadata.Name); want != key {
		return markFailed(c.store, key, rec, fmt.Sprintf("run is filed under %s, expected %s", key, want), c.logger)
	}

	run := wf.CreateRunWithID(rec.Metadata.Name)
	if rec.Spec.TimeoutSeconds > 0 {
		run.Timeout = time.Duration(rec.Spec.TimeoutSeconds) * time.Second
	}

	c.logger.Info("executing run",
		zap.String("workflow", wf.Key()),
		zap.String("run_id", run.ID),
	)
	res, err := run.Start(ctx, rec.Spec.TriggerData)
	if err != nil {
		c.logger.Info("run failed", zap.String("run_id", run.ID), zap.Error(err))
		return nil
	}
	c.logger.Info("run completed", zap.String("run_id", run.ID), zap.String("status", string(res.Status)))
	return nil
}

// errNotPending means another worker or a sync caller already owns the run.
var errNotPending = errors.New("run is not pending")

// claim moves a Pending run to Running in one atomic store write, so a
// run is executed by exactly one worker.
func (c *RunController) claim(key string) (*v1alpha1.WorkflowRun, error) {
	var rec v1alpha1.WorkflowRun
	err := c.store.Modify(key, &rec, func() error {
		if rec.Status.Phase != v1alpha1.RunPending && rec.Status.Phase != "" {
			return errNotPending
		}
		now := time.Now()
		rec.Status.Phase = v1alpha1.RunRunning
		rec.Status.StartedAt = now
		rec.Metadata.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PendingKeys lists the keys of every Pending run.
func (c *RunController) PendingKeys() ([]string, error) {
	return runKeys(c.store, func(r *v1alpha1.WorkflowRun) bool {
		return r.Status.Phase == v1alpha1.RunPending || r.Status.Phase == ""
	})
}

// runKeys lists the keys of stored runs matching keep.
func runKeys(s store.Store, keep func(*v1alpha1.WorkflowRun) bool) ([]string, error) {
	items, err := s.List(store.KindPrefix(v1alpha1.KindWorkflowRun, ""), func() interface{} { return &v1alpha1.WorkflowRun{} })
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	var keys []string
	for _, item := range items {
		r := item.(*v1alpha1.WorkflowRun)
		if keep(r) {
			keys = append(keys, store.ResourceKey(v1alpha1.KindWorkflowRun, r.Metadata.Scope, r.Metadata.Name))
		}
	}
	return keys, nil
}

// markFailed moves a run to Failed, skipping unfinished steps.
func markFailed(s store.Store, key string, rec *v1alpha1.WorkflowRun, message string, logger *zap.Logger) error {
	now := time.Now()
	rec.Status.Phase = v1alpha1.RunFailed
	rec.Status.Error = message
	rec.Status.FinishedAt = now
	rec.Metadata.UpdatedAt = now
	for i := range rec.Status.Steps {
		switch rec.Status.Steps[i].Status {
		case v1alpha1.StepRunning:
			rec.Status.Steps[i].Status = v1alpha1.StepFailed
			rec.Status.Steps[i].Error = message
			rec.Status.Steps[i].FinishedAt = now
		case v1alpha1.StepPending:
			rec.Status.Steps[i].Status = v1alpha1.StepSkipped
		}
	}

	if err := s.Update(key, rec); err != nil {
		return fmt.Errorf("marking run %q as Failed: %w", rec.Metadata.Name, err)
	}
	logger.Info("run marked as failed",
		zap.String("run", rec.Metadata.Name),
		zap.String("reason", message),
	)
	return nil
}
