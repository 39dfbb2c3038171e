package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/klubi/stratus/internal/store"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

// Reaper fails Running runs whose record has not been updated within
// staleAfter, such as runs orphaned by a crashed server.
type Reaper struct {
	store      store.Store
	staleAfter time.Duration
	logger     *zap.Logger
}

func NewReaper(s store.Store, staleAfter time.Duration, logger *zap.Logger) *Reaper {
	return &Reaper{store: s, staleAfter: staleAfter, logger: logger}
}

func (r *Reaper) Reconcile(_ context.Context, key string) error {
	var rec v1alpha1.WorkflowRun
	if err := r.store.Get(key, &rec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("getting run %q: %w", key, err)
	}
	if rec.Status.Phase != v1alpha1.RunRunning || !r.stale(&rec) {
		return nil
	}

	idle := time.Since(lastProgress(&rec)).Round(time.Second)
	r.logger.Warn("run stalled",
		zap.String("run", rec.Metadata.Name),
		zap.Duration("idle", idle),
		zap.Duration("threshold", r.staleAfter),
	)
	return markFailed(r.store, key, &rec, fmt.Sprintf("no progress for %s", idle), r.logger)
}

// StaleKeys lists Running runs that have gone quiet.
func (r *Reaper) StaleKeys() ([]string, error) {
	return runKeys(r.store, func(rec *v1alpha1.WorkflowRun) bool {
		return rec.Status.Phase == v1alpha1.RunRunning && r.stale(rec)
	})
}

func (r *Reaper) stale(rec *v1alpha1.WorkflowRun) bool {
	return lastProgress(rec).Before(time.Now().Add(-r.staleAfter))
}

func lastProgress(rec *v1alpha1.WorkflowRun) time.Time {
	if rec.Metadata.UpdatedAt.After(rec.Status.StartedAt) {
		return rec.Metadata.UpdatedAt
	}
	return rec.Status.StartedAt
}
