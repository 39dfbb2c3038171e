package controller

import (
	"go.uber.org/zap"

	"github.com/klubi/stratus/internal/config"
	"github.com/klubi/stratus/internal/host"
	"github.com/klubi/stratus/internal/store"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

// RegisterDefaults wires the run controller and the reaper into m.
func RegisterDefaults(m *Manager, h *host.Host, s store.Store, cfg config.WorkflowConfig, logger *zap.Logger) {
	runs := NewRunController(h, s, logger.Named("runs"))
	m.Register(Controller{
		Name:       "workflowrun",
		Reconciler: runs,
		Kinds:      []string{v1alpha1.KindWorkflowRun},
		Seed:       runs.PendingKeys,
		Resync:     cfg.ReapInterval,
		Workers:    cfg.Workers,
	})

	reaper := NewReaper(s, cfg.StaleAfter, logger.Named("reaper"))
	m.Register(Controller{
		Name:       "reaper",
		Reconciler: reaper,
		Seed:       reaper.StaleKeys,
		Resync:     cfg.ReapInterval,
	})
}
