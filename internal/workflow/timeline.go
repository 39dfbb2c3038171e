package workflow

import (
	"fmt"
	"sort"

	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

// Timeline renders a persisted run as log entries in time order.
func Timeline(rec *v1alpha1.WorkflowRun) []v1alpha1.LogEntry {
	id := rec.Metadata.Name
	var out []v1alpha1.LogEntry
	add := func(e v1alpha1.LogEntry) {
		if e.Timestamp.IsZero() {
			return
		}
		e.RunID = id
		out = append(out, e)
	}

	add(v1alpha1.LogEntry{Timestamp: rec.Metadata.CreatedAt, Level: "info",
		Message: fmt.Sprintf("run created for workflow %s", rec.Spec.Workflow)})
	add(v1alpha1.LogEntry{Timestamp: rec.Status.StartedAt, Level: "info", Message: "run started"})

	for _, st := range rec.Status.Steps {
		add(v1alpha1.LogEntry{Timestamp: st.StartedAt, Step: st.ID, Level: "info", Message: "step started"})
		switch st.Status {
		case v1alpha1.StepSuccess:
			add(v1alpha1.LogEntry{Timestamp: st.FinishedAt, Step: st.ID, Level: "info",
				Message: fmt.Sprintf("step succeeded after %d attempt(s)", st.Attempts)})
		case v1alpha1.StepFailed:
			add(v1alpha1.LogEntry{Timestamp: st.FinishedAt, Step: st.ID, Level: "error",
				Message: "step failed: " + st.Error})
		case v1alpha1.StepSkipped:
			add(v1alpha1.LogEntry{Timestamp: rec.Status.FinishedAt, Step: st.ID, Level: "warn", Message: "step skipped"})
		}
	}

	switch rec.Status.Phase {
	case v1alpha1.RunSucceeded:
		add(v1alpha1.LogEntry{Timestamp: rec.Status.FinishedAt, Level: "info", Message: "run succeeded"})
	case v1alpha1.RunFailed:
		add(v1alpha1.LogEntry{Timestamp: rec.Status.FinishedAt, Level: "error", Message: "run failed: " + rec.Status.Error})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
