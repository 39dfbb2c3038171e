package workflows

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klubi/stratus/internal/agent"
	"github.com/klubi/stratus/internal/weather"
	"github.com/klubi/stratus/internal/workflow"
	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

type fakeForecaster struct {
	forecast []weather.DailyForecast
	err      error
	cities   []string
}

func (f *fakeForecaster) Forecast(_ context.Context, city string) ([]weather.DailyForecast, error) {
	f.cities = append(f.cities, city)
	return f.forecast, f.err
}

type fakePlanner struct {
	prompts []string
}

func (p *fakePlanner) Generate(_ context.Context, prompt string) (*agent.Response, error) {
	p.prompts = append(p.prompts, prompt)
	return &agent.Response{Text: "📅 Go hiking"}, nil
}

func TestWeatherWorkflow(t *testing.T) {
	fc := &fakeForecaster{forecast: []weather.DailyForecast{
		{Date: "2026-10-18", MaxTemp: 21, MinTemp: 9, PrecipitationChance: 10, Condition: "Clear sky", Location: "Tulsa"},
	}}
	planner := &fakePlanner{}
	wf := Weather(fc, planner)

	res, err := wf.CreateRun().Start(context.Background(), map[string]any{"city": "Tulsa"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Tulsa"}, fc.cities)
	require.Len(t, planner.prompts, 1)
	assert.Contains(t, planner.prompts[0], "forecast for Tulsa")
	assert.Contains(t, planner.prompts[0], `"condition": "Clear sky"`)

	assert.Equal(t, fc.forecast, res.Results[FetchWeatherID].Output)
	assert.Equal(t, ActivityPlan{Activities: "📅 Go hiking"}, res.Results[PlanActivityID].Output)
}

func TestWeatherWorkflowRequiresCity(t *testing.T) {
	wf := Weather(&fakeForecaster{}, &fakePlanner{})

	_, err := wf.CreateRun().Start(context.Background(), map[string]any{"town": "Tulsa"})
	assert.ErrorIs(t, err, workflow.ErrInvalidTrigger)
}

func TestWeatherWorkflowUnknownCity(t *testing.T) {
	fc := &fakeForecaster{err: weather.ErrLocationNotFound}
	planner := &fakePlanner{}
	wf := Weather(fc, planner)
	wf.Attach(workflow.Env{Retry: workflow.Retry{Attempts: 3}})

	res, err := wf.CreateRun().Start(context.Background(), map[string]any{"city": "Atlantis"})
	require.ErrorIs(t, err, workflow.ErrStepFailed)
	assert.Len(t, fc.cities, 1, "location errors are not retried")
	assert.Equal(t, v1alpha1.StepSkipped, res.Results[PlanActivityID].Status)
	assert.Empty(t, planner.prompts)
}

func TestWeatherWorkflowTransientError(t *testing.T) {
	fc := &fakeForecaster{err: errors.New("connection reset")}
	wf := Weather(fc, &fakePlanner{})
	wf.Attach(workflow.Env{Retry: workflow.Retry{Attempts: 1}})

	_, err := wf.CreateRun().Start(context.Background(), map[string]any{"city": "Tulsa"})
	require.Error(t, err)
	assert.Len(t, fc.cities, 2)
}

func TestSWEAgentWorkflow(t *testing.T) {
	root := t.TempDir()
	for p, content := range map[string]string{
		"main.go":        "package main",
		"cmd/app/app.go": "package app",
		"docs/intro.md":  "# intro",
		".secret/key":    "k",
	} {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}

	wf := SWEAgent(root)
	res, err := wf.CreateRun().Start(context.Background(), map[string]any{"path": "./", "includeHidden": false})
	require.NoError(t, err)

	out, ok := res.Results[ListDirectoriesID].Output.(DirectoryListing)
	require.True(t, ok)
	assert.Equal(t, "./", out.Path)
	assert.Equal(t, []string{"cmd", "docs"}, out.Directories)
	assert.Equal(t, 3, out.DirectoryCount)
	assert.Equal(t, 3, out.FileCount)
	assert.Equal(t, map[string]int{".go": 2, ".md": 1}, out.FileTypes)

	res, err = wf.CreateRun().Start(context.Background(), map[string]any{"path": ".", "includeHidden": true})
	require.NoError(t, err)
	out = res.Results[ListDirectoriesID].Output.(DirectoryListing)
	assert.Contains(t, out.Directories, ".secret")
}

func TestSWEAgentWorkflowSandbox(t *testing.T) {
	wf := SWEAgent(t.TempDir())

	res, err := wf.CreateRun().Start(context.Background(), map[string]any{"path": "../.."})
	require.ErrorIs(t, err, workflow.ErrStepFailed)
	assert.Contains(t, res.Results[ListDirectoriesID].Error, "ERR_PATH_OUTSIDE_SANDBOX")
}
