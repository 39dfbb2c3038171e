package host

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/klubi/stratus/internal/agent"
	"github.com/klubi/stratus/internal/config"
	"github.com/klubi/stratus/internal/llm"
	"github.com/klubi/stratus/internal/store"
	"github.com/klubi/stratus/internal/tools"
	"github.com/klubi/stratus/internal/weather"
	"github.com/klubi/stratus/internal/workflow"
	"github.com/klubi/stratus/internal/workflows"
)

// Deps overrides what Default would otherwise build from config.
type Deps struct {
	Logger *zap.Logger
	Store  store.Store
	// Registerer receives workflow metrics; nil leaves them unregistered.
	Registerer prometheus.Registerer
	Provider   llm.Provider
	Weather    *weather.Client
}

// Default builds the standard host: weatherAgent, weatherWorkflow,
// sweAgentWorkflow and the get-weather and summarize-directory tools.
func Default(cfg *config.Config, deps Deps) (*Host, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	provider := deps.Provider
	if provider == nil {
		p, err := llm.NewProvider(cfg.LLM, logger)
		if err != nil {
			return nil, fmt.Errorf("llm provider: %w", err)
		}
		provider = p
	}

	wc := deps.Weather
	if wc == nil {
		wc = weather.NewFromConfig(cfg.Weather, logger)
	}

	weatherAgent := agent.NewWeather(provider, cfg.LLM.Model, wc, logger)
	weatherAgent.MaxSteps = cfg.LLM.MaxSteps
	planner := agent.NewPlanner(provider, cfg.LLM.Model, logger)

	return New(Options{
		Name: cfg.Log.Name,
		Workflows: map[string]*workflow.Workflow{
			workflows.WeatherKey:  workflows.Weather(wc, planner),
			workflows.SWEAgentKey: workflows.SWEAgent(cfg.Workflow.Root),
		},
		Agents: map[string]*agent.Agent{
			agent.WeatherAgentKey: weatherAgent,
		},
		Tools: []*tools.Tool{
			tools.WeatherTool(wc),
			tools.DirectorySummaryTool(cfg.Workflow.Root),
		},
		Logger:  logger,
		Store:   deps.Store,
		Metrics: workflow.NewMetrics(deps.Registerer),
		Retry: workflow.Retry{
			Attempts: cfg.Workflow.StepRetries,
			Delay:    cfg.Workflow.RetryDelay,
		},
	}), nil
}
