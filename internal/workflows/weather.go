// Package workflows declares the workflows stratus registers by default.
package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klubi/stratus/internal/agent"
	"github.com/klubi/stratus/internal/weather"
	"github.com/klubi/stratus/internal/workflow"
)

const (
	WeatherKey     = "weatherWorkflow"
	FetchWeatherID = "fetch-weather"
	PlanActivityID = "plan-activities"
)

// WeatherTrigger is the trigger data of the weather workflow.
type WeatherTrigger struct {
	City string `json:"city" validate:"required" jsonschema_description:"The city to get the weather for"`
}

// ActivityPlan is the output of plan-activities.
type ActivityPlan struct {
	Activities string `json:"activities"`
}

// Forecaster returns a daily forecast; weather.Client satisfies it.
type Forecaster interface {
	Forecast(ctx context.Context, city string) ([]weather.DailyForecast, error)
}

// Generator answers a prompt; *agent.Agent satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*agent.Response, error)
}

// Weather fetches a forecast for the trigger city and asks planner to turn
// it into a day-by-day activity plan.
func Weather(forecaster Forecaster, planner Generator) *workflow.Workflow {
	fetch := &workflow.Step{
		ID:          FetchWeatherID,
		Description: "Fetches weather forecast for a given city",
		Execute: func(ctx context.Context, sc *workflow.StepContext) (any, error) {
			trig, ok := workflow.TriggerAs[WeatherTrigger](sc)
			if !ok {
				return nil, workflow.Permanent(errors.New("trigger data not found"))
			}
			forecast, err := forecaster.Forecast(ctx, trig.City)
			if errors.Is(err, weather.ErrLocationNotFound) {
				return nil, workflow.Permanent(fmt.Errorf("location %q: %w", trig.City, err))
			}
			if err != nil {
				return nil, err
			}
			return forecast, nil
		},
	}

	plan := &workflow.Step{
		ID:          PlanActivityID,
		Description: "Suggests activities based on weather conditions",
		Execute: func(ctx context.Context, sc *workflow.StepContext) (any, error) {
			forecast, err := workflow.StepOutput[[]weather.DailyForecast](sc, FetchWeatherID)
			if err != nil {
				return nil, workflow.Permanent(fmt.Errorf("forecast data not found: %w", err))
			}
			if len(forecast) == 0 {
				return nil, workflow.Permanent(errors.New("forecast is empty"))
			}
			raw, err := json.MarshalIndent(forecast, "", "  ")
			if err != nil {
				return nil, workflow.Permanent(err)
			}
			prompt := fmt.Sprintf("Based on the following weather forecast for %s, suggest appropriate activities:\n%s",
				forecast[0].Location, raw)

			resp, err := planner.Generate(ctx, prompt)
			if err != nil {
				return nil, err
			}
			sc.Logger.Debug("activity plan generated")
			return ActivityPlan{Activities: resp.Text}, nil
		},
	}

	return workflow.New("weather-workflow", WeatherTrigger{}).
		Step(fetch).
		Then(plan).
		Commit()
}
