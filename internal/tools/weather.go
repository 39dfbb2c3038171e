package tools

import (
	"context"

	"github.com/klubi/stratus/internal/weather"
)

const WeatherID = "get-weather"

type WeatherInput struct {
	Location string `json:"location" validate:"required" jsonschema_description:"City name"`
}

// CurrentWeather fetches current conditions; weather.Client satisfies it.
type CurrentWeather interface {
	Current(ctx context.Context, city string) (*weather.Current, error)
}

func WeatherTool(client CurrentWeather) *Tool {
	return New(WeatherID, "Get current weather for a location",
		func(ctx context.Context, in WeatherInput) (*weather.Current, error) {
			return client.Current(ctx, in.Location)
		})
}
