// Package weather is a small Open-Meteo client: geocoding, current
// conditions and a daily forecast for a city name.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/klubi/stratus/internal/config"
)

const (
	DefaultBaseURL    = "https://api.open-meteo.com/v1"
	DefaultGeocodeURL = "https://geocoding-api.open-meteo.com/v1"
	userAgent         = "stratus-weather/1.0"
)

var ErrLocationNotFound = errors.New("location not found")

type Location struct {
	Name      string  `json:"name"`
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone,omitempty"`
}

type Current struct {
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feelsLike"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
	WindGust    float64 `json:"windGust"`
	Conditions  string  `json:"conditions"`
	Location    string  `json:"location"`
}

type DailyForecast struct {
	Date                string  `json:"date"`
	MaxTemp             float64 `json:"maxTemp"`
	MinTemp             float64 `json:"minTemp"`
	PrecipitationChance float64 `json:"precipitationChance"`
	Condition           string  `json:"condition"`
	Location            string  `json:"location"`
}

// Report bundles current conditions with the daily forecast.
type Report struct {
	Location Location        `json:"location"`
	Current  *Current        `json:"current"`
	Forecast []DailyForecast `json:"forecast"`
}

type Options struct {
	BaseURL    string
	GeocodeURL string
	Timeout    time.Duration
	// MaxRetries counts retries after the first attempt.
	MaxRetries   int
	RetryInitial time.Duration
	// HTTPClient overrides the traced default client.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	baseURL      string
	geocodeURL   string
	http         *http.Client
	maxRetries   int
	retryInitial time.Duration
	logger       *zap.Logger
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.GeocodeURL == "" {
		opts.GeocodeURL = DefaultGeocodeURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryInitial <= 0 {
		opts.RetryInitial = 250 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	hc := opts.HTTPClient
	if hc == nil {
		transport := &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
		}
		hc = &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   opts.Timeout,
		}
	}
	return &Client{
		baseURL:      opts.BaseURL,
		geocodeURL:   opts.GeocodeURL,
		http:         hc,
		maxRetries:   opts.MaxRetries,
		retryInitial: opts.RetryInitial,
		logger:       opts.Logger,
	}
}

// NewFromConfig builds a client from the weather config section.
func NewFromConfig(cfg config.WeatherConfig, logger *zap.Logger) *Client {
	return New(Options{
		BaseURL:    cfg.BaseURL,
		GeocodeURL: cfg.GeocodeURL,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
}

type geocodeResponse struct {
	Results []Location `json:"results"`
}

// Geocode returns the best match for city.
func (c *Client) Geocode(ctx context.Context, city string) (*Location, error) {
	q := url.Values{}
	q.Set("name", city)
	q.Set("count", "1")

	var resp geocodeResponse
	if err := c.getJSON(ctx, c.geocodeURL+"/search?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("geocoding %q: %w", city, err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrLocationNotFound, city)
	}
	return &resp.Results[0], nil
}

type currentResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		Apparent    float64 `json:"apparent_temperature"`
		Humidity    float64 `json:"relative_humidity_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		WindGust    float64 `json:"wind_gusts_10m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
}

// Current returns the conditions right now in city.
func (c *Client) Current(ctx context.Context, city string) (*Current, error) {
	loc, err := c.Geocode(ctx, city)
	if err != nil {
		return nil, err
	}
	return c.currentAt(ctx, loc)
}

func (c *Client) currentAt(ctx context.Context, loc *Location) (*Current, error) {
	q := coords(loc)
	q.Set("current", "temperature_2m,apparent_temperature,relative_humidity_2m,wind_speed_10m,wind_gusts_10m,weather_code")

	var resp currentResponse
	if err := c.getJSON(ctx, c.baseURL+"/forecast?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("current weather for %s: %w", loc.Name, err)
	}
	return &Current{
		Temperature: resp.Current.Temperature,
		FeelsLike:   resp.Current.Apparent,
		Humidity:    resp.Current.Humidity,
		WindSpeed:   resp.Current.WindSpeed,
		WindGust:    resp.Current.WindGust,
		Conditions:  Condition(resp.Current.WeatherCode),
		Location:    loc.Name,
	}, nil
}

type forecastResponse struct {
	Daily struct {
		Time                []string  `json:"time"`
		TempMax             []float64 `json:"temperature_2m_max"`
		TempMin             []float64 `json:"temperature_2m_min"`
		PrecipitationChance []float64 `json:"precipitation_probability_mean"`
		WeatherCode         []int     `json:"weather_code"`
	} `json:"daily"`
}

// Forecast returns the daily forecast for city.
func (c *Client) Forecast(ctx context.Context, city string) ([]DailyForecast, error) {
	loc, err := c.Geocode(ctx, city)
	if err != nil {
		return nil, err
	}
	return c.forecastAt(ctx, loc)
}

func (c *Client) forecastAt(ctx context.Context, loc *Location) ([]DailyForecast, error) {
	q := coords(loc)
	q.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_probability_mean,weather_code")
	q.Set("timezone", "auto")

	var resp forecastResponse
	if err := c.getJSON(ctx, c.baseURL+"/forecast?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("forecast for %s: %w", loc.Name, err)
	}

	d := resp.Daily
	out := make([]DailyForecast, 0, len(d.Time))
	for i, date := range d.Time {
		f := DailyForecast{Date: date, Location: loc.Name, Condition: "Unknown"}
		if i < len(d.TempMax) {
			f.MaxTemp = d.TempMax[i]
		}
		if i < len(d.TempMin) {
			f.MinTemp = d.TempMin[i]
		}
		if i < len(d.PrecipitationChance) {
			f.PrecipitationChance = d.PrecipitationChance[i]
		}
		if i < len(d.WeatherCode) {
			f.Condition = Condition(d.WeatherCode[i])
		}
		out = append(out, f)
	}
	return out, nil
}

// Report geocodes once and fetches current conditions and the forecast
// concurrently.
func (c *Client) Report(ctx context.Context, city string) (*Report, error) {
	loc, err := c.Geocode(ctx, city)
	if err != nil {
		return nil, err
	}

	r := &Report{Location: *loc}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cur, err := c.currentAt(gctx, loc)
		r.Current = cur
		return err
	})
	g.Go(func() error {
		fc, err := c.forecastAt(gctx, loc)
		r.Forecast = fc
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return r, nil
}

func coords(loc *Location) url.Values {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", loc.Latitude))
	q.Set("longitude", fmt.Sprintf("%.4f", loc.Longitude))
	return q
}

// statusError is returned for non-200 responses.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API returned status %d", e.code)
}

// getJSON fetches u into out. Network errors, 429 and 5xx responses are
// retried with exponential backoff; anything else fails immediately.
func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(ctx.Err())
			}
			c.logger.Debug("weather request failed", zap.Int("attempt", attempt), zap.Error(err))
			return struct{}{}, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			serr := &statusError{code: resp.StatusCode}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				c.logger.Debug("weather API transient status", zap.Int("attempt", attempt), zap.Int("status", resp.StatusCode))
				return struct{}{}, serr
			}
			return struct{}{}, backoff.Permanent(serr)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return struct{}{}, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
	)
	return err
}
