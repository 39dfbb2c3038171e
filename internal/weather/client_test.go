package weather

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	geocodeLondon = `{"results":[{"name":"London","country":"United Kingdom","latitude":51.5085,"longitude":-0.1257,"timezone":"Europe/London"}]}`
	currentBody   = `{"current":{"temperature_2m":14.2,"apparent_temperature":12.9,"relative_humidity_2m":71,"wind_speed_10m":18.4,"wind_gusts_10m":33.1,"weather_code":3}}`
	forecastBody  = `{"daily":{"time":["2026-10-18","2026-10-19"],"temperature_2m_max":[16.1,17.3],"temperature_2m_min":[9.4,10.2],"precipitation_probability_mean":[40,5],"weather_code":[61,0]}}`
)

// fakeOpenMeteo serves geocoding and forecast endpoints from one server.
func fakeOpenMeteo(t *testing.T, geocode string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/search":
			assert.Equal(t, "1", r.URL.Query().Get("count"))
			io.WriteString(w, geocode)
		case r.URL.Path == "/forecast" && r.URL.Query().Get("current") != "":
			assert.Equal(t, "51.5085", r.URL.Query().Get("latitude"))
			io.WriteString(w, currentBody)
		case r.URL.Path == "/forecast" && r.URL.Query().Get("daily") != "":
			assert.Equal(t, "auto", r.URL.Query().Get("timezone"))
			io.WriteString(w, forecastBody)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(url string, retries int) *Client {
	return New(Options{
		BaseURL:      url,
		GeocodeURL:   url,
		MaxRetries:   retries,
		RetryInitial: time.Millisecond,
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
	})
}

func TestGeocode(t *testing.T) {
	srv := fakeOpenMeteo(t, geocodeLondon)

	loc, err := testClient(srv.URL, 0).Geocode(context.Background(), "London")
	require.NoError(t, err)
	assert.Equal(t, "London", loc.Name)
	assert.InDelta(t, 51.5085, loc.Latitude, 1e-9)
}

func TestGeocodeNotFound(t *testing.T) {
	srv := fakeOpenMeteo(t, `{"generationtime_ms":0.5}`)

	_, err := testClient(srv.URL, 0).Geocode(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, ErrLocationNotFound)
}

func TestCurrent(t *testing.T) {
	srv := fakeOpenMeteo(t, geocodeLondon)

	cur, err := testClient(srv.URL, 0).Current(context.Background(), "London")
	require.NoError(t, err)
	assert.Equal(t, &Current{
		Temperature: 14.2,
		FeelsLike:   12.9,
		Humidity:    71,
		WindSpeed:   18.4,
		WindGust:    33.1,
		Conditions:  "Overcast",
		Location:    "London",
	}, cur)
}

func TestForecast(t *testing.T) {
	srv := fakeOpenMeteo(t, geocodeLondon)

	fc, err := testClient(srv.URL, 0).Forecast(context.Background(), "London")
	require.NoError(t, err)
	require.Len(t, fc, 2)
	assert.Equal(t, DailyForecast{
		Date:                "2026-10-18",
		MaxTemp:             16.1,
		MinTemp:             9.4,
		PrecipitationChance: 40,
		Condition:           "Slight rain",
		Location:            "London",
	}, fc[0])
	assert.Equal(t, "Clear sky", fc[1].Condition)
}

func TestReport(t *testing.T) {
	srv := fakeOpenMeteo(t, geocodeLondon)

	r, err := testClient(srv.URL, 0).Report(context.Background(), "London")
	require.NoError(t, err)
	assert.Equal(t, "London", r.Location.Name)
	assert.Equal(t, "Overcast", r.Current.Conditions)
	assert.Len(t, r.Forecast, 2)
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, geocodeLondon)
	}))
	defer srv.Close()

	loc, err := testClient(srv.URL, 3).Geocode(context.Background(), "London")
	require.NoError(t, err)
	assert.Equal(t, "London", loc.Name)
	assert.EqualValues(t, 3, calls.Load())
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 2).Geocode(context.Background(), "London")
	var serr *statusError
	require.True(t, errors.As(err, &serr), "got %v", err)
	assert.Equal(t, http.StatusBadGateway, serr.code)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 5).Geocode(context.Background(), "London")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.EqualValues(t, 1, calls.Load())
}

func TestCondition(t *testing.T) {
	assert.Equal(t, "Clear sky", Condition(0))
	assert.Equal(t, "Thunderstorm with heavy hail", Condition(99))
	assert.Equal(t, "Unknown", Condition(42))
}
