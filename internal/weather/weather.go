package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"spot-presence-backend/config"
)

// Forecast carries the current wind conditions and, when the marine API has
// data for the point, the sea surface temperature.
type Forecast struct {
	WindSpeed     float64 `json:"windSpeed"`     // m/s
	WindDirection float64 `json:"windDirection"` // degrees
	// Gusts is the current-hour wind gust speed in m/s, when the forecast
	// endpoint reports one.
	Gusts     *float64 `json:"gusts,omitempty"`
	WaterTemp *float64 `json:"waterTemp,omitempty"`
}

// Client fetches forecasts from open-meteo with a TTL cache in front.
// Everything here is best-effort: a failure never blocks a check-in flow,
// callers render "data unavailable" instead.
type Client struct {
	cfg    *config.WeatherConfig
	client *http.Client
	cache  *cache.Cache
}

// NewClient creates a forecast client.
func NewClient(cfg *config.WeatherConfig) *Client {
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		cache:  cache.New(ttl, 2*ttl),
	}
}

type forecastResponse struct {
	CurrentWeather *struct {
		WindSpeed     float64 `json:"windspeed"`
		WindDirection float64 `json:"winddirection"`
	} `json:"current_weather"`
	Hourly struct {
		WindGusts []float64 `json:"windgusts_10m"`
	} `json:"hourly"`
}

type marineResponse struct {
	Hourly struct {
		SeaSurfaceTemperature []float64 `json:"sea_surface_temperature"`
	} `json:"hourly"`
}

// Forecast returns the current conditions for the point. Results are cached
// by rounded coordinates so nearby lookups share an entry.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) (*Forecast, error) {
	key := fmt.Sprintf("%.3f,%.3f", lat, lon)
	if cached, found := c.cache.Get(key); found {
		return cached.(*Forecast), nil
	}

	windURL := fmt.Sprintf("%s?latitude=%f&longitude=%f&current_weather=true&hourly=windgusts_10m&windspeed_unit=ms&timezone=auto",
		c.cfg.ForecastURL, lat, lon)
	var wind forecastResponse
	if err := c.getJSON(ctx, windURL, &wind); err != nil {
		return nil, fmt.Errorf("wind forecast failed: %w", err)
	}
	if wind.CurrentWeather == nil {
		return nil, fmt.Errorf("wind forecast response missing current_weather")
	}

	forecast := &Forecast{
		WindSpeed:     wind.CurrentWeather.WindSpeed,
		WindDirection: wind.CurrentWeather.WindDirection,
	}
	if len(wind.Hourly.WindGusts) > 0 {
		gusts := wind.Hourly.WindGusts[0]
		forecast.Gusts = &gusts
	}

	// Water temperature is optional; inland points simply have none.
	marineURL := fmt.Sprintf("%s?latitude=%f&longitude=%f&hourly=sea_surface_temperature",
		c.cfg.MarineURL, lat, lon)
	var marine marineResponse
	if err := c.getJSON(ctx, marineURL, &marine); err != nil {
		log.Printf("Warning: marine forecast unavailable for %s: %v", key, err)
	} else if len(marine.Hourly.SeaSurfaceTemperature) > 0 {
		temp := marine.Hourly.SeaSurfaceTemperature[0]
		forecast.WaterTemp = &temp
	}

	c.cache.SetDefault(key, forecast)
	return forecast, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

var compass = []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// DirectionText converts wind direction in degrees to a compass point.
func DirectionText(degrees float64) string {
	index := int(degrees/45+0.5) % 8
	return compass[index]
}
