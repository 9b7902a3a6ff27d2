package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/balloon-wind-aggregation/internal/balloon"
)

const (
	// DefaultOpenMeteoURL is the Open-Meteo forecast endpoint.
	DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

	// DefaultWindLevel is the altitude, in meters, of the queried wind fields.
	DefaultWindLevel = 180
)

// OpenMeteoProvider implements balloon.WindSource for Open-Meteo.
type OpenMeteoProvider struct {
	baseURL  string
	level    int
	timezone string
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
}

// NewOpenMeteoProvider creates a wind client. The timezone must match the
// reference timezone used for alignment. A nil limiter disables rate limiting.
func NewOpenMeteoProvider(client *http.Client, baseURL string, level int, tz *time.Location, limiter *rate.Limiter) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoURL
	}
	if level <= 0 {
		level = DefaultWindLevel
	}
	if tz == nil {
		tz = time.UTC
	}

	return &OpenMeteoProvider{
		baseURL:  baseURL,
		level:    level,
		timezone: tz.String(),
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff,
		},
		circuit: newWindBreaker(DefaultCircuitTimeout),
		limiter: limiter,
	}
}

// A cycle sends at least one batch per hour and each batch may use every
// retry; only trip when a whole cycle's worth of attempts failed in a row.
func newWindBreaker(openTimeout time.Duration) *gobreaker.CircuitBreaker {
	tripAfter := uint32(balloon.HourCount * (defaultBackoff.MaxRetries + 1))
	return newCircuitBreaker("openmeteo", tripAfter, 5, openTimeout)
}

// SetCircuitTimeout replaces the breaker with one that stays open for d.
func (p *OpenMeteoProvider) SetCircuitTimeout(d time.Duration) {
	p.circuit = newWindBreaker(d)
}

// SetBackoff overrides the retry policy.
func (p *OpenMeteoProvider) SetBackoff(b BackoffConfig) {
	p.httpCfg.Backoff = b
}

func (p *OpenMeteoProvider) speedField() string {
	return fmt.Sprintf("wind_speed_%dm", p.level)
}

func (p *OpenMeteoProvider) directionField() string {
	return fmt.Sprintf("wind_direction_%dm", p.level)
}

// Query builds the query string for a batch of coordinates.
func (p *OpenMeteoProvider) Query(coords []balloon.Coordinate) url.Values {
	lats := make([]string, len(coords))
	lons := make([]string, len(coords))
	for i, c := range coords {
		lats[i] = strconv.FormatFloat(c.Lat, 'f', -1, 64)
		lons[i] = strconv.FormatFloat(c.Lon, 'f', -1, 64)
	}

	values := url.Values{}
	values.Set("latitude", strings.Join(lats, ","))
	values.Set("longitude", strings.Join(lons, ","))
	values.Set("hourly", p.speedField()+","+p.directionField())
	values.Set("timezone", p.timezone)
	values.Set("past_days", "1")
	values.Set("forecast_days", "1")
	return values
}

// FetchWind returns one wind series per coordinate, in request order.
func (p *OpenMeteoProvider) FetchWind(ctx context.Context, coords []balloon.Coordinate) ([]balloon.WindSeries, error) {
	if len(coords) == 0 {
		return nil, nil
	}
	if len(coords) > balloon.MaxBatchSize {
		return nil, fmt.Errorf("openmeteo: batch of %d exceeds %d coordinates", len(coords), balloon.MaxBatchSize)
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait canceled: %w", err)
		}
	}

	u := fmt.Sprintf("%s?%s", p.baseURL, p.Query(coords).Encode())
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openmeteo: read body: %w", err)
	}

	locations, err := decodeLocations(body)
	if err != nil {
		return nil, err
	}

	series := make([]balloon.WindSeries, 0, len(locations))
	for i, loc := range locations {
		var s balloon.WindSeries
		if err := decodeHourly(loc.Hourly, p.speedField(), &s.Speed); err != nil {
			return nil, fmt.Errorf("openmeteo: location %d: %w", i, err)
		}
		if err := decodeHourly(loc.Hourly, p.directionField(), &s.Direction); err != nil {
			return nil, fmt.Errorf("openmeteo: location %d: %w", i, err)
		}
		series = append(series, s)
	}

	return series, nil
}

// CloseIdleConnections releases pooled connections held by the client.
func (p *OpenMeteoProvider) CloseIdleConnections() {
	if p.httpCfg.Client != nil {
		p.httpCfg.Client.CloseIdleConnections()
	}
}

type openMeteoLocation struct {
	Hourly map[string]json.RawMessage `json:"hourly"`
}

// decodeLocations accepts both response shapes: a single object for one
// coordinate and an array for several.
func decodeLocations(body []byte) ([]openMeteoLocation, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", balloon.ErrInvalidJSON)
	}

	if trimmed[0] == '[' {
		var locs []openMeteoLocation
		if err := json.Unmarshal(trimmed, &locs); err != nil {
			return nil, fmt.Errorf("%w: %v", balloon.ErrInvalidJSON, err)
		}
		return locs, nil
	}

	var loc openMeteoLocation
	if err := json.Unmarshal(trimmed, &loc); err != nil {
		return nil, fmt.Errorf("%w: %v", balloon.ErrInvalidJSON, err)
	}
	return []openMeteoLocation{loc}, nil
}

func decodeHourly(hourly map[string]json.RawMessage, field string, dst *[]*float64) error {
	raw, ok := hourly[field]
	if !ok {
		return fmt.Errorf("missing hourly field %q", field)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: hourly.%s: %v", balloon.ErrInvalidJSON, field, err)
	}
	return nil
}
