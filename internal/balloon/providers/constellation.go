package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/balloon-wind-aggregation/internal/balloon"
	"github.com/i474232898/balloon-wind-aggregation/internal/common"
)

// DefaultFeedURL is the base URL of the constellation feed.
const DefaultFeedURL = "https://a.windbornesystems.com/treasure"

// ConstellationFeed implements balloon.FeedSource over the hourly JSON feed.
type ConstellationFeed struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewConstellationFeed(client *http.Client, baseURL string) *ConstellationFeed {
	if baseURL == "" {
		baseURL = DefaultFeedURL
	}

	return &ConstellationFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff,
		},
		circuit: newFeedBreaker(DefaultCircuitTimeout),
	}
}

// Individual hours fail routinely; only trip when two whole cycles failed.
func newFeedBreaker(openTimeout time.Duration) *gobreaker.CircuitBreaker {
	return newCircuitBreaker("constellation", 2*balloon.HourCount, balloon.HourCount, openTimeout)
}

// SetCircuitTimeout replaces the breaker with one that stays open for d.
func (f *ConstellationFeed) SetCircuitTimeout(d time.Duration) {
	f.circuit = newFeedBreaker(d)
}

// SetBackoff overrides the retry policy.
func (f *ConstellationFeed) SetBackoff(b BackoffConfig) {
	f.httpCfg.Backoff = b
}

// HourURL returns the resource URL for an hour-offset.
func (f *ConstellationFeed) HourURL(hour int) string {
	return fmt.Sprintf("%s/%02d.json", f.baseURL, hour)
}

// FetchHour downloads and sanitizes the snapshot for one hour-offset.
func (f *ConstellationFeed) FetchHour(ctx context.Context, hour int) ([]any, error) {
	if hour < 0 || hour >= balloon.HourCount {
		return nil, fmt.Errorf("hour %d out of range [0,%d]", hour, balloon.HourCount-1)
	}

	u := f.HourURL(hour)
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, f.httpCfg, f.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}

	var payload any
	if err := json.Unmarshal(common.NormalizeNonFinite(body), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", balloon.ErrInvalidJSON, err)
	}

	entries, ok := common.Sanitize(payload).([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected array, got %T", balloon.ErrInvalidJSON, payload)
	}
	return entries, nil
}

// CloseIdleConnections releases pooled connections held by the client.
func (f *ConstellationFeed) CloseIdleConnections() {
	if f.httpCfg.Client != nil {
		f.httpCfg.Client.CloseIdleConnections()
	}
}
