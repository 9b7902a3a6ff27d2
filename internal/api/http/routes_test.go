package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/balloon-wind-aggregation/internal/balloon"
)

type stubReader struct {
	agg balloon.Aggregate
}

func (s stubReader) GetCached(context.Context) balloon.Aggregate {
	return s.agg
}

func newTestApp() *fiber.App {
	speed, dir := 12.5, 270.0

	agg := make(balloon.Aggregate, balloon.HourCount)
	for h := 0; h < balloon.HourCount; h++ {
		agg[h] = balloon.Snapshot{Hour: h, Positions: []balloon.Position{
			{Lat: 10, Lon: 20, Altitude: 500, WindSpeed: &speed, WindDirection: &dir},
		}}
	}
	agg[5] = balloon.Snapshot{Hour: 5, Err: &balloon.Error{Kind: balloon.KindFetch, Hour: 5, Status: 503, Message: "unexpected status code: 503"}}

	app := fiber.New()
	RegisterRoutes(app, stubReader{agg: agg})
	return app
}

func TestAggregateEndpoint(t *testing.T) {
	app := newTestApp()

	for _, path := range []string{"/data", "/api/v1/balloons"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var got map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Len(t, got, balloon.HourCount)

		var errStr string
		require.NoError(t, json.Unmarshal(got["5"], &errStr))
		assert.Contains(t, errStr, "503")

		var positions []map[string]float64
		require.NoError(t, json.Unmarshal(got["0"], &positions))
		require.Len(t, positions, 1)
		assert.Equal(t, map[string]float64{
			"lat": 10, "lon": 20, "altitude": 500, "wind_speed": 12.5, "wind_direction": 270,
		}, positions[0])
	}
}

func TestHourEndpoint(t *testing.T) {
	app := newTestApp()

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/balloons/0", http.StatusOK},
		{"/api/v1/balloons/23", http.StatusOK},
		{"/api/v1/balloons/5", http.StatusBadGateway},
		{"/api/v1/balloons/24", http.StatusBadRequest},
		{"/api/v1/balloons/-1", http.StatusBadRequest},
		{"/api/v1/balloons/abc", http.StatusBadRequest},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tt.want, resp.StatusCode, tt.path)
	}
}
