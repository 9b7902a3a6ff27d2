package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/balloon-wind-aggregation/internal/balloon"
	"github.com/i474232898/balloon-wind-aggregation/internal/common"
)

var fastBackoff = BackoffConfig{
	MaxRetries:      2,
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
}

func newTestFeed(t *testing.T, handler http.HandlerFunc) *ConstellationFeed {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	feed := NewConstellationFeed(srv.Client(), srv.URL+"/")
	feed.SetBackoff(fastBackoff)
	return feed
}

func TestConstellationFeedHourURL(t *testing.T) {
	feed := NewConstellationFeed(http.DefaultClient, "https://example.com/treasure/")
	assert.Equal(t, "https://example.com/treasure/00.json", feed.HourURL(0))
	assert.Equal(t, "https://example.com/treasure/07.json", feed.HourURL(7))
	assert.Equal(t, "https://example.com/treasure/23.json", feed.HourURL(23))
}

func TestConstellationFeedFetchHour(t *testing.T) {
	tests := []struct {
		name       string
		hour       int
		handler    http.HandlerFunc
		wantLen    int
		wantStatus int
		wantJSON   bool
	}{
		{
			name: "valid array with placeholders",
			hour: 3,
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/03.json" {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				fmt.Fprint(w, `[[10.0,20.0,500.0],["invalid"],[NaN,1.0,2.0]]`)
			},
			wantLen: 3,
		},
		{
			name: "service unavailable",
			hour: 5,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name: "not found",
			hour: 1,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "corrupted body",
			hour: 0,
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `[[1.0,2.0,3.0],`)
			},
			wantJSON: true,
		},
		{
			name: "object instead of array",
			hour: 0,
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"balloons":[]}`)
			},
			wantJSON: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := newTestFeed(t, tt.handler)

			entries, err := feed.FetchHour(context.Background(), tt.hour)

			switch {
			case tt.wantStatus != 0:
				var se *balloon.StatusError
				require.True(t, errors.As(err, &se), "expected StatusError, got %v", err)
				assert.Equal(t, tt.wantStatus, se.Code)
			case tt.wantJSON:
				assert.ErrorIs(t, err, balloon.ErrInvalidJSON)
			default:
				require.NoError(t, err)
				assert.Len(t, entries, tt.wantLen)
			}
		})
	}
}

func TestConstellationFeedSanitizesNonFinite(t *testing.T) {
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[[NaN,Infinity,-Infinity],[1.5,2.5,3.5]]`)
	})

	entries, err := feed.FetchHour(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, []any{common.NonFiniteSentinel, common.NonFiniteSentinel, common.NonFiniteSentinel}, entries[0])
	assert.Equal(t, []any{1.5, 2.5, 3.5}, entries[1])
}

func TestConstellationFeedRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `[[1.0,2.0,3.0]]`)
	})

	entries, err := feed.FetchHour(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, int32(3), hits.Load())
}

func TestConstellationFeedDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := feed.FetchHour(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestConstellationFeedRejectsOutOfRangeHour(t *testing.T) {
	feed := NewConstellationFeed(http.DefaultClient, "")

	_, err := feed.FetchHour(context.Background(), 24)
	assert.Error(t, err)

	_, err = feed.FetchHour(context.Background(), -1)
	assert.Error(t, err)
}

func TestConstellationFeedRecoversAfterCircuitTimeout(t *testing.T) {
	var healthy atomic.Bool
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[[1.0,2.0,3.0]]`)
	})
	feed.SetCircuitTimeout(50 * time.Millisecond)

	var err error
	for hour := 0; hour < balloon.HourCount; hour++ {
		if _, err = feed.FetchHour(context.Background(), hour); errors.Is(err, errCircuitOpen) {
			break
		}
	}
	require.ErrorIs(t, err, errCircuitOpen)
	assert.Equal(t, gobreaker.StateOpen, feed.circuit.State())

	healthy.Store(true)
	time.Sleep(80 * time.Millisecond)

	entries, err := feed.FetchHour(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, gobreaker.StateClosed, feed.circuit.State())
}

func TestConstellationFeedErrorsNameTheSource(t *testing.T) {
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := feed.FetchHour(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constellation")
}
