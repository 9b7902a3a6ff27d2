package balloon

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// parsePositions converts sanitized feed entries into positions. Entries that
// are not arrays of at least three finite numbers are skipped. A partly valid
// entry such as [lat, lon, "NaN"] is dropped whole; a position is never kept
// with a missing coordinate or altitude.
func parsePositions(raw []any) ([]Position, int) {
	positions := make([]Position, 0, len(raw))
	skipped := 0

	for _, entry := range raw {
		p, ok := parsePosition(entry)
		if !ok {
			skipped++
			continue
		}
		positions = append(positions, p)
	}
	return positions, skipped
}

func parsePosition(entry any) (Position, bool) {
	fields, ok := entry.([]any)
	if !ok || len(fields) < 3 {
		return Position{}, false
	}

	var vals [3]float64
	for i := range vals {
		f, ok := fields[i].(float64)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return Position{}, false
		}
		vals[i] = f
	}

	return Position{Lat: vals[0], Lon: vals[1], Altitude: vals[2]}, true
}

// FetchAggregate runs one aggregation cycle: all hours are fetched
// concurrently and enriched independently. The result always holds exactly
// HourCount entries; failed hours carry an *Error.
func (s *Service) FetchAggregate(ctx context.Context) Aggregate {
	cycleID := uuid.New().String()
	start := time.Now()
	now := s.now()

	// Upstream connections live for the duration of one cycle.
	defer s.releaseConnections()

	log.Printf("DEBUG: service: cycle %s started", cycleID)

	var wg sync.WaitGroup
	snapshots := make([]Snapshot, HourCount)

	for hour := 0; hour < HourCount; hour++ {
		hour := hour
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshots[hour] = s.fetchHour(ctx, hour, now)
		}()
	}

	wg.Wait()

	agg := make(Aggregate, HourCount)
	for _, snap := range snapshots {
		if snap.Failed() {
			log.Printf("ERROR: service: cycle %s: %v", cycleID, snap.Err)
		}
		agg[snap.Hour] = snap
	}

	log.Printf("INFO: service: cycle %s finished in %s, %d/%d hours ok",
		cycleID, time.Since(start).Round(time.Millisecond), agg.Succeeded(), HourCount)
	return agg
}

func (s *Service) fetchHour(ctx context.Context, hour int, now time.Time) Snapshot {
	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.HourTimeout)
	raw, err := s.feed.FetchHour(fetchCtx, hour)
	cancel()
	if err != nil {
		return Snapshot{Hour: hour, Err: classifyFetchError(hour, err)}
	}

	positions, skipped := parsePositions(raw)

	enriched, herr := s.enricher.Enrich(ctx, hour, now, positions)
	if herr != nil {
		return Snapshot{Hour: hour, Err: herr}
	}

	return Snapshot{Hour: hour, Positions: enriched, Skipped: skipped}
}

func (s *Service) releaseConnections() {
	for _, src := range []any{s.feed, s.wind} {
		if c, ok := src.(idleCloser); ok {
			c.CloseIdleConnections()
		}
	}
}
