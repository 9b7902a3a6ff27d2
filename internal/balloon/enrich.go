package balloon

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// Enricher attaches wind data to a snapshot's positions by querying the wind
// source in bounded batches.
type Enricher struct {
	wind        WindSource
	batchSize   int
	concurrency int
	partial     bool
	tz          *time.Location
}

// NewEnricher creates an Enricher. When partial is true a failed batch only
// leaves its own positions without wind; otherwise it fails the whole hour.
func NewEnricher(wind WindSource, batchSize, concurrency int, partial bool, tz *time.Location) *Enricher {
	if concurrency <= 0 {
		concurrency = 1
	}
	if tz == nil {
		tz = time.UTC
	}
	return &Enricher{
		wind:        wind,
		batchSize:   batchSize,
		concurrency: concurrency,
		partial:     partial,
		tz:          tz,
	}
}

// Enrich returns a copy of positions with wind fields set from the series
// entry aligned to hour.
func (e *Enricher) Enrich(ctx context.Context, hour int, now time.Time, positions []Position) ([]Position, *Error) {
	out := make([]Position, len(positions))
	copy(out, positions)
	if len(out) == 0 || e.wind == nil {
		return out, nil
	}

	batches := Partition(out, e.batchSize)
	results := make([][]WindSeries, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			coords := make([]Coordinate, len(batch))
			for j, p := range batch {
				coords[j] = p.Coordinate()
			}

			series, err := e.wind.FetchWind(gctx, coords)
			if err == nil && len(series) != len(coords) {
				err = fmt.Errorf("wind response has %d series for %d coordinates", len(series), len(coords))
			}
			if err != nil {
				if e.partial {
					log.Printf("ERROR: enricher: hour %02d batch %d left without wind: %v", hour, i, err)
					return nil
				}
				return fmt.Errorf("batch %d: %w", i, err)
			}

			results[i] = series
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, newError(KindEnrichment, hour, err)
	}

	for i, batch := range batches {
		if results[i] == nil {
			continue
		}
		for j := range batch {
			series := results[i][j]
			n := min(len(series.Speed), len(series.Direction))
			idx, err := alignIndex(now, e.tz, hour, n)
			if err != nil {
				return nil, newError(KindAlignment, hour, err)
			}
			batch[j].setWind(series.Speed[idx], series.Direction[idx])
		}
	}

	return out, nil
}
