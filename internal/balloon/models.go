package balloon

import (
	"encoding/json"
)

const (
	// HourCount is the number of hourly snapshots the constellation feed exposes.
	HourCount = 24

	// MaxBatchSize caps the number of coordinates sent in one wind request.
	MaxBatchSize = 200
)

// Coordinate is a point submitted to the wind enrichment API.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Position is one balloon position, optionally enriched with wind data.
// WindSpeed and WindDirection are either both set or both nil.
type Position struct {
	Lat           float64  `json:"lat"`
	Lon           float64  `json:"lon"`
	Altitude      float64  `json:"altitude"`
	WindSpeed     *float64 `json:"wind_speed,omitempty"`
	WindDirection *float64 `json:"wind_direction,omitempty"`
}

// Coordinate returns the position's latitude/longitude pair.
func (p Position) Coordinate() Coordinate {
	return Coordinate{Lat: p.Lat, Lon: p.Lon}
}

// HasWind reports whether the position carries wind attributes.
func (p Position) HasWind() bool {
	return p.WindSpeed != nil && p.WindDirection != nil
}

func (p *Position) setWind(speed, direction *float64) {
	if speed == nil || direction == nil {
		p.WindSpeed, p.WindDirection = nil, nil
		return
	}
	s, d := *speed, *direction
	p.WindSpeed, p.WindDirection = &s, &d
}

// WindSeries is the hourly wind forecast returned for a single coordinate.
// Entries are nil where the API reported no value.
type WindSeries struct {
	Speed     []*float64
	Direction []*float64
}

// Snapshot is one hour's result: either a list of positions or an error.
type Snapshot struct {
	Hour      int
	Positions []Position
	// Skipped counts raw entries that were not valid positions.
	Skipped int
	Err     *Error
}

// Failed reports whether the snapshot is an error value.
func (s Snapshot) Failed() bool {
	return s.Err != nil
}

// MarshalJSON renders a failed snapshot as its error string and a
// successful one as its position list.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.Err != nil {
		return json.Marshal(s.Err.Error())
	}
	if s.Positions == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Positions)
}

// Aggregate maps hour-offset to that hour's snapshot. A complete aggregate
// always holds HourCount entries.
type Aggregate map[int]Snapshot

// Succeeded returns the number of hours that are not error values.
func (a Aggregate) Succeeded() int {
	n := 0
	for _, snap := range a {
		if !snap.Failed() {
			n++
		}
	}
	return n
}
