package balloon

import (
	"errors"
	"fmt"
	"time"
)

var errIndexOutOfRange = errors.New("series index out of range")

// SeriesIndex maps an hour-offset to its index in a wind series that starts
// at local midnight of the previous day in tz and spans two days.
func SeriesIndex(now time.Time, tz *time.Location, hour int) int {
	if tz == nil {
		tz = time.UTC
	}
	return now.In(tz).Hour() + HourCount - hour
}

func alignIndex(now time.Time, tz *time.Location, hour, seriesLen int) (int, error) {
	idx := SeriesIndex(now, tz, hour)
	if idx < 0 || idx >= seriesLen {
		return 0, fmt.Errorf("%w: index %d, series length %d", errIndexOutOfRange, idx, seriesLen)
	}
	return idx, nil
}
