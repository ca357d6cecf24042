package signal

import (
	"fmt"
	"time"
)

// Interval is the chart timeframe a snapshot was computed for.
type Interval string

// IntervalMeta holds the upstream value and duration of an Interval.
type IntervalMeta struct {
	Code     Interval
	Duration time.Duration
}

const (
	Interval1Min    Interval = "1m"
	Interval5Min    Interval = "5m"
	Interval15Min   Interval = "15m"
	Interval30Min   Interval = "30m"
	Interval1Hour   Interval = "1h"
	Interval2Hour   Interval = "2h"
	Interval4Hour   Interval = "4h"
	IntervalDaily   Interval = "1d"
	IntervalWeekly  Interval = "1w"
	IntervalMonthly Interval = "1M"
)

var validIntervals = map[Interval]IntervalMeta{
	Interval1Min:    {Code: Interval1Min, Duration: time.Minute},
	Interval5Min:    {Code: Interval5Min, Duration: 5 * time.Minute},
	Interval15Min:   {Code: Interval15Min, Duration: 15 * time.Minute},
	Interval30Min:   {Code: Interval30Min, Duration: 30 * time.Minute},
	Interval1Hour:   {Code: Interval1Hour, Duration: time.Hour},
	Interval2Hour:   {Code: Interval2Hour, Duration: 2 * time.Hour},
	Interval4Hour:   {Code: Interval4Hour, Duration: 4 * time.Hour},
	IntervalDaily:   {Code: IntervalDaily, Duration: 24 * time.Hour},
	IntervalWeekly:  {Code: IntervalWeekly, Duration: 7 * 24 * time.Hour},
	IntervalMonthly: {Code: IntervalMonthly, Duration: 30 * 24 * time.Hour}, // 30 days
}

// IsValid reports whether i is one of the supported intervals.
func (i Interval) IsValid() bool {
	_, ok := validIntervals[i]
	return ok
}

// ParseInterval parses a string such as "15m" or "1M". Case matters: "1m" is a
// minute, "1M" a month.
func ParseInterval(s string) (IntervalMeta, error) {
	meta, ok := validIntervals[Interval(s)]
	if !ok {
		return IntervalMeta{}, fmt.Errorf("interval %q: %w", s, ErrInvalidInterval)
	}
	return meta, nil
}
