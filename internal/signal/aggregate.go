// Package signal turns indicator vote counts into a directional confidence score.
package signal

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInterval = errors.New("invalid interval")
	ErrInvalidCounts   = errors.New("invalid counts")
)

// Direction is the side the indicator votes lean to.
type Direction string

const (
	DirectionBuy     Direction = "BUY"
	DirectionSell    Direction = "SELL"
	DirectionNeutral Direction = "NEUTRAL"
)

// Strength buckets a confidence level against the fixed thresholds.
type Strength string

const (
	StrengthStrong   Strength = "STRONG"
	StrengthModerate Strength = "MODERATE"
	StrengthWeak     Strength = "WEAK"
)

// Strength tier lower bounds on Confidence.Level.
const (
	StrongThreshold   = 66.0
	ModerateThreshold = 33.0
)

// Counts are the buy/sell/neutral votes of one indicator family.
type Counts struct {
	Buy     int `json:"buy"`
	Sell    int `json:"sell"`
	Neutral int `json:"neutral"`
}

func (c Counts) total() int { return c.Buy + c.Sell + c.Neutral }

func (c Counts) validate() error {
	if c.Buy < 0 || c.Sell < 0 || c.Neutral < 0 {
		return fmt.Errorf("%+v: %w", c, ErrInvalidCounts)
	}
	return nil
}

// Confidence is the aggregated reading for one symbol and interval.
type Confidence struct {
	Level     float64   `json:"level"`
	Direction Direction `json:"direction"`
	Strength  Strength  `json:"strength"`
}

// Snapshot is an immutable confidence reading for one symbol and interval.
type Snapshot struct {
	Symbol         string     `json:"symbol"`
	Interval       Interval   `json:"interval"`
	MovingAverages Counts     `json:"movingAverages"`
	Oscillators    Counts     `json:"oscillators"`
	Confidence     Confidence `json:"confidence"`
	ComputedAt     time.Time  `json:"computedAt"`
}

// Aggregate combines moving-average and oscillator votes into a Snapshot.
// The level is |buy - sell| / total * 100 over both families, 0 when there
// are no votes at all.
func Aggregate(symbol string, interval Interval, ma, osc Counts) (Snapshot, error) {
	if symbol == "" {
		return Snapshot{}, errors.New("symbol is required")
	}
	if !interval.IsValid() {
		return Snapshot{}, fmt.Errorf("interval %q: %w", interval, ErrInvalidInterval)
	}
	if err := ma.validate(); err != nil {
		return Snapshot{}, fmt.Errorf("moving averages %w", err)
	}
	if err := osc.validate(); err != nil {
		return Snapshot{}, fmt.Errorf("oscillators %w", err)
	}

	return Snapshot{
		Symbol:         symbol,
		Interval:       interval,
		MovingAverages: ma,
		Oscillators:    osc,
		Confidence:     score(ma, osc),
		ComputedAt:     time.Now().UTC(),
	}, nil
}

func score(ma, osc Counts) Confidence {
	buy := ma.Buy + osc.Buy
	sell := ma.Sell + osc.Sell
	total := ma.total() + osc.total()

	var level float64
	if total > 0 {
		diff := buy - sell
		if diff < 0 {
			diff = -diff
		}
		level = float64(diff) * 100 / float64(total)
	}

	dir := DirectionNeutral
	switch {
	case buy > sell:
		dir = DirectionBuy
	case sell > buy:
		dir = DirectionSell
	}

	return Confidence{Level: level, Direction: dir, Strength: strengthOf(level)}
}

func strengthOf(level float64) Strength {
	switch {
	case level >= StrongThreshold:
		return StrengthStrong
	case level >= ModerateThreshold:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}
