package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestAggregateModerateBuy
func TestAggregateModerateBuy(t *testing.T) {
	snap, err := Aggregate("EURUSD", Interval1Hour, Counts{Buy: 8, Sell: 2}, Counts{Buy: 6, Sell: 4})
	require.NoError(t, err)

	assert.Equal(t, 40.0, snap.Confidence.Level)
	assert.Equal(t, DirectionBuy, snap.Confidence.Direction)
	assert.Equal(t, StrengthModerate, snap.Confidence.Strength)
	assert.Equal(t, "EURUSD", snap.Symbol)
	assert.Equal(t, Interval1Hour, snap.Interval)
	assert.False(t, snap.ComputedAt.IsZero())
}

// go test -v --run TestAggregateTable
func TestAggregateTable(t *testing.T) {
	tests := []struct {
		name     string
		ma, osc  Counts
		level    float64
		dir      Direction
		strength Strength
	}{
		{"no votes", Counts{}, Counts{}, 0, DirectionNeutral, StrengthWeak},
		{"only neutral", Counts{Neutral: 5}, Counts{Neutral: 3}, 0, DirectionNeutral, StrengthWeak},
		{"tie", Counts{Buy: 3, Sell: 1}, Counts{Buy: 1, Sell: 3}, 0, DirectionNeutral, StrengthWeak},
		{"unanimous sell", Counts{Sell: 10}, Counts{Sell: 5}, 100, DirectionSell, StrengthStrong},
		{"weak sell", Counts{Buy: 4, Sell: 5, Neutral: 1}, Counts{}, 10, DirectionSell, StrengthWeak},
		{"strong boundary", Counts{Buy: 83, Sell: 17}, Counts{}, 66, DirectionBuy, StrengthStrong},
		{"moderate boundary", Counts{Buy: 33}, Counts{Neutral: 67}, 33, DirectionBuy, StrengthModerate},
		{"neutral dilutes", Counts{Buy: 2, Neutral: 8}, Counts{Neutral: 10}, 10, DirectionBuy, StrengthWeak},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Aggregate("XAUUSD", IntervalDaily, tt.ma, tt.osc)
			require.NoError(t, err)
			assert.InDelta(t, tt.level, snap.Confidence.Level, 1e-9)
			assert.Equal(t, tt.dir, snap.Confidence.Direction)
			assert.Equal(t, tt.strength, snap.Confidence.Strength)
		})
	}
}

// go test -v --run TestAggregateRejectsBadInput
func TestAggregateRejectsBadInput(t *testing.T) {
	_, err := Aggregate("EURUSD", "7m", Counts{}, Counts{})
	require.ErrorIs(t, err, ErrInvalidInterval)

	_, err = Aggregate("EURUSD", Interval5Min, Counts{Buy: -1}, Counts{})
	require.ErrorIs(t, err, ErrInvalidCounts)

	_, err = Aggregate("EURUSD", Interval5Min, Counts{}, Counts{Neutral: -2})
	require.ErrorIs(t, err, ErrInvalidCounts)

	_, err = Aggregate("", Interval5Min, Counts{}, Counts{})
	require.Error(t, err)
}

// go test -v --run TestParseInterval
func TestParseInterval(t *testing.T) {
	for _, code := range []string{"1m", "5m", "15m", "30m", "1h", "2h", "4h", "1d", "1w", "1M"} {
		meta, err := ParseInterval(code)
		require.NoError(t, err, code)
		assert.Equal(t, Interval(code), meta.Code)
		assert.Positive(t, meta.Duration)
	}

	minute, _ := ParseInterval("1m")
	month, _ := ParseInterval("1M")
	assert.Less(t, minute.Duration, month.Duration)

	_, err := ParseInterval("3m")
	require.ErrorIs(t, err, ErrInvalidInterval)
}
