package signal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	mu    sync.Mutex
	votes map[string][2]Counts
	fail  map[string]error
	calls int
}

func (s *stubSource) Counts(_ context.Context, symbol string, _ Interval) (Counts, Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.fail[symbol]; err != nil {
		return Counts{}, Counts{}, err
	}
	v := s.votes[symbol]
	return v[0], v[1], nil
}

func (s *stubSource) set(symbol string, ma, osc Counts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[symbol] = [2]Counts{ma, osc}
}

// go test -v --run TestBoardKeepsNewest
func TestBoardKeepsNewest(t *testing.T) {
	board := NewBoard()
	now := time.Now()

	board.Publish(Snapshot{Symbol: "EURUSD", Interval: Interval1Hour, ComputedAt: now, Confidence: Confidence{Level: 40}})
	board.Publish(Snapshot{Symbol: "EURUSD", Interval: Interval1Hour, ComputedAt: now.Add(-time.Minute), Confidence: Confidence{Level: 90}})
	board.Publish(Snapshot{Symbol: "EURUSD", Interval: IntervalDaily, ComputedAt: now})

	snap, ok := board.Get("EURUSD", Interval1Hour)
	require.True(t, ok)
	assert.Equal(t, 40.0, snap.Confidence.Level)
	assert.Equal(t, 2, board.Len())

	_, ok = board.Get("GBPUSD", Interval1Hour)
	assert.False(t, ok)
}

// go test -v --run TestRefreshOnceKeepsPreviousOnError
func TestRefreshOnceKeepsPreviousOnError(t *testing.T) {
	src := &stubSource{
		votes: map[string][2]Counts{
			"EURUSD": {{Buy: 8, Sell: 2}, {Buy: 6, Sell: 4}},
			"GBPUSD": {{Sell: 9}, {Sell: 1}},
			"USDJPY": {{Buy: -1}, {}},
		},
		fail: map[string]error{},
	}
	board := NewBoard()
	r := &Refresher{
		Source: src,
		Board:  board,
		Targets: []Target{
			{Symbol: "EURUSD", Interval: Interval1Hour},
			{Symbol: "GBPUSD", Interval: Interval1Hour},
			{Symbol: "USDJPY", Interval: Interval1Hour},
		},
	}

	r.RefreshOnce(context.Background())
	assert.Equal(t, 2, board.Len(), "invalid counts are dropped")

	src.fail["EURUSD"] = errors.New("provider down")
	src.set("GBPUSD", Counts{Buy: 1}, Counts{})
	r.RefreshOnce(context.Background())

	eur, ok := board.Get("EURUSD", Interval1Hour)
	require.True(t, ok)
	assert.Equal(t, DirectionBuy, eur.Confidence.Direction)

	gbp, ok := board.Get("GBPUSD", Interval1Hour)
	require.True(t, ok)
	assert.Equal(t, DirectionBuy, gbp.Confidence.Direction)
	assert.Equal(t, StrengthStrong, gbp.Confidence.Strength)
}

// go test -v --run TestRefresherRunStopsOnCancel
func TestRefresherRunStopsOnCancel(t *testing.T) {
	src := &stubSource{votes: map[string][2]Counts{"EURUSD": {{Buy: 1}, {}}}}
	board := NewBoard()
	r := &Refresher{
		Source:   src,
		Board:    board,
		Targets:  []Target{{Symbol: "EURUSD", Interval: Interval5Min}},
		Interval: 5 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls >= 3
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}
	_, ok := board.Get("EURUSD", Interval5Min)
	assert.True(t, ok)
}
