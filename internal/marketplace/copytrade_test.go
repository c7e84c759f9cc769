package marketplace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func newTestMapper(constraints Constraints) *Mapper {
	m := NewMapper(constraints)
	m.now = func() time.Time { return fixedNow }
	return m
}

func freshSignal() Signal {
	return Signal{
		SignalID:   "sig_1",
		StrategyID: "strat_a",
		TS:         fixedNow.Add(-30 * time.Second).Format(time.RFC3339),
		Symbol:     "ETHUSDm",
		Timeframe:  "5m",
		Action:     ActionOpen,
		Side:       "buy",
		Volume:     0.3,
		Entry:      2500,
		StopLoss:   2450,
		TakeProfit: 2600,
	}
}

func defaultConstraints() Constraints {
	return Constraints{
		AllowedSymbols:      []string{"ETHUSDm"},
		MaxVolume:           0.2,
		DirectionFilter:     DirectionBoth,
		MaxSignalAgeSeconds: 300,
	}
}

func TestMapSignalProducesClampedIntent(t *testing.T) {
	mapper := newTestMapper(defaultConstraints())

	result, err := mapper.MapSignal(freshSignal(), "acct_follower")
	require.NoError(t, err)
	require.NotNil(t, result.Intent)
	assert.Nil(t, result.BlockedReason)
	assert.False(t, result.Deduped)

	intent := result.Intent
	assert.Equal(t, "acct_follower", intent.AccountID)
	assert.Equal(t, "PLACE_MARKET_ORDER", intent.Action)
	assert.Equal(t, 0.2, intent.Volume) // clamped to maxVolume
	require.NotNil(t, intent.StopLoss)
	assert.Equal(t, 2450.0, *intent.StopLoss)
	require.NotNil(t, intent.TakeProfit)
	assert.Equal(t, 2600.0, *intent.TakeProfit)

	assert.Equal(t, 1, mapper.ProcessedCount())
}

func TestMapSignalDedupesPermanently(t *testing.T) {
	mapper := newTestMapper(defaultConstraints())

	_, err := mapper.MapSignal(freshSignal(), "acct")
	require.NoError(t, err)

	result, err := mapper.MapSignal(freshSignal(), "acct")
	require.NoError(t, err)
	assert.True(t, result.Deduped)
	assert.Nil(t, result.Intent)
}

func TestMapSignalBlocks(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Signal, *Constraints)
		wantBlocked string
	}{
		{
			"non-open action",
			func(s *Signal, _ *Constraints) { s.Action = ActionClose },
			BlockUnsupportedAction,
		},
		{
			"symbol not allowed",
			func(s *Signal, _ *Constraints) { s.Symbol = "XAUUSDm" },
			BlockSymbolNotAllowed,
		},
		{
			"long-only blocks sell",
			func(s *Signal, c *Constraints) {
				s.Side = "sell"
				c.DirectionFilter = DirectionLongOnly
			},
			BlockDirectionFilter,
		},
		{
			"short-only blocks buy",
			func(s *Signal, c *Constraints) { c.DirectionFilter = DirectionShortOnly },
			BlockDirectionFilter,
		},
		{
			"stale signal",
			func(s *Signal, _ *Constraints) {
				s.TS = fixedNow.Add(-301 * time.Second).Format(time.RFC3339)
			},
			BlockSignalStale,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal := freshSignal()
			constraints := defaultConstraints()
			tt.mutate(&signal, &constraints)

			mapper := newTestMapper(constraints)
			result, err := mapper.MapSignal(signal, "acct")
			require.NoError(t, err)
			assert.Nil(t, result.Intent)
			require.NotNil(t, result.BlockedReason)
			assert.Equal(t, tt.wantBlocked, *result.BlockedReason)
			// Blocked signals are not recorded as processed.
			assert.Equal(t, 0, mapper.ProcessedCount())
		})
	}
}

func TestMapSignalAgeBoundaryIsInclusive(t *testing.T) {
	mapper := newTestMapper(defaultConstraints())

	signal := freshSignal()
	signal.TS = fixedNow.Add(-300 * time.Second).Format(time.RFC3339)

	result, err := mapper.MapSignal(signal, "acct")
	require.NoError(t, err)
	assert.NotNil(t, result.Intent)
}

func TestMapSignalTSEqualToNow(t *testing.T) {
	mapper := newTestMapper(defaultConstraints())

	signal := freshSignal()
	signal.TS = fixedNow.Format(time.RFC3339)

	result, err := mapper.MapSignal(signal, "acct")
	require.NoError(t, err)
	assert.NotNil(t, result.Intent)
}

func TestMapSignalInvalidTimestamp(t *testing.T) {
	mapper := newTestMapper(defaultConstraints())

	signal := freshSignal()
	signal.TS = "yesterday"

	_, err := mapper.MapSignal(signal, "acct")
	assert.Error(t, err)
}

func TestCatalogSignalsShape(t *testing.T) {
	signals := CatalogSignals(fixedNow)
	require.Len(t, signals, 2)
	for _, signal := range signals {
		assert.NotEmpty(t, signal["signalId"])
		assert.NotEmpty(t, signal["strategyId"])
		assert.Equal(t, ActionOpen, signal["action"])
	}
}
