package feeds

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFeedsCatalog(t *testing.T) {
	service := NewService()

	feeds := service.ListFeeds()
	require.Len(t, feeds, 2)
	assert.Equal(t, "market.candles", feeds[0]["feedId"])
	assert.Equal(t, "trading.executions", feeds[1]["feedId"])
}

func TestSubscribeUnsubscribeLifecycle(t *testing.T) {
	service := NewService()

	subscription := service.Subscribe(
		[]string{"market.candle.closed"},
		[]string{"ETHUSDm"},
		[]string{"5m"},
	)
	assert.True(t, strings.HasPrefix(subscription.SubscriptionID, "sub_"))
	assert.Len(t, subscription.SubscriptionID, len("sub_")+10)
	assert.NotEmpty(t, subscription.CreatedAt)

	subs := service.ListSubscriptions()
	require.Len(t, subs, 1)
	assert.Equal(t, subscription.SubscriptionID, subs[0].SubscriptionID)

	assert.True(t, service.Unsubscribe(subscription.SubscriptionID))
	assert.False(t, service.Unsubscribe(subscription.SubscriptionID))
	assert.Empty(t, service.ListSubscriptions())
}

func TestGetCandlesShape(t *testing.T) {
	service := NewService()
	service.now = func() time.Time { return time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC) }

	candles := service.GetCandles("ETHUSDm", "5m", 4)
	require.Len(t, candles, 4)

	for i, candle := range candles {
		assert.Equal(t, "ETHUSDm", candle.Symbol)
		assert.Equal(t, "5m", candle.Timeframe)
		assert.GreaterOrEqual(t, candle.High, candle.Open)
		assert.GreaterOrEqual(t, candle.High, candle.Close)
		assert.LessOrEqual(t, candle.Low, candle.Open)
		assert.LessOrEqual(t, candle.Low, candle.Close)

		if i > 0 {
			prev, err := time.Parse(time.RFC3339, candles[i-1].TS)
			require.NoError(t, err)
			current, err := time.Parse(time.RFC3339, candle.TS)
			require.NoError(t, err)
			assert.Equal(t, 5*time.Minute, current.Sub(prev))
		}
	}

	// Deterministic: same inputs, same candles.
	again := service.GetCandles("ETHUSDm", "5m", 4)
	assert.Equal(t, candles, again)
}

func TestGetCandlesAlternatesDirection(t *testing.T) {
	service := NewService()

	candles := service.GetCandles("ETHUSDm", "1h", 2)
	require.Len(t, candles, 2)
	assert.Greater(t, candles[0].Close, candles[0].Open) // even index drifts up
	assert.Less(t, candles[1].Close, candles[1].Open)    // odd index drifts down
}

func TestTimeframeToSeconds(t *testing.T) {
	tests := []struct {
		timeframe string
		seconds   int
	}{
		{"1m", 60},
		{"5m", 300},
		{"1h", 3600},
		{"4h", 14400},
		{"1d", 86400},
		{"banana", 60},
		{"", 60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.seconds, timeframeToSeconds(tt.timeframe), tt.timeframe)
	}
}
