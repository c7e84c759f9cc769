// Package feeds owns market-data subscriptions, the synthetic candle
// generator that serves feeds.getCandles, and the hook
// pipeline that turns feed events into agent wake requests and trade
// intents.
package feeds

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var timeframePattern = regexp.MustCompile(`^(\d+)([mhd])$`)

// Subscription is one operator feed subscription.
type Subscription struct {
	SubscriptionID string   `json:"subscriptionId"`
	Topics         []string `json:"topics"`
	Symbols        []string `json:"symbols"`
	Timeframes     []string `json:"timeframes"`
	CreatedAt      string   `json:"createdAt"`
}

// Candle is one synthesized OHLC bar in wire shape.
type Candle struct {
	TS        string  `json:"ts"`
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
}

// Service manages subscriptions and synthesizes candles.
type Service struct {
	mu            sync.Mutex
	subscriptions map[string]*Subscription
	now           func() time.Time
}

// NewService returns an empty feed service.
func NewService() *Service {
	return &Service{
		subscriptions: make(map[string]*Subscription),
		now:           time.Now,
	}
}

// ListFeeds returns the feed catalog.
func (s *Service) ListFeeds() []map[string]any {
	return []map[string]any{
		{
			"feedId": "market.candles",
			"kind":   "market",
			"topics": []string{"market.candle.closed", "market.tick"},
		},
		{
			"feedId": "trading.executions",
			"kind":   "trade",
			"topics": []string{"trade.executed", "trade.rejected"},
		},
	}
}

// Subscribe registers a subscription and returns it.
func (s *Service) Subscribe(topics, symbols, timeframes []string) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	subscription := &Subscription{
		SubscriptionID: "sub_" + shortHex(10),
		Topics:         append([]string(nil), topics...),
		Symbols:        append([]string(nil), symbols...),
		Timeframes:     append([]string(nil), timeframes...),
		CreatedAt:      s.now().UTC().Format(time.RFC3339Nano),
	}
	s.subscriptions[subscription.SubscriptionID] = subscription
	return *subscription
}

// Unsubscribe removes a subscription. Returns false when unknown.
func (s *Service) Unsubscribe(subscriptionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[subscriptionID]; !ok {
		return false
	}
	delete(s.subscriptions, subscriptionID)
	return true
}

// ListSubscriptions returns all active subscriptions.
func (s *Service) ListSubscriptions() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Subscription, 0, len(s.subscriptions))
	for _, subscription := range s.subscriptions {
		out = append(out, *subscription)
	}
	return out
}

// GetCandles synthesizes limit deterministic candles ending at now,
// stepping backwards by the timeframe. The shape is stable so dashboards
// and backtests can rely on it. The gateway's feeds.getCandles always
// serves these candles, even when a broker connector is configured.
func (s *Service) GetCandles(symbol, timeframe string, limit int) []Candle {
	stepSeconds := timeframeToSeconds(timeframe)
	nowEpoch := s.now().UTC().Unix()
	candles := make([]Candle, 0, limit)
	basePrice := 2500.0

	for index := 0; index < limit; index++ {
		tsEpoch := nowEpoch - int64(limit-index)*int64(stepSeconds)
		drift := float64(index) * 1.5
		openPrice := basePrice + drift
		closePrice := openPrice - 0.4
		if index%2 == 0 {
			closePrice = openPrice + 0.8
		}
		highPrice := maxFloat(openPrice, closePrice) + 0.6
		lowPrice := minFloat(openPrice, closePrice) - 0.6
		candles = append(candles, Candle{
			TS:        time.Unix(tsEpoch, 0).UTC().Format(time.RFC3339),
			Symbol:    symbol,
			Timeframe: timeframe,
			Open:      round5(openPrice),
			High:      round5(highPrice),
			Low:       round5(lowPrice),
			Close:     round5(closePrice),
		})
	}
	return candles
}

// Payload is the wire shape of a subscription.
func (s Subscription) Payload() map[string]any {
	return map[string]any{
		"subscriptionId": s.SubscriptionID,
		"topics":         s.Topics,
		"symbols":        s.Symbols,
		"timeframes":     s.Timeframes,
		"createdAt":      s.CreatedAt,
	}
}

// timeframeToSeconds parses strings like "5m", "1h", "1d". Unparseable
// timeframes fall back to one minute.
func timeframeToSeconds(timeframe string) int {
	match := timeframePattern.FindStringSubmatch(timeframe)
	if match == nil {
		return 60
	}
	value, err := strconv.Atoi(match[1])
	if err != nil {
		return 60
	}
	switch match[2] {
	case "m":
		return value * 60
	case "h":
		return value * 60 * 60
	case "d":
		return value * 60 * 60 * 24
	}
	return 60
}

func round5(v float64) float64 {
	formatted, err := strconv.ParseFloat(fmt.Sprintf("%.5f", v), 64)
	if err != nil {
		return v
	}
	return formatted
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func shortHex(n int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if len(id) > n {
		id = id[:n]
	}
	return id
}
