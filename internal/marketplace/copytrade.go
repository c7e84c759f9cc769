// Package marketplace implements the strategy marketplace surface: the
// published-signal catalog stub, session follows, and the copy-trade
// mapper that turns a published signal into a concrete trade intent under
// a follower's constraints.
package marketplace

import (
	"fmt"
	"sync"
	"time"

	"github.com/openclaw/tradegate/internal/risk"
)

// Signal action kinds.
const (
	ActionOpen   = "OPEN"
	ActionModify = "MODIFY"
	ActionClose  = "CLOSE"
)

// Direction filters for follower constraints.
const (
	DirectionBoth      = "both"
	DirectionLongOnly  = "long-only"
	DirectionShortOnly = "short-only"
)

// Blocked reasons surfaced in mapping results.
const (
	BlockUnsupportedAction = "UNSUPPORTED_ACTION"
	BlockSymbolNotAllowed  = "SYMBOL_NOT_ALLOWED"
	BlockDirectionFilter   = "DIRECTION_FILTER_BLOCK"
	BlockSignalStale       = "SIGNAL_STALE"
)

// Signal is one published copy-trade signal.
type Signal struct {
	SignalID   string  `json:"signalId"`
	StrategyID string  `json:"strategyId"`
	TS         string  `json:"ts"`
	Symbol     string  `json:"symbol"`
	Timeframe  string  `json:"timeframe"`
	Action     string  `json:"action"`
	Side       string  `json:"side"`
	Volume     float64 `json:"volume"`
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
}

// Constraints limit what a follower account copies.
type Constraints struct {
	AllowedSymbols      []string `json:"allowedSymbols"`
	MaxVolume           float64  `json:"maxVolume"`
	DirectionFilter     string   `json:"directionFilter"`
	MaxSignalAgeSeconds int64    `json:"maxSignalAgeSeconds"`
}

// MappingResult is the outcome of mapping one signal.
type MappingResult struct {
	Intent        *risk.TradeIntent `json:"intent"`
	BlockedReason *string           `json:"blockedReason"`
	Deduped       bool              `json:"deduped"`
}

// Mapper translates published signals into trade intents. Dedupe memory is
// permanent for the mapper's lifetime and is not persisted.
type Mapper struct {
	mu          sync.Mutex
	constraints Constraints
	processed   map[string]struct{}
	now         func() time.Time
}

// NewMapper creates a mapper with the given follower constraints.
func NewMapper(constraints Constraints) *Mapper {
	if constraints.DirectionFilter == "" {
		constraints.DirectionFilter = DirectionBoth
	}
	if constraints.MaxSignalAgeSeconds == 0 {
		constraints.MaxSignalAgeSeconds = 300
	}
	return &Mapper{
		constraints: constraints,
		processed:   make(map[string]struct{}),
		now:         time.Now,
	}
}

// ProcessedCount reports how many distinct signals have been mapped.
func (m *Mapper) ProcessedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.processed)
}

// MapSignal applies the constraint pipeline with the mapper's own
// constraints. See MapSignalWith.
func (m *Mapper) MapSignal(signal Signal, accountID string) (MappingResult, error) {
	return m.MapSignalWith(signal, accountID, m.constraints)
}

// MapSignalWith applies the constraint pipeline: dedupe, action, symbol,
// direction, age. A surviving signal yields an intent with the volume
// clamped to the follower's maximum and SL/TP copied verbatim. The dedupe
// memory is shared across all constraint sets.
func (m *Mapper) MapSignalWith(signal Signal, accountID string, constraints Constraints) (MappingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if constraints.DirectionFilter == "" {
		constraints.DirectionFilter = DirectionBoth
	}

	if _, seen := m.processed[signal.SignalID]; seen {
		return MappingResult{Deduped: true}, nil
	}

	if signal.Action != ActionOpen {
		return blocked(BlockUnsupportedAction), nil
	}

	if !contains(constraints.AllowedSymbols, signal.Symbol) {
		return blocked(BlockSymbolNotAllowed), nil
	}

	if constraints.DirectionFilter == DirectionLongOnly && signal.Side != "buy" {
		return blocked(BlockDirectionFilter), nil
	}
	if constraints.DirectionFilter == DirectionShortOnly && signal.Side != "sell" {
		return blocked(BlockDirectionFilter), nil
	}

	signalTS, err := time.Parse(time.RFC3339, signal.TS)
	if err != nil {
		return MappingResult{}, fmt.Errorf("marketplace: parse signal ts: %w", err)
	}
	age := m.now().UTC().Sub(signalTS.UTC())
	if age > time.Duration(constraints.MaxSignalAgeSeconds)*time.Second {
		return blocked(BlockSignalStale), nil
	}

	volume := signal.Volume
	if volume > constraints.MaxVolume {
		volume = constraints.MaxVolume
	}
	stopLoss := signal.StopLoss
	takeProfit := signal.TakeProfit
	intent := &risk.TradeIntent{
		AccountID:  accountID,
		Symbol:     signal.Symbol,
		Action:     "PLACE_MARKET_ORDER",
		Side:       signal.Side,
		Volume:     volume,
		StopLoss:   &stopLoss,
		TakeProfit: &takeProfit,
	}
	m.processed[signal.SignalID] = struct{}{}
	return MappingResult{Intent: intent}, nil
}

func blocked(reason string) MappingResult {
	return MappingResult{BlockedReason: &reason}
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
