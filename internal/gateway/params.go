package gateway

import (
	"fmt"

	"github.com/openclaw/tradegate/internal/backtest"
	"github.com/openclaw/tradegate/internal/marketplace"
	"github.com/openclaw/tradegate/internal/queue"
	"github.com/openclaw/tradegate/internal/risk"
)

// Method-specific parameter schemas. Each struct decodes strictly
// (unknown fields rejected) and validates its own required fields; a
// failure maps to INVALID_PARAMS without tearing the session down.

type clientInfo struct {
	Name     string  `json:"name"`
	Kind     string  `json:"kind"`
	Platform string  `json:"platform"`
	Version  string  `json:"version"`
	DeviceID *string `json:"deviceId"`
}

type protocolRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type connectParams struct {
	Client   clientInfo     `json:"client"`
	Protocol protocolRange  `json:"protocol"`
	Auth     map[string]any `json:"auth"`
}

func (p connectParams) validate() error {
	if p.Client.Name == "" || p.Client.Kind == "" || p.Client.Platform == "" || p.Client.Version == "" {
		return fmt.Errorf("client requires name, kind, platform, version")
	}
	if p.Protocol.Min < 1 || p.Protocol.Max < 1 {
		return fmt.Errorf("protocol range must be >= 1")
	}
	return nil
}

type riskEvalParams struct {
	Intent   risk.TradeIntent     `json:"intent"`
	Policy   risk.Policy          `json:"policy"`
	Snapshot risk.AccountSnapshot `json:"snapshot"`
}

func (p riskEvalParams) validate() error {
	if p.Intent.AccountID == "" || p.Intent.Symbol == "" || p.Intent.Action == "" || p.Intent.Side == "" {
		return fmt.Errorf("intent requires accountId, symbol, action, side")
	}
	if p.Intent.Volume <= 0 {
		return fmt.Errorf("intent.volume must be > 0")
	}
	if p.Policy.MaxVolume <= 0 {
		return fmt.Errorf("policy.maxVolume must be > 0")
	}
	if p.Policy.MaxConcurrentPositions < 1 {
		return fmt.Errorf("policy.maxConcurrentPositions must be >= 1")
	}
	if p.Policy.MaxDailyLoss <= 0 {
		return fmt.Errorf("policy.maxDailyLoss must be > 0")
	}
	if p.Snapshot.OpenPositions < 0 {
		return fmt.Errorf("snapshot.openPositions must be >= 0")
	}
	return nil
}

type agentRunRequest struct {
	RequestID string         `json:"requestId"`
	Kind      string         `json:"kind"`
	Priority  string         `json:"priority"`
	DedupeKey *string        `json:"dedupeKey"`
	Payload   map[string]any `json:"payload"`
}

type agentRunParams struct {
	AgentID string          `json:"agentId"`
	Request agentRunRequest `json:"request"`
}

func (p agentRunParams) validate() error {
	if p.AgentID == "" {
		return fmt.Errorf("agentId must not be empty")
	}
	if p.Request.RequestID == "" || p.Request.Kind == "" {
		return fmt.Errorf("request requires requestId and kind")
	}
	return nil
}

func (p agentRunParams) toQueueRequest() queue.Request {
	return queue.Request{
		RequestID: p.Request.RequestID,
		AgentID:   p.AgentID,
		Kind:      p.Request.Kind,
		Priority:  queue.Priority(p.Request.Priority),
		DedupeKey: p.Request.DedupeKey,
		Payload:   p.Request.Payload,
	}
}

type agentQueueStatusParams struct {
	AgentID string `json:"agentId"`
}

func (p agentQueueStatusParams) validate() error {
	if p.AgentID == "" {
		return fmt.Errorf("agentId must not be empty")
	}
	return nil
}

type emergencyStopParams struct {
	Action string  `json:"action"`
	Reason *string `json:"reason"`
}

type resumeParams struct {
	Reason *string `json:"reason"`
}

type memorySearchParams struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

func (p memorySearchParams) validate() error {
	if p.Query == "" {
		return fmt.Errorf("query must not be empty")
	}
	if p.K < 0 {
		return fmt.Errorf("k must be >= 0")
	}
	return nil
}

// indexedSignal is the declarative strategy input for backtests.run: emit
// the given signal when the iteration reaches Index.
type indexedSignal struct {
	Index      int     `json:"index"`
	Side       string  `json:"side"`
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
}

type backtestsRunParams struct {
	Candles        []backtest.Candle `json:"candles"`
	Signals        []indexedSignal   `json:"signals"`
	StartingEquity float64           `json:"startingEquity"`
}

func (p backtestsRunParams) validate() error {
	if len(p.Candles) == 0 {
		return fmt.Errorf("candles must not be empty")
	}
	for i, signal := range p.Signals {
		if signal.Index < 0 || signal.Index >= len(p.Candles) {
			return fmt.Errorf("signals[%d].index out of range", i)
		}
		if signal.Side != "buy" && signal.Side != "sell" {
			return fmt.Errorf("signals[%d].side must be buy or sell", i)
		}
	}
	if p.StartingEquity < 0 {
		return fmt.Errorf("startingEquity must be >= 0")
	}
	return nil
}

type devicesPairParams struct {
	DeviceID  string `json:"deviceId"`
	Platform  string `json:"platform"`
	Label     string `json:"label"`
	PushToken string `json:"pushToken"`
}

func (p devicesPairParams) validate() error {
	if p.DeviceID == "" || p.Platform == "" {
		return fmt.Errorf("deviceId and platform are required")
	}
	return nil
}

type deviceIDParams struct {
	DeviceID string `json:"deviceId"`
}

func (p deviceIDParams) validate() error {
	if p.DeviceID == "" {
		return fmt.Errorf("deviceId must not be empty")
	}
	return nil
}

type registerPushParams struct {
	DeviceID  string `json:"deviceId"`
	PushToken string `json:"pushToken"`
}

func (p registerPushParams) validate() error {
	if p.DeviceID == "" || p.PushToken == "" {
		return fmt.Errorf("deviceId and pushToken are required")
	}
	return nil
}

type notifyTestParams struct {
	DeviceID string `json:"deviceId"`
	Message  string `json:"message"`
}

func (p notifyTestParams) validate() error {
	if p.DeviceID == "" {
		return fmt.Errorf("deviceId must not be empty")
	}
	return nil
}

type tradesModifyParams struct {
	AccountID  string   `json:"accountId"`
	OrderID    string   `json:"orderId"`
	OpenPrice  float64  `json:"openPrice"`
	StopLoss   *float64 `json:"stopLoss"`
	TakeProfit *float64 `json:"takeProfit"`
}

func (p tradesModifyParams) validate() error {
	if p.AccountID == "" || p.OrderID == "" {
		return fmt.Errorf("accountId and orderId are required")
	}
	return nil
}

type tradesCancelParams struct {
	AccountID string `json:"accountId"`
	OrderID   string `json:"orderId"`
}

func (p tradesCancelParams) validate() error {
	if p.AccountID == "" || p.OrderID == "" {
		return fmt.Errorf("accountId and orderId are required")
	}
	return nil
}

type tradesCloseParams struct {
	AccountID  string `json:"accountId"`
	PositionID string `json:"positionId"`
}

func (p tradesCloseParams) validate() error {
	if p.AccountID == "" || p.PositionID == "" {
		return fmt.Errorf("accountId and positionId are required")
	}
	return nil
}

type accountsConnectParams struct {
	AccountID         string   `json:"accountId"`
	ConnectorID       string   `json:"connectorId"`
	ProviderAccountID string   `json:"providerAccountId"`
	Mode              string   `json:"mode"`
	Label             string   `json:"label"`
	AllowedSymbols    []string `json:"allowedSymbols"`
	Credentials       string   `json:"credentials"`
}

func (p accountsConnectParams) validate() error {
	if p.AccountID == "" || p.ConnectorID == "" || p.ProviderAccountID == "" {
		return fmt.Errorf("accountId, connectorId, providerAccountId are required")
	}
	if p.Mode == "" || p.Label == "" {
		return fmt.Errorf("mode and label are required")
	}
	return nil
}

type accountIDParams struct {
	AccountID string `json:"accountId"`
}

func (p accountIDParams) validate() error {
	if p.AccountID == "" {
		return fmt.Errorf("accountId must not be empty")
	}
	return nil
}

type feedsSubscribeParams struct {
	Topics     []string `json:"topics"`
	Symbols    []string `json:"symbols"`
	Timeframes []string `json:"timeframes"`
}

func (p feedsSubscribeParams) validate() error {
	if len(p.Topics) == 0 {
		return fmt.Errorf("topics must not be empty")
	}
	return nil
}

type feedsUnsubscribeParams struct {
	SubscriptionID string `json:"subscriptionId"`
}

func (p feedsUnsubscribeParams) validate() error {
	if p.SubscriptionID == "" {
		return fmt.Errorf("subscriptionId must not be empty")
	}
	return nil
}

type feedsGetCandlesParams struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Limit     int    `json:"limit"`
}

func (p feedsGetCandlesParams) validate() error {
	if p.Symbol == "" || p.Timeframe == "" {
		return fmt.Errorf("symbol and timeframe are required")
	}
	if p.Limit < 1 || p.Limit > 5000 {
		return fmt.Errorf("limit must be in [1, 5000]")
	}
	return nil
}

type agentsCreateParams struct {
	AgentID        string `json:"agentId"`
	Label          string `json:"label"`
	SoulTemplate   string `json:"soulTemplate"`
	ManualTemplate string `json:"manualTemplate"`
}

func (p agentsCreateParams) validate() error {
	if p.AgentID == "" || p.Label == "" {
		return fmt.Errorf("agentId and label are required")
	}
	return nil
}

type agentIDParams struct {
	AgentID string `json:"agentId"`
}

func (p agentIDParams) validate() error {
	if p.AgentID == "" {
		return fmt.Errorf("agentId must not be empty")
	}
	return nil
}

type marketplaceFollowParams struct {
	AccountID   string         `json:"accountId"`
	StrategyID  string         `json:"strategyId"`
	Constraints map[string]any `json:"constraints"`
}

func (p marketplaceFollowParams) validate() error {
	if p.AccountID == "" || p.StrategyID == "" {
		return fmt.Errorf("accountId and strategyId are required")
	}
	return nil
}

type marketplaceUnfollowParams struct {
	AccountID  string `json:"accountId"`
	StrategyID string `json:"strategyId"`
}

func (p marketplaceUnfollowParams) validate() error {
	if p.AccountID == "" || p.StrategyID == "" {
		return fmt.Errorf("accountId and strategyId are required")
	}
	return nil
}

type myFollowsParams struct {
	AccountID string `json:"accountId"`
}

type copytradePreviewParams struct {
	AccountID   string                  `json:"accountId"`
	Signal      marketplace.Signal      `json:"signal"`
	Constraints marketplace.Constraints `json:"constraints"`
}

func (p copytradePreviewParams) validate() error {
	if p.AccountID == "" {
		return fmt.Errorf("accountId must not be empty")
	}
	if p.Signal.SignalID == "" || p.Signal.Symbol == "" || p.Signal.Side == "" {
		return fmt.Errorf("signal requires signalId, symbol, side")
	}
	if p.Signal.Volume <= 0 {
		return fmt.Errorf("signal.volume must be > 0")
	}
	if p.Constraints.MaxVolume <= 0 {
		return fmt.Errorf("constraints.maxVolume must be > 0")
	}
	if p.Constraints.MaxSignalAgeSeconds < 1 {
		return fmt.Errorf("constraints.maxSignalAgeSeconds must be >= 1")
	}
	return nil
}

type configPatchParams struct {
	Patch map[string]any `json:"patch"`
}

func (p configPatchParams) validate() error {
	if len(p.Patch) == 0 {
		return fmt.Errorf("patch must be a non-empty object")
	}
	return nil
}
