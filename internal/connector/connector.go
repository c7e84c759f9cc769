// Package connector adapts the external broker RPC. The broker exposes a
// small tool-call surface (place_market_order, cancel_order, get_candles,
// get_positions); this package owns the transport and the mapping of
// broker failures onto the gateway's stable error codes.
package connector

import (
	"context"
	"fmt"
	"strings"

	"github.com/openclaw/tradegate/internal/domain"
)

// Transport performs one tool call against the broker endpoint.
type Transport interface {
	CallTool(ctx context.Context, toolName string, payload map[string]any) (map[string]any, error)
}

// Error is a broker failure mapped onto a stable code.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// errorMarkers maps substrings of broker error text onto codes. Order
// matters only for determinism; markers are disjoint in practice.
var errorMarkers = []struct {
	marker    string
	code      string
	retryable bool
}{
	{"MARKET_CLOSED", domain.CodeMarketClosed, false},
	{"TRADE_CONTEXT_BUSY", domain.CodeTradeContextBusy, true},
	{"INSUFFICIENT_FUNDS", domain.CodeInsufficientFunds, false},
	{"INVALID_STOPS", domain.CodeInvalidStops, false},
}

// Connector is the typed facade over the tool-call transport.
type Connector struct {
	transport Transport
}

// New creates a connector over the given transport.
func New(transport Transport) *Connector {
	return &Connector{transport: transport}
}

// GetCandles fetches OHLC history for a symbol/timeframe.
func (c *Connector) GetCandles(ctx context.Context, accountID, symbol, timeframe string, limit int, startTime string) (map[string]any, error) {
	payload := map[string]any{
		"accountId": accountID,
		"symbol":    symbol,
		"timeframe": timeframe,
		"limit":     limit,
	}
	if startTime != "" {
		payload["startTime"] = startTime
	}
	return c.call(ctx, "get_candles", payload)
}

// PlaceMarketOrder submits a market order with optional protective stops.
func (c *Connector) PlaceMarketOrder(ctx context.Context, accountID, symbol, side string, volume float64, stopLoss, takeProfit *float64, comment string) (map[string]any, error) {
	payload := map[string]any{
		"accountId": accountID,
		"symbol":    symbol,
		"side":      side,
		"volume":    volume,
	}
	if stopLoss != nil {
		payload["stopLoss"] = *stopLoss
	}
	if takeProfit != nil {
		payload["takeProfit"] = *takeProfit
	}
	if comment != "" {
		payload["comment"] = comment
	}
	return c.call(ctx, "place_market_order", payload)
}

// CancelOrder cancels a working order.
func (c *Connector) CancelOrder(ctx context.Context, accountID, orderID string) (map[string]any, error) {
	return c.call(ctx, "cancel_order", map[string]any{
		"accountId": accountID,
		"orderId":   orderID,
	})
}

// GetPositions lists open positions for an account.
func (c *Connector) GetPositions(ctx context.Context, accountID string) (map[string]any, error) {
	return c.call(ctx, "get_positions", map[string]any{"accountId": accountID})
}

func (c *Connector) call(ctx context.Context, toolName string, payload map[string]any) (map[string]any, error) {
	result, err := c.transport.CallTool(ctx, toolName, payload)
	if err != nil {
		return nil, MapError(err)
	}
	return result, nil
}

// MapError classifies a broker failure by marker substring, falling back
// to CONNECTOR_ERROR.
func MapError(err error) *Error {
	var mapped *Error
	message := err.Error()
	for _, entry := range errorMarkers {
		if strings.Contains(message, entry.marker) {
			mapped = &Error{Code: entry.code, Message: message, Retryable: entry.retryable}
			break
		}
	}
	if mapped == nil {
		mapped = &Error{Code: domain.CodeConnectorError, Message: message, Retryable: false}
	}
	return mapped
}
