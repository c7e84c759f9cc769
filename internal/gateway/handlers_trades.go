package gateway

import (
	"context"
	"errors"

	"github.com/openclaw/tradegate/internal/connector"
	"github.com/openclaw/tradegate/internal/domain"
	"github.com/openclaw/tradegate/internal/protocol"
	"github.com/openclaw/tradegate/internal/risk"
)

// handleTradesPlace is the fully gated execution path: emergency stop
// first, then policy evaluation, then the connector. Blocked placements
// return RISK_BLOCKED carrying the full decision and still audit, with
// the action suffixed ".blocked".
func (g *Gateway) handleTradesPlace(ctx context.Context, _ *Session, req protocol.Request) handlerResult {
	var params riskEvalParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid trades.place params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	if g.deps.Control.Active() {
		status := g.deps.Control.Status()
		decision := risk.Decision{
			Allowed: false,
			Violations: []risk.Violation{{
				Code:    risk.ViolationEmergencyStopActive,
				Message: "Emergency stop is active; trading is halted.",
				Details: map[string]any{
					"lastAction": status.LastAction,
					"updatedAt":  status.UpdatedAt,
				},
			}},
		}
		return g.blockedPlacement(req, params, decision)
	}

	decision := g.deps.RiskEngine.Evaluate(params.Intent, params.Policy, params.Snapshot)
	if !decision.Allowed {
		return g.blockedPlacement(req, params, decision)
	}

	execution, err := g.deps.Trades.Place(ctx, params.Intent)
	if err != nil {
		return g.connectorFailure(req, "trades.place", err)
	}
	if g.deps.Metrics != nil {
		g.deps.Metrics.TradesExecuted.Inc()
	}

	result := ok(map[string]any{
		"execution": execution.Payload(),
		"decision":  decision,
	})
	result.events = []protocol.Event{
		protocol.NewEvent("event.trade.executed", map[string]any{
			"requestId": req.ID,
			"accountId": params.Intent.AccountID,
			"symbol":    params.Intent.Symbol,
			"execution": execution.Payload(),
		}),
	}
	result.auditData = map[string]any{
		"accountId":   params.Intent.AccountID,
		"symbol":      params.Intent.Symbol,
		"volume":      params.Intent.Volume,
		"executionId": execution.ExecutionID,
	}
	return result
}

// blockedPlacement builds the RISK_BLOCKED response plus the alert event
// and audit record shared by the two gate layers.
func (g *Gateway) blockedPlacement(req protocol.Request, params riskEvalParams, decision risk.Decision) handlerResult {
	if g.deps.Metrics != nil {
		g.deps.Metrics.TradesBlocked.Inc()
	}

	codes := make([]string, 0, len(decision.Violations))
	for _, violation := range decision.Violations {
		codes = append(codes, string(violation.Code))
	}

	result := fail(domain.CodeRiskBlocked, "trade blocked by risk controls", map[string]any{
		"decision": decision,
	})
	result.events = []protocol.Event{
		protocol.NewEvent("event.risk.alert", map[string]any{
			"requestId":  req.ID,
			"accountId":  params.Intent.AccountID,
			"symbol":     params.Intent.Symbol,
			"violations": codes,
		}),
	}
	result.auditAction = "trades.place.blocked"
	result.auditData = map[string]any{
		"accountId":  params.Intent.AccountID,
		"symbol":     params.Intent.Symbol,
		"violations": codes,
	}
	return result
}

func (g *Gateway) handleTradesModify(ctx context.Context, _ *Session, req protocol.Request) handlerResult {
	var params tradesModifyParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid trades.modify params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	execution, err := g.deps.Trades.Modify(ctx, params.AccountID, params.OrderID, params.OpenPrice, params.StopLoss, params.TakeProfit)
	if err != nil {
		return g.connectorFailure(req, "trades.modify", err)
	}

	result := ok(map[string]any{"execution": execution.Payload()})
	result.events = []protocol.Event{
		protocol.NewEvent("event.trade.modified", map[string]any{
			"requestId": req.ID,
			"accountId": params.AccountID,
			"execution": execution.Payload(),
		}),
	}
	result.auditData = map[string]any{
		"accountId": params.AccountID,
		"orderId":   params.OrderID,
	}
	return result
}

func (g *Gateway) handleTradesCancel(ctx context.Context, _ *Session, req protocol.Request) handlerResult {
	var params tradesCancelParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid trades.cancel params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	execution, err := g.deps.Trades.Cancel(ctx, params.AccountID, params.OrderID)
	if err != nil {
		return g.connectorFailure(req, "trades.cancel", err)
	}

	result := ok(map[string]any{"execution": execution.Payload()})
	result.events = []protocol.Event{
		protocol.NewEvent("event.trade.canceled", map[string]any{
			"requestId": req.ID,
			"accountId": params.AccountID,
			"execution": execution.Payload(),
		}),
	}
	result.auditData = map[string]any{
		"accountId": params.AccountID,
		"orderId":   params.OrderID,
	}
	return result
}

func (g *Gateway) handleTradesClosePosition(ctx context.Context, _ *Session, req protocol.Request) handlerResult {
	var params tradesCloseParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid trades.closePosition params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	execution, err := g.deps.Trades.ClosePosition(ctx, params.AccountID, params.PositionID)
	if err != nil {
		return g.connectorFailure(req, "trades.closePosition", err)
	}

	result := ok(map[string]any{"execution": execution.Payload()})
	result.events = []protocol.Event{
		protocol.NewEvent("event.trade.closed", map[string]any{
			"requestId": req.ID,
			"accountId": params.AccountID,
			"execution": execution.Payload(),
		}),
	}
	result.auditData = map[string]any{
		"accountId":  params.AccountID,
		"positionId": params.PositionID,
	}
	return result
}

// connectorFailure maps a broker error onto the response error shape with
// its retry metadata, and audits the failed attempt.
func (g *Gateway) connectorFailure(_ protocol.Request, action string, err error) handlerResult {
	var connErr *connector.Error
	if !errors.As(err, &connErr) {
		connErr = connector.MapError(err)
	}

	shape := protocol.ErrorShape{
		Code:    connErr.Code,
		Message: connErr.Message,
	}
	if connErr.Retryable {
		retryable := true
		retryAfter := int64(1000)
		shape.Retryable = &retryable
		shape.RetryAfterMs = &retryAfter
	}

	result := handlerResult{errShape: &shape}
	result.auditAction = action + ".blocked"
	result.auditData = map[string]any{"code": connErr.Code}
	return result
}
