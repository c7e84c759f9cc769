package gateway

import (
	"context"

	"github.com/openclaw/tradegate/internal/domain"
	"github.com/openclaw/tradegate/internal/protocol"
	"github.com/openclaw/tradegate/internal/risk"
)

func (g *Gateway) handleRiskPreview(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params riskEvalParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid risk.preview params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	decision := g.deps.RiskEngine.Evaluate(params.Intent, params.Policy, params.Snapshot)

	result := ok(map[string]any{
		"allowed":    decision.Allowed,
		"violations": decision.Violations,
	})
	result.events = []protocol.Event{
		protocol.NewEvent("event.risk.preview", map[string]any{
			"requestId": req.ID,
			"accountId": params.Intent.AccountID,
			"symbol":    params.Intent.Symbol,
			"decision":  decision,
		}),
	}
	result.auditData = map[string]any{
		"accountId":  params.Intent.AccountID,
		"symbol":     params.Intent.Symbol,
		"allowed":    decision.Allowed,
		"violations": len(decision.Violations),
	}
	return result
}

func (g *Gateway) handleRiskStatus(_ context.Context, _ *Session, _ protocol.Request) handlerResult {
	status := g.deps.Control.Status()
	result := ok(statusAsMap(status))
	result.auditData = map[string]any{"emergencyStopActive": status.EmergencyStopActive}
	return result
}

func (g *Gateway) handleRiskEmergencyStop(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params emergencyStopParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid risk.emergencyStop params", nil)
	}
	action, err := risk.ParseEmergencyAction(params.Action)
	if err != nil {
		return fail(domain.CodeInvalidParams, "unknown emergency action", map[string]any{"action": params.Action})
	}

	status := g.deps.Control.Activate(action, params.Reason)
	statusMap := statusAsMap(status)

	// The stop status event always fires; actions with a broker side
	// effect also announce what they swept, others raise an alert.
	events := []protocol.Event{
		protocol.NewEvent("event.risk.emergencyStop", map[string]any{
			"requestId": req.ID,
			"status":    statusMap,
		}),
	}
	switch action {
	case risk.ActionCancelAll:
		events = append(events, protocol.NewEvent("event.trade.canceled", map[string]any{
			"requestId": req.ID,
			"scope":     "all",
			"reason":    "emergency stop",
		}))
	case risk.ActionCloseAll:
		events = append(events, protocol.NewEvent("event.trade.closed", map[string]any{
			"requestId": req.ID,
			"scope":     "all",
			"reason":    "emergency stop",
		}))
	default:
		events = append(events, protocol.NewEvent("event.risk.alert", map[string]any{
			"requestId": req.ID,
			"kind":      "emergencyStop",
			"action":    string(action),
		}))
	}

	result := ok(statusMap)
	result.events = events
	result.auditData = map[string]any{
		"action": string(action),
		"reason": params.Reason,
	}
	return result
}

func (g *Gateway) handleRiskResume(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params resumeParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid risk.resume params", nil)
	}

	status := g.deps.Control.Resume(params.Reason)
	statusMap := statusAsMap(status)

	result := ok(statusMap)
	result.events = []protocol.Event{
		protocol.NewEvent("event.risk.emergencyStop", map[string]any{
			"requestId": req.ID,
			"status":    statusMap,
		}),
	}
	result.auditData = map[string]any{"reason": params.Reason}
	return result
}

func statusAsMap(status risk.ControlStatus) map[string]any {
	return map[string]any{
		"emergencyStopActive": status.EmergencyStopActive,
		"lastAction":          status.LastAction,
		"lastReason":          status.LastReason,
		"updatedAt":           status.UpdatedAt,
		"actionCounts":        status.ActionCounts,
	}
}
