package gateway

import (
	"context"

	"github.com/openclaw/tradegate/internal/domain"
	"github.com/openclaw/tradegate/internal/protocol"
)

// defaultSoulTemplate seeds SOUL.md when agents.create omits one.
const defaultSoulTemplate = `# SOUL

You are a disciplined trading agent. Protect capital first.`

// defaultManualTemplate seeds TRADING_MANUAL.md when agents.create omits one.
const defaultManualTemplate = `# TRADING MANUAL

1. Never trade without a stop loss.
2. Respect the account risk policy at all times.`

func (g *Gateway) handleAgentRun(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params agentRunParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid agent.run params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	decision, err := g.deps.Queues.Submit(params.toQueueRequest())
	if err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}
	status := g.deps.Queues.Status(params.AgentID)

	result := ok(map[string]any{
		"decision": decision,
		"queue":    status,
	})
	result.events = []protocol.Event{
		protocol.NewEvent("event.agent.status", map[string]any{
			"requestId": req.ID,
			"agentId":   params.AgentID,
			"decision":  decision.Type,
			"queue":     status,
		}),
	}
	result.auditData = map[string]any{
		"agentId":   params.AgentID,
		"requestId": params.Request.RequestID,
		"decision":  string(decision.Type),
	}
	return result
}

func (g *Gateway) handleAgentQueueStatus(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params agentQueueStatusParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid agent.queue.status params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	status := g.deps.Queues.Status(params.AgentID)
	return ok(map[string]any{
		"agentId":         status.AgentID,
		"mode":            status.Mode,
		"cap":             status.Cap,
		"activeRequestId": status.ActiveRequestID,
		"pendingCount":    status.PendingCount,
		"collectCount":    status.CollectCount,
	})
}

func (g *Gateway) handleAgentsCreate(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params agentsCreateParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid agents.create params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	soul := params.SoulTemplate
	if soul == "" {
		soul = defaultSoulTemplate
	}
	manual := params.ManualTemplate
	if manual == "" {
		manual = defaultManualTemplate
	}

	agent, err := g.deps.Agents.Create(params.AgentID, params.Label, soul, manual)
	if err != nil {
		return fail(domain.CodeConnectorError, "agent workspace bootstrap failed", map[string]any{"error": err.Error()})
	}

	result := ok(map[string]any{"agent": agent.PublicPayload()})
	result.auditData = map[string]any{
		"agentId": params.AgentID,
		"label":   params.Label,
	}
	return result
}

func (g *Gateway) handleAgentsList(_ context.Context, _ *Session, _ protocol.Request) handlerResult {
	agents := g.deps.Agents.List()
	payloads := make([]map[string]any, 0, len(agents))
	for _, agent := range agents {
		payloads = append(payloads, agent.PublicPayload())
	}
	return ok(map[string]any{"agents": payloads})
}

func (g *Gateway) handleAgentsGet(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params agentIDParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid agents.get params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	agent, found := g.deps.Agents.Get(params.AgentID)
	if !found {
		return fail(domain.CodeNotFound, "unknown agent", map[string]any{"agentId": params.AgentID})
	}
	return ok(map[string]any{"agent": agent.PublicPayload()})
}
