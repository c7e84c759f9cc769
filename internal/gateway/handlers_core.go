package gateway

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/tradegate/internal/backtest"
	"github.com/openclaw/tradegate/internal/config"
	"github.com/openclaw/tradegate/internal/domain"
	"github.com/openclaw/tradegate/internal/protocol"
)

func (g *Gateway) handleGatewayPing(_ context.Context, _ *Session, _ protocol.Request) handlerResult {
	return ok(map[string]any{
		"now": g.now().UTC().Format(time.RFC3339Nano),
	})
}

func (g *Gateway) handleGatewayStatus(_ context.Context, s *Session, _ protocol.Request) handlerResult {
	uptime := int64(g.now().UTC().Sub(g.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	return ok(map[string]any{
		"protocolVersion": ProtocolVersion,
		"uptimeSeconds":   uptime,
		"sessionId":       s.sessionID,
		"server": map[string]any{
			"name":    ServerName,
			"version": ServerVersion,
		},
	})
}

func (g *Gateway) handleConfigGet(_ context.Context, _ *Session, _ protocol.Request) handlerResult {
	return ok(map[string]any{"config": g.currentConfig()})
}

func (g *Gateway) handleConfigSchema(_ context.Context, _ *Session, _ protocol.Request) handlerResult {
	return ok(map[string]any{"schema": config.Schema()})
}

func (g *Gateway) handleConfigPatch(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params configPatchParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid config.patch params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	g.cfgMu.Lock()
	patched, err := config.Patch(g.cfg, params.Patch)
	if err == nil {
		g.cfg = patched
	}
	g.cfgMu.Unlock()

	if err != nil {
		result := fail(domain.CodeInvalidParams, "config patch rejected", map[string]any{"error": err.Error()})
		result.auditAction = "config.patch.blocked"
		result.auditData = map[string]any{"error": err.Error()}
		return result
	}

	result := ok(map[string]any{"config": patched})
	result.auditData = map[string]any{"patchedKeys": topLevelKeys(params.Patch)}
	return result
}

func (g *Gateway) handlePluginsStatus(_ context.Context, _ *Session, _ protocol.Request) handlerResult {
	if g.deps.Plugins == nil {
		return ok(map[string]any{
			"enabledPlugins": []string{},
			"activeSlots":    map[string]string{},
			"diagnostics":    []string{},
		})
	}
	resolved := g.deps.Plugins.Resolve()
	return ok(map[string]any{
		"enabledPlugins": resolved.EnabledPlugins,
		"activeSlots":    resolved.ActiveSlots,
		"diagnostics":    resolved.Diagnostics,
	})
}

func (g *Gateway) handleMemorySearch(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params memorySearchParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid memory.search params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}
	if g.deps.Memory == nil {
		return fail(domain.CodeNotFound, "memory index is not configured", nil)
	}

	// Index the agent workspaces on demand so fresh journal entries are
	// searchable without a separate indexing call.
	if g.deps.Agents != nil {
		if err := g.deps.Memory.IndexWorkspace(g.deps.Agents.WorkspaceBaseDir()); err != nil {
			g.logger.Warn("gateway: memory index refresh failed", slog.String("error", err.Error()))
		}
	}

	hits, err := g.deps.Memory.Search(params.Query, params.K)
	if err != nil {
		return fail(domain.CodeConnectorError, "memory search failed", map[string]any{"error": err.Error()})
	}

	result := ok(map[string]any{"hits": hits, "count": len(hits)})
	result.auditData = map[string]any{"query": params.Query, "hits": len(hits)}
	return result
}

func (g *Gateway) handleBacktestsRun(ctx context.Context, _ *Session, req protocol.Request) handlerResult {
	var params backtestsRunParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid backtests.run params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	signalsByIndex := make(map[int]backtest.Signal, len(params.Signals))
	for _, signal := range params.Signals {
		signalsByIndex[signal.Index] = backtest.Signal{
			Side:       signal.Side,
			Entry:      signal.Entry,
			StopLoss:   signal.StopLoss,
			TakeProfit: signal.TakeProfit,
		}
	}
	strategy := func(i int, _ []backtest.Candle) *backtest.Signal {
		if signal, found := signalsByIndex[i]; found {
			return &signal
		}
		return nil
	}

	simResult := g.deps.Backtest.Run(params.Candles, strategy, params.StartingEquity)
	backtestID := "bt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	if g.deps.Archive != nil {
		if err := g.deps.Archive.PutBacktestReport(ctx, backtestID, simResult); err != nil {
			g.logger.Warn("gateway: archive backtest report failed", slog.String("error", err.Error()))
		}
	}

	result := ok(map[string]any{
		"backtestId":  backtestID,
		"trades":      simResult.Trades,
		"metrics":     simResult.Metrics,
		"equityCurve": simResult.EquityCurve,
	})
	result.events = []protocol.Event{
		protocol.NewEvent("event.backtests.report", map[string]any{
			"requestId":  req.ID,
			"backtestId": backtestID,
			"metrics":    simResult.Metrics,
		}),
	}
	result.auditData = map[string]any{
		"backtestId": backtestID,
		"candles":    len(params.Candles),
		"trades":     simResult.Metrics.Trades,
	}
	return result
}

func topLevelKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	return keys
}
