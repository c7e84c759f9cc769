package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/tradegate/internal/domain"
	"github.com/openclaw/tradegate/internal/marketplace"
	"github.com/openclaw/tradegate/internal/protocol"
)

func (g *Gateway) handleMarketplaceSignals(_ context.Context, _ *Session, _ protocol.Request) handlerResult {
	// Fixed sample catalog; a production deployment would serve a real
	// strategy catalog here.
	signals := marketplace.CatalogSignals(g.now())
	result := ok(map[string]any{"signals": signals})
	result.auditData = map[string]any{"count": len(signals)}
	return result
}

func (g *Gateway) handleMarketplaceFollow(_ context.Context, s *Session, req protocol.Request) handlerResult {
	var params marketplaceFollowParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid marketplace.follow params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	key := followKey{accountID: params.AccountID, strategyID: params.StrategyID}
	record, exists := s.follows[key]
	if !exists {
		record = followRecord{
			FollowID:    "follow_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10],
			AccountID:   params.AccountID,
			StrategyID:  params.StrategyID,
			CreatedAt:   g.now().UTC().Format(time.RFC3339Nano),
			Constraints: params.Constraints,
		}
	} else if params.Constraints != nil {
		record.Constraints = params.Constraints
	}
	s.follows[key] = record

	result := ok(map[string]any{"follow": record})
	result.events = []protocol.Event{
		protocol.NewEvent("event.marketplace.follow", map[string]any{
			"requestId":  req.ID,
			"accountId":  params.AccountID,
			"strategyId": params.StrategyID,
			"followId":   record.FollowID,
		}),
	}
	result.auditData = map[string]any{
		"accountId":  params.AccountID,
		"strategyId": params.StrategyID,
	}
	return result
}

func (g *Gateway) handleMarketplaceUnfollow(_ context.Context, s *Session, req protocol.Request) handlerResult {
	var params marketplaceUnfollowParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid marketplace.unfollow params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	key := followKey{accountID: params.AccountID, strategyID: params.StrategyID}
	record, exists := s.follows[key]
	if !exists {
		result := fail(domain.CodeNotFound, "no such follow", map[string]any{
			"accountId":  params.AccountID,
			"strategyId": params.StrategyID,
		})
		result.auditAction = "marketplace.unfollow.blocked"
		result.auditData = map[string]any{
			"accountId":  params.AccountID,
			"strategyId": params.StrategyID,
		}
		return result
	}
	delete(s.follows, key)

	result := ok(map[string]any{"removed": true, "followId": record.FollowID})
	result.events = []protocol.Event{
		protocol.NewEvent("event.marketplace.unfollow", map[string]any{
			"requestId":  req.ID,
			"accountId":  params.AccountID,
			"strategyId": params.StrategyID,
			"followId":   record.FollowID,
		}),
	}
	result.auditData = map[string]any{
		"accountId":  params.AccountID,
		"strategyId": params.StrategyID,
	}
	return result
}

func (g *Gateway) handleMarketplaceMyFollows(_ context.Context, s *Session, req protocol.Request) handlerResult {
	var params myFollowsParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid marketplace.myFollows params", nil)
	}

	follows := make([]followRecord, 0, len(s.follows))
	for _, record := range s.follows {
		if params.AccountID != "" && record.AccountID != params.AccountID {
			continue
		}
		follows = append(follows, record)
	}

	result := ok(map[string]any{"follows": follows})
	result.auditData = map[string]any{"count": len(follows)}
	return result
}

func (g *Gateway) handleCopytradePreview(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params copytradePreviewParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid copytrade.preview params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	mapping, err := g.deps.Mapper.MapSignalWith(params.Signal, params.AccountID, params.Constraints)
	if err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	payload := map[string]any{
		"intent":        mapping.Intent,
		"blockedReason": mapping.BlockedReason,
		"deduped":       mapping.Deduped,
	}
	events := []protocol.Event{
		protocol.NewEvent("event.copytrade.preview", map[string]any{
			"requestId": req.ID,
			"accountId": params.AccountID,
			"signalId":  params.Signal.SignalID,
			"mapping":   payload,
		}),
	}
	// When the copier is running and the signal survived mapping, tell
	// dashboards what the copier would submit for execution.
	if mapping.Intent != nil && g.copierEnabled() {
		events = append(events, protocol.NewEvent("event.copytrade.execution", map[string]any{
			"requestId": req.ID,
			"accountId": params.AccountID,
			"signalId":  params.Signal.SignalID,
			"intent":    mapping.Intent,
		}))
	}

	auditAction := ""
	auditData := map[string]any{
		"accountId": params.AccountID,
		"signalId":  params.Signal.SignalID,
	}
	switch {
	case mapping.Deduped:
		auditData["deduped"] = true
	case mapping.BlockedReason != nil:
		auditAction = "copytrade.preview.blocked"
		auditData["blockedReason"] = *mapping.BlockedReason
	}

	result := ok(payload)
	result.events = events
	result.auditAction = auditAction
	result.auditData = auditData
	return result
}

func (g *Gateway) handleCopytradeStatus(_ context.Context, _ *Session, _ protocol.Request) handlerResult {
	result := ok(map[string]any{
		"enabled":          g.copierEnabled(),
		"processedSignals": g.deps.Mapper.ProcessedCount(),
	})
	result.auditData = map[string]any{"enabled": g.copierEnabled()}
	return result
}

func (g *Gateway) handleCopytradePause(_ context.Context, _ *Session, _ protocol.Request) handlerResult {
	g.copyMu.Lock()
	g.copyEnabled = false
	g.copyMu.Unlock()

	result := ok(map[string]any{"enabled": false})
	result.auditData = map[string]any{"enabled": false}
	return result
}

func (g *Gateway) handleCopytradeResume(_ context.Context, _ *Session, _ protocol.Request) handlerResult {
	g.copyMu.Lock()
	g.copyEnabled = true
	g.copyMu.Unlock()

	result := ok(map[string]any{"enabled": true})
	result.auditData = map[string]any{"enabled": true}
	return result
}

func (g *Gateway) copierEnabled() bool {
	g.copyMu.Lock()
	defer g.copyMu.Unlock()
	return g.copyEnabled
}
