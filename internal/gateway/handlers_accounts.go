package gateway

import (
	"context"

	"github.com/openclaw/tradegate/internal/domain"
	"github.com/openclaw/tradegate/internal/protocol"
	"github.com/openclaw/tradegate/internal/registry"
)

func (g *Gateway) handleAccountsConnect(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params accountsConnectParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid accounts.connect params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	account, err := g.deps.Accounts.Connect(registry.ConnectInput{
		AccountID:         params.AccountID,
		ConnectorID:       params.ConnectorID,
		ProviderAccountID: params.ProviderAccountID,
		Mode:              params.Mode,
		Label:             params.Label,
		AllowedSymbols:    params.AllowedSymbols,
		Credentials:       params.Credentials,
	})
	if err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	result := ok(map[string]any{"account": account.PublicPayload()})
	result.events = []protocol.Event{
		protocol.NewEvent("event.account.status", map[string]any{
			"requestId": req.ID,
			"accountId": account.AccountID,
			"status":    account.Status,
		}),
	}
	result.auditData = map[string]any{
		"accountId":   params.AccountID,
		"connectorId": params.ConnectorID,
		"mode":        params.Mode,
	}
	return result
}

func (g *Gateway) handleAccountsList(_ context.Context, _ *Session, _ protocol.Request) handlerResult {
	accounts := g.deps.Accounts.List()
	payloads := make([]map[string]any, 0, len(accounts))
	for _, account := range accounts {
		payloads = append(payloads, account.PublicPayload())
	}
	return ok(map[string]any{"accounts": payloads})
}

func (g *Gateway) handleAccountsGet(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params accountIDParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid accounts.get params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	account, found := g.deps.Accounts.Get(params.AccountID)
	if !found {
		return fail(domain.CodeNotFound, "unknown account", map[string]any{"accountId": params.AccountID})
	}
	return ok(map[string]any{"account": account.PublicPayload()})
}

func (g *Gateway) handleAccountsStatus(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params accountIDParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid accounts.status params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	account, found := g.deps.Accounts.Get(params.AccountID)
	if !found {
		return fail(domain.CodeNotFound, "unknown account", map[string]any{"accountId": params.AccountID})
	}

	result := ok(map[string]any{
		"accountId":      account.AccountID,
		"status":         account.Status,
		"connectedAt":    account.ConnectedAt,
		"disconnectedAt": account.DisconnectedAt,
	})
	result.events = []protocol.Event{
		protocol.NewEvent("event.account.status", map[string]any{
			"requestId": req.ID,
			"accountId": account.AccountID,
			"status":    account.Status,
		}),
	}
	return result
}

func (g *Gateway) handleAccountsDisconnect(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params accountIDParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid accounts.disconnect params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	account, found := g.deps.Accounts.Disconnect(params.AccountID)
	if !found {
		result := fail(domain.CodeNotFound, "unknown account", map[string]any{"accountId": params.AccountID})
		result.auditAction = "accounts.disconnect.blocked"
		result.auditData = map[string]any{"accountId": params.AccountID}
		return result
	}

	result := ok(map[string]any{"account": account.PublicPayload()})
	result.events = []protocol.Event{
		protocol.NewEvent("event.account.status", map[string]any{
			"requestId": req.ID,
			"accountId": account.AccountID,
			"status":    account.Status,
		}),
	}
	result.auditData = map[string]any{"accountId": params.AccountID}
	return result
}

func (g *Gateway) handleFeedsList(_ context.Context, _ *Session, _ protocol.Request) handlerResult {
	result := ok(map[string]any{
		"feeds":         g.deps.Feeds.ListFeeds(),
		"subscriptions": subscriptionPayloads(g),
	})
	result.auditData = map[string]any{}
	return result
}

func (g *Gateway) handleFeedsSubscribe(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params feedsSubscribeParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid feeds.subscribe params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	subscription := g.deps.Feeds.Subscribe(params.Topics, params.Symbols, params.Timeframes)

	result := ok(map[string]any{"subscription": subscription.Payload()})
	result.events = []protocol.Event{
		protocol.NewEvent("event.feed.event", map[string]any{
			"requestId":      req.ID,
			"kind":           "subscribed",
			"subscriptionId": subscription.SubscriptionID,
			"topics":         subscription.Topics,
		}),
	}
	result.auditData = map[string]any{
		"subscriptionId": subscription.SubscriptionID,
		"topics":         params.Topics,
	}
	return result
}

func (g *Gateway) handleFeedsUnsubscribe(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params feedsUnsubscribeParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid feeds.unsubscribe params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	removed := g.deps.Feeds.Unsubscribe(params.SubscriptionID)
	if !removed {
		result := fail(domain.CodeNotFound, "unknown subscription", map[string]any{"subscriptionId": params.SubscriptionID})
		result.auditAction = "feeds.unsubscribe.blocked"
		result.auditData = map[string]any{"subscriptionId": params.SubscriptionID}
		return result
	}

	result := ok(map[string]any{"removed": true, "subscriptionId": params.SubscriptionID})
	result.events = []protocol.Event{
		protocol.NewEvent("event.feed.event", map[string]any{
			"requestId":      req.ID,
			"kind":           "unsubscribed",
			"subscriptionId": params.SubscriptionID,
		}),
	}
	result.auditData = map[string]any{"subscriptionId": params.SubscriptionID}
	return result
}

func (g *Gateway) handleFeedsGetCandles(_ context.Context, _ *Session, req protocol.Request) handlerResult {
	var params feedsGetCandlesParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil {
		return fail(domain.CodeInvalidParams, "invalid feeds.getCandles params", nil)
	}
	if err := params.validate(); err != nil {
		return fail(domain.CodeInvalidParams, err.Error(), nil)
	}

	candles := g.deps.Feeds.GetCandles(params.Symbol, params.Timeframe, params.Limit)

	result := ok(map[string]any{
		"symbol":    params.Symbol,
		"timeframe": params.Timeframe,
		"candles":   candles,
	})
	result.auditData = map[string]any{
		"symbol":    params.Symbol,
		"timeframe": params.Timeframe,
		"limit":     params.Limit,
	}
	return result
}

func subscriptionPayloads(g *Gateway) []map[string]any {
	subs := g.deps.Feeds.ListSubscriptions()
	payloads := make([]map[string]any, 0, len(subs))
	for _, sub := range subs {
		payloads = append(payloads, sub.Payload())
	}
	return payloads
}
