// Package gateway implements the control-plane session handler: the
// per-connection state machine, the declarative method dispatch table,
// event emission, and the audit obligations of every side-effecting
// method. One session maps to one WebSocket connection; request handling
// within a session is strictly sequential.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/openclaw/tradegate/internal/audit"
	"github.com/openclaw/tradegate/internal/backtest"
	"github.com/openclaw/tradegate/internal/config"
	"github.com/openclaw/tradegate/internal/connector"
	"github.com/openclaw/tradegate/internal/feeds"
	"github.com/openclaw/tradegate/internal/marketplace"
	"github.com/openclaw/tradegate/internal/memory"
	"github.com/openclaw/tradegate/internal/metrics"
	"github.com/openclaw/tradegate/internal/notify"
	"github.com/openclaw/tradegate/internal/plugins"
	"github.com/openclaw/tradegate/internal/protocol"
	"github.com/openclaw/tradegate/internal/queue"
	"github.com/openclaw/tradegate/internal/registry"
	"github.com/openclaw/tradegate/internal/risk"
	"github.com/openclaw/tradegate/internal/trades"
)

// Protocol and server identity constants surfaced on the wire.
const (
	ProtocolVersion = 1
	ServerName      = "mt5-claude-trader-v2"
	ServerVersion   = "0.1.0"
)

// EventPublisher receives a copy of every emitted event (e.g. the redis
// signal bus). Publish failures are logged, never surfaced to sessions.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Archiver stores finished backtest reports out of process.
type Archiver interface {
	PutBacktestReport(ctx context.Context, backtestID string, report any) error
}

// Deps carries every subsystem the dispatch table reaches.
type Deps struct {
	Logger *slog.Logger
	Config *config.Config

	Audit      *audit.Store
	RiskEngine *risk.Engine
	Control    *risk.ControlState
	Queues     *queue.Manager
	Accounts   *registry.AccountRegistry
	Agents     *registry.AgentRegistry
	Devices    *registry.DeviceRegistry
	Feeds      *feeds.Service
	Pipeline   *feeds.Pipeline
	Backtest   *backtest.Simulator
	Trades     *trades.Service
	Connector  *connector.Connector
	Memory     *memory.Index
	Plugins    *plugins.Registry
	Mapper     *marketplace.Mapper
	Notifier   *notify.Notifier
	Metrics    *metrics.Metrics

	// Publisher is optional cross-instance event fan-out.
	Publisher EventPublisher
	// PublishChannel is the bus channel events are mirrored to.
	PublishChannel string
	// Archive is the optional backtest artifact store.
	Archive Archiver
}

// handlerResult is what one method execution produces: zero or more
// events (emitted before the response), then exactly one response body.
type handlerResult struct {
	events   []protocol.Event
	payload  any
	errShape *protocol.ErrorShape

	// auditAction overrides the default audit action (the method name);
	// blocked operations append ".blocked".
	auditAction string
	auditData   map[string]any
}

func ok(payload any) handlerResult {
	return handlerResult{payload: payload}
}

func fail(code, message string, details any) handlerResult {
	return handlerResult{errShape: &protocol.ErrorShape{Code: code, Message: message, Details: details}}
}

// methodSpec is one row of the dispatch table.
type methodSpec struct {
	// audited methods append an audit record after a response is decided.
	audited bool
	handler func(ctx context.Context, s *Session, req protocol.Request) handlerResult
}

// Gateway owns the dispatch table and the cross-session state.
type Gateway struct {
	deps    Deps
	methods map[string]methodSpec
	logger  *slog.Logger

	// cfgMu guards the live config tree mutated by config.patch.
	cfgMu sync.RWMutex
	cfg   *config.Config

	// copyMu guards the copier state toggled by copytrade.pause/resume.
	copyMu      sync.Mutex
	copyEnabled bool

	startedAt time.Time
	now       func() time.Time
}

// New builds a gateway and its dispatch table.
func New(deps Deps) *Gateway {
	g := &Gateway{
		deps:        deps,
		logger:      deps.Logger.With(slog.String("component", "gateway")),
		cfg:         deps.Config,
		copyEnabled: true,
		startedAt:   time.Now().UTC(),
		now:         time.Now,
	}
	g.methods = g.buildMethodTable()
	return g
}

// buildMethodTable registers every dispatchable method. gateway.connect
// is absent: it is only legal as the first frame and the session loop
// handles it directly.
func (g *Gateway) buildMethodTable() map[string]methodSpec {
	return map[string]methodSpec{
		"gateway.ping":   {handler: g.handleGatewayPing},
		"gateway.status": {handler: g.handleGatewayStatus},

		"config.get":    {handler: g.handleConfigGet},
		"config.schema": {handler: g.handleConfigSchema},
		"config.patch":  {audited: true, handler: g.handleConfigPatch},

		"plugins.status": {handler: g.handlePluginsStatus},

		"risk.preview":       {audited: true, handler: g.handleRiskPreview},
		"risk.status":        {audited: true, handler: g.handleRiskStatus},
		"risk.emergencyStop": {audited: true, handler: g.handleRiskEmergencyStop},
		"risk.resume":        {audited: true, handler: g.handleRiskResume},

		"agent.run":          {audited: true, handler: g.handleAgentRun},
		"agent.queue.status": {handler: g.handleAgentQueueStatus},

		"memory.search": {audited: true, handler: g.handleMemorySearch},

		"backtests.run": {audited: true, handler: g.handleBacktestsRun},

		"devices.pair":         {audited: true, handler: g.handleDevicesPair},
		"devices.list":         {handler: g.handleDevicesList},
		"devices.unpair":       {audited: true, handler: g.handleDevicesUnpair},
		"devices.registerPush": {audited: true, handler: g.handleDevicesRegisterPush},
		"devices.notifyTest":   {audited: true, handler: g.handleDevicesNotifyTest},

		"trades.place":         {audited: true, handler: g.handleTradesPlace},
		"trades.modify":        {audited: true, handler: g.handleTradesModify},
		"trades.cancel":        {audited: true, handler: g.handleTradesCancel},
		"trades.closePosition": {audited: true, handler: g.handleTradesClosePosition},

		"accounts.connect":    {audited: true, handler: g.handleAccountsConnect},
		"accounts.list":       {handler: g.handleAccountsList},
		"accounts.get":        {handler: g.handleAccountsGet},
		"accounts.status":     {handler: g.handleAccountsStatus},
		"accounts.disconnect": {audited: true, handler: g.handleAccountsDisconnect},

		"feeds.list":        {audited: true, handler: g.handleFeedsList},
		"feeds.subscribe":   {audited: true, handler: g.handleFeedsSubscribe},
		"feeds.unsubscribe": {audited: true, handler: g.handleFeedsUnsubscribe},
		"feeds.getCandles":  {audited: true, handler: g.handleFeedsGetCandles},

		"agents.create": {audited: true, handler: g.handleAgentsCreate},
		"agents.list":   {handler: g.handleAgentsList},
		"agents.get":    {handler: g.handleAgentsGet},

		"marketplace.signals":  {audited: true, handler: g.handleMarketplaceSignals},
		"marketplace.follow":   {audited: true, handler: g.handleMarketplaceFollow},
		"marketplace.unfollow": {audited: true, handler: g.handleMarketplaceUnfollow},
		"marketplace.myFollows": {audited: true, handler: g.handleMarketplaceMyFollows},

		"copytrade.preview": {audited: true, handler: g.handleCopytradePreview},
		"copytrade.status":  {audited: true, handler: g.handleCopytradeStatus},
		"copytrade.pause":   {audited: true, handler: g.handleCopytradePause},
		"copytrade.resume":  {audited: true, handler: g.handleCopytradeResume},
	}
}

// currentConfig returns the live config tree.
func (g *Gateway) currentConfig() *config.Config {
	g.cfgMu.RLock()
	defer g.cfgMu.RUnlock()
	return g.cfg
}

// publishEvent mirrors one event to the bus, best effort.
func (g *Gateway) publishEvent(ctx context.Context, event protocol.Event) {
	if g.deps.Metrics != nil {
		g.deps.Metrics.EventsTotal.WithLabelValues(event.Event).Inc()
	}
	if g.deps.Publisher == nil {
		return
	}
	payload, err := protocol.Marshal(event)
	if err != nil {
		g.logger.Warn("gateway: marshal bus event failed", slog.String("error", err.Error()))
		return
	}
	channel := g.deps.PublishChannel
	if channel == "" {
		channel = "ch:gateway:events"
	}
	if err := g.deps.Publisher.Publish(ctx, channel, payload); err != nil {
		g.logger.Warn("gateway: publish event failed",
			slog.String("event", event.Event),
			slog.String("error", err.Error()),
		)
	}
}

// writeAudit appends one audit record with actor "user" and the request
// id as trace id.
func (g *Gateway) writeAudit(ctx context.Context, action, traceID string, data map[string]any) {
	if g.deps.Audit == nil {
		return
	}
	if _, err := g.deps.Audit.Append(ctx, "user", action, traceID, data); err != nil {
		g.logger.Error("gateway: audit append failed",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}

// decodeParams strictly decodes request params into a typed struct.
func decodeParams(params map[string]any, v any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
