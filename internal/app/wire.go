package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/openclaw/tradegate/internal/archive"
	"github.com/openclaw/tradegate/internal/audit"
	"github.com/openclaw/tradegate/internal/backtest"
	"github.com/openclaw/tradegate/internal/bus"
	"github.com/openclaw/tradegate/internal/config"
	"github.com/openclaw/tradegate/internal/connector"
	"github.com/openclaw/tradegate/internal/feeds"
	"github.com/openclaw/tradegate/internal/gateway"
	"github.com/openclaw/tradegate/internal/hooks"
	"github.com/openclaw/tradegate/internal/marketplace"
	"github.com/openclaw/tradegate/internal/memory"
	"github.com/openclaw/tradegate/internal/metrics"
	"github.com/openclaw/tradegate/internal/notify"
	"github.com/openclaw/tradegate/internal/plugins"
	"github.com/openclaw/tradegate/internal/queue"
	"github.com/openclaw/tradegate/internal/registry"
	"github.com/openclaw/tradegate/internal/risk"
	"github.com/openclaw/tradegate/internal/secrets"
	"github.com/openclaw/tradegate/internal/trades"
)

// Deps aggregates everything Run needs after wiring.
type Deps struct {
	Gateway  gateway.Deps
	Queues   *queue.Manager
	Feeds    *feeds.Service
	Pipeline *feeds.Pipeline
}

// Wire builds every subsystem from the configuration. The returned
// cleanup closes process-lifetime resources (db handles, clients) in one
// call.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	stateDir := filepath.Join(cfg.DataDir, "state")

	// Audit trail, optionally mirrored into postgres.
	var mirror audit.Mirror
	if cfg.Audit.PostgresDsn != "" {
		pgMirror, err := audit.NewPostgresMirror(ctx, cfg.Audit.PostgresDsn)
		if err != nil {
			cleanup()
			return Deps{}, nil, fmt.Errorf("app: audit mirror: %w", err)
		}
		closers = append(closers, pgMirror.Close)
		mirror = pgMirror
	}
	auditStore, err := audit.NewStore(cfg.DataDir, mirror, logger)
	if err != nil {
		cleanup()
		return Deps{}, nil, err
	}

	// Queues restore from the snapshot file.
	snapshotStore, err := queue.NewSnapshotStore(filepath.Join(stateDir, "agent_queues.json"), logger)
	if err != nil {
		cleanup()
		return Deps{}, nil, err
	}
	queues := queue.NewManager(snapshotStore, func() int64 {
		return time.Now().UnixMilli()
	}, logger)

	// Credential sealer, only when a passphrase is configured.
	var sealer registry.CredentialSealer
	if cfg.Secrets.Passphrase != "" {
		s, err := secrets.NewSealer(cfg.Secrets.Passphrase)
		if err != nil {
			cleanup()
			return Deps{}, nil, err
		}
		sealer = s
	}

	accounts, err := registry.NewAccountRegistry(filepath.Join(stateDir, "accounts.json"), sealer, logger)
	if err != nil {
		cleanup()
		return Deps{}, nil, err
	}
	agents, err := registry.NewAgentRegistry(filepath.Join(stateDir, "agents.json"), cfg.Agents.WorkspaceBaseDir, logger)
	if err != nil {
		cleanup()
		return Deps{}, nil, err
	}
	devices, err := registry.NewDeviceRegistry(filepath.Join(stateDir, "devices.json"), logger)
	if err != nil {
		cleanup()
		return Deps{}, nil, err
	}

	// Accounts declared in config register at boot; failures are fatal
	// because a config account is an operator promise.
	for _, account := range cfg.Accounts {
		if _, err := accounts.Connect(registry.ConnectInput{
			AccountID:         account.AccountID,
			ConnectorID:       account.ConnectorID,
			ProviderAccountID: account.ProviderAccountID,
			Mode:              account.Mode,
			Label:             account.Label,
			AllowedSymbols:    account.AllowedSymbols,
			Credentials:       account.Credentials,
		}); err != nil {
			cleanup()
			return Deps{}, nil, fmt.Errorf("app: register config account %s: %w", account.AccountID, err)
		}
	}

	memoryIndex, err := memory.NewIndex(filepath.Join(cfg.DataDir, "memory.db"))
	if err != nil {
		cleanup()
		return Deps{}, nil, err
	}
	closers = append(closers, func() { _ = memoryIndex.Close() })

	pluginRegistry := plugins.NewRegistry(plugins.Config{
		Allow: cfg.Plugins.Allow,
		Deny:  cfg.Plugins.Deny,
		Slots: cfg.Plugins.Slots,
	})
	// Built-in plugins, then any on-disk manifests.
	_ = pluginRegistry.Register(plugins.Record{PluginID: "sqlite_fts", Kind: "memory"})
	_ = pluginRegistry.Register(plugins.Record{PluginID: "candle_gen", Kind: "feed"})
	for _, diagnostic := range pluginRegistry.Discover(filepath.Join(cfg.DataDir, "plugins")) {
		logger.Warn("app: plugin discovery", slog.String("diagnostic", diagnostic))
	}

	feedService := feeds.NewService()
	pipeline := feeds.NewPipeline(hooks.NewRuntime())

	var conn *connector.Connector
	if cfg.Connector.BaseURL != "" {
		timeout := time.Duration(cfg.Connector.TimeoutSeconds) * time.Second
		conn = connector.New(connector.NewHTTPTransport(cfg.Connector.BaseURL, cfg.Connector.Token, timeout))
	}

	var publisher gateway.EventPublisher
	if cfg.Bus.RedisAddr != "" {
		signalBus, err := bus.Dial(ctx, cfg.Bus.RedisAddr, cfg.Bus.RedisPassword, cfg.Bus.RedisDB)
		if err != nil {
			cleanup()
			return Deps{}, nil, err
		}
		closers = append(closers, func() { _ = signalBus.Close() })
		publisher = signalBus
	}

	var archiver gateway.Archiver
	if cfg.Archive.Enabled {
		s3Archiver, err := archive.New(ctx, archive.Config{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			Bucket:    cfg.Archive.Bucket,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
		})
		if err != nil {
			cleanup()
			return Deps{}, nil, err
		}
		archiver = s3Archiver
	}

	pushSender := notify.NewPushSender(logger)
	notifier := notify.NewNotifier([]notify.Sender{pushSender}, nil, logger)

	gatewayDeps := gateway.Deps{
		Logger:         logger,
		Config:         cfg,
		Audit:          auditStore,
		RiskEngine:     risk.NewEngine(),
		Control:        risk.NewControlState(),
		Queues:         queues,
		Accounts:       accounts,
		Agents:         agents,
		Devices:        devices,
		Feeds:          feedService,
		Pipeline:       pipeline,
		Backtest:       backtest.NewSimulator(),
		Trades:         trades.NewService(conn),
		Connector:      conn,
		Memory:         memoryIndex,
		Plugins:        pluginRegistry,
		Mapper:         marketplace.NewMapper(marketplace.Constraints{}),
		Notifier:       notifier,
		Metrics:        metrics.New(),
		Publisher:      publisher,
		PublishChannel: bus.EventsChannel,
		Archive:        archiver,
	}

	return Deps{
		Gateway:  gatewayDeps,
		Queues:   queues,
		Feeds:    feedService,
		Pipeline: pipeline,
	}, cleanup, nil
}
