// Package app is the composition root: it builds every store and service
// from configuration, restores persisted state, and runs the server plus
// the background loops until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openclaw/tradegate/internal/config"
	"github.com/openclaw/tradegate/internal/feeds"
	"github.com/openclaw/tradegate/internal/gateway"
	"github.com/openclaw/tradegate/internal/queue"
	"github.com/openclaw/tradegate/internal/server"
)

// collectFlushInterval is how often collect-mode queues are swept for
// debounce-expired batches.
const collectFlushInterval = 250 * time.Millisecond

// App is the root application object. It owns the configuration, logger,
// and the cleanup functions run in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("data_dir", a.cfg.DataDir),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	gw := gateway.New(deps.Gateway)
	srv := server.New(server.Config{
		Host: a.cfg.Gateway.Host,
		Port: a.cfg.Gateway.Port,
	}, gw, deps.Gateway.Metrics.Registry, a.logger)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return srv.Start()
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Sweep collect-mode queues so debounce-expired batches re-enter
	// admission even when no request traffic arrives.
	group.Go(func() error {
		return a.runCollectFlush(ctx, deps.Queues)
	})

	if a.cfg.Feeds.Candles.Enabled && len(a.cfg.Feeds.Candles.PollSecondsByTimeframe) > 0 {
		poller := feeds.NewPoller(
			deps.Feeds,
			newPipelineSink(deps.Pipeline, deps.Queues, a.logger),
			accountSymbols(a.cfg),
			a.cfg.Feeds.Candles.PollSecondsByTimeframe,
			a.logger,
		)
		group.Go(func() error {
			return poller.Run(ctx)
		})
	}

	return group.Wait()
}

func (a *App) runCollectFlush(ctx context.Context, queues *queue.Manager) error {
	ticker := time.NewTicker(collectFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for agentID, decision := range queues.FlushCollect() {
				a.logger.Info("app: collect batch flushed",
					slog.String("agent_id", agentID),
					slog.String("decision", string(decision.Type)),
				)
			}
		}
	}
}

// Close tears down all resources in reverse registration order. Safe to
// call multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// accountSymbols collects the union of allowed symbols across configured
// accounts for the candle poller.
func accountSymbols(cfg *config.Config) []string {
	seen := map[string]bool{}
	var symbols []string
	for _, account := range cfg.Accounts {
		for _, symbol := range account.AllowedSymbols {
			if !seen[symbol] {
				seen[symbol] = true
				symbols = append(symbols, symbol)
			}
		}
	}
	return symbols
}

// pipelineSink feeds poller events through the hook pipeline and submits
// resulting wake requests to the queue manager.
type pipelineSink struct {
	pipeline *feeds.Pipeline
	queues   *queue.Manager
	logger   *slog.Logger
}

func newPipelineSink(pipeline *feeds.Pipeline, queues *queue.Manager, logger *slog.Logger) *pipelineSink {
	return &pipelineSink{
		pipeline: pipeline,
		queues:   queues,
		logger:   logger.With(slog.String("component", "pipeline_sink")),
	}
}

// ProcessEvent implements feeds.EventSink.
func (s *pipelineSink) ProcessEvent(event feeds.Event) feeds.PipelineOutput {
	output := s.pipeline.ProcessEvent(event)

	for _, request := range output.WakeRequests {
		decision, err := s.queues.Submit(request)
		if err != nil {
			s.logger.Warn("app: wake request rejected",
				slog.String("agent_id", request.AgentID),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.logger.Info("app: wake request admitted",
			slog.String("agent_id", request.AgentID),
			slog.String("decision", string(decision.Type)),
		)
	}
	return output
}
