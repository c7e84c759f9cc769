package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// EventSink receives poller-produced feed events.
type EventSink interface {
	ProcessEvent(event Event) PipelineOutput
}

// Poller periodically synthesizes closed candles for the configured
// timeframes and pushes them through the hook pipeline. One goroutine per
// timeframe; all stop when the context is cancelled.
type Poller struct {
	service   *Service
	sink      EventSink
	symbols   []string
	intervals map[string]int // timeframe -> poll seconds
	logger    *slog.Logger
	now       func() time.Time
	seq       atomic.Int64
}

// NewPoller creates a poller emitting candles for the given symbols on
// each configured timeframe interval.
func NewPoller(service *Service, sink EventSink, symbols []string, intervals map[string]int, logger *slog.Logger) *Poller {
	return &Poller{
		service:   service,
		sink:      sink,
		symbols:   symbols,
		intervals: intervals,
		logger:    logger.With(slog.String("component", "feed_poller")),
		now:       time.Now,
	}
}

// Run blocks until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if len(p.intervals) == 0 || len(p.symbols) == 0 {
		p.logger.Info("feeds: poller idle, no timeframes or symbols configured")
		<-ctx.Done()
		return ctx.Err()
	}

	group, ctx := errgroup.WithContext(ctx)
	for timeframe, seconds := range p.intervals {
		group.Go(func() error {
			return p.pollTimeframe(ctx, timeframe, seconds)
		})
	}
	return group.Wait()
}

func (p *Poller) pollTimeframe(ctx context.Context, timeframe string, seconds int) error {
	if seconds <= 0 {
		seconds = 60
	}
	ticker := time.NewTicker(time.Duration(seconds) * time.Second)
	defer ticker.Stop()

	p.logger.Info("feeds: polling timeframe",
		slog.String("timeframe", timeframe),
		slog.Int("interval_seconds", seconds),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.emitClosedCandles(timeframe)
		}
	}
}

func (p *Poller) emitClosedCandles(timeframe string) {
	for _, symbol := range p.symbols {
		candles := p.service.GetCandles(symbol, timeframe, 1)
		if len(candles) == 0 {
			continue
		}
		candle := candles[0]
		seq := p.seq.Add(1)

		sym := symbol
		tf := timeframe
		output := p.sink.ProcessEvent(Event{
			EventID: fmt.Sprintf("feed_%s_%s_%d", symbol, timeframe, seq),
			TS:      p.now().UTC().Format(time.RFC3339Nano),
			Source:  "candle_poller",
			Topic:   "market.candle.closed",
			Payload: map[string]any{
				"ts":    candle.TS,
				"open":  candle.Open,
				"high":  candle.High,
				"low":   candle.Low,
				"close": candle.Close,
			},
			Symbol:    &sym,
			Timeframe: &tf,
		})

		for _, hookErr := range output.HookErrors {
			p.logger.Warn("feeds: hook failed",
				slog.Any("hook_error", hookErr),
			)
		}
	}
}
