// Package backtest replays candle history against a strategy callback and
// resolves each generated signal by the first touch of its stop loss or
// take profit. It is a deliberately simple model: no order book, no
// partial fills, exit at the final close when neither level triggers.
package backtest

import "math"

// Candle is one OHLC bar.
type Candle struct {
	TS    string  `json:"ts"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Signal is a strategy's request to open a simulated trade.
type Signal struct {
	Side       string  `json:"side"` // "buy" or "sell"
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
}

// Trade is one resolved simulated trade.
type Trade struct {
	EntryTS    string  `json:"entryTs"`
	ExitTS     string  `json:"exitTs"`
	Side       string  `json:"side"`
	Entry      float64 `json:"entry"`
	Exit       float64 `json:"exit"`
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
	Pnl        float64 `json:"pnl"`
	Outcome    string  `json:"outcome"` // "win", "loss", "flat"
}

// Metrics summarizes a run. All values are rounded to four decimals.
type Metrics struct {
	TotalReturnPct float64 `json:"totalReturnPct"`
	MaxDrawdownPct float64 `json:"maxDrawdownPct"`
	WinRatePct     float64 `json:"winRatePct"`
	ProfitFactor   float64 `json:"profitFactor"`
	Trades         int     `json:"trades"`
}

// Result is the full output of one simulation.
type Result struct {
	Trades      []Trade   `json:"trades"`
	Metrics     Metrics   `json:"metrics"`
	EquityCurve []float64 `json:"equityCurve"`
}

// StrategyFn inspects the history up to (and including) index i and may
// emit a signal for that candle.
type StrategyFn func(i int, candles []Candle) *Signal

// DefaultStartingEquity seeds the equity curve.
const DefaultStartingEquity = 1000.0

// Simulator runs strategies over candle history.
type Simulator struct{}

// NewSimulator returns a simulator.
func NewSimulator() *Simulator {
	return &Simulator{}
}

// Run iterates the candles, opens a trade for every signal, and resolves
// each by scanning forward for the first SL or TP touch.
func (s *Simulator) Run(candles []Candle, strategy StrategyFn, startingEquity float64) Result {
	if startingEquity == 0 {
		startingEquity = DefaultStartingEquity
	}

	equity := startingEquity
	equityCurve := []float64{equity}
	trades := []Trade{}

	grossProfit := 0.0
	grossLoss := 0.0

	for i, candle := range candles {
		signal := strategy(i, candles)
		if signal == nil {
			continue
		}

		trade := simulateTrade(*signal, candle.TS, candles[i+1:], candles[len(candles)-1])
		trades = append(trades, trade)

		equity += trade.Pnl
		equityCurve = append(equityCurve, equity)

		if trade.Pnl > 0 {
			grossProfit += trade.Pnl
		} else if trade.Pnl < 0 {
			grossLoss += trade.Pnl
		}
	}

	wins := 0
	for _, trade := range trades {
		if trade.Outcome == "win" {
			wins++
		}
	}
	winRatePct := 0.0
	if len(trades) > 0 {
		winRatePct = float64(wins) / float64(len(trades)) * 100
	}
	profitFactor := math.Max(grossProfit, 0)
	if grossLoss != 0 {
		profitFactor = grossProfit / math.Abs(grossLoss)
	}
	totalReturnPct := 0.0
	if startingEquity != 0 {
		totalReturnPct = (equity - startingEquity) / startingEquity * 100
	}

	return Result{
		Trades:      trades,
		EquityCurve: equityCurve,
		Metrics: Metrics{
			TotalReturnPct: round4(totalReturnPct),
			MaxDrawdownPct: round4(maxDrawdownPct(equityCurve)),
			WinRatePct:     round4(winRatePct),
			ProfitFactor:   round4(profitFactor),
			Trades:         len(trades),
		},
	}
}

// simulateTrade scans forward candles for the first SL or TP touch. For
// longs the stop is checked against the low first, then the target against
// the high; shorts mirror that. Without a touch the trade exits at the
// fallback candle's close.
func simulateTrade(signal Signal, entryTS string, future []Candle, fallback Candle) Trade {
	exitPrice := fallback.Close
	exitTS := fallback.TS

	for _, candle := range future {
		if signal.Side == "buy" {
			if candle.Low <= signal.StopLoss {
				exitPrice = signal.StopLoss
				exitTS = candle.TS
				break
			}
			if candle.High >= signal.TakeProfit {
				exitPrice = signal.TakeProfit
				exitTS = candle.TS
				break
			}
		} else {
			if candle.High >= signal.StopLoss {
				exitPrice = signal.StopLoss
				exitTS = candle.TS
				break
			}
			if candle.Low <= signal.TakeProfit {
				exitPrice = signal.TakeProfit
				exitTS = candle.TS
				break
			}
		}
	}

	pnl := exitPrice - signal.Entry
	if signal.Side != "buy" {
		pnl = signal.Entry - exitPrice
	}
	outcome := "flat"
	if pnl > 0 {
		outcome = "win"
	} else if pnl < 0 {
		outcome = "loss"
	}

	return Trade{
		EntryTS:    entryTS,
		ExitTS:     exitTS,
		Side:       signal.Side,
		Entry:      signal.Entry,
		Exit:       exitPrice,
		StopLoss:   signal.StopLoss,
		TakeProfit: signal.TakeProfit,
		Pnl:        pnl,
		Outcome:    outcome,
	}
}

// maxDrawdownPct computes the largest percentage drop from a running peak.
func maxDrawdownPct(equityCurve []float64) float64 {
	peak := 0.0
	if len(equityCurve) > 0 {
		peak = equityCurve[0]
	}
	maxDrawdown := 0.0
	for _, equity := range equityCurve {
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			drawdown := (peak - equity) / peak * 100
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}
	return maxDrawdown
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
