package marketplace

import "time"

// CatalogSignals returns the published signal catalog. This is a fixed
// two-signal sample standing in for a real strategy catalog; the payload
// shape matches what a catalog-backed implementation would serve.
func CatalogSignals(now time.Time) []map[string]any {
	ts := now.UTC().Format(time.RFC3339Nano)
	return []map[string]any{
		{
			"signalId":   "sig_demo_eth_1",
			"strategyId": "strat_eth_breakout",
			"ts":         ts,
			"symbol":     "ETHUSDm",
			"timeframe":  "5m",
			"action":     ActionOpen,
			"side":       "buy",
			"volume":     0.10,
			"entry":      2500.0,
			"stopLoss":   2450.0,
			"takeProfit": 2600.0,
		},
		{
			"signalId":   "sig_demo_btc_1",
			"strategyId": "strat_btc_meanrev",
			"ts":         ts,
			"symbol":     "BTCUSDm",
			"timeframe":  "1h",
			"action":     ActionOpen,
			"side":       "sell",
			"volume":     0.05,
			"entry":      64000.0,
			"stopLoss":   64800.0,
			"takeProfit": 62500.0,
		},
	}
}
