// Package risk implements pre-trade evaluation and the process-wide
// emergency-stop state machine that gates trade placement.
package risk

// ViolationCode enumerates the policy checks an intent can fail.
type ViolationCode string

const (
	ViolationSymbolNotAllowed       ViolationCode = "SYMBOL_NOT_ALLOWED"
	ViolationMaxVolumeExceeded      ViolationCode = "MAX_VOLUME_EXCEEDED"
	ViolationMaxConcurrentPositions ViolationCode = "MAX_CONCURRENT_POSITIONS"
	ViolationMaxDailyLoss           ViolationCode = "MAX_DAILY_LOSS"
	ViolationStopLossRequired       ViolationCode = "STOP_LOSS_REQUIRED"

	// ViolationEmergencyStopActive is synthesized by the gateway when the
	// kill switch is engaged; the engine itself never emits it.
	ViolationEmergencyStopActive ViolationCode = "EMERGENCY_STOP_ACTIVE"
)

// TradeIntent is an operator-proposed trade before risk evaluation.
type TradeIntent struct {
	AccountID  string   `json:"accountId"`
	Symbol     string   `json:"symbol"`
	Action     string   `json:"action"`
	Side       string   `json:"side"`
	Volume     float64  `json:"volume"`
	StopLoss   *float64 `json:"stopLoss"`
	TakeProfit *float64 `json:"takeProfit"`
}

// Policy is the per-account rule set applied to each intent.
type Policy struct {
	AllowedSymbols         []string `json:"allowedSymbols"`
	MaxVolume              float64  `json:"maxVolume"`
	MaxConcurrentPositions int      `json:"maxConcurrentPositions"`
	MaxDailyLoss           float64  `json:"maxDailyLoss"`
	RequireStopLoss        bool     `json:"requireStopLoss"`
}

// AccountSnapshot is the point-in-time account state fed to the engine.
type AccountSnapshot struct {
	OpenPositions int     `json:"openPositions"`
	DailyPnl      float64 `json:"dailyPnl"`
}

// Violation is one failed check with diagnostic details.
type Violation struct {
	Code    ViolationCode  `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// Decision is the engine output. Allowed holds exactly when no check failed.
type Decision struct {
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations"`
}

// Engine evaluates intents against policy and account state. It holds no
// state; Evaluate is a pure function of its inputs.
type Engine struct{}

// NewEngine returns a risk engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate runs every check independently and returns all violations, not
// just the first.
func (e *Engine) Evaluate(intent TradeIntent, policy Policy, snapshot AccountSnapshot) Decision {
	var violations []Violation

	if !containsSymbol(policy.AllowedSymbols, intent.Symbol) {
		violations = append(violations, Violation{
			Code:    ViolationSymbolNotAllowed,
			Message: "Symbol is not in the allowlist.",
			Details: map[string]any{"symbol": intent.Symbol},
		})
	}

	if intent.Volume > policy.MaxVolume {
		violations = append(violations, Violation{
			Code:    ViolationMaxVolumeExceeded,
			Message: "Requested volume exceeds max_volume policy.",
			Details: map[string]any{"volume": intent.Volume, "maxVolume": policy.MaxVolume},
		})
	}

	if snapshot.OpenPositions >= policy.MaxConcurrentPositions {
		violations = append(violations, Violation{
			Code:    ViolationMaxConcurrentPositions,
			Message: "Max concurrent positions reached.",
			Details: map[string]any{
				"openPositions":          snapshot.OpenPositions,
				"maxConcurrentPositions": policy.MaxConcurrentPositions,
			},
		})
	}

	if loss := min(snapshot.DailyPnl, 0); -loss >= policy.MaxDailyLoss {
		violations = append(violations, Violation{
			Code:    ViolationMaxDailyLoss,
			Message: "Daily loss limit reached.",
			Details: map[string]any{"dailyPnl": snapshot.DailyPnl, "maxDailyLoss": policy.MaxDailyLoss},
		})
	}

	if policy.RequireStopLoss && intent.StopLoss == nil {
		violations = append(violations, Violation{
			Code:    ViolationStopLossRequired,
			Message: "Stop loss is required by policy.",
			Details: map[string]any{},
		})
	}

	if violations == nil {
		violations = []Violation{}
	}
	return Decision{Allowed: len(violations) == 0, Violations: violations}
}

func containsSymbol(allowed []string, symbol string) bool {
	for _, s := range allowed {
		if s == symbol {
			return true
		}
	}
	return false
}
