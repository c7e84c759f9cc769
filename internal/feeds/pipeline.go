package feeds

import (
	"fmt"
	"sync"
	"time"

	"github.com/openclaw/tradegate/internal/hooks"
	"github.com/openclaw/tradegate/internal/queue"
	"github.com/openclaw/tradegate/internal/risk"
)

// Hook types.
const (
	HookTypeWake      = "wake"
	HookTypeAutotrade = "autotrade"
	HookTypeCopytrade = "copytrade"
)

// Event is one feed event pushed through the pipeline.
type Event struct {
	EventID   string         `json:"eventId"`
	TS        string         `json:"ts"`
	Source    string         `json:"source"`
	Topic     string         `json:"topic"`
	Payload   map[string]any `json:"payload"`
	Symbol    *string        `json:"symbol"`
	Timeframe *string        `json:"timeframe"`
	AccountID *string        `json:"accountId"`
}

// HookRegistration binds a hook script to an agent and a topic set.
type HookRegistration struct {
	HookID   string   `json:"hookId"`
	AgentID  string   `json:"agentId"`
	HookType string   `json:"hookType"`
	HookPath string   `json:"hookPath"`
	Topics   []string `json:"topics"`
}

// Validate checks the registration fields.
func (h HookRegistration) Validate() error {
	if h.HookID == "" || h.AgentID == "" || h.HookPath == "" {
		return fmt.Errorf("feeds: hook registration requires hookId, agentId, hookPath")
	}
	switch h.HookType {
	case HookTypeWake, HookTypeAutotrade, HookTypeCopytrade:
	default:
		return fmt.Errorf("feeds: unknown hook type %q", h.HookType)
	}
	if len(h.Topics) == 0 {
		return fmt.Errorf("feeds: hook registration requires at least one topic")
	}
	return nil
}

// PipelineOutput collects everything one event produced.
type PipelineOutput struct {
	WakeRequests []queue.Request    `json:"wakeRequests"`
	TradeIntents []risk.TradeIntent `json:"tradeIntents"`
	HookErrors   []map[string]any   `json:"hookErrors"`
}

// Pipeline fans feed events out to registered hooks. Hook failures are
// collected per event and never abort the remaining hooks.
type Pipeline struct {
	mu      sync.Mutex
	runtime *hooks.Runtime
	hooks   []HookRegistration
	now     func() time.Time
}

// NewPipeline creates a pipeline over the given hook runtime.
func NewPipeline(runtime *hooks.Runtime) *Pipeline {
	return &Pipeline{runtime: runtime, now: time.Now}
}

// RegisterHook appends a registration.
func (p *Pipeline) RegisterHook(registration HookRegistration) error {
	if err := registration.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, registration)
	return nil
}

// ProcessEvent evaluates every topic-matched hook against the event.
func (p *Pipeline) ProcessEvent(event Event) PipelineOutput {
	p.mu.Lock()
	registrations := make([]HookRegistration, len(p.hooks))
	copy(registrations, p.hooks)
	p.mu.Unlock()

	output := PipelineOutput{
		WakeRequests: []queue.Request{},
		TradeIntents: []risk.TradeIntent{},
		HookErrors:   []map[string]any{},
	}
	eventPayload := eventAsMap(event)

	for _, registration := range registrations {
		if !topicMatches(registration.Topics, event.Topic) {
			continue
		}

		decision, err := p.runtime.Evaluate(registration.HookPath, eventPayload, map[string]any{}, 0)
		if err != nil {
			output.HookErrors = append(output.HookErrors, map[string]any{
				"hookId":  registration.HookID,
				"agentId": registration.AgentID,
				"error":   err.Error(),
			})
			continue
		}

		decisionType, _ := decision["decision"].(string)
		switch {
		case registration.HookType == HookTypeWake && decisionType == "WAKE":
			request := queue.Request{
				RequestID: fmt.Sprintf("ar_%s_%s", event.EventID, registration.HookID),
				AgentID:   registration.AgentID,
				Kind:      "hook_trigger",
				Payload: map[string]any{
					"reason":         decision["reason"],
					"triggerEventId": event.EventID,
					"triggerTopic":   event.Topic,
					"triggerTs":      p.now().UTC().Format(time.RFC3339Nano),
				},
			}
			if key, ok := decision["dedupeKey"].(string); ok && key != "" {
				request.DedupeKey = &key
			}
			output.WakeRequests = append(output.WakeRequests, request)

		case (registration.HookType == HookTypeAutotrade || registration.HookType == HookTypeCopytrade) && decisionType == "TRADE_INTENT":
			intent, err := intentFromDecision(decision)
			if err != nil {
				output.HookErrors = append(output.HookErrors, map[string]any{
					"hookId":  registration.HookID,
					"agentId": registration.AgentID,
					"error":   err.Error(),
				})
				continue
			}
			output.TradeIntents = append(output.TradeIntents, intent)
		}
	}

	return output
}

func topicMatches(topics []string, topic string) bool {
	for _, t := range topics {
		if t == topic {
			return true
		}
	}
	return false
}

func eventAsMap(event Event) map[string]any {
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	m := map[string]any{
		"eventId": event.EventID,
		"ts":      event.TS,
		"source":  event.Source,
		"topic":   event.Topic,
		"payload": payload,
	}
	if event.Symbol != nil {
		m["symbol"] = *event.Symbol
	}
	if event.Timeframe != nil {
		m["timeframe"] = *event.Timeframe
	}
	if event.AccountID != nil {
		m["accountId"] = *event.AccountID
	}
	return m
}

// intentFromDecision validates the intent object a trade hook returned.
func intentFromDecision(decision map[string]any) (risk.TradeIntent, error) {
	raw, ok := decision["intent"].(map[string]any)
	if !ok {
		return risk.TradeIntent{}, fmt.Errorf("feeds: TRADE_INTENT decision missing intent object")
	}

	intent := risk.TradeIntent{}
	intent.AccountID, _ = raw["accountId"].(string)
	intent.Symbol, _ = raw["symbol"].(string)
	intent.Action, _ = raw["action"].(string)
	intent.Side, _ = raw["side"].(string)
	intent.Volume = asFloat(raw["volume"])
	if v, ok := raw["stopLoss"]; ok && v != nil {
		f := asFloat(v)
		intent.StopLoss = &f
	}
	if v, ok := raw["takeProfit"]; ok && v != nil {
		f := asFloat(v)
		intent.TakeProfit = &f
	}

	if intent.AccountID == "" || intent.Symbol == "" || intent.Side == "" || intent.Volume <= 0 {
		return risk.TradeIntent{}, fmt.Errorf("feeds: TRADE_INTENT decision has incomplete intent")
	}
	if intent.Action == "" {
		intent.Action = "PLACE_MARKET_ORDER"
	}
	return intent, nil
}

func asFloat(v any) float64 {
	switch value := v.(type) {
	case float64:
		return value
	case int64:
		return float64(value)
	case int:
		return float64(value)
	}
	return 0
}
