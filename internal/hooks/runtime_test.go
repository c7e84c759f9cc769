package hooks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHook(t *testing.T, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hook.js")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func TestEvaluateReturnsDecision(t *testing.T) {
	path := writeHook(t, `
		function evaluate(event, state) {
			if (event.topic === "market.candle.closed") {
				return { decision: "WAKE", reason: "candle closed", dedupeKey: "wake_" + event.symbol };
			}
			return { decision: "IGNORE" };
		}
	`)

	runtime := NewRuntime()
	decision, err := runtime.Evaluate(path, map[string]any{
		"topic":  "market.candle.closed",
		"symbol": "ETHUSDm",
	}, map[string]any{}, 0)
	require.NoError(t, err)

	assert.Equal(t, "WAKE", decision["decision"])
	assert.Equal(t, "candle closed", decision["reason"])
	assert.Equal(t, "wake_ETHUSDm", decision["dedupeKey"])
}

func TestEvaluateReceivesState(t *testing.T) {
	path := writeHook(t, `
		function evaluate(event, state) {
			return { decision: "IGNORE", seen: state.runCount };
		}
	`)

	runtime := NewRuntime()
	decision, err := runtime.Evaluate(path, map[string]any{}, map[string]any{"runCount": 3}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), decision["seen"])
}

func TestEvaluateMissingFile(t *testing.T) {
	runtime := NewRuntime()
	_, err := runtime.Evaluate(filepath.Join(t.TempDir(), "absent.js"), nil, nil, 0)
	require.Error(t, err)

	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Message, "not found")
}

func TestEvaluateMissingFunction(t *testing.T) {
	path := writeHook(t, `var decide = function () { return {}; };`)

	runtime := NewRuntime()
	_, err := runtime.Evaluate(path, nil, nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must define a function evaluate")
}

func TestEvaluateNonObjectResult(t *testing.T) {
	path := writeHook(t, `function evaluate() { return 42; }`)

	runtime := NewRuntime()
	_, err := runtime.Evaluate(path, nil, nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must return an object")
}

func TestEvaluateScriptError(t *testing.T) {
	path := writeHook(t, `function evaluate() { throw new Error("boom"); }`)

	runtime := NewRuntime()
	_, err := runtime.Evaluate(path, nil, nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestEvaluateTimesOut(t *testing.T) {
	path := writeHook(t, `function evaluate() { while (true) {} }`)

	runtime := NewRuntime()
	_, err := runtime.Evaluate(path, nil, nil, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out after 50ms")
}
