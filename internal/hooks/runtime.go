// Package hooks executes operator-authored hook scripts. A hook is a
// JavaScript file exporting evaluate(event, state) that returns a decision
// object; execution runs in a fresh interpreter per call under a hard time
// budget so a misbehaving hook cannot stall the feed pipeline.
package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dop251/goja"
)

// DefaultTimeoutMs is the hard evaluation budget when the caller passes 0.
const DefaultTimeoutMs = 200

// RuntimeError reports a hook failure (missing file, bad script, timeout,
// or a non-object result).
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("hooks: %s", e.Message)
}

func runtimeErr(format string, args ...any) error {
	return &RuntimeError{Message: fmt.Sprintf(format, args...)}
}

// interruptReason is the sentinel goja sees when the budget expires.
const interruptReason = "hook budget exceeded"

// Runtime evaluates hook scripts.
type Runtime struct{}

// NewRuntime returns a hook runtime.
func NewRuntime() *Runtime {
	return &Runtime{}
}

// Evaluate loads the script at hookPath, injects event and state, calls
// evaluate(event, state), and returns the decision object. The call is
// interrupted once timeoutMs elapses.
func (r *Runtime) Evaluate(hookPath string, event, state map[string]any, timeoutMs int) (map[string]any, error) {
	script, err := os.ReadFile(hookPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, runtimeErr("hook file not found: %s", hookPath)
		}
		return nil, runtimeErr("read hook file: %v", err)
	}

	if timeoutMs <= 0 {
		timeoutMs = DefaultTimeoutMs
	}
	budget := time.Duration(timeoutMs) * time.Millisecond

	vm := goja.New()

	timer := time.AfterFunc(budget, func() {
		vm.Interrupt(interruptReason)
	})
	defer timer.Stop()

	if _, err := vm.RunScript(hookPath, string(script)); err != nil {
		return nil, mapGojaError(err, timeoutMs)
	}

	evaluate, ok := goja.AssertFunction(vm.Get("evaluate"))
	if !ok {
		return nil, runtimeErr("hook must define a function evaluate(event, state)")
	}

	result, err := evaluate(goja.Undefined(), vm.ToValue(event), vm.ToValue(state))
	if err != nil {
		return nil, mapGojaError(err, timeoutMs)
	}

	return exportDecision(result)
}

// exportDecision converts the returned value into a plain map, going
// through a JSON round-trip for exotic objects.
func exportDecision(value goja.Value) (map[string]any, error) {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, runtimeErr("hook evaluate() must return an object")
	}

	exported := value.Export()
	if decision, ok := exported.(map[string]any); ok {
		return decision, nil
	}

	raw, err := json.Marshal(exported)
	if err == nil {
		var decision map[string]any
		if json.Unmarshal(raw, &decision) == nil && decision != nil {
			return decision, nil
		}
	}
	return nil, runtimeErr("hook evaluate() must return an object, got %T", exported)
}

func mapGojaError(err error, timeoutMs int) error {
	if interrupted, ok := err.(*goja.InterruptedError); ok {
		if reason, _ := interrupted.Value().(string); reason == interruptReason {
			return runtimeErr("hook execution timed out after %dms", timeoutMs)
		}
	}
	return runtimeErr("execute hook: %v", err)
}
