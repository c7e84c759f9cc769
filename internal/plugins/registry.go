// Package plugins resolves which plugins are enabled for the process from
// allow/deny lists and validates slot assignments against expected kinds.
package plugins

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Record describes one discovered plugin.
type Record struct {
	PluginID string `json:"pluginId"`
	Kind     string `json:"kind"`
}

// Config carries the plugin policy from the config tree.
type Config struct {
	Allow []string          `json:"allow"`
	Deny  []string          `json:"deny"`
	Slots map[string]string `json:"slots"`
}

// Resolved is the outcome of applying the policy to registered plugins.
type Resolved struct {
	EnabledPlugins []string          `json:"enabledPlugins"`
	ActiveSlots    map[string]string `json:"activeSlots"`
	Diagnostics    []string          `json:"diagnostics"`
}

// slotKinds maps slot names to the plugin kind they accept.
var slotKinds = map[string]string{
	"memory": "memory",
}

// Registry holds registered plugins and the configured policy.
type Registry struct {
	mu      sync.Mutex
	config  Config
	plugins map[string]Record
}

// NewRegistry creates a registry with the given policy.
func NewRegistry(config Config) *Registry {
	return &Registry{
		config:  config,
		plugins: make(map[string]Record),
	}
}

// Register adds one plugin record. Registering the same id twice is an
// error.
func (r *Registry) Register(plugin Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[plugin.PluginID]; exists {
		return fmt.Errorf("plugins: plugin %q already registered", plugin.PluginID)
	}
	r.plugins[plugin.PluginID] = plugin
	return nil
}

// Discover reads <dir>/*/plugin.json manifests and registers each record.
// A missing directory is not an error; malformed manifests are reported
// in the returned diagnostics.
func (r *Registry) Discover(dir string) []string {
	var diagnostics []string

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return diagnostics
		}
		return append(diagnostics, fmt.Sprintf("read plugin dir: %v", err))
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifestPath := filepath.Join(dir, entry.Name(), "plugin.json")
		raw, err := os.ReadFile(manifestPath)
		if err != nil {
			if !os.IsNotExist(err) {
				diagnostics = append(diagnostics, fmt.Sprintf("read manifest %s: %v", manifestPath, err))
			}
			continue
		}
		var record Record
		if err := json.Unmarshal(raw, &record); err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("parse manifest %s: %v", manifestPath, err))
			continue
		}
		if record.PluginID == "" || record.Kind == "" {
			diagnostics = append(diagnostics, fmt.Sprintf("manifest %s missing pluginId or kind", manifestPath))
			continue
		}
		if err := r.Register(record); err != nil {
			diagnostics = append(diagnostics, err.Error())
		}
	}
	return diagnostics
}

// Resolve applies the allow/deny policy and validates slots. An empty
// allow list enables every registered plugin; deny always wins.
func (r *Registry) Resolve() Resolved {
	r.mu.Lock()
	defer r.mu.Unlock()

	var diagnostics []string

	allow := toSet(r.config.Allow)
	deny := toSet(r.config.Deny)

	enabled := make(map[string]bool, len(r.plugins))
	for id := range r.plugins {
		if len(allow) > 0 && !allow[id] {
			continue
		}
		if deny[id] {
			continue
		}
		enabled[id] = true
	}

	activeSlots := make(map[string]string)
	slotNames := make([]string, 0, len(r.config.Slots))
	for name := range r.config.Slots {
		slotNames = append(slotNames, name)
	}
	sort.Strings(slotNames)

	for _, slotName := range slotNames {
		slotPluginID := r.config.Slots[slotName]
		plugin, known := r.plugins[slotPluginID]
		expectedKind := slotKinds[slotName]

		switch {
		case !known:
			diagnostics = append(diagnostics, fmt.Sprintf("Slot '%s' references unknown plugin '%s'", slotName, slotPluginID))
		case !enabled[slotPluginID]:
			diagnostics = append(diagnostics, fmt.Sprintf("Slot '%s' plugin '%s' is not enabled", slotName, slotPluginID))
		case expectedKind != "" && plugin.Kind != expectedKind:
			diagnostics = append(diagnostics, fmt.Sprintf("Slot '%s' expects kind '%s' but got '%s'", slotName, expectedKind, plugin.Kind))
		default:
			activeSlots[slotName] = slotPluginID
		}
	}

	enabledList := make([]string, 0, len(enabled))
	for id := range enabled {
		enabledList = append(enabledList, id)
	}
	sort.Strings(enabledList)
	if diagnostics == nil {
		diagnostics = []string{}
	}

	return Resolved{
		EnabledPlugins: enabledList,
		ActiveSlots:    activeSlots,
		Diagnostics:    diagnostics,
	}
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, value := range values {
		set[value] = true
	}
	return set
}
