package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/tidwall/jsonc"
)

// envPattern matches ${VAR} references inside string values.
var envPattern = regexp.MustCompile(`\$\{([A-Z0-9_]+)\}`)

// Load reads, interpolates, and validates the JSONC config file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes JSONC config bytes: comments stripped, ${VAR} references
// substituted from the environment (missing variables become empty
// strings), unknown fields rejected, then validated.
func Parse(raw []byte) (*Config, error) {
	plainJSON := jsonc.ToJSON(raw)

	var tree any
	if err := json.Unmarshal(plainJSON, &tree); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	tree = interpolateEnv(tree)

	interpolated, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("config: re-encode: %w", err)
	}

	cfg, err := decodeStrict(interpolated)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Patch deep-merges patch into base and re-validates. The base config is
// untouched on failure.
func Patch(base *Config, patch map[string]any) (*Config, error) {
	baseRaw, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("config: marshal base: %w", err)
	}
	var baseTree map[string]any
	if err := json.Unmarshal(baseRaw, &baseTree); err != nil {
		return nil, fmt.Errorf("config: decode base: %w", err)
	}

	merged := deepMerge(baseTree, patch)
	mergedRaw, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("config: marshal merged: %w", err)
	}

	cfg, err := decodeStrict(mergedRaw)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Schema describes the config tree for config.schema clients.
func Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"gateway": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"host": map[string]any{"type": "string"},
					"port": map[string]any{"type": "integer", "minimum": 1, "maximum": 65535},
					"auth": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"mode":  map[string]any{"type": "string", "enum": []string{"token", "none"}},
							"token": map[string]any{"type": "string"},
						},
					},
				},
			},
			"plugins": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"allow": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"deny":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"slots": map[string]any{"type": "object"},
				},
			},
			"accounts": map[string]any{"type": "array"},
			"feeds": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"candles": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"enabled":                map[string]any{"type": "boolean"},
							"pollSecondsByTimeframe": map[string]any{"type": "object"},
						},
					},
					"priceTicks": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"enabled": map[string]any{"type": "boolean"},
						},
					},
				},
			},
			"dataDir":   map[string]any{"type": "string"},
			"logLevel":  map[string]any{"type": "string", "enum": []string{"debug", "info", "warn", "error"}},
			"agents":    map[string]any{"type": "object"},
			"audit":     map[string]any{"type": "object"},
			"bus":       map[string]any{"type": "object"},
			"archive":   map[string]any{"type": "object"},
			"connector": map[string]any{"type": "object"},
			"secrets":   map[string]any{"type": "object"},
		},
		"additionalProperties": false,
	}
}

func decodeStrict(raw []byte) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: schema validation failed: %w", err)
	}
	return &cfg, nil
}

func interpolateEnv(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = interpolateEnv(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = interpolateEnv(item)
		}
		return out
	case string:
		return envPattern.ReplaceAllStringFunc(v, func(match string) string {
			name := envPattern.FindStringSubmatch(match)[1]
			return os.Getenv(name)
		})
	default:
		return value
	}
}

// deepMerge overlays patch onto base. Nested objects merge recursively;
// arrays and scalars replace.
func deepMerge(base map[string]any, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for key, value := range base {
		out[key] = value
	}
	for key, patchValue := range patch {
		baseValue, exists := out[key]
		baseMap, baseIsMap := baseValue.(map[string]any)
		patchMap, patchIsMap := patchValue.(map[string]any)
		if exists && baseIsMap && patchIsMap {
			out[key] = deepMerge(baseMap, patchMap)
			continue
		}
		out[key] = patchValue
	}
	return out
}
