// Package providers - Execution provider configuration.
package providers

import "sort"

// ExecutionProviderConfig contains configuration for specific execution providers
type ExecutionProviderConfig struct {
	// Provider specifies which execution provider to use
	Provider Provider `json:"provider" yaml:"provider"`

	// Options contains provider-specific configuration options
	Options map[string]string `json:"options" yaml:"options"`

	// Priority determines the order in which providers are tried (higher = first)
	Priority int `json:"priority" yaml:"priority"`

	// Enabled toggles whether this provider should be used
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Enabled returns the enabled providers, highest priority first. Providers
// with equal priority keep their configured order.
//
// Arguments:
//   - configs: The configured providers.
//
// Returns:
//   - []ExecutionProviderConfig: Enabled execution providers in priority order
func Enabled(configs []ExecutionProviderConfig) []ExecutionProviderConfig {
	enabled := make([]ExecutionProviderConfig, 0, len(configs))
	for _, c := range configs {
		if c.Enabled {
			enabled = append(enabled, c)
		}
	}

	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority > enabled[j].Priority
	})

	return enabled
}

// Wants reports whether p is among the enabled providers.
func Wants(configs []ExecutionProviderConfig, p Provider) bool {
	for _, c := range Enabled(configs) {
		if c.Provider == p {
			return true
		}
	}
	return false
}
