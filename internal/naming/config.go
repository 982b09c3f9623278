// Package naming derives resource names (collection names, model names)
// from table and model names, including pluralization.
package naming

// Config holds naming customization options
type Config struct {
	// PluralOverrides maps singular -> custom plural
	// Example: {"person": "people", "status": "statuses"}
	PluralOverrides map[string]string `mapstructure:"plural_overrides" yaml:"plural_overrides"`

	// SingularOverrides maps plural -> custom singular
	// Example: {"people": "person", "data": "datum"}
	SingularOverrides map[string]string `mapstructure:"singular_overrides" yaml:"singular_overrides"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   make(map[string]string),
		SingularOverrides: make(map[string]string),
	}
}
