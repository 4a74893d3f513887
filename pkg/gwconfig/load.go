package gwconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads the YAML runtime-tunables file at path, applies
// defaults, and validates the result. A missing file is not an
// error — an all-defaults Config is returned, since every gateway
// knob has a sensible default and only the credentials file is
// mandatory in practice.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("gwconfig: read %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("gwconfig: parse %s: %w", path, err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("gwconfig: %w", err)
	}
	return &cfg, nil
}
