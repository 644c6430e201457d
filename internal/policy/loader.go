package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML policy file and returns a validated Policy.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var pol Policy
	if err := yaml.Unmarshal(data, &pol); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}

	if err := validate(&pol); err != nil {
		return nil, fmt.Errorf("validating policy: %w", err)
	}

	return &pol, nil
}

func validate(pol *Policy) error {
	for _, key := range pol.Tables.Include {
		if key == "" {
			return fmt.Errorf("tables.include contains an empty entry")
		}
	}
	for _, key := range pol.Tables.Exclude {
		if key == "" {
			return fmt.Errorf("tables.exclude contains an empty entry")
		}
	}
	for key, cols := range pol.Columns {
		if key == "" {
			return fmt.Errorf("columns contains an empty table key")
		}
		for col, mask := range cols {
			if col == "" {
				return fmt.Errorf("columns[%q] contains an empty column key", key)
			}
			if !mask.Valid() {
				return fmt.Errorf("columns[%q][%q]: invalid mask %q (allowed: redact, hash, partial, null)", key, col, mask)
			}
		}
	}
	return nil
}
