// Package input parses step inputs given on the command line.
package input

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var keyRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseSpecs parses KEY=VALUE input specs. A bare KEY takes its value from the
// environment variable with the same name so secrets stay out of the command line.
func ParseSpecs(specs []string) (map[string]string, error) {
	inputs := make(map[string]string, len(specs))

	for _, spec := range specs {
		if spec == "" {
			return nil, fmt.Errorf("input spec cannot be empty")
		}

		if key, value, ok := strings.Cut(spec, "="); ok {
			if !isValidKey(key) {
				return nil, fmt.Errorf("invalid input key %q", key)
			}

			inputs[key] = value
			continue
		}

		if !isValidKey(spec) {
			return nil, fmt.Errorf("invalid input key %q", spec)
		}

		value, ok := os.LookupEnv(spec)
		if !ok {
			return nil, fmt.Errorf("environment variable %q for input is not set", spec)
		}

		inputs[spec] = value
	}

	return inputs, nil
}

// LoadFile reads a flat YAML (or JSON) mapping of inputs. Scalar values are
// kept in their string form.
func LoadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read inputs file: %w", err)
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("could not parse inputs file: %w", err)
	}

	inputs := make(map[string]string, len(raw))
	for k, n := range raw {
		if !isValidKey(k) {
			return nil, fmt.Errorf("invalid input key %q", k)
		}
		if n.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("input %q must be a scalar value", k)
		}
		if n.Tag == "!!null" {
			inputs[k] = ""
			continue
		}
		inputs[k] = n.Value
	}

	return inputs, nil
}

// MergeMaps returns a new map with the override values on top of base.
func MergeMaps(base map[string]string, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return map[string]string{}
	}

	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}

	return merged
}

func isValidKey(k string) bool {
	return keyRegexp.MatchString(k)
}
