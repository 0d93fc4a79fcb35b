package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format represents the file format of a configuration file.
type Format int

const (
	FormatUnknown Format = iota
	FormatYAML
	FormatTOML
	FormatJSON
)

// detectFormat determines the file format based on extension or content.
func detectFormat(path string, content []byte) Format {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	}

	// Content sniffing for extensionless files
	return sniffFormat(content)
}

// sniffFormat attempts to detect format from content.
func sniffFormat(content []byte) Format {
	trimmed := strings.TrimSpace(string(content))

	if strings.HasPrefix(trimmed, "{") {
		return FormatJSON
	}

	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, " = ") || strings.HasPrefix(line, "[") {
			return FormatTOML
		}
		// If we see : without =, it's likely YAML
		if strings.Contains(line, ":") && !strings.Contains(line, "=") {
			return FormatYAML
		}
	}

	if strings.Contains(trimmed, ":") {
		return FormatYAML
	}

	return FormatUnknown
}

// rawPublishers captures publisherName before its flexible format is
// normalized.
type rawPublishers struct {
	PublisherName interface{} `yaml:"publisherName" toml:"publisherName" json:"publisherName"`
}

// parsePublishers converts the flexible publisherName format to a list.
// It can be specified as:
//   - Simple string: "Acme Corp"
//   - List of strings: ["Acme Corp", "Acme GmbH"]
func parsePublishers(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []interface{}:
		names := make([]string, 0, len(v))
		for i, item := range v {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("publisherName[%d]: invalid format (expected string)", i)
			}
			names = append(names, name)
		}
		return names, nil
	default:
		return nil, fmt.Errorf("publisherName: invalid format (expected string or list)")
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns in content.
func expandEnvVars(content []byte) []byte {
	return envVarPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		parts := envVarPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		value := os.Getenv(string(parts[1]))
		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}
		return []byte(value)
	})
}

func unmarshal(content []byte, format Format, v interface{}) error {
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(content, v); err != nil {
			return fmt.Errorf("YAML parse error: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(content, v); err != nil {
			return fmt.Errorf("TOML parse error: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(content, v); err != nil {
			return fmt.Errorf("JSON parse error: %w", err)
		}
	default:
		return fmt.Errorf("unknown file format")
	}
	return nil
}

// parse parses the content according to the specified format.
func parse(content []byte, format Format) (*Config, error) {
	content = expandEnvVars(content)

	var cfg Config
	if err := unmarshal(content, format, &cfg); err != nil {
		return nil, err
	}

	var raw rawPublishers
	if err := unmarshal(content, format, &raw); err != nil {
		return nil, err
	}
	publishers, err := parsePublishers(raw.PublisherName)
	if err != nil {
		return nil, err
	}
	cfg.PublisherName = publishers

	return &cfg, nil
}
