package cli

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ExportConfig holds netlist export options, loadable from a YAML file so a
// generator invocation can be pinned in version control. Flags set on the
// command line override file values.
type ExportConfig struct {
	Dialect   string `yaml:"dialect"`
	Flatten   bool   `yaml:"flatten"`
	InlineTop bool   `yaml:"inline_top"`
	Output    string `yaml:"output"`
	CachePath string `yaml:"cache"`
}

// DefaultExportConfig returns the built-in defaults.
func DefaultExportConfig() ExportConfig {
	return ExportConfig{Dialect: "spectre"}
}

// LoadExportConfig reads an ExportConfig from a YAML file. Unknown keys are
// rejected so a typo does not silently fall back to a default.
func LoadExportConfig(path string) (ExportConfig, error) {
	cfg := DefaultExportConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading options file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing options file %s: %w", path, err)
	}
	return cfg, nil
}
