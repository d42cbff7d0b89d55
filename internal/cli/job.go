package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/karsol/graft/internal/connector"
)

// LoadJob reads a job configuration file. Unknown fields are rejected so a
// typo in a toggle fails loud instead of silently running with defaults.
func LoadJob(path string) (connector.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return connector.Config{}, fmt.Errorf("job file %q: %w", path, err)
	}
	defer f.Close()

	var cfg connector.Config
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return connector.Config{}, fmt.Errorf("parse job file %q: %w", path, err)
	}

	if cfg.SubjectKey == "" {
		return connector.Config{}, fmt.Errorf("job file %q: subject must not be empty", path)
	}
	if cfg.DynamicSchemaName == "" {
		return connector.Config{}, fmt.Errorf("job file %q: dynamic_schema must not be empty", path)
	}
	return cfg, nil
}
