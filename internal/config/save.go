package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/arena/internal/experiment"
)

// Render serialises the resolved settings. The result is written to each
// run's config.log.
func Render(cfg Config) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	return buf.String(), nil
}

// LoadExperiment reads experiment parameters from a YAML file on top of base.
// Unknown keys are rejected so a typo never silently falls back to a default.
func LoadExperiment(path string, base experiment.Params) (experiment.Params, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-supplied experiment file
	if err != nil {
		return base, fmt.Errorf("reading experiment file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	p := base
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("parsing experiment file %s: %w", path, err)
	}
	return p, nil
}
