package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nestql/internal/request"
)

// Error categories an expectation can name.
const (
	ErrorConfiguration        = "configuration"
	ErrorUnsupportedOperation = "unsupported_operation"
	ErrorAssemblyInvariant    = "assembly_invariant"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the CUE schema directory. Relative paths are resolved
	// against the scenario file location.
	Schema string `yaml:"schema"`

	// Fixtures lists SQL files executed in order before the request.
	Fixtures []string `yaml:"fixtures,omitempty"`

	// Setup is inline SQL executed after the fixtures.
	Setup string `yaml:"setup,omitempty"`

	// Request is the request document, kept as a node so it is decoded
	// by the request package with its own strict rules.
	Request yaml.Node `yaml:"request"`

	// Expect is the expected outcome.
	Expect Expectation `yaml:"expect"`

	// SessionID is an optional fixed compile session ID.
	SessionID string `yaml:"session_id,omitempty"`
}

// Expectation is either a nested result or an error category.
type Expectation struct {
	// Result is the expected list of root values. Compared exactly,
	// including order.
	Result any `yaml:"result,omitempty"`

	// Error is the expected error category.
	Error string `yaml:"error,omitempty"`
}

// Document decodes the scenario's request document.
func (s *Scenario) Document() (*request.Document, error) {
	data, err := yaml.Marshal(&s.Request)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return request.Parse(data)
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "fixture:" vs "fixtures:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve paths relative to the scenario file BEFORE validation
	base := filepath.Dir(path)
	scenario.Schema = resolve(base, scenario.Schema)
	for i, f := range scenario.Fixtures {
		scenario.Fixtures[i] = resolve(base, f)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if s.Request.Kind == 0 {
		return fmt.Errorf("request is required")
	}
	if _, err := s.Document(); err != nil {
		return fmt.Errorf("request: %w", err)
	}

	for _, f := range s.Fixtures {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			return fmt.Errorf("fixture file not found: %s", f)
		}
	}

	switch {
	case s.Expect.Result == nil && s.Expect.Error == "":
		return fmt.Errorf("expect: result or error is required")
	case s.Expect.Result != nil && s.Expect.Error != "":
		return fmt.Errorf("expect: result and error are mutually exclusive")
	}
	switch s.Expect.Error {
	case "", ErrorConfiguration, ErrorUnsupportedOperation, ErrorAssemblyInvariant:
	default:
		return fmt.Errorf("expect.error: unknown category %q", s.Expect.Error)
	}
	return nil
}
