package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bip/internal/ir"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists CUE files or directories to compile and load.
	// Paths are relative to the scenario file location.
	Specs []string `yaml:"specs"`

	// Rounds is the number of rounds to run. It must be positive so every
	// scenario terminates.
	Rounds int64 `yaml:"rounds"`

	// RoundTimeout bounds each executor command. Defaults to one second.
	RoundTimeout time.Duration `yaml:"round_timeout,omitempty"`

	// Informs are delivered to components before the first round.
	Informs []InformStep `yaml:"informs,omitempty"`

	// Assertions validate the trace and the final component states.
	Assertions []Assertion `yaml:"assertions"`

	// RunID is an optional fixed run id. If empty, defaults to
	// "test-run-default".
	RunID string `yaml:"run_id,omitempty"`
}

// InformStep notifies a spontaneous port of one component instance.
type InformStep struct {
	Component string         `yaml:"component"`
	Port      string         `yaml:"port"`
	Data      map[string]any `yaml:"data,omitempty"`
}

// Assertion validates the trace or a final component state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "fired_count": interaction fired exactly Count times
	// - "never_fired": interaction, or any interaction involving Component,
	//   never fired
	// - "fire_order": Interactions fired in this relative order
	// - "final_state": Component ended in State with Values
	// - "event_count": Count events of Kind (and Code, if set)
	Type string `yaml:"type"`

	// Interaction is an interaction key such as "a.sync,b.sync".
	Interaction string `yaml:"interaction,omitempty"`

	// Interactions is the expected firing order (used by fire_order).
	Interactions []string `yaml:"interactions,omitempty"`

	// Component is a component instance id.
	Component string `yaml:"component,omitempty"`

	// State is the expected final state (used by final_state).
	State string `yaml:"state,omitempty"`

	// Values are expected local values (used by final_state).
	// Subset match - only specified keys are validated.
	Values map[string]any `yaml:"values,omitempty"`

	// Kind is a status event kind (used by event_count).
	Kind string `yaml:"kind,omitempty"`

	// Code narrows event_count to one error code.
	Code string `yaml:"code,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFiredCount = "fired_count"
	AssertNeverFired = "never_fired"
	AssertFireOrder  = "fire_order"
	AssertFinalState = "final_state"
	AssertEventCount = "event_count"
)

// LoadScenario reads and parses a scenario YAML file. Spec paths are
// resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict fields catch typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve spec paths relative to base path BEFORE validation
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}
	if s.Rounds <= 0 {
		return fmt.Errorf("rounds must be positive, got %d", s.Rounds)
	}
	if s.RoundTimeout < 0 {
		return fmt.Errorf("round_timeout must not be negative")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	for i, step := range s.Informs {
		if step.Component == "" {
			return fmt.Errorf("informs[%d]: component is required", i)
		}
		if step.Port == "" {
			return fmt.Errorf("informs[%d]: port is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFiredCount:
		if a.Interaction == "" {
			return fmt.Errorf("assertions[%d]: interaction is required for fired_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for fired_count", index)
		}
	case AssertNeverFired:
		if a.Interaction == "" && a.Component == "" {
			return fmt.Errorf("assertions[%d]: interaction or component is required for never_fired", index)
		}
	case AssertFireOrder:
		if len(a.Interactions) == 0 {
			return fmt.Errorf("assertions[%d]: interactions list is required for fire_order", index)
		}
	case AssertFinalState:
		if a.Component == "" {
			return fmt.Errorf("assertions[%d]: component is required for final_state", index)
		}
		if a.State == "" && len(a.Values) == 0 {
			return fmt.Errorf("assertions[%d]: state or values is required for final_state", index)
		}
	case AssertEventCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for event_count", index)
		}
		if !validKinds[ir.StatusKind(a.Kind)] {
			return fmt.Errorf("assertions[%d]: unknown event kind %q", index, a.Kind)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

var validKinds = map[ir.StatusKind]bool{
	ir.StatusRunStarted:           true,
	ir.StatusRunStopped:           true,
	ir.StatusRoundStarted:         true,
	ir.StatusRoundCompleted:       true,
	ir.StatusExecutorTimeout:      true,
	ir.StatusExecutorFailed:       true,
	ir.StatusGuardFailed:          true,
	ir.StatusInteractionSelected:  true,
	ir.StatusInteractionDiscarded: true,
	ir.StatusInteractionFired:     true,
	ir.StatusFireFailed:           true,
}
