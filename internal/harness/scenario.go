package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a declarative integration test: a sequence of content
// and relation operations executed against a fresh store, followed by
// assertions over the final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps contains the operations to execute in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one operation in a scenario.
type Step struct {
	// Op names the operation:
	// content.create, content.update, content.delete,
	// relation.create, relation.update, relation.delete.
	Op string `yaml:"op"`

	// Type is the content or relation type the operation targets.
	Type string `yaml:"type"`

	// ID targets an existing record for update and delete. Supports
	// $name references to earlier save_as bindings.
	ID string `yaml:"id,omitempty"`

	// As is the acting user's ID. Supports $name references.
	As string `yaml:"as,omitempty"`

	// Data holds the fields for create operations.
	Data map[string]any `yaml:"data,omitempty"`

	// Filters selects relations for relation.update and relation.delete.
	Filters map[string]any `yaml:"filters,omitempty"`

	// Updates holds the field changes for update operations.
	Updates map[string]any `yaml:"updates,omitempty"`

	// SaveAs binds the created record's ID to a name for later steps.
	SaveAs string `yaml:"save_as,omitempty"`

	// Expect validates the step's outcome. Without one the step must
	// simply succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies a step's expected outcome.
type Expect struct {
	// Error is the expected fault code (e.g. "CONFLICT",
	// "VALIDATION_ERROR"). Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`

	// Fields are expected values on the returned record, matched as a
	// subset.
	Fields map[string]any `yaml:"fields,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of state_match, state_count, state_absent.
	Type string `yaml:"type"`

	// Table is the content or relation type to inspect.
	Table string `yaml:"table"`

	// ID selects one record by ID. Supports $name references.
	ID string `yaml:"id,omitempty"`

	// Where selects records by exact field match.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values, matched as a subset.
	// Used by state_match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of matches. Used by state_count.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertStateMatch  = "state_match"
	AssertStateCount  = "state_count"
	AssertStateAbsent = "state_absent"
)

// stepOps enumerates the operations a step may name.
var stepOps = map[string]bool{
	"content.create":  true,
	"content.update":  true,
	"content.delete":  true,
	"relation.create": true,
	"relation.update": true,
	"relation.delete": true,
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so field-name typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
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
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if !stepOps[step.Op] {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if step.Type == "" {
			return fmt.Errorf("steps[%d]: type is required", i)
		}
		switch step.Op {
		case "content.create", "relation.create":
			if step.Data == nil {
				return fmt.Errorf("steps[%d]: data is required for %s", i, step.Op)
			}
		case "content.update":
			if step.ID == "" {
				return fmt.Errorf("steps[%d]: id is required for %s", i, step.Op)
			}
			if step.Updates == nil {
				return fmt.Errorf("steps[%d]: updates is required for %s", i, step.Op)
			}
		case "content.delete":
			if step.ID == "" {
				return fmt.Errorf("steps[%d]: id is required for %s", i, step.Op)
			}
		case "relation.update":
			if step.Filters == nil || step.Updates == nil {
				return fmt.Errorf("steps[%d]: filters and updates are required for %s", i, step.Op)
			}
		case "relation.delete":
			if step.Filters == nil {
				return fmt.Errorf("steps[%d]: filters is required for %s", i, step.Op)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Table == "" {
		return fmt.Errorf("assertions[%d]: table is required", index)
	}
	switch a.Type {
	case AssertStateMatch:
		if a.ID == "" && len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: id or where is required for state_match", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for state_match", index)
		}
	case AssertStateCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertStateAbsent:
		if a.ID == "" && len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: id or where is required for state_absent", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
