package scenario

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseScenario reads a YAML scenario file and returns a validated Scenario.
func ParseScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// Parse decodes and validates a scenario. Unknown YAML fields are errors.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, err
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", s.Name)
	}
	for i := range s.Steps {
		if err := validateStepFields(s.Name, i, &s.Steps[i]); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// ParseAllScenarios reads all .yaml files in dir and returns parsed
// scenarios in file name order.
func ParseAllScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenarios dir %s: %w", dir, err)
	}

	var scenarios []*Scenario
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		s, err := ParseScenario(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// stepValidation declares what fields each action requires.
type stepValidation struct {
	fields []string // required step fields: "vlan", "port", "ip", ...
	custom func(prefix string, step *Step) error
}

func requireClass(prefix string, step *Step) error {
	if step.ClassID <= 0 {
		return fmt.Errorf("%s: class_id is required", prefix)
	}
	return nil
}

func requireState(prefix string, step *Step) error {
	if step.State == "" {
		return fmt.Errorf("%s: state is required", prefix)
	}
	return nil
}

// stepValidations is the declarative validation table for all step actions.
// An action missing from this table is unknown.
var stepValidations = map[StepAction]stepValidation{
	ActionAddInterface:     {fields: []string{"vlan", "addresses"}},
	ActionAddPort:          {fields: []string{"port", "vlan"}},
	ActionRemovePort:       {fields: []string{"port"}},
	ActionSetLookupClasses: {fields: []string{"port"}},
	ActionMovePort:         {fields: []string{"port", "vlan"}},
	ActionAddNeighbor:      {fields: []string{"vlan", "ip"}},
	ActionRemoveNeighbor:   {fields: []string{"vlan", "ip"}},
	ActionSetNeighborClass: {fields: []string{"vlan", "ip"}},
	ActionSetNeighborState: {fields: []string{"vlan", "ip"}, custom: requireState},
	ActionAddRoute:         {fields: []string{"prefix"}},
	ActionRemoveRoute:      {fields: []string{"prefix"}},
	ActionMacLearn:         {fields: []string{"vlan", "mac", "port"}},
	ActionMacAge:           {fields: []string{"vlan", "mac"}},
	ActionMacClassify:      {fields: []string{"vlan", "mac", "port"}, custom: requireClass},
	ActionMacDeclassify:    {fields: []string{"vlan", "mac"}},
	ActionExpectRouteClass: {fields: []string{"prefix"}},
	ActionExpectMacClass:   {fields: []string{"vlan", "mac"}},
	ActionExpectMacAbsent:  {fields: []string{"vlan", "mac"}},
	ActionExpectInvariants: {},
}

// stepFieldSet maps step field names to a check that the field is set.
var stepFieldSet = map[string]func(*Step) bool{
	"vlan":      func(s *Step) bool { return s.Vlan != 0 },
	"port":      func(s *Step) bool { return s.Port != 0 },
	"ip":        func(s *Step) bool { return s.IP != "" },
	"mac":       func(s *Step) bool { return s.MAC != "" },
	"prefix":    func(s *Step) bool { return s.Prefix != "" },
	"addresses": func(s *Step) bool { return len(s.Addresses) > 0 },
}

// validateStepFields checks required fields and value ranges per action
// type using the stepValidations table.
func validateStepFields(scenario string, index int, step *Step) error {
	prefix := fmt.Sprintf("scenario %s step %d (%s)", scenario, index, step.Name)

	v, ok := stepValidations[step.Action]
	if !ok {
		return fmt.Errorf("%s: unknown action %q", prefix, step.Action)
	}

	for _, field := range v.fields {
		isSet, exists := stepFieldSet[field]
		if !exists {
			return fmt.Errorf("%s: unknown validation field %q (bug)", prefix, field)
		}
		if !isSet(step) {
			return fmt.Errorf("%s: %s is required", prefix, field)
		}
	}

	if step.Vlan < 0 || step.Vlan > 4094 {
		return fmt.Errorf("%s: vlan %d out of range", prefix, step.Vlan)
	}
	if step.ClassID < 0 || step.ClassID > math.MaxUint16 {
		return fmt.Errorf("%s: class_id %d out of range", prefix, step.ClassID)
	}
	if slices.ContainsFunc(step.LookupClasses, func(c int) bool { return c <= 0 || c > math.MaxUint16 }) {
		return fmt.Errorf("%s: lookup_classes %v out of range", prefix, step.LookupClasses)
	}
	if step.State != "" && step.State != "reachable" && step.State != "pending" {
		return fmt.Errorf("%s: state must be reachable or pending, got %q", prefix, step.State)
	}

	if v.custom != nil {
		if err := v.custom(prefix, step); err != nil {
			return err
		}
	}
	return nil
}
