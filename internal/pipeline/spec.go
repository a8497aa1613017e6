package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Spec is the YAML form of a pipeline definition.
//
//	name: openacc-port
//	max_fixpoint_iterations: 10
//	passes:
//	  - name: delete-calls
//	    options: {callee: DR_HOOK, simplify: "true"}
//	  - fixpoint:
//	      - name: remove-unused-decls
//	  - name: well-formed
type Spec struct {
	Name                  string     `yaml:"name"`
	MaxFixpointIterations int        `yaml:"max_fixpoint_iterations,omitempty"`
	Passes                []StepSpec `yaml:"passes"`
}

// StepSpec is one pipeline step: either a named pass with options, or a
// fixpoint group of inner steps.
type StepSpec struct {
	Name          string            `yaml:"name,omitempty"`
	Options       map[string]string `yaml:"options,omitempty"`
	Fixpoint      []StepSpec        `yaml:"fixpoint,omitempty"`
	MaxIterations int               `yaml:"max_iterations,omitempty"`
}

// LoadSpec reads and parses a pipeline specification file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline spec: %w", err)
	}
	return ParseSpec(data)
}

// ParseSpec parses a YAML pipeline specification.
func ParseSpec(data []byte) (*Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse pipeline spec: %w", err)
	}
	if len(s.Passes) == 0 {
		return nil, fmt.Errorf("pipeline spec %q has no passes", s.Name)
	}
	if err := validateSteps(s.Passes); err != nil {
		return nil, err
	}
	return &s, nil
}

func validateSteps(steps []StepSpec) error {
	for _, st := range steps {
		switch {
		case st.Name != "" && len(st.Fixpoint) > 0:
			return fmt.Errorf("step %q sets both name and fixpoint", st.Name)
		case st.Name == "" && len(st.Fixpoint) == 0:
			return fmt.Errorf("step has neither name nor fixpoint")
		case len(st.Fixpoint) > 0:
			if err := validateSteps(st.Fixpoint); err != nil {
				return err
			}
		}
	}
	return nil
}
