package manifest

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/bcap/stepper/chain"
)

// Steps is a list of step definitions. Each element is a map whose first key
// is the step type, in one of two forms:
//
//	# inline: the step key is the value of the type field
//	- effect: org
//	  capability: lookupOrg
//	  from: orgNick
//
//	# nested: the step body is the value of the type field
//	- effect:
//	    key: org
//	    capability: lookupOrg
//	    from: orgNick
type Steps []Step

// rawStep has no custom decoding, so decoding into it does not recurse
type rawStep Step

// inlineStep is the shape of the inline form
type inlineStep struct {
	Pure       string `json:"pure,omitempty" yaml:"pure,omitempty"`
	Effect     string `json:"effect,omitempty" yaml:"effect,omitempty"`
	Capability string `json:"capability,omitempty" yaml:"capability,omitempty"`
	From       string `json:"from,omitempty" yaml:"from,omitempty"`
	Template   string `json:"template,omitempty" yaml:"template,omitempty"`
	Input      any    `json:"input,omitempty" yaml:"input,omitempty"`
}

func (i inlineStep) step() (Step, error) {
	step := Step{
		Capability: i.Capability,
		From:       i.From,
		Template:   i.Template,
		Input:      i.Input,
	}
	switch {
	case i.Pure != "" && i.Effect != "":
		return Step{}, fmt.Errorf("step cannot be both pure (%q) and effect (%q)", i.Pure, i.Effect)
	case i.Pure != "":
		step.Type, step.Key = chain.StepTypePure, i.Pure
	case i.Effect != "":
		step.Type, step.Key = chain.StepTypeEffect, i.Effect
	default:
		return Step{}, fmt.Errorf("step has no type: expected a pure or effect field")
	}
	return step, nil
}

func parseStepType(value string) (chain.StepType, bool) {
	stepType := chain.StepType(value)
	switch stepType {
	case chain.StepTypePure, chain.StepTypeEffect:
		return stepType, true
	}
	return "", false
}

func (s Steps) MarshalYAML() (interface{}, error) {
	return s.toMarshallable(), nil
}

func (s *Steps) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("steps is a list of maps, but got %q instead in line %d", node.Tag, node.Line)
	}
	steps := make(Steps, len(node.Content))
	for idx, node := range node.Content {
		if node.Kind != yaml.MappingNode || len(node.Content) < 2 {
			return fmt.Errorf("steps is a list of maps, but got an element of type %q in line %d", node.Tag, node.Line)
		}
		stepType, ok := parseStepType(node.Content[0].Value)
		if !ok {
			return fmt.Errorf("unrecognized step type %q in line %d", node.Content[0].Value, node.Line)
		}

		if node.Content[1].Kind == yaml.MappingNode {
			// nested form
			if len(node.Content) > 2 {
				return fmt.Errorf("nested %s step in line %d has extra fields", stepType, node.Line)
			}
			var step rawStep
			if err := node.Content[1].Decode(&step); err != nil {
				return err
			}
			step.Type = stepType
			steps[idx] = Step(step)
			continue
		}

		// inline form
		var inline inlineStep
		if err := node.Decode(&inline); err != nil {
			return err
		}
		step, err := inline.step()
		if err != nil {
			return fmt.Errorf("invalid step in line %d: %w", node.Line, err)
		}
		steps[idx] = step
	}
	*s = steps
	return nil
}

func (s Steps) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.toMarshallable())
}

func (s *Steps) UnmarshalJSON(data []byte) error {
	rawSteps := []map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &rawSteps); err != nil {
		return err
	}
	steps := make(Steps, len(rawSteps))
	for idx, rawStep := range rawSteps {
		step, err := decodeJSONStep(rawStep)
		if err != nil {
			return fmt.Errorf("invalid step %d: %w", idx, err)
		}
		steps[idx] = step
	}
	*s = steps
	return nil
}

func decodeJSONStep(fields map[string]json.RawMessage) (Step, error) {
	if len(fields) == 1 {
		for name, content := range fields {
			stepType, ok := parseStepType(name)
			if ok && len(content) > 0 && content[0] == '{' {
				// nested form
				var step rawStep
				if err := json.Unmarshal(content, &step); err != nil {
					return Step{}, err
				}
				step.Type = stepType
				return Step(step), nil
			}
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return Step{}, err
	}
	var inline inlineStep
	if err := json.Unmarshal(data, &inline); err != nil {
		return Step{}, err
	}
	return inline.step()
}

// toMarshallable renders steps in the nested form, which does not depend on map
// key ordering
func (s Steps) toMarshallable() any {
	if len(s) == 0 {
		return nil
	}
	rawSteps := make([]map[string]any, len(s))
	for idx, step := range s {
		rawSteps[idx] = map[string]any{string(step.Type): rawStep(step)}
	}
	return rawSteps
}
