package models

import (
	"fmt"
	"slices"
	"strings"
)

// Step is one ranked unit of work inside a workflow. Steps sharing an order are peers.
// A Step obtained from NewStep is validated and must be treated as read-only.
type Step struct {
	Key             string   `json:"key"                       validate:"required"              yaml:"key"`
	Order           int      `json:"order"                     validate:"min=1"                 yaml:"order"`
	Parallelizable  bool     `json:"parallelizable"            yaml:"parallelizable"`
	EntryCriteria   []string `json:"entryCriteria,omitempty"   yaml:"entryCriteria,omitempty"`
	ExitCriteria    []string `json:"exitCriteria"              validate:"min=1,dive,required"   yaml:"exitCriteria"`
	ResponsibleRole string   `json:"responsibleRole"           validate:"required"              yaml:"responsibleRole"`
	GateKey         string   `json:"gateKey,omitempty"         yaml:"gateKey,omitempty"`
	SupportingTasks []string `json:"supportingTasks,omitempty" yaml:"supportingTasks,omitempty"`
}

// NewStep validates a step definition and returns an independent copy of it.
func NewStep(definition Step) (Step, error) {
	step := Step{
		Key:             strings.TrimSpace(definition.Key),
		Order:           definition.Order,
		Parallelizable:  definition.Parallelizable,
		EntryCriteria:   cloneStrings(definition.EntryCriteria),
		ExitCriteria:    cloneStrings(definition.ExitCriteria),
		ResponsibleRole: strings.TrimSpace(definition.ResponsibleRole),
		GateKey:         strings.TrimSpace(definition.GateKey),
		SupportingTasks: cloneStrings(definition.SupportingTasks),
	}

	err := ValidateStruct(step)
	if err != nil {
		if step.Key == "" {
			return Step{}, err
		}

		return Step{}, fmt.Errorf("step %s: %w", step.Key, err)
	}

	return step, nil
}

func (s Step) IsParallelizable() bool {
	return s.Parallelizable
}

func (s Step) HasGate() bool {
	return s.GateKey != ""
}

// PendingExitCriteria returns the exit criteria not present in satisfied, in declaration order.
func (s Step) PendingExitCriteria(satisfied []string) []string {
	pending := make([]string, 0, len(s.ExitCriteria))

	for _, criterion := range s.ExitCriteria {
		if !slices.Contains(satisfied, criterion) {
			pending = append(pending, criterion)
		}
	}

	return pending
}

func (s Step) clone() Step {
	s.EntryCriteria = cloneStrings(s.EntryCriteria)
	s.ExitCriteria = cloneStrings(s.ExitCriteria)
	s.SupportingTasks = cloneStrings(s.SupportingTasks)

	return s
}

func cloneStrings(values []string) []string {
	if values == nil {
		return []string{}
	}

	return slices.Clone(values)
}
