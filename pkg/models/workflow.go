// Package models defines the value types of the handoff orchestrator: workflows and their
// steps, work items, attempt claims, handoff artifacts, gate decisions and schedules.
package models

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
)

// WorkflowDefinition is the declarative form of a workflow as stored in definition files.
type WorkflowDefinition struct {
	ID            string `json:"id"                      validate:"required" yaml:"id"`
	Name          string `json:"name"                    validate:"required" yaml:"name"`
	Version       string `json:"version"                 validate:"required" yaml:"version"`
	EffectiveFrom string `json:"effectiveFrom,omitempty" yaml:"effectiveFrom,omitempty"`
	EffectiveTo   string `json:"effectiveTo,omitempty"   yaml:"effectiveTo,omitempty"`
	Steps         []Step `json:"steps"                   validate:"min=1"    yaml:"steps"`
	SchemaVersion string `json:"schemaVersion,omitempty" yaml:"schemaVersion,omitempty"`
}

// Workflow is an immutable, validated workflow. Steps are kept sorted by
// (order ascending, key lexical) and indexed by key.
type Workflow struct {
	id            string
	name          string
	version       string
	effectiveFrom *time.Time
	effectiveTo   *time.Time
	schemaVersion string
	steps         []Step
	index         map[string]int
}

// NewWorkflow builds a Workflow from its definition, enforcing step validity,
// non-decreasing orders and unique step keys.
func NewWorkflow(definition WorkflowDefinition) (*Workflow, error) {
	definition.ID = strings.TrimSpace(definition.ID)
	definition.Name = strings.TrimSpace(definition.Name)
	definition.Version = strings.TrimSpace(definition.Version)

	err := ValidateStruct(definition)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", definition.ID, err)
	}

	effectiveFrom, err := parseOptionalTime(definition.EffectiveFrom)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w: effectiveFrom: %w", definition.ID, ErrInvalid, err)
	}

	effectiveTo, err := parseOptionalTime(definition.EffectiveTo)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w: effectiveTo: %w", definition.ID, ErrInvalid, err)
	}

	steps := make([]Step, 0, len(definition.Steps))

	for _, stepDefinition := range definition.Steps {
		step, err := NewStep(stepDefinition)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: %w", definition.ID, err)
		}

		steps = append(steps, step)
	}

	slices.SortStableFunc(steps, compareSteps)

	index := make(map[string]int, len(steps))

	for position, step := range steps {
		if position > 0 && step.Order < steps[position-1].Order {
			return nil, fmt.Errorf("workflow %s: %w: step %s has order %d after %s with order %d",
				definition.ID, ErrInvalid, step.Key, step.Order, steps[position-1].Key, steps[position-1].Order)
		}

		if _, exists := index[step.Key]; exists {
			return nil, fmt.Errorf("workflow %s: %w: duplicate step key %s", definition.ID, ErrInvalid, step.Key)
		}

		index[step.Key] = position
	}

	return &Workflow{
		id:            definition.ID,
		name:          definition.Name,
		version:       definition.Version,
		effectiveFrom: effectiveFrom,
		effectiveTo:   effectiveTo,
		schemaVersion: definition.SchemaVersion,
		steps:         steps,
		index:         index,
	}, nil
}

func (w *Workflow) ID() string      { return w.id }
func (w *Workflow) Name() string    { return w.name }
func (w *Workflow) Version() string { return w.version }

// Steps returns the workflow steps in launch order.
func (w *Workflow) Steps() []Step {
	steps := make([]Step, len(w.steps))
	for i, step := range w.steps {
		steps[i] = step.clone()
	}

	return steps
}

// StepKeys returns every step key in launch order.
func (w *Workflow) StepKeys() []string {
	keys := make([]string, len(w.steps))
	for i, step := range w.steps {
		keys[i] = step.Key
	}

	return keys
}

// Step looks a step up by key.
func (w *Workflow) Step(key string) (Step, error) {
	position, ok := w.index[key]
	if !ok {
		return Step{}, fmt.Errorf("%w: %s in workflow %s", ErrStepNotFound, key, w.id)
	}

	return w.steps[position].clone(), nil
}

func (w *Workflow) HasStep(key string) bool {
	_, ok := w.index[key]

	return ok
}

func (w *Workflow) ParallelizableSteps() []Step {
	var steps []Step

	for _, step := range w.steps {
		if step.IsParallelizable() {
			steps = append(steps, step.clone())
		}
	}

	return steps
}

// EffectiveAt reports whether at falls inside the optional validity window.
// The window start is inclusive and the end exclusive.
func (w *Workflow) EffectiveAt(at time.Time) bool {
	if w.effectiveFrom != nil && at.Before(*w.effectiveFrom) {
		return false
	}

	if w.effectiveTo != nil && !at.Before(*w.effectiveTo) {
		return false
	}

	return true
}

// EffectiveFrom returns the start of the validity window, or the zero time when the
// workflow has no start.
func (w *Workflow) EffectiveFrom() time.Time {
	if w.effectiveFrom == nil {
		return time.Time{}
	}

	return *w.effectiveFrom
}

// Definition snapshots the workflow back into its declarative form.
// NewWorkflow(w.Definition()) yields an equivalent workflow.
func (w *Workflow) Definition() WorkflowDefinition {
	return WorkflowDefinition{
		ID:            w.id,
		Name:          w.name,
		Version:       w.version,
		EffectiveFrom: formatOptionalTime(w.effectiveFrom),
		EffectiveTo:   formatOptionalTime(w.effectiveTo),
		Steps:         w.Steps(),
		SchemaVersion: w.schemaVersion,
	}
}

func compareSteps(a, b Step) int {
	return cmp.Or(cmp.Compare(a.Order, b.Order), strings.Compare(a.Key, b.Key))
}

func parseOptionalTime(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}

	return &parsed, nil
}

func formatOptionalTime(value *time.Time) string {
	if value == nil {
		return ""
	}

	return value.Format(time.RFC3339)
}
