package models

import "time"

// ReadyStep is a step that may be claimed now.
type ReadyStep struct {
	Key             string   `json:"key"`
	Order           int      `json:"order"`
	Parallelizable  bool     `json:"parallelizable"`
	Notes           []string `json:"notes"`
	SupportingTasks []string `json:"supportingTasks"`
}

// BlockedStep is a pending step waiting on BlockedBy.
type BlockedStep struct {
	Key             string   `json:"key"`
	Order           int      `json:"order"`
	BlockedBy       []string `json:"blockedBy"`
	SupportingTasks []string `json:"supportingTasks"`
}

// SchedulingDecision is the ready/blocked view of a work item at GeneratedAt.
// It is derived data; persisted copies are snapshots only.
type SchedulingDecision struct {
	WorkItemID     string        `json:"workItemId"`
	CurrentStepKey string        `json:"currentStepKey,omitempty"`
	GeneratedAt    time.Time     `json:"generatedAt"`
	LaunchOrder    []string      `json:"launchOrder"`
	ReadySteps     []ReadyStep   `json:"readySteps"`
	BlockedSteps   []BlockedStep `json:"blockedSteps"`
	Rationale      string        `json:"rationale"`
}

func (d SchedulingDecision) ReadyKeys() []string {
	keys := make([]string, len(d.ReadySteps))
	for i, step := range d.ReadySteps {
		keys[i] = step.Key
	}

	return keys
}

func (d SchedulingDecision) BlockedKeys() []string {
	keys := make([]string, len(d.BlockedSteps))
	for i, step := range d.BlockedSteps {
		keys[i] = step.Key
	}

	return keys
}
