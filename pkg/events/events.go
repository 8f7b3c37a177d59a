// Package events defines the notifications published when orchestration state changes.
package events

import (
	"time"

	"github.com/dukex/handoff/pkg/models"
)

type EventType string

// Topic carries every orchestration event.
const Topic = "handoff.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	AttemptClaimedEvent       EventType = "attempt.claimed"
	HandoffRecordedEvent      EventType = "handoff.recorded"
	GateDecidedEvent          EventType = "gate.decided"
	WorkItemTransitionedEvent EventType = "work_item.transitioned"
	ScheduleGeneratedEvent    EventType = "schedule.generated"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkItemID string         `json:"work_item_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(id string, eventType EventType, workItemID string, at time.Time) BaseEvent {
	return BaseEvent{
		ID:         id,
		Type:       eventType,
		Timestamp:  at.UTC(),
		WorkItemID: workItemID,
	}
}

type AttemptClaimed struct {
	BaseEvent

	Claim models.ClaimRecord `json:"claim"`
}

func (e AttemptClaimed) GetType() EventType {
	return AttemptClaimedEvent
}

type HandoffRecorded struct {
	BaseEvent

	Artifact models.HandoffArtifact `json:"artifact"`
	Location string                 `json:"location"`
}

func (e HandoffRecorded) GetType() EventType {
	return HandoffRecordedEvent
}

type GateDecided struct {
	BaseEvent

	Decision models.GateDecision `json:"decision"`
}

func (e GateDecided) GetType() EventType {
	return GateDecidedEvent
}

type WorkItemTransitioned struct {
	BaseEvent

	StepKey        string                `json:"step_key"`
	PreviousStatus models.WorkItemStatus `json:"previous_status"`
	Status         models.WorkItemStatus `json:"status"`
	Reasons        []string              `json:"reasons,omitempty"`
}

func (e WorkItemTransitioned) GetType() EventType {
	return WorkItemTransitionedEvent
}

type ScheduleGenerated struct {
	BaseEvent

	ReadySteps []string `json:"ready_steps"`
	Rationale  string   `json:"rationale"`
}

func (e ScheduleGenerated) GetType() EventType {
	return ScheduleGeneratedEvent
}
