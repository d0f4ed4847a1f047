// Package wire defines the JSON message schemas carried over the five bus
// subjects named in spec.md §6, field-for-field adapted from the DTOs in
// the system this spec was distilled from
// (original_source/db/src/dtos/*.rs), renamed to Go/JSON conventions.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// PipelineExecMsg is the `pipeline.exec` subject payload: the trigger.
type PipelineExecMsg struct {
	PipelineID     uuid.UUID                     `json:"pipeline_id"`
	PipelineExecID uuid.UUID                     `json:"pipeline_exec_id"`
	Params         map[uuid.UUID]json.RawMessage `json:"params"`
}

// PlanMsg is the `pipeline.plan` internal subject payload.
type PlanMsg struct {
	PipelineExecID   uuid.UUID  `json:"pipeline_exec_id"`
	ParentNodeExecID *uuid.UUID `json:"pipeline_node_exec_id,omitempty"`
}

// NodeExecMsg is the `pipeline.node.exec` subject payload: scheduler→worker.
type NodeExecMsg struct {
	PipelineExecID     uuid.UUID       `json:"pipeline_execs_id"`
	PipelineNodeExecID uuid.UUID       `json:"pipeline_node_exec_id"`
	ContainerType      ContainerKind   `json:"container_type"`
	Path               string          `json:"path"`
	Params             json.RawMessage `json:"params"`
	NetworkAccess      bool            `json:"network_access"`
}

// Outcome is the tagged Success/Failure result of one node execution,
// externally tagged per spec.md §6 ("{ Success: value } | { Failure: string }").
type Outcome struct {
	Success   json.RawMessage
	IsFailure bool
	Failure   string
}

// NewSuccess builds a successful Outcome carrying the given JSON value.
func NewSuccess(value json.RawMessage) Outcome {
	return Outcome{Success: value}
}

// NewFailure builds a failed Outcome carrying the given reason.
func NewFailure(reason string) Outcome {
	return Outcome{IsFailure: true, Failure: reason}
}

// Ok reports whether this Outcome represents a success.
func (o Outcome) Ok() bool { return !o.IsFailure }

// MarshalJSON renders {"Success": value} or {"Failure": "reason"}.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.IsFailure {
		return json.Marshal(map[string]string{"Failure": o.Failure})
	}
	value := o.Success
	if value == nil {
		value = json.RawMessage("null")
	}
	return json.Marshal(map[string]json.RawMessage{"Success": value})
}

// UnmarshalJSON parses {"Success": value} or {"Failure": "reason"}.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode outcome: %w", err)
	}
	if v, ok := raw["Success"]; ok {
		o.IsFailure = false
		o.Success = v
		return nil
	}
	if v, ok := raw["Failure"]; ok {
		var reason string
		if err := json.Unmarshal(v, &reason); err != nil {
			return fmt.Errorf("decode failure reason: %w", err)
		}
		o.IsFailure = true
		o.Failure = reason
		return nil
	}
	return fmt.Errorf("outcome has neither Success nor Failure key")
}

// NodeResultMsg is the `pipeline.node.result` subject payload: worker→scheduler.
type NodeResultMsg struct {
	PipelineExecID     uuid.UUID `json:"pipeline_exec_id"`
	PipelineNodeExecID uuid.UUID `json:"pipeline_node_exec_id"`
	Outcome            Outcome   `json:"outcome"`
}
