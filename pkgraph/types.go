// Package pkgraph models the static shape of a pipeline: its nodes, their
// versioned input/output configuration, its trigger configuration, and the
// labelled edges connecting them (spec.md §3).
package pkgraph

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/creastat/orchestrator/wire"
)

// InputKind is the closed set of node input shapes, adapted from
// original_source/db/src/dtos/node_config.rs's NodeInputType.
type InputKind string

const (
	InputText   InputKind = "text"
	InputSelect InputKind = "select"
	InputBinary InputKind = "binary"
)

// SelectOption is one choice of a Select input.
type SelectOption struct {
	Value string
	Label map[string]string
}

// NodeInput is one declared input slot on a node, with its default (if any).
// Binary inputs never carry a default — spec.md §4.1: "Binary-typed inputs
// have no default and must come from an edge projection."
type NodeInput struct {
	Name          string
	Kind          InputKind
	Required      bool
	TextDefault   *string
	SelectOptions []SelectOption
	SelectDefault *string
}

// Default returns the node's static default value for this input and
// whether one is configured at all.
func (ni NodeInput) Default() (string, bool) {
	switch ni.Kind {
	case InputText:
		if ni.TextDefault != nil {
			return *ni.TextDefault, true
		}
	case InputSelect:
		if ni.SelectDefault != nil {
			return *ni.SelectDefault, true
		}
	}
	return "", false
}

// NodeConfig is a node's versioned static configuration: its input
// definitions (with defaults), its declared output keys, and whether its
// sandbox is granted network access. Version holds the wire tag of
// original_source/db/src/dtos/node_config.rs's
// `#[serde(tag = "version")] enum NodeConfig`; the V0 payload's fields sit
// directly on this struct, and the tag value is not checked on decode.
// NetworkAccess has no counterpart in node_config.rs — it is
// spec.md §4.3's own requirement ("network access permitted iff the node
// declares it"), added as an extra field on the same envelope rather than
// a parallel table.
type NodeConfig struct {
	Version       string
	Inputs        []NodeInput
	OutputKeys    []string
	NetworkAccess bool
}

// InputByName looks up a declared input by name.
func (c NodeConfig) InputByName(name string) (NodeInput, bool) {
	for _, in := range c.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return NodeInput{}, false
}

// nodeConfigWire mirrors original_source/db/src/dtos/node_config.rs's
// `#[serde(tag = "version")] enum NodeConfig` — the "version" tag and the
// V0 payload's fields sit in the same JSON object.
type nodeConfigWire struct {
	Version       string          `json:"version"`
	Inputs        []nodeInputWire `json:"inputs"`
	Outputs       []string        `json:"outputs"`
	NetworkAccess bool            `json:"network_access"`
}

// nodeInputWire mirrors node_config.rs's NodeInput, whose `input` field is
// itself an externally-tagged NodeInputType enum: a bare string "Binary" for
// the unit variant, or a single-key object for Text/Select.
type nodeInputWire struct {
	Name     string          `json:"name"`
	Input    json.RawMessage `json:"input"`
	Required bool            `json:"required"`
}

type textInputWire struct {
	Default *string `json:"default"`
}

type selectInputWire struct {
	Options []SelectOption `json:"options"`
	Default *string        `json:"default"`
}

// UnmarshalJSON decodes the serde-tagged wire shape persisted in
// nodes.config and flattens it into NodeConfig's normalized form.
func (c *NodeConfig) UnmarshalJSON(data []byte) error {
	var wireCfg nodeConfigWire
	if err := json.Unmarshal(data, &wireCfg); err != nil {
		return err
	}

	inputs := make([]NodeInput, 0, len(wireCfg.Inputs))
	for _, wi := range wireCfg.Inputs {
		in := NodeInput{Name: wi.Name, Required: wi.Required}

		var kindTag string
		if err := json.Unmarshal(wi.Input, &kindTag); err == nil {
			if kindTag != "Binary" {
				return fmt.Errorf("input %q: unrecognized bare-string input type %q", wi.Name, kindTag)
			}
			in.Kind = InputBinary
		} else {
			var variants map[string]json.RawMessage
			if err := json.Unmarshal(wi.Input, &variants); err != nil {
				return fmt.Errorf("input %q: %w", wi.Name, err)
			}
			switch {
			case variants["Text"] != nil:
				var t textInputWire
				if err := json.Unmarshal(variants["Text"], &t); err != nil {
					return fmt.Errorf("input %q: text variant: %w", wi.Name, err)
				}
				in.Kind = InputText
				in.TextDefault = t.Default
			case variants["Select"] != nil:
				var s selectInputWire
				if err := json.Unmarshal(variants["Select"], &s); err != nil {
					return fmt.Errorf("input %q: select variant: %w", wi.Name, err)
				}
				in.Kind = InputSelect
				in.SelectOptions = s.Options
				in.SelectDefault = s.Default
			default:
				return fmt.Errorf("input %q: unrecognized input type variant", wi.Name)
			}
		}

		inputs = append(inputs, in)
	}

	c.Version = wireCfg.Version
	c.Inputs = inputs
	c.OutputKeys = wireCfg.Outputs
	c.NetworkAccess = wireCfg.NetworkAccess
	return nil
}

// MarshalJSON re-encodes NodeConfig back into the serde-tagged wire shape,
// the inverse of UnmarshalJSON.
func (c NodeConfig) MarshalJSON() ([]byte, error) {
	wireInputs := make([]nodeInputWire, 0, len(c.Inputs))
	for _, in := range c.Inputs {
		wi := nodeInputWire{Name: in.Name, Required: in.Required}
		switch in.Kind {
		case InputText:
			encoded, err := json.Marshal(map[string]textInputWire{"Text": {Default: in.TextDefault}})
			if err != nil {
				return nil, err
			}
			wi.Input = encoded
		case InputSelect:
			encoded, err := json.Marshal(map[string]selectInputWire{"Select": {Options: in.SelectOptions, Default: in.SelectDefault}})
			if err != nil {
				return nil, err
			}
			wi.Input = encoded
		case InputBinary:
			encoded, err := json.Marshal("Binary")
			if err != nil {
				return nil, err
			}
			wi.Input = encoded
		default:
			return nil, fmt.Errorf("input %q: unrecognized input kind %q", in.Name, in.Kind)
		}
		wireInputs = append(wireInputs, wi)
	}
	return json.Marshal(nodeConfigWire{
		Version:       c.Version,
		Inputs:        wireInputs,
		Outputs:       c.OutputKeys,
		NetworkAccess: c.NetworkAccess,
	})
}

// TriggerConfig is a pipeline's versioned trigger policy, supplementing
// spec.md per SPEC_FULL.md §11 (original_source/db/src/dtos/pipeline_trigger_config.rs).
type TriggerConfig struct {
	Version              string
	AllowManualExecution bool
}

// triggerConfigWire mirrors pipeline_trigger_config.rs's
// `#[serde(tag = "version")] enum PipelineTriggerConfig`: the "version" tag
// and the V0 payload's field sit in the same JSON object.
type triggerConfigWire struct {
	Version              string `json:"version"`
	AllowManualExecution bool   `json:"allow_manual_execution"`
}

// UnmarshalJSON decodes the serde-tagged wire shape persisted in
// pipeline_triggers.config.
func (c *TriggerConfig) UnmarshalJSON(data []byte) error {
	var wireCfg triggerConfigWire
	if err := json.Unmarshal(data, &wireCfg); err != nil {
		return err
	}
	c.Version = wireCfg.Version
	c.AllowManualExecution = wireCfg.AllowManualExecution
	return nil
}

// MarshalJSON re-encodes TriggerConfig back into the serde-tagged wire
// shape, the inverse of UnmarshalJSON.
func (c TriggerConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(triggerConfigWire{
		Version:              c.Version,
		AllowManualExecution: c.AllowManualExecution,
	})
}

// Node is one static node placement inside a pipeline.
type Node struct {
	ID         uuid.UUID
	Publisher  string
	Identifier string
	Version    string
	Container  wire.ContainerKind
	Config     NodeConfig

	// Trigger is non-nil only for the pipeline's trigger anchor node
	// (pipeline_nodes.trigger_id pointing at a pipeline_triggers row) —
	// spec.md §3: "One node per pipeline may be the trigger anchor."
	Trigger *TriggerConfig
}

// Edge is a directed, labelled connection from a producer node's output key
// to a consumer node's input key (spec.md §3).
type Edge struct {
	FromNodeID uuid.UUID
	ToNodeID   uuid.UUID
	SourceKey  string
	TargetKey  string
}
