// Package runstate implements the in-memory RunState of spec.md §4.1: the
// owning reference a Scheduler process holds for one pipeline execution,
// exposing record_result, next_frontier and is_finished.
package runstate

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/creastat/orchestrator/pkgraph"
	"github.com/creastat/orchestrator/wire"
)

// NodeExecPayload is the dispatchable unit described in spec.md §3: the
// merged parameter map for one node-exec, ready to publish on
// `pipeline.node.exec`.
type NodeExecPayload struct {
	RunID         uuid.UUID
	NodeID        uuid.UUID // pipeline_node_id, kept for edge-projection bookkeeping
	NodeExecID    uuid.UUID
	Container     wire.ContainerKind
	ArtifactPath  string
	Params        map[string]json.RawMessage
	NetworkAccess bool // node_config.network_access, spec.md §4.3
}

// NewNodeExecPayload builds a base NodeExecPayload (before edge projection)
// from a node's merged defaults-and-user-params map.
func NewNodeExecPayload(runID, nodeID, nodeExecID uuid.UUID, container wire.ContainerKind, artifactPath string, params map[string]json.RawMessage, networkAccess bool) *NodeExecPayload {
	if params == nil {
		params = make(map[string]json.RawMessage)
	}
	return &NodeExecPayload{
		RunID:         runID,
		NodeID:        nodeID,
		NodeExecID:    nodeExecID,
		Container:     container,
		ArtifactPath:  artifactPath,
		Params:        params,
		NetworkAccess: networkAccess,
	}
}

func (p *NodeExecPayload) clone() *NodeExecPayload {
	params := make(map[string]json.RawMessage, len(p.Params))
	for k, v := range p.Params {
		params[k] = v
	}
	return &NodeExecPayload{
		RunID:         p.RunID,
		NodeID:        p.NodeID,
		NodeExecID:    p.NodeExecID,
		Container:     p.Container,
		ArtifactPath:  p.ArtifactPath,
		Params:        params,
		NetworkAccess: p.NetworkAccess,
	}
}

// Run is the in-memory model of one pipeline execution: the DAG, the
// per-node base payload (defaults ∪ user params, before edge projection),
// and the recorded results. Owned exclusively by the Scheduler process
// (spec.md §3), guarded by a RWMutex per spec.md §5 (writer on record,
// reader on planning) — the Go analogue of the teacher's
// executionState/nodeState shared-map locking, simplified because this DAG
// propagates one JSON result per node rather than a stream of events.
type Run struct {
	mu sync.RWMutex

	graph *pkgraph.Graph

	nodeToExec map[uuid.UUID]uuid.UUID // pipeline_node_id -> pipeline_node_exec_id
	execToNode map[uuid.UUID]uuid.UUID // pipeline_node_exec_id -> pipeline_node_id

	basePayloads map[uuid.UUID]*NodeExecPayload    // keyed by pipeline_node_id
	results      map[uuid.UUID]json.RawMessage // keyed by pipeline_node_exec_id
}

// New builds a Run from the pipeline's static graph and the node-exec rows
// Loop A inserted for it (spec.md §4.2 Loop A, steps 4-6).
func New(graph *pkgraph.Graph, nodeToExec map[uuid.UUID]uuid.UUID, basePayloads map[uuid.UUID]*NodeExecPayload) *Run {
	execToNode := make(map[uuid.UUID]uuid.UUID, len(nodeToExec))
	for nodeID, execID := range nodeToExec {
		execToNode[execID] = nodeID
	}
	return &Run{
		graph:        graph,
		nodeToExec:   nodeToExec,
		execToNode:   execToNode,
		basePayloads: basePayloads,
		results:      make(map[uuid.UUID]json.RawMessage),
	}
}

// RecordResult marks a node-exec done and memoizes its output object.
func (r *Run) RecordResult(nodeExecID uuid.UUID, result json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[nodeExecID] = result
}

// NextFrontier returns the NodeExecPayloads whose every inbound producer is
// already done and which are not themselves done, with params extended by
// edge projections. When parentHint is non-nil, only direct children of
// that node-exec are considered (spec.md §4.1).
func (r *Run) NextFrontier(parentHint *uuid.UUID) []*NodeExecPayload {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextFrontierLocked(parentHint)
}

func (r *Run) nextFrontierLocked(parentHint *uuid.UUID) []*NodeExecPayload {
	var candidates []uuid.UUID
	if parentHint != nil {
		parentNodeID, ok := r.execToNode[*parentHint]
		if !ok {
			return nil
		}
		for _, edge := range r.graph.Outbound(parentNodeID) {
			candidates = append(candidates, edge.ToNodeID)
		}
	} else {
		for _, n := range r.graph.Nodes() {
			candidates = append(candidates, n.ID)
		}
	}

	seen := make(map[uuid.UUID]bool, len(candidates))
	var out []*NodeExecPayload
	for _, nodeID := range candidates {
		if seen[nodeID] {
			continue
		}
		seen[nodeID] = true

		execID, ok := r.nodeToExec[nodeID]
		if !ok {
			continue
		}
		if _, done := r.results[execID]; done {
			continue
		}

		inbound := r.graph.Inbound(nodeID)
		eligible := true
		for _, edge := range inbound {
			producerExecID, ok := r.nodeToExec[edge.FromNodeID]
			if !ok {
				eligible = false
				break
			}
			if _, done := r.results[producerExecID]; !done {
				eligible = false
				break
			}
		}
		if !eligible {
			continue
		}

		base, ok := r.basePayloads[nodeID]
		if !ok {
			continue
		}
		payload := base.clone()
		for _, edge := range inbound {
			producerExecID := r.nodeToExec[edge.FromNodeID]
			producerResult := r.results[producerExecID]
			if value, ok := extractField(producerResult, edge.SourceKey); ok {
				payload.Params[edge.TargetKey] = value
			}
		}
		out = append(out, payload)
	}
	return out
}

// IsFinished reports whether no further node is eligible and every graph
// node has a recorded result — distinguishing genuine completion from a
// frontier that's empty because a failure halted forward progress
// (spec.md §4.1, §4.2 Loop C step 3).
func (r *Run) IsFinished() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.nextFrontierLocked(nil)) > 0 {
		return false
	}
	return len(r.results) == r.graph.Len()
}

// extractField reads producerResult[key] from a JSON object, returning
// ok=false when the producer never emitted that key — edge projection never
// overwrites a target key with an absent source key (spec.md §3).
func extractField(producerResult json.RawMessage, key string) (json.RawMessage, bool) {
	if len(producerResult) == 0 {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(producerResult, &obj); err != nil {
		return nil, false
	}
	value, ok := obj[key]
	return value, ok
}
