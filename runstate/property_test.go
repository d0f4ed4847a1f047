package runstate

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"pgregory.net/rapid"

	"github.com/creastat/orchestrator/pkgraph"
	"github.com/creastat/orchestrator/wire"
)

// TestPropertyFrontierNeverOffersIneligibleNode checks spec.md §8 Property 3
// ("Frontier correctness"): NextFrontier never returns a node that has an
// inbound producer without a recorded result, and never returns a node twice.
func TestPropertyFrontierNeverOffersIneligibleNode(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 10).Draw(rt, "n")
		g := pkgraph.NewGraph()
		ids := make([]uuid.UUID, n)
		execs := make(map[uuid.UUID]uuid.UUID, n)
		payloads := make(map[uuid.UUID]*NodeExecPayload, n)
		for i := range ids {
			ids[i] = uuid.New()
			if err := g.AddNode(&pkgraph.Node{ID: ids[i]}); err != nil {
				rt.Fatalf("add node: %v", err)
			}
			execs[ids[i]] = uuid.New()
			payloads[ids[i]] = NewNodeExecPayload(uuid.New(), ids[i], execs[ids[i]], wire.ContainerWasm, "pub@n:1", nil, false)
		}
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if rapid.Bool().Draw(rt, "connect") {
					edge := &pkgraph.Edge{FromNodeID: ids[i], ToNodeID: ids[j], SourceKey: "o", TargetKey: "i"}
					if err := g.AddEdge(edge); err != nil {
						rt.Fatalf("add edge: %v", err)
					}
				}
			}
		}
		run := New(g, execs, payloads)

		// Drive the run to completion with random frontier rounds, checking
		// eligibility invariants at every step.
		done := make(map[uuid.UUID]bool, n)
		for rounds := 0; rounds < n+1; rounds++ {
			frontier := run.NextFrontier(nil)
			if len(frontier) == 0 {
				break
			}
			offered := make(map[uuid.UUID]bool, len(frontier))
			for _, p := range frontier {
				if done[p.NodeID] {
					rt.Fatalf("frontier re-offered an already-done node: %s", p.NodeID)
				}
				if offered[p.NodeID] {
					rt.Fatalf("frontier offered node %s twice in one round", p.NodeID)
				}
				offered[p.NodeID] = true
				for _, edge := range g.Inbound(p.NodeID) {
					if !done[edge.FromNodeID] {
						rt.Fatalf("frontier offered node %s before producer %s completed", p.NodeID, edge.FromNodeID)
					}
				}
			}
			for nodeID := range offered {
				done[nodeID] = true
				run.RecordResult(execs[nodeID], json.RawMessage(`{}`))
			}
		}
		for _, id := range ids {
			if !done[id] {
				rt.Fatalf("node %s never became eligible — run stalled", id)
			}
		}
		if !run.IsFinished() {
			rt.Fatalf("expected run to finish once every node is done")
		}
	})
}

// TestPropertyParameterPrecedence checks spec.md §8 Property 4 ("Parameter
// precedence"): an edge projection overwrites a base (defaults ∪ user param)
// value for the same key, but a base value survives untouched when no edge
// targets that key.
func TestPropertyParameterPrecedence(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		g := pkgraph.NewGraph()
		a, b := &pkgraph.Node{ID: uuid.New()}, &pkgraph.Node{ID: uuid.New()}
		if err := g.AddNode(a); err != nil {
			rt.Fatalf("add a: %v", err)
		}
		if err := g.AddNode(b); err != nil {
			rt.Fatalf("add b: %v", err)
		}

		targetKey := rapid.SampledFrom([]string{"shared", "untouched"}).Draw(rt, "targetKey")
		if err := g.AddEdge(&pkgraph.Edge{FromNodeID: a.ID, ToNodeID: b.ID, SourceKey: "produced", TargetKey: targetKey}); err != nil {
			rt.Fatalf("add edge: %v", err)
		}

		baseValue := rapid.IntRange(0, 1000).Draw(rt, "baseValue")
		producedValue := rapid.IntRange(1001, 2000).Draw(rt, "producedValue")

		aExec, bExec := uuid.New(), uuid.New()
		baseParams := map[string]json.RawMessage{
			"shared":    mustMarshal(baseValue),
			"untouched": mustMarshal(baseValue),
		}
		payloads := map[uuid.UUID]*NodeExecPayload{
			a.ID: NewNodeExecPayload(uuid.New(), a.ID, aExec, wire.ContainerWasm, "pub@a:1", nil, false),
			b.ID: NewNodeExecPayload(uuid.New(), b.ID, bExec, wire.ContainerWasm, "pub@b:1", baseParams, false),
		}
		run := New(g, map[uuid.UUID]uuid.UUID{a.ID: aExec, b.ID: bExec}, payloads)

		run.RecordResult(aExec, mustMarshal(map[string]int{"produced": producedValue}))
		frontier := run.NextFrontier(&aExec)
		if len(frontier) != 1 {
			rt.Fatalf("expected exactly one eligible node, got %d", len(frontier))
		}

		var got int
		if err := json.Unmarshal(frontier[0].Params[targetKey], &got); err != nil {
			rt.Fatalf("unmarshal target param: %v", err)
		}
		if got != producedValue {
			rt.Fatalf("edge projection did not take precedence: want %d, got %d", producedValue, got)
		}

		other := "untouched"
		if targetKey == "untouched" {
			other = "shared"
		}
		var otherGot int
		if err := json.Unmarshal(frontier[0].Params[other], &otherGot); err != nil {
			rt.Fatalf("unmarshal other param: %v", err)
		}
		if otherGot != baseValue {
			rt.Fatalf("non-targeted key was mutated: want %d, got %d", baseValue, otherGot)
		}
	})
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
