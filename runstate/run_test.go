package runstate

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/orchestrator/pkgraph"
	"github.com/creastat/orchestrator/wire"
)

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

// S1 — single node, no edges.
func TestSingleNodeFrontierThenCompletion(t *testing.T) {
	g := pkgraph.NewGraph()
	a := &pkgraph.Node{ID: uuid.New()}
	require.NoError(t, g.AddNode(a))

	aExec := uuid.New()
	nodeToExec := map[uuid.UUID]uuid.UUID{a.ID: aExec}
	payloads := map[uuid.UUID]*NodeExecPayload{
		a.ID: NewNodeExecPayload(uuid.New(), a.ID, aExec, wire.ContainerWasm, "pub@a:1", map[string]json.RawMessage{
			"x": raw(t, "hi"),
		}, false),
	}
	run := New(g, nodeToExec, payloads)

	frontier := run.NextFrontier(nil)
	require.Len(t, frontier, 1)
	assert.Equal(t, raw(t, "hi"), frontier[0].Params["x"])
	assert.False(t, run.IsFinished())

	run.RecordResult(aExec, raw(t, map[string]string{"y": "HI"}))
	assert.Empty(t, run.NextFrontier(nil))
	assert.True(t, run.IsFinished())
}

// S2 — linear chain with projection: A -o-> i B.
func TestLinearChainProjection(t *testing.T) {
	g := pkgraph.NewGraph()
	a, b := &pkgraph.Node{ID: uuid.New()}, &pkgraph.Node{ID: uuid.New()}
	require.NoError(t, g.AddNode(a))
	require.NoError(t, g.AddNode(b))
	require.NoError(t, g.AddEdge(&pkgraph.Edge{FromNodeID: a.ID, ToNodeID: b.ID, SourceKey: "o", TargetKey: "i"}))

	aExec, bExec := uuid.New(), uuid.New()
	nodeToExec := map[uuid.UUID]uuid.UUID{a.ID: aExec, b.ID: bExec}
	payloads := map[uuid.UUID]*NodeExecPayload{
		a.ID: NewNodeExecPayload(uuid.New(), a.ID, aExec, wire.ContainerWasm, "pub@a:1", nil, false),
		b.ID: NewNodeExecPayload(uuid.New(), b.ID, bExec, wire.ContainerWasm, "pub@b:1", nil, false),
	}
	run := New(g, nodeToExec, payloads)

	// Only A is eligible initially.
	frontier := run.NextFrontier(nil)
	require.Len(t, frontier, 1)
	assert.Equal(t, a.ID, frontier[0].NodeID)

	run.RecordResult(aExec, raw(t, map[string]int{"o": 42}))

	frontier = run.NextFrontier(&aExec)
	require.Len(t, frontier, 1)
	assert.Equal(t, b.ID, frontier[0].NodeID)
	assert.Equal(t, raw(t, 42), frontier[0].Params["i"])

	run.RecordResult(bExec, raw(t, map[string]string{}))
	assert.True(t, run.IsFinished())
}

// S3 — diamond: A -> B, A -> C, B -> D, C -> D.
func TestDiamondJoin(t *testing.T) {
	g := pkgraph.NewGraph()
	a, b, c, d := &pkgraph.Node{ID: uuid.New()}, &pkgraph.Node{ID: uuid.New()}, &pkgraph.Node{ID: uuid.New()}, &pkgraph.Node{ID: uuid.New()}
	for _, n := range []*pkgraph.Node{a, b, c, d} {
		require.NoError(t, g.AddNode(n))
	}
	require.NoError(t, g.AddEdge(&pkgraph.Edge{FromNodeID: a.ID, ToNodeID: b.ID, SourceKey: "o1", TargetKey: "i1"}))
	require.NoError(t, g.AddEdge(&pkgraph.Edge{FromNodeID: a.ID, ToNodeID: c.ID, SourceKey: "o2", TargetKey: "i2"}))
	require.NoError(t, g.AddEdge(&pkgraph.Edge{FromNodeID: b.ID, ToNodeID: d.ID, SourceKey: "ob", TargetKey: "fromB"}))
	require.NoError(t, g.AddEdge(&pkgraph.Edge{FromNodeID: c.ID, ToNodeID: d.ID, SourceKey: "oc", TargetKey: "fromC"}))

	execs := map[uuid.UUID]uuid.UUID{a.ID: uuid.New(), b.ID: uuid.New(), c.ID: uuid.New(), d.ID: uuid.New()}
	payloads := map[uuid.UUID]*NodeExecPayload{}
	for _, n := range []*pkgraph.Node{a, b, c, d} {
		payloads[n.ID] = NewNodeExecPayload(uuid.New(), n.ID, execs[n.ID], wire.ContainerWasm, "pub@n:1", nil, false)
	}
	run := New(g, execs, payloads)

	require.Len(t, run.NextFrontier(nil), 1) // only A

	run.RecordResult(execs[a.ID], raw(t, map[string]string{"o1": "x", "o2": "y"}))
	frontier := run.NextFrontier(&execs[a.ID])
	require.Len(t, frontier, 2) // B and C, in either order

	ids := map[uuid.UUID]bool{}
	for _, p := range frontier {
		ids[p.NodeID] = true
	}
	assert.True(t, ids[b.ID])
	assert.True(t, ids[c.ID])

	// D not yet eligible.
	for _, p := range run.NextFrontier(nil) {
		assert.NotEqual(t, d.ID, p.NodeID)
	}

	run.RecordResult(execs[b.ID], raw(t, map[string]string{"ob": "bval"}))
	assert.Empty(t, run.NextFrontier(&execs[b.ID])) // still waiting on C

	run.RecordResult(execs[c.ID], raw(t, map[string]string{"oc": "cval"}))
	frontier = run.NextFrontier(&execs[c.ID])
	require.Len(t, frontier, 1)
	assert.Equal(t, d.ID, frontier[0].NodeID)
	assert.Equal(t, raw(t, "bval"), frontier[0].Params["fromB"])
	assert.Equal(t, raw(t, "cval"), frontier[0].Params["fromC"])

	run.RecordResult(execs[d.ID], raw(t, map[string]string{}))
	assert.True(t, run.IsFinished())
}

// S4 — default + override: params already merged by the scheduler before
// constructing the base payload; RunState must pass them through untouched.
func TestDefaultOverridePassthrough(t *testing.T) {
	g := pkgraph.NewGraph()
	a := &pkgraph.Node{ID: uuid.New()}
	require.NoError(t, g.AddNode(a))

	aExec := uuid.New()
	payloads := map[uuid.UUID]*NodeExecPayload{
		a.ID: NewNodeExecPayload(uuid.New(), a.ID, aExec, wire.ContainerWasm, "pub@a:1", map[string]json.RawMessage{
			"msg": raw(t, "world"),
		}, false),
	}
	run := New(g, map[uuid.UUID]uuid.UUID{a.ID: aExec}, payloads)

	frontier := run.NextFrontier(nil)
	require.Len(t, frontier, 1)
	assert.Equal(t, raw(t, "world"), frontier[0].Params["msg"])
}

// S5 — failure halts descendants: never call RecordResult for a failed
// node; its descendants must never appear in any subsequent frontier.
func TestFailureNeverRecordedHaltsDescendants(t *testing.T) {
	g := pkgraph.NewGraph()
	a, b, c := &pkgraph.Node{ID: uuid.New()}, &pkgraph.Node{ID: uuid.New()}, &pkgraph.Node{ID: uuid.New()}
	require.NoError(t, g.AddNode(a))
	require.NoError(t, g.AddNode(b))
	require.NoError(t, g.AddNode(c))
	require.NoError(t, g.AddEdge(&pkgraph.Edge{FromNodeID: a.ID, ToNodeID: b.ID, SourceKey: "o", TargetKey: "i"}))
	require.NoError(t, g.AddEdge(&pkgraph.Edge{FromNodeID: b.ID, ToNodeID: c.ID, SourceKey: "o", TargetKey: "i"}))

	execs := map[uuid.UUID]uuid.UUID{a.ID: uuid.New(), b.ID: uuid.New(), c.ID: uuid.New()}
	payloads := map[uuid.UUID]*NodeExecPayload{}
	for _, n := range []*pkgraph.Node{a, b, c} {
		payloads[n.ID] = NewNodeExecPayload(uuid.New(), n.ID, execs[n.ID], wire.ContainerWasm, "pub@n:1", nil, false)
	}
	run := New(g, execs, payloads)

	require.Len(t, run.NextFrontier(nil), 1)
	// A fails: no RecordResult call, per spec.md §4.2 Loop C step 3.
	assert.Empty(t, run.NextFrontier(&execs[a.ID]))
	assert.False(t, run.IsFinished()) // halted, not genuinely finished
}

// S6 — parallel frontier: two independent roots dispatched together, sink
// dispatched exactly once after both complete.
func TestParallelFrontierThenSink(t *testing.T) {
	g := pkgraph.NewGraph()
	a, b, c := &pkgraph.Node{ID: uuid.New()}, &pkgraph.Node{ID: uuid.New()}, &pkgraph.Node{ID: uuid.New()}
	require.NoError(t, g.AddNode(a))
	require.NoError(t, g.AddNode(b))
	require.NoError(t, g.AddNode(c))
	require.NoError(t, g.AddEdge(&pkgraph.Edge{FromNodeID: a.ID, ToNodeID: c.ID, SourceKey: "oa", TargetKey: "fromA"}))
	require.NoError(t, g.AddEdge(&pkgraph.Edge{FromNodeID: b.ID, ToNodeID: c.ID, SourceKey: "ob", TargetKey: "fromB"}))

	execs := map[uuid.UUID]uuid.UUID{a.ID: uuid.New(), b.ID: uuid.New(), c.ID: uuid.New()}
	payloads := map[uuid.UUID]*NodeExecPayload{}
	for _, n := range []*pkgraph.Node{a, b, c} {
		payloads[n.ID] = NewNodeExecPayload(uuid.New(), n.ID, execs[n.ID], wire.ContainerWasm, "pub@n:1", nil, false)
	}
	run := New(g, execs, payloads)

	frontier := run.NextFrontier(nil)
	require.Len(t, frontier, 2)

	run.RecordResult(execs[a.ID], raw(t, map[string]string{"oa": "av"}))
	assert.Empty(t, run.NextFrontier(&execs[a.ID])) // C still waits on B

	run.RecordResult(execs[b.ID], raw(t, map[string]string{"ob": "bv"}))
	frontier = run.NextFrontier(&execs[b.ID])
	require.Len(t, frontier, 1)
	assert.Equal(t, c.ID, frontier[0].NodeID)

	run.RecordResult(execs[c.ID], raw(t, map[string]string{}))
	assert.True(t, run.IsFinished())
}

func TestEdgeProjectionNeverOverwritesAbsentKey(t *testing.T) {
	g := pkgraph.NewGraph()
	a, b := &pkgraph.Node{ID: uuid.New()}, &pkgraph.Node{ID: uuid.New()}
	require.NoError(t, g.AddNode(a))
	require.NoError(t, g.AddNode(b))
	require.NoError(t, g.AddEdge(&pkgraph.Edge{FromNodeID: a.ID, ToNodeID: b.ID, SourceKey: "missing", TargetKey: "i"}))

	aExec, bExec := uuid.New(), uuid.New()
	payloads := map[uuid.UUID]*NodeExecPayload{
		a.ID: NewNodeExecPayload(uuid.New(), a.ID, aExec, wire.ContainerWasm, "pub@a:1", nil, false),
		b.ID: NewNodeExecPayload(uuid.New(), b.ID, bExec, wire.ContainerWasm, "pub@b:1", map[string]json.RawMessage{
			"i": raw(t, "default-from-config"),
		}, false),
	}
	run := New(g, map[uuid.UUID]uuid.UUID{a.ID: aExec, b.ID: bExec}, payloads)

	run.RecordResult(aExec, raw(t, map[string]string{"other": "v"}))
	frontier := run.NextFrontier(&aExec)
	require.Len(t, frontier, 1)
	assert.Equal(t, raw(t, "default-from-config"), frontier[0].Params["i"])
}
