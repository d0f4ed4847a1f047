package pkgraph

import (
	"fmt"

	"github.com/google/uuid"
)

// Graph is the compiled static shape of one pipeline: its nodes and the
// directed, labelled edges between them. Generalized from the teacher's
// PipelineGraph/graphNode/graphEdge (event-routing edges) into data-routing
// edges keyed by (source_key, target_key), per spec.md §3.
//
// No graph library is used: spec.md §9 notes an adjacency list plus
// in-degree counting suffices, and the teacher itself hand-rolls its graph
// rather than pulling one in.
type Graph struct {
	nodes     map[uuid.UUID]*Node
	outbound  map[uuid.UUID][]*Edge
	inbound   map[uuid.UUID][]*Edge
	order     []uuid.UUID // insertion order, for deterministic iteration
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[uuid.UUID]*Node),
		outbound: make(map[uuid.UUID][]*Edge),
		inbound:  make(map[uuid.UUID][]*Edge),
	}
}

// AddNode registers a static node. Returns an error if the node id is
// already present.
func (g *Graph) AddNode(n *Node) error {
	if _, exists := g.nodes[n.ID]; exists {
		return fmt.Errorf("node %s already exists in graph", n.ID)
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	return nil
}

// AddEdge registers a directed edge between two already-added nodes.
func (g *Graph) AddEdge(e *Edge) error {
	if _, ok := g.nodes[e.FromNodeID]; !ok {
		return fmt.Errorf("source node %s does not exist", e.FromNodeID)
	}
	if _, ok := g.nodes[e.ToNodeID]; !ok {
		return fmt.Errorf("destination node %s does not exist", e.ToNodeID)
	}
	g.outbound[e.FromNodeID] = append(g.outbound[e.FromNodeID], e)
	g.inbound[e.ToNodeID] = append(g.inbound[e.ToNodeID], e)
	return nil
}

// Node retrieves a node by id.
func (g *Graph) Node(id uuid.UUID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

// Inbound returns the edges whose target is nodeID.
func (g *Graph) Inbound(nodeID uuid.UUID) []*Edge {
	return g.inbound[nodeID]
}

// Outbound returns the edges whose source is nodeID.
func (g *Graph) Outbound(nodeID uuid.UUID) []*Edge {
	return g.outbound[nodeID]
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// TriggerConfig returns the pipeline's trigger policy, read off whichever
// node is the trigger anchor (at most one per spec.md §3). Returns
// ok=false when no node carries a trigger config.
func (g *Graph) TriggerConfig() (*TriggerConfig, bool) {
	for _, id := range g.order {
		if tc := g.nodes[id].Trigger; tc != nil {
			return tc, true
		}
	}
	return nil, false
}

// ValidationError describes a structural defect in a pipeline graph.
type ValidationError struct {
	Message string
	Details string
}

func (e ValidationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// Validate checks the graph forms a DAG. spec.md §3 states a cycle is a
// configuration error never produced by the core; §9 allows a defensive
// implementation to pre-validate with a topological sort rather than hang.
func (g *Graph) Validate() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[uuid.UUID]int, len(g.nodes))

	var visit func(id uuid.UUID) error
	visit = func(id uuid.UUID) error {
		color[id] = gray
		for _, edge := range g.outbound[id] {
			switch color[edge.ToNodeID] {
			case gray:
				return ValidationError{
					Message: "pipeline graph validation failed",
					Details: fmt.Sprintf("cycle detected through node %s", edge.ToNodeID),
				}
			case white:
				if err := visit(edge.ToNodeID); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, id := range g.order {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}
