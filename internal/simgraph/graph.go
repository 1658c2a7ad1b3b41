package simgraph

import (
	"github.com/raphaelgruber/compcluster/internal/config"
)

// Edge is one undirected similarity edge. Endpoints are node indexes
// with A < B; the edge set never contains self-loops or duplicates.
type Edge struct {
	A     int
	B     int
	Score float64
}

// Graph is the sparse, symmetric similarity graph. Nodes holds company
// ids; a node's index is its identity everywhere else in the graph.
// Edges are sorted by (A, B) so serialized output is byte-reproducible.
type Graph struct {
	Nodes []string
	Edges []Edge

	// Tau is the resolved numeric threshold the edges were filtered
	// with; TauMode records whether it was fixed or adaptive.
	Tau     float64
	TauMode config.TauMode
}

// Density is edge count over possible-edge count.
func (g *Graph) Density() float64 {
	n := len(g.Nodes)
	if n < 2 {
		return 0
	}
	possible := float64(n) * float64(n-1) / 2
	return float64(len(g.Edges)) / possible
}
