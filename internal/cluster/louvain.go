package cluster

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/raphaelgruber/compcluster/internal/simgraph"
)

// Louvain is a seeded, weighted Louvain modularity optimizer. Node
// visitation order is shuffled with the run seed; everything else is
// deterministic, so one seed always yields one partition.
type Louvain struct {
	// MaxPasses bounds local-moving sweeps per level.
	MaxPasses int

	// MaxLevels bounds graph aggregation rounds.
	MaxLevels int
}

// Compile-time check that Louvain implements Partitioner.
var _ Partitioner = (*Louvain)(nil)

// NewLouvain returns a Louvain partitioner with standard bounds.
func NewLouvain() *Louvain {
	return &Louvain{MaxPasses: 100, MaxLevels: 20}
}

// levelGraph is the aggregated graph at one Louvain level.
type levelGraph struct {
	n     int
	adj   [][]halfEdge // sorted by to, no self entries
	self  []float64    // intra-node (self-loop) weight
	total float64      // sum of all edge weights, self loops included once
}

type halfEdge struct {
	to int
	w  float64
}

// Partition runs Louvain over the similarity graph.
func (l *Louvain) Partition(g *simgraph.Graph, seed int64) ([]int, error) {
	n := len(g.Nodes)
	if n == 0 {
		return []int{}, nil
	}
	for _, e := range g.Edges {
		if e.A < 0 || e.B >= n || e.A >= e.B {
			return nil, fmt.Errorf("%w: edge (%d,%d) out of range", ErrNoPartition, e.A, e.B)
		}
	}

	// membership[i] tracks node i's community in the original graph.
	membership := make([]int, n)
	for i := range membership {
		membership[i] = i
	}

	lg := fromGraph(g)
	if lg.total == 0 {
		// Edgeless graph: every node is its own singleton.
		return membership, nil
	}

	rng := rand.New(rand.NewSource(seed))

	for level := 0; level < l.MaxLevels; level++ {
		comm, moved := l.localMove(lg, rng)
		if !moved {
			break
		}

		comm, count := compact(comm)
		for i := range membership {
			membership[i] = comm[membership[i]]
		}
		if count == lg.n {
			break
		}
		lg = aggregate(lg, comm, count)
	}

	return membership, nil
}

// localMove runs modularity-gain sweeps until stable. Returns the
// community of every level node and whether any node moved at all.
func (l *Louvain) localMove(lg *levelGraph, rng *rand.Rand) ([]int, bool) {
	comm := make([]int, lg.n)
	degree := make([]float64, lg.n)
	commTot := make([]float64, lg.n)
	for i := 0; i < lg.n; i++ {
		comm[i] = i
		d := 2 * lg.self[i]
		for _, he := range lg.adj[i] {
			d += he.w
		}
		degree[i] = d
		commTot[i] = d
	}
	m2 := 2 * lg.total

	order := rng.Perm(lg.n)

	anyMoved := false
	for pass := 0; pass < l.MaxPasses; pass++ {
		movedThisPass := false
		for _, i := range order {
			if len(lg.adj[i]) == 0 {
				continue
			}

			// Weight from i to each neighbouring community.
			links := make(map[int]float64)
			for _, he := range lg.adj[i] {
				links[comm[he.to]] += he.w
			}

			current := comm[i]
			commTot[current] -= degree[i]

			// Deterministic candidate order: sorted community ids.
			cands := make([]int, 0, len(links))
			for c := range links {
				cands = append(cands, c)
			}
			sort.Ints(cands)

			best := current
			bestGain := links[current] - degree[i]*commTot[current]/m2
			for _, c := range cands {
				if c == current {
					continue
				}
				gain := links[c] - degree[i]*commTot[c]/m2
				if gain > bestGain {
					best = c
					bestGain = gain
				}
			}

			commTot[best] += degree[i]
			if best != current {
				comm[i] = best
				movedThisPass = true
				anyMoved = true
			}
		}
		if !movedThisPass {
			break
		}
	}
	return comm, anyMoved
}

// compact renumbers communities densely in order of first appearance by
// node index. Returns the renumbered slice and the community count.
func compact(comm []int) ([]int, int) {
	next := 0
	dense := make(map[int]int, len(comm))
	out := make([]int, len(comm))
	for i, c := range comm {
		d, ok := dense[c]
		if !ok {
			d = next
			dense[c] = d
			next++
		}
		out[i] = d
	}
	return out, next
}

// aggregate collapses communities into super-nodes for the next level.
func aggregate(lg *levelGraph, comm []int, count int) *levelGraph {
	next := &levelGraph{
		n:     count,
		adj:   make([][]halfEdge, count),
		self:  make([]float64, count),
		total: lg.total,
	}

	between := make([]map[int]float64, count)
	for i := range between {
		between[i] = make(map[int]float64)
	}
	for i := 0; i < lg.n; i++ {
		ci := comm[i]
		next.self[ci] += lg.self[i]
		for _, he := range lg.adj[i] {
			cj := comm[he.to]
			if ci == cj {
				// Each intra edge visited from both endpoints.
				next.self[ci] += he.w / 2
			} else {
				between[ci][cj] += he.w
			}
		}
	}
	for ci, row := range between {
		edges := make([]halfEdge, 0, len(row))
		for cj, w := range row {
			edges = append(edges, halfEdge{to: cj, w: w})
		}
		sort.Slice(edges, func(a, b int) bool { return edges[a].to < edges[b].to })
		next.adj[ci] = edges
	}
	return next
}

// fromGraph builds the level-0 representation.
func fromGraph(g *simgraph.Graph) *levelGraph {
	n := len(g.Nodes)
	lg := &levelGraph{
		n:    n,
		adj:  make([][]halfEdge, n),
		self: make([]float64, n),
	}
	for _, e := range g.Edges {
		lg.adj[e.A] = append(lg.adj[e.A], halfEdge{to: e.B, w: e.Score})
		lg.adj[e.B] = append(lg.adj[e.B], halfEdge{to: e.A, w: e.Score})
		lg.total += e.Score
	}
	for i := range lg.adj {
		sort.Slice(lg.adj[i], func(a, b int) bool { return lg.adj[i][a].to < lg.adj[i][b].to })
	}
	return lg
}
