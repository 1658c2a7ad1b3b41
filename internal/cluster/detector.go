// Package cluster partitions the similarity graph into competitor
// clusters via modularity-based community detection.
package cluster

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/raphaelgruber/compcluster/internal/simgraph"
)

// ErrNoPartition indicates the detection algorithm failed to return a
// valid partition. Fatal for the run; the caller may retry with
// different parameters but the detector never does so itself.
var ErrNoPartition = errors.New("community detection produced no valid partition")

// Partitioner is the community-detection capability: weighted undirected
// graph in, one community per node out. Implementations must be
// deterministic for a fixed graph and seed.
type Partitioner interface {
	Partition(g *simgraph.Graph, seed int64) ([]int, error)
}

// Detector runs a Partitioner and normalizes its output into dense,
// stably ordered cluster ids.
type Detector struct {
	partitioner Partitioner
	seed        int64
}

// NewDetector creates a detector around a partitioner.
func NewDetector(partitioner Partitioner, seed int64) *Detector {
	return &Detector{partitioner: partitioner, seed: seed}
}

// Detect partitions the graph and returns one cluster id per node, in
// node order. Ids are dense integers ordered by descending cluster size,
// ties broken by the smallest member company id, so repeated runs are
// byte-identical. Nodes without edges come back as singletons.
func (d *Detector) Detect(g *simgraph.Graph) ([]int, error) {
	membership, err := d.partitioner.Partition(g, d.seed)
	if err != nil {
		return nil, err
	}
	if err := validPartition(membership, len(g.Nodes)); err != nil {
		return nil, err
	}

	labels := normalizeLabels(membership, g.Nodes)

	n := 0
	for _, l := range labels {
		if l+1 > n {
			n = l + 1
		}
	}
	slog.Info("communities detected", "nodes", len(g.Nodes), "clusters", n)
	return labels, nil
}

// validPartition checks every node got exactly one sane community.
func validPartition(membership []int, nodes int) error {
	if len(membership) != nodes {
		return fmt.Errorf("%w: got %d assignments for %d nodes", ErrNoPartition, len(membership), nodes)
	}
	for i, c := range membership {
		if c < 0 {
			return fmt.Errorf("%w: node %d has community %d", ErrNoPartition, i, c)
		}
	}
	return nil
}

// normalizeLabels renumbers raw communities into dense ids ordered by
// descending size, ties by smallest member company id.
func normalizeLabels(membership []int, nodeIDs []string) []int {
	type community struct {
		size     int
		smallest string
	}
	byRaw := make(map[int]*community)
	for node, raw := range membership {
		c, ok := byRaw[raw]
		if !ok {
			c = &community{smallest: nodeIDs[node]}
			byRaw[raw] = c
		}
		c.size++
		if nodeIDs[node] < c.smallest {
			c.smallest = nodeIDs[node]
		}
	}

	raws := make([]int, 0, len(byRaw))
	for raw := range byRaw {
		raws = append(raws, raw)
	}
	sort.Slice(raws, func(a, b int) bool {
		ca, cb := byRaw[raws[a]], byRaw[raws[b]]
		if ca.size != cb.size {
			return ca.size > cb.size
		}
		return ca.smallest < cb.smallest
	})

	dense := make(map[int]int, len(raws))
	for i, raw := range raws {
		dense[raw] = i
	}

	labels := make([]int, len(membership))
	for node, raw := range membership {
		labels[node] = dense[raw]
	}
	return labels
}
