// Package correlation maintains the cross-market correlation graph the
// spread/logical arbitrage generator consumes (spec.md §4.9/C10). Edges
// are supplied externally — the graph itself never infers correlation
// from price history; that inference is out of scope (spec.md §1
// Non-goals: no model training).
package correlation

import (
	"sync"

	"predictioncore/pkg/types"
)

// Graph is an adjacency-list directed multigraph of CorrelationEdge,
// keyed by the edge's FromMarket.
type Graph struct {
	mu    sync.RWMutex
	edges map[types.MarketId][]types.CorrelationEdge
}

func New() *Graph {
	return &Graph{edges: make(map[types.MarketId][]types.CorrelationEdge)}
}

// AddEdge inserts a directed edge. For symmetric kinds (MutuallyExclusive,
// SameOutcome) callers should add both directions explicitly — the graph
// does not implicitly mirror edges, matching spec.md §3's definition of
// CorrelationEdge as directed.
func (g *Graph) AddEdge(edge types.CorrelationEdge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges[edge.FromMarket] = append(g.edges[edge.FromMarket], edge)
}

// RemoveMarket drops every edge originating from or pointing to a market —
// used when a market resolves and its correlations become moot.
func (g *Graph) RemoveMarket(marketID types.MarketId) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges, marketID)
	for from, edges := range g.edges {
		kept := edges[:0]
		for _, e := range edges {
			if e.ToMarket != marketID {
				kept = append(kept, e)
			}
		}
		g.edges[from] = kept
	}
}

// Neighbors returns all outgoing edges from a market.
func (g *Graph) Neighbors(marketID types.MarketId) []types.CorrelationEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]types.CorrelationEdge, len(g.edges[marketID]))
	copy(out, g.edges[marketID])
	return out
}

// NeighborsOfKind filters Neighbors by CorrelationKind.
func (g *Graph) NeighborsOfKind(marketID types.MarketId, kind types.CorrelationKind) []types.CorrelationEdge {
	all := g.Neighbors(marketID)
	var out []types.CorrelationEdge
	for _, e := range all {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Markets returns every market that has at least one outgoing edge.
func (g *Graph) Markets() []types.MarketId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]types.MarketId, 0, len(g.edges))
	for m := range g.edges {
		out = append(out, m)
	}
	return out
}
