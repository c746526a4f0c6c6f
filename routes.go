package nettopogen

// routes.go implements the route computation engine for a network topology

import (
	"container/heap"
	"fmt"
	"math"
)

// The engine computes shortest path routes over the availability-filtered
// topology under an explicit QoS weight vector.  Five algorithms share one
// entry point: dijkstra, astar, bellman_ford, bfs, and qos (dijkstra
// parameterized by the caller's live weights).  Every algorithm is
// deterministic.  Frontier ties break toward the lowest node id, neighbor
// visits run in sorted id order, and relaxation sweeps follow a fixed arc
// order, so equal cost alternatives resolve identically on every run.
//
// Computed shortest path trees are cached per (source, algorithm, weights)
// and stamped with the topology version observed at computation time; a
// version mismatch on lookup discards the entry.  Point-to-point results are
// cached the same way per endpoint pair.  The fault controller flushes the
// caches wholesale when dynamic routing reacts to a failure.

// RouteAlgo is the base type for an enumerated type of route algorithms
type RouteAlgo int

const (
	AlgoDijkstra RouteAlgo = iota
	AlgoAStar
	AlgoBellmanFord
	AlgoBFS
	AlgoQoS
	UnknownAlgo
)

// RouteAlgoFromStr returns the RouteAlgo corresponding to a string name for it
func RouteAlgoFromStr(name string) RouteAlgo {
	switch name {
	case "dijkstra":
		return AlgoDijkstra
	case "astar":
		return AlgoAStar
	case "bellman_ford":
		return AlgoBellmanFord
	case "bfs":
		return AlgoBFS
	case "qos":
		return AlgoQoS
	default:
		return UnknownAlgo
	}
}

// RouteAlgoToStr returns a string name that corresponds to an input RouteAlgo
func RouteAlgoToStr(algo RouteAlgo) string {
	switch algo {
	case AlgoDijkstra:
		return "dijkstra"
	case AlgoAStar:
		return "astar"
	case AlgoBellmanFord:
		return "bellman_ford"
	case AlgoBFS:
		return "bfs"
	case AlgoQoS:
		return "qos"
	default:
		return "unknown"
	}
}

// Route reports a computed path: the inclusive node id sequence from source
// to destination, the total cost (the sum of link costs under the weights in
// force, for every algorithm including bfs), and the hop count
type Route struct {
	Path []string `json:"path" yaml:"path"`
	Cost float64  `json:"cost" yaml:"cost"`
	Hops int      `json:"hops" yaml:"hops"`
}

// frontierItem is an entry in the priority queue ordering route expansion
type frontierItem struct {
	id   string
	dist float64
}

// frontier implements heap.Interface, ordered by distance with ties broken
// toward the lowest node id
type frontier []*frontierItem

func (fr frontier) Len() int { return len(fr) }

func (fr frontier) Less(i, j int) bool {
	if fr[i].dist != fr[j].dist {
		return fr[i].dist < fr[j].dist
	}
	return fr[i].id < fr[j].id
}

func (fr frontier) Swap(i, j int) {
	fr[i], fr[j] = fr[j], fr[i]
}

func (fr *frontier) Push(itm any) {
	*fr = append(*fr, itm.(*frontierItem))
}

func (fr *frontier) Pop() any {
	old := *fr
	n := len(old)
	itm := old[n-1]
	old[n-1] = nil
	*fr = old[:n-1]
	return itm
}

// sptKey indexes the cache of shortest path trees
type sptKey struct {
	src  string
	algo RouteAlgo
	w    Weights
}

// sptEntry is one cached tree: per-destination distance in the algorithm's
// own metric and the predecessor map the path is reconstructed from
type sptEntry struct {
	version int
	dist    map[string]float64
	prev    map[string]string
}

// rtKey indexes the cache of point-to-point routes
type rtKey struct {
	src, dst string
	algo     RouteAlgo
	w        Weights
}

type rtEntry struct {
	version int
	route   *Route
}

// RoutingEngine computes routes over one topology and caches the results
type RoutingEngine struct {
	tpg      *Topology
	sptCache map[sptKey]*sptEntry
	rtCache  map[rtKey]*rtEntry
}

// CreateRoutingEngine is a constructor
func CreateRoutingEngine(tpg *Topology) *RoutingEngine {
	rte := new(RoutingEngine)
	rte.tpg = tpg
	rte.sptCache = make(map[sptKey]*sptEntry)
	rte.rtCache = make(map[rtKey]*rtEntry)
	return rte
}

// Topo returns the topology the engine routes over
func (rte *RoutingEngine) Topo() *Topology {
	return rte.tpg
}

// FlushCache drops every cached tree and route
func (rte *RoutingEngine) FlushCache() {
	rte.sptCache = make(map[sptKey]*sptEntry)
	rte.rtCache = make(map[rtKey]*rtEntry)
}

// ComputeRoute returns the route from src to dst under the named algorithm
// and weight vector.  An absent endpoint fails NotFound, an endpoint that
// exists but is unavailable fails NoPath, an unknown algorithm fails
// InvalidReference, and a source equal to the destination yields the
// single-element path at cost 0.
func (rte *RoutingEngine) ComputeRoute(src, dst string, algo RouteAlgo, w Weights) (*Route, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	// qos is dijkstra driven by the caller's live weight vector
	normed := algo
	if normed == AlgoQoS {
		normed = AlgoDijkstra
	}
	switch normed {
	case AlgoDijkstra, AlgoAStar, AlgoBellmanFord, AlgoBFS:
	default:
		return nil, fmt.Errorf("route %s -> %s: algorithm %s: %w",
			src, dst, RouteAlgoToStr(algo), ErrInvalidReference)
	}

	srcNode, err := rte.tpg.NodeAny(src)
	if err != nil {
		return nil, err
	}
	dstNode, err := rte.tpg.NodeAny(dst)
	if err != nil {
		return nil, err
	}
	if !srcNode.Up || !dstNode.Up {
		return nil, fmt.Errorf("route %s -> %s: %w", src, dst, ErrNoPath)
	}

	if src == dst {
		return &Route{Path: []string{src}, Cost: 0.0, Hops: 0}, nil
	}

	key := rtKey{src: src, dst: dst, algo: normed, w: w}
	ent, present := rte.rtCache[key]
	if present && ent.version == rte.tpg.Version() {
		return ent.route, nil
	}

	var rt *Route
	if normed == AlgoAStar {
		rt, err = rte.routeAStar(src, dst, w)
	} else {
		rt, err = rte.routeFromSPT(src, dst, normed, w)
	}
	if err != nil {
		return nil, err
	}

	rte.rtCache[key] = &rtEntry{version: rte.tpg.Version(), route: rt}

	return rt, nil
}

// RoutesFrom returns the route from src to every reachable destination,
// including the trivial route to src itself, through one shortest path tree.
// The protocol simulator builds link-state tables from this.
func (rte *RoutingEngine) RoutesFrom(src string, algo RouteAlgo, w Weights) (map[string]*Route, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	srcNode, err := rte.tpg.NodeAny(src)
	if err != nil {
		return nil, err
	}
	if !srcNode.Up {
		return nil, fmt.Errorf("routes from %s: %w", src, ErrNoPath)
	}

	// a tree query through astar reduces to dijkstra, both minimize the
	// same cost
	normed := algo
	if normed == AlgoQoS || normed == AlgoAStar {
		normed = AlgoDijkstra
	}

	ent, err := rte.getSPT(src, normed, w)
	if err != nil {
		return nil, err
	}

	routes := make(map[string]*Route, len(ent.dist))
	for dst := range ent.dist {
		rt, rerr := rte.extractRoute(ent, src, dst, w)
		if rerr != nil {
			return nil, rerr
		}
		routes[dst] = rt
	}

	return routes, nil
}

// routeFromSPT resolves src -> dst through the tree rooted in src
func (rte *RoutingEngine) routeFromSPT(src, dst string, algo RouteAlgo, w Weights) (*Route, error) {
	ent, err := rte.getSPT(src, algo, w)
	if err != nil {
		return nil, err
	}
	return rte.extractRoute(ent, src, dst, w)
}

// getSPT returns the shortest path tree rooted in src, from the cache when
// the stamped version still matches the topology.  On a miss or a stale
// entry the tree is computed, saved, and returned.
func (rte *RoutingEngine) getSPT(src string, algo RouteAlgo, w Weights) (*sptEntry, error) {
	key := sptKey{src: src, algo: algo, w: w}
	ent, present := rte.sptCache[key]
	if present && ent.version == rte.tpg.Version() {
		return ent, nil
	}

	var err error
	switch algo {
	case AlgoDijkstra:
		ent = rte.dijkstraFrom(src, w)
	case AlgoBellmanFord:
		ent, err = rte.bellmanFordFrom(src, w)
	case AlgoBFS:
		ent = rte.bfsFrom(src)
	default:
		return nil, fmt.Errorf("shortest path tree from %s: algorithm %s: %w",
			src, RouteAlgoToStr(algo), ErrInvalidReference)
	}
	if err != nil {
		return nil, err
	}

	rte.sptCache[key] = ent

	return ent, nil
}

// extractRoute walks the predecessor map back from dst, reverses the walk,
// and prices the path.  A destination the tree never reached fails NoPath.
func (rte *RoutingEngine) extractRoute(ent *sptEntry, src, dst string, w Weights) (*Route, error) {
	if _, reached := ent.dist[dst]; !reached {
		return nil, fmt.Errorf("route %s -> %s: %w", src, dst, ErrNoPath)
	}

	// the predecessor walk yields the path in reverse visit order
	rev := make([]string, 0)
	here := dst
	for here != src {
		rev = append(rev, here)
		here = ent.prev[here]
	}
	rev = append(rev, src)

	ids := make([]string, 0, len(rev))
	for idx := len(rev) - 1; idx > -1; idx-- {
		ids = append(ids, rev[idx])
	}

	cost, err := PathCost(rte.tpg, ids, w)
	if err != nil {
		return nil, err
	}

	return &Route{Path: ids, Cost: cost, Hops: len(ids) - 1}, nil
}

// dijkstraFrom computes the least cost tree rooted in src over the available
// subgraph
func (rte *RoutingEngine) dijkstraFrom(src string, w Weights) *sptEntry {
	ent := &sptEntry{
		version: rte.tpg.Version(),
		dist:    map[string]float64{src: 0.0},
		prev:    make(map[string]string),
	}

	fr := &frontier{{id: src, dist: 0.0}}
	heap.Init(fr)
	settled := make(map[string]bool)

	for fr.Len() > 0 {
		itm := heap.Pop(fr).(*frontierItem)
		if settled[itm.id] {
			continue
		}
		settled[itm.id] = true

		nbrs, _ := rte.tpg.Neighbors(itm.id)
		for _, nbrID := range nbrs {
			if settled[nbrID] {
				continue
			}
			lnk, _ := rte.tpg.Link(itm.id, nbrID)
			cand := ent.dist[itm.id] + linkCost(lnk, w)
			known, present := ent.dist[nbrID]
			if !present || cand < known {
				ent.dist[nbrID] = cand
				ent.prev[nbrID] = itm.id
				heap.Push(fr, &frontierItem{id: nbrID, dist: cand})
			}
		}
	}

	return ent
}

// routeAStar runs a point-to-point A* search from src to dst.  The heuristic
// scales straight-line coordinate distance by the tightest cost per unit of
// distance over the available links, which never overestimates the true
// remaining cost; when any placement is missing the scale is 0 and the
// search degrades to dijkstra.
func (rte *RoutingEngine) routeAStar(src, dst string, w Weights) (*Route, error) {
	dstNode, _ := rte.tpg.NodeAny(dst)
	scale := rte.heuristicScale(w)

	remaining := func(id string) float64 {
		if scale == 0.0 || dstNode.Coord == nil {
			return 0.0
		}
		nd, _ := rte.tpg.NodeAny(id)
		if nd.Coord == nil {
			return 0.0
		}
		return scale * nd.Coord.dist(*dstNode.Coord)
	}

	ent := &sptEntry{
		version: rte.tpg.Version(),
		dist:    map[string]float64{src: 0.0},
		prev:    make(map[string]string),
	}

	fr := &frontier{{id: src, dist: remaining(src)}}
	heap.Init(fr)
	settled := make(map[string]bool)

	for fr.Len() > 0 {
		itm := heap.Pop(fr).(*frontierItem)
		if settled[itm.id] {
			continue
		}
		if itm.id == dst {
			break
		}
		settled[itm.id] = true

		nbrs, _ := rte.tpg.Neighbors(itm.id)
		for _, nbrID := range nbrs {
			if settled[nbrID] {
				continue
			}
			lnk, _ := rte.tpg.Link(itm.id, nbrID)
			cand := ent.dist[itm.id] + linkCost(lnk, w)
			known, present := ent.dist[nbrID]
			if !present || cand < known {
				ent.dist[nbrID] = cand
				ent.prev[nbrID] = itm.id
				heap.Push(fr, &frontierItem{id: nbrID, dist: cand + remaining(nbrID)})
			}
		}
	}

	return rte.extractRoute(ent, src, dst, w)
}

// heuristicScale returns the minimum over available links of link cost per
// unit of endpoint coordinate distance.  The scale is 0, disabling the
// heuristic, when any linked device lacks a placement or no link spans a
// positive distance.
func (rte *RoutingEngine) heuristicScale(w Weights) float64 {
	scale := math.Inf(1)
	for _, lnk := range rte.tpg.Links() {
		ndA, errA := rte.tpg.Node(lnk.Key.A)
		ndB, errB := rte.tpg.Node(lnk.Key.B)
		if errA != nil || errB != nil {
			continue
		}
		if ndA.Coord == nil || ndB.Coord == nil {
			return 0.0
		}
		span := ndA.Coord.dist(*ndB.Coord)
		if !(span > 0.0) {
			continue
		}
		ratio := linkCost(lnk, w) / span
		if ratio < scale {
			scale = ratio
		}
	}
	if math.IsInf(scale, 1) {
		return 0.0
	}
	return scale
}

// bfArc is one direction of an undirected link, materialized so relaxation
// sweeps run in a fixed order
type bfArc struct {
	from, to string
	cost     float64
}

// availArcs lists both directions of every available link, ordered by
// (from, to)
func (rte *RoutingEngine) availArcs(w Weights) []bfArc {
	arcs := make([]bfArc, 0, 2*len(rte.tpg.links))
	for _, id := range rte.tpg.NodeIDs() {
		nbrs, _ := rte.tpg.Neighbors(id)
		for _, nbrID := range nbrs {
			lnk, _ := rte.tpg.Link(id, nbrID)
			arcs = append(arcs, bfArc{from: id, to: nbrID, cost: linkCost(lnk, w)})
		}
	}
	return arcs
}

// bellmanFordFrom computes the least cost tree rooted in src by repeated
// relaxation.  Negative arc costs are tolerated; a negative cycle reachable
// from src is detected by a final sweep that still finds an improvement.
func (rte *RoutingEngine) bellmanFordFrom(src string, w Weights) (*sptEntry, error) {
	nodes := rte.tpg.NodeIDs()
	arcs := rte.availArcs(w)

	ent := &sptEntry{
		version: rte.tpg.Version(),
		dist:    map[string]float64{src: 0.0},
		prev:    make(map[string]string),
	}

	changed := true
	for sweep := 1; sweep < len(nodes) && changed; sweep++ {
		changed = false
		for _, arc := range arcs {
			fromDist, present := ent.dist[arc.from]
			if !present {
				continue
			}
			cand := fromDist + arc.cost
			known, knownPresent := ent.dist[arc.to]
			if !knownPresent || cand < known {
				ent.dist[arc.to] = cand
				ent.prev[arc.to] = arc.from
				changed = true
			}
		}
	}

	// a sweep that changed nothing proves stability, so the cycle check is
	// needed only when the sweep budget ran out first
	if changed {
		for _, arc := range arcs {
			fromDist, present := ent.dist[arc.from]
			if !present {
				continue
			}
			if known, knownPresent := ent.dist[arc.to]; knownPresent && fromDist+arc.cost < known {
				return nil, fmt.Errorf("bellman-ford from %s: %w", src, ErrNegativeCycle)
			}
		}
	}

	return ent, nil
}

// bfsFrom computes the fewest hops tree rooted in src.  Tree distances count
// hops; route costs are still priced from link costs at extraction.
func (rte *RoutingEngine) bfsFrom(src string) *sptEntry {
	ent := &sptEntry{
		version: rte.tpg.Version(),
		dist:    map[string]float64{src: 0.0},
		prev:    make(map[string]string),
	}

	queue := []string{src}
	for len(queue) > 0 {
		here := queue[0]
		queue = queue[1:]

		nbrs, _ := rte.tpg.Neighbors(here)
		for _, nbrID := range nbrs {
			if _, seen := ent.dist[nbrID]; seen {
				continue
			}
			ent.dist[nbrID] = ent.dist[here] + 1.0
			ent.prev[nbrID] = here
			queue = append(queue, nbrID)
		}
	}

	return ent
}

// PathCost sums the link costs along an inclusive node id sequence under w.
// A consecutive pair with no available link between them fails InvalidPath.
func PathCost(tpg *Topology, ids []string, w Weights) (float64, error) {
	if err := w.Validate(); err != nil {
		return 0.0, err
	}

	cost := 0.0
	for idx := 1; idx < len(ids); idx++ {
		lnk, err := tpg.Link(ids[idx-1], ids[idx])
		if err != nil {
			return 0.0, fmt.Errorf("path step %s -> %s: %w", ids[idx-1], ids[idx], ErrInvalidPath)
		}
		cost += linkCost(lnk, w)
	}

	return cost, nil
}
