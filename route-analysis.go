package nettopogen

// route-analysis.go provides whole-network path analysis over a topology

import (
	"math"
	"time"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// The analysis functions convert the availability-filtered topology into the
// graph package representation and let graph/path discover shortest paths,
// one tree per source.  Costs are deterministic; when several paths tie on
// cost the particular path the graph package reports is not specified, so
// callers needing tie determinism route through the engine instead.

// AllPairs holds the result of an all-pairs shortest path sweep.  Cost and
// Path carry entries only for reachable ordered pairs; the diagonal is
// present at cost 0.
type AllPairs struct {
	Order []string                       `json:"order" yaml:"order"`
	Cost  map[string]map[string]float64  `json:"cost" yaml:"cost"`
	Path  map[string]map[string][]string `json:"path" yaml:"path"`
}

// AllPairsShortestPaths computes cost and path between every ordered pair of
// available devices under w, one graph/path Dijkstra tree per source
func AllPairsShortestPaths(tpg *Topology, w Weights) (*AllPairs, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	cg := tpg.connGraph(&w, nil)
	ids := tpg.NodeIDs()

	ap := &AllPairs{
		Order: ids,
		Cost:  make(map[string]map[string]float64, len(ids)),
		Path:  make(map[string]map[string][]string, len(ids)),
	}

	for _, src := range ids {
		spTree := path.DijkstraFrom(simple.Node(tpg.nodes[src].Num), cg)

		costRow := make(map[string]float64)
		pathRow := make(map[string][]string)
		for _, dst := range ids {
			nodeSeq, wgt := spTree.To(int64(tpg.nodes[dst].Num))
			if math.IsInf(wgt, 1) {
				continue
			}
			hops := make([]string, 0, len(nodeSeq))
			for _, gn := range nodeSeq {
				hops = append(hops, tpg.byNum[int(gn.ID())].ID)
			}
			if len(hops) == 0 && src == dst {
				hops = []string{src}
			}
			costRow[dst] = wgt
			pathRow[dst] = hops
		}
		ap.Cost[src] = costRow
		ap.Path[src] = pathRow
	}

	return ap, nil
}

// Diameter returns the maximum finite shortest path cost between distinct
// devices, 0 when no two devices are mutually reachable
func (ap *AllPairs) Diameter() float64 {
	diam := 0.0
	for _, src := range ap.Order {
		for _, dst := range ap.Order {
			if src == dst {
				continue
			}
			if cost, reached := ap.Cost[src][dst]; reached && cost > diam {
				diam = cost
			}
		}
	}
	return diam
}

// AvgHops returns the mean hop count over unordered reachable pairs of
// distinct devices, 0 when there are none
func (ap *AllPairs) AvgHops() float64 {
	total := 0.0
	pairs := 0
	for i, src := range ap.Order {
		for _, dst := range ap.Order[i+1:] {
			hops, reached := ap.Path[src][dst]
			if !reached {
				continue
			}
			total += float64(len(hops) - 1)
			pairs += 1
		}
	}
	if pairs == 0 {
		return 0.0
	}
	return total / float64(pairs)
}

// NetworkDiameter sweeps all pairs and returns the diameter under w
func NetworkDiameter(tpg *Topology, w Weights) (float64, error) {
	ap, err := AllPairsShortestPaths(tpg, w)
	if err != nil {
		return 0.0, err
	}
	return ap.Diameter(), nil
}

// AvgPathLength sweeps all pairs and returns the mean hop count under w
func AvgPathLength(tpg *Topology, w Weights) (float64, error) {
	ap, err := AllPairsShortestPaths(tpg, w)
	if err != nil {
		return 0.0, err
	}
	return ap.AvgHops(), nil
}

// DfltCriticalStretch is the diameter stretch factor beyond which a link
// failure marks the link critical
const DfltCriticalStretch float64 = 1.5

// CriticalLinks returns the available links whose individual failure would
// disconnect a currently connected pair of devices or stretch the network
// diameter beyond stretch times its present value.  Keys come back in sorted
// order.  The topology is never mutated; candidate failures are evaluated by
// leaving the link out of the graph conversion.
func CriticalLinks(tpg *Topology, w Weights, stretch float64) ([]LinkKey, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	basePairs := tpg.ConnectedPairs()
	baseDiam := diameterOver(tpg, w, nil)

	critical := make([]LinkKey, 0)
	for _, lnk := range tpg.Links() {
		skip := map[LinkKey]bool{lnk.Key: true}

		pairs := 0
		for _, comp := range tpg.components(skip) {
			n := len(comp)
			pairs += n * (n - 1) / 2
		}
		if pairs < basePairs {
			critical = append(critical, lnk.Key)
			continue
		}

		if baseDiam > 0.0 && diameterOver(tpg, w, skip) > stretch*baseDiam {
			critical = append(critical, lnk.Key)
		}
	}

	return critical, nil
}

// diameterOver computes the diameter of the available subgraph with the
// links named in skip left out
func diameterOver(tpg *Topology, w Weights, skip map[LinkKey]bool) float64 {
	cg := tpg.connGraph(&w, skip)
	ids := tpg.NodeIDs()

	diam := 0.0
	for _, src := range ids {
		spTree := path.DijkstraFrom(simple.Node(tpg.nodes[src].Num), cg)
		for _, dst := range ids {
			if dst == src {
				continue
			}
			_, wgt := spTree.To(int64(tpg.nodes[dst].Num))
			if !math.IsInf(wgt, 1) && wgt > diam {
				diam = wgt
			}
		}
	}

	return diam
}

// AlgoResult pairs one algorithm's answer to a route query with the wall
// clock time the computation took
type AlgoResult struct {
	Algo    RouteAlgo
	Route   *Route
	Elapsed time.Duration
	Err     error
}

// CompareAlgorithms runs the same route query through every algorithm on a
// fresh engine and reports each algorithm's route, error, and elapsed wall
// clock time.  This is the one place wall clock time appears; everything
// else in the engine runs on virtual time.
func CompareAlgorithms(tpg *Topology, src, dst string, w Weights) ([]AlgoResult, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	algos := []RouteAlgo{AlgoDijkstra, AlgoAStar, AlgoBellmanFord, AlgoBFS, AlgoQoS}
	results := make([]AlgoResult, 0, len(algos))
	for _, algo := range algos {
		rte := CreateRoutingEngine(tpg)
		start := time.Now()
		rt, err := rte.ComputeRoute(src, dst, algo, w)
		results = append(results, AlgoResult{
			Algo:    algo,
			Route:   rt,
			Elapsed: time.Since(start),
			Err:     err,
		})
	}

	return results, nil
}
