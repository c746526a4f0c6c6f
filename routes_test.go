package nettopogen

// routes_test.go exercises the routing engine: the five algorithms, the
// deterministic tie-break, version-keyed caching, and path pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDiamond returns A-B-D and A-C-D at equal cost
func buildDiamond(t *testing.T) *Topology {
	t.Helper()
	tpg := CreateTopo("diamond")
	addRouters(t, tpg, "A", "B", "C", "D")
	addDelayLink(t, tpg, "A", "B", 10.0)
	addDelayLink(t, tpg, "A", "C", 10.0)
	addDelayLink(t, tpg, "B", "D", 10.0)
	addDelayLink(t, tpg, "C", "D", 10.0)
	return tpg
}

func TestDijkstraPrefersCheapTwoHop(t *testing.T) {
	rte := CreateRoutingEngine(buildTriangle(t))

	rt, err := rte.ComputeRoute("A", "C", AlgoDijkstra, delayOnly())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, rt.Path)
	assert.Equal(t, 20.0, rt.Cost)
	assert.Equal(t, 2, rt.Hops)
}

func TestCostAlgorithmsAgree(t *testing.T) {
	rte := CreateRoutingEngine(buildTriangle(t))

	for _, algo := range []RouteAlgo{AlgoDijkstra, AlgoAStar, AlgoBellmanFord, AlgoQoS} {
		rt, err := rte.ComputeRoute("A", "C", algo, delayOnly())
		require.NoError(t, err, RouteAlgoToStr(algo))
		assert.Equal(t, 20.0, rt.Cost, RouteAlgoToStr(algo))
		assert.Equal(t, []string{"A", "B", "C"}, rt.Path, RouteAlgoToStr(algo))
	}
}

func TestBFSMinimizesHops(t *testing.T) {
	tpg := CreateTopo("line-with-shortcut")
	addRouters(t, tpg, "A", "B", "C", "D")
	addDelayLink(t, tpg, "A", "B", 10.0)
	addDelayLink(t, tpg, "B", "C", 10.0)
	addDelayLink(t, tpg, "C", "D", 10.0)
	addDelayLink(t, tpg, "A", "D", 1000.0)
	rte := CreateRoutingEngine(tpg)

	// bfs takes the expensive shortcut, dijkstra the cheap detour
	bfs, err := rte.ComputeRoute("A", "D", AlgoBFS, delayOnly())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "D"}, bfs.Path)
	assert.Equal(t, 1, bfs.Hops)
	assert.Equal(t, 1000.0, bfs.Cost)

	dij, err := rte.ComputeRoute("A", "D", AlgoDijkstra, delayOnly())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, dij.Path)
	assert.Equal(t, 30.0, dij.Cost)
}

func TestEqualCostTieBreaksLowestID(t *testing.T) {
	tpg := buildDiamond(t)
	rte := CreateRoutingEngine(tpg)

	for _, algo := range []RouteAlgo{AlgoDijkstra, AlgoAStar, AlgoBellmanFord, AlgoBFS} {
		rt, err := rte.ComputeRoute("A", "D", algo, delayOnly())
		require.NoError(t, err, RouteAlgoToStr(algo))
		assert.Equal(t, []string{"A", "B", "D"}, rt.Path, RouteAlgoToStr(algo))
	}
}

func TestRouteTrivialSelf(t *testing.T) {
	rte := CreateRoutingEngine(buildTriangle(t))

	rt, err := rte.ComputeRoute("B", "B", AlgoDijkstra, delayOnly())
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, rt.Path)
	assert.Equal(t, 0.0, rt.Cost)
	assert.Equal(t, 0, rt.Hops)
}

func TestRouteErrorClasses(t *testing.T) {
	tpg := buildTriangle(t)
	rte := CreateRoutingEngine(tpg)

	_, err := rte.ComputeRoute("A", "nowhere", AlgoDijkstra, delayOnly())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = rte.ComputeRoute("A", "C", UnknownAlgo, delayOnly())
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = rte.ComputeRoute("A", "C", AlgoDijkstra, Weights{Alpha: -1.0})
	assert.ErrorIs(t, err, ErrInvalidMetric)

	_, err = tpg.SetNodeStatus("C", false)
	require.NoError(t, err)
	_, err = rte.ComputeRoute("A", "C", AlgoDijkstra, delayOnly())
	assert.ErrorIs(t, err, ErrNoPath)

	// disconnected but available endpoints
	_, err = tpg.SetNodeStatus("C", true)
	require.NoError(t, err)
	_, err = tpg.SetLinkStatus("B", "C", false)
	require.NoError(t, err)
	_, err = tpg.SetLinkStatus("A", "C", false)
	require.NoError(t, err)
	_, err = rte.ComputeRoute("A", "C", AlgoDijkstra, delayOnly())
	assert.ErrorIs(t, err, ErrNoPath)
}

func TestRouteCacheTracksVersion(t *testing.T) {
	tpg := buildTriangle(t)
	rte := CreateRoutingEngine(tpg)

	rt, err := rte.ComputeRoute("A", "C", AlgoDijkstra, delayOnly())
	require.NoError(t, err)
	again, err := rte.ComputeRoute("A", "C", AlgoDijkstra, delayOnly())
	require.NoError(t, err)
	assert.Same(t, rt, again)

	// a topology mutation invalidates the cached answer
	_, err = tpg.SetLinkStatus("B", "C", false)
	require.NoError(t, err)
	rerouted, err := rte.ComputeRoute("A", "C", AlgoDijkstra, delayOnly())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, rerouted.Path)
	assert.Equal(t, 100.0, rerouted.Cost)

	_, err = tpg.SetLinkStatus("B", "C", true)
	require.NoError(t, err)
	restored, err := rte.ComputeRoute("A", "C", AlgoDijkstra, delayOnly())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, restored.Path)
}

func TestFlushCacheForcesRecompute(t *testing.T) {
	rte := CreateRoutingEngine(buildTriangle(t))

	rt, err := rte.ComputeRoute("A", "C", AlgoDijkstra, delayOnly())
	require.NoError(t, err)
	rte.FlushCache()
	fresh, err := rte.ComputeRoute("A", "C", AlgoDijkstra, delayOnly())
	require.NoError(t, err)
	assert.NotSame(t, rt, fresh)
	assert.Equal(t, rt.Path, fresh.Path)
}

func TestAStarMatchesDijkstraCosts(t *testing.T) {
	attrs := CreateAttrSrc("astar-attrs", DefaultLinkBounds())
	tpg, err := CreateRandomTopo("astar-rand", 10, 0.4, "astar-edges", attrs)
	require.NoError(t, err)
	rte := CreateRoutingEngine(tpg)

	w := DefaultWeights()
	ids := tpg.NodeIDs()
	for _, src := range ids {
		for _, dst := range ids {
			if src == dst {
				continue
			}
			dij, err := rte.ComputeRoute(src, dst, AlgoDijkstra, w)
			require.NoError(t, err)
			ast, err := rte.ComputeRoute(src, dst, AlgoAStar, w)
			require.NoError(t, err)
			assert.InDelta(t, dij.Cost, ast.Cost, 1e-9)
		}
	}
}

func TestEngineMatchesGraphPackage(t *testing.T) {
	attrs := CreateAttrSrc("oracle-attrs", DefaultLinkBounds())
	tpg, err := CreateRandomTopo("oracle-rand", 12, 0.3, "oracle-edges", attrs)
	require.NoError(t, err)
	rte := CreateRoutingEngine(tpg)

	w := DefaultWeights()
	ap, err := AllPairsShortestPaths(tpg, w)
	require.NoError(t, err)

	ids := tpg.NodeIDs()
	for _, src := range ids {
		for _, dst := range ids {
			if src == dst {
				continue
			}
			expected, reached := ap.Cost[src][dst]
			require.True(t, reached, "%s -> %s", src, dst)

			for _, algo := range []RouteAlgo{AlgoDijkstra, AlgoBellmanFord} {
				rt, err := rte.ComputeRoute(src, dst, algo, w)
				require.NoError(t, err)
				assert.InDelta(t, expected, rt.Cost, 1e-9, "%s %s -> %s", RouteAlgoToStr(algo), src, dst)
			}
		}
	}
}

func TestBellmanFordNegativeCycle(t *testing.T) {
	tpg := buildTriangle(t)
	lnk, err := tpg.LinkAny("A", "B")
	require.NoError(t, err)
	lnk.Delay = -10.0

	rte := CreateRoutingEngine(tpg)
	_, err = rte.ComputeRoute("A", "C", AlgoBellmanFord, delayOnly())
	assert.ErrorIs(t, err, ErrNegativeCycle)
}

func TestRoutesFromCoversTree(t *testing.T) {
	rte := CreateRoutingEngine(buildTriangle(t))

	routes, err := rte.RoutesFrom("A", AlgoDijkstra, delayOnly())
	require.NoError(t, err)
	require.Len(t, routes, 3)

	assert.Equal(t, []string{"A"}, routes["A"].Path)
	assert.Equal(t, 0.0, routes["A"].Cost)
	assert.Equal(t, []string{"A", "B"}, routes["B"].Path)
	assert.Equal(t, []string{"A", "B", "C"}, routes["C"].Path)
	assert.Equal(t, 20.0, routes["C"].Cost)
}

func TestRoutesFromUnavailableSource(t *testing.T) {
	tpg := buildTriangle(t)
	rte := CreateRoutingEngine(tpg)

	_, err := tpg.SetNodeStatus("A", false)
	require.NoError(t, err)
	_, err = rte.RoutesFrom("A", AlgoDijkstra, delayOnly())
	assert.ErrorIs(t, err, ErrNoPath)

	_, err = rte.RoutesFrom("nowhere", AlgoDijkstra, delayOnly())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPathCost(t *testing.T) {
	tpg := buildTriangle(t)

	cost, err := PathCost(tpg, []string{"A", "B", "C"}, delayOnly())
	require.NoError(t, err)
	assert.Equal(t, 20.0, cost)

	cost, err = PathCost(tpg, []string{"A"}, delayOnly())
	require.NoError(t, err)
	assert.Equal(t, 0.0, cost)

	_, err = PathCost(tpg, []string{"B", "X"}, delayOnly())
	assert.ErrorIs(t, err, ErrInvalidPath)

	// a broken link invalidates paths crossing it
	_, err = tpg.SetLinkStatus("A", "B", false)
	require.NoError(t, err)
	_, err = PathCost(tpg, []string{"A", "B", "C"}, delayOnly())
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestRouteAlgoStrings(t *testing.T) {
	for _, algo := range []RouteAlgo{AlgoDijkstra, AlgoAStar, AlgoBellmanFord, AlgoBFS, AlgoQoS} {
		assert.Equal(t, algo, RouteAlgoFromStr(RouteAlgoToStr(algo)))
	}
	assert.Equal(t, UnknownAlgo, RouteAlgoFromStr("magic"))
	assert.Equal(t, "unknown", RouteAlgoToStr(UnknownAlgo))
}
