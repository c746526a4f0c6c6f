package nettopogen

// topo_test.go exercises topology mutation, availability filtering, and the
// connectivity queries derived from the available subgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addRouters adds one router per id
func addRouters(t *testing.T, tpg *Topology, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := tpg.AddNode(id, Router)
		require.NoError(t, err)
	}
}

// addDelayLink adds a link with the given delay, gigabit bandwidth, and no loss
func addDelayLink(t *testing.T, tpg *Topology, a, b string, delay float64) {
	t.Helper()
	_, err := tpg.AddLink(a, b, delay, 1e9, 0.0)
	require.NoError(t, err)
}

// buildTriangle returns A, B, C with a cheap two hop path A-B-C and an
// expensive direct link A-C
func buildTriangle(t *testing.T) *Topology {
	t.Helper()
	tpg := CreateTopo("triangle")
	addRouters(t, tpg, "A", "B", "C")
	addDelayLink(t, tpg, "A", "B", 10.0)
	addDelayLink(t, tpg, "B", "C", 10.0)
	addDelayLink(t, tpg, "A", "C", 100.0)
	return tpg
}

// delayOnly weights cost by delay alone
func delayOnly() Weights {
	return Weights{Alpha: 1.0, Beta: 0.0, Gamma: 0.0}
}

func TestAddNodeDefaults(t *testing.T) {
	tpg := CreateTopo("t")
	nd, err := tpg.AddNode("r1", Router)
	require.NoError(t, err)
	assert.Equal(t, "r1", nd.ID)
	assert.Equal(t, Router, nd.Kind)
	assert.True(t, nd.Up)
	assert.Nil(t, nd.Coord)
	assert.Equal(t, 1, tpg.Version())
}

func TestAddNodeEmptyID(t *testing.T) {
	tpg := CreateTopo("t")
	_, err := tpg.AddNode("", Router)
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestAddNodeUpsertKeepsLinks(t *testing.T) {
	tpg := CreateTopo("t")
	addRouters(t, tpg, "A", "B")
	addDelayLink(t, tpg, "A", "B", 10.0)

	nd, err := tpg.AddNode("A", Switch)
	require.NoError(t, err)
	assert.Equal(t, Switch, nd.Kind)

	// the existing link survives the kind update
	_, err = tpg.Link("A", "B")
	assert.NoError(t, err)

	recs := tpg.ChgLog().Records()
	assert.Equal(t, OpUpdateNode, recs[len(recs)-1].Op)
}

func TestAddLinkValidation(t *testing.T) {
	tpg := CreateTopo("t")
	addRouters(t, tpg, "A", "B")

	_, err := tpg.AddLink("A", "A", 10.0, 1e9, 0.0)
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = tpg.AddLink("A", "X", 10.0, 1e9, 0.0)
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = tpg.AddLink("A", "B", 0.0, 1e9, 0.0)
	assert.ErrorIs(t, err, ErrInvalidMetric)

	_, err = tpg.AddLink("A", "B", 10.0, -1.0, 0.0)
	assert.ErrorIs(t, err, ErrInvalidMetric)

	_, err = tpg.AddLink("A", "B", 10.0, 1e9, 1.5)
	assert.ErrorIs(t, err, ErrInvalidMetric)

	_, err = tpg.AddLink("A", "B", 10.0, 1e9, 0.0)
	require.NoError(t, err)
	_, err = tpg.AddLink("B", "A", 20.0, 1e9, 0.0)
	assert.ErrorIs(t, err, ErrDuplicateLink)
}

func TestLinkKeyCanonicalized(t *testing.T) {
	assert.Equal(t, CreateLinkKey("a", "b"), CreateLinkKey("b", "a"))
	assert.Equal(t, "a--b", CreateLinkKey("b", "a").String())

	tpg := CreateTopo("t")
	addRouters(t, tpg, "A", "B")
	addDelayLink(t, tpg, "B", "A", 10.0)

	fwd, err := tpg.Link("A", "B")
	require.NoError(t, err)
	rev, err := tpg.Link("B", "A")
	require.NoError(t, err)
	assert.Same(t, fwd, rev)
	assert.Equal(t, "A", rev.Peer("B"))
	assert.Equal(t, "B", rev.Peer("A"))
}

func TestRmNodeCascades(t *testing.T) {
	tpg := CreateTopo("t")
	addRouters(t, tpg, "hub", "x", "y", "z")
	addDelayLink(t, tpg, "hub", "x", 10.0)
	addDelayLink(t, tpg, "hub", "y", 10.0)
	addDelayLink(t, tpg, "hub", "z", 10.0)

	require.NoError(t, tpg.RmNode("hub"))

	nodes, links, _ := tpg.Counts()
	assert.Equal(t, 3, nodes)
	assert.Equal(t, 0, links)
	_, err := tpg.NodeAny("hub")
	assert.ErrorIs(t, err, ErrNotFound)

	recs := tpg.ChgLog().Records()
	last := recs[len(recs)-1]
	assert.Equal(t, OpRmNode, last.Op)
	assert.Equal(t, []string{"hub"}, last.Nodes)
	assert.Equal(t, []LinkKey{
		CreateLinkKey("hub", "x"),
		CreateLinkKey("hub", "y"),
		CreateLinkKey("hub", "z"),
	}, last.Links)

	assert.ErrorIs(t, tpg.RmNode("hub"), ErrNotFound)
}

func TestRmLink(t *testing.T) {
	tpg := CreateTopo("t")
	addRouters(t, tpg, "A", "B")
	addDelayLink(t, tpg, "A", "B", 10.0)

	require.NoError(t, tpg.RmLink("B", "A"))
	_, err := tpg.LinkAny("A", "B")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, tpg.RmLink("A", "B"), ErrNotFound)
}

func TestNeighborsAvailabilityFiltered(t *testing.T) {
	tpg := buildTriangle(t)

	nbrs, err := tpg.Neighbors("A")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, nbrs)

	_, err = tpg.SetLinkStatus("A", "B", false)
	require.NoError(t, err)
	nbrs, err = tpg.Neighbors("A")
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, nbrs)

	_, err = tpg.SetNodeStatus("C", false)
	require.NoError(t, err)
	nbrs, err = tpg.Neighbors("A")
	require.NoError(t, err)
	assert.Empty(t, nbrs)

	// the unfiltered view still sees everything
	all, err := tpg.NeighborsAny("A")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, all)

	_, err = tpg.Neighbors("C")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetLinkStatusReportsChange(t *testing.T) {
	tpg := CreateTopo("t")
	addRouters(t, tpg, "A", "B")
	addDelayLink(t, tpg, "A", "B", 10.0)
	ver := tpg.Version()

	changed, err := tpg.SetLinkStatus("A", "B", false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, ver+1, tpg.Version())

	changed, err = tpg.SetLinkStatus("A", "B", false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, ver+1, tpg.Version())

	_, err = tpg.SetLinkStatus("A", "X", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetNodeStatusReportsChange(t *testing.T) {
	tpg := CreateTopo("t")
	addRouters(t, tpg, "A")

	changed, err := tpg.SetNodeStatus("A", false)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = tpg.SetNodeStatus("A", false)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = tpg.SetNodeStatus("X", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNodeVsNodeAny(t *testing.T) {
	tpg := CreateTopo("t")
	addRouters(t, tpg, "A")
	_, err := tpg.SetNodeStatus("A", false)
	require.NoError(t, err)

	_, err = tpg.Node("A")
	assert.ErrorIs(t, err, ErrNotFound)

	nd, err := tpg.NodeAny("A")
	require.NoError(t, err)
	assert.False(t, nd.Up)

	assert.Equal(t, []string{}, tpg.NodeIDs())
	assert.Equal(t, []string{"A"}, tpg.AllNodeIDs())
}

func TestLinkVsLinkAny(t *testing.T) {
	tpg := CreateTopo("t")
	addRouters(t, tpg, "A", "B")
	addDelayLink(t, tpg, "A", "B", 10.0)
	_, err := tpg.SetLinkStatus("A", "B", false)
	require.NoError(t, err)

	_, err = tpg.Link("A", "B")
	assert.ErrorIs(t, err, ErrNotFound)
	lnk, err := tpg.LinkAny("A", "B")
	require.NoError(t, err)
	assert.False(t, lnk.Up)

	assert.Len(t, tpg.Links(), 0)
	assert.Len(t, tpg.AllLinks(), 1)
}

func TestPlaceNodeAndSetIntrfcs(t *testing.T) {
	tpg := CreateTopo("t")
	addRouters(t, tpg, "A")

	require.NoError(t, tpg.PlaceNode("A", 3.0, 4.0))
	nd, err := tpg.NodeAny("A")
	require.NoError(t, err)
	require.NotNil(t, nd.Coord)
	assert.Equal(t, 3.0, nd.Coord.X)
	assert.Equal(t, 4.0, nd.Coord.Y)

	require.NoError(t, tpg.SetIntrfcs("A", map[string]string{"eth0": "10G"}))
	assert.Equal(t, "10G", nd.Intrfcs["eth0"])

	assert.ErrorIs(t, tpg.PlaceNode("X", 0.0, 0.0), ErrNotFound)
	assert.ErrorIs(t, tpg.SetIntrfcs("X", nil), ErrNotFound)
}

func TestIsConnectedBridge(t *testing.T) {
	tpg := CreateTopo("t")
	assert.True(t, tpg.IsConnected())

	addRouters(t, tpg, "A")
	assert.True(t, tpg.IsConnected())

	addRouters(t, tpg, "B", "C")
	addDelayLink(t, tpg, "A", "B", 10.0)
	addDelayLink(t, tpg, "B", "C", 10.0)
	assert.True(t, tpg.IsConnected())

	_, err := tpg.SetLinkStatus("B", "C", false)
	require.NoError(t, err)
	assert.False(t, tpg.IsConnected())

	_, err = tpg.SetLinkStatus("B", "C", true)
	require.NoError(t, err)
	assert.True(t, tpg.IsConnected())

	// failing the far endpoint reconnects what remains
	_, err = tpg.SetNodeStatus("C", false)
	require.NoError(t, err)
	assert.True(t, tpg.IsConnected())
}

func TestComponentsAndConnectedPairs(t *testing.T) {
	tpg := CreateTopo("t")
	addRouters(t, tpg, "A", "B", "C", "D")
	addDelayLink(t, tpg, "A", "B", 10.0)
	addDelayLink(t, tpg, "C", "D", 10.0)

	comps := tpg.components(nil)
	assert.Equal(t, [][]string{{"A", "B"}, {"C", "D"}}, comps)
	assert.Equal(t, 2, tpg.ConnectedPairs())
	assert.False(t, tpg.IsConnected())
}

func TestApplyLinkPerf(t *testing.T) {
	tpg := CreateTopo("t")
	addRouters(t, tpg, "A", "B", "C")
	addDelayLink(t, tpg, "A", "B", 10.0)
	addDelayLink(t, tpg, "B", "C", 10.0)
	ver := tpg.Version()

	perf := map[LinkKey]LinkPerf{
		CreateLinkKey("A", "B"): {Delay: 25.0, Loss: 0.1},
		CreateLinkKey("B", "C"): {Delay: 30.0, Loss: 0.2},
	}
	require.NoError(t, tpg.ApplyLinkPerf(perf))

	lnk, err := tpg.Link("A", "B")
	require.NoError(t, err)
	assert.Equal(t, 25.0, lnk.Delay)
	assert.Equal(t, 0.1, lnk.Loss)
	assert.Equal(t, 10.0, lnk.BaseDelay())
	assert.Equal(t, 0.0, lnk.BaseLoss())

	// one batch, one change record
	assert.Equal(t, ver+1, tpg.Version())
	recs := tpg.ChgLog().Records()
	last := recs[len(recs)-1]
	assert.Equal(t, OpLinkPerf, last.Op)
	assert.Equal(t, []LinkKey{CreateLinkKey("A", "B"), CreateLinkKey("B", "C")}, last.Links)

	err = tpg.ApplyLinkPerf(map[LinkKey]LinkPerf{CreateLinkKey("A", "X"): {Delay: 1.0}})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, tpg.ApplyLinkPerf(map[LinkKey]LinkPerf{}))
	assert.Equal(t, ver+1, tpg.Version())
}

func TestCountsTracksDown(t *testing.T) {
	tpg := buildTriangle(t)

	nodes, links, down := tpg.Counts()
	assert.Equal(t, 3, nodes)
	assert.Equal(t, 3, links)
	assert.Equal(t, 0, down)

	_, err := tpg.SetLinkStatus("A", "C", false)
	require.NoError(t, err)
	_, _, down = tpg.Counts()
	assert.Equal(t, 1, down)
}

func TestDevKindStrings(t *testing.T) {
	for _, kind := range []DevKind{PC, Router, Switch, Server, Firewall, ISP, AccessPoint, LoadBalancer} {
		assert.Equal(t, kind, DevKindFromStr(DevKindToStr(kind)))
	}
	assert.Equal(t, AccessPoint, DevKindFromStr("access_point"))
	assert.Equal(t, LoadBalancer, DevKindFromStr("load_balancer"))
	assert.Equal(t, UnknownDev, DevKindFromStr("toaster"))
	assert.Equal(t, "Unknown", DevKindToStr(UnknownDev))
}
