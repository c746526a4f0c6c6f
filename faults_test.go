package nettopogen

// faults_test.go covers scripted fault injection and the dynamic rerouting
// reaction behind it

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFaultRig(t *testing.T, tpg *Topology, mode ProtoMode, dynamic bool) (*FaultCtrl, *ProtocolSim) {
	t.Helper()
	rte := CreateRoutingEngine(tpg)
	ps, err := CreateProtocolSim(rte, mode, delayOnly())
	require.NoError(t, err)
	return CreateFaultCtrl(rte, ps, dynamic), ps
}

func TestBreakLinkIdempotent(t *testing.T) {
	tpg := buildTriangle(t)
	fc, ps := newFaultRig(t, tpg, RIP, true)
	ctx := context.Background()

	require.NoError(t, fc.BreakLink(ctx, "A", "B"))
	lnk, err := tpg.LinkAny("A", "B")
	require.NoError(t, err)
	assert.False(t, lnk.Up)
	assert.True(t, ps.Converged())

	log := fc.ConvergenceLog()
	require.Len(t, log, 1)
	assert.Equal(t, "rip", log[0].Mode)
	assert.Equal(t, 3, log[0].Rounds)
	assert.True(t, log[0].Converged)

	// breaking a broken link changes nothing and reruns nothing
	require.NoError(t, fc.BreakLink(ctx, "A", "B"))
	assert.Len(t, fc.ConvergenceLog(), 1)

	require.NoError(t, fc.RestoreLink(ctx, "A", "B"))
	lnk, err = tpg.LinkAny("A", "B")
	require.NoError(t, err)
	assert.True(t, lnk.Up)
	assert.Len(t, fc.ConvergenceLog(), 2)
	require.NoError(t, fc.RestoreLink(ctx, "A", "B"))
	assert.Len(t, fc.ConvergenceLog(), 2)
}

func TestFailNodeKeepsLinksInPlace(t *testing.T) {
	tpg := buildTriangle(t)
	fc, _ := newFaultRig(t, tpg, OSPF, true)
	ctx := context.Background()

	require.NoError(t, fc.FailNode(ctx, "C"))
	_, err := tpg.Node("C")
	assert.ErrorIs(t, err, ErrNotFound)

	// the link survives the outage, traversal just skips it
	lnk, err := tpg.LinkAny("A", "C")
	require.NoError(t, err)
	assert.True(t, lnk.Up)
	nbrs, err := tpg.Neighbors("A")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, nbrs)

	require.NoError(t, fc.RestoreNode(ctx, "C"))
	nbrs, err = tpg.Neighbors("A")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, nbrs)
}

func TestFaultTargetsMustExist(t *testing.T) {
	fc, _ := newFaultRig(t, buildTriangle(t), RIP, true)
	ctx := context.Background()

	assert.ErrorIs(t, fc.BreakLink(ctx, "A", "nowhere"), ErrNotFound)
	assert.ErrorIs(t, fc.FailNode(ctx, "nowhere"), ErrNotFound)
	assert.Empty(t, fc.ConvergenceLog())
}

func TestApplyDispatchesActions(t *testing.T) {
	tpg := buildTriangle(t)
	fc, _ := newFaultRig(t, tpg, OSPF, true)
	ctx := context.Background()

	require.NoError(t, fc.Apply(ctx, FaultEvt{Action: ActBreakLink, A: "B", B: "C"}))
	lnk, err := tpg.LinkAny("B", "C")
	require.NoError(t, err)
	assert.False(t, lnk.Up)

	require.NoError(t, fc.Apply(ctx, FaultEvt{Action: ActRestoreLink, A: "B", B: "C"}))
	require.NoError(t, fc.Apply(ctx, FaultEvt{Action: ActFailNode, A: "C"}))
	require.NoError(t, fc.Apply(ctx, FaultEvt{Action: ActRestoreNode, A: "C"}))

	err = fc.Apply(ctx, FaultEvt{Action: UnknownAction, A: "C"})
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestStaticControllerSkipsReaction(t *testing.T) {
	tpg := buildTriangle(t)
	fc, ps := newFaultRig(t, tpg, RIP, false)

	require.NoError(t, fc.BreakLink(context.Background(), "A", "B"))
	assert.Empty(t, fc.ConvergenceLog())
	assert.False(t, fc.Dynamic())
	assert.Equal(t, 0, ps.Rounds())

	fc.SetDynamic(true)
	assert.True(t, fc.Dynamic())
	require.NoError(t, fc.RestoreLink(context.Background(), "A", "B"))
	assert.Len(t, fc.ConvergenceLog(), 1)
}

func TestNilProtocolOnlyFlushesRoutes(t *testing.T) {
	tpg := buildTriangle(t)
	rte := CreateRoutingEngine(tpg)
	fc := CreateFaultCtrl(rte, nil, true)

	rt, err := rte.ComputeRoute("A", "C", AlgoDijkstra, delayOnly())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, rt.Path)

	require.NoError(t, fc.BreakLink(context.Background(), "B", "C"))
	assert.Empty(t, fc.ConvergenceLog())

	rt, err = rte.ComputeRoute("A", "C", AlgoDijkstra, delayOnly())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, rt.Path)
}

func TestReactRecordsTimeout(t *testing.T) {
	tpg := buildLine(t, "A", "B", "C", "D", "E")
	fc, ps := newFaultRig(t, tpg, RIP, true)
	ps.SetMaxRounds(2)

	err := fc.BreakLink(context.Background(), "D", "E")
	assert.ErrorIs(t, err, ErrConvergenceTimeout)

	log := fc.ConvergenceLog()
	require.Len(t, log, 1)
	assert.Equal(t, 2, log[0].Rounds)
	assert.False(t, log[0].Converged)
}

func TestConvergenceRecordTimeStamp(t *testing.T) {
	tpg := buildTriangle(t)
	tpg.SetTimeSource(func() float64 { return 3.5 })
	fc, _ := newFaultRig(t, tpg, OSPF, true)

	require.NoError(t, fc.FailNode(context.Background(), "C"))
	log := fc.ConvergenceLog()
	require.Len(t, log, 1)
	assert.Equal(t, 3.5, log[0].Time)
	assert.Equal(t, "ospf", log[0].Mode)
	assert.Equal(t, 1, log[0].Rounds)
}

func TestFaultActionStrings(t *testing.T) {
	for _, action := range []FaultAction{ActBreakLink, ActRestoreLink, ActFailNode, ActRestoreNode} {
		assert.Equal(t, action, FaultActionFromStr(FaultActionToStr(action)))
	}
	assert.Equal(t, UnknownAction, FaultActionFromStr("meteor_strike"))
	assert.Equal(t, "unknown", FaultActionToStr(UnknownAction))
}
