package nettopogen

// metrics_test.go covers the evaluation metrics: the traffic report, path
// stability across sweeps, and the resilience comparison

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsReportExactRun(t *testing.T) {
	tpg := buildPipe(t, 1e9)
	ts := newTrafficSim(t, tpg)
	// freeze feedback so both steps ride base attributes
	ts.DelaySlope = 0.0
	ts.LossSlope = 0.0
	_, err := ts.CreateFlow("cbr", "A", "B", CBR, 100.0, 1000)
	require.NoError(t, err)

	require.NoError(t, ts.SimulateStep(1.0, delayOnly()))
	require.NoError(t, ts.SimulateStep(2.0, delayOnly()))

	rpt := BuildMetricsReport(ts)
	assert.Equal(t, 2.0, rpt.Time)
	assert.Equal(t, 200, rpt.PcktsGenerated)
	assert.Equal(t, 200, rpt.PcktsDelivered)
	assert.Equal(t, 0, rpt.PcktsDropped)
	assert.InDelta(t, 800000.0, rpt.Throughput, 1e-6)
	assert.Equal(t, 0.0, rpt.LossRate)
	assert.Equal(t, 1.0, rpt.Efficiency)
	assert.Equal(t, 10.0, rpt.MeanDelay)
	assert.Equal(t, 0.0, rpt.Jitter)
	assert.Equal(t, 1.0, rpt.MeanHops)
	assert.InDelta(t, 8e-4, rpt.MaxUtil, 1e-12)
	assert.InDelta(t, 8e-4, rpt.MeanUtil, 1e-12)
	assert.Equal(t, 1.0, rpt.LoadBalance)
	assert.InDelta(t, 8e-4, rpt.LinkUtil["A--B"], 1e-12)
}

func TestMetricsJitterSeparatesPathDelays(t *testing.T) {
	tpg := buildLine(t, "A", "B", "C")
	ts := newTrafficSim(t, tpg)
	_, err := ts.CreateFlow("near", "A", "B", CBR, 10.0, 100)
	require.NoError(t, err)
	_, err = ts.CreateFlow("far", "A", "C", CBR, 10.0, 100)
	require.NoError(t, err)

	require.NoError(t, ts.SimulateStep(1.0, delayOnly()))

	rpt := BuildMetricsReport(ts)
	assert.Equal(t, 15.0, rpt.MeanDelay)
	assert.Greater(t, rpt.Jitter, 0.0)
	assert.Equal(t, 1.5, rpt.MeanHops)
}

func TestMetricsLoadBalanceSeesConcentration(t *testing.T) {
	tpg := buildLine(t, "A", "B", "C")
	ts := newTrafficSim(t, tpg)
	_, err := ts.CreateFlow("edge", "A", "B", CBR, 100.0, 1000)
	require.NoError(t, err)

	require.NoError(t, ts.SimulateStep(1.0, delayOnly()))

	rpt := BuildMetricsReport(ts)
	assert.InDelta(t, 8e-4, rpt.MaxUtil, 1e-12)
	assert.InDelta(t, 4e-4, rpt.MeanUtil, 1e-12)
	assert.InDelta(t, 1.0/(1.0+math.Sqrt2), rpt.LoadBalance, 1e-12)
	assert.Equal(t, 0.0, rpt.LinkUtil["B--C"])
}

func TestMetricsEmptySim(t *testing.T) {
	ts := newTrafficSim(t, buildTriangle(t))

	rpt := BuildMetricsReport(ts)
	assert.Equal(t, 0.0, rpt.Time)
	assert.Equal(t, 0, rpt.PcktsGenerated)
	assert.Equal(t, 0.0, rpt.Throughput)
	assert.Equal(t, 0.0, rpt.MeanDelay)
	assert.Len(t, rpt.LinkUtil, 3)
	assert.Equal(t, 0.0, rpt.MeanUtil)
	assert.Equal(t, 1.0, rpt.LoadBalance)
}

func TestMetricsSkipUnavailableLinks(t *testing.T) {
	tpg := buildTriangle(t)
	ts := newTrafficSim(t, tpg)
	_, err := tpg.SetLinkStatus("A", "C", false)
	require.NoError(t, err)

	rpt := BuildMetricsReport(ts)
	assert.Len(t, rpt.LinkUtil, 2)
	_, present := rpt.LinkUtil["A--C"]
	assert.False(t, present)
}

func TestPathStability(t *testing.T) {
	tpg := buildTriangle(t)

	before, err := AllPairsShortestPaths(tpg, delayOnly())
	require.NoError(t, err)
	assert.Equal(t, 1.0, PathStability(before, before))

	_, err = tpg.SetLinkStatus("B", "C", false)
	require.NoError(t, err)
	after, err := AllPairsShortestPaths(tpg, delayOnly())
	require.NoError(t, err)

	// only the A-B pair keeps its path once B-C fails
	assert.InDelta(t, 1.0/3.0, PathStability(before, after), 1e-12)
}

func TestPathStabilityCountsLostPairs(t *testing.T) {
	tpg := buildTriangle(t)
	before, err := AllPairsShortestPaths(tpg, delayOnly())
	require.NoError(t, err)

	_, err = tpg.SetNodeStatus("C", false)
	require.NoError(t, err)
	after, err := AllPairsShortestPaths(tpg, delayOnly())
	require.NoError(t, err)

	// pairs through C route in only one sweep and count as changed
	assert.InDelta(t, 1.0/3.0, PathStability(before, after), 1e-12)
}

func TestResilience(t *testing.T) {
	tpg := buildTriangle(t)
	before := SnapshotComponents(tpg)
	require.Len(t, before, 1)

	// one link down leaves the triangle connected
	_, err := tpg.SetLinkStatus("A", "B", false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, Resilience(before, SnapshotComponents(tpg)))
	_, err = tpg.SetLinkStatus("A", "B", true)
	require.NoError(t, err)

	// a failed device strands its pairs
	_, err = tpg.SetNodeStatus("C", false)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, Resilience(before, SnapshotComponents(tpg)), 1e-12)
}

func TestResilienceEmptyBaseline(t *testing.T) {
	tpg := CreateTopo("empty")
	assert.Equal(t, 1.0, Resilience(SnapshotComponents(tpg), SnapshotComponents(tpg)))
}

func TestSnapshotComponents(t *testing.T) {
	tpg := CreateTopo("islands")
	addRouters(t, tpg, "A", "B", "C", "D")
	addDelayLink(t, tpg, "A", "B", 10.0)
	addDelayLink(t, tpg, "C", "D", 10.0)

	comps := SnapshotComponents(tpg)
	assert.Equal(t, [][]string{{"A", "B"}, {"C", "D"}}, comps)
}
