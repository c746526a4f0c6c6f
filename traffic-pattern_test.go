package nettopogen

// traffic-pattern_test.go covers the preset flow populations

import (
	"fmt"
	"testing"

	"github.com/iti/rngstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRandomPairs(t *testing.T) {
	ts := newTrafficSim(t, buildTriangle(t))

	flws, err := AddRandomPairs(ts, 4, CBR, 5.0, 100, "pairs-a")
	require.NoError(t, err)
	require.Len(t, flws, 4)

	for idx, flw := range flws {
		assert.Equal(t, fmt.Sprintf("rnd-%d", idx), flw.Name)
		assert.NotEqual(t, flw.Src, flw.Dst)
		assert.Contains(t, []string{"A", "B", "C"}, flw.Src)
		assert.Contains(t, []string{"A", "B", "C"}, flw.Dst)
		assert.Equal(t, CBR, flw.Pattern)
	}

	// a second population numbers past the existing flows
	more, err := AddRandomPairs(ts, 2, Poisson, 5.0, 100, "pairs-b")
	require.NoError(t, err)
	assert.Equal(t, "rnd-4", more[0].Name)
	assert.Equal(t, "rnd-5", more[1].Name)
	assert.Len(t, ts.Flows(), 6)
}

func TestAddRandomPairsReproducible(t *testing.T) {
	draw := func() []string {
		rngstream.SetRngStreamMasterSeed(7)
		ts := newTrafficSim(t, buildTriangle(t))
		flws, err := AddRandomPairs(ts, 5, CBR, 5.0, 100, "pairs-seeded")
		require.NoError(t, err)
		pairs := make([]string, 0, len(flws))
		for _, flw := range flws {
			pairs = append(pairs, flw.Src+">"+flw.Dst)
		}
		return pairs
	}

	assert.Equal(t, draw(), draw())
}

func TestAddRandomPairsNeedsTwoAvailable(t *testing.T) {
	tpg := CreateTopo("small")
	addRouters(t, tpg, "A", "B")
	ts := newTrafficSim(t, tpg)

	_, err := tpg.SetNodeStatus("B", false)
	require.NoError(t, err)
	_, err = AddRandomPairs(ts, 1, CBR, 5.0, 100, "pairs")
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestAddFullMesh(t *testing.T) {
	ts := newTrafficSim(t, buildTriangle(t))

	flws, err := AddFullMesh(ts, CBR, 5.0, 100)
	require.NoError(t, err)
	assert.Len(t, flws, 6)

	flw, err := ts.FlowByName("mesh-A-B")
	require.NoError(t, err)
	assert.Equal(t, "A", flw.Src)
	assert.Equal(t, "B", flw.Dst)
	flw, err = ts.FlowByName("mesh-C-A")
	require.NoError(t, err)
	assert.Equal(t, "C", flw.Src)
}

func TestAddFullMeshSkipsUnavailable(t *testing.T) {
	tpg := buildTriangle(t)
	ts := newTrafficSim(t, tpg)
	_, err := tpg.SetNodeStatus("C", false)
	require.NoError(t, err)

	flws, err := AddFullMesh(ts, CBR, 5.0, 100)
	require.NoError(t, err)
	assert.Len(t, flws, 2)
}

func TestAddHotspot(t *testing.T) {
	ts := newTrafficSim(t, buildTriangle(t))

	flws, err := AddHotspot(ts, "C", Poisson, 20.0, 500)
	require.NoError(t, err)
	require.Len(t, flws, 2)
	for _, flw := range flws {
		assert.Equal(t, "C", flw.Dst)
	}
	_, err = ts.FlowByName("hot-A")
	require.NoError(t, err)
	_, err = ts.FlowByName("hot-B")
	require.NoError(t, err)

	_, err = AddHotspot(ts, "nowhere", Poisson, 20.0, 500)
	assert.ErrorIs(t, err, ErrNotFound)

	// the naming scheme admits one hotspot population per destination set
	_, err = AddHotspot(ts, "C", Poisson, 20.0, 500)
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestAddBurstyBackground(t *testing.T) {
	ts := newTrafficSim(t, buildTriangle(t))

	flws, err := AddBurstyBackground(ts, 3, 10.0, 200, 0.5, 1.5, "bg")
	require.NoError(t, err)
	require.Len(t, flws, 3)
	for _, flw := range flws {
		assert.Equal(t, Bursty, flw.Pattern)
		assert.Equal(t, 0.5, flw.BurstOn)
		assert.Equal(t, 1.5, flw.BurstOff)
	}

	_, err = AddBurstyBackground(ts, 1, 10.0, 200, 0.0, 1.0, "bg-bad")
	assert.ErrorIs(t, err, ErrInvalidMetric)
}
