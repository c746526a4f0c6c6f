package nettopogen

// traffic-pattern.go builds preset flow populations on a traffic simulator

import (
	"fmt"

	"github.com/iti/rngstream"
)

// AddRandomPairs creates n flows between randomly drawn distinct pairs of
// available devices.  Pair selection draws from a named rng stream, so a
// seeded run reproduces the same population.
func AddRandomPairs(ts *TrafficSim, n int, pattern FlowPattern,
	pcktRate float64, pcktLen int, rngName string) ([]*Flow, error) {

	ids := ts.tpg.NodeIDs()
	if len(ids) < 2 {
		return nil, fmt.Errorf("random pairs need at least two available devices: %w", ErrInvalidReference)
	}

	rng := rngstream.New(rngName)
	start := len(ts.flows)

	flws := make([]*Flow, 0, n)
	for idx := 0; idx < n; idx++ {
		src := ids[pickIdx(rng, len(ids))]
		dst := src
		for dst == src {
			dst = ids[pickIdx(rng, len(ids))]
		}

		flw, err := ts.CreateFlow(fmt.Sprintf("rnd-%d", start+idx), src, dst, pattern, pcktRate, pcktLen)
		if err != nil {
			return nil, err
		}
		flws = append(flws, flw)
	}

	return flws, nil
}

// AddFullMesh creates one flow for every ordered pair of distinct available
// devices
func AddFullMesh(ts *TrafficSim, pattern FlowPattern, pcktRate float64, pcktLen int) ([]*Flow, error) {
	ids := ts.tpg.NodeIDs()

	flws := make([]*Flow, 0, len(ids)*(len(ids)-1))
	for _, src := range ids {
		for _, dst := range ids {
			if dst == src {
				continue
			}
			flw, err := ts.CreateFlow(fmt.Sprintf("mesh-%s-%s", src, dst), src, dst,
				pattern, pcktRate, pcktLen)
			if err != nil {
				return nil, err
			}
			flws = append(flws, flw)
		}
	}

	return flws, nil
}

// AddHotspot creates a flow from every other available device toward one
// destination, the classic incast load
func AddHotspot(ts *TrafficSim, hotspot string, pattern FlowPattern,
	pcktRate float64, pcktLen int) ([]*Flow, error) {

	if _, err := ts.tpg.NodeAny(hotspot); err != nil {
		return nil, err
	}

	flws := make([]*Flow, 0)
	for _, src := range ts.tpg.NodeIDs() {
		if src == hotspot {
			continue
		}
		flw, err := ts.CreateFlow(fmt.Sprintf("hot-%s", src), src, hotspot, pattern, pcktRate, pcktLen)
		if err != nil {
			return nil, err
		}
		flws = append(flws, flw)
	}

	return flws, nil
}

// AddBurstyBackground creates n bursty flows between random distinct pairs
// with the given on/off cycle, background load for fault and convergence
// experiments
func AddBurstyBackground(ts *TrafficSim, n int, pcktRate float64, pcktLen int,
	on, off float64, rngName string) ([]*Flow, error) {

	ids := ts.tpg.NodeIDs()
	if len(ids) < 2 {
		return nil, fmt.Errorf("background load needs at least two available devices: %w", ErrInvalidReference)
	}

	rng := rngstream.New(rngName)
	start := len(ts.flows)

	flws := make([]*Flow, 0, n)
	for idx := 0; idx < n; idx++ {
		src := ids[pickIdx(rng, len(ids))]
		dst := src
		for dst == src {
			dst = ids[pickIdx(rng, len(ids))]
		}

		flw, err := ts.CreateFlow(fmt.Sprintf("bg-%d", start+idx), src, dst, Bursty, pcktRate, pcktLen)
		if err != nil {
			return nil, err
		}
		if err := flw.SetBurst(on, off); err != nil {
			return nil, err
		}
		flws = append(flws, flw)
	}

	return flws, nil
}

// pickIdx maps one U(0,1) draw onto an index below n
func pickIdx(rng *rngstream.RngStream, n int) int {
	idx := int(rng.RandU01() * float64(n))
	if idx >= n {
		idx = n - 1
	}
	return idx
}
