package nettopogen

// traffic.go advances synthetic traffic flows over a topology and feeds the
// resulting link utilization back into effective link state

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/iti/rngstream"
	"golang.org/x/exp/slices"
)

// A traffic step covers the interval from the end of the previous step to
// the caller's clock.  Each flow offers packets over the interval according
// to its pattern, the packets ride the flow's current route, and the load
// they place on every link of that route accumulates as utilization.  At the
// end of the step the simulator derives effective delay and loss for each
// loaded link from the link's base attributes, clamped to the configured
// bounds, and writes them back through the topology in one mutation.  The
// cost model observes the degraded values on the next evaluation, which
// closes the feedback loop.  Degradation is always computed from base
// values, never from the previous effective values, so repeated steps at the
// same load are stable rather than compounding.

// FlowPattern is the base type for an enumerated type of traffic patterns
type FlowPattern int

const (
	CBR FlowPattern = iota
	Bursty
	Poisson
	UnknownPattern
)

// FlowPatternFromStr returns the FlowPattern corresponding to a string name for it
func FlowPatternFromStr(pattern string) FlowPattern {
	switch pattern {
	case "cbr", "CBR":
		return CBR
	case "bursty":
		return Bursty
	case "poisson":
		return Poisson
	default:
		return UnknownPattern
	}
}

// FlowPatternToStr returns a string name that corresponds to an input FlowPattern
func FlowPatternToStr(pattern FlowPattern) string {
	switch pattern {
	case CBR:
		return "cbr"
	case Bursty:
		return "bursty"
	case Poisson:
		return "poisson"
	default:
		return "unknown"
	}
}

// FlowStats accumulates per-flow packet counters.  Delay totals are summed
// over delivered packets only.
type FlowStats struct {
	Generated  int     `json:"generated" yaml:"generated"`
	Delivered  int     `json:"delivered" yaml:"delivered"`
	Dropped    int     `json:"dropped" yaml:"dropped"`
	TotalDelay float64 `json:"totaldelay" yaml:"totaldelay"`
	TotalHops  int     `json:"totalhops" yaml:"totalhops"`
}

// default bursty cycle, one second on followed by one second off
const (
	DfltBurstOn  float64 = 1.0
	DfltBurstOff float64 = 1.0
)

// Flow is one synthetic traffic flow between two devices
type Flow struct {
	ID       uuid.UUID
	Name     string
	Src      string
	Dst      string
	Pattern  FlowPattern
	PcktRate float64 // packets per second at the pattern's peak
	PcktLen  int     // bytes
	BurstOn  float64 // seconds of peak transmission per bursty cycle
	BurstOff float64 // seconds of silence per bursty cycle

	Stats FlowStats

	rng        *rngstream.RngStream
	lastPath   *Route
	pathVer    int
	carry      float64 // fractional packets carried between steps
	nxtArrival float64 // absolute time of the next poisson arrival, <0 until drawn
}

// SetBurst configures a flow's bursty on/off cycle
func (flw *Flow) SetBurst(on, off float64) error {
	if !(on > 0.0) || off < 0.0 {
		return fmt.Errorf("flow %s: burst windows %f/%f: %w", flw.Name, on, off, ErrInvalidMetric)
	}
	flw.BurstOn = on
	flw.BurstOff = off
	return nil
}

// feedback slopes applied per unit of utilization
const (
	DfltDelaySlope float64 = 40.0
	DfltLossSlope  float64 = 0.1
)

// TrafficSim owns the active flows, the per-link utilization of the last
// completed step, and the feedback loop writing effective link state
type TrafficSim struct {
	tpg    *Topology
	rte    *RoutingEngine
	algo   RouteAlgo
	bounds LinkBounds

	DelaySlope float64
	LossSlope  float64

	flows    map[uuid.UUID]*Flow
	byName   map[string]uuid.UUID
	lastTime float64
	util     map[LinkKey]float64

	delaySamples []float64
	delayWeights []float64
}

// CreateTrafficSim is a constructor.  Flow routes resolve through rte under
// the named algorithm.
func CreateTrafficSim(rte *RoutingEngine, algo RouteAlgo) *TrafficSim {
	ts := new(TrafficSim)
	ts.rte = rte
	ts.tpg = rte.Topo()
	ts.algo = algo
	ts.bounds = DefaultLinkBounds()
	ts.DelaySlope = DfltDelaySlope
	ts.LossSlope = DfltLossSlope
	ts.flows = make(map[uuid.UUID]*Flow)
	ts.byName = make(map[string]uuid.UUID)
	ts.util = make(map[LinkKey]float64)
	return ts
}

// SetBounds overrides the clamp ranges applied by feedback
func (ts *TrafficSim) SetBounds(bounds LinkBounds) {
	ts.bounds = bounds
}

// SetAlgo changes the algorithm flows route by and drops their cached
// paths so the next step resolves fresh ones
func (ts *TrafficSim) SetAlgo(algo RouteAlgo) {
	ts.algo = algo
	for _, flw := range ts.flows {
		flw.lastPath = nil
	}
}

// CreateFlow registers a flow between two existing devices and returns it.
// The flow gets a generated id and its own rng stream; an empty name takes
// the id string, and names must be unique.
func (ts *TrafficSim) CreateFlow(name, src, dst string, pattern FlowPattern,
	pcktRate float64, pcktLen int) (*Flow, error) {

	switch pattern {
	case CBR, Bursty, Poisson:
	default:
		return nil, fmt.Errorf("flow %s: pattern %s: %w", name, FlowPatternToStr(pattern), ErrInvalidReference)
	}
	if _, err := ts.tpg.NodeAny(src); err != nil {
		return nil, fmt.Errorf("flow %s: source: %w", name, err)
	}
	if _, err := ts.tpg.NodeAny(dst); err != nil {
		return nil, fmt.Errorf("flow %s: destination: %w", name, err)
	}
	if !(pcktRate > 0.0) {
		return nil, fmt.Errorf("flow %s: packet rate %f: %w", name, pcktRate, ErrInvalidMetric)
	}
	if pcktLen <= 0 {
		return nil, fmt.Errorf("flow %s: packet length %d: %w", name, pcktLen, ErrInvalidMetric)
	}

	flw := new(Flow)
	flw.ID = uuid.New()
	if name == "" {
		name = flw.ID.String()
	}
	if _, taken := ts.byName[name]; taken {
		return nil, fmt.Errorf("flow name %s already in use: %w", name, ErrInvalidReference)
	}
	flw.Name = name
	flw.Src = src
	flw.Dst = dst
	flw.Pattern = pattern
	flw.PcktRate = pcktRate
	flw.PcktLen = pcktLen
	flw.BurstOn = DfltBurstOn
	flw.BurstOff = DfltBurstOff
	flw.rng = rngstream.New(name)
	flw.nxtArrival = -1.0

	ts.flows[flw.ID] = flw
	ts.byName[name] = flw.ID

	return flw, nil
}

// RmFlow removes a flow by id
func (ts *TrafficSim) RmFlow(id uuid.UUID) error {
	flw, present := ts.flows[id]
	if !present {
		return fmt.Errorf("flow %s: %w", id, ErrUnknownFlow)
	}
	delete(ts.byName, flw.Name)
	delete(ts.flows, id)
	return nil
}

// Flow returns a flow by id
func (ts *TrafficSim) Flow(id uuid.UUID) (*Flow, error) {
	flw, present := ts.flows[id]
	if !present {
		return nil, fmt.Errorf("flow %s: %w", id, ErrUnknownFlow)
	}
	return flw, nil
}

// FlowByName returns a flow by name
func (ts *TrafficSim) FlowByName(name string) (*Flow, error) {
	id, present := ts.byName[name]
	if !present {
		return nil, fmt.Errorf("flow %s: %w", name, ErrUnknownFlow)
	}
	return ts.flows[id], nil
}

// Flows returns the active flows sorted by name
func (ts *TrafficSim) Flows() []*Flow {
	flws := make([]*Flow, 0, len(ts.flows))
	for _, flw := range ts.flows {
		flws = append(flws, flw)
	}
	slices.SortFunc(flws, func(x, y *Flow) int {
		if x.Name < y.Name {
			return -1
		} else if x.Name > y.Name {
			return 1
		}
		return 0
	})
	return flws
}

// ChangeRate updates a flow's peak packet rate
func (ts *TrafficSim) ChangeRate(id uuid.UUID, pcktRate float64) error {
	flw, present := ts.flows[id]
	if !present {
		return fmt.Errorf("flow %s: %w", id, ErrUnknownFlow)
	}
	if !(pcktRate > 0.0) {
		return fmt.Errorf("flow %s: packet rate %f: %w", flw.Name, pcktRate, ErrInvalidMetric)
	}
	flw.PcktRate = pcktRate
	return nil
}

// Now returns the end of the last completed step
func (ts *TrafficSim) Now() float64 {
	return ts.lastTime
}

// Util returns a copy of the per-link utilization observed by the last
// completed step
func (ts *TrafficSim) Util() map[LinkKey]float64 {
	util := make(map[LinkKey]float64, len(ts.util))
	for key, u := range ts.util {
		util[key] = u
	}
	return util
}

// AggStats sums the counters of every active flow
func (ts *TrafficSim) AggStats() FlowStats {
	agg := FlowStats{}
	for _, flw := range ts.flows {
		agg.Generated += flw.Stats.Generated
		agg.Delivered += flw.Stats.Delivered
		agg.Dropped += flw.Stats.Dropped
		agg.TotalDelay += flw.Stats.TotalDelay
		agg.TotalHops += flw.Stats.TotalHops
	}
	return agg
}

// DelaySamples returns the per-step path delay samples and their delivered
// packet weights, the inputs to the jitter statistic
func (ts *TrafficSim) DelaySamples() ([]float64, []float64) {
	samples := make([]float64, len(ts.delaySamples))
	copy(samples, ts.delaySamples)
	weights := make([]float64, len(ts.delayWeights))
	copy(weights, ts.delayWeights)
	return samples, weights
}

// SimulateStep advances every flow over the interval ending at now, applies
// utilization feedback, and retires the interval.  Flows whose endpoints are
// disconnected contribute no load and count their packets as drops; flows
// referencing devices that no longer exist count drops and surface
// InvalidPath, joined across flows, after the step completes for the rest.
func (ts *TrafficSim) SimulateStep(now float64, w Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	dt := now - ts.lastTime
	if !(dt > 0.0) {
		return fmt.Errorf("traffic step to %f from %f: %w", now, ts.lastTime, ErrInvalidMetric)
	}

	util := make(map[LinkKey]float64)
	stepErrs := make([]error, 0)

	for _, flw := range ts.Flows() {
		pckts := offeredPckts(flw, now, dt)
		if pckts == 0 {
			continue
		}
		flw.Stats.Generated += pckts

		rt, err := ts.flowPath(flw, w)
		if err != nil {
			flw.Stats.Dropped += pckts
			if !errors.Is(err, ErrNoPath) {
				stepErrs = append(stepErrs, fmt.Errorf("flow %s: %v: %w", flw.Name, err, ErrInvalidPath))
			}
			continue
		}

		loadBits := float64(pckts*flw.PcktLen) * 8.0
		pathDelay := 0.0
		for idx := 1; idx < len(rt.Path); idx++ {
			lnk, _ := ts.tpg.Link(rt.Path[idx-1], rt.Path[idx])
			util[lnk.Key] += loadBits / (lnk.Bndwdth * dt)
			pathDelay += lnk.Delay
		}

		delivered := 0
		for p := 0; p < pckts; p++ {
			if ts.deliverPckt(flw, rt) {
				delivered += 1
			}
		}
		flw.Stats.Delivered += delivered
		flw.Stats.Dropped += pckts - delivered
		flw.Stats.TotalDelay += float64(delivered) * pathDelay
		flw.Stats.TotalHops += delivered * rt.Hops
		if delivered > 0 {
			ts.delaySamples = append(ts.delaySamples, pathDelay)
			ts.delayWeights = append(ts.delayWeights, float64(delivered))
		}
	}

	ts.applyFeedback(util)
	ts.util = util
	ts.lastTime = now

	return errors.Join(stepErrs...)
}

// deliverPckt samples one packet's survival against the loss probability of
// every link on the route
func (ts *TrafficSim) deliverPckt(flw *Flow, rt *Route) bool {
	for idx := 1; idx < len(rt.Path); idx++ {
		lnk, _ := ts.tpg.Link(rt.Path[idx-1], rt.Path[idx])
		if flw.rng.RandU01() < lnk.Loss {
			return false
		}
	}
	return true
}

// flowPath resolves a flow's route, reusing the last one while the topology
// version is unchanged
func (ts *TrafficSim) flowPath(flw *Flow, w Weights) (*Route, error) {
	if flw.lastPath != nil && flw.pathVer == ts.tpg.Version() {
		return flw.lastPath, nil
	}
	rt, err := ts.rte.ComputeRoute(flw.Src, flw.Dst, ts.algo, w)
	if err != nil {
		flw.lastPath = nil
		return nil, err
	}
	flw.lastPath = rt
	flw.pathVer = ts.tpg.Version()
	return rt, nil
}

// applyFeedback derives effective delay/loss from base values for every
// loaded link, relaxes links loaded in the previous step but idle now back
// to base, and writes the batch through the topology as one mutation
func (ts *TrafficSim) applyFeedback(util map[LinkKey]float64) {
	perf := make(map[LinkKey]LinkPerf, len(util))
	for key, u := range util {
		lnk, err := ts.tpg.LinkAny(key.A, key.B)
		if err != nil {
			continue
		}
		perf[key] = LinkPerf{
			Delay: ts.bounds.ClampDelay(lnk.BaseDelay() + u*ts.DelaySlope),
			Loss:  ts.bounds.ClampLoss(lnk.BaseLoss() + u*ts.LossSlope),
		}
	}
	for key := range ts.util {
		if _, loaded := perf[key]; loaded {
			continue
		}
		lnk, err := ts.tpg.LinkAny(key.A, key.B)
		if err != nil {
			continue
		}
		perf[key] = LinkPerf{Delay: lnk.BaseDelay(), Loss: lnk.BaseLoss()}
	}
	if len(perf) > 0 {
		// keys were verified above, the write cannot miss
		_ = ts.tpg.ApplyLinkPerf(perf)
	}
}

// offeredPckts returns the number of packets a flow offers over the interval
// of length dt ending at now, advancing the flow's pattern state
func offeredPckts(flw *Flow, now, dt float64) int {
	switch flw.Pattern {
	case CBR:
		return drainCarry(flw, dt)

	case Bursty:
		// peak while now mod (on+off) falls inside the on window, silent
		// otherwise; the fractional carry freezes across silence
		cycle := flw.BurstOn + flw.BurstOff
		if cycle <= 0.0 || math.Mod(now, cycle) >= flw.BurstOn {
			return 0
		}
		return drainCarry(flw, dt)

	case Poisson:
		if flw.nxtArrival < 0.0 {
			flw.nxtArrival = (now - dt) + sampleExpRV(flw.rng.RandU01(), flw.PcktRate)
		}
		pckts := 0
		for flw.nxtArrival < now {
			pckts += 1
			flw.nxtArrival += sampleExpRV(flw.rng.RandU01(), flw.PcktRate)
		}
		return pckts
	}

	return 0
}

// drainCarry accumulates rate*dt plus the fractional remainder of earlier
// steps and returns the whole packets
func drainCarry(flw *Flow, dt float64) int {
	exact := flw.PcktRate*dt + flw.carry
	pckts := int(math.Floor(exact))
	flw.carry = exact - float64(pckts)
	return pckts
}
