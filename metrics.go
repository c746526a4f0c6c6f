package nettopogen

// metrics.go computes evaluation metrics over simulation output

import (
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

// ConvergenceRecord captures the outcome of one protocol convergence run
type ConvergenceRecord struct {
	Time      float64 `json:"time" yaml:"time"`
	Mode      string  `json:"mode" yaml:"mode"`
	Rounds    int     `json:"rounds" yaml:"rounds"`
	Converged bool    `json:"converged" yaml:"converged"`
}

// MetricsReport aggregates the evaluation metrics of a traffic run up to a
// point in virtual time.  Throughput is delivered bits per second of virtual
// time; utilization figures describe the last completed step.
type MetricsReport struct {
	Time           float64            `json:"time" yaml:"time"`
	PcktsGenerated int                `json:"pcktsgenerated" yaml:"pcktsgenerated"`
	PcktsDelivered int                `json:"pcktsdelivered" yaml:"pcktsdelivered"`
	PcktsDropped   int                `json:"pcktsdropped" yaml:"pcktsdropped"`
	Throughput     float64            `json:"throughput" yaml:"throughput"`
	LossRate       float64            `json:"lossrate" yaml:"lossrate"`
	Efficiency     float64            `json:"efficiency" yaml:"efficiency"`
	MeanDelay      float64            `json:"meandelay" yaml:"meandelay"`
	Jitter         float64            `json:"jitter" yaml:"jitter"`
	MeanHops       float64            `json:"meanhops" yaml:"meanhops"`
	MeanUtil       float64            `json:"meanutil" yaml:"meanutil"`
	MaxUtil        float64            `json:"maxutil" yaml:"maxutil"`
	LoadBalance    float64            `json:"loadbalance" yaml:"loadbalance"`
	LinkUtil       map[string]float64 `json:"linkutil" yaml:"linkutil"`
}

// BuildMetricsReport computes the metrics of everything the traffic
// simulator has run so far
func BuildMetricsReport(ts *TrafficSim) *MetricsReport {
	rpt := new(MetricsReport)
	rpt.Time = ts.lastTime
	rpt.LinkUtil = make(map[string]float64)

	deliveredBits := 0.0
	totalDelay := 0.0
	totalHops := 0
	for _, flw := range ts.flows {
		rpt.PcktsGenerated += flw.Stats.Generated
		rpt.PcktsDelivered += flw.Stats.Delivered
		rpt.PcktsDropped += flw.Stats.Dropped
		deliveredBits += float64(flw.Stats.Delivered*flw.PcktLen) * 8.0
		totalDelay += flw.Stats.TotalDelay
		totalHops += flw.Stats.TotalHops
	}

	if ts.lastTime > 0.0 {
		rpt.Throughput = deliveredBits / ts.lastTime
	}
	if rpt.PcktsGenerated > 0 {
		rpt.LossRate = float64(rpt.PcktsDropped) / float64(rpt.PcktsGenerated)
		rpt.Efficiency = float64(rpt.PcktsDelivered) / float64(rpt.PcktsGenerated)
	}
	if rpt.PcktsDelivered > 0 {
		rpt.MeanDelay = totalDelay / float64(rpt.PcktsDelivered)
		rpt.MeanHops = float64(totalHops) / float64(rpt.PcktsDelivered)
	}

	samples, weights := ts.DelaySamples()
	if len(samples) > 0 {
		if jit := stat.StdDev(samples, weights); !math.IsNaN(jit) {
			rpt.Jitter = jit
		}
	}

	// utilization spans every available link, idle ones at 0, so the load
	// balance index sees concentration as imbalance
	utils := make([]float64, 0)
	for _, lnk := range ts.tpg.Links() {
		u := ts.util[lnk.Key]
		rpt.LinkUtil[lnk.Key.String()] = u
		utils = append(utils, u)
		if u > rpt.MaxUtil {
			rpt.MaxUtil = u
		}
	}
	if len(utils) > 0 {
		rpt.MeanUtil = stat.Mean(utils, nil)
		rpt.LoadBalance = 1.0
		if rpt.MeanUtil > 0.0 && len(utils) > 1 {
			cv := stat.StdDev(utils, nil) / rpt.MeanUtil
			rpt.LoadBalance = 1.0 / (1.0 + cv)
		}
	}

	return rpt
}

// PathStability compares two all-pairs sweeps and returns the fraction of
// distinct ordered pairs whose path is unchanged.  A pair routed in only one
// sweep counts as changed; with no routed pairs at all the answer is 1.
func PathStability(before, after *AllPairs) float64 {
	seen := make(map[[2]string]bool)
	for src, row := range before.Path {
		for dst := range row {
			if src != dst {
				seen[[2]string{src, dst}] = true
			}
		}
	}
	for src, row := range after.Path {
		for dst := range row {
			if src != dst {
				seen[[2]string{src, dst}] = true
			}
		}
	}

	pairs := 0
	unchanged := 0
	for pair := range seen {
		pairs += 1
		pb, okB := before.Path[pair[0]][pair[1]]
		pa, okA := after.Path[pair[0]][pair[1]]
		if okB && okA && slices.Equal(pb, pa) {
			unchanged += 1
		}
	}
	if pairs == 0 {
		return 1.0
	}
	return float64(unchanged) / float64(pairs)
}

// SnapshotComponents captures the connected components of the available
// subgraph for a later Resilience comparison
func SnapshotComponents(tpg *Topology) [][]string {
	return tpg.components(nil)
}

// Resilience returns the fraction of device pairs connected in the before
// snapshot that remain connected in the after snapshot, 1 when nothing was
// connected to begin with
func Resilience(before, after [][]string) float64 {
	compOf := make(map[string]int)
	for idx, comp := range after {
		for _, id := range comp {
			compOf[id] = idx
		}
	}

	total := 0
	kept := 0
	for _, comp := range before {
		for i := 0; i < len(comp); i++ {
			for j := i + 1; j < len(comp); j++ {
				total += 1
				ci, okI := compOf[comp[i]]
				cj, okJ := compOf[comp[j]]
				if okI && okJ && ci == cj {
					kept += 1
				}
			}
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(kept) / float64(total)
}
