package nettopogen

// cost.go implements the QoS cost model mapping a link's attributes and a
// weight vector to the scalar cost the routing algorithms compare.

import (
	"fmt"
	"math"
)

// Weights is the QoS weight vector (alpha, beta, gamma).  An explicit value
// is passed into every cost evaluation and convergence run; there is no
// hidden global.  Each component must be non-negative.
type Weights struct {
	Alpha float64 `json:"alpha" yaml:"alpha"`
	Beta  float64 `json:"beta" yaml:"beta"`
	Gamma float64 `json:"gamma" yaml:"gamma"`
}

// DefaultWeights returns the weight vector used when a caller supplies none
func DefaultWeights() Weights {
	return Weights{Alpha: 1.0, Beta: 1.0, Gamma: 1.0}
}

// Validate checks that every component is finite and non-negative
func (w Weights) Validate() error {
	for _, val := range []float64{w.Alpha, w.Beta, w.Gamma} {
		if math.IsNaN(val) || math.IsInf(val, 0) || val < 0.0 {
			return fmt.Errorf("weights (%f,%f,%f): %w", w.Alpha, w.Beta, w.Gamma, ErrInvalidMetric)
		}
	}
	return nil
}

// LinkCost evaluates cost(link, w) = alpha*delay + beta*(1/bandwidth) + gamma*loss.
// Bandwidth positivity is a precondition established by topology validation;
// a violation reports ErrInvalidMetric rather than dividing.
func LinkCost(lnk *Link, w Weights) (float64, error) {
	if err := w.Validate(); err != nil {
		return 0.0, err
	}
	if !(lnk.Bndwdth > 0.0) {
		return 0.0, fmt.Errorf("link %s: bandwidth %f: %w", lnk.Key, lnk.Bndwdth, ErrInvalidMetric)
	}
	return linkCost(lnk, w), nil
}

// linkCost is the unchecked form used on traversal hot paths, where link
// attributes were validated when the link entered the topology
func linkCost(lnk *Link, w Weights) float64 {
	return w.Alpha*lnk.Delay + w.Beta*(1.0/lnk.Bndwdth) + w.Gamma*lnk.Loss
}

// LinkBounds are the clamp ranges applied to link attributes by traffic
// feedback and by description validation
type LinkBounds struct {
	DelayMin   float64 `json:"delaymin" yaml:"delaymin"`
	DelayMax   float64 `json:"delaymax" yaml:"delaymax"`
	LossMin    float64 `json:"lossmin" yaml:"lossmin"`
	LossMax    float64 `json:"lossmax" yaml:"lossmax"`
	BndwdthMin float64 `json:"bndwdthmin" yaml:"bndwdthmin"`
	BndwdthMax float64 `json:"bndwdthmax" yaml:"bndwdthmax"`
}

// DefaultLinkBounds returns the configured operating ranges: delay 1-50 ms,
// loss 0-0.5, bandwidth 10 Mb/s - 10 Gb/s
func DefaultLinkBounds() LinkBounds {
	return LinkBounds{
		DelayMin:   1.0,
		DelayMax:   50.0,
		LossMin:    0.0,
		LossMax:    0.5,
		BndwdthMin: 10.0 * 1e6,
		BndwdthMax: 10.0 * 1e9,
	}
}

// ClampDelay pins a delay value into the configured range
func (lb LinkBounds) ClampDelay(delay float64) float64 {
	return clampFloat(delay, lb.DelayMin, lb.DelayMax)
}

// ClampLoss pins a loss probability into the configured range
func (lb LinkBounds) ClampLoss(loss float64) float64 {
	return clampFloat(loss, lb.LossMin, lb.LossMax)
}

// ClampBndwdth pins a bandwidth into the configured range
func (lb LinkBounds) ClampBndwdth(bndwdth float64) float64 {
	return clampFloat(bndwdth, lb.BndwdthMin, lb.BndwdthMax)
}
