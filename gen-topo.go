package nettopogen

// gen-topo.go builds topologies programmatically: regular shapes, random
// graphs, and device-count driven hierarchies

import (
	"fmt"
	"math"

	"github.com/iti/rngstream"
)

// fixed QoS defaults assigned to generated links
const (
	DfltLinkDelay   float64 = 10.0
	DfltLinkBndwdth float64 = 1e9
	DfltLinkLoss    float64 = 0.0
)

// generator layout frame
const (
	layoutW  float64 = 800.0
	layoutCX float64 = 400.0
	layoutCY float64 = 300.0
	layoutR  float64 = 220.0
)

// AttrSrc draws per-link QoS attributes uniformly within bounds from a named
// rng stream.  A nil AttrSrc assigns the fixed defaults to every link, so
// generators take it optionally.
type AttrSrc struct {
	rng    *rngstream.RngStream
	bounds LinkBounds
}

// CreateAttrSrc is a constructor
func CreateAttrSrc(rngName string, bounds LinkBounds) *AttrSrc {
	return &AttrSrc{rng: rngstream.New(rngName), bounds: bounds}
}

// draw returns the next attribute set
func (as *AttrSrc) draw() (float64, float64, float64) {
	if as == nil {
		return DfltLinkDelay, DfltLinkBndwdth, DfltLinkLoss
	}
	delay := as.bounds.DelayMin + as.rng.RandU01()*(as.bounds.DelayMax-as.bounds.DelayMin)
	bndwdth := as.bounds.BndwdthMin + as.rng.RandU01()*(as.bounds.BndwdthMax-as.bounds.BndwdthMin)
	loss := as.bounds.LossMin + as.rng.RandU01()*(as.bounds.LossMax-as.bounds.LossMin)
	return delay, bndwdth, loss
}

// DefaultIntrfcs returns the opaque interface attributes a generator assigns
// to a device kind
func DefaultIntrfcs(kind DevKind) map[string]string {
	switch kind {
	case PC:
		return map[string]string{"eth0": "10/100/1000"}
	case Router:
		return map[string]string{"gig0/0": "fiber", "gig0/1": "fiber", "serial0/0": "wic-2t"}
	case Switch:
		return map[string]string{"ports": "24", "uplink": "sfp+"}
	case Server:
		return map[string]string{"eth0": "10G", "eth1": "10G"}
	case Firewall:
		return map[string]string{"inside": "gig1", "outside": "gig0"}
	case ISP:
		return map[string]string{"uplink": "backbone"}
	case AccessPoint:
		return map[string]string{"radio0": "2.4GHz", "radio1": "5GHz"}
	case LoadBalancer:
		return map[string]string{"vip": "virtual", "pool": "backend"}
	default:
		return map[string]string{}
	}
}

// kindPrefix returns the device id prefix a generator uses for a kind
func kindPrefix(kind DevKind) string {
	switch kind {
	case PC:
		return "pc"
	case Router:
		return "router"
	case Switch:
		return "switch"
	case Server:
		return "server"
	case Firewall:
		return "firewall"
	case ISP:
		return "isp"
	case AccessPoint:
		return "ap"
	case LoadBalancer:
		return "lb"
	default:
		return "dev"
	}
}

// genNode adds a placed device carrying its kind's default interface map
func genNode(tpg *Topology, id string, kind DevKind, x, y float64) {
	tpg.AddNode(id, kind)
	tpg.SetIntrfcs(id, DefaultIntrfcs(kind))
	tpg.PlaceNode(id, x, y)
}

// genLink connects two generated devices with drawn or default attributes
func genLink(tpg *Topology, a, b string, attrs *AttrSrc) error {
	delay, bndwdth, loss := attrs.draw()
	_, err := tpg.AddLink(a, b, delay, bndwdth, loss)
	return err
}

// circleXY places index idx of n evenly around the layout circle
func circleXY(idx, n int) (float64, float64) {
	angle := 2.0 * math.Pi * float64(idx) / float64(n)
	return layoutCX + layoutR*math.Cos(angle), layoutCY + layoutR*math.Sin(angle)
}

// rowX spreads index idx of n evenly across the layout width
func rowX(idx, n int) float64 {
	return float64(idx+1) * layoutW / float64(n+1)
}

// CreateStarTopo builds a switch hub with leaves PCs around it
func CreateStarTopo(name string, leaves int, attrs *AttrSrc) (*Topology, error) {
	if leaves < 1 {
		return nil, fmt.Errorf("star with %d leaves: %w", leaves, ErrInvalidMetric)
	}

	tpg := CreateTopo(name)
	genNode(tpg, "hub", Switch, layoutCX, layoutCY)
	for idx := 0; idx < leaves; idx++ {
		id := fmt.Sprintf("pc-%d", idx)
		x, y := circleXY(idx, leaves)
		genNode(tpg, id, PC, x, y)
		if err := genLink(tpg, "hub", id, attrs); err != nil {
			return nil, err
		}
	}

	return tpg, nil
}

// CreateRingTopo builds n routers in a cycle
func CreateRingTopo(name string, n int, attrs *AttrSrc) (*Topology, error) {
	if n < 3 {
		return nil, fmt.Errorf("ring of %d devices: %w", n, ErrInvalidMetric)
	}

	tpg := CreateTopo(name)
	for idx := 0; idx < n; idx++ {
		x, y := circleXY(idx, n)
		genNode(tpg, fmt.Sprintf("node-%d", idx), Router, x, y)
	}
	for idx := 0; idx < n; idx++ {
		a := fmt.Sprintf("node-%d", idx)
		b := fmt.Sprintf("node-%d", (idx+1)%n)
		if err := genLink(tpg, a, b, attrs); err != nil {
			return nil, err
		}
	}

	return tpg, nil
}

// CreateMeshTopo builds n routers with a link between every pair
func CreateMeshTopo(name string, n int, attrs *AttrSrc) (*Topology, error) {
	if n < 2 {
		return nil, fmt.Errorf("mesh of %d devices: %w", n, ErrInvalidMetric)
	}

	tpg := CreateTopo(name)
	for idx := 0; idx < n; idx++ {
		x, y := circleXY(idx, n)
		genNode(tpg, fmt.Sprintf("node-%d", idx), Router, x, y)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if err := genLink(tpg, fmt.Sprintf("node-%d", i), fmt.Sprintf("node-%d", j), attrs); err != nil {
				return nil, err
			}
		}
	}

	return tpg, nil
}

// CreateTreeTopo builds a rooted tree of the given depth and branching
// factor.  The root and interior devices are a router and switches, the
// bottom level is PCs.  Device ids encode the path from the root.
func CreateTreeTopo(name string, depth, branching int, attrs *AttrSrc) (*Topology, error) {
	if depth < 1 || branching < 1 {
		return nil, fmt.Errorf("tree depth %d branching %d: %w", depth, branching, ErrInvalidMetric)
	}

	tpg := CreateTopo(name)
	genNode(tpg, "root", Router, layoutCX, 60.0)

	prev := []string{"root"}
	for level := 1; level <= depth; level++ {
		kind := Switch
		if level == depth {
			kind = PC
		}
		count := len(prev) * branching
		next := make([]string, 0, count)
		idx := 0
		for _, parent := range prev {
			for c := 0; c < branching; c++ {
				id := fmt.Sprintf("%s-%d", parent, c)
				genNode(tpg, id, kind, rowX(idx, count), 60.0+float64(level)*100.0)
				if err := genLink(tpg, parent, id, attrs); err != nil {
					return nil, err
				}
				next = append(next, id)
				idx += 1
			}
		}
		prev = next
	}

	return tpg, nil
}

// CreateHierarchicalTopo builds the classic three tier design: meshed core
// routers, dual homed distribution switches, and access hosts
func CreateHierarchicalTopo(name string, cores, distPerCore, hostsPerDist int, attrs *AttrSrc) (*Topology, error) {
	if cores < 1 || distPerCore < 1 || hostsPerDist < 0 {
		return nil, fmt.Errorf("hierarchy %d/%d/%d: %w", cores, distPerCore, hostsPerDist, ErrInvalidMetric)
	}

	tpg := CreateTopo(name)

	for i := 0; i < cores; i++ {
		genNode(tpg, fmt.Sprintf("core-%d", i), Router, rowX(i, cores), 80.0)
	}
	for i := 0; i < cores; i++ {
		for j := i + 1; j < cores; j++ {
			if err := genLink(tpg, fmt.Sprintf("core-%d", i), fmt.Sprintf("core-%d", j), attrs); err != nil {
				return nil, err
			}
		}
	}

	distCount := cores * distPerCore
	hostCount := distCount * hostsPerDist
	dIdx := 0
	hIdx := 0
	for i := 0; i < cores; i++ {
		for j := 0; j < distPerCore; j++ {
			did := fmt.Sprintf("dist-%d-%d", i, j)
			genNode(tpg, did, Switch, rowX(dIdx, distCount), 260.0)
			dIdx += 1

			if err := genLink(tpg, fmt.Sprintf("core-%d", i), did, attrs); err != nil {
				return nil, err
			}
			// second uplink to the next core keeps the layer dual homed
			if cores > 1 {
				if err := genLink(tpg, fmt.Sprintf("core-%d", (i+1)%cores), did, attrs); err != nil {
					return nil, err
				}
			}

			for k := 0; k < hostsPerDist; k++ {
				hid := fmt.Sprintf("host-%d-%d-%d", i, j, k)
				genNode(tpg, hid, PC, rowX(hIdx, hostCount), 440.0)
				hIdx += 1
				if err := genLink(tpg, did, hid, attrs); err != nil {
					return nil, err
				}
			}
		}
	}

	return tpg, nil
}

// CreateRandomTopo builds n routers and links each pair with probability
// edgeProb, drawing from a named rng stream.  Whatever components result are
// then chained first-to-first, so the topology always starts connected.
func CreateRandomTopo(name string, n int, edgeProb float64, rngName string, attrs *AttrSrc) (*Topology, error) {
	if n < 1 {
		return nil, fmt.Errorf("random topology of %d devices: %w", n, ErrInvalidMetric)
	}
	if edgeProb < 0.0 || edgeProb > 1.0 {
		return nil, fmt.Errorf("edge probability %f: %w", edgeProb, ErrInvalidMetric)
	}

	tpg := CreateTopo(name)
	for idx := 0; idx < n; idx++ {
		x, y := circleXY(idx, n)
		genNode(tpg, fmt.Sprintf("node-%d", idx), Router, x, y)
	}

	rng := rngstream.New(rngName)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if rng.RandU01() < edgeProb {
				if err := genLink(tpg, fmt.Sprintf("node-%d", i), fmt.Sprintf("node-%d", j), attrs); err != nil {
					return nil, err
				}
			}
		}
	}

	comps := tpg.components(nil)
	for idx := 1; idx < len(comps); idx++ {
		if err := genLink(tpg, comps[idx-1][0], comps[idx][0], attrs); err != nil {
			return nil, err
		}
	}

	return tpg, nil
}

// CreateTopoFromCounts builds a topology from per-kind device counts with
// hierarchical wiring: routers form the backbone ring, switches hang off the
// routers, edge devices hang off the switches, and middleboxes sit beside
// the backbone.  Missing layers fall through to the next one down.
func CreateTopoFromCounts(name string, counts map[DevKind]int, attrs *AttrSrc) (*Topology, error) {
	for kind, count := range counts {
		if count < 0 {
			return nil, fmt.Errorf("%s count %d: %w", DevKindToStr(kind), count, ErrInvalidMetric)
		}
	}

	tpg := CreateTopo(name)

	addRow := func(kind DevKind, y float64) []string {
		n := counts[kind]
		ids := make([]string, 0, n)
		for idx := 0; idx < n; idx++ {
			id := fmt.Sprintf("%s-%d", kindPrefix(kind), idx)
			genNode(tpg, id, kind, rowX(idx, n), y)
			ids = append(ids, id)
		}
		return ids
	}

	isps := addRow(ISP, 40.0)
	routers := addRow(Router, 140.0)
	firewalls := addRow(Firewall, 240.0)
	lbs := addRow(LoadBalancer, 240.0)
	switches := addRow(Switch, 340.0)
	aps := addRow(AccessPoint, 440.0)
	servers := addRow(Server, 440.0)
	pcs := addRow(PC, 540.0)

	// backbone: ring of routers, falling back to switches, then to a chain
	// of whatever exists
	backbone := routers
	if len(backbone) == 0 {
		backbone = switches
	}
	if len(backbone) == 0 {
		backbone = tpg.AllNodeIDs()
	}
	if err := ringLinks(tpg, backbone, attrs); err != nil {
		return nil, err
	}

	anchorsFor := func(preferred ...[]string) []string {
		for _, layer := range preferred {
			if len(layer) > 0 {
				return layer
			}
		}
		return nil
	}

	attach := func(devs, anchors []string) error {
		for idx, id := range devs {
			if len(anchors) == 0 {
				return nil
			}
			anchor := anchors[idx%len(anchors)]
			// skip wiring a layer onto itself
			if anchor == id {
				continue
			}
			if err := genLink(tpg, anchor, id, attrs); err != nil {
				return err
			}
		}
		return nil
	}

	wiring := []struct {
		devs    []string
		anchors []string
	}{
		{isps, anchorsFor(routers, switches)},
		{firewalls, anchorsFor(routers, switches)},
		{lbs, anchorsFor(routers, switches)},
		{switches, anchorsFor(routers)},
		{aps, anchorsFor(switches, routers)},
		{servers, anchorsFor(switches, routers)},
		{pcs, anchorsFor(switches, routers)},
	}
	for _, tier := range wiring {
		if err := attach(tier.devs, tier.anchors); err != nil {
			return nil, err
		}
	}

	return tpg, nil
}

// ringLinks joins the ids in order and closes the cycle when there are more
// than two
func ringLinks(tpg *Topology, ids []string, attrs *AttrSrc) error {
	for idx := 1; idx < len(ids); idx++ {
		if err := genLink(tpg, ids[idx-1], ids[idx], attrs); err != nil {
			return err
		}
	}
	if len(ids) > 2 {
		if err := genLink(tpg, ids[len(ids)-1], ids[0], attrs); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTopo returns warnings a caller may want to surface before running
// anything: no devices, devices with no links, or a disconnected available
// subgraph
func ValidateTopo(tpg *Topology) []string {
	warnings := make([]string, 0)

	if len(tpg.nodes) == 0 {
		warnings = append(warnings, "topology has no devices")
		return warnings
	}

	for _, id := range tpg.AllNodeIDs() {
		nbrs, _ := tpg.NeighborsAny(id)
		if len(nbrs) == 0 {
			warnings = append(warnings, fmt.Sprintf("device %s has no links", id))
		}
	}

	if !tpg.IsConnected() {
		warnings = append(warnings, "available subgraph is not connected")
	}

	return warnings
}
