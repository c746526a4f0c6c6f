package nettopogen

// topo.go holds the mutable network topology: devices, links, the adjacency
// index, availability state, and the conversion into the graph package
// representation used for connectivity queries.
//
// The Topology is the single mutation authority for network state.  Every
// mutation bumps a monotonically increasing version counter and appends a
// ChangeRecord to the topology's change log; dependents (routing engine,
// protocol simulator, traffic simulator) key their caches on the version and
// recompute when it moves.

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// DevKind is the base type for an enumerated type of network device kinds
type DevKind int

const (
	PC DevKind = iota
	Router
	Switch
	Server
	Firewall
	ISP
	AccessPoint
	LoadBalancer
	UnknownDev
)

// DevKindFromStr returns the DevKind corresponding to a string name for it
func DevKindFromStr(kind string) DevKind {
	switch kind {
	case "PC", "pc":
		return PC
	case "Router", "router":
		return Router
	case "Switch", "switch":
		return Switch
	case "Server", "server":
		return Server
	case "Firewall", "firewall":
		return Firewall
	case "ISP", "isp":
		return ISP
	case "AccessPoint", "access_point":
		return AccessPoint
	case "LoadBalancer", "load_balancer":
		return LoadBalancer
	default:
		return UnknownDev
	}
}

// DevKindToStr returns a string name that corresponds to an input DevKind
func DevKindToStr(kind DevKind) string {
	switch kind {
	case PC:
		return "PC"
	case Router:
		return "Router"
	case Switch:
		return "Switch"
	case Server:
		return "Server"
	case Firewall:
		return "Firewall"
	case ISP:
		return "ISP"
	case AccessPoint:
		return "AccessPoint"
	case LoadBalancer:
		return "LoadBalancer"
	default:
		return "Unknown"
	}
}

// Coord places a device on a 2-D plane.  Coordinates exist to serve the A*
// heuristic and generator layouts; the core otherwise ignores them.
type Coord struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// dist returns the Euclidean distance to another coordinate
func (crd Coord) dist(other Coord) float64 {
	dx := crd.X - other.X
	dy := crd.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Node represents one network device
type Node struct {
	ID      string            // unique name
	Num     int               // locally generated numeric id, used in the graph package conversion
	Kind    DevKind           // device kind
	Up      bool              // availability flag
	Intrfcs map[string]string // kind-specific attributes, opaque to the engine
	Coord   *Coord            // nil when the device has no placement
}

// LinkKey identifies the unordered endpoint pair of a link.  The pair is
// canonicalized with the lexicographically smaller id in A, so (a,b) and
// (b,a) hash and compare identically.
type LinkKey struct {
	A string `json:"a" yaml:"a"`
	B string `json:"b" yaml:"b"`
}

// CreateLinkKey canonicalizes an endpoint pair into a LinkKey
func CreateLinkKey(a, b string) LinkKey {
	if b < a {
		a, b = b, a
	}
	return LinkKey{A: a, B: b}
}

func (key LinkKey) String() string {
	return key.A + "--" + key.B
}

// Link represents an undirected connection between two devices.  Delay and
// Loss are the effective values the cost model observes; the base values
// declared at creation are retained so traffic degradation is always derived
// from them rather than compounding.
type Link struct {
	Key      LinkKey
	Delay    float64 // effective delay, ms
	Bndwdth  float64 // bandwidth, bits/sec
	Loss     float64 // effective loss probability
	Up       bool    // availability flag
	Inferred bool    // marks links inferred rather than explicitly declared

	baseDelay float64
	baseLoss  float64
}

// Peer returns the endpoint on the other side of the link from id
func (lnk *Link) Peer(id string) string {
	if lnk.Key.A == id {
		return lnk.Key.B
	}
	return lnk.Key.A
}

// BaseDelay returns the declared delay before traffic degradation
func (lnk *Link) BaseDelay() float64 {
	return lnk.baseDelay
}

// BaseLoss returns the declared loss probability before traffic degradation
func (lnk *Link) BaseLoss() float64 {
	return lnk.baseLoss
}

// LinkPerf carries effective delay/loss values written back by the traffic
// simulator in one feedback step
type LinkPerf struct {
	Delay float64
	Loss  float64
}

// Topology owns the node set, the link set, and the adjacency index.
// The adjacency index is rebuilt incrementally on every mutation and is
// always consistent with the link set.
type Topology struct {
	name    string
	nodes   map[string]*Node
	byNum   map[int]*Node
	links   map[LinkKey]*Link
	adjc    map[string]map[string]*Link
	nxtNum  int
	version int
	chgLog  *ChangeLog
	timeFn  func() float64
}

// CreateTopo is a constructor.  The returned topology is empty, carries
// version 0, and owns a fresh change log.
func CreateTopo(name string) *Topology {
	tpg := new(Topology)
	tpg.name = name
	tpg.nodes = make(map[string]*Node)
	tpg.byNum = make(map[int]*Node)
	tpg.links = make(map[LinkKey]*Link)
	tpg.adjc = make(map[string]map[string]*Link)
	tpg.chgLog = CreateChangeLog()
	return tpg
}

func (tpg *Topology) Name() string {
	return tpg.name
}

// Version returns the mutation counter.  Dependents compare it against the
// version they last observed to decide whether cached results are stale.
func (tpg *Topology) Version() int {
	return tpg.version
}

// ChgLog exposes the topology's change log for subscription and polling
func (tpg *Topology) ChgLog() *ChangeLog {
	return tpg.chgLog
}

// SetTimeSource installs the clock stamped onto change records, typically
// the experiment runner's virtual clock.  A nil source stamps zero.
func (tpg *Topology) SetTimeSource(timeFn func() float64) {
	tpg.timeFn = timeFn
}

func (tpg *Topology) now() float64 {
	if tpg.timeFn == nil {
		return 0.0
	}
	return tpg.timeFn()
}

// record bumps the version and appends a change record describing one mutation
func (tpg *Topology) record(op ChangeOp, nodes []string, links []LinkKey) {
	tpg.version += 1
	tpg.chgLog.append(ChangeRecord{
		Version: tpg.version,
		Time:    tpg.now(),
		Op:      op,
		Nodes:   nodes,
		Links:   links,
	})
}

// AddNode creates a device with the given id and kind, or updates the kind
// of an existing device with that id.  Availability and incident links of an
// existing device are preserved.
func (tpg *Topology) AddNode(id string, kind DevKind) (*Node, error) {
	if id == "" {
		return nil, fmt.Errorf("add node: empty id: %w", ErrInvalidReference)
	}

	nd, present := tpg.nodes[id]
	if present {
		nd.Kind = kind
		tpg.record(OpUpdateNode, []string{id}, nil)
		return nd, nil
	}

	nd = &Node{ID: id, Num: tpg.nxtNum, Kind: kind, Up: true}
	tpg.nxtNum += 1
	tpg.nodes[id] = nd
	tpg.byNum[nd.Num] = nd
	tpg.adjc[id] = make(map[string]*Link)
	tpg.record(OpAddNode, []string{id}, nil)

	return nd, nil
}

// PlaceNode assigns 2-D coordinates to a device
func (tpg *Topology) PlaceNode(id string, x, y float64) error {
	nd, present := tpg.nodes[id]
	if !present {
		return fmt.Errorf("place node %s: %w", id, ErrNotFound)
	}
	nd.Coord = &Coord{X: x, Y: y}
	tpg.record(OpPlaceNode, []string{id}, nil)
	return nil
}

// SetIntrfcs replaces a device's opaque interface map
func (tpg *Topology) SetIntrfcs(id string, intrfcs map[string]string) error {
	nd, present := tpg.nodes[id]
	if !present {
		return fmt.Errorf("set interfaces on %s: %w", id, ErrNotFound)
	}
	nd.Intrfcs = intrfcs
	tpg.record(OpSetIntrfcs, []string{id}, nil)
	return nil
}

// RmNode removes a device and every link incident to it
func (tpg *Topology) RmNode(id string) error {
	nd, present := tpg.nodes[id]
	if !present {
		return fmt.Errorf("remove node %s: %w", id, ErrNotFound)
	}

	// incident links go first so the adjacency index never dangles
	removed := make([]LinkKey, 0, len(tpg.adjc[id]))
	for nbr := range tpg.adjc[id] {
		key := CreateLinkKey(id, nbr)
		removed = append(removed, key)
		delete(tpg.links, key)
		delete(tpg.adjc[nbr], id)
	}
	slices.SortFunc(removed, func(x, y LinkKey) int {
		if x.A != y.A {
			if x.A < y.A {
				return -1
			}
			return 1
		}
		if x.B < y.B {
			return -1
		} else if x.B > y.B {
			return 1
		}
		return 0
	})

	delete(tpg.adjc, id)
	delete(tpg.nodes, id)
	delete(tpg.byNum, nd.Num)
	tpg.record(OpRmNode, []string{id}, removed)

	return nil
}

// AddLink connects two existing devices with the given QoS attributes.
// Attributes are validated here so the cost model can assume positivity.
func (tpg *Topology) AddLink(a, b string, delay, bndwdth, loss float64) (*Link, error) {
	return tpg.addLink(a, b, delay, bndwdth, loss, false)
}

// AddInferredLink behaves like AddLink but marks the link as inferred from
// an imported configuration rather than explicitly declared
func (tpg *Topology) AddInferredLink(a, b string, delay, bndwdth, loss float64) (*Link, error) {
	return tpg.addLink(a, b, delay, bndwdth, loss, true)
}

func (tpg *Topology) addLink(a, b string, delay, bndwdth, loss float64, inferred bool) (*Link, error) {
	if a == b {
		return nil, fmt.Errorf("link %s-%s: endpoints must differ: %w", a, b, ErrInvalidReference)
	}
	if _, present := tpg.nodes[a]; !present {
		return nil, fmt.Errorf("link %s-%s: endpoint %s: %w", a, b, a, ErrInvalidReference)
	}
	if _, present := tpg.nodes[b]; !present {
		return nil, fmt.Errorf("link %s-%s: endpoint %s: %w", a, b, b, ErrInvalidReference)
	}

	key := CreateLinkKey(a, b)
	if _, present := tpg.links[key]; present {
		return nil, fmt.Errorf("link %s: %w", key, ErrDuplicateLink)
	}

	if !(delay > 0.0) {
		return nil, fmt.Errorf("link %s: delay %f: %w", key, delay, ErrInvalidMetric)
	}
	if !(bndwdth > 0.0) {
		return nil, fmt.Errorf("link %s: bandwidth %f: %w", key, bndwdth, ErrInvalidMetric)
	}
	if loss < 0.0 || loss > 1.0 {
		return nil, fmt.Errorf("link %s: loss %f: %w", key, loss, ErrInvalidMetric)
	}

	lnk := &Link{
		Key:       key,
		Delay:     delay,
		Bndwdth:   bndwdth,
		Loss:      loss,
		Up:        true,
		Inferred:  inferred,
		baseDelay: delay,
		baseLoss:  loss,
	}
	tpg.links[key] = lnk
	tpg.adjc[key.A][key.B] = lnk
	tpg.adjc[key.B][key.A] = lnk
	tpg.record(OpAddLink, nil, []LinkKey{key})

	return lnk, nil
}

// RmLink removes the link between two devices
func (tpg *Topology) RmLink(a, b string) error {
	key := CreateLinkKey(a, b)
	if _, present := tpg.links[key]; !present {
		return fmt.Errorf("remove link %s: %w", key, ErrNotFound)
	}
	delete(tpg.links, key)
	delete(tpg.adjc[key.A], key.B)
	delete(tpg.adjc[key.B], key.A)
	tpg.record(OpRmLink, nil, []LinkKey{key})
	return nil
}

// Node returns an available device by id.  Devices whose availability flag
// is false are invisible here; use NodeAny to see them.
func (tpg *Topology) Node(id string) (*Node, error) {
	nd, present := tpg.nodes[id]
	if !present || !nd.Up {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return nd, nil
}

// NodeAny returns a device by id regardless of availability
func (tpg *Topology) NodeAny(id string) (*Node, error) {
	nd, present := tpg.nodes[id]
	if !present {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return nd, nil
}

// Link returns an available link by endpoint pair, in either order.
// A link whose availability flag is false is invisible here.
func (tpg *Topology) Link(a, b string) (*Link, error) {
	key := CreateLinkKey(a, b)
	lnk, present := tpg.links[key]
	if !present || !lnk.Up {
		return nil, fmt.Errorf("link %s: %w", key, ErrNotFound)
	}
	return lnk, nil
}

// LinkAny returns a link by endpoint pair regardless of availability
func (tpg *Topology) LinkAny(a, b string) (*Link, error) {
	key := CreateLinkKey(a, b)
	lnk, present := tpg.links[key]
	if !present {
		return nil, fmt.Errorf("link %s: %w", key, ErrNotFound)
	}
	return lnk, nil
}

// Neighbors returns the sorted ids of available devices reachable from id
// over available links.  A device that is itself unavailable is not found.
func (tpg *Topology) Neighbors(id string) ([]string, error) {
	nd, present := tpg.nodes[id]
	if !present || !nd.Up {
		return nil, fmt.Errorf("neighbors of %s: %w", id, ErrNotFound)
	}

	nbrs := make([]string, 0, len(tpg.adjc[id]))
	for nbrID, lnk := range tpg.adjc[id] {
		if !lnk.Up {
			continue
		}
		if nbr := tpg.nodes[nbrID]; nbr.Up {
			nbrs = append(nbrs, nbrID)
		}
	}
	slices.Sort(nbrs)

	return nbrs, nil
}

// NeighborsAny returns the sorted ids of all devices linked to id,
// including failed devices and links
func (tpg *Topology) NeighborsAny(id string) ([]string, error) {
	if _, present := tpg.nodes[id]; !present {
		return nil, fmt.Errorf("neighbors of %s: %w", id, ErrNotFound)
	}
	nbrs := make([]string, 0, len(tpg.adjc[id]))
	for nbrID := range tpg.adjc[id] {
		nbrs = append(nbrs, nbrID)
	}
	slices.Sort(nbrs)
	return nbrs, nil
}

// SetLinkStatus toggles a link's availability flag.  The returned flag
// reports whether the call changed anything, so redundant toggles can be
// recognized as no-ops.
func (tpg *Topology) SetLinkStatus(a, b string, up bool) (bool, error) {
	key := CreateLinkKey(a, b)
	lnk, present := tpg.links[key]
	if !present {
		return false, fmt.Errorf("set status of link %s: %w", key, ErrNotFound)
	}
	if lnk.Up == up {
		return false, nil
	}
	lnk.Up = up
	tpg.record(OpLinkStatus, nil, []LinkKey{key})
	return true, nil
}

// SetNodeStatus toggles a device's availability flag
func (tpg *Topology) SetNodeStatus(id string, up bool) (bool, error) {
	nd, present := tpg.nodes[id]
	if !present {
		return false, fmt.Errorf("set status of node %s: %w", id, ErrNotFound)
	}
	if nd.Up == up {
		return false, nil
	}
	nd.Up = up
	tpg.record(OpNodeStatus, []string{id}, nil)
	return true, nil
}

// ApplyLinkPerf writes effective delay/loss values onto the named links in
// one mutation, recording a single change.  The traffic simulator calls this
// with values derived from base attributes and clamped to link bounds.
func (tpg *Topology) ApplyLinkPerf(perf map[LinkKey]LinkPerf) error {
	keys := make([]LinkKey, 0, len(perf))
	for key := range perf {
		if _, present := tpg.links[key]; !present {
			return fmt.Errorf("link performance on %s: %w", key, ErrNotFound)
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil
	}
	slices.SortFunc(keys, func(x, y LinkKey) int {
		if x.A != y.A {
			if x.A < y.A {
				return -1
			}
			return 1
		}
		if x.B < y.B {
			return -1
		} else if x.B > y.B {
			return 1
		}
		return 0
	})
	for _, key := range keys {
		lnk := tpg.links[key]
		lnk.Delay = perf[key].Delay
		lnk.Loss = perf[key].Loss
	}
	tpg.record(OpLinkPerf, nil, keys)
	return nil
}

// NodeIDs returns the sorted ids of available devices
func (tpg *Topology) NodeIDs() []string {
	ids := make([]string, 0, len(tpg.nodes))
	for id, nd := range tpg.nodes {
		if nd.Up {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// AllNodeIDs returns the sorted ids of all devices, including failed ones
func (tpg *Topology) AllNodeIDs() []string {
	ids := make([]string, 0, len(tpg.nodes))
	for id := range tpg.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Links returns the available links, sorted by key
func (tpg *Topology) Links() []*Link {
	lnks := make([]*Link, 0, len(tpg.links))
	for _, lnk := range tpg.links {
		if lnk.Up {
			lnks = append(lnks, lnk)
		}
	}
	sortLinks(lnks)
	return lnks
}

// AllLinks returns every link, including failed ones, sorted by key
func (tpg *Topology) AllLinks() []*Link {
	lnks := make([]*Link, 0, len(tpg.links))
	for _, lnk := range tpg.links {
		lnks = append(lnks, lnk)
	}
	sortLinks(lnks)
	return lnks
}

func sortLinks(lnks []*Link) {
	slices.SortFunc(lnks, func(x, y *Link) int {
		if x.Key.A != y.Key.A {
			if x.Key.A < y.Key.A {
				return -1
			}
			return 1
		}
		if x.Key.B < y.Key.B {
			return -1
		} else if x.Key.B > y.Key.B {
			return 1
		}
		return 0
	})
}

// Counts reports the total number of devices, links, and failed links
func (tpg *Topology) Counts() (int, int, int) {
	down := 0
	for _, lnk := range tpg.links {
		if !lnk.Up {
			down += 1
		}
	}
	return len(tpg.nodes), len(tpg.links), down
}

// connGraph converts the available subgraph into the graph package
// representation.  Edge weights are link costs under w; a nil w weights
// every edge 1.  Links named in skip are left out, which lets analysis ask
// "what if this link were gone" without mutating the topology.
func (tpg *Topology) connGraph(w *Weights, skip map[LinkKey]bool) *simple.WeightedUndirectedGraph {
	cg := simple.NewWeightedUndirectedGraph(0, math.Inf(1))

	for _, nd := range tpg.nodes {
		if nd.Up {
			cg.AddNode(simple.Node(nd.Num))
		}
	}

	for key, lnk := range tpg.links {
		if !lnk.Up || skip[key] {
			continue
		}
		ndA := tpg.nodes[key.A]
		ndB := tpg.nodes[key.B]
		if !ndA.Up || !ndB.Up {
			continue
		}
		weight := 1.0
		if w != nil {
			weight = linkCost(lnk, *w)
		}
		cg.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(ndA.Num), T: simple.Node(ndB.Num), W: weight})
	}

	return cg
}

// components returns the available subgraph's connected components as
// sorted id lists, themselves sorted by first member
func (tpg *Topology) components(skip map[LinkKey]bool) [][]string {
	cg := tpg.connGraph(nil, skip)

	grouped := topo.ConnectedComponents(cg)
	comps := make([][]string, 0, len(grouped))
	for _, group := range grouped {
		ids := make([]string, 0, len(group))
		for _, gn := range group {
			ids = append(ids, tpg.byNum[int(gn.ID())].ID)
		}
		slices.Sort(ids)
		comps = append(comps, ids)
	}
	slices.SortFunc(comps, func(x, y []string) int {
		if x[0] < y[0] {
			return -1
		} else if x[0] > y[0] {
			return 1
		}
		return 0
	})

	return comps
}

// IsConnected reports whether every pair of available devices is mutually
// reachable over available links.  Topologies with at most one available
// device are trivially connected.
func (tpg *Topology) IsConnected() bool {
	avail := 0
	for _, nd := range tpg.nodes {
		if nd.Up {
			avail += 1
		}
	}
	if avail <= 1 {
		return true
	}
	return len(tpg.components(nil)) == 1
}

// ConnectedPairs counts the unordered pairs of available devices that can
// reach each other, a building block for the resilience metric
func (tpg *Topology) ConnectedPairs() int {
	pairs := 0
	for _, comp := range tpg.components(nil) {
		n := len(comp)
		pairs += n * (n - 1) / 2
	}
	return pairs
}
