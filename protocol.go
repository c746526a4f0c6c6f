package nettopogen

// protocol.go simulates routing protocol convergence over a topology

import (
	"context"
	"fmt"

	"golang.org/x/exp/slices"
)

// The protocol simulator is a round-based state machine over two modes.  In
// rip mode every node holds a distance-vector table and a round is one
// synchronous exchange of full tables between neighbors over available
// links.  In ospf mode flooding is instantaneous within a round, so every
// node recomputes its table from a full topology view and the tables
// installed by one round are final.  The observable asymmetry is that rip
// needs a round count that grows with network diameter while ospf settles in
// a single round after any change.
//
// The simulator never learns of topology mutations directly.  It stamps the
// topology version it initialized from, and any access that observes a newer
// version rebuilds the tables from their initial state first.  Rebuilding
// from scratch on every change, together with the round budget, is also what
// keeps count-to-infinity from living past a failure; there is no
// split-horizon machinery.

// ProtoMode is the base type for an enumerated type of protocol modes
type ProtoMode int

const (
	RIP ProtoMode = iota
	OSPF
	UnknownProto
)

// ProtoModeFromStr returns the ProtoMode corresponding to a string name for it
func ProtoModeFromStr(mode string) ProtoMode {
	switch mode {
	case "rip", "RIP":
		return RIP
	case "ospf", "OSPF":
		return OSPF
	default:
		return UnknownProto
	}
}

// ProtoModeToStr returns a string name that corresponds to an input ProtoMode
func ProtoModeToStr(mode ProtoMode) string {
	switch mode {
	case RIP:
		return "rip"
	case OSPF:
		return "ospf"
	default:
		return "unknown"
	}
}

// TableEntry is one row of a node's routing table
type TableEntry struct {
	Dst    string  `json:"dst" yaml:"dst"`
	NxtHop string  `json:"nxthop" yaml:"nxthop"`
	Cost   float64 `json:"cost" yaml:"cost"`
	Hops   int     `json:"hops" yaml:"hops"`
}

// RoutingTable maps destination id to the entry a node holds for it
type RoutingTable map[string]TableEntry

// Clone returns a copy of the table
func (tbl RoutingTable) Clone() RoutingTable {
	cp := make(RoutingTable, len(tbl))
	for dst, ent := range tbl {
		cp[dst] = ent
	}
	return cp
}

// DfltMaxRounds bounds every convergence run unless overridden
const DfltMaxRounds int = 50

// ProtocolSim holds the per-node routing tables and the round state of one
// convergence simulation
type ProtocolSim struct {
	mode      ProtoMode
	tpg       *Topology
	rte       *RoutingEngine
	w         Weights
	maxRounds int

	tables    map[string]RoutingTable
	round     int
	converged bool
	seenVer   int
}

// CreateProtocolSim is a constructor.  The tables start in their initial
// state, each node knowing only itself at cost 0.
func CreateProtocolSim(rte *RoutingEngine, mode ProtoMode, w Weights) (*ProtocolSim, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	switch mode {
	case RIP, OSPF:
	default:
		return nil, fmt.Errorf("protocol mode %s: %w", ProtoModeToStr(mode), ErrInvalidReference)
	}

	ps := new(ProtocolSim)
	ps.mode = mode
	ps.rte = rte
	ps.tpg = rte.Topo()
	ps.w = w
	ps.maxRounds = DfltMaxRounds
	ps.Reset()

	return ps, nil
}

// Mode returns the protocol mode the simulator runs
func (ps *ProtocolSim) Mode() ProtoMode {
	return ps.mode
}

// Weights returns the weight vector driving link costs
func (ps *ProtocolSim) Weights() Weights {
	return ps.w
}

// SetWeights installs a new weight vector and restarts convergence
func (ps *ProtocolSim) SetWeights(w Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	ps.w = w
	ps.Reset()
	return nil
}

// MaxRounds returns the round budget of a convergence run
func (ps *ProtocolSim) MaxRounds() int {
	return ps.maxRounds
}

// SetMaxRounds overrides the round budget.  Values below 1 fall back to the
// default.
func (ps *ProtocolSim) SetMaxRounds(rounds int) {
	if rounds < 1 {
		rounds = DfltMaxRounds
	}
	ps.maxRounds = rounds
}

// Converged reports whether the tables are stable
func (ps *ProtocolSim) Converged() bool {
	return ps.converged
}

// Rounds returns the number of rounds run since the last reset
func (ps *ProtocolSim) Rounds() int {
	return ps.round
}

// Reset rebuilds every available node's table to its initial state and
// stamps the topology version the rebuild observed
func (ps *ProtocolSim) Reset() {
	ps.tables = make(map[string]RoutingTable)
	for _, id := range ps.tpg.NodeIDs() {
		ps.tables[id] = RoutingTable{
			id: TableEntry{Dst: id, NxtHop: id, Cost: 0.0, Hops: 0},
		}
	}
	ps.round = 0
	ps.converged = false
	ps.seenVer = ps.tpg.Version()
}

// refresh rebuilds the tables when the topology moved underneath them
func (ps *ProtocolSim) refresh() {
	if ps.tables == nil || ps.seenVer != ps.tpg.Version() {
		ps.Reset()
	}
}

// Step advances one round and reports whether any table changed
func (ps *ProtocolSim) Step() (bool, error) {
	ps.refresh()

	var changed bool
	switch ps.mode {
	case RIP:
		changed = ps.stepDV()
		ps.round += 1
		if !changed {
			ps.converged = true
		}
	case OSPF:
		var err error
		changed, err = ps.stepLS()
		if err != nil {
			return false, err
		}
		ps.round += 1
		ps.converged = true
	default:
		return false, fmt.Errorf("protocol mode %s: %w", ProtoModeToStr(ps.mode), ErrInvalidReference)
	}

	return changed, nil
}

// RunToConvergence steps rounds until the tables are stable or the round
// budget runs out, which fails ConvergenceTimeout.  Cancellation is honored
// between rounds only, so observed state is always a completed round.
func (ps *ProtocolSim) RunToConvergence(ctx context.Context) (int, error) {
	ps.refresh()

	for !ps.converged {
		if err := ctx.Err(); err != nil {
			return ps.round, err
		}
		if ps.round >= ps.maxRounds {
			return ps.round, fmt.Errorf("%s convergence after %d rounds: %w",
				ProtoModeToStr(ps.mode), ps.round, ErrConvergenceTimeout)
		}
		if _, err := ps.Step(); err != nil {
			return ps.round, err
		}
	}

	return ps.round, nil
}

// Table returns a copy of one node's routing table.  Nodes that are absent
// or unavailable have no table.
func (ps *ProtocolSim) Table(id string) (RoutingTable, error) {
	ps.refresh()

	tbl, present := ps.tables[id]
	if !present {
		return nil, fmt.Errorf("routing table of %s: %w", id, ErrNotFound)
	}

	return tbl.Clone(), nil
}

// stepDV runs one synchronous distance-vector exchange.  Every node reads
// its neighbors' previous round tables and adopts an offered entry when the
// cost through that neighbor is strictly lower than what it holds, or when
// it holds nothing for that destination.  Node, neighbor, and destination
// iteration all run in sorted id order, so rounds are deterministic.
func (ps *ProtocolSim) stepDV() bool {
	ids := ps.tpg.NodeIDs()

	// tables from the previous round; next-round tables are built fresh so
	// every node advertises the same generation
	prev := ps.tables
	next := make(map[string]RoutingTable, len(ids))
	changed := false

	for _, id := range ids {
		tbl := prev[id].Clone()

		nbrs, _ := ps.tpg.Neighbors(id)
		for _, nbrID := range nbrs {
			lnk, _ := ps.tpg.Link(id, nbrID)
			hopCost := linkCost(lnk, ps.w)

			dsts := make([]string, 0, len(prev[nbrID]))
			for dst := range prev[nbrID] {
				dsts = append(dsts, dst)
			}
			slices.Sort(dsts)

			for _, dst := range dsts {
				offered := prev[nbrID][dst]
				cand := roundFloat(offered.Cost+hopCost, rdigits)
				cur, present := tbl[dst]
				if !present || cand < cur.Cost {
					tbl[dst] = TableEntry{Dst: dst, NxtHop: nbrID, Cost: cand, Hops: offered.Hops + 1}
					changed = true
				}
			}
		}
		next[id] = tbl
	}

	ps.tables = next

	return changed
}

// stepLS rebuilds every node's table from a full topology view through the
// routing engine's deterministic least cost trees
func (ps *ProtocolSim) stepLS() (bool, error) {
	ids := ps.tpg.NodeIDs()

	next := make(map[string]RoutingTable, len(ids))
	for _, id := range ids {
		routes, err := ps.rte.RoutesFrom(id, AlgoDijkstra, ps.w)
		if err != nil {
			return false, err
		}

		tbl := make(RoutingTable, len(routes))
		for dst, rt := range routes {
			nxthop := id
			if len(rt.Path) > 1 {
				nxthop = rt.Path[1]
			}
			tbl[dst] = TableEntry{Dst: dst, NxtHop: nxthop, Cost: rt.Cost, Hops: rt.Hops}
		}
		next[id] = tbl
	}

	changed := !tablesEqual(ps.tables, next)
	ps.tables = next

	return changed, nil
}

// tablesEqual compares two complete table sets entry by entry
func tablesEqual(a, b map[string]RoutingTable) bool {
	if len(a) != len(b) {
		return false
	}
	for id, ta := range a {
		tb, present := b[id]
		if !present || len(ta) != len(tb) {
			return false
		}
		for dst, ea := range ta {
			if eb, ok := tb[dst]; !ok || ea != eb {
				return false
			}
		}
	}
	return true
}
