package nettopogen

// faults.go implements fault injection over a topology

import (
	"context"
	"fmt"
)

// FaultAction is the base type for an enumerated type of scripted fault actions
type FaultAction int

const (
	ActBreakLink FaultAction = iota
	ActRestoreLink
	ActFailNode
	ActRestoreNode
	UnknownAction
)

// FaultActionFromStr returns the FaultAction corresponding to a string name for it
func FaultActionFromStr(action string) FaultAction {
	switch action {
	case "break_link":
		return ActBreakLink
	case "restore_link":
		return ActRestoreLink
	case "fail_node":
		return ActFailNode
	case "restore_node":
		return ActRestoreNode
	default:
		return UnknownAction
	}
}

// FaultActionToStr returns a string name that corresponds to an input FaultAction
func FaultActionToStr(action FaultAction) string {
	switch action {
	case ActBreakLink:
		return "break_link"
	case ActRestoreLink:
		return "restore_link"
	case ActFailNode:
		return "fail_node"
	case ActRestoreNode:
		return "restore_node"
	default:
		return "unknown"
	}
}

// FaultEvt is one scripted fault: an action applied to a target at a virtual
// time.  Node actions use A alone; link actions use the A-B pair.
type FaultEvt struct {
	Time   float64
	Action FaultAction
	A      string
	B      string
}

// FaultCtrl toggles device and link availability through the topology.
// Redundant toggles are no-ops.  With dynamic routing enabled every
// effective toggle flushes the routing engine's caches, reruns protocol
// convergence, and records the outcome.
type FaultCtrl struct {
	tpg     *Topology
	rte     *RoutingEngine
	proto   *ProtocolSim
	dynamic bool
	convLog []ConvergenceRecord
}

// CreateFaultCtrl is a constructor.  proto may be nil when no protocol
// simulation runs; dynamic routing then only flushes the route caches.
func CreateFaultCtrl(rte *RoutingEngine, proto *ProtocolSim, dynamic bool) *FaultCtrl {
	fc := new(FaultCtrl)
	fc.rte = rte
	fc.tpg = rte.Topo()
	fc.proto = proto
	fc.dynamic = dynamic
	fc.convLog = make([]ConvergenceRecord, 0)
	return fc
}

// Dynamic reports whether dynamic routing reacts to faults
func (fc *FaultCtrl) Dynamic() bool {
	return fc.dynamic
}

// SetDynamic enables or disables the dynamic routing reaction
func (fc *FaultCtrl) SetDynamic(dynamic bool) {
	fc.dynamic = dynamic
}

// BreakLink marks a link unavailable.  Breaking an already broken link
// changes nothing and triggers no recomputation.
func (fc *FaultCtrl) BreakLink(ctx context.Context, a, b string) error {
	changed, err := fc.tpg.SetLinkStatus(a, b, false)
	if err != nil {
		return err
	}
	return fc.react(ctx, changed)
}

// RestoreLink marks a link available again
func (fc *FaultCtrl) RestoreLink(ctx context.Context, a, b string) error {
	changed, err := fc.tpg.SetLinkStatus(a, b, true)
	if err != nil {
		return err
	}
	return fc.react(ctx, changed)
}

// FailNode marks a device unavailable.  Links stay in place; traversal
// filters them out while either endpoint is down.
func (fc *FaultCtrl) FailNode(ctx context.Context, id string) error {
	changed, err := fc.tpg.SetNodeStatus(id, false)
	if err != nil {
		return err
	}
	return fc.react(ctx, changed)
}

// RestoreNode marks a device available again
func (fc *FaultCtrl) RestoreNode(ctx context.Context, id string) error {
	changed, err := fc.tpg.SetNodeStatus(id, true)
	if err != nil {
		return err
	}
	return fc.react(ctx, changed)
}

// Apply dispatches one scripted fault
func (fc *FaultCtrl) Apply(ctx context.Context, evt FaultEvt) error {
	switch evt.Action {
	case ActBreakLink:
		return fc.BreakLink(ctx, evt.A, evt.B)
	case ActRestoreLink:
		return fc.RestoreLink(ctx, evt.A, evt.B)
	case ActFailNode:
		return fc.FailNode(ctx, evt.A)
	case ActRestoreNode:
		return fc.RestoreNode(ctx, evt.A)
	default:
		return fmt.Errorf("fault action %s: %w", FaultActionToStr(evt.Action), ErrInvalidReference)
	}
}

// ConvergenceLog returns the outcomes of the convergence runs performed by
// dynamic rerouting, in order
func (fc *FaultCtrl) ConvergenceLog() []ConvergenceRecord {
	log := make([]ConvergenceRecord, len(fc.convLog))
	copy(log, fc.convLog)
	return log
}

// react recomputes routing state after an effective toggle
func (fc *FaultCtrl) react(ctx context.Context, changed bool) error {
	if !changed || !fc.dynamic {
		return nil
	}

	fc.rte.FlushCache()
	if fc.proto == nil {
		return nil
	}

	rounds, err := fc.proto.RunToConvergence(ctx)
	fc.convLog = append(fc.convLog, ConvergenceRecord{
		Time:      fc.tpg.now(),
		Mode:      ProtoModeToStr(fc.proto.Mode()),
		Rounds:    rounds,
		Converged: fc.proto.Converged(),
	})

	return err
}
