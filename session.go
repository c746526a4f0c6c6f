package nettopogen

// session.go serializes the whole engine surface behind one facade

import (
	"context"
	"fmt"
	"sync"

	"github.com/MouryaSagar17/NetTopoGen-A-Multi-Topology-Fault-Aware-Network-Simulation-Framework/internal/logging"
	"github.com/google/uuid"
)

// A Session owns one topology together with the routing engine, protocol
// simulator, traffic simulator, and fault controller wired over it, and
// funnels every operation through one lock.  Snapshot reads take the read
// side.  Mutations take the write side, and so do route computations and
// table accesses, because both write into caches.  Code below the Session
// performs no locking of its own; this is the only mutual exclusion
// boundary in the engine.

// MetricsRecorder receives instrumentation callbacks as a session runs.
// The observability package's collector satisfies it.
type MetricsRecorder interface {
	RecordTopoCounts(nodes, links, linksDown int)
	RecordPathQuery(algo string, failed bool)
	RecordFault(action string)
	RecordTraffic(generated, delivered, dropped int)
	RecordConvergence(mode string, rounds int, converged bool)
	RecordUtilization(mean, max float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordTopoCounts(int, int, int)      {}
func (nopRecorder) RecordPathQuery(string, bool)        {}
func (nopRecorder) RecordFault(string)                  {}
func (nopRecorder) RecordTraffic(int, int, int)         {}
func (nopRecorder) RecordConvergence(string, int, bool) {}
func (nopRecorder) RecordUtilization(float64, float64)  {}

// LinkState is a read snapshot of one link
type LinkState struct {
	Key     LinkKey `json:"key" yaml:"key"`
	Delay   float64 `json:"delay" yaml:"delay"`
	Bndwdth float64 `json:"bndwdth" yaml:"bndwdth"`
	Loss    float64 `json:"loss" yaml:"loss"`
	Up      bool    `json:"up" yaml:"up"`
	Util    float64 `json:"util" yaml:"util"`
}

// TableView is a read snapshot of one node's routing table together with
// the convergence state it came from
type TableView struct {
	Node      string       `json:"node" yaml:"node"`
	Entries   RoutingTable `json:"entries" yaml:"entries"`
	Mode      string       `json:"mode" yaml:"mode"`
	Round     int          `json:"round" yaml:"round"`
	Converged bool         `json:"converged" yaml:"converged"`
}

type sessionCfg struct {
	log       logging.Logger
	recorder  MetricsRecorder
	w         Weights
	mode      ProtoMode
	maxRounds int
	dynamic   bool
	algo      RouteAlgo
}

// SessionOption configures a session at creation
type SessionOption func(*sessionCfg)

// WithLogger installs a structured logger
func WithLogger(log logging.Logger) SessionOption {
	return func(cfg *sessionCfg) { cfg.log = log }
}

// WithRecorder installs a metrics recorder
func WithRecorder(rec MetricsRecorder) SessionOption {
	return func(cfg *sessionCfg) { cfg.recorder = rec }
}

// WithWeights sets the session's live weight vector
func WithWeights(w Weights) SessionOption {
	return func(cfg *sessionCfg) { cfg.w = w }
}

// WithProtoMode selects the convergence protocol
func WithProtoMode(mode ProtoMode) SessionOption {
	return func(cfg *sessionCfg) { cfg.mode = mode }
}

// WithMaxRounds overrides the convergence round budget
func WithMaxRounds(rounds int) SessionOption {
	return func(cfg *sessionCfg) { cfg.maxRounds = rounds }
}

// WithDynamicRouting controls whether faults trigger recomputation
func WithDynamicRouting(dynamic bool) SessionOption {
	return func(cfg *sessionCfg) { cfg.dynamic = dynamic }
}

// WithTrafficAlgo selects the algorithm traffic flows route by
func WithTrafficAlgo(algo RouteAlgo) SessionOption {
	return func(cfg *sessionCfg) { cfg.algo = algo }
}

// Session is the serialized facade over one topology and its simulators
type Session struct {
	mu sync.RWMutex

	id      uuid.UUID
	tpg     *Topology
	rte     *RoutingEngine
	proto   *ProtocolSim
	traffic *TrafficSim
	faults  *FaultCtrl

	w        Weights
	log      logging.Logger
	recorder MetricsRecorder
	convSeen int
}

// CreateSession wires a session over an existing topology.  Defaults: noop
// logger and recorder, unit weights, ospf mode, dynamic routing on, traffic
// routed by dijkstra.
func CreateSession(tpg *Topology, opts ...SessionOption) (*Session, error) {
	cfg := sessionCfg{
		log:       logging.Noop(),
		recorder:  nopRecorder{},
		w:         DefaultWeights(),
		mode:      OSPF,
		maxRounds: DfltMaxRounds,
		dynamic:   true,
		algo:      AlgoDijkstra,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.w.Validate(); err != nil {
		return nil, err
	}

	ses := new(Session)
	ses.id = uuid.New()
	ses.tpg = tpg
	ses.rte = CreateRoutingEngine(tpg)

	proto, err := CreateProtocolSim(ses.rte, cfg.mode, cfg.w)
	if err != nil {
		return nil, err
	}
	proto.SetMaxRounds(cfg.maxRounds)
	ses.proto = proto

	ses.traffic = CreateTrafficSim(ses.rte, cfg.algo)
	ses.faults = CreateFaultCtrl(ses.rte, proto, cfg.dynamic)

	ses.w = cfg.w
	ses.log = cfg.log.With(logging.String("session", ses.id.String()))
	ses.recorder = cfg.recorder
	ses.touchTopo()

	ses.log.Info(context.Background(), "session created",
		logging.String("topology", tpg.Name()),
		logging.String("mode", ProtoModeToStr(cfg.mode)))

	return ses, nil
}

// ID returns the session's generated run id
func (ses *Session) ID() uuid.UUID {
	return ses.id
}

// Topo exposes the underlying topology.  Direct use bypasses the session
// lock and belongs only in single-goroutine setup code.
func (ses *Session) Topo() *Topology {
	return ses.tpg
}

// touchTopo refreshes the recorder's topology gauges
func (ses *Session) touchTopo() {
	nodes, links, down := ses.tpg.Counts()
	ses.recorder.RecordTopoCounts(nodes, links, down)
}

// recordNewConvergence forwards convergence outcomes produced by dynamic
// rerouting since the last check
func (ses *Session) recordNewConvergence() {
	log := ses.faults.ConvergenceLog()
	for _, rec := range log[ses.convSeen:] {
		ses.recorder.RecordConvergence(rec.Mode, rec.Rounds, rec.Converged)
	}
	ses.convSeen = len(log)
}

// AddNode creates or updates a device
func (ses *Session) AddNode(id string, kind DevKind) error {
	ses.mu.Lock()
	defer ses.mu.Unlock()

	_, err := ses.tpg.AddNode(id, kind)
	if err != nil {
		return err
	}
	ses.touchTopo()
	ses.log.Debug(context.Background(), "node added",
		logging.String("node", id), logging.String("kind", DevKindToStr(kind)))
	return nil
}

// PlaceNode assigns device coordinates
func (ses *Session) PlaceNode(id string, x, y float64) error {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	return ses.tpg.PlaceNode(id, x, y)
}

// SetIntrfcs replaces a device's interface attributes
func (ses *Session) SetIntrfcs(id string, intrfcs map[string]string) error {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	return ses.tpg.SetIntrfcs(id, intrfcs)
}

// RmNode removes a device and its links
func (ses *Session) RmNode(id string) error {
	ses.mu.Lock()
	defer ses.mu.Unlock()

	if err := ses.tpg.RmNode(id); err != nil {
		return err
	}
	ses.touchTopo()
	ses.log.Debug(context.Background(), "node removed", logging.String("node", id))
	return nil
}

// AddLink connects two devices
func (ses *Session) AddLink(a, b string, delay, bndwdth, loss float64) error {
	ses.mu.Lock()
	defer ses.mu.Unlock()

	_, err := ses.tpg.AddLink(a, b, delay, bndwdth, loss)
	if err != nil {
		return err
	}
	ses.touchTopo()
	ses.log.Debug(context.Background(), "link added", logging.String("link", CreateLinkKey(a, b).String()))
	return nil
}

// RmLink removes a link
func (ses *Session) RmLink(a, b string) error {
	ses.mu.Lock()
	defer ses.mu.Unlock()

	if err := ses.tpg.RmLink(a, b); err != nil {
		return err
	}
	ses.touchTopo()
	return nil
}

// Weights returns the live weight vector
func (ses *Session) Weights() Weights {
	ses.mu.RLock()
	defer ses.mu.RUnlock()
	return ses.w
}

// SetWeights installs a new live weight vector.  The qos algorithm and the
// protocol simulator observe it immediately; the protocol restarts
// convergence from scratch.
func (ses *Session) SetWeights(w Weights) error {
	ses.mu.Lock()
	defer ses.mu.Unlock()

	if err := ses.proto.SetWeights(w); err != nil {
		return err
	}
	ses.w = w
	ses.log.Info(context.Background(), "weights updated",
		logging.Float64("alpha", w.Alpha), logging.Float64("beta", w.Beta), logging.Float64("gamma", w.Gamma))
	return nil
}

// SetProtoMode swaps the convergence protocol.  The replacement simulator
// starts from initial tables; the previous one's history is discarded.
func (ses *Session) SetProtoMode(mode ProtoMode) error {
	ses.mu.Lock()
	defer ses.mu.Unlock()

	if mode == ses.proto.Mode() {
		return nil
	}
	proto, err := CreateProtocolSim(ses.rte, mode, ses.w)
	if err != nil {
		return err
	}
	proto.SetMaxRounds(ses.proto.MaxRounds())
	ses.proto = proto
	ses.faults.proto = proto
	ses.log.Info(context.Background(), "protocol changed",
		logging.String("mode", ProtoModeToStr(mode)))
	return nil
}

// SetMaxRounds overrides the convergence round budget
func (ses *Session) SetMaxRounds(rounds int) {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	ses.proto.SetMaxRounds(rounds)
}

// SetDynamicRouting controls whether faults trigger recomputation
func (ses *Session) SetDynamicRouting(dynamic bool) {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	ses.faults.SetDynamic(dynamic)
}

// SetTrafficAlgo changes the algorithm traffic flows route by
func (ses *Session) SetTrafficAlgo(algo RouteAlgo) {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	ses.traffic.SetAlgo(algo)
}

// ComputePath routes src to dst under the named algorithm.  qos uses the
// session's live weight vector, every other algorithm the unit defaults; a
// non-nil override replaces either.  Route computation fills engine caches,
// so it serializes on the write side of the lock.
func (ses *Session) ComputePath(src, dst string, algo RouteAlgo, override *Weights) (*Route, error) {
	ses.mu.Lock()
	defer ses.mu.Unlock()

	eff := DefaultWeights()
	if algo == AlgoQoS {
		eff = ses.w
	}
	if override != nil {
		eff = *override
	}

	rt, err := ses.rte.ComputeRoute(src, dst, algo, eff)
	ses.recorder.RecordPathQuery(RouteAlgoToStr(algo), err != nil)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// StepProtocol advances one convergence round
func (ses *Session) StepProtocol() (bool, error) {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	return ses.proto.Step()
}

// RunConvergence steps the protocol until stable or the round budget runs
// out
func (ses *Session) RunConvergence(ctx context.Context) (int, error) {
	ses.mu.Lock()
	defer ses.mu.Unlock()

	rounds, err := ses.proto.RunToConvergence(ctx)
	ses.recorder.RecordConvergence(ProtoModeToStr(ses.proto.Mode()), rounds, ses.proto.Converged())
	ses.log.Info(ctx, "convergence run",
		logging.String("mode", ProtoModeToStr(ses.proto.Mode())),
		logging.Int("rounds", rounds))
	return rounds, err
}

// Table snapshots one node's routing table
func (ses *Session) Table(id string) (*TableView, error) {
	ses.mu.Lock()
	defer ses.mu.Unlock()

	tbl, err := ses.proto.Table(id)
	if err != nil {
		return nil, err
	}
	return &TableView{
		Node:      id,
		Entries:   tbl,
		Mode:      ProtoModeToStr(ses.proto.Mode()),
		Round:     ses.proto.Rounds(),
		Converged: ses.proto.Converged(),
	}, nil
}

// CreateFlow registers a traffic flow and returns its id
func (ses *Session) CreateFlow(name, src, dst string, pattern FlowPattern,
	pcktRate float64, pcktLen int) (uuid.UUID, error) {

	ses.mu.Lock()
	defer ses.mu.Unlock()

	flw, err := ses.traffic.CreateFlow(name, src, dst, pattern, pcktRate, pcktLen)
	if err != nil {
		return uuid.Nil, err
	}
	ses.log.Debug(context.Background(), "flow created",
		logging.String("flow", flw.Name),
		logging.String("src", src), logging.String("dst", dst))
	return flw.ID, nil
}

// RmFlow removes a traffic flow
func (ses *Session) RmFlow(id uuid.UUID) error {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	return ses.traffic.RmFlow(id)
}

// ChangeRate updates a flow's packet rate
func (ses *Session) ChangeRate(id uuid.UUID, pcktRate float64) error {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	return ses.traffic.ChangeRate(id, pcktRate)
}

// SetBurst configures a flow's bursty cycle
func (ses *Session) SetBurst(id uuid.UUID, on, off float64) error {
	ses.mu.Lock()
	defer ses.mu.Unlock()

	flw, err := ses.traffic.Flow(id)
	if err != nil {
		return err
	}
	return flw.SetBurst(on, off)
}

// FlowStats snapshots one flow's counters
func (ses *Session) FlowStats(id uuid.UUID) (FlowStats, error) {
	ses.mu.RLock()
	defer ses.mu.RUnlock()

	flw, err := ses.traffic.Flow(id)
	if err != nil {
		return FlowStats{}, err
	}
	return flw.Stats, nil
}

// FlowIDs lists the active flows in name order
func (ses *Session) FlowIDs() []uuid.UUID {
	ses.mu.RLock()
	defer ses.mu.RUnlock()

	flws := ses.traffic.Flows()
	ids := make([]uuid.UUID, 0, len(flws))
	for _, flw := range flws {
		ids = append(ids, flw.ID)
	}
	return ids
}

// StepTraffic advances the traffic simulation to virtual time now under the
// live weight vector and applies link feedback
func (ses *Session) StepTraffic(now float64) error {
	ses.mu.Lock()
	defer ses.mu.Unlock()

	before := ses.traffic.AggStats()
	err := ses.traffic.SimulateStep(now, ses.w)
	after := ses.traffic.AggStats()

	ses.recorder.RecordTraffic(after.Generated-before.Generated,
		after.Delivered-before.Delivered, after.Dropped-before.Dropped)
	rpt := BuildMetricsReport(ses.traffic)
	ses.recorder.RecordUtilization(rpt.MeanUtil, rpt.MaxUtil)
	ses.log.Debug(context.Background(), "traffic step",
		logging.Float64("now", now),
		logging.Int("generated", after.Generated-before.Generated))

	return err
}

// BreakLink marks a link unavailable
func (ses *Session) BreakLink(ctx context.Context, a, b string) error {
	return ses.fault(ctx, FaultEvt{Action: ActBreakLink, A: a, B: b})
}

// RestoreLink marks a link available
func (ses *Session) RestoreLink(ctx context.Context, a, b string) error {
	return ses.fault(ctx, FaultEvt{Action: ActRestoreLink, A: a, B: b})
}

// FailNode marks a device unavailable
func (ses *Session) FailNode(ctx context.Context, id string) error {
	return ses.fault(ctx, FaultEvt{Action: ActFailNode, A: id})
}

// RestoreNode marks a device available
func (ses *Session) RestoreNode(ctx context.Context, id string) error {
	return ses.fault(ctx, FaultEvt{Action: ActRestoreNode, A: id})
}

// ApplyFault dispatches one scripted fault
func (ses *Session) ApplyFault(ctx context.Context, evt FaultEvt) error {
	return ses.fault(ctx, evt)
}

func (ses *Session) fault(ctx context.Context, evt FaultEvt) error {
	ses.mu.Lock()
	defer ses.mu.Unlock()

	err := ses.faults.Apply(ctx, evt)
	ses.recorder.RecordFault(FaultActionToStr(evt.Action))
	ses.recordNewConvergence()
	ses.touchTopo()
	if err != nil {
		ses.log.Warn(ctx, "fault failed",
			logging.String("action", FaultActionToStr(evt.Action)),
			logging.String("target", evt.A), logging.Err(err))
		return err
	}
	ses.log.Info(ctx, "fault applied",
		logging.String("action", FaultActionToStr(evt.Action)),
		logging.String("target", evt.A))
	return nil
}

// ConvergenceLog returns the convergence outcomes recorded by dynamic
// rerouting
func (ses *Session) ConvergenceLog() []ConvergenceRecord {
	ses.mu.RLock()
	defer ses.mu.RUnlock()
	return ses.faults.ConvergenceLog()
}

// LinkStates snapshots every link, failed ones included, with the
// utilization of the last traffic step
func (ses *Session) LinkStates() []LinkState {
	ses.mu.RLock()
	defer ses.mu.RUnlock()

	util := ses.traffic.Util()
	lnks := ses.tpg.AllLinks()
	states := make([]LinkState, 0, len(lnks))
	for _, lnk := range lnks {
		states = append(states, LinkState{
			Key:     lnk.Key,
			Delay:   lnk.Delay,
			Bndwdth: lnk.Bndwdth,
			Loss:    lnk.Loss,
			Up:      lnk.Up,
			Util:    util[lnk.Key],
		})
	}
	return states
}

// NodeIDs lists available devices
func (ses *Session) NodeIDs() []string {
	ses.mu.RLock()
	defer ses.mu.RUnlock()
	return ses.tpg.NodeIDs()
}

// AllNodeIDs lists every device, failed ones included
func (ses *Session) AllNodeIDs() []string {
	ses.mu.RLock()
	defer ses.mu.RUnlock()
	return ses.tpg.AllNodeIDs()
}

// IsConnected reports availability-filtered connectivity
func (ses *Session) IsConnected() bool {
	ses.mu.RLock()
	defer ses.mu.RUnlock()
	return ses.tpg.IsConnected()
}

// Version returns the topology mutation counter
func (ses *Session) Version() int {
	ses.mu.RLock()
	defer ses.mu.RUnlock()
	return ses.tpg.Version()
}

// ChangesSince returns the change records after a sequence number
func (ses *Session) ChangesSince(seq int) []ChangeRecord {
	ses.mu.RLock()
	defer ses.mu.RUnlock()
	return ses.tpg.ChgLog().Since(seq)
}

// SubscribeChanges registers a listener fired synchronously inside the
// session boundary after each mutation
func (ses *Session) SubscribeChanges(fn func(ChangeRecord)) {
	ses.mu.Lock()
	defer ses.mu.Unlock()
	ses.tpg.ChgLog().AddListener(fn)
}

// MetricsReport computes the evaluation metrics of the traffic run so far
func (ses *Session) MetricsReport() *MetricsReport {
	ses.mu.RLock()
	defer ses.mu.RUnlock()
	return BuildMetricsReport(ses.traffic)
}

// AllPairs sweeps all-pairs shortest paths under the live weight vector
func (ses *Session) AllPairs() (*AllPairs, error) {
	ses.mu.RLock()
	defer ses.mu.RUnlock()
	return AllPairsShortestPaths(ses.tpg, ses.w)
}

// Diameter returns the network diameter under the live weight vector
func (ses *Session) Diameter() (float64, error) {
	ses.mu.RLock()
	defer ses.mu.RUnlock()
	return NetworkDiameter(ses.tpg, ses.w)
}

// AvgPathLength returns the mean hop count under the live weight vector
func (ses *Session) AvgPathLength() (float64, error) {
	ses.mu.RLock()
	defer ses.mu.RUnlock()
	return AvgPathLength(ses.tpg, ses.w)
}

// CriticalLinks identifies links whose failure would disconnect pairs or
// stretch the diameter beyond the factor
func (ses *Session) CriticalLinks(stretch float64) ([]LinkKey, error) {
	ses.mu.RLock()
	defer ses.mu.RUnlock()
	return CriticalLinks(ses.tpg, ses.w, stretch)
}

// CompareAlgos runs one query through every algorithm under the live weight
// vector
func (ses *Session) CompareAlgos(src, dst string) ([]AlgoResult, error) {
	ses.mu.RLock()
	defer ses.mu.RUnlock()
	return CompareAlgorithms(ses.tpg, src, dst, ses.w)
}

// WriteTopo exports the topology description, yaml or json by extension
func (ses *Session) WriteTopo(filename string) error {
	ses.mu.RLock()
	defer ses.mu.RUnlock()
	return CreateTopoDesc(ses.tpg).WriteToFile(filename)
}

// WriteChangeLog exports the change log, yaml or json by extension
func (ses *Session) WriteChangeLog(filename string) error {
	ses.mu.RLock()
	defer ses.mu.RUnlock()
	return ses.tpg.ChgLog().WriteToFile(filename)
}

// String identifies the session in logs and errors
func (ses *Session) String() string {
	return fmt.Sprintf("session %s over %s", ses.id, ses.tpg.Name())
}
