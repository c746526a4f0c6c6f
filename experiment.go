package nettopogen

// experiment.go drives a configured scenario through the discrete event
// engine.  Traffic advances on a fixed virtual time interval, scripted
// faults fire at their times, and each event appends a metrics snapshot,
// so a run's timeline holds one entry per traffic step plus one per
// executed fault.

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/MouryaSagar17/NetTopoGen-A-Multi-Topology-Fault-Aware-Network-Simulation-Framework/internal/logging"
	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"github.com/iti/rngstream"
	"gopkg.in/yaml.v3"
)

// ExpResults collects everything one experiment run produces
type ExpResults struct {
	Name        string              `json:"name" yaml:"name"`
	Timeline    []MetricsReport     `json:"timeline" yaml:"timeline"`
	Convergence []ConvergenceRecord `json:"convergence" yaml:"convergence"`
	FinalLinks  []LinkState         `json:"finallinks" yaml:"finallinks"`
	Changes     []ChangeRecord      `json:"changes" yaml:"changes"`
}

// WriteToFile stores the ExpResults struct to the file whose name is
// given.  Serialization to json or to yaml is selected based on the
// extension of this name.
func (er *ExpResults) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*er)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*er, "", "\t")
	}

	if merr != nil {
		panic(merr)
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		panic(cerr)
	}
	_, werr := f.WriteString(string(bytes[:]))
	if werr != nil {
		panic(werr)
	}
	f.Close()

	return werr
}

// An Experiment binds a session to an experiment description and runs the
// scenario on the event engine's virtual clock
type Experiment struct {
	ses    *Session
	cfg    *ExpDesc
	evtMgr *evtm.EventManager
	log    logging.Logger

	// ctx is the run's cancellation signal.  Event handlers have no
	// context argument, so they observe it through the experiment.
	ctx     context.Context
	results *ExpResults
	runErrs []error
}

// CreateExp validates the description, reconfigures the session to match
// it, seeds the rng streams and the experiment's flows, and schedules the
// initial event set.  The returned experiment is ready for one Run.
func CreateExp(ses *Session, cfg *ExpDesc) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// flows draw their rng streams at creation, so the master seed has to
	// be planted first
	if cfg.RngSeed > 0 {
		rngstream.SetRngStreamMasterSeed(cfg.RngSeed)
	}

	exp := new(Experiment)
	exp.ses = ses
	exp.cfg = cfg
	exp.evtMgr = evtm.New()
	exp.log = ses.log
	exp.results = &ExpResults{
		Name:        cfg.Name,
		Timeline:    make([]MetricsReport, 0),
		Convergence: make([]ConvergenceRecord, 0),
		FinalLinks:  make([]LinkState, 0),
		Changes:     make([]ChangeRecord, 0),
	}
	exp.runErrs = make([]error, 0)

	if err := ses.SetWeights(cfg.Weights); err != nil {
		return nil, err
	}
	if err := ses.SetProtoMode(ProtoModeFromStr(cfg.Protocol)); err != nil {
		return nil, err
	}
	ses.SetMaxRounds(cfg.MaxRounds)
	ses.SetDynamicRouting(cfg.Dynamic)
	ses.SetTrafficAlgo(RouteAlgoFromStr(cfg.Algorithm))

	for _, flwd := range cfg.Flows {
		id, err := ses.CreateFlow(flwd.Name, flwd.Src, flwd.Dst,
			FlowPatternFromStr(flwd.Pattern), flwd.PcktRate, flwd.PcktLen)
		if err != nil {
			return nil, err
		}
		if FlowPatternFromStr(flwd.Pattern) == Bursty && flwd.BurstOn > 0.0 {
			if err := ses.SetBurst(id, flwd.BurstOn, flwd.BurstOff); err != nil {
				return nil, err
			}
		}
	}

	// change records carry the virtual clock for the duration of the run
	ses.Topo().SetTimeSource(exp.evtMgr.CurrentSeconds)

	exp.evtMgr.Schedule(exp, nil, expTrafficStep, vrtime.SecondsToTime(cfg.StepInterval))
	for _, fltd := range cfg.Faults {
		if fltd.Time <= cfg.Duration {
			exp.evtMgr.Schedule(exp, fltd, expFault, vrtime.SecondsToTime(fltd.Time))
		}
	}

	return exp, nil
}

// expTrafficStep is the event handler that advances traffic to the current
// virtual time, snapshots metrics, and reschedules itself while the
// horizon has room
func expTrafficStep(evtMgr *evtm.EventManager, expCxt any, data any) any {
	exp := expCxt.(*Experiment)
	if exp.ctx.Err() != nil {
		return nil
	}

	now := evtMgr.CurrentSeconds()
	if err := exp.ses.StepTraffic(now); err != nil {
		exp.runErrs = append(exp.runErrs, fmt.Errorf("traffic step at %f: %v", now, err))
	}
	exp.snapshot(now)

	if now+exp.cfg.StepInterval <= exp.cfg.Duration+1e-9 {
		evtMgr.Schedule(exp, nil, expTrafficStep, vrtime.SecondsToTime(exp.cfg.StepInterval))
	}

	return nil
}

// expFault is the event handler that applies one scripted fault and
// snapshots metrics at the fault instant
func expFault(evtMgr *evtm.EventManager, expCxt any, data any) any {
	exp := expCxt.(*Experiment)
	if exp.ctx.Err() != nil {
		return nil
	}

	fltd := data.(FaultEvtDesc)
	now := evtMgr.CurrentSeconds()
	evt := FaultEvt{
		Time:   now,
		Action: FaultActionFromStr(fltd.Action),
		A:      fltd.A,
		B:      fltd.B,
	}
	if err := exp.ses.ApplyFault(exp.ctx, evt); err != nil {
		exp.runErrs = append(exp.runErrs, fmt.Errorf("fault %s at %f: %v", fltd.Action, now, err))
	}
	exp.snapshot(now)

	return nil
}

// snapshot appends the session's current metrics to the timeline, stamped
// with the virtual time of the event that produced it
func (exp *Experiment) snapshot(now float64) {
	rpt := exp.ses.MetricsReport()
	rpt.Time = roundFloat(now, rdigits)
	exp.results.Timeline = append(exp.results.Timeline, *rpt)
}

// Run executes the experiment to its horizon and collects the results.
// Cancelling the context makes every remaining event a no-op, so the run
// stops between events and returns with what it gathered.  Output files
// named by the description are written before returning.
func (exp *Experiment) Run(ctx context.Context) (*ExpResults, error) {
	exp.ctx = ctx
	exp.log.Info(ctx, "experiment started",
		logging.String("experiment", exp.cfg.Name),
		logging.Float64("duration", exp.cfg.Duration),
		logging.Float64("step", exp.cfg.StepInterval))

	exp.evtMgr.Run(exp.cfg.Duration)
	exp.ses.Topo().SetTimeSource(nil)

	exp.results.Convergence = exp.ses.ConvergenceLog()
	exp.results.FinalLinks = exp.ses.LinkStates()
	exp.results.Changes = exp.ses.ChangesSince(0)

	if ctx.Err() != nil {
		exp.runErrs = append(exp.runErrs, ctx.Err())
	}

	if len(exp.cfg.ResultsFile) > 0 {
		exp.results.WriteToFile(exp.cfg.ResultsFile)
	}
	if len(exp.cfg.TopoFile) > 0 {
		exp.ses.WriteTopo(exp.cfg.TopoFile)
	}
	if len(exp.cfg.ChgLogFile) > 0 {
		exp.ses.WriteChangeLog(exp.cfg.ChgLogFile)
	}

	err := ReportErrs(exp.runErrs)
	exp.log.Info(ctx, "experiment finished",
		logging.String("experiment", exp.cfg.Name),
		logging.Int("snapshots", len(exp.results.Timeline)))

	return exp.results, err
}
