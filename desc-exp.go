package nettopogen

// desc-exp.go provides the serializable experiment configuration, the
// validation applied before a run, and the file representation shared by
// the command line front end and tests

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// FlowDesc is a serializable description of one traffic flow.  Burst
// attributes matter only when Pattern is "bursty".
type FlowDesc struct {
	Name     string  `json:"name" yaml:"name"`
	Src      string  `json:"src" yaml:"src"`
	Dst      string  `json:"dst" yaml:"dst"`
	Pattern  string  `json:"pattern" yaml:"pattern"`
	PcktRate float64 `json:"pcktrate" yaml:"pcktrate"`
	PcktLen  int     `json:"pcktlen" yaml:"pcktlen"`
	BurstOn  float64 `json:"burston,omitempty" yaml:"burston,omitempty"`
	BurstOff float64 `json:"burstoff,omitempty" yaml:"burstoff,omitempty"`
}

// FaultEvtDesc is a serializable description of one scripted fault.  B is
// used only by the link actions.
type FaultEvtDesc struct {
	Time   float64 `json:"time" yaml:"time"`
	Action string  `json:"action" yaml:"action"`
	A      string  `json:"a" yaml:"a"`
	B      string  `json:"b,omitempty" yaml:"b,omitempty"`
}

/// ExpDesc holds the complete configuration of one experiment: cost
// weights, routing algorithm, convergence protocol, the traffic to offer,
// the fault script to inject, and the output files to produce
type ExpDesc struct {
	Name         string         `json:"name" yaml:"name"`
	Weights      Weights        `json:"weights" yaml:"weights"`
	Algorithm    string         `json:"algorithm" yaml:"algorithm"`
	Protocol     string         `json:"protocol" yaml:"protocol"`
	Dynamic      bool           `json:"dynamic" yaml:"dynamic"`
	MaxRounds    int            `json:"maxrounds" yaml:"maxrounds"`
	StepInterval float64        `json:"stepinterval" yaml:"stepinterval"`
	Duration     float64        `json:"duration" yaml:"duration"`
	RngSeed      uint64         `json:"rngseed" yaml:"rngseed"`
	Flows        []FlowDesc     `json:"flows" yaml:"flows"`
	Faults       []FaultEvtDesc `json:"faults" yaml:"faults"`

	// output controls.  Empty names suppress the corresponding file.
	ResultsFile string `json:"resultsfile,omitempty" yaml:"resultsfile,omitempty"`
	TopoFile    string `json:"topofile,omitempty" yaml:"topofile,omitempty"`
	ChgLogFile  string `json:"chglogfile,omitempty" yaml:"chglogfile,omitempty"`
}

// CreateExpDesc is a constructor.  Saves the offered name and fills in
// runnable defaults: unit weights, dijkstra routing, ospf convergence,
// dynamic rerouting, one second steps over a ten second horizon.
func CreateExpDesc(name string) *ExpDesc {
	ed := new(ExpDesc)
	ed.Name = name
	ed.Weights = DefaultWeights()
	ed.Algorithm = RouteAlgoToStr(AlgoDijkstra)
	ed.Protocol = ProtoModeToStr(OSPF)
	ed.Dynamic = true
	ed.MaxRounds = DfltMaxRounds
	ed.StepInterval = 1.0
	ed.Duration = 10.0
	ed.Flows = make([]FlowDesc, 0)
	ed.Faults = make([]FaultEvtDesc, 0)

	return ed
}

// AddFlow validates the parameters of a flow description, creates one, and
// adds it to the experiment's list
func (ed *ExpDesc) AddFlow(name, src, dst, pattern string, pcktRate float64, pcktLen int) error {
	if FlowPatternFromStr(pattern) == UnknownPattern {
		return fmt.Errorf("flow %s: unknown pattern %s: %w", name, pattern, ErrInvalidReference)
	}
	if !(pcktRate > 0.0) {
		return fmt.Errorf("flow %s: packet rate %f: %w", name, pcktRate, ErrInvalidMetric)
	}
	if pcktLen < 1 {
		return fmt.Errorf("flow %s: packet length %d: %w", name, pcktLen, ErrInvalidMetric)
	}

	ed.Flows = append(ed.Flows, FlowDesc{Name: name, Src: src, Dst: dst,
		Pattern: pattern, PcktRate: pcktRate, PcktLen: pcktLen})

	return nil
}

// AddFault validates the parameters of a scripted fault, creates one, and
// adds it to the experiment's script
func (ed *ExpDesc) AddFault(time float64, action, a, b string) error {
	act := FaultActionFromStr(action)
	if act == UnknownAction {
		return fmt.Errorf("fault at %f: unknown action %s: %w", time, action, ErrInvalidReference)
	}
	if time < 0.0 {
		return fmt.Errorf("fault %s: time %f: %w", action, time, ErrInvalidMetric)
	}
	if (act == ActBreakLink || act == ActRestoreLink) && len(b) == 0 {
		return fmt.Errorf("fault %s at %f: link actions need two endpoints: %w", action, time, ErrInvalidReference)
	}

	ed.Faults = append(ed.Faults, FaultEvtDesc{Time: time, Action: action, A: a, B: b})

	return nil
}

// Validate checks that every enumerated name in the description is
// recognized and every numeric control is usable, so that a run fails
// before its first event rather than in the middle
func (ed *ExpDesc) Validate() error {
	if err := ed.Weights.Validate(); err != nil {
		return fmt.Errorf("experiment %s: %w", ed.Name, err)
	}
	if RouteAlgoFromStr(ed.Algorithm) == UnknownAlgo {
		return fmt.Errorf("experiment %s: unknown algorithm %s: %w", ed.Name, ed.Algorithm, ErrInvalidReference)
	}
	if ProtoModeFromStr(ed.Protocol) == UnknownProto {
		return fmt.Errorf("experiment %s: unknown protocol %s: %w", ed.Name, ed.Protocol, ErrInvalidReference)
	}
	if !(ed.StepInterval > 0.0) {
		return fmt.Errorf("experiment %s: step interval %f: %w", ed.Name, ed.StepInterval, ErrInvalidMetric)
	}
	if !(ed.Duration > 0.0) {
		return fmt.Errorf("experiment %s: duration %f: %w", ed.Name, ed.Duration, ErrInvalidMetric)
	}

	for _, flwd := range ed.Flows {
		if FlowPatternFromStr(flwd.Pattern) == UnknownPattern {
			return fmt.Errorf("flow %s: unknown pattern %s: %w", flwd.Name, flwd.Pattern, ErrInvalidReference)
		}
		if !(flwd.PcktRate > 0.0) {
			return fmt.Errorf("flow %s: packet rate %f: %w", flwd.Name, flwd.PcktRate, ErrInvalidMetric)
		}
		if flwd.PcktLen < 1 {
			return fmt.Errorf("flow %s: packet length %d: %w", flwd.Name, flwd.PcktLen, ErrInvalidMetric)
		}
	}

	for _, fltd := range ed.Faults {
		act := FaultActionFromStr(fltd.Action)
		if act == UnknownAction {
			return fmt.Errorf("fault at %f: unknown action %s: %w", fltd.Time, fltd.Action, ErrInvalidReference)
		}
		if fltd.Time < 0.0 {
			return fmt.Errorf("fault %s: time %f: %w", fltd.Action, fltd.Time, ErrInvalidMetric)
		}
		if (act == ActBreakLink || act == ActRestoreLink) && len(fltd.B) == 0 {
			return fmt.Errorf("fault %s at %f: link actions need two endpoints: %w", fltd.Action, fltd.Time, ErrInvalidReference)
		}
	}

	return nil
}

// WriteToFile stores the ExpDesc struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of
// this name.
func (ed *ExpDesc) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*ed)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*ed, "", "\t")
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

// ReadExpDesc deserializes a byte slice holding a representation of an
// ExpDesc struct.  If the input argument of dict (those bytes) is empty,
// the file whose name is given is read to acquire them.  A deserialized
// representation is returned, or an error if one is generated from a file
// read or the deserialization.
func ReadExpDesc(filename string, useYAML bool, dict []byte) (*ExpDesc, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := ExpDesc{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}

	return &example, nil
}

// An ExpDescDict is a dictionary that holds ExpDesc objects in a map
// indexed by their Name
type ExpDescDict struct {
	DictName string             `json:"dictname" yaml:"dictname"`
	Descs    map[string]ExpDesc `json:"descs" yaml:"descs"`
}

// CreateExpDescDict is a constructor.  Saves a name for the dictionary,
// and initializes the map of ExpDesc objects.
func CreateExpDescDict(name string) *ExpDescDict {
	edd := new(ExpDescDict)
	edd.DictName = name
	edd.Descs = make(map[string]ExpDesc)

	return edd
}

// AddExpDesc adds the offered ExpDesc to the dictionary, optionally
// returning an error if an ExpDesc with the same Name is already saved
func (edd *ExpDescDict) AddExpDesc(ed *ExpDesc, overwrite bool) error {
	if !overwrite {
		_, present := edd.Descs[ed.Name]
		if present {
			return fmt.Errorf("attempt to overwrite ExpDesc %s in ExpDescDict", ed.Name)
		}
	}

	edd.Descs[ed.Name] = *ed

	return nil
}

// RecoverExpDesc returns an ExpDesc from the dictionary, with name equal
// to the input parameter.  It returns also a flag denoting whether the
// identified ExpDesc has an entry in the dictionary.
func (edd *ExpDescDict) RecoverExpDesc(name string) (*ExpDesc, bool) {
	ed, present := edd.Descs[name]
	if present {
		return &ed, true
	}

	return nil, false
}

// WriteToFile stores the ExpDescDict struct to the file whose name is
// given.  Serialization to json or to yaml is selected based on the
// extension of this name.
func (edd *ExpDescDict) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*edd)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*edd, "", "\t")
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

// ReadExpDescDict deserializes a byte slice holding a representation of an
// ExpDescDict struct.  If the input argument of dict (those bytes) is
// empty, the file whose name is given is read to acquire them.
func ReadExpDescDict(filename string, useYAML bool, dict []byte) (*ExpDescDict, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := ExpDescDict{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}

	return &example, nil
}
