package nettopogen

// trace.go provides the change log: an ordered record of every topology
// mutation, the change-notification contract collaborators subscribe to or
// poll instead of watching the topology directly.

import (
	"encoding/json"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// ChangeOp tags the kind of mutation a change record describes
type ChangeOp string

const (
	OpAddNode    ChangeOp = "add-node"
	OpUpdateNode ChangeOp = "update-node"
	OpPlaceNode  ChangeOp = "place-node"
	OpSetIntrfcs ChangeOp = "set-intrfcs"
	OpRmNode     ChangeOp = "rm-node"
	OpAddLink    ChangeOp = "add-link"
	OpRmLink     ChangeOp = "rm-link"
	OpLinkStatus ChangeOp = "link-status"
	OpNodeStatus ChangeOp = "node-status"
	OpLinkPerf   ChangeOp = "link-perf"
)

// ChangeRecord describes one topology mutation: what happened, which
// elements it touched, and the topology version it produced
type ChangeRecord struct {
	Seq     int       `json:"seq" yaml:"seq"`
	Version int       `json:"version" yaml:"version"`
	Time    float64   `json:"time" yaml:"time"`
	Op      ChangeOp  `json:"op" yaml:"op"`
	Nodes   []string  `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Links   []LinkKey `json:"links,omitempty" yaml:"links,omitempty"`
}

// ChangeLog accumulates change records in sequence order and fans them out
// to registered listeners.  Listeners run synchronously inside the mutation,
// so they observe the topology exactly as the record left it; they must not
// mutate the topology themselves.
type ChangeLog struct {
	nxtSeq    int
	recs      []ChangeRecord
	listeners []func(ChangeRecord)
}

// CreateChangeLog is a constructor
func CreateChangeLog() *ChangeLog {
	cl := new(ChangeLog)
	cl.nxtSeq = 1
	cl.recs = make([]ChangeRecord, 0)
	cl.listeners = make([]func(ChangeRecord), 0)
	return cl
}

// append assigns the next sequence number, stores the record, and notifies listeners
func (cl *ChangeLog) append(rec ChangeRecord) {
	rec.Seq = cl.nxtSeq
	cl.nxtSeq += 1
	cl.recs = append(cl.recs, rec)
	for _, cb := range cl.listeners {
		cb(rec)
	}
}

// AddListener registers a callback fired once per subsequent change record
func (cl *ChangeLog) AddListener(cb func(ChangeRecord)) {
	cl.listeners = append(cl.listeners, cb)
}

// LastSeq returns the sequence number of the most recent record, 0 when empty
func (cl *ChangeLog) LastSeq() int {
	return cl.nxtSeq - 1
}

// Records returns a copy of every change record, in sequence order
func (cl *ChangeLog) Records() []ChangeRecord {
	recs := make([]ChangeRecord, len(cl.recs))
	copy(recs, cl.recs)
	return recs
}

// Since returns copies of the records with sequence numbers greater than
// seq, the polling half of the notification contract
func (cl *ChangeLog) Since(seq int) []ChangeRecord {
	recs := make([]ChangeRecord, 0)
	for _, rec := range cl.recs {
		if rec.Seq > seq {
			recs = append(recs, rec)
		}
	}
	return recs
}

// ChangeLogDict is the serializable form of a change log
type ChangeLogDict struct {
	Changes []ChangeRecord `json:"changes" yaml:"changes"`
}

// WriteToFile stores the change log to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of
// this name.
func (cl *ChangeLog) WriteToFile(filename string) error {
	cld := ChangeLogDict{Changes: cl.Records()}

	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(cld)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(cld, "", "\t")
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
