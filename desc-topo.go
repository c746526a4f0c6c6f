package nettopogen

// desc-topo.go provides serializable descriptions of topologies and the
// transformations between descriptions and live Topology structures.
// Descriptions are completely pointer free so that what is serialized is
// exactly what is deserialized.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// NodeDesc is a serializable description of one device.  Kind is held as a
// string so that description files stay readable and editable by hand.
type NodeDesc struct {
	ID      string            `json:"id" yaml:"id"`
	Kind    string            `json:"kind" yaml:"kind"`
	Up      bool              `json:"up" yaml:"up"`
	Placed  bool              `json:"placed" yaml:"placed"`
	X       float64           `json:"x" yaml:"x"`
	Y       float64           `json:"y" yaml:"y"`
	Intrfcs map[string]string `json:"intrfcs,omitempty" yaml:"intrfcs,omitempty"`
}

// LinkDesc is a serializable description of one link, QoS attributes and
// availability included
type LinkDesc struct {
	A        string  `json:"a" yaml:"a"`
	B        string  `json:"b" yaml:"b"`
	Delay    float64 `json:"delay" yaml:"delay"`
	Bndwdth  float64 `json:"bndwdth" yaml:"bndwdth"`
	Loss     float64 `json:"loss" yaml:"loss"`
	Up       bool    `json:"up" yaml:"up"`
	Inferred bool    `json:"inferred" yaml:"inferred"`
}

// TopoDesc is the serializable description of a whole topology, failed
// devices and links included
type TopoDesc struct {
	Name  string     `json:"name" yaml:"name"`
	Nodes []NodeDesc `json:"nodes" yaml:"nodes"`
	Links []LinkDesc `json:"links" yaml:"links"`
}

// CreateTopoDesc captures a live topology into a description.  Nodes and
// links appear in sorted order so that repeated captures of the same
// topology serialize identically.
func CreateTopoDesc(tpg *Topology) *TopoDesc {
	td := new(TopoDesc)
	td.Name = tpg.Name()
	td.Nodes = make([]NodeDesc, 0)
	td.Links = make([]LinkDesc, 0)

	for _, id := range tpg.AllNodeIDs() {
		nd, _ := tpg.NodeAny(id)
		ndd := NodeDesc{ID: nd.ID, Kind: DevKindToStr(nd.Kind), Up: nd.Up}
		if nd.Coord != nil {
			ndd.Placed = true
			ndd.X = nd.Coord.X
			ndd.Y = nd.Coord.Y
		}
		if len(nd.Intrfcs) > 0 {
			ndd.Intrfcs = make(map[string]string)
			for name, attrb := range nd.Intrfcs {
				ndd.Intrfcs[name] = attrb
			}
		}
		td.Nodes = append(td.Nodes, ndd)
	}

	for _, lnk := range tpg.AllLinks() {
		td.Links = append(td.Links, LinkDesc{
			A:        lnk.Key.A,
			B:        lnk.Key.B,
			Delay:    lnk.Delay,
			Bndwdth:  lnk.Bndwdth,
			Loss:     lnk.Loss,
			Up:       lnk.Up,
			Inferred: lnk.Inferred,
		})
	}

	return td
}

// BuildTopo instantiates a live topology from the description.  Device
// kinds must be recognized, link endpoints must name declared devices, and
// link attributes must satisfy the same validation AddLink performs.
// Availability flags are applied after construction so that the rebuilt
// topology reproduces failed elements.
func (td *TopoDesc) BuildTopo() (*Topology, error) {
	tpg := CreateTopo(td.Name)

	for _, ndd := range td.Nodes {
		kind := DevKindFromStr(ndd.Kind)
		if kind == UnknownDev {
			return nil, fmt.Errorf("node %s: unknown device kind %s: %w", ndd.ID, ndd.Kind, ErrInvalidReference)
		}
		if _, err := tpg.AddNode(ndd.ID, kind); err != nil {
			return nil, err
		}
		if ndd.Placed {
			if err := tpg.PlaceNode(ndd.ID, ndd.X, ndd.Y); err != nil {
				return nil, err
			}
		}
		if len(ndd.Intrfcs) > 0 {
			if err := tpg.SetIntrfcs(ndd.ID, ndd.Intrfcs); err != nil {
				return nil, err
			}
		}
	}

	for _, lnkd := range td.Links {
		var err error
		if lnkd.Inferred {
			_, err = tpg.AddInferredLink(lnkd.A, lnkd.B, lnkd.Delay, lnkd.Bndwdth, lnkd.Loss)
		} else {
			_, err = tpg.AddLink(lnkd.A, lnkd.B, lnkd.Delay, lnkd.Bndwdth, lnkd.Loss)
		}
		if err != nil {
			return nil, err
		}
	}

	// availability goes last, links first, so that node failures layer on
	// top of explicitly failed links
	for _, lnkd := range td.Links {
		if !lnkd.Up {
			if _, err := tpg.SetLinkStatus(lnkd.A, lnkd.B, false); err != nil {
				return nil, err
			}
		}
	}
	for _, ndd := range td.Nodes {
		if !ndd.Up {
			if _, err := tpg.SetNodeStatus(ndd.ID, false); err != nil {
				return nil, err
			}
		}
	}

	return tpg, nil
}

// WriteToFile stores the TopoDesc struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of
// this name.
func (td *TopoDesc) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*td)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*td, "", "\t")
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

// ReadTopoDesc deserializes a byte slice holding a representation of a
// TopoDesc struct.  If the input argument of dict (those bytes) is empty,
// the file whose name is given is read to acquire them.  A deserialized
// representation is returned, or an error if one is generated from a file
// read or the deserialization.
func ReadTopoDesc(topoFileName string, useYAML bool, dict []byte) (*TopoDesc, error) {
	var err error

	// if the dict slice of bytes is empty we get them from the file whose
	// name is an argument
	if len(dict) == 0 {
		fileInfo, err := os.Stat(topoFileName)
		if os.IsNotExist(err) || fileInfo.IsDir() {
			msg := fmt.Sprintf("topology %s does not exist or cannot be read", topoFileName)
			fmt.Println(msg)

			return nil, fmt.Errorf(msg)
		}
		dict, err = os.ReadFile(topoFileName)
		if err != nil {
			return nil, err
		}
	}

	example := TopoDesc{}

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

// A TopoDescDict holds instances of TopoDesc structures, in a map whose
// key is a name for the topology.  Used to store pre-built instances of
// networks.
type TopoDescDict struct {
	DictName string              `json:"dictname" yaml:"dictname"`
	Descs    map[string]TopoDesc `json:"descs" yaml:"descs"`
}

// CreateTopoDescDict is a constructor.  Saves the dictionary name,
// initializes the TopoDesc map.
func CreateTopoDescDict(name string) *TopoDescDict {
	tdd := new(TopoDescDict)
	tdd.DictName = name
	tdd.Descs = make(map[string]TopoDesc)

	return tdd
}

// AddTopoDesc includes a TopoDesc into the dictionary, optionally returning
// an error if a TopoDesc with the same name has already been included
func (tdd *TopoDescDict) AddTopoDesc(td *TopoDesc, overwrite bool) error {
	if !overwrite {
		_, present := tdd.Descs[td.Name]
		if present {
			return fmt.Errorf("attempt to overwrite TopoDesc %s in TopoDescDict", td.Name)
		}
	}

	tdd.Descs[td.Name] = *td

	return nil
}

// RecoverTopoDesc returns a copy (if one exists) of the TopoDesc with name
// equal to the input argument name.  Returns a boolean indicating whether
// the entry was actually found.
func (tdd *TopoDescDict) RecoverTopoDesc(name string) (*TopoDesc, bool) {
	td, present := tdd.Descs[name]
	if present {
		return &td, true
	}

	return nil, false
}

// WriteToFile serializes the TopoDescDict and writes to the file whose name
// is given as an input argument.  Extension of the file name selects
// whether serialization is to json or to yaml format.
func (tdd *TopoDescDict) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*tdd)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*tdd, "", "\t")
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

// ReadTopoDescDict deserializes a slice of bytes into a TopoDescDict.  If
// the input arg of bytes is empty, the file whose name is given as an
// argument is read.  Error returned if any part of the process generates
// the error.
func ReadTopoDescDict(topoDescDictFileName string, useYAML bool, dict []byte) (*TopoDescDict, error) {
	var err error

	// read from the file only if the byte slice is empty
	if len(dict) == 0 {
		fileInfo, err := os.Stat(topoDescDictFileName)
		if os.IsNotExist(err) || fileInfo.IsDir() {
			msg := fmt.Sprintf("topology dict %s does not exist or cannot be read", topoDescDictFileName)
			fmt.Println(msg)

			return nil, fmt.Errorf(msg)
		}
		dict, err = os.ReadFile(topoDescDictFileName)
		if err != nil {
			return nil, err
		}
	}
	example := TopoDescDict{}

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

// ReportErrs transforms a list of errors and transforms the non-nil ones
// into a single error with comma-separated report of all the constituent
// errors, and returns it
func ReportErrs(errs []error) error {
	err_msg := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			err_msg = append(err_msg, err.Error())
		}
	}
	if len(err_msg) == 0 {
		return nil
	}

	return errors.New(strings.Join(err_msg, ","))
}

// CheckReadableFiles probes the file system to ensure that every one of
// the argument filenames exists and is readable
func CheckReadableFiles(names []string) (bool, error) {
	return CheckFiles(names, true)
}

// CheckOutputFiles probes the file system to ensure that every argument
// filename can be written
func CheckOutputFiles(names []string) (bool, error) {
	return CheckFiles(names, false)
}

// CheckFiles probes the file system for permitted access to all the
// argument filenames, optionally checking also for the existence of those
// files for the purposes of reading them
func CheckFiles(names []string, checkExistence bool) (bool, error) {
	// make sure that the directory of each named file exists
	errs := make([]error, 0)

	for _, name := range names {
		if len(name) == 0 {
			continue
		}

		// split off the directory portion of the path
		directory, _ := filepath.Split(name)
		if len(directory) == 0 {
			continue
		}
		if _, err := os.Stat(directory); err != nil {
			errs = append(errs, err)
		}
	}

	// if required, check for the reachability and existence of each file
	if checkExistence {
		for _, name := range names {
			if len(name) == 0 {
				continue
			}
			if _, err := os.Stat(name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) == 0 {
		return true, nil
	}

	rtnerr := ReportErrs(errs)
	return false, rtnerr
}
