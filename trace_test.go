package nettopogen

// trace_test.go exercises the change log contract: sequencing, polling, and
// synchronous listener fan-out

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestChangeLogSequencesMutations(t *testing.T) {
	tpg := CreateTopo("t")
	addRouters(t, tpg, "A", "B")
	addDelayLink(t, tpg, "A", "B", 10.0)

	recs := tpg.ChgLog().Records()
	require.Len(t, recs, 3)
	assert.Equal(t, 3, tpg.ChgLog().LastSeq())

	for idx, rec := range recs {
		assert.Equal(t, idx+1, rec.Seq)
		assert.Equal(t, idx+1, rec.Version)
	}
	assert.Equal(t, OpAddNode, recs[0].Op)
	assert.Equal(t, []string{"A"}, recs[0].Nodes)
	assert.Equal(t, OpAddLink, recs[2].Op)
	assert.Equal(t, []LinkKey{CreateLinkKey("A", "B")}, recs[2].Links)
}

func TestChangeLogSince(t *testing.T) {
	tpg := CreateTopo("t")
	addRouters(t, tpg, "A", "B", "C")

	recs := tpg.ChgLog().Since(2)
	require.Len(t, recs, 1)
	assert.Equal(t, 3, recs[0].Seq)

	assert.Empty(t, tpg.ChgLog().Since(3))
	assert.Len(t, tpg.ChgLog().Since(0), 3)
}

func TestChangeLogListenerFiresPerMutation(t *testing.T) {
	tpg := CreateTopo("t")

	seen := make([]ChangeRecord, 0)
	tpg.ChgLog().AddListener(func(rec ChangeRecord) {
		seen = append(seen, rec)
	})

	addRouters(t, tpg, "A", "B")
	addDelayLink(t, tpg, "A", "B", 10.0)
	_, err := tpg.SetLinkStatus("A", "B", false)
	require.NoError(t, err)

	require.Len(t, seen, 4)
	assert.Equal(t, OpLinkStatus, seen[3].Op)
	assert.Equal(t, 4, seen[3].Seq)
}

func TestChangeRecordStampsTimeSource(t *testing.T) {
	tpg := CreateTopo("t")
	tpg.SetTimeSource(func() float64 { return 42.5 })
	addRouters(t, tpg, "A")

	recs := tpg.ChgLog().Records()
	require.Len(t, recs, 1)
	assert.Equal(t, 42.5, recs[0].Time)

	tpg.SetTimeSource(nil)
	addRouters(t, tpg, "B")
	recs = tpg.ChgLog().Records()
	assert.Equal(t, 0.0, recs[1].Time)
}

func TestChangeLogWriteToFile(t *testing.T) {
	tpg := CreateTopo("t")
	addRouters(t, tpg, "A", "B")
	addDelayLink(t, tpg, "A", "B", 10.0)

	dir := t.TempDir()

	yamlFile := filepath.Join(dir, "changes.yaml")
	require.NoError(t, tpg.ChgLog().WriteToFile(yamlFile))
	bytes, err := os.ReadFile(yamlFile)
	require.NoError(t, err)
	fromYAML := ChangeLogDict{}
	require.NoError(t, yaml.Unmarshal(bytes, &fromYAML))
	assert.Equal(t, tpg.ChgLog().Records(), fromYAML.Changes)

	jsonFile := filepath.Join(dir, "changes.json")
	require.NoError(t, tpg.ChgLog().WriteToFile(jsonFile))
	bytes, err = os.ReadFile(jsonFile)
	require.NoError(t, err)
	fromJSON := ChangeLogDict{}
	require.NoError(t, json.Unmarshal(bytes, &fromJSON))
	assert.Equal(t, tpg.ChgLog().Records(), fromJSON.Changes)
}
