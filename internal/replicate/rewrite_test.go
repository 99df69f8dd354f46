package replicate

import (
	"testing"

	"cellenics/internal/entitymodel"
	"cellenics/internal/table/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entity(t *testing.T, typ entitymodel.EntityType) entitymodel.Entity {
	t.Helper()
	e, ok := entitymodel.Default().Entity(typ)
	require.True(t, ok)
	return e
}

func sampleRecord() core.Record {
	return core.Record{
		"experimentId": "e1",
		"projectUuid":  "p1",
		"ids":          []any{"s1", "s2"},
		"createdDate":  "2021-01-01",
		"count":        core.Number("2"),
		"samples": map[string]any{
			"s1": map[string]any{
				"uuid": "s1", "name": "WT", "projectUuid": "p1",
				"files": map[string]any{
					"features10x": map[string]any{"sampleFileId": "f1", "valid": true},
					"barcodes10x": map[string]any{"sampleFileId": "f2"},
				},
				"metadata": map[string]any{"Track_1": "s1"},
			},
			"s2": map[string]any{"uuid": "s2", "name": "KO", "projectUuid": "p1", "files": map[string]any{}},
		},
	}
}

func TestRewriteRecordReferenceClosure(t *testing.T) {
	ns := Namespace("ns")
	ent := entity(t, entitymodel.Sample)
	in := sampleRecord()
	before := in.Clone()

	out := RewriteRecord(in, ent, ns)
	assert.Equal(t, before, in, "input must not be modified")

	for _, ref := range ent.References {
		var want []string
		for _, id := range ref.Path.Collect(in) {
			want = append(want, RewriteID(id, ns))
		}
		assert.Equal(t, want, ref.Path.Collect(out), ref.Path.String())
	}

	// Non-reference fields are untouched.
	assert.Equal(t, "2021-01-01", out["createdDate"])
	assert.Equal(t, core.Number("2"), out["count"])
	s1 := out["samples"].(map[string]any)["ns-s1"].(map[string]any)
	assert.Equal(t, "WT", s1["name"])
	assert.Equal(t, map[string]any{"Track_1": "s1"}, s1["metadata"], "values outside reference paths are data")
	assert.Equal(t, true, s1["files"].(map[string]any)["features10x"].(map[string]any)["valid"])
	assert.NotContains(t, out["samples"], "s1")

	// Pure: a second rewrite of the same input gives the same result.
	assert.Equal(t, out, RewriteRecord(in, ent, ns))
}

func TestRewriteRecordPassesThroughAbsentValues(t *testing.T) {
	ent := entity(t, entitymodel.Experiment)
	out := RewriteRecord(core.Record{"experimentId": "e1", "projectId": nil}, ent, "ns")
	assert.Equal(t, "ns-e1", out["experimentId"])
	assert.Nil(t, out["projectId"])
	assert.Contains(t, out, "projectId")

	out = RewriteRecord(core.Record{"experimentId": "e1", "projectId": core.Number("7")}, ent, "ns")
	assert.Equal(t, core.Number("7"), out["projectId"], "non-string ids pass through")

	out = RewriteRecord(core.Record{"experimentId": "e1"}, ent, "ns")
	assert.NotContains(t, out, "projectId", "absent fields are not created")
}

func TestRewriteRecordSelfReferences(t *testing.T) {
	ent := entity(t, entitymodel.Project)
	in := core.Record{
		"projectUuid": "p1",
		"projects": map[string]any{
			"uuid":        "p1",
			"experiments": []any{"e1"},
			"samples":     []any{"s1"},
			"name":        "p1",
		},
	}
	out := RewriteRecord(in, ent, "ns")
	inner := out["projects"].(map[string]any)
	assert.Equal(t, out["projectUuid"], inner["uuid"], "own id and embedded self reference agree")
	assert.Equal(t, "p1", inner["name"], "names equal to ids are still data")
	assert.Equal(t, []any{"ns-e1"}, inner["experiments"])
}

func TestRewriteKey(t *testing.T) {
	layout := []entitymodel.EntityType{entitymodel.Project, entitymodel.Sample}
	assert.Equal(t, "ns-p1/ns-s1/matrix.mtx.gz", RewriteKey("p1/s1/matrix.mtx.gz", layout, "ns"))
	assert.Equal(t, "ns-p1", RewriteKey("p1", layout, "ns"))
	assert.Equal(t, "ns-e1/r.rds", RewriteKey("e1/r.rds", layout[:1], "ns"))

	// The object name is never taken for an id.
	assert.Equal(t, "ns-p1/readme.txt", RewriteKey("p1/readme.txt", layout, "ns"))
	assert.Equal(t, "ns-e1", RewriteKey("e1", layout[:1], "ns"))
	assert.Equal(t, "ns-p1/ns-s1/raw/matrix.mtx.gz", RewriteKey("p1/s1/raw/matrix.mtx.gz", layout, "ns"))
	assert.Equal(t, "ns-p1//matrix.mtx.gz", RewriteKey("p1//matrix.mtx.gz", layout, "ns"))
}

func TestGrantWritersMergesExisting(t *testing.T) {
	rec := core.Record{"rbac_can_write": core.StringSet{"owner", "user-1"}}
	grantWriters(rec, []string{"user-1", "user-2"})
	assert.Equal(t, core.StringSet{"owner", "user-1", "user-2"}, rec["rbac_can_write"])

	rec = core.Record{"rbac_can_write": []any{"owner"}}
	grantWriters(rec, []string{"user-2"})
	assert.Equal(t, core.StringSet{"owner", "user-2"}, rec["rbac_can_write"])

	rec = core.Record{}
	grantWriters(rec, nil)
	assert.NotContains(t, rec, "rbac_can_write")
}
