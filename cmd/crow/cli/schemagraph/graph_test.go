package schemagraph

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/drugcrow/crow/cmd/crow/cli/codec"
	"github.com/drugcrow/crow/cmd/crow/cli/schema"
)

func col(name, typ, comment string) schema.Column {
	return schema.Column{ColumnName: name, DataType: typ, Comment: comment}
}

func sampleTables() []schema.Table {
	return []schema.Table{
		{TableName: "molecule_dictionary", Columns: []schema.Column{
			col("MOLREGNO", "BIGINT", "Internal Primary Key for the molecule"),
			col("PREF_NAME", "VARCHAR(255)", "Preferred name for the molecule"),
			col("CHEMBL_ID", "VARCHAR(20)", "ChEMBL identifier"),
		}},
		{TableName: "COMPOUND_PROPERTIES", Columns: []schema.Column{
			col("MOLREGNO", "BIGINT", "Foreign key to the molecule_dictionary table"),
			col("ALOGP", "NUMERIC(9,2)", "Calculated ALogP"),
		}},
		{TableName: "DOCS", Columns: []schema.Column{
			col("DOC_ID", "BIGINT", "Unique ID for the document"),
			col("TITLE", "VARCHAR(500)", "Document title"),
		}},
		{TableName: "COMPOUND_RECORDS", Columns: []schema.Column{
			col("RECORD_ID", "BIGINT", "Unique ID for a compound record"),
			col("MOLREGNO", "BIGINT", "Foreign key to compounds table"),
			col("DOC_ID", "BIGINT", "Foreign key to the doc table."),
		}},
		{TableName: "DRUG_WARNING", Columns: []schema.Column{
			col("WARNING_ID", "BIGINT", "Primary key"),
			col("RECORD_ID", "BIGINT", "Foreign key to the compound_records table"),
			col("WARNING_TYPE", "VARCHAR(20)", "Withdrawn or black box"),
		}},
		{TableName: "ISOLATED", Columns: []schema.Column{
			col("THING", "INT", ""),
		}},
	}
}

func TestBuild_Stats(t *testing.T) {
	t.Parallel()

	gr := Build(sampleTables(), nil)
	want := Stats{Tables: 6, Columns: 10, Edges: 14, ForeignLinks: 3, Unresolved: 1}
	if diff := cmp.Diff(want, gr.Stats()); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"compounds"}, gr.Unresolved); diff != "" {
		t.Errorf("Unresolved mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_ForeignLinks(t *testing.T) {
	t.Parallel()

	gr := Build(sampleTables(), nil)
	var got []Link
	for _, l := range gr.Links() {
		if l.Kind == codec.EdgeForeign {
			got = append(got, l)
		}
	}
	want := []Link{
		{Column: "MOLREGNO", Table: "MOLECULE_DICTIONARY", Kind: codec.EdgeForeign},
		// "doc" resolves to DOCS through its plural form.
		{Column: "DOC_ID", Table: "DOCS", Kind: codec.EdgeForeign},
		{Column: "RECORD_ID", Table: "COMPOUND_RECORDS", Kind: codec.EdgeForeign},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("foreign links mismatch (-want +got):\n%s", diff)
	}
}

func TestForeignKeyTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		comment string
		want    string
		ok      bool
	}{
		{"Foreign key to the molecule_dictionary table", "molecule_dictionary", true},
		{"foreign key to chembl.docs.", "docs", true},
		{"FOREIGN KEY TO ASSAYS", "assays", true},
		{"Primary key", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := foreignKeyTarget(tt.comment)
		if got != tt.want || ok != tt.ok {
			t.Errorf("foreignKeyTarget(%q) = %q, %v; want %q, %v", tt.comment, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNode_ColumnBeforeTable(t *testing.T) {
	t.Parallel()

	gr := Build([]schema.Table{
		{TableName: "TARGET", Columns: []schema.Column{col("TARGET", "INT", "")}},
	}, nil)
	n, ok := gr.Node("target")
	if !ok || n.Kind != KindColumn {
		t.Fatalf("Node(target) = %+v, %v; want column", n, ok)
	}
	tn, ok := gr.Table("target")
	if !ok || tn.Kind != KindTable {
		t.Fatalf("Table(target) = %+v, %v; want table", tn, ok)
	}
}

func TestShortestPath(t *testing.T) {
	t.Parallel()

	gr := Build(sampleTables(), nil)
	steps, err := gr.ShortestPath("warning_type", "alogp")
	if err != nil {
		t.Fatalf("ShortestPath: %v", err)
	}
	want := []Step{
		{"WARNING_TYPE", KindColumn},
		{"DRUG_WARNING", KindTable},
		{"RECORD_ID", KindColumn},
		{"COMPOUND_RECORDS", KindTable},
		{"MOLREGNO", KindColumn},
		{"COMPOUND_PROPERTIES", KindTable},
		{"ALOGP", KindColumn},
	}
	if diff := cmp.Diff(want, steps); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	if got := TablesOn(steps); !cmp.Equal(got, []string{"DRUG_WARNING", "COMPOUND_RECORDS", "COMPOUND_PROPERTIES"}) {
		t.Errorf("TablesOn = %v", got)
	}
	if got := FormatSteps(steps[:3]); got != "WARNING_TYPE -> DRUG_WARNING -> RECORD_ID" {
		t.Errorf("FormatSteps = %q", got)
	}
}

func TestShortestPath_TieBreak(t *testing.T) {
	t.Parallel()

	tables := []schema.Table{
		{TableName: "ZETA", Columns: []schema.Column{col("X", "INT", ""), col("Y", "INT", "")}},
		{TableName: "ALPHA", Columns: []schema.Column{col("X", "INT", ""), col("Y", "INT", "")}},
	}
	for i := 0; i < 5; i++ {
		steps, err := Build(tables, nil).ShortestPath("X", "Y")
		if err != nil {
			t.Fatalf("ShortestPath: %v", err)
		}
		if got := FormatSteps(steps); got != "X -> ALPHA -> Y" {
			t.Fatalf("run %d: path = %q, want X -> ALPHA -> Y", i, got)
		}
	}
}

func TestShortestPath_Errors(t *testing.T) {
	t.Parallel()

	gr := Build(sampleTables(), nil)

	if _, err := gr.ShortestPath("NOPE", "ALOGP"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("unknown start: err = %v, want ErrUnknownNode", err)
	}
	if _, err := gr.ShortestPath("ALOGP", "NOPE"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("unknown end: err = %v, want ErrUnknownNode", err)
	}
	if _, err := gr.ShortestPath("THING", "ALOGP"); !errors.Is(err, ErrNoPath) {
		t.Errorf("disconnected: err = %v, want ErrNoPath", err)
	}

	steps, err := gr.ShortestPath("alogp", "ALOGP")
	if err != nil || len(steps) != 1 {
		t.Errorf("same node: steps=%v err=%v", steps, err)
	}
}

func nodeSteps(gr *Graph) []Step {
	var out []Step
	for _, n := range gr.Nodes() {
		out = append(out, Step{Name: n.Name, Kind: n.Kind})
	}
	return out
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	gr := Build(sampleTables(), nil)
	path := filepath.Join(t.TempDir(), "graph.bin")
	if err := gr.SaveFile(path, "v0.4.0", "digest"); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	loaded, meta, err := LoadFile(path, "v0.9.1")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if meta.Producer != "v0.4.0" || meta.SchemaDigest != "digest" {
		t.Errorf("meta = %+v", meta)
	}
	if diff := cmp.Diff(nodeSteps(gr), nodeSteps(loaded)); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(gr.Links(), loaded.Links()); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(gr.Stats(), loaded.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	want, _ := gr.ShortestPath("WARNING_TYPE", "ALOGP")
	got, err := loaded.ShortestPath("WARNING_TYPE", "ALOGP")
	if err != nil {
		t.Fatalf("ShortestPath after load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("path after load mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_VersionCheck(t *testing.T) {
	t.Parallel()

	gr := Build(sampleTables(), nil)
	var buf bytes.Buffer
	if err := gr.Save(&buf, "v1.2.0", ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	body := buf.Bytes()

	if _, _, err := Decode(body, "v2.0.0"); !errors.Is(err, ErrIncompatible) {
		t.Errorf("major mismatch: err = %v, want ErrIncompatible", err)
	}
	if _, _, err := Decode(body, "v1.9.3"); err != nil {
		t.Errorf("same major: %v", err)
	}
	if _, _, err := Load(bytes.NewReader(body), "dev"); err != nil {
		t.Errorf("dev reader: %v", err)
	}
}

func TestDecode_Corrupt(t *testing.T) {
	t.Parallel()

	if _, _, err := Decode([]byte("not a graph"), "dev"); err == nil {
		t.Error("expected error for garbage input")
	}
	if _, _, err := Decode(codec.NewBody(), "dev"); err == nil {
		t.Error("expected error for blob without frames")
	}
}

func TestWriteDOT(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Build(sampleTables(), nil).WriteDOT(&buf); err != nil {
		t.Fatalf("WriteDOT: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"graph schema {", "table_DRUG_WARNING", "column_WARNING_TYPE", "--", "shape=box"} {
		if !strings.Contains(out, want) {
			t.Errorf("DOT output missing %q", want)
		}
	}
}
