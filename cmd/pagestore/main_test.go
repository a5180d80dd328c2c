package main

import (
	"testing"

	"github.com/nainya/pagestore/pkg/schema"
)

func TestParseFields(t *testing.T) {
	fields, err := parseFields("id:u32,name:varchar:16,score:f64")
	if err != nil {
		t.Fatalf("parseFields: %v", err)
	}
	want := []schema.Field{
		{Name: "id", Type: schema.U32},
		{Name: "name", Type: schema.Varchar, Length: 16},
		{Name: "score", Type: schema.F64},
	}
	if len(fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(fields), len(want))
	}
	for i := range want {
		if fields[i].Name != want[i].Name || fields[i].Type != want[i].Type || fields[i].Length != want[i].Length {
			t.Fatalf("field %d: got %+v, want %+v", i, fields[i], want[i])
		}
	}
}

func TestParseFieldsRejectsMalformedSpec(t *testing.T) {
	if _, err := parseFields("id"); err == nil {
		t.Fatal("expected error for missing type")
	}
	if _, err := parseFields("id:bogus"); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if _, err := parseFields("name:varchar:notanumber"); err == nil {
		t.Fatal("expected error for non-numeric length")
	}
}

func TestParseKey(t *testing.T) {
	k, err := parseKey("42")
	if err != nil {
		t.Fatalf("parseKey: %v", err)
	}
	if k != 42 {
		t.Fatalf("got %d, want 42", k)
	}
	if _, err := parseKey("-1"); err == nil {
		t.Fatal("expected error for negative key")
	}
	if _, err := parseKey("notanumber"); err == nil {
		t.Fatal("expected error for non-numeric key")
	}
}

func TestAtoiOrZero(t *testing.T) {
	if got := atoiOrZero("5"); got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
	if got := atoiOrZero("not a number"); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
}

func TestSidecarRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fields := []schema.Field{
		{Name: "id", Type: schema.U32},
		{Name: "sku", Type: schema.Varchar, Length: 16},
	}
	if err := writeSchemaSidecar(dir, "widgets", fields); err != nil {
		t.Fatalf("writeSchemaSidecar: %v", err)
	}
	sch, err := readSchemaSidecar(dir, "widgets")
	if err != nil {
		t.Fatalf("readSchemaSidecar: %v", err)
	}
	if _, ok := sch.PrimaryKey(schema.Record{"id": uint32(1), "sku": "W-1"}); !ok {
		t.Fatal("expected schema to recognize id as primary key")
	}
}

func TestReadSchemaSidecarMissingFails(t *testing.T) {
	if _, err := readSchemaSidecar(t.TempDir(), "ghost"); err == nil {
		t.Fatal("expected error for missing sidecar")
	}
}
