package schema

import (
	"testing"

	"github.com/nainya/pagestore/pkg/errs"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := New([]Field{
		{Name: "id", Type: U32},
		{Name: "age", Type: I32},
		{Name: "balance", Type: F64},
		{Name: "active", Type: Bool},
		{Name: "name", Type: Varchar, Length: 16},
		{Name: "blob", Type: Binary, Length: 4},
		{Name: "meta", Type: JSON, Length: 32},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewComputesRowSizeByAccumulation(t *testing.T) {
	s := testSchema(t)
	want := 4 + 4 + 8 + 1 + 16 + 4 + 32
	if s.RowSize() != want {
		t.Fatalf("RowSize() = %d, want %d", s.RowSize(), want)
	}
}

func TestNewRejectsEmptyFieldList(t *testing.T) {
	if _, err := New(nil); !errs.Is(err, errs.InvalidSchema) {
		t.Fatalf("expected InvalidSchema, got %v", err)
	}
}

func TestNewRejectsDuplicateFieldNames(t *testing.T) {
	_, err := New([]Field{
		{Name: "id", Type: U32},
		{Name: "id", Type: I32},
	})
	if !errs.Is(err, errs.InvalidSchema) {
		t.Fatalf("expected InvalidSchema, got %v", err)
	}
}

func TestNewRejectsNonNumericPrimaryKey(t *testing.T) {
	_, err := New([]Field{
		{Name: "id", Type: Varchar, Length: 8},
	})
	if !errs.Is(err, errs.InvalidSchema) {
		t.Fatalf("expected InvalidSchema, got %v", err)
	}
}

func TestNewRejectsVariableFieldWithoutLength(t *testing.T) {
	_, err := New([]Field{
		{Name: "id", Type: U32},
		{Name: "name", Type: Varchar},
	})
	if !errs.Is(err, errs.InvalidSchema) {
		t.Fatalf("expected InvalidSchema, got %v", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := testSchema(t)
	rec := Record{
		"id":      uint32(7),
		"age":     int32(-5),
		"balance": 12.5,
		"active":  true,
		"name":    "hello",
		"blob":    []byte{1, 2, 3, 4},
		"meta":    map[string]any{"k": "v"},
	}
	row, err := s.Encode(rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(row) != s.RowSize() {
		t.Fatalf("row length %d != RowSize %d", len(row), s.RowSize())
	}

	got, err := s.Decode(row)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got["id"] != uint32(7) || got["age"] != int32(-5) || got["active"] != true {
		t.Fatalf("decoded record mismatch: %+v", got)
	}
	if got["balance"] != 12.5 {
		t.Fatalf("balance mismatch: %v", got["balance"])
	}
	if got["name"] != "hello" {
		t.Fatalf("name mismatch: %v", got["name"])
	}
	blob := got["blob"].([]byte)
	if string(blob) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("blob mismatch: %v", blob)
	}
	meta, ok := got["meta"].(map[string]any)
	if !ok || meta["k"] != "v" {
		t.Fatalf("meta mismatch: %+v", got["meta"])
	}
}

func TestEncodeMissingFieldUsesZeroValue(t *testing.T) {
	s := testSchema(t)
	row, err := s.Encode(Record{"id": uint32(1)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := s.Decode(row)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got["age"] != int32(0) || got["active"] != false || got["name"] != "" {
		t.Fatalf("expected zero values for missing fields, got %+v", got)
	}
}

func TestVarcharTruncatesToDeclaredLength(t *testing.T) {
	s := testSchema(t)
	long := "this string is definitely longer than sixteen bytes"
	row, err := s.Encode(Record{"id": uint32(1), "name": long})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, _ := s.Decode(row)
	name := got["name"].(string)
	if len(name) >= 16 {
		t.Fatalf("expected name truncated below field length, got %q (%d bytes)", name, len(name))
	}
	if name != long[:15] {
		t.Fatalf("expected truncated prefix %q, got %q", long[:15], name)
	}
}

func TestJSONFieldReturnsNilOnParseFailure(t *testing.T) {
	s := testSchema(t)
	row, err := s.Encode(Record{"id": uint32(1)})
	if err != nil {
		t.Fatal(err)
	}
	// Corrupt the meta field's bytes so it no longer parses as JSON.
	off := 4 + 4 + 8 + 1 + 16 + 4
	copy(row[off:], []byte("not json"))
	got, err := s.Decode(row)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got["meta"] != nil {
		t.Fatalf("expected nil for unparseable JSON, got %v", got["meta"])
	}
}

func TestPrimaryKeyExtractsTreeKey(t *testing.T) {
	s := testSchema(t)
	rec := Record{"id": uint32(42)}
	pk, ok := s.PrimaryKey(rec)
	if !ok || pk != 42 {
		t.Fatalf("PrimaryKey: got %d, ok=%v", pk, ok)
	}

	row, err := s.Encode(rec)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.PrimaryKeyFromRow(row); got != 42 {
		t.Fatalf("PrimaryKeyFromRow: got %d", got)
	}
}

func TestDecodeRejectsWrongRowLength(t *testing.T) {
	s := testSchema(t)
	_, err := s.Decode(make([]byte, s.RowSize()-1))
	if !errs.Is(err, errs.InvalidRecord) {
		t.Fatalf("expected InvalidRecord, got %v", err)
	}
}
