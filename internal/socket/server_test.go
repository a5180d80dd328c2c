package socket

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"

	"github.com/nainya/pagestore/pkg/database"
	"github.com/nainya/pagestore/pkg/table"
)

func testServer(t *testing.T) (*Server, net.Listener) {
	t.Helper()
	db, err := database.Connect(t.TempDir(), database.Options{TableOptions: table.Options{ImmediateSync: true}})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s := NewServer(db, nil, nil)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go s.Serve(lis)
	t.Cleanup(func() { s.Close() })
	return s, lis
}

func roundTrip(t *testing.T, lis net.Listener, req Request) Response {
	t.Helper()
	conn, err := net.Dial("tcp", lis.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	enc, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := conn.Write(append(enc, '\n')); err != nil {
		t.Fatalf("Write: %v", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatalf("no response line: %v", scanner.Err())
	}
	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal response: %v", err)
	}
	return resp
}

func testFields() []FieldSpec {
	return []FieldSpec{
		{Name: "id", Type: "u32"},
		{Name: "name", Type: "varchar", Length: 16},
	}
}

func TestCreateTableInsertLookup(t *testing.T) {
	_, lis := testServer(t)

	resp := roundTrip(t, lis, Request{Op: "create_table", Table: "people", Fields: testFields()})
	if !resp.OK {
		t.Fatalf("create_table failed: %+v", resp)
	}

	resp = roundTrip(t, lis, Request{Op: "insert", Table: "people", Record: map[string]any{"id": float64(1), "name": "ada"}})
	if !resp.OK {
		t.Fatalf("insert failed: %+v", resp)
	}

	key := uint32(1)
	resp = roundTrip(t, lis, Request{Op: "lookup", Table: "people", Key: &key})
	if !resp.OK || resp.Record["name"] != "ada" {
		t.Fatalf("unexpected lookup response: %+v", resp)
	}
}

func TestScanEqualsFilterMatchesNumericField(t *testing.T) {
	_, lis := testServer(t)

	resp := roundTrip(t, lis, Request{Op: "create_table", Table: "people", Fields: testFields()})
	if !resp.OK {
		t.Fatalf("create_table failed: %+v", resp)
	}
	for i := 1; i <= 3; i++ {
		resp = roundTrip(t, lis, Request{Op: "insert", Table: "people",
			Record: map[string]any{"id": float64(i), "name": "p"}})
		if !resp.OK {
			t.Fatalf("insert %d failed: %+v", i, resp)
		}
	}

	// The equals predicate travels as JSON, so the number reaches the
	// server as float64; it must still match the uint32 id column.
	resp = roundTrip(t, lis, Request{Op: "scan", Table: "people",
		Equals: map[string]any{"id": float64(2)}})
	if !resp.OK {
		t.Fatalf("scan failed: %+v", resp)
	}
	if len(resp.Records) != 1 {
		t.Fatalf("expected 1 row matching id=2, got %+v", resp.Records)
	}
}

func TestUpdateViaSocketKeepsUnchangedPrimaryKey(t *testing.T) {
	_, lis := testServer(t)

	resp := roundTrip(t, lis, Request{Op: "create_table", Table: "people", Fields: testFields()})
	if !resp.OK {
		t.Fatalf("create_table failed: %+v", resp)
	}
	resp = roundTrip(t, lis, Request{Op: "insert", Table: "people",
		Record: map[string]any{"id": float64(1), "name": "ada"}})
	if !resp.OK {
		t.Fatalf("insert failed: %+v", resp)
	}

	// Echoing the unchanged id back in the delta, as a client resending
	// the whole record would, is not a primary key modification.
	key := uint32(1)
	resp = roundTrip(t, lis, Request{Op: "update", Table: "people", Key: &key,
		Delta: map[string]any{"id": float64(1), "name": "grace"}})
	if !resp.OK {
		t.Fatalf("update with echoed key failed: %+v", resp)
	}
	if resp.Old["name"] != "ada" || resp.New["name"] != "grace" {
		t.Fatalf("unexpected update response: %+v", resp)
	}

	resp = roundTrip(t, lis, Request{Op: "update", Table: "people", Key: &key,
		Delta: map[string]any{"id": float64(2)}})
	if resp.OK || resp.ErrorKind != "ImmutablePrimaryKey" {
		t.Fatalf("expected ImmutablePrimaryKey for a changed key, got %+v", resp)
	}
}

func TestLookupUnknownTableReturnsNotFound(t *testing.T) {
	_, lis := testServer(t)
	key := uint32(1)
	resp := roundTrip(t, lis, Request{Op: "lookup", Table: "ghost", Key: &key})
	if resp.OK || resp.ErrorKind != "NotFound" {
		t.Fatalf("expected NotFound, got %+v", resp)
	}
}

func TestCreateTableThenDuplicateFails(t *testing.T) {
	_, lis := testServer(t)
	resp := roundTrip(t, lis, Request{Op: "create_table", Table: "people", Fields: testFields()})
	if !resp.OK {
		t.Fatalf("create_table failed: %+v", resp)
	}
	resp = roundTrip(t, lis, Request{Op: "create_table", Table: "people", Fields: testFields()})
	if resp.OK || resp.ErrorKind != "AlreadyExists" {
		t.Fatalf("expected AlreadyExists, got %+v", resp)
	}
}

func TestListTables(t *testing.T) {
	_, lis := testServer(t)
	roundTrip(t, lis, Request{Op: "create_table", Table: "people", Fields: testFields()})
	roundTrip(t, lis, Request{Op: "create_table", Table: "pets", Fields: testFields()})

	resp := roundTrip(t, lis, Request{Op: "list_tables"})
	if !resp.OK || len(resp.Tables) != 2 {
		t.Fatalf("expected 2 tables, got %+v", resp)
	}
}
