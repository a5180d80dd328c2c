// pagestore is a one-shot CLI driving a database.Database directly: table
// lifecycle plus CRUD and range/scan.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nainya/pagestore/internal/logger"
	"github.com/nainya/pagestore/pkg/database"
	"github.com/nainya/pagestore/pkg/errs"
	"github.com/nainya/pagestore/pkg/schema"
	"github.com/nainya/pagestore/pkg/table"
)

// Exit codes: 0 success, 1 usage/parse error, 2 an operational error
// surfaced from the core.
const (
	exitOK    = 0
	exitUsage = 1
	exitError = 2
)

var dbDir = flag.String("db", "pagestore-data", "Database directory path")

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(exitUsage)
	}

	db, err := database.Connect(*dbDir, database.Options{
		Logger: logger.NewLogger(logger.Config{Level: "error"}),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitError)
	}
	cmd, rest := args[0], args[1:]
	code := dispatch(db, cmd, rest)
	// os.Exit skips deferred calls, so close (and flush) the tables here.
	if err := db.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if code == exitOK {
			code = exitError
		}
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: pagestore [-db dir] <command> [args]

commands:
  create-table <name> <field:type[:len],...>
  insert <name> <json-record>
  get <name> <key>
  range <name> <lo> <hi> [limit] [offset]
  scan <name> [limit] [offset]
  update <name> <key> <json-delta>
  delete <name> <key>
  count <name>
  drop-table <name>
  list-tables`)
}

func dispatch(db *database.Database, cmd string, args []string) int {
	switch cmd {
	case "create-table":
		return cmdCreateTable(db, args)
	case "insert":
		return cmdInsert(db, args)
	case "get":
		return cmdGet(db, args)
	case "range":
		return cmdRange(db, args)
	case "scan":
		return cmdScan(db, args)
	case "update":
		return cmdUpdate(db, args)
	case "delete":
		return cmdDelete(db, args)
	case "count":
		return cmdCount(db, args)
	case "drop-table":
		return cmdDropTable(db, args)
	case "list-tables":
		return cmdListTables(db)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		return exitUsage
	}
}

func cmdCreateTable(db *database.Database, args []string) int {
	if len(args) < 2 {
		usage()
		return exitUsage
	}
	name := args[0]
	fields, err := parseFields(args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitUsage
	}
	sch, err := schema.New(fields)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitError
	}
	if _, err := db.CreateTable(name, sch, table.Options{}); err != nil {
		return reportCoreError(err)
	}
	if err := writeSchemaSidecar(db.Dir(), name, fields); err != nil {
		fmt.Fprintln(os.Stderr, "warning: failed to write schema sidecar:", err)
	}
	fmt.Println("ok")
	return exitOK
}

func cmdInsert(db *database.Database, args []string) int {
	if len(args) < 2 {
		usage()
		return exitUsage
	}
	tbl, err := openTable(db, args[0])
	if err != nil {
		return reportCoreError(err)
	}
	var rec schema.Record
	if err := json.Unmarshal([]byte(args[1]), &rec); err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid JSON record:", err)
		return exitUsage
	}
	if err := tbl.Create(rec); err != nil {
		return reportCoreError(err)
	}
	fmt.Println("ok")
	return exitOK
}

func cmdGet(db *database.Database, args []string) int {
	if len(args) < 2 {
		usage()
		return exitUsage
	}
	tbl, err := openTable(db, args[0])
	if err != nil {
		return reportCoreError(err)
	}
	key, err := parseKey(args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitUsage
	}
	recs, err := tbl.Read(table.Criteria{Mode: table.Point, Key: key})
	if err != nil {
		return reportCoreError(err)
	}
	if len(recs) == 0 {
		fmt.Println("null")
		return exitOK
	}
	return printJSON(recs[0])
}

func cmdRange(db *database.Database, args []string) int {
	if len(args) < 3 {
		usage()
		return exitUsage
	}
	tbl, err := openTable(db, args[0])
	if err != nil {
		return reportCoreError(err)
	}
	lo, err1 := parseKey(args[1])
	hi, err2 := parseKey(args[2])
	if err1 != nil || err2 != nil {
		fmt.Fprintln(os.Stderr, "error: invalid range bounds")
		return exitUsage
	}
	crit := table.Criteria{Mode: table.Range, GTE: lo, LTE: hi}
	if len(args) > 3 {
		crit.Limit = atoiOrZero(args[3])
	}
	if len(args) > 4 {
		crit.Offset = atoiOrZero(args[4])
	}
	recs, err := tbl.Read(crit)
	if err != nil {
		return reportCoreError(err)
	}
	return printJSON(recs)
}

func cmdScan(db *database.Database, args []string) int {
	if len(args) < 1 {
		usage()
		return exitUsage
	}
	tbl, err := openTable(db, args[0])
	if err != nil {
		return reportCoreError(err)
	}
	crit := table.Criteria{Mode: table.Scan}
	if len(args) > 1 {
		crit.Limit = atoiOrZero(args[1])
	}
	if len(args) > 2 {
		crit.Offset = atoiOrZero(args[2])
	}
	recs, err := tbl.Read(crit)
	if err != nil {
		return reportCoreError(err)
	}
	return printJSON(recs)
}

func cmdUpdate(db *database.Database, args []string) int {
	if len(args) < 3 {
		usage()
		return exitUsage
	}
	tbl, err := openTable(db, args[0])
	if err != nil {
		return reportCoreError(err)
	}
	key, err := parseKey(args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitUsage
	}
	var delta schema.Record
	if err := json.Unmarshal([]byte(args[2]), &delta); err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid JSON delta:", err)
		return exitUsage
	}
	_, updated, err := tbl.Update(key, delta)
	if err != nil {
		return reportCoreError(err)
	}
	return printJSON(updated)
}

func cmdDelete(db *database.Database, args []string) int {
	if len(args) < 2 {
		usage()
		return exitUsage
	}
	tbl, err := openTable(db, args[0])
	if err != nil {
		return reportCoreError(err)
	}
	key, err := parseKey(args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitUsage
	}
	rec, err := tbl.Delete(key)
	if err != nil {
		return reportCoreError(err)
	}
	return printJSON(rec)
}

func cmdCount(db *database.Database, args []string) int {
	if len(args) < 1 {
		usage()
		return exitUsage
	}
	tbl, err := openTable(db, args[0])
	if err != nil {
		return reportCoreError(err)
	}
	n, err := tbl.Count()
	if err != nil {
		return reportCoreError(err)
	}
	fmt.Println(n)
	return exitOK
}

func cmdDropTable(db *database.Database, args []string) int {
	if len(args) < 1 {
		usage()
		return exitUsage
	}
	if err := db.DropTable(args[0]); err != nil {
		return reportCoreError(err)
	}
	_ = os.Remove(sidecarPath(db.Dir(), args[0]))
	fmt.Println("ok")
	return exitOK
}

func cmdListTables(db *database.Database) int {
	names, err := db.ListTables()
	if err != nil {
		return reportCoreError(err)
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return exitOK
}

func openTable(db *database.Database, name string) (*database.Table, error) {
	if t, ok := db.Table(name); ok {
		return t, nil
	}
	sch, err := readSchemaSidecar(db.Dir(), name)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, "pagestore: no schema sidecar for "+name, err)
	}
	return db.OpenTable(name, sch, table.Options{})
}

func parseFields(spec string) ([]schema.Field, error) {
	parts := strings.Split(spec, ",")
	fields := make([]schema.Field, 0, len(parts))
	for _, p := range parts {
		segs := strings.Split(p, ":")
		if len(segs) < 2 {
			return nil, fmt.Errorf("invalid field spec %q, want name:type[:length]", p)
		}
		t, err := schema.ParseType(segs[1])
		if err != nil {
			return nil, err
		}
		length := 0
		if len(segs) > 2 {
			length, err = strconv.Atoi(segs[2])
			if err != nil {
				return nil, fmt.Errorf("invalid length in field spec %q: %w", p, err)
			}
		}
		fields = append(fields, schema.Field{Name: segs[0], Type: t, Length: length})
	}
	return fields, nil
}

func parseKey(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid key %q: %w", s, err)
	}
	return uint32(n), nil
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func printJSON(v any) int {
	enc, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitError
	}
	fmt.Println(string(enc))
	return exitOK
}

func reportCoreError(err error) int {
	fmt.Fprintln(os.Stderr, "error:", err)
	return exitError
}
