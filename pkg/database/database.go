// ABOUTME: Database owns a directory of Tables, one file per table
// ABOUTME: Enforces at-most-one open handle per table and lifecycle ops

package database

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/nainya/pagestore/internal/logger"
	"github.com/nainya/pagestore/internal/metrics"
	"github.com/nainya/pagestore/pkg/errs"
	"github.com/nainya/pagestore/pkg/pagefile"
	"github.com/nainya/pagestore/pkg/schema"
	"github.com/nainya/pagestore/pkg/table"
)

// IndexType names the tree variant a Database's tables are built over.
// Only the B+ tree variant is supported; a legacy B-tree variant is
// out of scope.
type IndexType int

const (
	// BPlusTree is the only in-scope index variant.
	BPlusTree IndexType = iota
)

// Options configures a Database and the Tables it opens/creates.
type Options struct {
	// DefaultIndexType selects the tree variant new tables are built
	// over. Only BPlusTree is implemented.
	DefaultIndexType IndexType

	// TableOptions is the base for every table this Database creates or
	// opens; a true ImmediateSync or a non-zero BatchedSyncIntervalMs/
	// CacheCapacity in the opts passed to CreateTable or OpenTable
	// overrides it. Logger and Metrics always come from these Options.
	TableOptions table.Options

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// Database is a named directory owning a set of open Tables by name.
type Database struct {
	mu  sync.Mutex
	dir string

	opts   Options
	tables map[string]*Table
	log    *logger.Logger
}

// Table is the handle a Database hands back. The core itself never
// persists schemas to disk; callers (or an external metadata
// collaborator) must supply one each time a table is opened.
type Table struct {
	*table.Table
	db *Database
}

// Close releases the table's file handle and deregisters it from the
// owning Database, so a later OpenTable opens the file afresh instead
// of handing back a closed handle.
func (t *Table) Close() error {
	t.db.mu.Lock()
	if cur, ok := t.db.tables[t.Name()]; ok && cur == t {
		delete(t.db.tables, t.Name())
	}
	t.db.mu.Unlock()
	return t.Table.Close()
}

// Connect ensures dir exists and returns a Database rooted there. It does
// not open any table files; tables are opened lazily via CreateTable/
// OpenTable.
func Connect(dir string, opts Options) (*Database, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.IOFailure, "database.Connect", err)
	}

	return &Database{
		dir:    dir,
		opts:   opts,
		tables: make(map[string]*Table),
		log:    opts.Logger,
	}, nil
}

// Dir returns the database's directory.
func (d *Database) Dir() string { return d.dir }

func (d *Database) pathFor(name string) string {
	return filepath.Join(d.dir, name+".db")
}

// CreateTable creates a new table file named name with the given schema,
// failing with AlreadyExists if a table of that name is already open or
// its file already exists on disk.
func (d *Database) CreateTable(name string, sch *schema.Schema, opts table.Options) (*Table, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, open := d.tables[name]; open {
		return nil, errs.New(errs.AlreadyExists, "database.CreateTable")
	}
	path := d.pathFor(name)
	if _, err := os.Stat(path); err == nil {
		return nil, errs.New(errs.AlreadyExists, "database.CreateTable")
	}

	merged := d.mergeOptions(opts)
	t, err := table.Open(name, path, sch, merged)
	if err != nil {
		return nil, err
	}
	handle := &Table{Table: t, db: d}
	d.tables[name] = handle

	if d.log != nil {
		d.log.DatabaseLogger("create_table").Info("table created").Str("table", name).Send()
	}
	return handle, nil
}

// OpenTable opens an existing table file named name with the given
// schema (the caller, or an external metadata collaborator, must supply
// it; the core does not persist schemas). Fails with NotFound if the
// table is not already open and its file does not exist.
func (d *Database) OpenTable(name string, sch *schema.Schema, opts table.Options) (*Table, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, open := d.tables[name]; open {
		return t, nil
	}
	path := d.pathFor(name)
	if _, err := os.Stat(path); err != nil {
		return nil, errs.New(errs.NotFound, "database.OpenTable")
	}

	merged := d.mergeOptions(opts)
	t, err := table.Open(name, path, sch, merged)
	if err != nil {
		return nil, err
	}
	handle := &Table{Table: t, db: d}
	d.tables[name] = handle
	return handle, nil
}

// DropTable closes (if open) and unlinks a table's file. Fails with
// NotFound if the table is not open and its file does not exist.
func (d *Database) DropTable(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, open := d.tables[name]; open {
		if err := t.Table.Close(); err != nil {
			return err
		}
		delete(d.tables, name)
	} else if _, err := os.Stat(d.pathFor(name)); err != nil {
		return errs.New(errs.NotFound, "database.DropTable")
	}
	if err := pagefile.Remove(d.pathFor(name)); err != nil {
		return err
	}
	if d.log != nil {
		d.log.DatabaseLogger("drop_table").Info("table dropped").Str("table", name).Send()
	}
	return nil
}

// ListTables returns every table name with a file on disk, sorted,
// regardless of whether it currently has an open handle.
func (d *Database) ListTables() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, "database.ListTables", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		const suffix = ".db"
		n := e.Name()
		if len(n) > len(suffix) && n[len(n)-len(suffix):] == suffix {
			names = append(names, n[:len(n)-len(suffix)])
		}
	}
	sort.Strings(names)
	return names, nil
}

// IsOpen reports whether name currently has an open handle.
func (d *Database) IsOpen(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.tables[name]
	return ok
}

// Table returns the already-open handle for name, if any, without
// touching disk or requiring a schema (unlike OpenTable, which can
// open a table for the first time).
func (d *Database) Table(name string) (*Table, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tables[name]
	return t, ok
}

// Close closes every open table's handle.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for name, t := range d.tables {
		if err := t.Table.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close table %s: %w", name, err)
		}
		delete(d.tables, name)
	}
	return firstErr
}

func (d *Database) mergeOptions(opts table.Options) table.Options {
	merged := d.opts.TableOptions
	if opts.ImmediateSync {
		merged.ImmediateSync = opts.ImmediateSync
	}
	if opts.BatchedSyncIntervalMs != 0 {
		merged.BatchedSyncIntervalMs = opts.BatchedSyncIntervalMs
	}
	if opts.CacheCapacity != 0 {
		merged.CacheCapacity = opts.CacheCapacity
	}
	merged.Logger = d.opts.Logger
	merged.Metrics = d.opts.Metrics
	return merged
}
