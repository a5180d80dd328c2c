// ABOUTME: Table binds a Schema to a B+ Tree over one page file
// ABOUTME: Enforces primary-key discipline and exposes CRUD + range/scan

package table

import (
	"sort"
	"sync"
	"time"

	"github.com/nainya/pagestore/internal/logger"
	"github.com/nainya/pagestore/internal/metrics"
	"github.com/nainya/pagestore/pkg/btree"
	"github.com/nainya/pagestore/pkg/errs"
	"github.com/nainya/pagestore/pkg/pager"
	"github.com/nainya/pagestore/pkg/pagefile"
	"github.com/nainya/pagestore/pkg/schema"
)

// Options configures a Table's pager and flush policy.
type Options struct {
	// ImmediateSync, when true, fsyncs after every mutating operation.
	// When false, mutated pages stay in the pager's dirty set until
	// Flush, BatchCreate or Close writes them out.
	ImmediateSync bool
	// BatchedSyncIntervalMs is the page file's best-effort background
	// fsync interval, used only when ImmediateSync is false; the ticker
	// fsyncs pages already written and does not write the dirty set.
	BatchedSyncIntervalMs uint
	// CacheCapacity bounds the pager's LRU page cache; 0 selects
	// cache.DefaultCapacity.
	CacheCapacity int

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// Table owns the pager and tree for one schema over one file, and
// sequences every operation against them: no two structural mutations
// may be in flight against the same tree at once.
type Table struct {
	mu sync.Mutex

	name   string
	schema *schema.Schema
	pager  *pager.Pager
	tree   *btree.BTree

	immediateSync bool
	log           *logger.Logger
	metrics       *metrics.Metrics
}

// Open opens (creating if necessary) the page file at path as a table
// named name with the given schema.
func Open(name, path string, sch *schema.Schema, opts Options) (*Table, error) {
	fileCfg := pagefile.Config{
		ImmediateSync:         opts.ImmediateSync,
		BatchedSyncIntervalMs: opts.BatchedSyncIntervalMs,
	}
	p, err := pager.Open(path, sch.RowSize(), opts.CacheCapacity, fileCfg)
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, "table.Open", err)
	}

	var log *logger.Logger
	if opts.Logger != nil {
		log = opts.Logger.TableLogger(name)
	}

	return &Table{
		name:          name,
		schema:        sch,
		pager:         p,
		tree:          btree.New(p),
		immediateSync: opts.ImmediateSync,
		log:           log,
		metrics:       opts.Metrics,
	}, nil
}

// Name returns the table's name.
func (t *Table) Name() string { return t.name }

// Schema returns the table's schema.
func (t *Table) Schema() *schema.Schema { return t.schema }

func (t *Table) record(op string, start time.Time, err error) {
	if t.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	t.metrics.RecordTableOperation(t.name, op, status, time.Since(start))
	cs, ps := t.pager.Stats()
	t.metrics.UpdateCacheStats(cs.Hits, cs.Misses, cs.Evictions, cs.Size, ps.Allocations, ps.Reuses)
}

func (t *Table) logOp(op string, start time.Time, n int, err error) {
	if t.log == nil {
		return
	}
	t.log.LogTableOperation(op, time.Since(start), n, err)
}

// Create validates presence of the primary key, rejects an existing key
// with DuplicateKey, encodes the record, and inserts it.
func (t *Table) Create(rec schema.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := time.Now()

	pk, ok := t.schema.PrimaryKey(rec)
	if !ok {
		err := errs.New(errs.InvalidRecord, "table.Create")
		t.record("create", start, err)
		return err
	}

	if _, found, err := t.tree.Get(pk); err != nil {
		err = errs.Wrap(errs.IOFailure, "table.Create", err)
		t.record("create", start, err)
		return err
	} else if found {
		err := errs.New(errs.DuplicateKey, "table.Create")
		t.record("create", start, err)
		return err
	}

	row, err := t.schema.Encode(rec)
	if err != nil {
		t.record("create", start, err)
		return err
	}

	if err := t.tree.Insert(pk, row); err != nil {
		err = errs.Wrap(errs.IOFailure, "table.Create", err)
		t.record("create", start, err)
		return err
	}

	err = t.maybeFlush()
	t.record("create", start, err)
	t.logOp("create", start, 1, err)
	return err
}

// Read dispatches to the point, range, or scan lookup strategy named by
// criteria.Mode, then applies equality post-filters, offset, and limit.
func (t *Table) Read(criteria Criteria) ([]schema.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := time.Now()

	var recs []schema.Record
	var err error
	switch criteria.Mode {
	case Point:
		recs, err = t.readPoint(criteria.Key)
	case Range:
		recs, err = t.readRange(criteria.GTE, criteria.LTE)
	case Scan:
		recs, err = t.readScan()
	default:
		err = errs.New(errs.InvalidRecord, "table.Read")
	}
	if err != nil {
		t.record("read", start, err)
		return nil, err
	}

	recs = filterEquals(recs, criteria.Equals)
	recs = paginate(recs, criteria.Offset, criteria.Limit)

	t.record("read", start, nil)
	t.logOp("read", start, len(recs), nil)
	return recs, nil
}

func (t *Table) readPoint(key uint32) ([]schema.Record, error) {
	row, found, err := t.tree.Get(key)
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, "table.Read", err)
	}
	if !found {
		return nil, nil
	}
	rec, err := t.schema.Decode(row)
	if err != nil {
		return nil, err
	}
	return []schema.Record{rec}, nil
}

func (t *Table) readRange(gte, lte uint32) ([]schema.Record, error) {
	it, err := t.tree.Range(gte, lte, 0)
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, "table.Read", err)
	}
	return t.drain(it)
}

func (t *Table) readScan() ([]schema.Record, error) {
	it, err := t.tree.All()
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, "table.Read", err)
	}
	return t.drain(it)
}

func (t *Table) drain(it *btree.Iterator) ([]schema.Record, error) {
	var recs []schema.Record
	for {
		_, row, ok, err := it.Next()
		if err != nil {
			return nil, errs.Wrap(errs.IOFailure, "table.Read", err)
		}
		if !ok {
			break
		}
		rec, err := t.schema.Decode(row)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func filterEquals(recs []schema.Record, equals map[string]any) []schema.Record {
	if len(equals) == 0 {
		return recs
	}
	out := recs[:0]
	for _, rec := range recs {
		match := true
		for field, want := range equals {
			// Predicates arriving over the socket are JSON-decoded, so
			// numeric values come in as float64 regardless of the
			// field's declared type.
			if !schema.EqualValues(rec[field], want) {
				match = false
				break
			}
		}
		if match {
			out = append(out, rec)
		}
	}
	return out
}

func paginate(recs []schema.Record, offset, limit int) []schema.Record {
	if offset > 0 {
		if offset >= len(recs) {
			return nil
		}
		recs = recs[offset:]
	}
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs
}

// Update looks up pk, rejects a delta that changes the primary key,
// merges delta onto the decoded record, re-encodes, and overwrites.
// Returns the old and new records.
func (t *Table) Update(pk uint32, delta schema.Record) (old schema.Record, updated schema.Record, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := time.Now()
	defer func() { t.record("update", start, err); t.logOp("update", start, 1, err) }()

	row, found, getErr := t.tree.Get(pk)
	if getErr != nil {
		err = errs.Wrap(errs.IOFailure, "table.Update", getErr)
		return nil, nil, err
	}
	if !found {
		err = errs.New(errs.NotFound, "table.Update")
		return nil, nil, err
	}

	old, err = t.schema.Decode(row)
	if err != nil {
		return nil, nil, err
	}

	pkName := t.schema.PrimaryKeyName()
	if newPK, changesPK := delta[pkName]; changesPK && !schema.EqualValues(newPK, old[pkName]) {
		err = errs.New(errs.ImmutablePrimaryKey, "table.Update")
		return nil, nil, err
	}

	merged := make(schema.Record, len(old))
	for k, v := range old {
		merged[k] = v
	}
	for k, v := range delta {
		merged[k] = v
	}

	newRow, encErr := t.schema.Encode(merged)
	if encErr != nil {
		err = encErr
		return nil, nil, err
	}
	if insErr := t.tree.Insert(pk, newRow); insErr != nil {
		err = errs.Wrap(errs.IOFailure, "table.Update", insErr)
		return nil, nil, err
	}

	// Decode the stored row rather than returning the merged map, so the
	// new record carries the schema's native types even when the delta
	// arrived JSON-decoded.
	updated, decErr := t.schema.Decode(newRow)
	if decErr != nil {
		err = decErr
		return nil, nil, err
	}

	err = t.maybeFlush()
	if err != nil {
		return nil, nil, err
	}
	return old, updated, nil
}

// Delete looks up and removes pk, returning the deleted record.
func (t *Table) Delete(pk uint32) (schema.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := time.Now()

	row, found, err := t.tree.Get(pk)
	if err != nil {
		err = errs.Wrap(errs.IOFailure, "table.Delete", err)
		t.record("delete", start, err)
		return nil, err
	}
	if !found {
		err := errs.New(errs.NotFound, "table.Delete")
		t.record("delete", start, err)
		return nil, err
	}

	old, err := t.schema.Decode(row)
	if err != nil {
		t.record("delete", start, err)
		return nil, err
	}

	if _, err := t.tree.Delete(pk); err != nil {
		err = errs.Wrap(errs.IOFailure, "table.Delete", err)
		t.record("delete", start, err)
		return nil, err
	}

	err = t.maybeFlush()
	t.record("delete", start, err)
	t.logOp("delete", start, 1, err)
	if err != nil {
		return nil, err
	}
	return old, nil
}

// Count iterates the tree end-to-end and returns the row count.
func (t *Table) Count() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	it, err := t.tree.All()
	if err != nil {
		return 0, errs.Wrap(errs.IOFailure, "table.Count", err)
	}
	n := 0
	for {
		_, _, ok, err := it.Next()
		if err != nil {
			return 0, errs.Wrap(errs.IOFailure, "table.Count", err)
		}
		if !ok {
			break
		}
		n++
	}
	if t.metrics != nil {
		h, err := t.tree.Height()
		if err != nil {
			h = 0
		}
		t.metrics.UpdateTableStats(t.name, int64(n), int64(h), int64(t.pager.PageCount()))
	}
	return n, nil
}

// BatchCreate sorts records by primary key and inserts them in ascending
// order, flushing exactly once at the end (single fsync). Duplicate
// keys, against either the batch or the existing tree, and records that
// fail to encode are detected before any row is inserted, so such a
// batch fails whole and leaves the tree unchanged.
func (t *Table) BatchCreate(records []schema.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := time.Now()

	type keyed struct {
		pk  uint32
		rec schema.Record
		row []byte
	}
	entries := make([]keyed, 0, len(records))
	for _, rec := range records {
		pk, ok := t.schema.PrimaryKey(rec)
		if !ok {
			err := errs.New(errs.InvalidRecord, "table.BatchCreate")
			t.record("batch_create", start, err)
			return err
		}
		entries = append(entries, keyed{pk: pk, rec: rec})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].pk < entries[j].pk })

	for i, e := range entries {
		if i > 0 && entries[i-1].pk == e.pk {
			err := errs.New(errs.DuplicateKey, "table.BatchCreate")
			t.record("batch_create", start, err)
			return err
		}
		if _, found, err := t.tree.Get(e.pk); err != nil {
			err = errs.Wrap(errs.IOFailure, "table.BatchCreate", err)
			t.record("batch_create", start, err)
			return err
		} else if found {
			err := errs.New(errs.DuplicateKey, "table.BatchCreate")
			t.record("batch_create", start, err)
			return err
		}

		row, err := t.schema.Encode(e.rec)
		if err != nil {
			t.record("batch_create", start, err)
			return err
		}
		entries[i].row = row
	}

	for _, e := range entries {
		if err := t.tree.Insert(e.pk, e.row); err != nil {
			err = errs.Wrap(errs.IOFailure, "table.BatchCreate", err)
			t.record("batch_create", start, err)
			return err
		}
	}

	err := t.pager.FlushBatch()
	if err != nil {
		err = errs.Wrap(errs.IOFailure, "table.BatchCreate", err)
	}
	t.record("batch_create", start, err)
	t.logOp("batch_create", start, len(entries), err)
	return err
}

func (t *Table) maybeFlush() error {
	if !t.immediateSync {
		return nil
	}
	if err := t.pager.Flush(); err != nil {
		return errs.Wrap(errs.IOFailure, "table.flush", err)
	}
	return nil
}

// Flush forces every pending mutation to disk regardless of the
// immediate-sync setting.
func (t *Table) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.pager.Flush(); err != nil {
		return errs.Wrap(errs.IOFailure, "table.Flush", err)
	}
	return nil
}

// Close flushes outstanding writes and releases the table's file handle
// and cache.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.pager.Close(); err != nil {
		return errs.Wrap(errs.IOFailure, "table.Close", err)
	}
	return nil
}
