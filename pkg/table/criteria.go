// ABOUTME: Criteria selects which rows Table.Read returns and how
// ABOUTME: Point/range/scan selection plus filter-then-paginate knobs

package table

// Mode selects which of Read's three lookup strategies to use.
type Mode int

const (
	// Point looks up exactly one row by primary key.
	Point Mode = iota
	// Range scans the tree between GTE and LTE inclusive, in key order.
	Range
	// Scan walks every row in the table, in key order.
	Scan
)

// Criteria parameterizes Table.Read: a point lookup, a bounded range
// scan, or a full scan, followed by in-memory equality filtering and
// offset/limit pagination.
type Criteria struct {
	Mode Mode

	// Key is the primary key to look up when Mode == Point.
	Key uint32

	// GTE/LTE bound a Range scan; both inclusive.
	GTE uint32
	LTE uint32

	// Equals holds equality predicates evaluated in memory against
	// any field, the primary key included, after the tree scan.
	Equals map[string]any

	// Offset and Limit are applied, in that order, after filtering.
	// Limit == 0 means unbounded.
	Offset int
	Limit  int
}
