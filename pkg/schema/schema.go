// ABOUTME: Schema binds an ordered field list to fixed byte offsets
// ABOUTME: Computes row_size once at construction; immutable thereafter

package schema

import (
	"fmt"

	"github.com/nainya/pagestore/pkg/errs"
)

// Schema is an ordered, fixed list of typed fields. The first field is the
// primary key; its value becomes the B+ tree key for every row.
type Schema struct {
	fields  []Field
	offsets []int
	rowSize int
}

// New validates fields and computes byte offsets, returning a Schema whose
// RowSize is fixed for the life of the table it backs.
func New(fields []Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, errs.Wrap(errs.InvalidSchema, "schema.New", fmt.Errorf("schema must declare at least one field"))
	}

	seen := make(map[string]bool, len(fields))
	offsets := make([]int, len(fields))
	offset := 0
	for i, f := range fields {
		if f.Name == "" {
			return nil, errs.Wrap(errs.InvalidSchema, "schema.New", fmt.Errorf("field %d has an empty name", i))
		}
		if seen[f.Name] {
			return nil, errs.Wrap(errs.InvalidSchema, "schema.New", fmt.Errorf("duplicate field name %q", f.Name))
		}
		seen[f.Name] = true

		if err := f.Type.validate(f.Length); err != nil {
			return nil, errs.Wrap(errs.InvalidSchema, "schema.New", fmt.Errorf("field %q: %w", f.Name, err))
		}

		offsets[i] = offset
		offset += f.Width()
	}

	pk := fields[0]
	if pk.Type != I32 && pk.Type != U32 {
		return nil, errs.Wrap(errs.InvalidSchema, "schema.New",
			fmt.Errorf("primary key field %q must be i32 or u32, got %s", pk.Name, pk.Type))
	}

	return &Schema{
		fields:  append([]Field(nil), fields...),
		offsets: offsets,
		rowSize: offset,
	}, nil
}

// Fields returns the schema's fields in declaration order.
func (s *Schema) Fields() []Field { return append([]Field(nil), s.fields...) }

// RowSize is the fixed encoded width of every row (R in spec terms).
func (s *Schema) RowSize() int { return s.rowSize }

// PrimaryKeyName returns the first field's name.
func (s *Schema) PrimaryKeyName() string { return s.fields[0].Name }

// fieldIndex returns the index of name, or -1 if it is not part of the schema.
func (s *Schema) fieldIndex(name string) int {
	for i, f := range s.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether name is a field of this schema.
func (s *Schema) Has(name string) bool { return s.fieldIndex(name) >= 0 }
