// ABOUTME: Field-at-a-time encode/decode of a Record into its fixed R-byte row
// ABOUTME: Each field type has its own fixed-width encode/decode rule

package schema

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/nainya/pagestore/pkg/errs"
)

// Record is a map {field name -> typed Go value} over a Schema.
type Record map[string]any

// Encode serializes rec into a zeroed R-byte buffer per field, in schema
// order. A field absent from rec is encoded as its type's zero/empty
// representation — the Table layer, not the codec, enforces presence of
// the primary key.
func (s *Schema) Encode(rec Record) ([]byte, error) {
	row := make([]byte, s.rowSize)
	for i, f := range s.fields {
		off := s.offsets[i]
		width := f.Width()
		dst := row[off : off+width]
		v, present := rec[f.Name]
		if !present {
			continue // zero value already in place
		}
		if err := encodeField(f, dst, v); err != nil {
			return nil, errs.Wrap(errs.InvalidRecord, "schema.Encode", err)
		}
	}
	return row, nil
}

// Decode reconstructs a Record from a row previously produced by Encode.
func (s *Schema) Decode(row []byte) (Record, error) {
	if len(row) != s.rowSize {
		return nil, errs.Wrap(errs.InvalidRecord, "schema.Decode",
			fmt.Errorf("row length %d does not match schema row size %d", len(row), s.rowSize))
	}
	rec := make(Record, len(s.fields))
	for i, f := range s.fields {
		off := s.offsets[i]
		width := f.Width()
		rec[f.Name] = decodeField(f, row[off:off+width])
	}
	return rec, nil
}

// PrimaryKey extracts rec's primary key field as the u32 value that becomes
// the B+ tree key.
func (s *Schema) PrimaryKey(rec Record) (uint32, bool) {
	pk := s.fields[0]
	v, ok := rec[pk.Name]
	if !ok {
		return 0, false
	}
	switch pk.Type {
	case U32:
		if u, ok := v.(uint32); ok {
			return u, true
		}
		u, err := asUint64(v)
		return uint32(u), err == nil
	case I32:
		if i, ok := v.(int32); ok {
			return uint32(i), true
		}
		i, err := asInt64(v)
		return uint32(int32(i)), err == nil
	default:
		return 0, false
	}
}

// PrimaryKeyFromRow extracts the primary key from an already-encoded row,
// without a full Decode.
func (s *Schema) PrimaryKeyFromRow(row []byte) uint32 {
	off := s.offsets[0]
	return binary.LittleEndian.Uint32(row[off : off+4])
}

func encodeField(f Field, dst []byte, v any) error {
	switch f.Type {
	case I32:
		i, err := asInt64(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dst, uint32(int32(i)))
	case U32:
		u, err := asUint64(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dst, uint32(u))
	case I64:
		i, err := asInt64(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(dst, uint64(i))
	case F32:
		f64, err := asFloat64(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(f64)))
	case F64:
		f64, err := asFloat64(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(dst, math.Float64bits(f64))
	case Bool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("field %q: expected bool, got %T", f.Name, v)
		}
		if b {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
	case Varchar:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("field %q: expected string, got %T", f.Name, v)
		}
		writeNulTerminated(dst, []byte(s))
	case Binary:
		b, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("field %q: expected []byte, got %T", f.Name, v)
		}
		n := copy(dst, b)
		for i := n; i < len(dst); i++ {
			dst[i] = 0
		}
	case JSON:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("field %q: marshaling JSON: %v", f.Name, err)
		}
		writeNulTerminated(dst, encoded)
	default:
		return fmt.Errorf("field %q: unsupported type %s", f.Name, f.Type)
	}
	return nil
}

func decodeField(f Field, src []byte) any {
	switch f.Type {
	case I32:
		return int32(binary.LittleEndian.Uint32(src))
	case U32:
		return binary.LittleEndian.Uint32(src)
	case I64:
		return int64(binary.LittleEndian.Uint64(src))
	case F32:
		return math.Float32frombits(binary.LittleEndian.Uint32(src))
	case F64:
		return math.Float64frombits(binary.LittleEndian.Uint64(src))
	case Bool:
		return src[0] != 0
	case Varchar:
		return string(readNulTerminated(src))
	case Binary:
		out := make([]byte, len(src))
		copy(out, src)
		return out
	case JSON:
		raw := readNulTerminated(src)
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil
		}
		return v
	default:
		return nil
	}
}

// writeNulTerminated truncates data to len(dst)-1 bytes, writes a trailing
// NUL, and zero-pads the remainder.
func writeNulTerminated(dst, data []byte) {
	n := len(dst) - 1
	if n < 0 {
		n = 0
	}
	if len(data) < n {
		n = len(data)
	}
	copy(dst, data[:n])
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// readNulTerminated scans for the first NUL within src and returns the
// bytes before it (or all of src if none is found).
func readNulTerminated(src []byte) []byte {
	for i, b := range src {
		if b == 0 {
			return src[:i]
		}
	}
	return src
}
