// ABOUTME: Wire types for the line-framed socket protocol
// ABOUTME: One JSON object per line in, one JSON object per line out

package socket

import "github.com/nainya/pagestore/pkg/schema"

// FieldSpec is the wire form of schema.Field, used only by create_table/
// open_table requests (the core itself never persists or transmits
// schemas on its own).
type FieldSpec struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Length int    `json:"length,omitempty"`
}

// Request is one line of client input. Op selects which table operation
// to perform; the remaining fields are interpreted per-op.
type Request struct {
	Op    string `json:"op"`
	Table string `json:"table,omitempty"`

	// create_table / open_table
	Fields []FieldSpec `json:"fields,omitempty"`

	// insert / update (delta) / lookup / range / delete
	Record schema.Record `json:"record,omitempty"`
	Delta  schema.Record `json:"delta,omitempty"`
	Key    *uint32       `json:"key,omitempty"`

	// range
	GTE    uint32         `json:"gte,omitempty"`
	LTE    uint32         `json:"lte,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	Offset int            `json:"offset,omitempty"`
	Equals map[string]any `json:"equals,omitempty"`
}

// Response is one line of server output.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	// ErrorKind names one of pkg/errs' closed taxonomy members, for
	// clients that want to branch on failure category.
	ErrorKind string `json:"error_kind,omitempty"`

	Record  schema.Record   `json:"record,omitempty"`
	Old     schema.Record   `json:"old,omitempty"`
	New     schema.Record   `json:"new,omitempty"`
	Records []schema.Record `json:"records,omitempty"`
	Count   int             `json:"count,omitempty"`
	Tables  []string        `json:"tables,omitempty"`
}

func fieldsFromWire(specs []FieldSpec) ([]schema.Field, error) {
	fields := make([]schema.Field, len(specs))
	for i, s := range specs {
		t, err := schema.ParseType(s.Type)
		if err != nil {
			return nil, err
		}
		fields[i] = schema.Field{Name: s.Name, Type: t, Length: s.Length}
	}
	return fields, nil
}
