// ABOUTME: <table>.schema.json sidecar: the CLI's own metadata collaborator
// ABOUTME: The core never reads this file; it exists only so the CLI can
// ABOUTME: hand a reopened table the schema it does not persist itself

package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/nainya/pagestore/internal/socket"
	"github.com/nainya/pagestore/pkg/schema"
)

func sidecarPath(dbDir, table string) string {
	return filepath.Join(dbDir, table+".schema.json")
}

func writeSchemaSidecar(dbDir, table string, fields []schema.Field) error {
	specs := make([]socket.FieldSpec, len(fields))
	for i, f := range fields {
		specs[i] = socket.FieldSpec{Name: f.Name, Type: f.Type.String(), Length: f.Length}
	}
	enc, err := json.MarshalIndent(specs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sidecarPath(dbDir, table), enc, 0o644)
}

func readSchemaSidecar(dbDir, table string) (*schema.Schema, error) {
	raw, err := os.ReadFile(sidecarPath(dbDir, table))
	if err != nil {
		return nil, err
	}
	var specs []socket.FieldSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, err
	}
	fields := make([]schema.Field, len(specs))
	for i, s := range specs {
		t, err := schema.ParseType(s.Type)
		if err != nil {
			return nil, err
		}
		fields[i] = schema.Field{Name: s.Name, Type: t, Length: s.Length}
	}
	return schema.New(fields)
}
