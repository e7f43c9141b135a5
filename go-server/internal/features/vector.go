// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package features

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// Vector holds one value per Schema entry, in Schema order. The zero Vector
// is not valid; build one with Assemble.
type Vector struct {
	values []float64
}

// Assemble merges feature sources into a Vector. Schema names missing from
// every source are zero-filled. A name outside the Schema is an error: it
// means a source and the schema have drifted apart.
func Assemble(sources ...map[string]float64) (Vector, error) {
	values := make([]float64, len(Schema))
	var unknown []string
	for _, src := range sources {
		for name, v := range src {
			i, ok := schemaIndex[name]
			if !ok {
				unknown = append(unknown, name)
				continue
			}
			values[i] = v
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Vector{}, fmt.Errorf("%w: unknown features %v", ErrSchemaMismatch, unknown)
	}
	return Vector{values: values}, nil
}

func (v Vector) Len() int {
	return len(v.values)
}

func (v Vector) Get(name string) float64 {
	i, ok := schemaIndex[name]
	if !ok || i >= len(v.values) {
		return 0
	}
	return v.values[i]
}

func (v Vector) Flag(name string) bool {
	return v.Get(name) == 1
}

func (v Vector) Names() []string {
	names := make([]string, len(Schema))
	copy(names, Schema)
	return names
}

func (v Vector) Values() []float64 {
	out := make([]float64, len(v.values))
	copy(out, v.values)
	return out
}

func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(v.values))
	for i, val := range v.values {
		m[Schema[i]] = val
	}
	return m
}

// Detected counts features that differ from their zero default.
func (v Vector) Detected() int {
	n := 0
	for _, val := range v.values {
		if val != 0 {
			n++
		}
	}
	return n
}

// MarshalJSON writes the vector as an object in Schema order.
func (v Vector) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, val := range v.values {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(Schema[i]))
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
