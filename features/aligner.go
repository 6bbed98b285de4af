package features

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Vector is a raw record expanded into the schema's column space.
type Vector struct {
	Columns []string  `json:"columns"`
	Values  []float64 `json:"values"`
	// Fallback lists schema columns the record did not produce; they hold 0.
	Fallback []string `json:"fallback,omitempty"`
	// Ignored lists record fields (or synthetic one-hot columns) that have no
	// schema column.
	Ignored []string `json:"ignored,omitempty"`
}

// Get returns the value of a named column.
func (v Vector) Get(column string) (float64, bool) {
	for i, c := range v.Columns {
		if c == column {
			return v.Values[i], true
		}
	}
	return 0, false
}

// Validate checks that the vector matches the schema column for column.
func (v Vector) Validate(s *Schema) error {
	if s == nil {
		return fmt.Errorf("%w: nil schema", ErrSchemaMismatch)
	}
	if len(v.Values) != len(s.Columns) || len(v.Columns) != len(s.Columns) {
		return fmt.Errorf("%w: vector has %d columns (%d values), schema has %d",
			ErrSchemaMismatch, len(v.Columns), len(v.Values), len(s.Columns))
	}
	for i, c := range s.Columns {
		if v.Columns[i] != c {
			return fmt.Errorf("%w: column %d is %q, schema expects %q", ErrSchemaMismatch, i, v.Columns[i], c)
		}
	}
	return nil
}

type codeColumn struct {
	index int
	codes map[string]float64
}

// Aligner maps raw records onto a fixed schema. All lookups are resolved
// once at construction; Align is safe for concurrent use.
type Aligner struct {
	schema  *Schema
	catalog *Catalog
	conv    Convention

	columnIndex map[string]int
	numeric     map[string]int
	groups      map[string]map[string]int
	codes       map[string]codeColumn
}

// NewAligner builds the (field, category) -> column index tables for a
// schema. An empty convention defers to the schema's own, then one-hot.
func NewAligner(schema *Schema, catalog *Catalog, conv Convention) (*Aligner, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: nil schema", ErrInvalidSchema)
	}
	if err := schema.check(); err != nil {
		return nil, err
	}
	if conv == "" {
		conv = schema.Convention
	}
	if conv == "" {
		conv = OneHot
	}
	if schema.Convention != "" && schema.Convention != conv {
		return nil, fmt.Errorf("%w: schema was trained with %s, aligner configured for %s",
			ErrSchemaMismatch, schema.Convention, conv)
	}
	if catalog == nil {
		catalog = NewCatalog(nil)
	}

	a := &Aligner{
		schema:      schema,
		catalog:     catalog,
		conv:        conv,
		columnIndex: make(map[string]int, len(schema.Columns)),
		numeric:     make(map[string]int),
		groups:      make(map[string]map[string]int),
		codes:       make(map[string]codeColumn),
	}
	for i, c := range schema.Columns {
		a.columnIndex[c] = i
	}

	claimed := make(map[int]bool)
	for _, f := range catalog.fields {
		if f.Kind != Numeric {
			continue
		}
		if idx, ok := a.columnIndex[f.Column]; ok {
			a.numeric[f.Name] = idx
			claimed[idx] = true
		}
	}

	var dummies []Field
	for _, f := range catalog.fields {
		if f.Kind != Categorical {
			continue
		}
		switch conv {
		case CategoryCodes:
			idx, ok := a.columnIndex[f.Column]
			if !ok {
				continue
			}
			categories := schema.Categories[f.Column]
			if len(categories) == 0 {
				categories = sortedCopy(f.Options)
			}
			codes := make(map[string]float64, len(categories))
			for code, category := range categories {
				codes[category] = float64(code)
			}
			a.codes[f.Name] = codeColumn{index: idx, codes: codes}
		default:
			dummies = append(dummies, f)
			group := make(map[string]int)
			for _, opt := range f.Options {
				if idx, ok := a.columnIndex[OneHotColumn(f.Column, opt)]; ok && !claimed[idx] {
					group[opt] = idx
					claimed[idx] = true
				}
			}
			a.groups[f.Name] = group
		}
	}

	// Categories seen in training but not offered by the catalog go to the
	// field with the longest matching prefix.
	for i, c := range schema.Columns {
		if claimed[i] {
			continue
		}
		var owner *Field
		for j := range dummies {
			f := &dummies[j]
			if strings.HasPrefix(c, f.Column+"_") && (owner == nil || len(f.Column) > len(owner.Column)) {
				owner = f
			}
		}
		if owner != nil {
			a.groups[owner.Name][strings.TrimPrefix(c, owner.Column+"_")] = i
		}
	}
	for name, group := range a.groups {
		if len(group) == 0 {
			delete(a.groups, name)
		}
	}
	return a, nil
}

// Schema returns the schema the aligner targets.
func (a *Aligner) Schema() *Schema {
	return a.schema
}

// Convention returns the encoding convention in use.
func (a *Aligner) Convention() Convention {
	return a.conv
}

// Align expands a record into the schema's column space. Columns the record
// does not produce are zero. A category never seen in training leaves its
// whole one-hot group at zero, which is indistinguishable from the baseline
// category.
func (a *Aligner) Align(rec RawRecord) (Vector, error) {
	n := len(a.schema.Columns)
	values := make([]float64, n)
	derived := make([]bool, n)
	var ignored []string

	for _, name := range sortedKeys(rec.Numeric) {
		v := rec.Numeric[name]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Vector{}, fmt.Errorf("%w: field %q: non-finite value %v", ErrInvalidRecord, name, v)
		}
		idx, ok := a.numeric[name]
		if !ok {
			if _, inCatalog := a.catalog.Field(name); !inCatalog {
				idx, ok = a.columnIndex[name]
			}
		}
		if !ok {
			ignored = append(ignored, name)
			continue
		}
		values[idx] = v
		derived[idx] = true
	}

	for _, name := range sortedKeys(rec.Categorical) {
		category := rec.Categorical[name]
		f, inCatalog := a.catalog.Field(name)
		prefix := name
		if inCatalog {
			prefix = f.Column
		}

		if a.conv == CategoryCodes {
			cc, ok := a.codes[name]
			if !ok && !inCatalog {
				if idx, found := a.columnIndex[name]; found {
					cc, ok = codeColumn{index: idx}, true
				}
			}
			if !ok {
				ignored = append(ignored, name)
				continue
			}
			code, known := cc.codes[category]
			if !known {
				code = -1
			}
			values[cc.index] = code
			derived[cc.index] = true
			continue
		}

		idx, ok := a.groups[name][category]
		if !ok && !inCatalog {
			idx, ok = a.columnIndex[OneHotColumn(prefix, category)]
		}
		if !ok {
			ignored = append(ignored, OneHotColumn(prefix, category))
			continue
		}
		values[idx] = 1
		derived[idx] = true
	}

	var fallback []string
	for i, c := range a.schema.Columns {
		if !derived[i] {
			fallback = append(fallback, c)
		}
	}

	return Vector{
		Columns:  append([]string(nil), a.schema.Columns...),
		Values:   values,
		Fallback: fallback,
		Ignored:  ignored,
	}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
