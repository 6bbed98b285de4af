package features

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ValidateSchema asserts that a persisted schema matches the column set the
// chosen convention expects from the catalog. Every numeric field must have
// a column, and every column must resolve to a numeric field, a
// (field, option) pair under one-hot, or a categorical field under category
// codes. All problems are reported together.
func ValidateSchema(schema *Schema, catalog *Catalog, conv Convention) error {
	if schema == nil {
		return fmt.Errorf("%w: nil schema", ErrInvalidSchema)
	}
	if err := schema.check(); err != nil {
		return err
	}
	if schema.Convention != "" && schema.Convention != conv {
		return fmt.Errorf("%w: schema declares %s, deployment expects %s", ErrSchemaMismatch, schema.Convention, conv)
	}

	present := make(map[string]bool, len(schema.Columns))
	for _, c := range schema.Columns {
		present[c] = true
	}

	allowed := make(map[string]bool)
	var err error
	for _, f := range catalog.fields {
		switch f.Kind {
		case Numeric:
			allowed[f.Column] = true
			if !present[f.Column] {
				err = multierr.Append(err, fmt.Errorf("numeric field %q has no column %q", f.Name, f.Column))
			}
		case Categorical:
			if conv == CategoryCodes {
				allowed[f.Column] = true
				if !present[f.Column] {
					err = multierr.Append(err, fmt.Errorf("categorical field %q has no code column %q", f.Name, f.Column))
				}
				continue
			}
			found := false
			for _, opt := range f.Options {
				col := OneHotColumn(f.Column, opt)
				allowed[col] = true
				found = found || present[col]
			}
			if !found {
				err = multierr.Append(err, fmt.Errorf("categorical field %q has no %s_* columns", f.Name, f.Column))
			}
		}
	}

	var unknown []string
	for _, c := range schema.Columns {
		if !allowed[c] {
			unknown = append(unknown, c)
		}
	}
	if len(unknown) > 0 {
		err = multierr.Append(err, fmt.Errorf("columns not produced by the %s convention: %s", conv, strings.Join(unknown, ", ")))
	}

	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return nil
}
