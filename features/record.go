package features

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// RawRecord is one form submission keyed by field name.
type RawRecord struct {
	Numeric     map[string]float64 `json:"numeric"`
	Categorical map[string]string  `json:"categorical"`
}

// NewRawRecord returns an empty record.
func NewRawRecord() RawRecord {
	return RawRecord{
		Numeric:     make(map[string]float64),
		Categorical: make(map[string]string),
	}
}

// DefaultRecord fills every catalog field with its default value.
func DefaultRecord(c *Catalog) RawRecord {
	rec := NewRawRecord()
	for _, f := range c.fields {
		switch f.Kind {
		case Numeric:
			rec.Numeric[f.Name] = f.Default
		case Categorical:
			if len(f.Options) > 0 {
				rec.Categorical[f.Name] = f.Options[0]
			}
		}
	}
	return rec
}

// RecordFromValues builds a record from submitted form values. Missing
// fields take their defaults; unparsable or non-finite numbers are errors.
func RecordFromValues(c *Catalog, values url.Values) (RawRecord, error) {
	rec := DefaultRecord(c)
	for _, f := range c.fields {
		raw := strings.TrimSpace(values.Get(f.Name))
		if raw == "" {
			continue
		}
		switch f.Kind {
		case Numeric:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return RawRecord{}, fmt.Errorf("%w: field %q: invalid number %q", ErrInvalidRecord, f.Name, raw)
			}
			rec.Numeric[f.Name] = v
		case Categorical:
			rec.Categorical[f.Name] = raw
		}
	}
	return rec, nil
}
