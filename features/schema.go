package features

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

var (
	// ErrInvalidSchema is returned for empty, duplicated or unreadable schemas.
	ErrInvalidSchema = errors.New("invalid feature schema")
	// ErrSchemaMismatch is returned when a vector or a convention does not
	// line up with the persisted schema.
	ErrSchemaMismatch = errors.New("feature schema mismatch")
	// ErrInvalidRecord is returned for form input that cannot be encoded.
	ErrInvalidRecord = errors.New("invalid input record")
)

// Convention names how categorical fields are encoded into columns.
type Convention string

const (
	// OneHot expands each categorical field into <prefix>_<category> columns.
	OneHot Convention = "one_hot"
	// CategoryCodes stores each categorical field as one integer-coded column.
	CategoryCodes Convention = "category_codes"
)

// ParseConvention accepts the config spellings of a convention.
func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "one_hot", "onehot", "dummies":
		return OneHot, nil
	case "category_codes", "codes", "label":
		return CategoryCodes, nil
	default:
		return "", fmt.Errorf("unknown encoding convention %q", s)
	}
}

// OneHotColumn is the synthetic column name for a category of a field.
func OneHotColumn(prefix, category string) string {
	return prefix + "_" + category
}

// Schema is the ordered encoded column list produced by a training run.
type Schema struct {
	Convention Convention          `json:"convention,omitempty"`
	Columns    []string            `json:"columns"`
	Categories map[string][]string `json:"categories,omitempty"`
}

// NewSchema validates and wraps an ordered column list.
func NewSchema(columns []string, conv Convention) (*Schema, error) {
	s := &Schema{Convention: conv, Columns: append([]string(nil), columns...)}
	if err := s.check(); err != nil {
		return nil, err
	}
	return s, nil
}

// Len returns the number of columns.
func (s *Schema) Len() int {
	return len(s.Columns)
}

// Index returns the position of a column.
func (s *Schema) Index(column string) (int, bool) {
	for i, c := range s.Columns {
		if c == column {
			return i, true
		}
	}
	return -1, false
}

func (s *Schema) check() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrInvalidSchema)
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if c == "" {
			return fmt.Errorf("%w: empty column name", ErrInvalidSchema)
		}
		if seen[c] {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidSchema, c)
		}
		seen[c] = true
	}
	return nil
}

// Save writes the schema as JSON.
func (s *Schema) Save(path string) error {
	if err := s.check(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

// LoadSchema reads a schema file. Both the full document and a bare JSON
// array of column names are accepted; the latter carries no convention.
func LoadSchema(path string) (*Schema, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Schema
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &s.Columns); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
	} else if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if s.Convention != "" {
		conv, err := ParseConvention(string(s.Convention))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
		s.Convention = conv
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return &s, nil
}

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}
