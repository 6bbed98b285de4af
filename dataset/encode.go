package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind is the inferred type of a column.
type Kind int

const (
	Numeric Kind = iota
	Categorical
)

func (k Kind) String() string {
	if k == Categorical {
		return "categorical"
	}
	return "numeric"
}

// Table is a fully numeric design matrix.
type Table struct {
	Columns []string
	Rows    [][]float64
	// Categories lists, per source categorical column, the sorted values
	// seen during encoding.
	Categories map[string][]string
}

// Kinds classifies each column: numeric when every cell parses as a float,
// categorical otherwise.
func (f *Frame) Kinds() []Kind {
	kinds := make([]Kind, len(f.Header))
	for j := range f.Header {
		for _, row := range f.Rows {
			if _, err := parseFloat(row[j]); err != nil {
				kinds[j] = Categorical
				break
			}
		}
	}
	return kinds
}

// SplitTarget removes the target column and returns it as integer class
// labels. Integral numeric labels are kept as is. Any other labels are coded
// by their index in the sorted set of distinct values, which is also
// returned.
func SplitTarget(frame *Frame, target string) (*Frame, []int, []string, error) {
	if frame.Len() == 0 {
		return nil, nil, nil, ErrNoRows
	}
	if err := frame.checkWidth(); err != nil {
		return nil, nil, nil, err
	}
	idx := frame.Column(target)
	if idx < 0 {
		return nil, nil, nil, fmt.Errorf("%w: %q", ErrMissingTarget, target)
	}

	raw := make([]string, frame.Len())
	for i, row := range frame.Rows {
		raw[i] = row[idx]
	}

	labels, ok := integralLabels(raw)
	var names []string
	if !ok {
		names = distinctSorted(raw)
		codes := indexMap(names)
		labels = make([]int, len(raw))
		for i, v := range raw {
			labels[i] = codes[v]
		}
	}
	return frame.Drop(idx), labels, names, nil
}

func integralLabels(raw []string) ([]int, bool) {
	labels := make([]int, len(raw))
	for i, v := range raw {
		f, err := parseFloat(v)
		if err != nil || f != math.Trunc(f) {
			return nil, false
		}
		labels[i] = int(f)
	}
	return labels, true
}

// OneHot encodes the frame the way pandas get_dummies does: numeric columns
// first in their original order, then one <column>_<value> indicator per
// distinct value of each categorical column, values sorted.
func OneHot(frame *Frame) (*Table, error) {
	if frame.Len() == 0 {
		return nil, ErrNoRows
	}
	if err := frame.checkWidth(); err != nil {
		return nil, err
	}
	kinds := frame.Kinds()
	table := &Table{Categories: make(map[string][]string)}

	var numeric, categorical []int
	for j, k := range kinds {
		if k == Numeric {
			numeric = append(numeric, j)
			table.Columns = append(table.Columns, frame.Header[j])
		} else {
			categorical = append(categorical, j)
		}
	}

	offsets := make(map[int]map[string]int, len(categorical))
	for _, j := range categorical {
		col := frame.Header[j]
		values := distinctSorted(columnValues(frame, j))
		table.Categories[col] = values
		offsets[j] = make(map[string]int, len(values))
		for _, v := range values {
			offsets[j][v] = len(table.Columns)
			table.Columns = append(table.Columns, col+"_"+v)
		}
	}

	table.Rows = make([][]float64, frame.Len())
	for i, row := range frame.Rows {
		out := make([]float64, len(table.Columns))
		for k, j := range numeric {
			v, err := parseFloat(row[j])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, frame.Header[j], err)
			}
			out[k] = v
		}
		for _, j := range categorical {
			out[offsets[j][row[j]]] = 1
		}
		table.Rows[i] = out
	}
	return table, nil
}

// CategoryCodes keeps the column layout and replaces each categorical value
// with its index in the column's sorted distinct values.
func CategoryCodes(frame *Frame) (*Table, error) {
	if frame.Len() == 0 {
		return nil, ErrNoRows
	}
	if err := frame.checkWidth(); err != nil {
		return nil, err
	}
	kinds := frame.Kinds()
	table := &Table{
		Columns:    append([]string(nil), frame.Header...),
		Categories: make(map[string][]string),
	}

	codes := make(map[int]map[string]int)
	for j, k := range kinds {
		if k == Categorical {
			values := distinctSorted(columnValues(frame, j))
			table.Categories[frame.Header[j]] = values
			codes[j] = indexMap(values)
		}
	}

	table.Rows = make([][]float64, frame.Len())
	for i, row := range frame.Rows {
		out := make([]float64, len(row))
		for j, cell := range row {
			if kinds[j] == Categorical {
				out[j] = float64(codes[j][cell])
				continue
			}
			v, err := parseFloat(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, frame.Header[j], err)
			}
			out[j] = v
		}
		table.Rows[i] = out
	}
	return table, nil
}

func (f *Frame) checkWidth() error {
	for i, row := range f.Rows {
		if len(row) != len(f.Header) {
			return fmt.Errorf("row %d has %d fields, header has %d", i, len(row), len(f.Header))
		}
	}
	return nil
}

func columnValues(frame *Frame, j int) []string {
	values := make([]string, len(frame.Rows))
	for i, row := range frame.Rows {
		values[i] = row[j]
	}
	return values
}

func distinctSorted(values []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func indexMap(values []string) map[string]int {
	m := make(map[string]int, len(values))
	for i, v := range values {
		m[v] = i
	}
	return m
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}
