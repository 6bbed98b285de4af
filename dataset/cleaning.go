package dataset

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Row is one CSV record. Line is 1-based and counts the header.
type Row struct {
	Line   int
	Values []string
}

// CleaningRule checks or corrects a row. Returning an error rejects it.
type CleaningRule interface {
	Apply(*Row) (*Row, error)
	Name() string
}

// QualityIssue is a rejected row.
type QualityIssue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"` // low, medium, high
	Message  string `json:"message"`
	Line     int    `json:"line"`
}

// CleaningStats counts what the cleaner did.
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Corrected      int64            `json:"corrected"`
	Issues         map[string]int64 `json:"issues"`
}

// DataCleaner runs every rule over every row and drops rows any rule rejects.
type DataCleaner struct {
	rules  []CleaningRule
	logger *zap.Logger

	mu     sync.RWMutex
	issues []QualityIssue
	stats  CleaningStats
}

// NewDataCleaner returns a cleaner with the default rules for a frame with
// the given header: whitespace trimming, column count, a non-empty target and
// no blank cells.
func NewDataCleaner(header []string, target string, logger *zap.Logger) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	dc := &DataCleaner{
		logger: logger,
		stats:  CleaningStats{Issues: make(map[string]int64)},
	}
	dc.AddRule(TrimSpaceRule{})
	dc.AddRule(ColumnCountRule{Width: len(header)})
	if idx := indexOf(header, target); idx >= 0 {
		dc.AddRule(RequiredColumnRule{Index: idx, Column: target})
	}
	dc.AddRule(MissingValueRule{Header: header})
	return dc
}

// AddRule appends a rule; rules run in the order they were added.
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
	dc.logger.Debug("added cleaning rule", zap.String("rule", rule.Name()))
}

// Clean returns a frame with the surviving rows, corrected in place, and the
// issues found in this pass.
func (dc *DataCleaner) Clean(frame *Frame) (*Frame, []QualityIssue) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	out := &Frame{Header: frame.Header, Rows: make([][]string, 0, len(frame.Rows))}
	var issues []QualityIssue
	for i, values := range frame.Rows {
		dc.stats.TotalProcessed++
		original := strings.Join(values, "\x00")
		row := &Row{Line: i + 2, Values: append([]string(nil), values...)}

		var rowIssues []QualityIssue
		for _, rule := range dc.rules {
			cleaned, err := rule.Apply(row)
			if err != nil {
				rowIssues = append(rowIssues, QualityIssue{
					Type:     rule.Name(),
					Severity: "high",
					Message:  err.Error(),
					Line:     row.Line,
				})
				dc.stats.Issues[rule.Name()]++
				break
			}
			if cleaned != nil {
				row = cleaned
			}
		}

		if len(rowIssues) > 0 {
			dc.stats.Rejected++
			issues = append(issues, rowIssues...)
			continue
		}
		if strings.Join(row.Values, "\x00") != original {
			dc.stats.Corrected++
		}
		dc.stats.Passed++
		out.Rows = append(out.Rows, row.Values)
	}
	dc.issues = append(dc.issues, issues...)

	if len(issues) > 0 {
		dc.logger.Warn("rejected rows while cleaning",
			zap.Int("rejected", len(issues)),
			zap.Int("kept", len(out.Rows)))
	}
	return out, issues
}

// GetStats returns a copy of the counters accumulated over every Clean.
func (dc *DataCleaner) GetStats() CleaningStats {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// GetIssues returns the most recent issues, all of them when limit <= 0.
func (dc *DataCleaner) GetIssues(limit int) []QualityIssue {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	if limit <= 0 || limit > len(dc.issues) {
		limit = len(dc.issues)
	}
	issues := make([]QualityIssue, limit)
	copy(issues, dc.issues[len(dc.issues)-limit:])
	return issues
}

// TrimSpaceRule strips surrounding whitespace from every cell.
type TrimSpaceRule struct{}

func (TrimSpaceRule) Name() string { return "trim_space" }

func (TrimSpaceRule) Apply(row *Row) (*Row, error) {
	for i, v := range row.Values {
		row.Values[i] = strings.TrimSpace(v)
	}
	return row, nil
}

// ColumnCountRule rejects rows whose width differs from the header.
type ColumnCountRule struct {
	Width int
}

func (r ColumnCountRule) Name() string { return "column_count" }

func (r ColumnCountRule) Apply(row *Row) (*Row, error) {
	if len(row.Values) != r.Width {
		return nil, fmt.Errorf("line %d has %d fields, header has %d", row.Line, len(row.Values), r.Width)
	}
	return row, nil
}

// RequiredColumnRule rejects rows with an empty value in one column.
type RequiredColumnRule struct {
	Index  int
	Column string
}

func (r RequiredColumnRule) Name() string { return "required_column" }

func (r RequiredColumnRule) Apply(row *Row) (*Row, error) {
	if r.Index >= len(row.Values) || row.Values[r.Index] == "" {
		return nil, fmt.Errorf("line %d has no value for %q", row.Line, r.Column)
	}
	return row, nil
}

// MissingValueRule rejects rows with any blank or NA cell.
type MissingValueRule struct {
	Header []string
}

func (r MissingValueRule) Name() string { return "missing_value" }

func (r MissingValueRule) Apply(row *Row) (*Row, error) {
	for i, v := range row.Values {
		if isMissing(v) {
			name := fmt.Sprintf("#%d", i)
			if i < len(r.Header) {
				name = r.Header[i]
			}
			return nil, fmt.Errorf("line %d: missing value for %q", row.Line, name)
		}
	}
	return row, nil
}

func isMissing(v string) bool {
	switch v {
	case "", "NA", "N/A", "NaN", "nan", "null", "NULL":
		return true
	}
	return false
}

func indexOf(values []string, target string) int {
	for i, v := range values {
		if v == target {
			return i
		}
	}
	return -1
}
