package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrNoRows        = errors.New("dataset has no rows")
	ErrMissingTarget = errors.New("target column not found")
)

// Frame is a CSV file held as strings, header first.
type Frame struct {
	Header []string
	Rows   [][]string
}

// ReadOptions controls how a CSV file is decoded.
type ReadOptions struct {
	// Encoding is an IANA or WHATWG charset name such as "utf-8", "gbk" or
	// "windows-1252". Empty means UTF-8.
	Encoding string
	// Comma overrides the field delimiter. Zero means ','.
	Comma rune
}

// ReadCSV loads a CSV file with a header row.
func ReadCSV(path string, opts ReadOptions) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	frame, err := ParseCSV(file, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return frame, nil
}

// ParseCSV decodes r to UTF-8 and parses it. A UTF-8 or UTF-16 byte order
// mark wins over the configured encoding and is stripped.
func ParseCSV(r io.Reader, opts ReadOptions) (*Frame, error) {
	enc, err := lookupEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())))
	reader.FieldsPerRecord = -1
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	return &Frame{Header: header, Rows: rows}, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	return enc, nil
}

// Column returns the index of name in the header, or -1.
func (f *Frame) Column(name string) int {
	for i, h := range f.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Len is the number of data rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Drop returns a copy of the frame without column idx.
func (f *Frame) Drop(idx int) *Frame {
	out := &Frame{
		Header: dropIndex(f.Header, idx),
		Rows:   make([][]string, len(f.Rows)),
	}
	for i, row := range f.Rows {
		out.Rows[i] = dropIndex(row, idx)
	}
	return out
}

func dropIndex(values []string, idx int) []string {
	out := make([]string, 0, len(values))
	out = append(out, values[:idx]...)
	return append(out, values[idx+1:]...)
}

// WriteMatrix writes a header and float rows as CSV.
func WriteMatrix(path string, header []string, rows [][]float64) error {
	records := make([][]string, len(rows))
	for i, row := range rows {
		rec := make([]string, len(row))
		for j, v := range row {
			rec[j] = formatFloat(v)
		}
		records[i] = rec
	}
	return writeRecords(path, header, records)
}

// WriteLabels writes a single labelled column as CSV.
func WriteLabels(path, name string, labels []int) error {
	records := make([][]string, len(labels))
	for i, l := range labels {
		records[i] = []string{strconv.Itoa(l)}
	}
	return writeRecords(path, []string{name}, records)
}

func writeRecords(path string, header []string, records [][]string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
