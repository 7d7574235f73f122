// Package spreadsheet parses CSV/TSV content, infers column types from it,
// and bulk-inserts its rows in bounded concurrent batches.
package spreadsheet

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/koustreak/tablekit/internal/errs"
)

// Row maps a header to its raw cell text.
type Row map[string]string

// Content is a parsed spreadsheet.
type Content struct {
	Headers  []string `json:"headers"`
	Rows     []Row    `json:"rows"`
	RowCount int      `json:"rowCount"`
}

// ParseOptions controls delimiter detection.
type ParseOptions struct {
	// FileName selects TSV for ".tsv" and ".tab" files.
	FileName string
	// Delimiter forces a delimiter; zero means detect.
	Delimiter rune
	// MaxRows stops parsing after this many data rows; zero means all.
	MaxRows int
}

func (o ParseOptions) delimiter(firstLine string) rune {
	if o.Delimiter != 0 {
		return o.Delimiter
	}
	switch strings.ToLower(filepath.Ext(o.FileName)) {
	case ".tsv", ".tab":
		return '\t'
	case ".csv":
		return ','
	}
	if strings.Contains(firstLine, "\t") {
		return '\t'
	}
	return ','
}

// recordReader yields one record per call and io.EOF at the end.
type recordReader interface {
	Read() ([]string, error)
}

// tsvReader splits lines on tabs. Quotes carry no meaning in TSV.
type tsvReader struct {
	sc *bufio.Scanner
}

func (r *tsvReader) Read() ([]string, error) {
	for r.sc.Scan() {
		line := strings.TrimSuffix(r.sc.Text(), "\r")
		if line == "" {
			continue
		}
		return strings.Split(line, "\t"), nil
	}
	if err := r.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func newRecordReader(r io.Reader, opts ParseOptions) recordReader {
	br := bufio.NewReader(r)
	peek, _ := br.Peek(4096)
	first, _, _ := strings.Cut(string(peek), "\n")

	if opts.delimiter(first) == '\t' {
		sc := bufio.NewScanner(br)
		sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
		return &tsvReader{sc: sc}
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	return cr
}

func headersOf(record []string) []string {
	headers := make([]string, len(record))
	seen := make(map[string]int, len(record))
	for i, h := range record {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[h]; n > 0 {
			seen[h]++
			h = fmt.Sprintf("%s_%d", h, n+1)
		} else {
			seen[h] = 1
		}
		headers[i] = h
	}
	return headers
}

func rowOf(headers, record []string) Row {
	row := make(Row, len(headers))
	for i, h := range headers {
		if i < len(record) {
			row[h] = record[i]
		} else {
			row[h] = ""
		}
	}
	return row
}

func parseError(err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("malformed spreadsheet at line %d", perr.Line), err)
	}
	return errs.Wrap(errs.ErrKindInvalidInput, "failed to read spreadsheet", err)
}

// Parse reads a header row followed by data rows. Empty lines are skipped.
func Parse(r io.Reader, opts ParseOptions) (*Content, error) {
	rr := newRecordReader(r, opts)

	first, err := rr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errs.New(errs.ErrKindInvalidInput, "spreadsheet is empty")
	}
	if err != nil {
		return nil, parseError(err)
	}

	content := &Content{Headers: headersOf(first), Rows: []Row{}}
	for opts.MaxRows == 0 || len(content.Rows) < opts.MaxRows {
		record, err := rr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, parseError(err)
		}
		content.Rows = append(content.Rows, rowOf(content.Headers, record))
	}
	content.RowCount = len(content.Rows)
	return content, nil
}

// ParseString parses pasted text.
func ParseString(text string, opts ParseOptions) (*Content, error) {
	return Parse(strings.NewReader(text), opts)
}
